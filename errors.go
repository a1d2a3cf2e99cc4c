// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the errors returned by the transport, the request
// engine and the walker.
type ErrorKind int

const (
	// KindUnknown is reported for errors not produced by this package,
	// including BER decode failures.
	KindUnknown ErrorKind = iota
	// KindConfiguration covers invalid or missing parameters and unsupported
	// protocol versions. Never retried.
	KindConfiguration
	// KindNetwork covers fatal socket conditions. Never retried.
	KindNetwork
	// KindProtocol covers request id and version mismatches and agent
	// reported errors.
	KindProtocol
	// KindSecurity covers missing secrets, community mismatches, failed
	// authentication and USM reports.
	KindSecurity
	// KindTimeout is reported when all attempts went unanswered.
	KindTimeout
	// KindNoData is reported when the transport returned nothing at all.
	KindNoData
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	case KindSecurity:
		return "security"
	case KindTimeout:
		return "timeout"
	case KindNoData:
		return "nodata"
	default:
		return "unknown"
	}
}

// Error is the structured error returned by this package. Err is one of the
// sentinels below, Cause is the underlying error if there is one. errors.Is
// matches either.
type Error struct {
	Kind  ErrorKind
	Op    string
	Err   error
	Cause error
}

func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func newError(kind ErrorKind, op string, sentinel, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: sentinel, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Configuration errors.
var (
	ErrInvalidParameters     = errors.New("invalid agent parameters")
	ErrUnsupportedVersion    = errors.New("unsupported snmp version")
	ErrInvalidMaxRepetitions = errors.New("max-repetitions must be greater than zero")
	ErrInvalidTarget         = errors.New("invalid target")
)

// Network errors.
var (
	ErrNetworkDown        = errors.New("destination network is down")
	ErrNetworkUnreachable = errors.New("destination network is unreachable")
	ErrConnectionReset    = errors.New("connection reset by peer")
	ErrHostDown           = errors.New("remote host is down")
	ErrHostUnreachable    = errors.New("remote host is unreachable")
	ErrConnectionRefused  = errors.New("connection refused")
)

// Protocol errors.
var (
	ErrInvalidRequestID  = errors.New("reply request id does not match request")
	ErrVersionMismatch   = errors.New("reply version does not match request")
	ErrAgentStatus       = errors.New("agent returned an error status")
	ErrWalkLimitExceeded = errors.New("walk request limit exceeded")
	ErrOIDNotIncreasing  = errors.New("agent returned a non-increasing oid")
	ErrNoSuchObject      = errors.New("agent has no value for oid")
)

// Security errors.
var (
	ErrAuthSecretMissing    = errors.New("authentication passphrase missing")
	ErrPrivSecretMissing    = errors.New("privacy passphrase missing")
	ErrInvalidCommunity     = errors.New("reply community does not match request")
	ErrAuthenticationFailed = errors.New("reply failed authentication")
	ErrDiscoveryFailed      = errors.New("engine discovery failed")
	ErrAgentIdentity        = errors.New("agent certificate does not match expected identity")
)

// USM and MPD report errors, as classified by ReportError.
var (
	ErrDecryption            = errors.New("decryption error")
	ErrInvalidMsgs           = errors.New("invalid messages")
	ErrNotInTimeWindow       = errors.New("not in time window")
	ErrUnknownEngineID       = errors.New("unknown engine id")
	ErrUnknownPDUHandlers    = errors.New("unknown pdu handlers")
	ErrUnknownReportPDU      = errors.New("unknown report pdu")
	ErrUnknownSecurityLevel  = errors.New("unknown security level")
	ErrUnknownSecurityModels = errors.New("unknown security models")
	ErrUnknownUsername       = errors.New("unknown username")
	ErrWrongDigest           = errors.New("wrong digest")
)

// Exhaustion errors.
var (
	ErrRequestTimeout  = errors.New("request timed out")
	ErrNoDataReceived  = errors.New("no data received")
	ErrTransportClosed = errors.New("transport closed")
)

// SNMPError is the error-status field of a response PDU.
type SNMPError uint8

// RFC 3416 error-status values.
const (
	NoError             SNMPError = iota // No error occurred.
	TooBig                               // The size of the Response-PDU would be too large to transport.
	NoSuchName                           // The name of a requested object was not found.
	BadValue                             // A value in the request didn't match the structure that the recipient expected.
	ReadOnly                             // The requested variable is read-only.
	GenErr                               // An error occurred other than one indicated by a more specific error code.
	NoAccess                             // Access was denied to the object for security reasons.
	WrongType                            // The object type in a variable binding is incorrect for the object.
	WrongLength                          // A variable binding specifies a length incorrect for the object.
	WrongEncoding                        // A variable binding specifies an encoding incorrect for the object.
	WrongValue                           // The value given in a variable binding is not possible for the object.
	NoCreation                           // A specified variable does not exist and cannot be created.
	InconsistentValue                    // A variable binding specifies a value that could be held by the variable but cannot be assigned to it at this time.
	ResourceUnavailable                  // An attempt to set a variable required a resource that is not available.
	CommitFailed                         // An attempt to set a particular variable failed.
	UndoFailed                           // An attempt to set a particular variable as part of a group of variables failed, and the attempt to then undo the setting of other variables was not successful.
	AuthorizationError                   // A problem occurred in authorization.
	NotWritable                          // The variable cannot be written or created.
	InconsistentName                     // The name in a variable binding specifies a variable that does not exist.
)

var snmpErrorNames = [...]string{
	"noError", "tooBig", "noSuchName", "badValue", "readOnly", "genErr",
	"noAccess", "wrongType", "wrongLength", "wrongEncoding", "wrongValue",
	"noCreation", "inconsistentValue", "resourceUnavailable", "commitFailed",
	"undoFailed", "authorizationError", "notWritable", "inconsistentName",
}

func (e SNMPError) String() string {
	if int(e) < len(snmpErrorNames) {
		return snmpErrorNames[e]
	}
	return fmt.Sprintf("SNMPError(%d)", uint8(e))
}

func (e SNMPError) Error() string {
	return e.String()
}

// agentError wraps a non-zero error status from pdu as a KindProtocol error.
func agentError(op string, pdu *Pdu) error {
	return newError(KindProtocol, op, ErrAgentStatus,
		fmt.Errorf("%w (index %d)", pdu.ErrorStatus, pdu.ErrorIndex))
}
