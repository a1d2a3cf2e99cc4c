// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"errors"
	"math/rand/v2"
	"sync/atomic"
)

// SecurityContext is the v3 security material of a request. The request
// engine drives it as follows:
//
//	InitPacket             fill in the header of an outgoing packet
//	Encode                 serialize, encrypting and authenticating as the
//	                       packet's flags require; keys are derived on first
//	                       use and cached
//	Decode                 parse a reply, decrypting with the cached keys
//	ValidateIncomingPacket check the reply's digest
//	UpdateDiscoveryValues  record the agent's engine id, boots and time
//	Reset                  forget everything learned from the agent
//
// A SecurityContext is not safe for concurrent use.
type SecurityContext interface {
	AgentParameters
	SecurityModel() SnmpV3SecurityModel
	// ValidateSecrets reports a missing authentication or privacy
	// passphrase.
	ValidateSecrets() error
	InitPacket(packet *V3Packet) error
	HasCachedKeys() bool
	Encode(packet *V3Packet) ([]byte, error)
	Decode(data []byte) (*V3Packet, error)
	ValidateIncomingPacket(packet *V3Packet, raw []byte) bool
	UpdateDiscoveryValues(packet *V3Packet)
	Reset()
	SafeString() string

	// discoveryState returns what has been learned about the agent's engine.
	// requiresDiscovery is false for models that need no SNMP-level
	// discovery.
	discoveryState() (engineID string, boots, engineTime uint32, requiresDiscovery bool)
}

// User-based Security Model report OIDs (RFC 3414) and MPD report OIDs
// (RFC 3412).
var (
	usmStatsUnsupportedSecLevels = OID{1, 3, 6, 1, 6, 3, 15, 1, 1, 1, 0}
	usmStatsNotInTimeWindows     = OID{1, 3, 6, 1, 6, 3, 15, 1, 1, 2, 0}
	usmStatsUnknownUserNames     = OID{1, 3, 6, 1, 6, 3, 15, 1, 1, 3, 0}
	usmStatsUnknownEngineIDs     = OID{1, 3, 6, 1, 6, 3, 15, 1, 1, 4, 0}
	usmStatsWrongDigests         = OID{1, 3, 6, 1, 6, 3, 15, 1, 1, 5, 0}
	usmStatsDecryptionErrors     = OID{1, 3, 6, 1, 6, 3, 15, 1, 1, 6, 0}
	snmpUnknownSecurityModels    = OID{1, 3, 6, 1, 6, 3, 11, 2, 1, 1, 0}
	snmpInvalidMsgs              = OID{1, 3, 6, 1, 6, 3, 11, 2, 1, 2, 0}
	snmpUnknownPDUHandlers       = OID{1, 3, 6, 1, 6, 3, 11, 2, 1, 3, 0}
)

// isDiscoveryReport reports whether pdu is the usmStatsUnknownEngineIDs
// report an agent sends in reply to a discovery request.
func isDiscoveryReport(pdu *Pdu) bool {
	return pdu != nil && pdu.Type == Report && len(pdu.Variables) > 0 &&
		pdu.Variables[0].Name.Equal(usmStatsUnknownEngineIDs)
}

// ReportError classifies a Report PDU by the counter in its first binding.
// It returns nil for any other PDU type.
func ReportError(pdu *Pdu) error {
	if pdu == nil || pdu.Type != Report {
		return nil
	}
	if len(pdu.Variables) < 1 {
		return newError(KindSecurity, "report", ErrUnknownReportPDU, errors.New("malformed REPORT: no variables"))
	}

	oid := pdu.Variables[0].Name
	var sentinel error
	switch {
	case oid.Equal(usmStatsNotInTimeWindows):
		sentinel = ErrNotInTimeWindow
	case oid.Equal(usmStatsUnknownEngineIDs):
		sentinel = ErrUnknownEngineID
	case oid.Equal(usmStatsWrongDigests):
		sentinel = ErrWrongDigest
	case oid.Equal(usmStatsUnsupportedSecLevels):
		sentinel = ErrUnknownSecurityLevel
	case oid.Equal(usmStatsUnknownUserNames):
		sentinel = ErrUnknownUsername
	case oid.Equal(usmStatsDecryptionErrors):
		sentinel = ErrDecryption
	case oid.Equal(snmpUnknownSecurityModels):
		sentinel = ErrUnknownSecurityModels
	case oid.Equal(snmpInvalidMsgs):
		sentinel = ErrInvalidMsgs
	case oid.Equal(snmpUnknownPDUHandlers):
		sentinel = ErrUnknownPDUHandlers
	default:
		sentinel = ErrUnknownReportPDU
	}
	return newError(KindSecurity, "report", sentinel, nil)
}

var msgIDCounter atomic.Uint32

func init() {
	msgIDCounter.Store(rand.Uint32N(1 << 30))
}

// nextMsgID returns a message id in 1..2^31-1.
func nextMsgID() uint32 {
	for {
		if id := msgIDCounter.Add(1) & 0x7FFFFFFF; id != 0 {
			return id
		}
	}
}
