// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"bytes"
	"crypto"
	"crypto/hmac"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SnmpV3AuthProtocol describes the authentication protocol in use by an
// authenticated USM user.
type SnmpV3AuthProtocol uint8

// NoAuth, MD5 and SHA are from RFC 3414. SHA224 through SHA512 are the
// HMAC-SHA-2 protocols of RFC 7860.
const (
	NoAuth SnmpV3AuthProtocol = 1
	MD5    SnmpV3AuthProtocol = 2
	SHA    SnmpV3AuthProtocol = 3
	SHA224 SnmpV3AuthProtocol = 4
	SHA256 SnmpV3AuthProtocol = 5
	SHA384 SnmpV3AuthProtocol = 6
	SHA512 SnmpV3AuthProtocol = 7
)

func (a SnmpV3AuthProtocol) String() string {
	switch a {
	case NoAuth:
		return "NoAuth"
	case MD5:
		return "MD5"
	case SHA:
		return "SHA"
	case SHA224:
		return "SHA224"
	case SHA256:
		return "SHA256"
	case SHA384:
		return "SHA384"
	case SHA512:
		return "SHA512"
	}
	return fmt.Sprintf("SnmpV3AuthProtocol(%d)", uint8(a))
}

// ParseAuthProtocol accepts the names printed by String, case-insensitively.
func ParseAuthProtocol(s string) (SnmpV3AuthProtocol, error) {
	switch strings.ToUpper(s) {
	case "", "NOAUTH", "NONE":
		return NoAuth, nil
	case "MD5":
		return MD5, nil
	case "SHA", "SHA1":
		return SHA, nil
	case "SHA224":
		return SHA224, nil
	case "SHA256":
		return SHA256, nil
	case "SHA384":
		return SHA384, nil
	case "SHA512":
		return SHA512, nil
	}
	return 0, newError(KindConfiguration, "parse auth protocol", ErrInvalidParameters, fmt.Errorf("%q", s))
}

func (a SnmpV3AuthProtocol) hash() crypto.Hash {
	switch a {
	case MD5:
		return crypto.MD5
	case SHA:
		return crypto.SHA1
	case SHA224:
		return crypto.SHA224
	case SHA256:
		return crypto.SHA256
	case SHA384:
		return crypto.SHA384
	case SHA512:
		return crypto.SHA512
	}
	return 0
}

// macLength is the length of msgAuthenticationParameters.
func (a SnmpV3AuthProtocol) macLength() int {
	switch a {
	case MD5, SHA:
		return 12
	case SHA224:
		return 16
	case SHA256:
		return 24
	case SHA384:
		return 32
	case SHA512:
		return 48
	}
	return 0
}

// SnmpV3PrivProtocol is the privacy protocol in use by a private USM user.
type SnmpV3PrivProtocol uint8

const (
	NoPriv SnmpV3PrivProtocol = 1
	DES    SnmpV3PrivProtocol = 2
	AES    SnmpV3PrivProtocol = 3
)

func (p SnmpV3PrivProtocol) String() string {
	switch p {
	case NoPriv:
		return "NoPriv"
	case DES:
		return "DES"
	case AES:
		return "AES"
	}
	return fmt.Sprintf("SnmpV3PrivProtocol(%d)", uint8(p))
}

// ParsePrivProtocol accepts the names printed by String, case-insensitively.
func ParsePrivProtocol(s string) (SnmpV3PrivProtocol, error) {
	switch strings.ToUpper(s) {
	case "", "NOPRIV", "NONE":
		return NoPriv, nil
	case "DES":
		return DES, nil
	case "AES", "AES128":
		return AES, nil
	}
	return 0, newError(KindConfiguration, "parse priv protocol", ErrInvalidParameters, fmt.Errorf("%q", s))
}

// UsmSecurityParameters is the User-based Security Model context for one
// user and one agent engine (RFC 3414).
type UsmSecurityParameters struct {
	UserName                 string
	AuthenticationProtocol   SnmpV3AuthProtocol
	AuthenticationPassphrase string
	PrivacyProtocol          SnmpV3PrivProtocol
	PrivacyPassphrase        string
	ContextName              string

	// Learned from the agent by discovery and updated from every valid
	// reply.
	AuthoritativeEngineID    string
	AuthoritativeEngineBoots uint32
	AuthoritativeEngineTime  uint32

	Logger Logger

	updatedAt    time.Time
	authKey      []byte
	privKey      []byte
	keysEngineID string
	salt         uint64
}

var _ SecurityContext = (*UsmSecurityParameters)(nil)

func (sp *UsmSecurityParameters) Version() SnmpVersion                { return Version3 }
func (sp *UsmSecurityParameters) SecurityModel() SnmpV3SecurityModel { return UserSecurityModel }
func (sp *UsmSecurityParameters) agentParameters()                    {}

func (sp *UsmSecurityParameters) authProtocol() SnmpV3AuthProtocol {
	if sp.AuthenticationProtocol == 0 {
		return NoAuth
	}
	return sp.AuthenticationProtocol
}

func (sp *UsmSecurityParameters) privProtocol() SnmpV3PrivProtocol {
	if sp.PrivacyProtocol == 0 {
		return NoPriv
	}
	return sp.PrivacyProtocol
}

// securityLevel is the msgFlags security level configured for the user.
func (sp *UsmSecurityParameters) securityLevel() SnmpV3MsgFlags {
	switch {
	case sp.privProtocol() != NoPriv:
		return AuthPriv
	case sp.authProtocol() != NoAuth:
		return AuthNoPriv
	}
	return NoAuthNoPriv
}

// Valid reports whether the user name is set and the protocols are
// known. Privacy without authentication is not a valid combination.
func (sp *UsmSecurityParameters) Valid() bool {
	if sp == nil || sp.UserName == "" {
		return false
	}
	if sp.authProtocol().macLength() == 0 && sp.authProtocol() != NoAuth {
		return false
	}
	switch sp.privProtocol() {
	case NoPriv:
		return true
	case DES, AES:
		return sp.authProtocol() != NoAuth
	}
	return false
}

func (sp *UsmSecurityParameters) ValidateSecrets() error {
	if sp.authProtocol() != NoAuth && sp.AuthenticationPassphrase == "" {
		return newError(KindSecurity, "usm", ErrAuthSecretMissing, nil)
	}
	if sp.privProtocol() != NoPriv && sp.PrivacyPassphrase == "" {
		return newError(KindSecurity, "usm", ErrPrivSecretMissing, nil)
	}
	if !sp.Valid() {
		return newError(KindConfiguration, "usm", ErrInvalidParameters,
			fmt.Errorf("user %q auth %s priv %s", sp.UserName, sp.authProtocol(), sp.privProtocol()))
	}
	return nil
}

// SafeString returns a logging-safe description without passphrases or keys.
func (sp *UsmSecurityParameters) SafeString() string {
	return fmt.Sprintf("UserName:%s, AuthenticationProtocol:%s, PrivacyProtocol:%s, AuthoritativeEngineID:%x, AuthoritativeEngineBoots:%d, AuthoritativeEngineTime:%d, CachedKeys:%t",
		sp.UserName, sp.authProtocol(), sp.privProtocol(),
		sp.AuthoritativeEngineID, sp.AuthoritativeEngineBoots, sp.AuthoritativeEngineTime, sp.HasCachedKeys())
}

// engineTime estimates the agent's current engine time from the last
// value it reported (RFC 3414 §2.3).
func (sp *UsmSecurityParameters) engineTime() uint32 {
	if sp.updatedAt.IsZero() {
		return sp.AuthoritativeEngineTime
	}
	return sp.AuthoritativeEngineTime + uint32(time.Since(sp.updatedAt)/time.Second)
}

// InitPacket fills in the v3 header. Until the agent's engine id is known
// the packet is a discovery probe: reportable, noAuthNoPriv and with an
// empty user name (RFC 3414 §4).
func (sp *UsmSecurityParameters) InitPacket(packet *V3Packet) error {
	packet.MsgID = nextMsgID()
	packet.SecurityModel = UserSecurityModel
	if packet.MsgMaxSize == 0 {
		packet.MsgMaxSize = rxBufSize
	}
	if packet.ContextName == "" {
		packet.ContextName = sp.ContextName
	}

	if sp.AuthoritativeEngineID == "" {
		sp.Logger.Print("USM: engine id unknown, sending discovery probe")
		packet.MsgFlags = Reportable
		packet.Usm = UsmHeader{}
		return nil
	}

	packet.MsgFlags = sp.securityLevel() | Reportable
	packet.Usm = UsmHeader{
		AuthoritativeEngineID:    sp.AuthoritativeEngineID,
		AuthoritativeEngineBoots: sp.AuthoritativeEngineBoots,
		AuthoritativeEngineTime:  sp.engineTime(),
		UserName:                 sp.UserName,
	}
	if packet.ContextEngineID == "" {
		packet.ContextEngineID = sp.AuthoritativeEngineID
	}
	return nil
}

// HasCachedKeys reports whether localized keys for the current engine id
// have been derived.
func (sp *UsmSecurityParameters) HasCachedKeys() bool {
	if sp.AuthoritativeEngineID == "" || sp.keysEngineID != sp.AuthoritativeEngineID {
		return false
	}
	if sp.authProtocol() != NoAuth && sp.authKey == nil {
		return false
	}
	if sp.privProtocol() != NoPriv && sp.privKey == nil {
		return false
	}
	return true
}

func (sp *UsmSecurityParameters) deriveKeys() error {
	if sp.AuthoritativeEngineID == "" {
		return errors.New("usm: cannot localize keys without an engine id")
	}
	sp.authKey, sp.privKey, sp.keysEngineID = nil, nil, ""

	auth := sp.authProtocol()
	if auth != NoAuth {
		k, err := localizedKey(auth, sp.AuthenticationPassphrase, sp.AuthoritativeEngineID)
		if err != nil {
			return err
		}
		sp.authKey = k
	}
	if sp.privProtocol() != NoPriv {
		k, err := localizedKey(auth, sp.PrivacyPassphrase, sp.AuthoritativeEngineID)
		if err != nil {
			return err
		}
		sp.privKey = k
	}
	sp.keysEngineID = sp.AuthoritativeEngineID
	return nil
}

// Encode serializes packet, encrypting the scoped PDU and computing the
// digest as its flags require.
func (sp *UsmSecurityParameters) Encode(packet *V3Packet) ([]byte, error) {
	level := packet.MsgFlags & AuthPriv
	if level != NoAuthNoPriv && !sp.HasCachedKeys() {
		sp.Logger.Print("USM: deriving localized keys")
		if err := sp.deriveKeys(); err != nil {
			return nil, err
		}
	}

	scoped, err := packet.marshalScopedPDU()
	if err != nil {
		return nil, err
	}

	encrypted := false
	packet.Usm.PrivacyParameters = nil
	if level == AuthPriv {
		scoped, packet.Usm.PrivacyParameters, err = sp.encrypt(scoped, packet.Usm.AuthoritativeEngineBoots, packet.Usm.AuthoritativeEngineTime)
		if err != nil {
			return nil, fmt.Errorf("usm encrypt: %w", err)
		}
		encrypted = true
	}

	packet.Usm.AuthenticationParameters = nil
	if level&AuthNoPriv != 0 {
		packet.Usm.AuthenticationParameters = make([]byte, sp.authProtocol().macLength())
	}

	secParams, err := packet.marshalUsmHeader()
	if err != nil {
		return nil, err
	}
	msg, err := packet.marshalV3(secParams, scoped, encrypted)
	if err != nil {
		return nil, err
	}

	if level&AuthNoPriv != 0 {
		if err := sp.authenticate(msg); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// authenticate writes the digest of msg into its zero-filled
// msgAuthenticationParameters.
func (sp *UsmSecurityParameters) authenticate(msg []byte) error {
	off, l, err := locateAuthParams(msg)
	if err != nil {
		return fmt.Errorf("usm authenticate: %w", err)
	}
	digest := sp.digest(msg)
	if l != len(digest) {
		return fmt.Errorf("usm authenticate: digest field is %d bytes, want %d", l, len(digest))
	}
	copy(msg[off:off+l], digest)
	return nil
}

// digest is the truncated HMAC of msg under the localized auth key.
func (sp *UsmSecurityParameters) digest(msg []byte) []byte {
	auth := sp.authProtocol()
	mac := hmac.New(auth.hash().New, sp.authKey)
	mac.Write(msg)
	return mac.Sum(nil)[:auth.macLength()]
}

// Decode parses a reply and decrypts its scoped PDU with the cached
// privacy key.
func (sp *UsmSecurityParameters) Decode(data []byte) (*V3Packet, error) {
	packet, err := unmarshalV3(data, sp.Logger)
	if err != nil {
		return nil, err
	}
	if packet.SecurityModel != UserSecurityModel {
		return nil, fmt.Errorf("usm: reply uses security model %s", packet.SecurityModel)
	}
	if packet.encryptedPDU == nil {
		return packet, nil
	}

	if packet.MsgFlags&AuthPriv != AuthPriv {
		return nil, newError(KindSecurity, "usm decode", ErrDecryption, errors.New("encrypted pdu without privacy flag"))
	}
	if sp.privProtocol() == NoPriv {
		return nil, newError(KindSecurity, "usm decode", ErrDecryption, errors.New("no privacy protocol configured"))
	}
	if !sp.HasCachedKeys() {
		if err := sp.deriveKeys(); err != nil {
			return nil, newError(KindSecurity, "usm decode", ErrDecryption, err)
		}
	}
	plain, err := sp.decrypt(packet.encryptedPDU, packet.Usm.PrivacyParameters,
		packet.Usm.AuthoritativeEngineBoots, packet.Usm.AuthoritativeEngineTime)
	if err != nil {
		return nil, newError(KindSecurity, "usm decode", ErrDecryption, err)
	}
	if err := packet.unmarshalScopedPDU(plain, sp.Logger); err != nil {
		return nil, newError(KindSecurity, "usm decode", ErrDecryption, err)
	}
	packet.encryptedPDU = nil
	return packet, nil
}

// ValidateIncomingPacket checks the digest of raw. Unauthenticated Reports
// are accepted (RFC 3414 §11.4); any other unauthenticated reply is not
// when the user is configured for authentication.
func (sp *UsmSecurityParameters) ValidateIncomingPacket(packet *V3Packet, raw []byte) bool {
	if sp.authProtocol() == NoAuth {
		return true
	}
	if packet.MsgFlags&AuthNoPriv == 0 {
		return packet.Pdu != nil && packet.Pdu.Type == Report
	}
	if !sp.HasCachedKeys() {
		sp.Logger.Print("USM: deriving localized keys")
		if err := sp.deriveKeys(); err != nil {
			sp.Logger.Printf("USM: cannot validate reply: %v", err)
			return false
		}
	}

	off, l, err := locateAuthParams(raw)
	if err != nil || l != sp.authProtocol().macLength() {
		sp.Logger.Printf("USM: malformed msgAuthenticationParameters: %v", err)
		return false
	}
	received := bytes.Clone(raw[off : off+l])
	zeroed := bytes.Clone(raw)
	clear(zeroed[off : off+l])
	return hmac.Equal(sp.digest(zeroed), received)
}

// UpdateDiscoveryValues records the engine id, boots and time reported in
// packet. A new engine id invalidates the cached keys.
func (sp *UsmSecurityParameters) UpdateDiscoveryValues(packet *V3Packet) {
	if id := packet.Usm.AuthoritativeEngineID; id != "" && id != sp.AuthoritativeEngineID {
		sp.Logger.Printf("USM: learned engine id %x", id)
		sp.AuthoritativeEngineID = id
		sp.authKey, sp.privKey, sp.keysEngineID = nil, nil, ""
	}
	sp.AuthoritativeEngineBoots = packet.Usm.AuthoritativeEngineBoots
	sp.AuthoritativeEngineTime = packet.Usm.AuthoritativeEngineTime
	sp.updatedAt = time.Now()
}

// Reset forgets the engine id, boots, time and cached keys.
func (sp *UsmSecurityParameters) Reset() {
	sp.AuthoritativeEngineID = ""
	sp.AuthoritativeEngineBoots = 0
	sp.AuthoritativeEngineTime = 0
	sp.updatedAt = time.Time{}
	sp.authKey, sp.privKey, sp.keysEngineID = nil, nil, ""
}

func (sp *UsmSecurityParameters) discoveryState() (string, uint32, uint32, bool) {
	return sp.AuthoritativeEngineID, sp.AuthoritativeEngineBoots, sp.AuthoritativeEngineTime, true
}
