// Copyright 2025 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"errors"
	"fmt"
)

// TsmSecurityParameters is the Transport Security Model context (RFC 5591).
// Authentication and privacy are provided by the (D)TLS session, so
// messages carry an empty msgSecurityParameters and a plaintext scoped PDU.
// It must be used with a transport that sets up such a session, such as
// DTLSTransport.
type TsmSecurityParameters struct {
	// SecurityName is the tmSecurityName the session is expected to map to.
	// It is informational for outgoing requests; the agent identifies us by
	// our certificate.
	SecurityName string
	ContextName  string

	// ContextEngineID is sent in every scoped PDU. TSM has no discovery, so
	// it is empty unless set here.
	ContextEngineID string

	Logger Logger
}

var _ SecurityContext = (*TsmSecurityParameters)(nil)

func (sp *TsmSecurityParameters) Version() SnmpVersion                { return Version3 }
func (sp *TsmSecurityParameters) SecurityModel() SnmpV3SecurityModel { return TransportSecurityModel }
func (sp *TsmSecurityParameters) agentParameters()                    {}

func (sp *TsmSecurityParameters) Valid() bool { return sp != nil }

// ValidateSecrets always succeeds; the secrets live in the (D)TLS
// configuration.
func (sp *TsmSecurityParameters) ValidateSecrets() error { return nil }

func (sp *TsmSecurityParameters) SafeString() string {
	return fmt.Sprintf("SecurityName:%s, ContextName:%s", sp.SecurityName, sp.ContextName)
}

// InitPacket marks the packet authPriv, which is what the transport
// provides (RFC 5591 §4.2).
func (sp *TsmSecurityParameters) InitPacket(packet *V3Packet) error {
	packet.MsgID = nextMsgID()
	packet.MsgFlags = AuthPriv | Reportable
	packet.SecurityModel = TransportSecurityModel
	packet.Usm = UsmHeader{}
	if packet.MsgMaxSize == 0 {
		packet.MsgMaxSize = rxBufSize
	}
	if packet.ContextName == "" {
		packet.ContextName = sp.ContextName
	}
	if packet.ContextEngineID == "" {
		packet.ContextEngineID = sp.ContextEngineID
	}
	return nil
}

// HasCachedKeys is true; there are no keys to derive.
func (sp *TsmSecurityParameters) HasCachedKeys() bool { return true }

func (sp *TsmSecurityParameters) Encode(packet *V3Packet) ([]byte, error) {
	if packet.SecurityModel != TransportSecurityModel {
		return nil, fmt.Errorf("tsm: packet uses security model %s", packet.SecurityModel)
	}
	return packet.MarshalMsg()
}

func (sp *TsmSecurityParameters) Decode(data []byte) (*V3Packet, error) {
	packet, err := unmarshalV3(data, sp.Logger)
	if err != nil {
		return nil, err
	}
	if packet.SecurityModel != TransportSecurityModel {
		return nil, fmt.Errorf("tsm: reply uses security model %s", packet.SecurityModel)
	}
	if packet.encryptedPDU != nil {
		return nil, errors.New("tsm: reply carries an encrypted scoped pdu")
	}
	sp.Logger.Printf("TSM: decoded reply from session, securityName %q", sp.SecurityName)
	return packet, nil
}

// ValidateIncomingPacket accepts any TSM reply; it arrived over the
// authenticated session.
func (sp *TsmSecurityParameters) ValidateIncomingPacket(packet *V3Packet, _ []byte) bool {
	return packet.SecurityModel == TransportSecurityModel
}

func (sp *TsmSecurityParameters) UpdateDiscoveryValues(*V3Packet) {}

func (sp *TsmSecurityParameters) Reset() {}

func (sp *TsmSecurityParameters) discoveryState() (string, uint32, uint32, bool) {
	return sp.ContextEngineID, 0, 0, false
}
