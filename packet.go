// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import "fmt"

// Packet is a decoded SNMP message: a *CommunityPacket for v1 and v2c, or a
// *V3Packet.
type Packet interface {
	Version() SnmpVersion
	PDU() *Pdu
	SafeString() string
	isPacket()
}

// CommunityPacket is a v1 or v2c message.
type CommunityPacket struct {
	version   SnmpVersion
	Community string
	Pdu       *Pdu
}

// NewCommunityPacket wraps pdu for version with the given community.
func NewCommunityPacket(version SnmpVersion, community string, pdu *Pdu) *CommunityPacket {
	return &CommunityPacket{version: version, Community: community, Pdu: pdu}
}

func (p *CommunityPacket) Version() SnmpVersion { return p.version }
func (p *CommunityPacket) PDU() *Pdu            { return p.Pdu }
func (p *CommunityPacket) isPacket()            {}

// SafeString formats the packet for logging without the community.
func (p *CommunityPacket) SafeString() string {
	return fmt.Sprintf("Version:%s, PDUType:%s, RequestID:%d, Error:%s, ErrorIndex:%d, Variables:%v",
		p.version, p.Pdu.Type, p.Pdu.RequestID, p.Pdu.ErrorStatus, p.Pdu.ErrorIndex, p.Pdu.Variables)
}

// UsmHeader is the msgSecurityParameters of a USM message (RFC 3414 §2.4).
type UsmHeader struct {
	AuthoritativeEngineID    string
	AuthoritativeEngineBoots uint32
	AuthoritativeEngineTime  uint32
	UserName                 string
	AuthenticationParameters []byte
	PrivacyParameters        []byte
}

// V3Packet is a v3 message. For the transport security model Usm is unused
// and the security parameters are empty on the wire.
type V3Packet struct {
	MsgID           uint32
	MsgMaxSize      uint32
	MsgFlags        SnmpV3MsgFlags
	SecurityModel   SnmpV3SecurityModel
	Usm             UsmHeader
	ContextEngineID string
	ContextName     string
	Pdu             *Pdu

	// encryptedPDU holds the ciphertext of the scoped PDU of a received
	// message until the security context decrypts it.
	encryptedPDU []byte
}

// NewV3Packet wraps pdu in a scoped PDU. The security context fills in the
// header in InitPacket.
func NewV3Packet(pdu *Pdu, contextName string) *V3Packet {
	return &V3Packet{
		MsgMaxSize:  rxBufSize,
		ContextName: contextName,
		Pdu:         pdu,
	}
}

func (p *V3Packet) Version() SnmpVersion { return Version3 }
func (p *V3Packet) PDU() *Pdu            { return p.Pdu }
func (p *V3Packet) isPacket()            {}

// SafeString formats the packet for logging without keys or digests.
func (p *V3Packet) SafeString() string {
	pdu := p.Pdu
	if pdu == nil {
		pdu = &Pdu{}
	}
	return fmt.Sprintf("Version:3, MsgID:%d, MsgFlags:%s, SecurityModel:%s, EngineID:%x, Boots:%d, Time:%d, UserName:%s, ContextEngineID:%x, ContextName:%s, PDUType:%s, RequestID:%d, Error:%s, Variables:%v",
		p.MsgID, p.MsgFlags, p.SecurityModel,
		p.Usm.AuthoritativeEngineID, p.Usm.AuthoritativeEngineBoots, p.Usm.AuthoritativeEngineTime, p.Usm.UserName,
		p.ContextEngineID, p.ContextName,
		pdu.Type, pdu.RequestID, pdu.ErrorStatus, pdu.Variables)
}
