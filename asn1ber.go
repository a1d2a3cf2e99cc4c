// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import "fmt"

// SnmpVersion is the msgVersion field of a message.
type SnmpVersion uint8

const (
	Version1  SnmpVersion = 0x0
	Version2c SnmpVersion = 0x1
	Version3  SnmpVersion = 0x3
)

func (s SnmpVersion) String() string {
	switch s {
	case Version1:
		return "1"
	case Version2c:
		return "2c"
	case Version3:
		return "3"
	}
	return fmt.Sprintf("SnmpVersion(%d)", uint8(s))
}

// ParseVersion accepts "1", "2c" and "3" (and "v1", "v2c", "v3").
func ParseVersion(s string) (SnmpVersion, error) {
	switch s {
	case "1", "v1":
		return Version1, nil
	case "2c", "v2c", "2":
		return Version2c, nil
	case "3", "v3":
		return Version3, nil
	}
	return 0, newError(KindConfiguration, "parse version", ErrUnsupportedVersion, fmt.Errorf("%q", s))
}

// Asn1BER is the type of an SNMP value.
type Asn1BER byte

const (
	EndOfContents     Asn1BER = 0x00
	UnknownType       Asn1BER = 0x00
	Boolean           Asn1BER = 0x01
	Integer           Asn1BER = 0x02
	BitString         Asn1BER = 0x03
	OctetString       Asn1BER = 0x04
	Null              Asn1BER = 0x05
	ObjectIdentifier  Asn1BER = 0x06
	ObjectDescription Asn1BER = 0x07
	IPAddress         Asn1BER = 0x40
	Counter32         Asn1BER = 0x41
	Gauge32           Asn1BER = 0x42
	TimeTicks         Asn1BER = 0x43
	Opaque            Asn1BER = 0x44
	NsapAddress       Asn1BER = 0x45
	Counter64         Asn1BER = 0x46
	Uinteger32        Asn1BER = 0x47
	NoSuchObject      Asn1BER = 0x80
	NoSuchInstance    Asn1BER = 0x81
	EndOfMibView      Asn1BER = 0x82
)

func (a Asn1BER) String() string {
	switch a {
	case UnknownType:
		return "UnknownType"
	case Boolean:
		return "Boolean"
	case Integer:
		return "Integer"
	case BitString:
		return "BitString"
	case OctetString:
		return "OctetString"
	case Null:
		return "Null"
	case ObjectIdentifier:
		return "ObjectIdentifier"
	case ObjectDescription:
		return "ObjectDescription"
	case IPAddress:
		return "IPAddress"
	case Counter32:
		return "Counter32"
	case Gauge32:
		return "Gauge32"
	case TimeTicks:
		return "TimeTicks"
	case Opaque:
		return "Opaque"
	case NsapAddress:
		return "NsapAddress"
	case Counter64:
		return "Counter64"
	case Uinteger32:
		return "Uinteger32"
	case NoSuchObject:
		return "NoSuchObject"
	case NoSuchInstance:
		return "NoSuchInstance"
	case EndOfMibView:
		return "EndOfMibView"
	}
	return fmt.Sprintf("Asn1BER(%#x)", byte(a))
}

// PDUType is the tag of a PDU.
type PDUType byte

const (
	Sequence       PDUType = 0x30
	GetRequest     PDUType = 0xa0
	GetNextRequest PDUType = 0xa1
	GetResponse    PDUType = 0xa2
	SetRequest     PDUType = 0xa3
	Trap           PDUType = 0xa4 // v1
	GetBulkRequest PDUType = 0xa5
	InformRequest  PDUType = 0xa6
	SNMPv2Trap     PDUType = 0xa7 // v2c, v3
	Report         PDUType = 0xa8 // v3
)

func (p PDUType) String() string {
	switch p {
	case Sequence:
		return "Sequence"
	case GetRequest:
		return "GetRequest"
	case GetNextRequest:
		return "GetNextRequest"
	case GetResponse:
		return "GetResponse"
	case SetRequest:
		return "SetRequest"
	case Trap:
		return "Trap"
	case GetBulkRequest:
		return "GetBulkRequest"
	case InformRequest:
		return "InformRequest"
	case SNMPv2Trap:
		return "SNMPv2Trap"
	case Report:
		return "Report"
	}
	return fmt.Sprintf("PDUType(%#x)", byte(p))
}

// SnmpV3MsgFlags is the msgFlags octet of a v3 message.
type SnmpV3MsgFlags uint8

const (
	NoAuthNoPriv SnmpV3MsgFlags = 0x0
	AuthNoPriv   SnmpV3MsgFlags = 0x1
	AuthPriv     SnmpV3MsgFlags = 0x3
	Reportable   SnmpV3MsgFlags = 0x4
)

func (f SnmpV3MsgFlags) String() string {
	level := "NoAuthNoPriv"
	switch f & AuthPriv {
	case AuthNoPriv:
		level = "AuthNoPriv"
	case AuthPriv:
		level = "AuthPriv"
	}
	if f&Reportable != 0 {
		return level + "|Reportable"
	}
	return level
}

// SnmpV3SecurityModel is the msgSecurityModel of a v3 message.
type SnmpV3SecurityModel uint8

const (
	UserSecurityModel      SnmpV3SecurityModel = 3
	TransportSecurityModel SnmpV3SecurityModel = 4
)

func (m SnmpV3SecurityModel) String() string {
	switch m {
	case UserSecurityModel:
		return "USM"
	case TransportSecurityModel:
		return "TSM"
	}
	return fmt.Sprintf("SnmpV3SecurityModel(%d)", uint8(m))
}
