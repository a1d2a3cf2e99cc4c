// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"bytes"
	"errors"
	"fmt"
	"math"
)

//
// BER encoding and decoding of SNMP messages.
// See http://www.rane.com/note161.html for a succinct description of the
// SNMP protocol.
//

const rxBufSize = 65535 // max size of IPv4 & IPv6 packet

// -- Marshalling Logic --------------------------------------------------------

// MarshalMsg encodes a v1 or v2c message, ready for sending across the wire.
func (p *CommunityPacket) MarshalMsg() ([]byte, error) {
	if p.Pdu == nil {
		return nil, errors.New("marshal: packet has no pdu")
	}
	buf := new(bytes.Buffer)

	// version
	buf.Write([]byte{byte(Integer), 1, byte(p.version)})

	// community
	if err := marshalTLV(buf, byte(OctetString), []byte(p.Community)); err != nil {
		return nil, err
	}

	// pdu
	pdu, err := marshalPDU(p.Pdu)
	if err != nil {
		return nil, err
	}
	buf.Write(pdu)

	msg := new(bytes.Buffer)
	if err := marshalTLV(msg, byte(Sequence), buf.Bytes()); err != nil {
		return nil, err
	}
	return msg.Bytes(), nil
}

// marshalInteger writes an INTEGER TLV for v.
func marshalInteger(buf *bytes.Buffer, v int) error {
	b, err := marshalInt32(v)
	if err != nil {
		return err
	}
	return marshalTLV(buf, byte(Integer), b)
}

// marshalPDU encodes a PDU. GetBulkRequest carries non-repeaters and
// max-repetitions where other PDUs carry error status and index.
func marshalPDU(pdu *Pdu) ([]byte, error) {
	buf := new(bytes.Buffer)

	if err := marshalInteger(buf, int(pdu.RequestID)); err != nil {
		return nil, fmt.Errorf("marshalPDU: request id: %w", err)
	}

	if pdu.Type == GetBulkRequest {
		if err := marshalInteger(buf, pdu.NonRepeaters); err != nil {
			return nil, fmt.Errorf("marshalPDU: non repeaters: %w", err)
		}
		if pdu.MaxRepetitions > math.MaxInt32 {
			return nil, fmt.Errorf("marshalPDU: max repetitions %d out of range", pdu.MaxRepetitions)
		}
		if err := marshalInteger(buf, int(pdu.MaxRepetitions)); err != nil {
			return nil, fmt.Errorf("marshalPDU: max repetitions: %w", err)
		}
	} else {
		if err := marshalInteger(buf, int(pdu.ErrorStatus)); err != nil {
			return nil, fmt.Errorf("marshalPDU: error status: %w", err)
		}
		if err := marshalInteger(buf, pdu.ErrorIndex); err != nil {
			return nil, fmt.Errorf("marshalPDU: error index: %w", err)
		}
	}

	vbl, err := marshalVBL(pdu.Variables)
	if err != nil {
		return nil, fmt.Errorf("marshalPDU: unable to marshal varbind list: %w", err)
	}
	buf.Write(vbl)

	out := new(bytes.Buffer)
	if err := marshalTLV(out, byte(pdu.Type), buf.Bytes()); err != nil {
		return nil, fmt.Errorf("marshalPDU: %w", err)
	}
	return out.Bytes(), nil
}

// marshal a varbind list
func marshalVBL(vbs []Vb) ([]byte, error) {
	vblBuf := new(bytes.Buffer)
	for _, vb := range vbs {
		b, err := marshalVarbind(vb)
		if err != nil {
			return nil, err
		}
		vblBuf.Write(b)
	}

	out := new(bytes.Buffer)
	if err := marshalTLV(out, byte(Sequence), vblBuf.Bytes()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// marshalVarbind encodes a variable binding:
//
//	Sequence {
//	  ObjectIdentifier (vb.Name)
//	  <Value TLV>      (vb.Type + vb.Value)
//	}
func marshalVarbind(vb Vb) ([]byte, error) {
	oid, err := marshalObjectIdentifier(vb.Name)
	if err != nil {
		return nil, err
	}
	tmpBuf := new(bytes.Buffer)
	if err = marshalTLV(tmpBuf, byte(ObjectIdentifier), oid); err != nil {
		return nil, err
	}
	if err = marshalValue(tmpBuf, vb); err != nil {
		return nil, fmt.Errorf("%s: %w", vb.Name, err)
	}

	out := new(bytes.Buffer)
	if err = marshalTLV(out, byte(Sequence), tmpBuf.Bytes()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// marshalScopedPDU encodes contextEngineID, contextName and the PDU.
func (p *V3Packet) marshalScopedPDU() ([]byte, error) {
	if p.Pdu == nil {
		return nil, errors.New("marshal: packet has no pdu")
	}
	buf := new(bytes.Buffer)
	if err := marshalTLV(buf, byte(OctetString), []byte(p.ContextEngineID)); err != nil {
		return nil, err
	}
	if err := marshalTLV(buf, byte(OctetString), []byte(p.ContextName)); err != nil {
		return nil, err
	}
	pdu, err := marshalPDU(p.Pdu)
	if err != nil {
		return nil, err
	}
	buf.Write(pdu)

	out := new(bytes.Buffer)
	if err := marshalTLV(out, byte(Sequence), buf.Bytes()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// marshalUsmHeader encodes the UsmSecurityParameters sequence.
func (p *V3Packet) marshalUsmHeader() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := marshalTLV(buf, byte(OctetString), []byte(p.Usm.AuthoritativeEngineID)); err != nil {
		return nil, err
	}
	if err := marshalTLV(buf, byte(Integer), marshalUint64(uint64(p.Usm.AuthoritativeEngineBoots))); err != nil {
		return nil, err
	}
	if err := marshalTLV(buf, byte(Integer), marshalUint64(uint64(p.Usm.AuthoritativeEngineTime))); err != nil {
		return nil, err
	}
	if err := marshalTLV(buf, byte(OctetString), []byte(p.Usm.UserName)); err != nil {
		return nil, err
	}
	if err := marshalTLV(buf, byte(OctetString), p.Usm.AuthenticationParameters); err != nil {
		return nil, err
	}
	if err := marshalTLV(buf, byte(OctetString), p.Usm.PrivacyParameters); err != nil {
		return nil, err
	}

	out := new(bytes.Buffer)
	if err := marshalTLV(out, byte(Sequence), buf.Bytes()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// marshalV3 assembles a v3 message from already encoded security parameters
// and scoped PDU. If encrypted is set, scoped is wrapped in an OCTET STRING.
func (p *V3Packet) marshalV3(securityParameters, scoped []byte, encrypted bool) ([]byte, error) {
	buf := new(bytes.Buffer)

	// version
	buf.Write([]byte{byte(Integer), 1, byte(Version3)})

	// msgGlobalData
	global := new(bytes.Buffer)
	if err := marshalTLV(global, byte(Integer), marshalUint64(uint64(p.MsgID))); err != nil {
		return nil, err
	}
	if err := marshalTLV(global, byte(Integer), marshalUint64(uint64(p.MsgMaxSize))); err != nil {
		return nil, err
	}
	if err := marshalTLV(global, byte(OctetString), []byte{byte(p.MsgFlags)}); err != nil {
		return nil, err
	}
	if err := marshalTLV(global, byte(Integer), []byte{byte(p.SecurityModel)}); err != nil {
		return nil, err
	}
	if err := marshalTLV(buf, byte(Sequence), global.Bytes()); err != nil {
		return nil, err
	}

	// msgSecurityParameters
	if err := marshalTLV(buf, byte(OctetString), securityParameters); err != nil {
		return nil, err
	}

	// msgData
	if encrypted {
		if err := marshalTLV(buf, byte(OctetString), scoped); err != nil {
			return nil, err
		}
	} else {
		buf.Write(scoped)
	}

	msg := new(bytes.Buffer)
	if err := marshalTLV(msg, byte(Sequence), buf.Bytes()); err != nil {
		return nil, err
	}
	return msg.Bytes(), nil
}

// MarshalMsg encodes the packet in plaintext, without computing a digest.
// Authenticated and encrypted messages are produced by the security
// context's Encode.
func (p *V3Packet) MarshalMsg() ([]byte, error) {
	var secParams []byte
	if p.SecurityModel == UserSecurityModel {
		var err error
		if secParams, err = p.marshalUsmHeader(); err != nil {
			return nil, err
		}
	}
	scoped, err := p.marshalScopedPDU()
	if err != nil {
		return nil, err
	}
	return p.marshalV3(secParams, scoped, false)
}

// -- Unmarshalling Logic ------------------------------------------------------

// unmarshalVersion checks the outer sequence and returns the message version
// and the offset of the field after it.
func unmarshalVersion(data []byte, logger Logger) (SnmpVersion, int, error) {
	if len(data) < 2 {
		return 0, 0, errors.New("cannot unmarshal empty packet")
	}
	if PDUType(data[0]) != Sequence {
		return 0, 0, fmt.Errorf("invalid packet header %#x", data[0])
	}

	length, cursor, err := parseLength(data)
	if err != nil {
		return 0, 0, err
	}
	if len(data) != length {
		return 0, 0, fmt.Errorf("error verifying packet sanity: got %d expected %d", len(data), length)
	}
	logger.Printf("Packet sanity verified, we got all the bytes (%d)", length)

	rawVersion, count, err := parseRawField(logger, data[cursor:], "version")
	if err != nil {
		return 0, 0, fmt.Errorf("error parsing SNMP packet version: %w", err)
	}
	cursor += count
	if cursor >= len(data) {
		return 0, 0, fmt.Errorf("error parsing SNMP packet, packet length %d cursor %d", len(data), cursor)
	}

	version, ok := rawVersion.(int)
	if !ok || version < 0 || version > math.MaxUint8 {
		return 0, 0, fmt.Errorf("invalid version %v", rawVersion)
	}
	return SnmpVersion(version), cursor, nil
}

// DecodeMessage decodes a message of any version without security
// processing. The Pdu of an encrypted v3 message is nil.
func DecodeMessage(data []byte, logger Logger) (Packet, error) {
	version, _, err := unmarshalVersion(data, logger)
	if err != nil {
		return nil, err
	}
	switch version {
	case Version1, Version2c:
		return UnmarshalCommunityPacket(data, logger)
	case Version3:
		return unmarshalV3(data, logger)
	}
	return nil, fmt.Errorf("unsupported version %s", version)
}

// UnmarshalCommunityPacket decodes a v1 or v2c message.
func UnmarshalCommunityPacket(data []byte, logger Logger) (*CommunityPacket, error) {
	version, cursor, err := unmarshalVersion(data, logger)
	if err != nil {
		return nil, err
	}
	if version != Version1 && version != Version2c {
		return nil, fmt.Errorf("not a community message: version %s", version)
	}

	rawCommunity, count, err := parseRawField(logger, data[cursor:], "community")
	if err != nil {
		return nil, fmt.Errorf("error parsing community string: %w", err)
	}
	cursor += count
	community, ok := rawCommunity.(string)
	if !ok {
		return nil, fmt.Errorf("community is %T, not an octet string", rawCommunity)
	}
	if cursor >= len(data) {
		return nil, fmt.Errorf("error parsing SNMP packet, packet length %d cursor %d", len(data), cursor)
	}

	pdu, _, err := unmarshalPDU(data[cursor:], logger)
	if err != nil {
		return nil, err
	}
	return &CommunityPacket{version: version, Community: community, Pdu: pdu}, nil
}

// unmarshalPDU decodes the PDU at the start of data and returns it with the
// number of bytes consumed.
func unmarshalPDU(data []byte, logger Logger) (*Pdu, int, error) {
	if len(data) == 0 {
		return nil, 0, errors.New("cannot unmarshal empty pdu")
	}
	pdu := &Pdu{Type: PDUType(data[0])}
	switch pdu.Type {
	case GetResponse, GetNextRequest, GetBulkRequest, Report, SNMPv2Trap, GetRequest, SetRequest, InformRequest:
	default:
		return nil, 0, fmt.Errorf("unknown PDUType %#x", data[0])
	}
	logger.Printf("unmarshalPDU: PDUType %s", pdu.Type)

	length, cursor, err := parseLength(data)
	if err != nil {
		return nil, 0, err
	}
	if length > len(data) {
		return nil, 0, fmt.Errorf("error verifying PDU sanity: got %d expected %d", len(data), length)
	}
	body := data[:length]

	rawRequestID, count, err := parseRawField(logger, body[cursor:], "request id")
	if err != nil {
		return nil, 0, fmt.Errorf("error parsing SNMP packet request ID: %w", err)
	}
	cursor += count
	requestID, ok := rawRequestID.(int)
	if !ok || requestID < math.MinInt32 || requestID > math.MaxInt32 {
		return nil, 0, fmt.Errorf("invalid request id %v", rawRequestID)
	}
	pdu.RequestID = int32(requestID)

	// error-status / non-repeaters, then error-index / max-repetitions
	rawFirst, count, err := parseRawField(logger, body[cursor:], "error status")
	if err != nil {
		return nil, 0, fmt.Errorf("error parsing SNMP packet error status: %w", err)
	}
	cursor += count
	rawSecond, count, err := parseRawField(logger, body[cursor:], "error index")
	if err != nil {
		return nil, 0, fmt.Errorf("error parsing SNMP packet error index: %w", err)
	}
	cursor += count
	first, ok1 := rawFirst.(int)
	second, ok2 := rawSecond.(int)
	if !ok1 || !ok2 {
		return nil, 0, errors.New("error status and index must be integers")
	}

	if pdu.Type == GetBulkRequest {
		pdu.NonRepeaters = first
		pdu.MaxRepetitions = uint32(second & 0x7FFFFFFF)
	} else {
		if first < 0 || first > math.MaxUint8 {
			return nil, 0, fmt.Errorf("invalid error status %d", first)
		}
		pdu.ErrorStatus = SNMPError(first)
		pdu.ErrorIndex = second
	}

	if cursor >= len(body) {
		return nil, 0, fmt.Errorf("missing varbind list, pdu length %d cursor %d", len(body), cursor)
	}
	if pdu.Variables, err = unmarshalVBL(body[cursor:], logger); err != nil {
		return nil, 0, err
	}
	return pdu, length, nil
}

// unmarshal a varbind list
func unmarshalVBL(data []byte, logger Logger) ([]Vb, error) {
	if data[0] != byte(Sequence) {
		return nil, fmt.Errorf("expected a sequence when unmarshalling a VBL, got %#x", data[0])
	}
	vblLength, cursor, err := parseLength(data)
	if err != nil {
		return nil, err
	}
	if vblLength != len(data) {
		return nil, fmt.Errorf("error verifying: packet length %d vbl length %d", len(data), vblLength)
	}
	logger.Printf("vblLength: %d", vblLength)

	vbs := make([]Vb, 0, 5)
	for cursor < vblLength {
		if data[cursor] != byte(Sequence) {
			return nil, fmt.Errorf("expected a sequence when unmarshalling a VB, got %#x", data[cursor])
		}
		vbLength, hdr, err := parseLength(data[cursor:])
		if err != nil {
			return nil, err
		}
		if cursor+vbLength > vblLength {
			return nil, fmt.Errorf("varbind overruns list: cursor %d length %d", cursor, vbLength)
		}
		vb := data[cursor+hdr : cursor+vbLength]
		cursor += vbLength

		rawOid, oidLength, err := parseRawField(logger, vb, "OID")
		if err != nil {
			return nil, fmt.Errorf("error parsing OID Value: %w", err)
		}
		oid, ok := rawOid.(OID)
		if !ok {
			return nil, fmt.Errorf("varbind name is %T, not an OID", rawOid)
		}
		if oidLength >= len(vb) {
			return nil, fmt.Errorf("varbind %s has no value", oid)
		}

		typ, value, _, err := decodeValue(logger, vb[oidLength:])
		if err != nil {
			return nil, fmt.Errorf("error decoding value of %s: %w", oid, err)
		}
		vbs = append(vbs, Vb{Name: oid, Type: typ, Value: value})
	}
	return vbs, nil
}

// unmarshalV3 decodes the header of a v3 message. The scoped PDU is decoded
// when it is plaintext; an encrypted one is kept in encryptedPDU.
func unmarshalV3(data []byte, logger Logger) (*V3Packet, error) {
	version, cursor, err := unmarshalVersion(data, logger)
	if err != nil {
		return nil, err
	}
	if version != Version3 {
		return nil, fmt.Errorf("not a v3 message: version %s", version)
	}
	p := &V3Packet{}

	// msgGlobalData
	if data[cursor] != byte(Sequence) {
		return nil, fmt.Errorf("expected msgGlobalData sequence, got %#x", data[cursor])
	}
	globalLength, hdr, err := parseLength(data[cursor:])
	if err != nil {
		return nil, err
	}
	if cursor+globalLength > len(data) {
		return nil, errors.New("truncated msgGlobalData")
	}
	global := data[cursor+hdr : cursor+globalLength]
	cursor += globalLength

	gc := 0
	rawMsgID, count, err := parseRawField(logger, global[gc:], "msgID")
	if err != nil {
		return nil, err
	}
	gc += count
	rawMaxSize, count, err := parseRawField(logger, global[gc:], "msgMaxSize")
	if err != nil {
		return nil, err
	}
	gc += count
	rawFlags, count, err := parseRawField(logger, global[gc:], "msgFlags")
	if err != nil {
		return nil, err
	}
	gc += count
	rawModel, _, err := parseRawField(logger, global[gc:], "msgSecurityModel")
	if err != nil {
		return nil, err
	}

	msgID, ok1 := rawMsgID.(int)
	maxSize, ok2 := rawMaxSize.(int)
	flags, ok3 := rawFlags.(string)
	model, ok4 := rawModel.(int)
	if !ok1 || !ok2 || !ok3 || !ok4 || len(flags) != 1 || msgID < 0 || maxSize < 0 {
		return nil, errors.New("malformed msgGlobalData")
	}
	p.MsgID = uint32(msgID)
	p.MsgMaxSize = uint32(maxSize)
	p.MsgFlags = SnmpV3MsgFlags(flags[0])
	p.SecurityModel = SnmpV3SecurityModel(model)

	// msgSecurityParameters
	rawSecParams, count, err := parseRawField(logger, data[cursor:], "msgSecurityParameters")
	if err != nil {
		return nil, err
	}
	cursor += count
	secParams, ok := rawSecParams.(string)
	if !ok {
		return nil, errors.New("msgSecurityParameters is not an octet string")
	}
	if p.SecurityModel == UserSecurityModel {
		if err := p.unmarshalUsmHeader([]byte(secParams), logger); err != nil {
			return nil, err
		}
	}

	// msgData
	if cursor >= len(data) {
		return nil, errors.New("missing msgData")
	}
	switch data[cursor] {
	case byte(OctetString):
		raw, _, err := parseRawField(logger, data[cursor:], "encryptedPDU")
		if err != nil {
			return nil, err
		}
		p.encryptedPDU = []byte(raw.(string))
	case byte(Sequence):
		if err := p.unmarshalScopedPDU(data[cursor:], logger); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unexpected msgData tag %#x", data[cursor])
	}
	return p, nil
}

func (p *V3Packet) unmarshalUsmHeader(data []byte, logger Logger) error {
	if len(data) == 0 || data[0] != byte(Sequence) {
		return errors.New("expected UsmSecurityParameters sequence")
	}
	length, cursor, err := parseLength(data)
	if err != nil {
		return err
	}
	if length != len(data) {
		return fmt.Errorf("UsmSecurityParameters length %d, have %d", length, len(data))
	}

	fields := make([]any, 6)
	names := [...]string{"msgAuthoritativeEngineID", "msgAuthoritativeEngineBoots",
		"msgAuthoritativeEngineTime", "msgUserName", "msgAuthenticationParameters", "msgPrivacyParameters"}
	for i, name := range names {
		if cursor >= len(data) {
			return fmt.Errorf("truncated UsmSecurityParameters at %s", name)
		}
		v, count, err := parseRawField(logger, data[cursor:], name)
		if err != nil {
			return err
		}
		fields[i] = v
		cursor += count
	}

	engineID, ok1 := fields[0].(string)
	boots, ok2 := fields[1].(int)
	engineTime, ok3 := fields[2].(int)
	user, ok4 := fields[3].(string)
	authParams, ok5 := fields[4].(string)
	privParams, ok6 := fields[5].(string)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 || boots < 0 || engineTime < 0 {
		return errors.New("malformed UsmSecurityParameters")
	}
	p.Usm = UsmHeader{
		AuthoritativeEngineID:    engineID,
		AuthoritativeEngineBoots: uint32(boots),
		AuthoritativeEngineTime:  uint32(engineTime),
		UserName:                 user,
		AuthenticationParameters: []byte(authParams),
		PrivacyParameters:        []byte(privParams),
	}
	return nil
}

// unmarshalScopedPDU decodes a plaintext scoped PDU. Trailing bytes after
// the sequence, such as DES padding, are ignored.
func (p *V3Packet) unmarshalScopedPDU(data []byte, logger Logger) error {
	if len(data) == 0 || data[0] != byte(Sequence) {
		return errors.New("expected scopedPDU sequence")
	}
	length, cursor, err := parseLength(data)
	if err != nil {
		return err
	}
	if length > len(data) {
		return fmt.Errorf("scopedPDU length %d, have %d", length, len(data))
	}
	data = data[:length]

	rawEngineID, count, err := parseRawField(logger, data[cursor:], "contextEngineID")
	if err != nil {
		return err
	}
	cursor += count
	rawName, count, err := parseRawField(logger, data[cursor:], "contextName")
	if err != nil {
		return err
	}
	cursor += count
	engineID, ok1 := rawEngineID.(string)
	name, ok2 := rawName.(string)
	if !ok1 || !ok2 {
		return errors.New("malformed scopedPDU")
	}
	if cursor >= len(data) {
		return errors.New("scopedPDU has no pdu")
	}
	p.ContextEngineID = engineID
	p.ContextName = name
	p.Pdu, _, err = unmarshalPDU(data[cursor:], logger)
	return err
}

// locateAuthParams returns the offset and length of the
// msgAuthenticationParameters content within an encoded USM message.
func locateAuthParams(msg []byte) (offset, length int, err error) {
	_, cursor, err := parseLength(msg)
	if err != nil {
		return 0, 0, err
	}
	// skip msgVersion and msgGlobalData
	for range 2 {
		if cursor >= len(msg) {
			return 0, 0, errors.New("truncated message")
		}
		l, _, err := parseLength(msg[cursor:])
		if err != nil {
			return 0, 0, err
		}
		cursor += l
	}
	// enter the msgSecurityParameters octet string and its sequence
	for range 2 {
		if cursor >= len(msg) {
			return 0, 0, errors.New("truncated message")
		}
		_, hdr, err := parseLength(msg[cursor:])
		if err != nil {
			return 0, 0, err
		}
		cursor += hdr
	}
	// skip engine id, boots, time and user name
	for range 4 {
		if cursor >= len(msg) {
			return 0, 0, errors.New("truncated security parameters")
		}
		l, _, err := parseLength(msg[cursor:])
		if err != nil {
			return 0, 0, err
		}
		cursor += l
	}
	if cursor >= len(msg) || msg[cursor] != byte(OctetString) {
		return 0, 0, errors.New("msgAuthenticationParameters not found")
	}
	l, hdr, err := parseLength(msg[cursor:])
	if err != nil {
		return 0, 0, err
	}
	if cursor+l > len(msg) {
		return 0, 0, errors.New("truncated msgAuthenticationParameters")
	}
	return cursor + hdr, l - hdr, nil
}
