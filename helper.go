// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net/netip"
)

// -- BER lengths --------------------------------------------------------------

// marshalLength builds the BER length octets for length.
//
// Short form: one octet, bit 8 clear, for lengths 0..127.
// Long form: first octet has bit 8 set and bits 7-1 give the number of
// length octets that follow, most significant first.
func marshalLength(length int) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("length must not be negative: %d", length)
	}
	if length < 0x80 {
		return []byte{byte(length)}, nil
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(length))
	i := 0
	for i < len(buf)-1 && buf[i] == 0 {
		i++
	}
	return append([]byte{0x80 | byte(len(buf)-i)}, buf[i:]...), nil
}

// parseLength parses the tag and length octets at the start of data. It
// returns the total length of the TLV (tag, length octets and content) and
// the offset of the content.
//
// The indefinite form (0x80) is rejected; RFC 3417 §8 prohibits it in SNMP.
func parseLength(data []byte) (length int, cursor int, err error) {
	if len(data) < 2 {
		return 0, 0, fmt.Errorf("truncated tlv header: % x", data)
	}
	if data[1] < 0x80 {
		return int(data[1]) + 2, 2, nil
	}

	numOctets := int(data[1] & 0x7f)
	switch {
	case numOctets == 0:
		return 0, 0, errors.New("indefinite length not supported")
	case numOctets > 4:
		return 0, 0, fmt.Errorf("length field too long: %d octets", numOctets)
	case len(data) < 2+numOctets:
		return 0, 0, fmt.Errorf("truncated length octets: want %d, have %d", numOctets, len(data)-2)
	}

	var l uint64
	for _, b := range data[2 : 2+numOctets] {
		l = l<<8 | uint64(b)
	}
	if l > math.MaxInt32 {
		return 0, 0, fmt.Errorf("length %d out of range", l)
	}
	cursor = 2 + numOctets
	return int(l) + cursor, cursor, nil
}

// marshalTLV writes tag, length and value to buf.
func marshalTLV(buf *bytes.Buffer, tag byte, value []byte) error {
	l, err := marshalLength(len(value))
	if err != nil {
		return err
	}
	buf.WriteByte(tag)
	buf.Write(l)
	buf.Write(value)
	return nil
}

// -- Integers -----------------------------------------------------------------

// marshalInt64 returns the minimal two's complement encoding of v.
func marshalInt64(v int64) []byte {
	n := 1
	for i := v; i > 127 || i < -128; i >>= 8 {
		n++
	}
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

// marshalInt32 encodes an Integer32: -2^31 to 2^31-1 inclusive.
func marshalInt32(value int) ([]byte, error) {
	if value < math.MinInt32 || value > math.MaxInt32 {
		return nil, fmt.Errorf("unable to marshal %d as Integer32", value)
	}
	return marshalInt64(int64(value)), nil
}

// marshalUint64 encodes v as a non-negative BER integer, adding a leading
// zero octet when the high bit would otherwise be set.
func marshalUint64(v uint64) []byte {
	var buf [9]byte
	binary.BigEndian.PutUint64(buf[1:], v)
	i := 0
	for i < 8 && buf[i] == 0 && buf[i+1]&0x80 == 0 {
		i++
	}
	return buf[i:]
}

// marshalUint32 encodes Counter32, Gauge32, TimeTicks and Unsigned32 values.
func marshalUint32(v any) ([]byte, error) {
	var source uint64
	switch val := v.(type) {
	case uint32:
		source = uint64(val)
	case uint:
		source = uint64(val)
	case uint16:
		source = uint64(val)
	case uint8:
		source = uint64(val)
	case int:
		if val < 0 {
			return nil, fmt.Errorf("unable to marshal negative %d as uint32", val)
		}
		source = uint64(val)
	default:
		return nil, fmt.Errorf("unable to marshal %T to uint32", v)
	}
	if source > math.MaxUint32 {
		return nil, fmt.Errorf("unable to marshal %d as uint32", source)
	}
	return marshalUint64(source), nil
}

func parseInt64(data []byte) (int64, error) {
	if len(data) == 0 {
		return 0, errors.New("empty integer")
	}
	if len(data) > 8 {
		return 0, errors.New("integer too large")
	}
	var ret int64
	for _, b := range data {
		ret = ret<<8 | int64(b)
	}
	// sign extend
	shift := 64 - uint(len(data))*8
	ret <<= shift
	ret >>= shift
	return ret, nil
}

func parseInt(data []byte) (int, error) {
	ret64, err := parseInt64(data)
	if err != nil {
		return 0, err
	}
	if ret64 != int64(int(ret64)) {
		return 0, errors.New("integer too large")
	}
	return int(ret64), nil
}

func parseUint64(data []byte) (uint64, error) {
	if len(data) > 9 || (len(data) == 9 && data[0] != 0) {
		return 0, errors.New("integer too large")
	}
	var ret uint64
	for _, b := range data {
		ret = ret<<8 | uint64(b)
	}
	return ret, nil
}

func parseUint32(data []byte) (uint32, error) {
	ret, err := parseUint64(data)
	if err != nil {
		return 0, err
	}
	if ret > math.MaxUint32 {
		return 0, errors.New("integer too large for uint32")
	}
	return uint32(ret), nil
}

// -- Object identifiers -------------------------------------------------------

func marshalBase128Int(out io.ByteWriter, n uint64) error {
	if n == 0 {
		return out.WriteByte(0)
	}
	l := 0
	for i := n; i > 0; i >>= 7 {
		l++
	}
	for i := l - 1; i >= 0; i-- {
		o := byte(n>>uint(i*7)) & 0x7f
		if i != 0 {
			o |= 0x80
		}
		if err := out.WriteByte(o); err != nil {
			return err
		}
	}
	return nil
}

func marshalObjectIdentifier(oid OID) ([]byte, error) {
	if len(oid) < 2 || len(oid) > 128 {
		return nil, fmt.Errorf("unable to marshal OID %s: invalid length %d", oid, len(oid))
	}
	if oid[0] > 2 || (oid[0] < 2 && oid[1] >= 40) {
		return nil, fmt.Errorf("unable to marshal OID %s: invalid leading arcs", oid)
	}
	out := new(bytes.Buffer)
	if err := marshalBase128Int(out, uint64(oid[0])*40+uint64(oid[1])); err != nil {
		return nil, err
	}
	for _, sub := range oid[2:] {
		if err := marshalBase128Int(out, uint64(sub)); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

// parseBase128Int parses a base-128 integer at offset and returns the value
// and the offset just past it.
func parseBase128Int(data []byte, offset int) (uint64, int, error) {
	var ret uint64
	for shifted := 0; offset < len(data); shifted++ {
		if shifted > 4 {
			return 0, 0, errors.New("base 128 integer too large")
		}
		b := data[offset]
		ret = ret<<7 | uint64(b&0x7f)
		offset++
		if b&0x80 == 0 {
			if ret > MaxObjectSubIdentifierValue+80 {
				return 0, 0, errors.New("sub-identifier out of range")
			}
			return ret, offset, nil
		}
	}
	return 0, 0, errors.New("truncated base 128 integer")
}

func parseObjectIdentifier(src []byte) (OID, error) {
	if len(src) == 0 {
		return nil, errors.New("invalid OID length")
	}
	first, offset, err := parseBase128Int(src, 0)
	if err != nil {
		return nil, err
	}
	oid := make(OID, 0, len(src)+1)
	if first < 80 {
		oid = append(oid, uint32(first/40), uint32(first%40))
	} else {
		oid = append(oid, 2, uint32(first-80))
	}
	for offset < len(src) {
		var v uint64
		v, offset, err = parseBase128Int(src, offset)
		if err != nil {
			return nil, err
		}
		if v > MaxObjectSubIdentifierValue {
			return nil, errors.New("sub-identifier out of range")
		}
		oid = append(oid, uint32(v))
	}
	return oid, nil
}

// -- Fields and values --------------------------------------------------------

// parseRawField parses one header field: an Integer (returned as int), an
// OctetString (string) or an ObjectIdentifier (OID). It returns the field and
// the number of bytes consumed.
func parseRawField(logger Logger, data []byte, msg string) (any, int, error) {
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("%s: empty data", msg)
	}
	length, cursor, err := parseLength(data)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", msg, err)
	}
	if length > len(data) {
		return nil, 0, fmt.Errorf("%s: not enough data (%d vs %d)", msg, length, len(data))
	}
	content := data[cursor:length]
	logger.Printf("parseRawField: %s", msg)

	switch Asn1BER(data[0]) {
	case Integer:
		i, err := parseInt(content)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: unable to parse INTEGER % x: %w", msg, content, err)
		}
		return i, length, nil
	case OctetString:
		return string(content), length, nil
	case ObjectIdentifier:
		oid, err := parseObjectIdentifier(content)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", msg, err)
		}
		return oid, length, nil
	}
	return nil, 0, fmt.Errorf("%s: unexpected field type %#x", msg, data[0])
}

// decodeValue decodes the value TLV of a varbind. It returns the type, the
// Go value and the number of bytes consumed.
//
//	Integer                                    int
//	OctetString, Opaque, BitString             []byte
//	ObjectIdentifier                           OID
//	IPAddress                                  string
//	Counter32, Gauge32, TimeTicks, Uinteger32  uint32
//	Counter64                                  uint64
//	Null, NoSuchObject, NoSuchInstance,
//	EndOfMibView                               nil
func decodeValue(logger Logger, data []byte) (Asn1BER, any, int, error) {
	if len(data) == 0 {
		return UnknownType, nil, 0, errors.New("zero byte buffer")
	}
	length, cursor, err := parseLength(data)
	if err != nil {
		return UnknownType, nil, 0, err
	}
	if length > len(data) {
		return UnknownType, nil, 0, fmt.Errorf("truncated value % x (data %d length %d)", data, len(data), length)
	}
	content := data[cursor:length]
	typ := Asn1BER(data[0])

	var value any
	switch typ {
	case Integer:
		if value, err = parseInt(content); err != nil {
			return typ, nil, 0, fmt.Errorf("bytes: % x err: %w", content, err)
		}
	case OctetString, Opaque, BitString:
		value = bytes.Clone(content)
	case Null, NoSuchObject, NoSuchInstance, EndOfMibView:
		value = nil
	case ObjectIdentifier:
		if value, err = parseObjectIdentifier(content); err != nil {
			return typ, nil, 0, fmt.Errorf("error parsing OID value: %w", err)
		}
	case IPAddress:
		switch len(content) {
		case 0:
			// buggy agents send a zero length address
			value = nil
		case 4:
			value = netip.AddrFrom4([4]byte(content)).String()
		case 16:
			value = netip.AddrFrom16([16]byte(content)).String()
		default:
			return typ, nil, 0, fmt.Errorf("got ipaddress len %d, expected 4 or 16", len(content))
		}
	case Counter32, Gauge32, TimeTicks, Uinteger32:
		if value, err = parseUint32(content); err != nil {
			return typ, nil, 0, fmt.Errorf("%s % x: %w", typ, content, err)
		}
	case Counter64:
		if value, err = parseUint64(content); err != nil {
			return typ, nil, 0, fmt.Errorf("%s % x: %w", typ, content, err)
		}
	default:
		logger.Printf("decodeValue: type %#x isn't implemented", data[0])
		typ = UnknownType
		value = bytes.Clone(content)
	}
	if logger.Enabled() {
		logger.Printf("decodeValue: %s %#v", typ, value)
	}
	return typ, value, length, nil
}

// marshalValue encodes the value TLV for vb.
func marshalValue(buf *bytes.Buffer, vb Vb) error {
	switch vb.Type {
	case Null, NoSuchObject, NoSuchInstance, EndOfMibView:
		buf.WriteByte(byte(vb.Type))
		buf.WriteByte(0)
		return nil

	case Integer:
		var n int
		switch v := vb.Value.(type) {
		case int:
			n = v
		case int32:
			n = int(v)
		case int64:
			n = int(v)
		case uint8:
			n = int(v)
		default:
			return fmt.Errorf("unable to marshal %s from %T", vb.Type, vb.Value)
		}
		b, err := marshalInt32(n)
		if err != nil {
			return err
		}
		return marshalTLV(buf, byte(vb.Type), b)

	case Counter32, Gauge32, TimeTicks, Uinteger32:
		b, err := marshalUint32(vb.Value)
		if err != nil {
			return fmt.Errorf("unable to marshal %s: %w", vb.Type, err)
		}
		return marshalTLV(buf, byte(vb.Type), b)

	case Counter64:
		switch v := vb.Value.(type) {
		case uint64:
			return marshalTLV(buf, byte(vb.Type), marshalUint64(v))
		case uint32:
			return marshalTLV(buf, byte(vb.Type), marshalUint64(uint64(v)))
		}
		return fmt.Errorf("unable to marshal %s from %T", vb.Type, vb.Value)

	case OctetString, BitString, Opaque:
		switch v := vb.Value.(type) {
		case []byte:
			return marshalTLV(buf, byte(vb.Type), v)
		case string:
			return marshalTLV(buf, byte(vb.Type), []byte(v))
		}
		return fmt.Errorf("unable to marshal %s from %T", vb.Type, vb.Value)

	case ObjectIdentifier:
		var oid OID
		switch v := vb.Value.(type) {
		case OID:
			oid = v
		case string:
			var err error
			if oid, err = ParseOID(v); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unable to marshal %s from %T", vb.Type, vb.Value)
		}
		b, err := marshalObjectIdentifier(oid)
		if err != nil {
			return err
		}
		return marshalTLV(buf, byte(vb.Type), b)

	case IPAddress:
		var addr netip.Addr
		switch v := vb.Value.(type) {
		case netip.Addr:
			addr = v
		case string:
			var err error
			if addr, err = netip.ParseAddr(v); err != nil {
				return fmt.Errorf("unable to marshal IPAddress: %w", err)
			}
		case []byte:
			return marshalTLV(buf, byte(vb.Type), v)
		default:
			return fmt.Errorf("unable to marshal %s from %T", vb.Type, vb.Value)
		}
		addr = addr.Unmap()
		return marshalTLV(buf, byte(vb.Type), addr.AsSlice())
	}
	return fmt.Errorf("unable to marshal value: unknown BER type %s", vb.Type)
}
