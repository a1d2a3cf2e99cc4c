// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"fmt"
	"math"
	"math/big"
	"math/rand/v2"
	"strconv"
)

// Vb is a variable binding: an OID and a typed value.
type Vb struct {
	Name  OID
	Type  Asn1BER
	Value any
}

// NewVb returns a binding for oid with a Null value, as used in Get,
// GetNext and GetBulk requests.
func NewVb(oid OID) Vb {
	return Vb{Name: oid, Type: Null}
}

// IsEndOfMibView reports whether the agent marked the end of its MIB view.
func (v Vb) IsEndOfMibView() bool {
	return v.Type == EndOfMibView
}

// IsException reports whether the value is one of the v2 exception values.
func (v Vb) IsException() bool {
	return v.Type == NoSuchObject || v.Type == NoSuchInstance || v.Type == EndOfMibView
}

func (v Vb) String() string {
	return v.Name.String() + " = " + v.Type.String() + ": " + v.ValueString()
}

// ValueString formats the value for display.
func (v Vb) ValueString() string {
	switch val := v.Value.(type) {
	case nil:
		return ""
	case []byte:
		if isPrintable(val) {
			return string(val)
		}
		return fmt.Sprintf("% x", val)
	case OID:
		return val.String()
	case int:
		return strconv.Itoa(val)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	}
	return fmt.Sprint(v.Value)
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if (c < 0x20 || c > 0x7e) && c != '\n' && c != '\r' && c != '\t' {
			return false
		}
	}
	return true
}

// ToBigInt converts numeric values to a *big.Int. Anything else yields 0.
func ToBigInt(value any) *big.Int {
	var val int64
	switch value := value.(type) {
	case int:
		val = int64(value)
	case int8:
		val = int64(value)
	case int16:
		val = int64(value)
	case int32:
		val = int64(value)
	case int64:
		val = value
	case uint:
		return new(big.Int).SetUint64(uint64(value))
	case uint8:
		val = int64(value)
	case uint16:
		val = int64(value)
	case uint32:
		val = int64(value)
	case uint64:
		return new(big.Int).SetUint64(value)
	case string:
		bi, ok := new(big.Int).SetString(value, 10)
		if !ok {
			return new(big.Int)
		}
		return bi
	default:
		return new(big.Int)
	}
	return big.NewInt(val)
}

// Pdu is a request or response PDU. The same Pdu may be reused across
// requests; it must not be shared between goroutines.
type Pdu struct {
	Type        PDUType
	RequestID   int32
	ErrorStatus SNMPError
	ErrorIndex  int
	// NonRepeaters and MaxRepetitions are only encoded for GetBulkRequest,
	// in place of the error status and index.
	NonRepeaters   int
	MaxRepetitions uint32
	Variables      []Vb
}

// NewPdu returns an empty PDU of the given type with a random non-zero
// request id.
func NewPdu(t PDUType) *Pdu {
	return &Pdu{Type: t, RequestID: newRequestID()}
}

func newRequestID() int32 {
	return rand.Int32N(math.MaxInt32) + 1
}

// AddOID appends a Null binding for oid.
func (p *Pdu) AddOID(oid OID) {
	p.Variables = append(p.Variables, NewVb(oid))
}

// Add appends vb.
func (p *Pdu) Add(vb Vb) {
	p.Variables = append(p.Variables, vb)
}

// Reset clears the binding list and keeps the capacity.
func (p *Pdu) Reset() {
	p.Variables = p.Variables[:0]
}

// NextRequestID increments a non-zero request id, wrapping past
// math.MaxInt32 to 1. A zero id is left alone; the request engine assigns
// one when it encodes the PDU.
func (p *Pdu) NextRequestID() {
	if p.RequestID == 0 {
		return
	}
	if p.RequestID == math.MaxInt32 {
		p.RequestID = 1
		return
	}
	p.RequestID++
}
