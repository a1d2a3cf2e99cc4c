// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// MaxObjectSubIdentifierValue is the largest value of a single sub-identifier.
const MaxObjectSubIdentifierValue = 4294967295

// OID is an object identifier in numeric form.
type OID []uint32

// ParseOID parses a dotted OID. A leading dot is accepted.
func ParseOID(s string) (OID, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), ".")
	if s == "" {
		return nil, fmt.Errorf("empty oid")
	}
	parts := strings.Split(s, ".")
	oid := make(OID, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid oid %q: %w", s, err)
		}
		oid = append(oid, uint32(v))
	}
	return oid, nil
}

// MustParseOID is like ParseOID but panics on error.
func MustParseOID(s string) OID {
	oid, err := ParseOID(s)
	if err != nil {
		panic(err)
	}
	return oid
}

func (o OID) String() string {
	var b strings.Builder
	for i, v := range o {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(uint64(v), 10))
	}
	return b.String()
}

func (o OID) Clone() OID {
	return slices.Clone(o)
}

func (o OID) Equal(other OID) bool {
	return slices.Equal(o, other)
}

// Compare orders OIDs lexicographically, as agents do for GetNext.
func (o OID) Compare(other OID) int {
	return slices.Compare(o, other)
}

// IsRootOf reports whether other lies strictly below o.
func (o OID) IsRootOf(other OID) bool {
	return len(other) > len(o) && slices.Equal(o, other[:len(o)])
}
