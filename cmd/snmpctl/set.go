// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lukeod/snmpclient"
)

var setCmd = &cobra.Command{
	Use:   "set <agent> <oid> <type> <value> [<oid> <type> <value>]...",
	Short: "Write one or more values",
	Long: `Write one or more values. Each binding is an OID, a type letter and a
value:

  i  INTEGER        u  Gauge32       c  Counter32     C  Counter64
  t  TimeTicks      a  IpAddress     o  OBJECT IDENTIFIER
  s  OCTET STRING   x  OCTET STRING as hex digits`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) < 4 || (len(args)-1)%3 != 0 {
			return fmt.Errorf("want an agent followed by oid, type, value triples, got %d args", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		vbs, err := parseBindings(args[1:])
		if err != nil {
			return err
		}
		t, params, err := openAgent(args[0])
		if err != nil {
			return err
		}
		defer t.Close()

		reply, err := t.Set(cmd.Context(), params, vbs...)
		if err != nil {
			return err
		}
		printVbs(cmd, reply)
		return nil
	},
}

// parseBindings turns oid, type, value triples into bindings.
func parseBindings(args []string) ([]snmpclient.Vb, error) {
	vbs := make([]snmpclient.Vb, 0, len(args)/3)
	for i := 0; i+2 < len(args); i += 3 {
		vb, err := parseBinding(args[i], args[i+1], args[i+2])
		if err != nil {
			return nil, err
		}
		vbs = append(vbs, vb)
	}
	return vbs, nil
}

func parseBinding(oid, typ, value string) (snmpclient.Vb, error) {
	name, err := snmpclient.ParseOID(oid)
	if err != nil {
		return snmpclient.Vb{}, err
	}
	vb := snmpclient.Vb{Name: name}
	switch typ {
	case "i":
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return vb, fmt.Errorf("%s: %w", oid, err)
		}
		vb.Type, vb.Value = snmpclient.Integer, int(n)
	case "u", "c", "t":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return vb, fmt.Errorf("%s: %w", oid, err)
		}
		vb.Type = map[string]snmpclient.Asn1BER{
			"u": snmpclient.Gauge32,
			"c": snmpclient.Counter32,
			"t": snmpclient.TimeTicks,
		}[typ]
		vb.Value = uint32(n)
	case "C":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return vb, fmt.Errorf("%s: %w", oid, err)
		}
		vb.Type, vb.Value = snmpclient.Counter64, n
	case "a":
		vb.Type, vb.Value = snmpclient.IPAddress, value
	case "o":
		v, err := snmpclient.ParseOID(value)
		if err != nil {
			return vb, fmt.Errorf("%s: %w", oid, err)
		}
		vb.Type, vb.Value = snmpclient.ObjectIdentifier, v
	case "s":
		vb.Type, vb.Value = snmpclient.OctetString, []byte(value)
	case "x":
		clean := strings.NewReplacer(" ", "", ":", "").Replace(value)
		b, err := hex.DecodeString(clean)
		if err != nil {
			return vb, fmt.Errorf("%s: %w", oid, err)
		}
		vb.Type, vb.Value = snmpclient.OctetString, b
	default:
		return vb, fmt.Errorf("%s: unknown type %q", oid, typ)
	}
	return vb, nil
}
