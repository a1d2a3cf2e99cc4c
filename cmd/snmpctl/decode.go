// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/cobra"

	"github.com/lukeod/snmpclient"
)

var decodePorts []uint

var decodeCmd = &cobra.Command{
	Use:   "decode <file.pcap>",
	Short: "Decode SNMP messages from a pcap or pcapng capture",
	Long: `Decode SNMP messages from a pcap or pcapng capture. UDP datagrams to or
from the --ports are decoded without security processing, so the scoped
PDU of an encrypted v3 message is not shown. Community strings are never
printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		src, err := openCapture(f)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return decodeCapture(cmd.OutOrStdout(), src, newLogger())
	},
}

func init() {
	decodeCmd.Flags().UintSliceVar(&decodePorts, "ports", []uint{161, 162}, "UDP ports carrying SNMP")
}

// captureSource is implemented by both pcapgo readers.
type captureSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// ngMagic is the block type of a pcapng section header.
var ngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

func openCapture(r io.Reader) (captureSource, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	if bytes.Equal(magic, ngMagic) {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

func isSNMPPort(p layers.UDPPort) bool {
	for _, want := range decodePorts {
		if uint(p) == want {
			return true
		}
	}
	return false
}

func decodeCapture(out io.Writer, src captureSource, logger snmpclient.Logger) error {
	packets := gopacket.NewPacketSource(src, src.LinkType())
	frame := 0
	for {
		packet, err := packets.NextPacket()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", frame+1, err)
		}
		frame++

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp := udpLayer.(*layers.UDP)
		if !isSNMPPort(udp.SrcPort) && !isSNMPPort(udp.DstPort) {
			continue
		}

		var from, to string
		if nl := packet.NetworkLayer(); nl != nil {
			from, to = nl.NetworkFlow().Src().String(), nl.NetworkFlow().Dst().String()
		}
		prefix := fmt.Sprintf("#%d %s:%d > %s:%d", frame, from, uint16(udp.SrcPort), to, uint16(udp.DstPort))
		msg, err := snmpclient.DecodeMessage(udp.Payload, logger)
		if err != nil {
			fmt.Fprintf(out, "%s undecodable: %v\n", prefix, err)
			continue
		}
		fmt.Fprintf(out, "%s %s\n", prefix, msg.SafeString())
	}
}
