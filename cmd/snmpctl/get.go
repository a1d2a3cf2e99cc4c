// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"github.com/spf13/cobra"
)

var nonRepeaters int

var getCmd = &cobra.Command{
	Use:   "get <agent> <oid>...",
	Short: "Fetch the values of one or more OIDs",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, params, err := openAgent(args[0])
		if err != nil {
			return err
		}
		defer t.Close()

		vbs, err := t.Get(cmd.Context(), params, args[1:]...)
		if err != nil {
			return err
		}
		printVbs(cmd, vbs)
		return nil
	},
}

var getNextCmd = &cobra.Command{
	Use:   "getnext <agent> <oid>...",
	Short: "Fetch the lexicographic successor of one or more OIDs",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, params, err := openAgent(args[0])
		if err != nil {
			return err
		}
		defer t.Close()

		vbs, err := t.GetNext(cmd.Context(), params, args[1:]...)
		if err != nil {
			return err
		}
		printVbs(cmd, vbs)
		return nil
	},
}

var bulkCmd = &cobra.Command{
	Use:   "bulk <agent> <oid>...",
	Short: "Send one GetBulk request (v2c and v3)",
	Long: `Send one GetBulk request. The first --non-repeaters OIDs get a single
successor each; the rest get up to --max-repetitions successors.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, params, err := openAgent(args[0])
		if err != nil {
			return err
		}
		defer t.Close()

		vbs, err := t.GetBulk(cmd.Context(), params, nonRepeaters, t.MaxRepetitions, args[1:]...)
		if err != nil {
			return err
		}
		printVbs(cmd, vbs)
		return nil
	},
}

func init() {
	bulkCmd.Flags().IntVar(&nonRepeaters, "non-repeaters", 0, "number of leading OIDs fetched once")
}
