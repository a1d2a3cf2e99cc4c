// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lukeod/snmpclient"
)

var discoverCmd = &cobra.Command{
	Use:   "discover <agent>",
	Short: "Learn a v3 agent's engine id, boots and time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, params, err := openAgent(args[0])
		if err != nil {
			return err
		}
		defer t.Close()

		usm, ok := params.(*snmpclient.UsmSecurityParameters)
		if !ok {
			return fmt.Errorf("discovery needs a v3 USM user, have version %s", params.Version())
		}
		if err := t.Discover(cmd.Context(), usm); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "engine id:    %x\n", usm.AuthoritativeEngineID)
		fmt.Fprintf(out, "engine boots: %d\n", usm.AuthoritativeEngineBoots)
		fmt.Fprintf(out, "engine time:  %d\n", usm.AuthoritativeEngineTime)
		return nil
	},
}
