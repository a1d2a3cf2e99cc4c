// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lukeod/snmpclient"
)

var (
	walkMode    string
	walkMaxReqs int
	walkSummary bool
)

var walkCmd = &cobra.Command{
	Use:   "walk <agent> <root-oid>",
	Short: "Retrieve every object under a subtree",
	Long: `Retrieve every object under a subtree.

By default v1 agents are walked with GetNext and v2c and v3 agents with
GetBulk. Use --mode to force one or the other.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, params, err := openAgent(args[0])
		if err != nil {
			return err
		}
		defer t.Close()
		if walkMaxReqs > 0 {
			t.MaxWalkRequests = walkMaxReqs
		}

		out := cmd.OutOrStdout()
		n := 0
		fn := func(vb snmpclient.Vb) error {
			n++
			fmt.Fprintln(out, vb)
			return nil
		}

		root := args[1]
		switch walkMode {
		case "auto":
			err = t.Walk(cmd.Context(), params, root, fn)
		case "next":
			err = t.WalkSequential(cmd.Context(), params, root, fn)
		case "bulk":
			err = t.BulkWalk(cmd.Context(), params, root, fn)
		default:
			return fmt.Errorf("unknown walk mode %q", walkMode)
		}
		if err != nil {
			return err
		}
		if walkSummary {
			fmt.Fprintf(cmd.ErrOrStderr(), "%d objects\n", n)
		}
		return nil
	},
}

func init() {
	walkCmd.Flags().StringVar(&walkMode, "mode", "auto", "walk strategy: auto, next or bulk")
	walkCmd.Flags().IntVar(&walkMaxReqs, "max-requests", 0, "stop after this many requests (0 is unlimited)")
	walkCmd.Flags().BoolVar(&walkSummary, "summary", false, "print the number of objects to stderr")
}
