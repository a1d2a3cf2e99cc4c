// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/lukeod/snmpclient"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	snmpVersion string
	community   string
	port        uint16
	timeout     time.Duration
	retries     int
	maxReps     uint32
	configFile  string
	debug       bool

	user        string
	authProto   string
	authPass    string
	privProto   string
	privPass    string
	contextName string
)

var rootCmd = &cobra.Command{
	Use:   "snmpctl",
	Short: "SNMP v1, v2c and v3 client",
	Long: `snmpctl sends SNMP requests to an agent and prints the reply.

The agent is an address with an optional port, or an agent name from the
inventory given with --config.

Examples:
  snmpctl get 192.0.2.1 1.3.6.1.2.1.1.1.0              # v2c get, community public
  snmpctl walk -v 1 192.0.2.1 1.3.6.1.2.1.2.2          # v1 walk with GetNext
  snmpctl get -v 3 -u monitor -a SHA256 -A secret \
      192.0.2.1 1.3.6.1.2.1.1.5.0                      # v3 authNoPriv
  snmpctl set 192.0.2.1 1.3.6.1.2.1.1.5.0 s core1      # set sysName
  snmpctl walk --config agents.yaml core1 1.3.6.1.2.1.1 # agent from inventory
  snmpctl decode capture.pcap                          # decode captured SNMP`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	def := snmpclient.DefaultConfig()

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&snmpVersion, "snmp-version", "v", "2c", "SNMP version: 1, 2c or 3")
	pf.StringVarP(&community, "community", "c", "public", "community string (v1 and v2c)")
	pf.Uint16VarP(&port, "port", "p", def.Port, "agent UDP port")
	pf.DurationVarP(&timeout, "timeout", "t", def.Timeout, "per-attempt timeout")
	pf.IntVarP(&retries, "retries", "r", def.Retries, "retries after the first attempt")
	pf.Uint32Var(&maxReps, "max-repetitions", def.MaxRepetitions, "GetBulk batch size for walks")
	pf.StringVar(&configFile, "config", "", "YAML agent inventory")
	pf.BoolVarP(&debug, "debug", "d", false, "log protocol detail to stderr")

	pf.StringVarP(&user, "user", "u", "", "v3 user name")
	pf.StringVarP(&authProto, "auth-proto", "a", "", "v3 authentication protocol: MD5, SHA, SHA224, SHA256, SHA384, SHA512")
	pf.StringVarP(&authPass, "auth-pass", "A", "", "v3 authentication passphrase")
	pf.StringVarP(&privProto, "priv-proto", "x", "", "v3 privacy protocol: DES or AES")
	pf.StringVarP(&privPass, "priv-pass", "X", "", "v3 privacy passphrase")
	pf.StringVarP(&contextName, "context", "n", "", "v3 context name")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(getNextCmd)
	rootCmd.AddCommand(bulkCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(walkCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(decodeCmd)
}

func newLogger() snmpclient.Logger {
	if !debug {
		return snmpclient.Logger{}
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	return snmpclient.NewLogger(snmpclient.SlogAdapter{Logger: slog.New(h), Level: slog.LevelDebug})
}

// openAgent builds the Target and parameters for agent, either from the
// inventory or from the command line flags.
func openAgent(agent string) (*snmpclient.Target, snmpclient.AgentParameters, error) {
	logger := newLogger()
	if configFile != "" {
		inv, err := snmpclient.LoadConfigFile(configFile)
		if err != nil {
			return nil, nil, err
		}
		a, ok := inv.Agent(agent)
		if !ok {
			return nil, nil, fmt.Errorf("agent %q not found in %s", agent, configFile)
		}
		params, err := a.Parameters()
		if err != nil {
			return nil, nil, err
		}
		t, err := a.Target(logger)
		if err != nil {
			return nil, nil, err
		}
		return t, params, nil
	}

	cfg := snmpclient.DefaultConfig()
	cfg.Port = port
	cfg.Timeout = timeout
	cfg.Retries = retries
	cfg.MaxRepetitions = maxReps
	t, err := snmpclient.NewTarget(agent, cfg)
	if err != nil {
		return nil, nil, err
	}
	t.Logger = logger

	params, err := flagParameters()
	if err != nil {
		return nil, nil, err
	}
	return t, params, nil
}

func flagParameters() (snmpclient.AgentParameters, error) {
	version, err := snmpclient.ParseVersion(snmpVersion)
	if err != nil {
		return nil, err
	}
	if version != snmpclient.Version3 {
		return snmpclient.NewCommunityParameters(version, community)
	}
	auth, err := snmpclient.ParseAuthProtocol(authProto)
	if err != nil {
		return nil, err
	}
	priv, err := snmpclient.ParsePrivProtocol(privProto)
	if err != nil {
		return nil, err
	}
	usm := &snmpclient.UsmSecurityParameters{
		UserName:                 user,
		AuthenticationProtocol:   auth,
		AuthenticationPassphrase: authPass,
		PrivacyProtocol:          priv,
		PrivacyPassphrase:        privPass,
		ContextName:              contextName,
	}
	if err := usm.ValidateSecrets(); err != nil {
		return nil, err
	}
	return usm, nil
}

func printVbs(cmd *cobra.Command, vbs []snmpclient.Vb) {
	out := cmd.OutOrStdout()
	for _, vb := range vbs {
		fmt.Fprintln(out, vb)
	}
}
