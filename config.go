// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/pion/dtls/v3"
	"gopkg.in/yaml.v3"
)

// Config holds the Target settings that have defaults. Durations are
// written as Go duration strings ("2s") in YAML.
type Config struct {
	Port               uint16        `yaml:"port"`
	Timeout            time.Duration `yaml:"timeout"`
	Retries            int           `yaml:"retries"`
	DisableSourceCheck bool          `yaml:"disable_source_check"`
	MaxRepetitions     uint32        `yaml:"max_repetitions"`
	MaxWalkRequests    int           `yaml:"max_walk_requests"`
	MaxSilentRounds    int           `yaml:"max_silent_rounds"`
}

// DefaultConfig returns port 161, a 2s timeout, 2 retries and bulk walks
// of 5 repetitions.
func DefaultConfig() Config {
	return Config{
		Port:            DefaultPort,
		Timeout:         DefaultTimeout,
		Retries:         DefaultRetries,
		MaxRepetitions:  DefaultMaxRepetitions,
		MaxSilentRounds: DefaultMaxSilentRounds,
	}
}

func (c Config) newTarget(ap netip.AddrPort) *Target {
	t := &Target{
		Address:            ap.Addr(),
		Port:               ap.Port(),
		Timeout:            c.Timeout,
		Retries:            c.Retries,
		DisableSourceCheck: c.DisableSourceCheck,
		MaxRepetitions:     c.MaxRepetitions,
		MaxWalkRequests:    c.MaxWalkRequests,
		MaxSilentRounds:    c.MaxSilentRounds,
	}
	if t.Port == 0 {
		t.Port = c.Port
	}
	t.applyDefaults()
	return t
}

// Inventory is a configuration file: defaults plus a list of agents.
//
//	defaults:
//	  timeout: 1s
//	  retries: 1
//	agents:
//	  - name: core1
//	    address: 192.0.2.1
//	    version: 2c
//	    community: public
//	  - name: edge1
//	    address: "[2001:db8::1]:1161"
//	    version: 3
//	    user: monitor
//	    auth_protocol: SHA256
//	    auth_passphrase: secret-auth
//	    priv_protocol: AES
//	    priv_passphrase: secret-priv
type Inventory struct {
	Defaults Config         `yaml:"defaults"`
	Agents   []*AgentConfig `yaml:"agents"`
}

// AgentConfig describes one agent. Zero-valued Config fields fall back to
// the inventory defaults.
type AgentConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Version string `yaml:"version"`

	Community string `yaml:"community"`

	User           string `yaml:"user"`
	AuthProtocol   string `yaml:"auth_protocol"`
	AuthPassphrase string `yaml:"auth_passphrase"`
	PrivProtocol   string `yaml:"priv_protocol"`
	PrivPassphrase string `yaml:"priv_passphrase"`
	ContextName    string `yaml:"context_name"`

	// DTLS selects the transport security model over DTLS for v3.
	DTLS *DTLSConfig `yaml:"dtls"`

	Overrides Config `yaml:",inline"`

	defaults Config
}

// DTLSConfig holds PEM file paths and the agent identity check.
type DTLSConfig struct {
	CertFile             string              `yaml:"cert_file"`
	KeyFile              string              `yaml:"key_file"`
	CAFile               string              `yaml:"ca_file"`
	ServerName           string              `yaml:"server_name"`
	InsecureSkipVerify   bool                `yaml:"insecure_skip_verify"`
	ExpectedSecurityName string              `yaml:"expected_security_name"`
	Mappings             []CertMappingConfig `yaml:"mappings"`
}

// CertMappingConfig is a CertMapping with the fingerprint written as text,
// as accepted by ParseFingerprint.
type CertMappingConfig struct {
	Type         CertMappingType `yaml:"type"`
	Fingerprint  string          `yaml:"fingerprint"`
	SecurityName string          `yaml:"security_name"`
}

// LoadConfigFile reads an Inventory from a YAML file.
func LoadConfigFile(path string) (*Inventory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	inv, err := decodeInventory(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return inv, nil
}

// ParseConfig reads an Inventory from YAML. Unknown keys are an error.
func ParseConfig(data []byte) (*Inventory, error) {
	return decodeInventory(bytes.NewReader(data))
}

func decodeInventory(r io.Reader) (*Inventory, error) {
	inv := &Inventory{Defaults: DefaultConfig()}
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(inv); err != nil && !errors.Is(err, io.EOF) {
		return nil, newError(KindConfiguration, "config", ErrInvalidParameters, err)
	}
	if err := inv.validate(); err != nil {
		return nil, err
	}
	return inv, nil
}

func (inv *Inventory) validate() error {
	seen := make(map[string]bool, len(inv.Agents))
	for i, a := range inv.Agents {
		if a == nil {
			return newError(KindConfiguration, "config", ErrInvalidParameters, fmt.Errorf("agent %d is empty", i))
		}
		if a.Name == "" {
			a.Name = a.Address
		}
		if seen[a.Name] {
			return newError(KindConfiguration, "config", ErrInvalidParameters, fmt.Errorf("duplicate agent %q", a.Name))
		}
		seen[a.Name] = true
		if _, err := parseTargetAddress(a.Address); err != nil {
			return fmt.Errorf("agent %q: %w", a.Name, err)
		}
		if _, err := a.Parameters(); err != nil {
			return fmt.Errorf("agent %q: %w", a.Name, err)
		}
		a.defaults = inv.Defaults
	}
	return nil
}

// Agent returns the agent called name.
func (inv *Inventory) Agent(name string) (*AgentConfig, bool) {
	for _, a := range inv.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// Config merges the agent's overrides onto the inventory defaults.
func (a *AgentConfig) Config() Config {
	c := a.defaults
	if c == (Config{}) {
		c = DefaultConfig()
	}
	o := a.Overrides
	if o.Port != 0 {
		c.Port = o.Port
	}
	if o.Timeout != 0 {
		c.Timeout = o.Timeout
	}
	if o.Retries != 0 {
		c.Retries = o.Retries
	}
	if o.DisableSourceCheck {
		c.DisableSourceCheck = true
	}
	if o.MaxRepetitions != 0 {
		c.MaxRepetitions = o.MaxRepetitions
	}
	if o.MaxWalkRequests != 0 {
		c.MaxWalkRequests = o.MaxWalkRequests
	}
	if o.MaxSilentRounds != 0 {
		c.MaxSilentRounds = o.MaxSilentRounds
	}
	return c
}

// Target builds a Target for the agent. For DTLS agents the Target owns a
// DTLSTransport; otherwise it creates a UDPTransport on first use.
func (a *AgentConfig) Target(logger Logger) (*Target, error) {
	ap, err := parseTargetAddress(a.Address)
	if err != nil {
		return nil, err
	}
	t := a.Config().newTarget(ap)
	t.Logger = logger
	if a.DTLS != nil {
		tr, err := a.DTLS.transport(logger)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", a.Name, err)
		}
		t.Transport, t.ownsTransport = tr, true
	}
	return t, nil
}

// Parameters builds the agent's AgentParameters from its version and
// credentials.
func (a *AgentConfig) Parameters() (AgentParameters, error) {
	version, err := ParseVersion(a.Version)
	if err != nil {
		return nil, err
	}
	switch version {
	case Version1, Version2c:
		return NewCommunityParameters(version, a.Community)
	case Version3:
		if a.DTLS != nil {
			return &TsmSecurityParameters{
				SecurityName: a.DTLS.ExpectedSecurityName,
				ContextName:  a.ContextName,
			}, nil
		}
		auth, err := ParseAuthProtocol(a.AuthProtocol)
		if err != nil {
			return nil, err
		}
		priv, err := ParsePrivProtocol(a.PrivProtocol)
		if err != nil {
			return nil, err
		}
		usm := &UsmSecurityParameters{
			UserName:                 a.User,
			AuthenticationProtocol:   auth,
			AuthenticationPassphrase: a.AuthPassphrase,
			PrivacyProtocol:          priv,
			PrivacyPassphrase:        a.PrivPassphrase,
			ContextName:              a.ContextName,
		}
		if err := usm.ValidateSecrets(); err != nil {
			return nil, err
		}
		return usm, nil
	}
	return nil, newError(KindConfiguration, "config", ErrUnsupportedVersion, fmt.Errorf("version %s", version))
}

// transport loads the certificates and builds the DTLS transport.
func (c *DTLSConfig) transport(logger Logger) (*DTLSTransport, error) {
	cfg := &dtls.Config{
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
	if c.CertFile != "" || c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, newError(KindConfiguration, "dtls", ErrInvalidParameters, err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, newError(KindConfiguration, "dtls", ErrInvalidParameters, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, newError(KindConfiguration, "dtls", ErrInvalidParameters,
				fmt.Errorf("no certificates in %s", c.CAFile))
		}
		cfg.RootCAs = pool
	}

	mappings := make([]CertMapping, 0, len(c.Mappings))
	for _, m := range c.Mappings {
		cm := CertMapping{Type: m.Type, SecurityName: m.SecurityName}
		if strings.TrimSpace(m.Fingerprint) != "" {
			fp, algo, err := ParseFingerprint(m.Fingerprint)
			if err != nil {
				return nil, newError(KindConfiguration, "dtls", ErrInvalidParameters, err)
			}
			cm.Fingerprint, cm.HashAlgo = fp, algo
		}
		mappings = append(mappings, cm)
	}

	return &DTLSTransport{
		Config:               cfg,
		Mappings:             mappings,
		ExpectedSecurityName: c.ExpectedSecurityName,
		Logger:               logger,
	}, nil
}
