// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package snmpclient is an SNMP v1, v2c and v3 client over UDP, with the v3
// transport security model available over DTLS.
//
// A Target names one agent and owns one socket. It has no internal
// locking: issue one request at a time against a Target, or create one
// Target per concurrent caller. Every blocking operation takes a
// context.Context; cancelling it abandons the wait for a reply.
package snmpclient

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"
)

const (
	DefaultPort            = 161
	DefaultTimeout         = 2 * time.Second
	DefaultRetries         = 2
	DefaultMaxRepetitions  = 5
	DefaultMaxSilentRounds = 2
)

// Target is an agent and the settings used to talk to it. Fields must not
// be changed while a request is in flight.
type Target struct {
	Address netip.Addr
	Port    uint16

	// Timeout is per attempt.
	Timeout time.Duration
	// Retries is the number of attempts after the first. Negative values
	// are treated as 0.
	Retries int
	// DisableSourceCheck accepts v1 and v2c replies from any address. v3
	// replies are always checked.
	DisableSourceCheck bool

	// MaxRepetitions is the GetBulk batch size of a bulk walk.
	MaxRepetitions uint32
	// MaxWalkRequests caps the requests a walk may issue. 0 means no cap.
	MaxWalkRequests int
	// MaxSilentRounds is how many times a walk re-requests the same cursor
	// after a timeout before giving up.
	MaxSilentRounds int

	Logger  Logger
	Metrics *Metrics

	// Transport is used for every exchange. If nil, a UDPTransport is
	// created on first use and owned by the Target.
	Transport Transport

	// The transport hooks and the retry counter of Metrics are wired into
	// transports the Target owns. A caller-supplied Transport keeps its own
	// hooks.
	OnSent   func(peer netip.AddrPort, n int)
	OnRecv   func(from netip.AddrPort, n int)
	OnRetry  func(attempt int, err error)
	OnFinish func(pdu *Pdu, elapsed time.Duration, err error)

	ownsTransport bool
	closed        bool
}

// NewTarget returns a Target for addr, which is an address with an
// optional port, with the settings of cfg.
func NewTarget(addr string, cfg Config) (*Target, error) {
	ap, err := parseTargetAddress(addr)
	if err != nil {
		return nil, err
	}
	return cfg.newTarget(ap), nil
}

// parseTargetAddress accepts "1.2.3.4", "1.2.3.4:1161", "::1" and
// "[::1]:1161". A missing port is returned as 0.
func parseTargetAddress(s string) (netip.AddrPort, error) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap, nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.AddrPort{}, newError(KindConfiguration, "target", ErrInvalidTarget, err)
	}
	return netip.AddrPortFrom(addr, 0), nil
}

func (t *Target) applyDefaults() {
	if t.Port == 0 {
		t.Port = DefaultPort
	}
	if t.Timeout <= 0 {
		t.Timeout = DefaultTimeout
	}
	if t.Retries < 0 {
		t.Retries = 0
	}
	if t.MaxSilentRounds < 0 {
		t.MaxSilentRounds = 0
	}
}

// AddrPort is the agent's UDP endpoint.
func (t *Target) AddrPort() netip.AddrPort {
	port := t.Port
	if port == 0 {
		port = DefaultPort
	}
	return netip.AddrPortFrom(t.Address, port)
}

func (t *Target) String() string {
	return t.AddrPort().String()
}

// transport returns the Target's transport, creating a UDPTransport on
// first use.
func (t *Target) transport() (Transport, error) {
	if t.closed {
		return nil, newError(KindNoData, "target", ErrTransportClosed, nil)
	}
	if t.Transport == nil {
		t.Transport = &UDPTransport{Logger: t.Logger}
		t.ownsTransport = true
	}
	if t.ownsTransport {
		switch tr := t.Transport.(type) {
		case *UDPTransport:
			tr.Hooks = t.hooks()
		case *DTLSTransport:
			tr.Hooks = t.hooks()
		}
	}
	return t.Transport, nil
}

// hooks combines the caller's hooks with the metrics counters.
func (t *Target) hooks() TransportHooks {
	return TransportHooks{
		OnSent: t.OnSent,
		OnRecv: t.OnRecv,
		OnRetry: func(attempt int, err error) {
			t.Metrics.retry()
			if t.OnRetry != nil {
				t.OnRetry(attempt, err)
			}
		},
	}
}

// timeout returns the per-attempt timeout, applying the default.
func (t *Target) timeout() time.Duration {
	if t.Timeout <= 0 {
		return DefaultTimeout
	}
	return t.Timeout
}

func (t *Target) retries() int {
	if t.Retries < 0 {
		return 0
	}
	return t.Retries
}

// exchange runs one datagram exchange on the Target's transport.
func (t *Target) exchange(ctx context.Context, out []byte, checkSource bool) ([]byte, error) {
	if !t.Address.IsValid() {
		return nil, newError(KindConfiguration, "target", ErrInvalidTarget, errors.New("no address"))
	}
	tr, err := t.transport()
	if err != nil {
		return nil, err
	}
	return tr.Exchange(ctx, t.AddrPort(), out, t.timeout(), t.retries(), checkSource)
}

// Close releases the transport if the Target created it. It is safe to
// call more than once; later requests fail with ErrTransportClosed.
func (t *Target) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if t.Transport != nil && t.ownsTransport {
		if err := t.Transport.Close(); err != nil {
			return fmt.Errorf("close transport: %w", err)
		}
	}
	return nil
}
