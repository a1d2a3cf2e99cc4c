// Copyright 2025 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/pion/dtls/v3"
	"github.com/pion/logging"
)

// DTLSTransport carries v3 messages of the transport security model over
// a DTLS session (RFC 6353). The session is established on the first
// exchange and re-established when the peer changes.
type DTLSTransport struct {
	// Config is the pion/dtls client configuration: client certificate,
	// root CAs, server name.
	Config *dtls.Config

	// Mappings turn the agent's certificate chain into a tmSecurityName.
	// If empty, the agent's identity is not checked beyond DTLS
	// verification.
	Mappings []CertMapping
	// ExpectedSecurityName, if set, must be the name the agent maps to.
	ExpectedSecurityName string

	Logger Logger
	// LogLevel is the level of the pion/dtls logs routed into Logger.
	LogLevel logging.LogLevel
	Hooks    TransportHooks

	conn         *dtls.Conn
	peer         netip.AddrPort
	securityName string
	rxBuf        []byte
	closed       bool
}

var _ Transport = (*DTLSTransport)(nil)

// loggerWriter adapts Logger to the io.Writer pion's leveled loggers use.
type loggerWriter struct{ logger *Logger }

func (w loggerWriter) Write(p []byte) (int, error) {
	w.logger.Print(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// loggerFactory routes pion/dtls logs into t.Logger.
func (t *DTLSTransport) loggerFactory() logging.LoggerFactory {
	f := logging.NewDefaultLoggerFactory()
	f.DefaultLogLevel = t.LogLevel
	if f.DefaultLogLevel == logging.LogLevelDisabled {
		f.DefaultLogLevel = logging.LogLevelWarn
	}
	f.Writer = loggerWriter{&t.Logger}
	return f
}

// SecurityName is the tmSecurityName the current session's agent mapped
// to, or "" before a session is established.
func (t *DTLSTransport) SecurityName() string { return t.securityName }

// session returns a DTLS connection to peer, dialing and handshaking if
// there is none or it belongs to another peer.
func (t *DTLSTransport) session(ctx context.Context, peer netip.AddrPort, handshakeTimeout time.Duration) (*dtls.Conn, error) {
	if t.conn != nil && t.peer == peer {
		return t.conn, nil
	}
	t.resetSession()

	if t.Config == nil {
		return nil, newError(KindConfiguration, "dtls", ErrInvalidParameters, errors.New("no DTLS configuration"))
	}
	cfg := *t.Config
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = t.loggerFactory()
	}

	network := "udp4"
	if peer.Addr().Is6() {
		network = "udp6"
	}
	conn, err := dtls.Dial(network, net.UDPAddrFromAddrPort(peer), &cfg)
	if err != nil {
		if fatal := classifySocketError("dtls dial", err); fatal != nil {
			return nil, fatal
		}
		return nil, newError(KindNetwork, "dtls dial", ErrNetworkUnreachable, err)
	}

	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(hctx); err != nil {
		_ = conn.Close()
		if ctxErr := contextErr(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, newError(KindTimeout, "dtls handshake", ErrRequestTimeout, err)
		}
		return nil, newError(KindSecurity, "dtls handshake", ErrAuthenticationFailed, err)
	}

	state, ok := conn.ConnectionState()
	if !ok {
		_ = conn.Close()
		return nil, newError(KindSecurity, "dtls handshake", ErrAuthenticationFailed, errors.New("no connection state"))
	}
	name, err := verifyAgentIdentity(state.PeerCertificates, t.Mappings, t.ExpectedSecurityName)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	t.Logger.Printf("DTLS: session with %s established, agent securityName %q", peer, name)

	t.conn, t.peer, t.securityName = conn, peer, name
	return conn, nil
}

func (t *DTLSTransport) resetSession() {
	if t.conn != nil {
		_ = t.conn.Close()
	}
	t.conn, t.peer, t.securityName = nil, netip.AddrPort{}, ""
}

// Exchange sends out over the session. checkSource is ignored; a DTLS
// session only carries records from its peer.
func (t *DTLSTransport) Exchange(ctx context.Context, peer netip.AddrPort, out []byte, timeout time.Duration, retries int, _ bool) ([]byte, error) {
	if t.closed {
		return nil, newError(KindNoData, "exchange", ErrTransportClosed, nil)
	}
	if !peer.IsValid() {
		return nil, newError(KindConfiguration, "exchange", ErrInvalidTarget, fmt.Errorf("peer %s", peer))
	}
	peer = netip.AddrPortFrom(peer.Addr().Unmap(), peer.Port())
	if retries < 0 {
		retries = 0
	}

	conn, err := t.session(ctx, peer, timeout*time.Duration(retries+1))
	if err != nil {
		return nil, err
	}
	if t.rxBuf == nil {
		t.rxBuf = make([]byte, rxBufSize)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			t.Logger.Printf("DTLS: retry %d of %d to %s: %v", attempt, retries, peer, lastErr)
			t.Hooks.retry(attempt, lastErr)
		}

		n, err := conn.Write(out)
		if err != nil {
			if fatal := classifySocketError("dtls send", err); fatal != nil {
				t.resetSession()
				return nil, fatal
			}
			lastErr = err
			continue
		}
		t.Hooks.sent(peer, n)

		deadline := time.Now().Add(timeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
		// A cancel between the check above and here had its deadline overwritten.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err = conn.Read(t.rxBuf)
		if err == nil {
			t.Hooks.recv(peer, n)
			return bytes.Clone(t.rxBuf[:n]), nil
		}
		if ctxErr := contextErr(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		if fatal := classifySocketError("dtls receive", err); fatal != nil {
			t.resetSession()
			return nil, fatal
		}
		var netErr net.Error
		if !errors.Is(err, os.ErrDeadlineExceeded) && !(errors.As(err, &netErr) && netErr.Timeout()) {
			// The session is gone (alert, close_notify); the next
			// exchange handshakes again.
			t.resetSession()
			return nil, newError(KindNetwork, "dtls receive", ErrConnectionReset, err)
		}
		lastErr = err
	}
	return nil, newError(KindTimeout, "exchange", ErrRequestTimeout, lastErr)
}

// Close ends the session. It is safe to call more than once.
func (t *DTLSTransport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	var err error
	if t.conn != nil {
		err = t.conn.Close()
	}
	t.conn = nil
	return err
}
