// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
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
	"time"
)

//go:generate mockgen -destination=mocks/transport_mock.go -package=mocks github.com/lukeod/snmpclient Transport

// Transport exchanges one request datagram for one reply.
//
// Exchange sends out to peer and waits up to timeout for a reply, making
// 1+retries attempts in total. If checkSource is set, a reply from any
// other address or port is discarded and costs an attempt. Cancelling ctx
// abandons the wait and returns ctx.Err().
//
// A Transport is not safe for concurrent use.
type Transport interface {
	Exchange(ctx context.Context, peer netip.AddrPort, out []byte, timeout time.Duration, retries int, checkSource bool) ([]byte, error)
	Close() error
}

// TransportHooks are called from the exchange loop. Any of them may be nil.
type TransportHooks struct {
	OnSent  func(peer netip.AddrPort, n int)
	OnRecv  func(from netip.AddrPort, n int)
	OnRetry func(attempt int, err error)
}

func (h *TransportHooks) sent(peer netip.AddrPort, n int) {
	if h != nil && h.OnSent != nil {
		h.OnSent(peer, n)
	}
}

func (h *TransportHooks) recv(from netip.AddrPort, n int) {
	if h != nil && h.OnRecv != nil {
		h.OnRecv(from, n)
	}
}

func (h *TransportHooks) retry(attempt int, err error) {
	if h != nil && h.OnRetry != nil {
		h.OnRetry(attempt, err)
	}
}

// errSourceMismatch is the per-attempt cause recorded when a reply comes
// from the wrong peer.
var errSourceMismatch = errors.New("reply from unexpected source")

// UDPTransport is a Transport over one unconnected UDP socket. The socket is
// opened on first use and reopened when the peer's address family changes.
// The zero value is ready to use.
type UDPTransport struct {
	Logger Logger
	Hooks  TransportHooks

	conn   *net.UDPConn
	ipv6   bool
	rxBuf  []byte
	closed bool
}

var _ Transport = (*UDPTransport)(nil)

// NewUDPTransport returns a transport that logs to logger.
func NewUDPTransport(logger Logger) *UDPTransport {
	return &UDPTransport{Logger: logger}
}

// socket returns a socket of the family of peer, replacing the current one
// if it is of the other family.
func (t *UDPTransport) socket(peer netip.AddrPort) (*net.UDPConn, error) {
	v6 := peer.Addr().Is6()
	if t.conn != nil && t.ipv6 == v6 {
		return t.conn, nil
	}
	if t.conn != nil {
		t.Logger.Printf("UDP: address family changed, reopening socket")
		_ = t.conn.Close()
		t.conn = nil
	}

	network := "udp4"
	if v6 {
		network = "udp6"
	}
	conn, err := net.ListenUDP(network, nil)
	if err != nil {
		if fatal := classifySocketError("listen", err); fatal != nil {
			return nil, fatal
		}
		return nil, newError(KindNetwork, "listen", ErrNetworkUnreachable, err)
	}
	t.conn, t.ipv6 = conn, v6
	t.Logger.Printf("UDP: opened %s socket %s", network, conn.LocalAddr())
	return conn, nil
}

// LocalAddr returns the address of the current socket, or nil if none is
// open.
func (t *UDPTransport) LocalAddr() net.Addr {
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

func (t *UDPTransport) Exchange(ctx context.Context, peer netip.AddrPort, out []byte, timeout time.Duration, retries int, checkSource bool) ([]byte, error) {
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

	conn, err := t.socket(peer)
	if err != nil {
		return nil, err
	}
	if t.rxBuf == nil {
		t.rxBuf = make([]byte, rxBufSize)
	}

	// Cancellation pushes the read deadline into the past, which wakes a
	// blocked read at once.
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
			t.Logger.Printf("UDP: retry %d of %d to %s: %v", attempt, retries, peer, lastErr)
			t.Hooks.retry(attempt, lastErr)
		}

		n, err := conn.WriteToUDPAddrPort(out, peer)
		if err != nil {
			if fatal := classifySocketError("send", err); fatal != nil {
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

		reply, err := t.receive(ctx, conn, peer, checkSource)
		if err == nil {
			return reply, nil
		}
		if ctxErr := contextErr(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		var snmpErr *Error
		if errors.As(err, &snmpErr) {
			return nil, err
		}
		lastErr = err
	}
	return nil, newError(KindTimeout, "exchange", ErrRequestTimeout, lastErr)
}

// contextErr is ctx.Err(), waiting for the context to finish if its
// deadline has passed. A read that timed out at the context's deadline can
// return before the context records DeadlineExceeded.
func contextErr(ctx context.Context) error {
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		<-ctx.Done()
	}
	return ctx.Err()
}

// receive reads one datagram. It returns a retryable error on timeout or
// source mismatch, and a *Error for fatal socket conditions.
func (t *UDPTransport) receive(_ context.Context, conn *net.UDPConn, peer netip.AddrPort, checkSource bool) ([]byte, error) {
	n, from, err := conn.ReadFromUDPAddrPort(t.rxBuf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, err
		}
		if fatal := classifySocketError("receive", err); fatal != nil {
			return nil, fatal
		}
		return nil, err
	}
	from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())
	t.Hooks.recv(from, n)

	if checkSource && from != peer {
		t.Logger.Printf("UDP: discarding %d bytes from %s, expected %s", n, from, peer)
		return nil, fmt.Errorf("%w: %s", errSourceMismatch, from)
	}
	t.Logger.Printf("UDP: received %d bytes from %s", n, from)
	return bytes.Clone(t.rxBuf[:n]), nil
}

// Close releases the socket. It is safe to call more than once; later
// exchanges return ErrTransportClosed.
func (t *UDPTransport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
