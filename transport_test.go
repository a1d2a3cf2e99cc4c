// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"context"
	"net"
	"net/netip"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// udpPeer is a loopback socket that counts datagrams and optionally
// answers them, either from itself or from a second socket.
type udpPeer struct {
	conn     *net.UDPConn
	other    *net.UDPConn
	received atomic.Int32
	reply    []byte
	// fromOther answers from other instead of conn.
	fromOther bool
}

func newUDPPeer(t *testing.T) *udpPeer {
	t.Helper()
	listen := func() *net.UDPConn {
		c, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		require.NoError(t, err)
		t.Cleanup(func() { c.Close() })
		return c
	}
	return &udpPeer{conn: listen(), other: listen()}
}

func (p *udpPeer) addrPort() netip.AddrPort {
	return p.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// serve reads until the socket is closed.
func (p *udpPeer) serve() {
	buf := make([]byte, 1500)
	for {
		_, from, err := p.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return
		}
		p.received.Add(1)
		if p.reply == nil {
			continue
		}
		if p.fromOther {
			_, _ = p.other.WriteToUDPAddrPort(p.reply, from)
		} else {
			_, _ = p.conn.WriteToUDPAddrPort(p.reply, from)
		}
	}
}

func TestUDPTransportAttempts(t *testing.T) {
	for _, retries := range []int{0, 1, 3} {
		peer := newUDPPeer(t)
		go peer.serve()

		tr := NewUDPTransport(Logger{})
		var retried []int
		tr.Hooks.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

		_, err := tr.Exchange(context.Background(), peer.addrPort(), []byte("ping"), 30*time.Millisecond, retries, true)
		require.ErrorIs(t, err, ErrRequestTimeout)
		assert.Equal(t, KindTimeout, KindOf(err))

		require.Eventually(t, func() bool { return peer.received.Load() == int32(retries+1) },
			time.Second, 5*time.Millisecond, "retries %d", retries)
		assert.Len(t, retried, retries)
		require.NoError(t, tr.Close())
	}
}

func TestUDPTransportReply(t *testing.T) {
	peer := newUDPPeer(t)
	peer.reply = []byte("pong")
	go peer.serve()

	tr := NewUDPTransport(Logger{})
	defer tr.Close()
	var sent, recv int
	tr.Hooks.OnSent = func(_ netip.AddrPort, n int) { sent += n }
	tr.Hooks.OnRecv = func(_ netip.AddrPort, n int) { recv += n }

	got, err := tr.Exchange(context.Background(), peer.addrPort(), []byte("ping"), time.Second, 0, true)
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), got)
	assert.Equal(t, 4, sent)
	assert.Equal(t, 4, recv)
	assert.NotNil(t, tr.LocalAddr())
}

func TestUDPTransportSourceCheck(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		peer := newUDPPeer(t)
		peer.reply, peer.fromOther = []byte("pong"), true
		go peer.serve()

		tr := NewUDPTransport(Logger{})
		defer tr.Close()
		_, err := tr.Exchange(context.Background(), peer.addrPort(), []byte("ping"), 50*time.Millisecond, 2, true)
		require.ErrorIs(t, err, ErrRequestTimeout)
		assert.ErrorIs(t, err, errSourceMismatch)
		require.Eventually(t, func() bool { return peer.received.Load() == 3 }, time.Second, 5*time.Millisecond)
	})

	t.Run("disabled", func(t *testing.T) {
		peer := newUDPPeer(t)
		peer.reply, peer.fromOther = []byte("pong"), true
		go peer.serve()

		tr := NewUDPTransport(Logger{})
		defer tr.Close()
		got, err := tr.Exchange(context.Background(), peer.addrPort(), []byte("ping"), time.Second, 2, false)
		require.NoError(t, err)
		assert.Equal(t, []byte("pong"), got)
		assert.EqualValues(t, 1, peer.received.Load())
	})
}

func TestUDPTransportCancel(t *testing.T) {
	peer := newUDPPeer(t)
	go peer.serve()

	tr := NewUDPTransport(Logger{})
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := tr.Exchange(ctx, peer.addrPort(), []byte("ping"), 10*time.Second, 5, true)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
	require.Eventually(t, func() bool { return peer.received.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestUDPTransportCancelAfterSend(t *testing.T) {
	peer := newUDPPeer(t)
	go peer.serve()

	tr := NewUDPTransport(Logger{})
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	tr.Hooks.OnSent = func(netip.AddrPort, int) { cancel() }

	start := time.Now()
	_, err := tr.Exchange(ctx, peer.addrPort(), []byte("ping"), 10*time.Second, 0, true)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestUDPTransportDeadline(t *testing.T) {
	peer := newUDPPeer(t)
	go peer.serve()

	tr := NewUDPTransport(Logger{})
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := tr.Exchange(ctx, peer.addrPort(), []byte("ping"), 10*time.Second, 0, true)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUDPTransportClosed(t *testing.T) {
	tr := NewUDPTransport(Logger{})
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, err := tr.Exchange(context.Background(), netip.MustParseAddrPort("127.0.0.1:161"), []byte("x"), time.Second, 0, true)
	require.ErrorIs(t, err, ErrTransportClosed)
	assert.Equal(t, KindNoData, KindOf(err))
}

func TestUDPTransportInvalidPeer(t *testing.T) {
	tr := NewUDPTransport(Logger{})
	defer tr.Close()
	_, err := tr.Exchange(context.Background(), netip.AddrPort{}, []byte("x"), time.Second, 0, true)
	require.ErrorIs(t, err, ErrInvalidTarget)
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func TestTargetRequestOverUDP(t *testing.T) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()

	agent := newCommunityAgent("public", systemMIB)
	go func() {
		buf := make([]byte, rxBufSize)
		for {
			n, from, err := conn.ReadFromUDPAddrPort(buf)
			if err != nil {
				return
			}
			reply, err := agent.Exchange(context.Background(), from, buf[:n], 0, 0, false)
			if err != nil {
				continue
			}
			_, _ = conn.WriteToUDPAddrPort(reply, from)
		}
	}()

	target, err := NewTarget(conn.LocalAddr().String(), DefaultConfig())
	require.NoError(t, err)
	defer target.Close()

	params, err := NewCommunityParameters(Version2c, "public")
	require.NoError(t, err)
	vbs, err := target.Get(context.Background(), params, "1.3.6.1.2.1.1.5.0")
	require.NoError(t, err)
	require.Len(t, vbs, 1)
	assert.Equal(t, []byte("core1"), vbs[0].Value)

	require.NoError(t, target.Close())
	_, err = target.Get(context.Background(), params, "1.3.6.1.2.1.1.5.0")
	assert.ErrorIs(t, err, ErrTransportClosed)
}

func TestClassifySocketError(t *testing.T) {
	refused := &net.OpError{Op: "write", Net: "udp", Err: os.NewSyscallError("sendto", syscall.ECONNREFUSED)}
	err := classifySocketError("send", refused)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionRefused)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Equal(t, KindNetwork, KindOf(err))

	assert.ErrorIs(t, classifySocketError("receive", syscall.EHOSTUNREACH), ErrHostUnreachable)

	assert.NoError(t, classifySocketError("receive", os.ErrDeadlineExceeded))
	assert.NoError(t, classifySocketError("send", syscall.EMSGSIZE))
}
