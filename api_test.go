// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"bytes"
	"context"
	"log"
	"log/slog"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackageHelpersValidate(t *testing.T) {
	ctx := context.Background()
	loopback := netip.MustParseAddr("127.0.0.1")

	_, err := Get(ctx, netip.Addr{}, "public", "1.3.6.1.2.1.1.1.0")
	require.ErrorIs(t, err, ErrInvalidTarget)
	assert.Equal(t, KindConfiguration, KindOf(err))

	_, err = GetV1(ctx, loopback, "", "1.3.6.1.2.1.1.1.0")
	assert.ErrorIs(t, err, ErrInvalidParameters)

	err = Set(ctx, loopback, "", Vb{Name: OID{1, 3, 6, 1}, Type: Integer, Value: 1})
	assert.ErrorIs(t, err, ErrInvalidParameters)

	err = Walk(ctx, loopback, Version3, "public", "1.3.6.1.2.1.1", func(Vb) error { return nil })
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Get(ctx, loopback, "public")
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestPackageHelpersHonourContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Get(ctx, netip.MustParseAddr("127.0.0.1"), "public", "1.3.6.1.2.1.1.1.0")
	assert.ErrorIs(t, err, context.Canceled)

	err = Walk(ctx, netip.MustParseAddr("127.0.0.1"), Version2c, "public", "1.3.6.1.2.1.1", func(Vb) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoggerAdapters(t *testing.T) {
	var buf bytes.Buffer
	target := newTestTarget(t, newCommunityAgent("public", systemMIB))
	target.Logger = NewLogger(log.New(&buf, "", 0))

	_, err := target.Get(context.Background(), v2c(t), "1.3.6.1.2.1.1.5.0")
	require.NoError(t, err)
	if target.Logger.Enabled() {
		assert.Contains(t, buf.String(), "SENDING PACKET")
		assert.NotContains(t, buf.String(), "public")
	}

	buf.Reset()
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := NewLogger(SlogAdapter{Logger: slog.New(h), Level: slog.LevelDebug})
	logger.Printf("USM: %s", "probe")
	if logger.Enabled() {
		assert.Contains(t, buf.String(), "level=DEBUG")
		assert.Contains(t, buf.String(), `msg="USM: probe"`)
	}

	var zero Logger
	assert.False(t, zero.Enabled())
	assert.NotPanics(t, func() { zero.Print("dropped") })
}
