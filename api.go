// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"context"
	"net/netip"
)

// These helpers open a Target with DefaultConfig for one operation and
// close it afterwards.

func withTarget(peer netip.Addr, fn func(t *Target) error) error {
	if !peer.IsValid() {
		return newError(KindConfiguration, "target", ErrInvalidTarget, nil)
	}
	t := DefaultConfig().newTarget(netip.AddrPortFrom(peer, 0))
	defer t.Close()
	return fn(t)
}

// Get fetches oids from peer with v2c.
func Get(ctx context.Context, peer netip.Addr, community string, oids ...string) ([]Vb, error) {
	return get(ctx, peer, Version2c, community, oids)
}

// GetV1 is Get with v1.
func GetV1(ctx context.Context, peer netip.Addr, community string, oids ...string) ([]Vb, error) {
	return get(ctx, peer, Version1, community, oids)
}

func get(ctx context.Context, peer netip.Addr, version SnmpVersion, community string, oids []string) ([]Vb, error) {
	params, err := NewCommunityParameters(version, community)
	if err != nil {
		return nil, err
	}
	var vbs []Vb
	err = withTarget(peer, func(t *Target) error {
		var err error
		vbs, err = t.Get(ctx, params, oids...)
		return err
	})
	return vbs, err
}

// Set writes vbs on peer with v2c.
func Set(ctx context.Context, peer netip.Addr, community string, vbs ...Vb) error {
	params, err := NewCommunityParameters(Version2c, community)
	if err != nil {
		return err
	}
	return withTarget(peer, func(t *Target) error {
		_, err := t.Set(ctx, params, vbs...)
		return err
	})
}

// Walk walks root on peer. Version1 walks with GetNextRequest, Version2c
// with GetBulkRequest.
func Walk(ctx context.Context, peer netip.Addr, version SnmpVersion, community, root string, fn WalkFunc) error {
	params, err := NewCommunityParameters(version, community)
	if err != nil {
		return err
	}
	return withTarget(peer, func(t *Target) error {
		return t.Walk(ctx, params, root, fn)
	})
}
