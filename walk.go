// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"context"
	"errors"
	"fmt"
)

// WalkFunc is called for each binding a walk delivers. A non-nil return
// stops the walk, and Walk returns that error unchanged.
type WalkFunc func(vb Vb) error

const (
	strategySequential = "sequential"
	strategyBulk       = "bulk"
)

// Walk delivers every binding under root, in the order the agent returns
// them. v1 walks with GetNextRequest; v2c and v3 with GetBulkRequest.
//
// The walk ends without error at the first binding outside root, at an
// EndOfMibView, or when the agent answers with a non-zero error status.
// It ends with an error on a Report, on a callback error, on an agent that
// returns a non-increasing oid, after MaxWalkRequests requests, or when
// the agent stays silent for more than MaxSilentRounds rounds in a row.
// Cancelling ctx stops the walk; bindings already delivered stay
// delivered.
func (t *Target) Walk(ctx context.Context, params AgentParameters, root string, fn WalkFunc) error {
	if params == nil {
		return newError(KindConfiguration, "walk", ErrInvalidParameters, errors.New("no agent parameters"))
	}
	if params.Version() == Version1 {
		return t.WalkSequential(ctx, params, root, fn)
	}
	return t.BulkWalk(ctx, params, root, fn)
}

// WalkSequential walks with one GetNextRequest per binding.
func (t *Target) WalkSequential(ctx context.Context, params AgentParameters, root string, fn WalkFunc) error {
	rootOID, err := parseWalkRoot(root)
	if err != nil {
		return err
	}
	return t.walk(ctx, strategySequential, NewPdu(GetNextRequest), params, rootOID, fn)
}

// BulkWalk walks with GetBulkRequests of Target.MaxRepetitions bindings.
// A MaxRepetitions of 0 could never advance and is rejected.
func (t *Target) BulkWalk(ctx context.Context, params AgentParameters, root string, fn WalkFunc) error {
	rootOID, err := parseWalkRoot(root)
	if err != nil {
		return err
	}
	if t.MaxRepetitions == 0 {
		return newError(KindConfiguration, "bulkwalk", ErrInvalidMaxRepetitions, nil)
	}
	pdu := NewPdu(GetBulkRequest)
	pdu.NonRepeaters = 0
	pdu.MaxRepetitions = t.MaxRepetitions
	return t.walk(ctx, strategyBulk, pdu, params, rootOID, fn)
}

// WalkAll collects Walk's bindings.
func (t *Target) WalkAll(ctx context.Context, params AgentParameters, root string) ([]Vb, error) {
	var out []Vb
	err := t.Walk(ctx, params, root, func(vb Vb) error {
		out = append(out, vb)
		return nil
	})
	return out, err
}

// BulkWalkAll collects BulkWalk's bindings.
func (t *Target) BulkWalkAll(ctx context.Context, params AgentParameters, root string) ([]Vb, error) {
	var out []Vb
	err := t.BulkWalk(ctx, params, root, func(vb Vb) error {
		out = append(out, vb)
		return nil
	})
	return out, err
}

// WalkChan runs Walk on its own goroutine. Bindings arrive on the first
// channel, which is closed when the walk ends; the walk's result is then
// sent on the second. The Target must not be used by the caller until the
// result has arrived.
func (t *Target) WalkChan(ctx context.Context, params AgentParameters, root string) (<-chan Vb, <-chan error) {
	vbs := make(chan Vb)
	errc := make(chan error, 1)
	go func() {
		err := t.Walk(ctx, params, root, func(vb Vb) error {
			select {
			case vbs <- vb:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		close(vbs)
		errc <- err
		close(errc)
	}()
	return vbs, errc
}

func parseWalkRoot(root string) (OID, error) {
	oid, err := ParseOID(root)
	if err != nil {
		return nil, newError(KindConfiguration, "walk", ErrInvalidParameters, err)
	}
	return oid, nil
}

// walk is the cursor loop shared by both strategies. pdu is owned by the
// loop: each round bumps its request id and replaces its one binding with
// the cursor.
func (t *Target) walk(ctx context.Context, strategy string, pdu *Pdu, params AgentParameters, root OID, fn WalkFunc) error {
	if err := t.ensureDiscovered(ctx, params); err != nil {
		return err
	}

	delivered := 0
	defer func() { t.Metrics.walkDelivered(strategy, delivered) }()

	last := root.Clone()
	requests, silent := 0, 0
	for last != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.MaxWalkRequests > 0 && requests >= t.MaxWalkRequests {
			return newError(KindProtocol, "walk", ErrWalkLimitExceeded,
				fmt.Errorf("%d requests, last oid %s", requests, last))
		}

		pdu.NextRequestID()
		pdu.Reset()
		pdu.AddOID(last)
		requests++

		reply, err := t.Request(ctx, pdu, params)
		if err != nil {
			if errors.Is(err, ErrRequestTimeout) && silent < t.MaxSilentRounds {
				silent++
				t.Logger.Printf("WALK: agent silent, retrying %s (%d of %d)", last, silent, t.MaxSilentRounds)
				continue
			}
			return err
		}
		silent = 0

		rpdu := reply.PDU()
		if err := ReportError(rpdu); err != nil {
			return err
		}
		if rpdu.ErrorStatus != NoError {
			t.Logger.Printf("WALK: agent error status %s ends walk of %s", rpdu.ErrorStatus, root)
			return nil
		}
		if len(rpdu.Variables) == 0 {
			return nil
		}

		// Bindings are judged in reply order; the first one outside root
		// ends the walk even if later ones are inside it.
		cursor, stop := last, false
		for _, vb := range rpdu.Variables {
			if !root.IsRootOf(vb.Name) {
				stop = true
				break
			}
			endOfView := vb.IsEndOfMibView()
			if vb.IsException() && !(endOfView && strategy == strategyBulk) {
				stop = true
				break
			}
			// An EndOfMibView usually repeats the requested name.
			if !endOfView && vb.Name.Compare(cursor) <= 0 {
				return newError(KindProtocol, "walk", ErrOIDNotIncreasing,
					fmt.Errorf("%s after %s", vb.Name, cursor))
			}
			if err := fn(vb); err != nil {
				return err
			}
			delivered++
			if endOfView {
				stop = true
				break
			}
			cursor = vb.Name
		}
		if stop {
			last = nil
		} else {
			last = cursor
		}
	}
	return nil
}
