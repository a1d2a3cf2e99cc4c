// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RequestResult is the outcome delivered by RequestAsync.
type RequestResult struct {
	Packet Packet
	Err    error
}

// Request sends pdu to the Target and returns the validated reply.
//
// A zero request id is replaced by a random one. v1 and v2c replies must
// carry the sent version, community and request id. v3 replies must pass
// the security context's integrity check; a usmStatsUnknownEngineIDs
// Report is returned as the reply to a discovery request. Mismatches are
// returned as errors and never retried; only the transport retries.
func (t *Target) Request(ctx context.Context, pdu *Pdu, params AgentParameters) (Packet, error) {
	start := time.Now()
	packet, err := t.request(ctx, pdu, params)
	t.Metrics.request(params, err)
	if err != nil {
		t.Logger.Printf("REQUEST error: %v", err)
	}
	if t.OnFinish != nil {
		t.OnFinish(pdu, time.Since(start), err)
	}
	return packet, err
}

// RequestAsync runs Request on its own goroutine. The channel receives
// exactly one result and is then closed. pdu and params must not be used
// by the caller until the result has arrived.
func (t *Target) RequestAsync(ctx context.Context, pdu *Pdu, params AgentParameters) <-chan RequestResult {
	ch := make(chan RequestResult, 1)
	go func() {
		defer close(ch)
		packet, err := t.Request(ctx, pdu, params)
		ch <- RequestResult{Packet: packet, Err: err}
	}()
	return ch
}

func (t *Target) request(ctx context.Context, pdu *Pdu, params AgentParameters) (Packet, error) {
	if pdu == nil {
		return nil, newError(KindConfiguration, "request", ErrInvalidParameters, errors.New("nil pdu"))
	}
	if pdu.RequestID == 0 {
		pdu.RequestID = newRequestID()
	}

	switch p := params.(type) {
	case *CommunityParameters:
		return t.requestCommunity(ctx, pdu, p)
	case SecurityContext:
		return t.requestV3(ctx, pdu, p)
	case nil:
		return nil, newError(KindConfiguration, "request", ErrInvalidParameters, errors.New("no agent parameters"))
	default:
		return nil, newError(KindConfiguration, "request", ErrUnsupportedVersion, fmt.Errorf("%T", params))
	}
}

func (t *Target) requestCommunity(ctx context.Context, pdu *Pdu, p *CommunityParameters) (Packet, error) {
	if !p.Valid() {
		return nil, newError(KindConfiguration, "request", ErrInvalidParameters, nil)
	}
	if p.Version() == Version1 && pdu.Type == GetBulkRequest {
		return nil, newError(KindConfiguration, "request", ErrUnsupportedVersion,
			errors.New("GetBulkRequest needs v2c or v3"))
	}

	packet := NewCommunityPacket(p.Version(), p.Community, pdu)
	out, err := packet.MarshalMsg()
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if t.Logger.Enabled() {
		t.Logger.Printf("SENDING PACKET: %s", packet.SafeString())
	}

	in, err := t.exchange(ctx, out, !t.DisableSourceCheck)
	if err != nil {
		return nil, err
	}
	if len(in) == 0 {
		return nil, newError(KindNoData, "request", ErrNoDataReceived, nil)
	}

	reply, err := UnmarshalCommunityPacket(in, t.Logger)
	if err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if t.Logger.Enabled() {
		t.Logger.Printf("RECEIVED PACKET: %s", reply.SafeString())
	}

	switch {
	case reply.Version() != p.Version():
		return nil, newError(KindProtocol, "request", ErrVersionMismatch,
			fmt.Errorf("sent %s, got %s", p.Version(), reply.Version()))
	case reply.Community != p.Community:
		return nil, newError(KindSecurity, "request", ErrInvalidCommunity, nil)
	case reply.Pdu.RequestID != pdu.RequestID:
		return nil, newError(KindProtocol, "request", ErrInvalidRequestID,
			fmt.Errorf("sent %d, got %d", pdu.RequestID, reply.Pdu.RequestID))
	}
	return reply, nil
}

func (t *Target) requestV3(ctx context.Context, pdu *Pdu, sc SecurityContext) (Packet, error) {
	if err := sc.ValidateSecrets(); err != nil {
		return nil, err
	}

	packet := NewV3Packet(pdu, "")
	if err := sc.InitPacket(packet); err != nil {
		return nil, fmt.Errorf("init packet: %w", err)
	}
	out, err := sc.Encode(packet)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if t.Logger.Enabled() {
		t.Logger.Printf("SENDING PACKET: %s", packet.SafeString())
	}

	in, err := t.exchange(ctx, out, true)
	if err != nil {
		return nil, err
	}
	if len(in) == 0 {
		return nil, newError(KindNoData, "request", ErrNoDataReceived, nil)
	}

	reply, err := sc.Decode(in)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return nil, err
		}
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if reply.Pdu == nil {
		return nil, errors.New("decode reply: no pdu")
	}
	if t.Logger.Enabled() {
		t.Logger.Printf("RECEIVED PACKET: %s", reply.SafeString())
	}
	if reply.MsgID != packet.MsgID {
		return nil, newError(KindProtocol, "request", ErrInvalidRequestID,
			fmt.Errorf("sent msgID %d, got %d", packet.MsgID, reply.MsgID))
	}

	if isDiscoveryReport(reply.Pdu) {
		t.Logger.Print("RECEIVED discovery REPORT")
		sc.UpdateDiscoveryValues(reply)
		return reply, nil
	}

	if !sc.ValidateIncomingPacket(reply, in) {
		return nil, newError(KindSecurity, "request", ErrAuthenticationFailed, nil)
	}
	if reply.Pdu.Type != Report && reply.Pdu.RequestID != pdu.RequestID {
		return nil, newError(KindProtocol, "request", ErrInvalidRequestID,
			fmt.Errorf("sent %d, got %d", pdu.RequestID, reply.Pdu.RequestID))
	}
	// Only authenticated replies may move the engine id or clock.
	if reply.MsgFlags&AuthNoPriv != 0 {
		sc.UpdateDiscoveryValues(reply)
	}
	return reply, nil
}

// Discover learns the agent's engine id, boots and time for sc. Contexts
// that need no discovery, such as TSM, return at once.
//
// The first request is unauthenticated and carries no user name. If the
// agent's reply gives zero boots and time, a second, authenticated request
// is sent so the agent answers with its clock.
func (t *Target) Discover(ctx context.Context, sc SecurityContext) error {
	if _, _, _, required := sc.discoveryState(); !required {
		return nil
	}
	if err := sc.ValidateSecrets(); err != nil {
		return err
	}
	sc.Reset()

	if _, err := t.Request(ctx, NewPdu(GetRequest), sc); err != nil {
		return discoveryError(err)
	}
	engineID, boots, engineTime, _ := sc.discoveryState()
	if engineID == "" {
		return newError(KindSecurity, "discover", ErrDiscoveryFailed, errors.New("agent did not report an engine id"))
	}

	if boots == 0 && engineTime == 0 {
		t.Logger.Print("DISCOVER: zero boots and time, probing again")
		if _, err := t.Request(ctx, NewPdu(GetRequest), sc); err != nil {
			return discoveryError(err)
		}
	}
	t.Logger.Printf("DISCOVER: %s", sc.SafeString())
	return nil
}

func discoveryError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return newError(KindSecurity, "discover", ErrDiscoveryFailed, err)
}

// ensureDiscovered runs discovery for a v3 context whose engine is not yet
// known.
func (t *Target) ensureDiscovered(ctx context.Context, params AgentParameters) error {
	sc, ok := params.(SecurityContext)
	if !ok {
		return nil
	}
	engineID, _, _, required := sc.discoveryState()
	if !required || engineID != "" {
		return nil
	}
	return t.Discover(ctx, sc)
}

// do sends pdu and returns the reply PDU, turning Reports and non-zero
// error statuses into errors.
func (t *Target) do(ctx context.Context, op string, pdu *Pdu, params AgentParameters) (*Pdu, error) {
	if err := t.ensureDiscovered(ctx, params); err != nil {
		return nil, err
	}
	reply, err := t.Request(ctx, pdu, params)
	if err != nil {
		return nil, err
	}
	rpdu := reply.PDU()
	if err := ReportError(rpdu); err != nil {
		return nil, err
	}
	if rpdu.ErrorStatus != NoError {
		return nil, agentError(op, rpdu)
	}
	return rpdu, nil
}

func parseOIDs(op string, oids []string) ([]OID, error) {
	if len(oids) == 0 {
		return nil, newError(KindConfiguration, op, ErrInvalidParameters, errors.New("no oids"))
	}
	out := make([]OID, 0, len(oids))
	for _, s := range oids {
		oid, err := ParseOID(s)
		if err != nil {
			return nil, newError(KindConfiguration, op, ErrInvalidParameters, err)
		}
		out = append(out, oid)
	}
	return out, nil
}

func (t *Target) query(ctx context.Context, op string, typ PDUType, params AgentParameters, oids []string) ([]Vb, error) {
	parsed, err := parseOIDs(op, oids)
	if err != nil {
		return nil, err
	}
	pdu := NewPdu(typ)
	for _, oid := range parsed {
		pdu.AddOID(oid)
	}
	reply, err := t.do(ctx, op, pdu, params)
	if err != nil {
		return nil, err
	}
	return reply.Variables, nil
}

// Get fetches the values of oids.
func (t *Target) Get(ctx context.Context, params AgentParameters, oids ...string) ([]Vb, error) {
	return t.query(ctx, "get", GetRequest, params, oids)
}

// GetNext fetches the successors of oids.
func (t *Target) GetNext(ctx context.Context, params AgentParameters, oids ...string) ([]Vb, error) {
	return t.query(ctx, "getnext", GetNextRequest, params, oids)
}

// GetBulk issues a GetBulkRequest. It is not available with v1.
func (t *Target) GetBulk(ctx context.Context, params AgentParameters, nonRepeaters int, maxRepetitions uint32, oids ...string) ([]Vb, error) {
	parsed, err := parseOIDs("getbulk", oids)
	if err != nil {
		return nil, err
	}
	if nonRepeaters < 0 || nonRepeaters > len(parsed) {
		return nil, newError(KindConfiguration, "getbulk", ErrInvalidParameters,
			fmt.Errorf("non-repeaters %d with %d oids", nonRepeaters, len(parsed)))
	}
	pdu := NewPdu(GetBulkRequest)
	pdu.NonRepeaters = nonRepeaters
	pdu.MaxRepetitions = maxRepetitions
	for _, oid := range parsed {
		pdu.AddOID(oid)
	}
	reply, err := t.do(ctx, "getbulk", pdu, params)
	if err != nil {
		return nil, err
	}
	return reply.Variables, nil
}

// Set writes vbs and returns the bindings the agent echoed.
func (t *Target) Set(ctx context.Context, params AgentParameters, vbs ...Vb) ([]Vb, error) {
	if len(vbs) == 0 {
		return nil, newError(KindConfiguration, "set", ErrInvalidParameters, errors.New("no bindings"))
	}
	pdu := NewPdu(SetRequest)
	for _, vb := range vbs {
		pdu.Add(vb)
	}
	reply, err := t.do(ctx, "set", pdu, params)
	if err != nil {
		return nil, err
	}
	return reply.Variables, nil
}

// GetValue fetches a single oid. A NoSuchObject, NoSuchInstance or
// EndOfMibView value is returned as ErrNoSuchObject.
func (t *Target) GetValue(ctx context.Context, params AgentParameters, oid string) (Vb, error) {
	vbs, err := t.Get(ctx, params, oid)
	if err != nil {
		return Vb{}, err
	}
	if len(vbs) != 1 {
		return Vb{}, newError(KindProtocol, "get", ErrNoSuchObject, fmt.Errorf("%d bindings in reply", len(vbs)))
	}
	if vbs[0].IsException() {
		return vbs[0], newError(KindProtocol, "get", ErrNoSuchObject, fmt.Errorf("%s: %s", oid, vbs[0].Type))
	}
	return vbs[0], nil
}
