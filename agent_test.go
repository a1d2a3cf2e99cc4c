// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testMIB is a sorted table of bindings served by testAgent.
type testMIB []Vb

func newTestMIB(vbs ...Vb) testMIB {
	m := testMIB(slices.Clone(vbs))
	slices.SortFunc(m, func(a, b Vb) int { return a.Name.Compare(b.Name) })
	return m
}

func (m testMIB) get(oid OID) (Vb, bool) {
	for _, vb := range m {
		if vb.Name.Equal(oid) {
			return vb, true
		}
	}
	return Vb{}, false
}

func (m testMIB) next(oid OID) (Vb, bool) {
	for _, vb := range m {
		if vb.Name.Compare(oid) > 0 {
			return vb, true
		}
	}
	return Vb{}, false
}

// handle answers req the way an agent of the given version would.
func (m testMIB) handle(version SnmpVersion, req *Pdu) *Pdu {
	reply := &Pdu{Type: GetResponse, RequestID: req.RequestID}
	fail := func(i int) *Pdu {
		reply.ErrorStatus, reply.ErrorIndex = NoSuchName, i+1
		reply.Variables = slices.Clone(req.Variables)
		return reply
	}
	endOfView := func(oid OID) Vb { return Vb{Name: oid, Type: EndOfMibView} }

	switch req.Type {
	case GetRequest:
		for i, q := range req.Variables {
			vb, ok := m.get(q.Name)
			switch {
			case ok:
				reply.Add(vb)
			case version == Version1:
				return fail(i)
			default:
				reply.Add(Vb{Name: q.Name, Type: NoSuchObject})
			}
		}
	case GetNextRequest:
		for i, q := range req.Variables {
			vb, ok := m.next(q.Name)
			switch {
			case ok:
				reply.Add(vb)
			case version == Version1:
				return fail(i)
			default:
				reply.Add(endOfView(q.Name))
			}
		}
	case GetBulkRequest:
		nonRep := min(req.NonRepeaters, len(req.Variables))
		for _, q := range req.Variables[:nonRep] {
			if vb, ok := m.next(q.Name); ok {
				reply.Add(vb)
			} else {
				reply.Add(endOfView(q.Name))
			}
		}
		cursors := make([]OID, 0, len(req.Variables)-nonRep)
		for _, q := range req.Variables[nonRep:] {
			cursors = append(cursors, q.Name)
		}
		for range req.MaxRepetitions {
			done := true
			for i, c := range cursors {
				vb, ok := m.next(c)
				if !ok {
					reply.Add(endOfView(c))
					continue
				}
				reply.Add(vb)
				cursors[i] = vb.Name
				done = false
			}
			if done {
				break
			}
		}
	case SetRequest:
		reply.Variables = slices.Clone(req.Variables)
	}
	return reply
}

// testAgent is an in-memory Transport that decodes each request and
// answers it from mib. For v3 it plays the authoritative engine of usm.
type testAgent struct {
	mib       testMIB
	community string
	usm       *UsmSecurityParameters

	// silent holds the 1-based numbers of requests that go unanswered.
	silent map[int]bool
	// rewrite, if set, edits the reply to request n before it is encoded.
	rewrite func(n int, reply *Pdu)

	requests    []*Pdu
	discoveries int
	closed      bool
}

var _ Transport = (*testAgent)(nil)

func newCommunityAgent(community string, mib testMIB) *testAgent {
	return &testAgent{mib: mib, community: community}
}

// newUSMAgent returns an agent for user whose engine has the given boots
// and time. The agent's copy of the credentials is independent of the one
// the test gives to the client.
func newUSMAgent(t *testing.T, user UsmSecurityParameters, engineID string, boots, engineTime uint32, mib testMIB) *testAgent {
	t.Helper()
	usm := &UsmSecurityParameters{
		UserName:                 user.UserName,
		AuthenticationProtocol:   user.AuthenticationProtocol,
		AuthenticationPassphrase: user.AuthenticationPassphrase,
		PrivacyProtocol:          user.PrivacyProtocol,
		PrivacyPassphrase:        user.PrivacyPassphrase,
		AuthoritativeEngineID:    engineID,
		AuthoritativeEngineBoots: boots,
		AuthoritativeEngineTime:  engineTime,
	}
	if usm.securityLevel() != NoAuthNoPriv {
		require.NoError(t, usm.deriveKeys())
	}
	return &testAgent{mib: mib, usm: usm}
}

func (a *testAgent) Exchange(ctx context.Context, _ netip.AddrPort, out []byte, _ time.Duration, _ int, _ bool) ([]byte, error) {
	if a.closed {
		return nil, newError(KindNoData, "exchange", ErrTransportClosed, nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg, err := DecodeMessage(out, Logger{})
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	switch m := msg.(type) {
	case *CommunityPacket:
		reply, err := a.answer(m.Version(), m.Pdu)
		if err != nil {
			return nil, err
		}
		return NewCommunityPacket(m.Version(), a.community, reply).MarshalMsg()
	case *V3Packet:
		return a.exchangeV3(out, m)
	}
	return nil, errors.New("agent: unexpected message")
}

func (a *testAgent) answer(version SnmpVersion, req *Pdu) (*Pdu, error) {
	a.requests = append(a.requests, req)
	n := len(a.requests)
	if a.silent[n] {
		return nil, newError(KindTimeout, "exchange", ErrRequestTimeout, nil)
	}
	reply := a.mib.handle(version, req)
	if a.rewrite != nil {
		a.rewrite(n, reply)
	}
	return reply, nil
}

func (a *testAgent) exchangeV3(out []byte, probe *V3Packet) ([]byte, error) {
	if a.usm == nil {
		return nil, errors.New("agent: no usm user configured")
	}
	if probe.Usm.AuthoritativeEngineID == "" {
		a.discoveries++
		report := &Pdu{Type: Report, RequestID: probe.Pdu.RequestID}
		report.Add(Vb{Name: usmStatsUnknownEngineIDs, Type: Counter32, Value: uint32(a.discoveries)})
		reply := &V3Packet{
			MsgID:           probe.MsgID,
			MsgMaxSize:      rxBufSize,
			MsgFlags:        NoAuthNoPriv,
			SecurityModel:   UserSecurityModel,
			Usm:             a.header(""),
			ContextEngineID: a.usm.AuthoritativeEngineID,
			Pdu:             report,
		}
		return reply.MarshalMsg()
	}

	req, err := a.usm.Decode(out)
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	if !a.usm.ValidateIncomingPacket(req, out) {
		return nil, errors.New("agent: request failed authentication")
	}
	pdu, err := a.answer(Version3, req.Pdu)
	if err != nil {
		return nil, err
	}
	reply := &V3Packet{
		MsgID:           req.MsgID,
		MsgMaxSize:      rxBufSize,
		MsgFlags:        req.MsgFlags & AuthPriv,
		SecurityModel:   UserSecurityModel,
		Usm:             a.header(req.Usm.UserName),
		ContextEngineID: a.usm.AuthoritativeEngineID,
		ContextName:     req.ContextName,
		Pdu:             pdu,
	}
	return a.usm.Encode(reply)
}

func (a *testAgent) header(user string) UsmHeader {
	return UsmHeader{
		AuthoritativeEngineID:    a.usm.AuthoritativeEngineID,
		AuthoritativeEngineBoots: a.usm.AuthoritativeEngineBoots,
		AuthoritativeEngineTime:  a.usm.AuthoritativeEngineTime,
		UserName:                 user,
	}
}

func (a *testAgent) Close() error {
	a.closed = true
	return nil
}

// newTestTarget returns a Target that talks to tr.
func newTestTarget(t *testing.T, tr Transport) *Target {
	t.Helper()
	target, err := NewTarget("192.0.2.1", DefaultConfig())
	require.NoError(t, err)
	target.Transport = tr
	return target
}

// systemMIB is the system group plus the first interfaces entry.
var systemMIB = newTestMIB(
	Vb{Name: MustParseOID("1.3.6.1.2.1.1.1.0"), Type: OctetString, Value: []byte("test agent")},
	Vb{Name: MustParseOID("1.3.6.1.2.1.1.2.0"), Type: ObjectIdentifier, Value: OID{1, 3, 6, 1, 4, 1, 8072}},
	Vb{Name: MustParseOID("1.3.6.1.2.1.1.3.0"), Type: TimeTicks, Value: uint32(123456)},
	Vb{Name: MustParseOID("1.3.6.1.2.1.1.4.0"), Type: OctetString, Value: []byte("ops@example.net")},
	Vb{Name: MustParseOID("1.3.6.1.2.1.1.5.0"), Type: OctetString, Value: []byte("core1")},
	Vb{Name: MustParseOID("1.3.6.1.2.1.1.6.0"), Type: OctetString, Value: []byte("rack 4")},
	Vb{Name: MustParseOID("1.3.6.1.2.1.1.7.0"), Type: Integer, Value: 72},
	Vb{Name: MustParseOID("1.3.6.1.2.1.2.1.0"), Type: Integer, Value: 2},
)
