// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"net/netip"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeod/snmpclient/mocks"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// RFC 3414 appendix A.3.
func TestPasswordToKeyVectors(t *testing.T) {
	engineID := string(mustHex(t, "000000000000000000000002"))
	tests := []struct {
		proto SnmpV3AuthProtocol
		ku    string
		kul   string
	}{
		{MD5, "9faf3283884e92834ebc9847d8edd963", "526f5eed9fcce26f8964c2930787d82b"},
		{SHA, "9fb5cc0381497b3793528939ff788d5d79145211", "6695febc9288e36282235fc7151f128497b38f3f"},
	}
	for _, tt := range tests {
		t.Run(tt.proto.String(), func(t *testing.T) {
			ku, err := passwordToKey(tt.proto, "maplesyrup")
			require.NoError(t, err)
			assert.Equal(t, tt.ku, hex.EncodeToString(ku))

			kul, err := localizedKey(tt.proto, "maplesyrup", engineID)
			require.NoError(t, err)
			assert.Equal(t, tt.kul, hex.EncodeToString(kul))
		})
	}

	_, err := passwordToKey(SHA, "")
	assert.Error(t, err)
	_, err = passwordToKey(NoAuth, "maplesyrup")
	assert.Error(t, err)
}

func TestPrivacyRoundTrip(t *testing.T) {
	key, err := localizedKey(SHA, "privacy passphrase", "\x80\x00\x1f\x88\x04engine")
	require.NoError(t, err)
	plain := []byte("a scoped pdu whose length is not a block multiple")
	salt := []byte{0, 0, 0, 1, 0xde, 0xad, 0xbe, 0xef}

	t.Run("DES", func(t *testing.T) {
		ct, err := encryptDES(key, salt, plain)
		require.NoError(t, err)
		assert.Zero(t, len(ct)%8)
		assert.NotEqual(t, plain, ct[:len(plain)])
		pt, err := decryptDES(key, salt, ct)
		require.NoError(t, err)
		assert.Equal(t, plain, pt[:len(plain)])

		_, err = decryptDES(key, salt, ct[:len(ct)-1])
		assert.Error(t, err)
		_, err = encryptDES(key[:8], salt, plain)
		assert.Error(t, err)
	})
	t.Run("AES", func(t *testing.T) {
		ct, err := encryptAES(key, salt, 7, 4242, plain)
		require.NoError(t, err)
		assert.Len(t, ct, len(plain))
		pt, err := decryptAES(key, salt, 7, 4242, ct)
		require.NoError(t, err)
		assert.Equal(t, plain, pt)

		// boots and time are part of the IV
		pt, err = decryptAES(key, salt, 7, 4243, ct)
		require.NoError(t, err)
		assert.NotEqual(t, plain, pt)
		_, err = encryptAES(key, salt[:4], 7, 4242, plain)
		assert.Error(t, err)
	})
}

func usmUser(auth SnmpV3AuthProtocol, priv SnmpV3PrivProtocol) *UsmSecurityParameters {
	return &UsmSecurityParameters{
		UserName:                 "operator",
		AuthenticationProtocol:   auth,
		AuthenticationPassphrase: "operator-auth",
		PrivacyProtocol:          priv,
		PrivacyPassphrase:        "operator-priv",
		AuthoritativeEngineID:    "\x80\x00\x1f\x88\x80usm-test",
		AuthoritativeEngineBoots: 9,
		AuthoritativeEngineTime:  31337,
	}
}

func TestUSMEncodeDecode(t *testing.T) {
	tests := []struct {
		auth  SnmpV3AuthProtocol
		priv  SnmpV3PrivProtocol
		flags SnmpV3MsgFlags
	}{
		{NoAuth, NoPriv, NoAuthNoPriv},
		{MD5, NoPriv, AuthNoPriv},
		{SHA256, NoPriv, AuthNoPriv},
		{SHA512, NoPriv, AuthNoPriv},
		{SHA, DES, AuthPriv},
		{SHA224, AES, AuthPriv},
		{SHA384, AES, AuthPriv},
	}
	for _, tt := range tests {
		t.Run(tt.auth.String()+"/"+tt.priv.String(), func(t *testing.T) {
			sender := usmUser(tt.auth, tt.priv)
			receiver := usmUser(tt.auth, tt.priv)

			pdu := NewPdu(GetResponse)
			pdu.Add(Vb{Name: MustParseOID("1.3.6.1.2.1.1.5.0"), Type: OctetString, Value: []byte("core1")})
			packet := NewV3Packet(pdu, "ctx")
			require.NoError(t, sender.InitPacket(packet))
			assert.Equal(t, tt.flags|Reportable, packet.MsgFlags)

			msg, err := sender.Encode(packet)
			require.NoError(t, err)
			if tt.priv != NoPriv {
				assert.False(t, bytes.Contains(msg, []byte("core1")), "scoped pdu is encrypted")
			}

			got, err := receiver.Decode(msg)
			require.NoError(t, err)
			require.NotNil(t, got.Pdu)
			assert.Equal(t, pdu.RequestID, got.Pdu.RequestID)
			assert.Equal(t, pdu.Variables, got.Pdu.Variables)
			assert.Equal(t, "ctx", got.ContextName)
			assert.Equal(t, "operator", got.Usm.UserName)
			assert.True(t, receiver.ValidateIncomingPacket(got, msg))

			if tt.auth == NoAuth || tt.priv != NoPriv {
				return
			}
			tampered := bytes.Clone(msg)
			tampered[len(tampered)-1] ^= 0xff
			got, err = receiver.Decode(tampered)
			require.NoError(t, err)
			assert.False(t, receiver.ValidateIncomingPacket(got, tampered))
		})
	}
}

func TestUSMWrongKeys(t *testing.T) {
	sender := usmUser(SHA, AES)
	packet := NewV3Packet(&Pdu{Type: GetResponse, RequestID: 1}, "")
	require.NoError(t, sender.InitPacket(packet))
	msg, err := sender.Encode(packet)
	require.NoError(t, err)

	wrongAuth := usmUser(SHA, AES)
	wrongAuth.AuthenticationPassphrase = "not-the-passphrase"
	if got, err := wrongAuth.Decode(msg); err == nil {
		assert.False(t, wrongAuth.ValidateIncomingPacket(got, msg))
	}

	noPriv := usmUser(SHA, NoPriv)
	_, err = noPriv.Decode(msg)
	require.ErrorIs(t, err, ErrDecryption)
	assert.Equal(t, KindSecurity, KindOf(err))
}

func TestUSMValidateUnauthenticatedReply(t *testing.T) {
	sp := usmUser(SHA, NoPriv)
	report := &V3Packet{MsgFlags: NoAuthNoPriv, Pdu: &Pdu{Type: Report}}
	assert.True(t, sp.ValidateIncomingPacket(report, nil))
	response := &V3Packet{MsgFlags: NoAuthNoPriv, Pdu: &Pdu{Type: GetResponse}}
	assert.False(t, sp.ValidateIncomingPacket(response, nil))
}

func TestUSMValidateDerivesKeys(t *testing.T) {
	for _, auth := range []SnmpV3AuthProtocol{MD5, SHA256} {
		t.Run(auth.String(), func(t *testing.T) {
			sender := usmUser(auth, NoPriv)
			packet := NewV3Packet(&Pdu{Type: GetResponse, RequestID: 77}, "")
			require.NoError(t, sender.InitPacket(packet))
			msg, err := sender.Encode(packet)
			require.NoError(t, err)

			receiver := usmUser(auth, NoPriv)
			got, err := receiver.Decode(msg)
			require.NoError(t, err)
			require.False(t, receiver.HasCachedKeys())
			assert.True(t, receiver.ValidateIncomingPacket(got, msg))
			assert.True(t, receiver.HasCachedKeys())

			unknown := usmUser(auth, NoPriv)
			unknown.AuthoritativeEngineID = ""
			assert.False(t, unknown.ValidateIncomingPacket(got, msg))
		})
	}
}

func TestUSMDiscoveryProbe(t *testing.T) {
	sp := usmUser(SHA, AES)
	sp.Reset()
	assert.False(t, sp.HasCachedKeys())

	packet := NewV3Packet(NewPdu(GetRequest), "")
	require.NoError(t, sp.InitPacket(packet))
	assert.Equal(t, Reportable, packet.MsgFlags)
	assert.Empty(t, packet.Usm.UserName)
	assert.Empty(t, packet.Usm.AuthoritativeEngineID)

	sp.UpdateDiscoveryValues(&V3Packet{Usm: UsmHeader{AuthoritativeEngineID: "engine-a", AuthoritativeEngineBoots: 2, AuthoritativeEngineTime: 50}})
	require.NoError(t, sp.deriveKeys())
	assert.True(t, sp.HasCachedKeys())

	// a new engine id drops the keys of the old one
	sp.UpdateDiscoveryValues(&V3Packet{Usm: UsmHeader{AuthoritativeEngineID: "engine-b", AuthoritativeEngineBoots: 1}})
	assert.False(t, sp.HasCachedKeys())
	assert.Equal(t, uint32(1), sp.AuthoritativeEngineBoots)
}

func TestValidateSecrets(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(sp *UsmSecurityParameters)
		sentinel error
		kind     ErrorKind
	}{
		{name: "valid", mutate: func(*UsmSecurityParameters) {}},
		{
			name:     "missing auth passphrase",
			mutate:   func(sp *UsmSecurityParameters) { sp.AuthenticationPassphrase = "" },
			sentinel: ErrAuthSecretMissing,
			kind:     KindSecurity,
		},
		{
			name:     "missing priv passphrase",
			mutate:   func(sp *UsmSecurityParameters) { sp.PrivacyPassphrase = "" },
			sentinel: ErrPrivSecretMissing,
			kind:     KindSecurity,
		},
		{
			name:     "privacy without authentication",
			mutate:   func(sp *UsmSecurityParameters) { sp.AuthenticationProtocol = NoAuth },
			sentinel: ErrInvalidParameters,
			kind:     KindConfiguration,
		},
		{
			name:     "no user",
			mutate:   func(sp *UsmSecurityParameters) { sp.UserName = "" },
			sentinel: ErrInvalidParameters,
			kind:     KindConfiguration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := usmUser(SHA, AES)
			tt.mutate(sp)
			err := sp.ValidateSecrets()
			if tt.sentinel == nil {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestParseProtocols(t *testing.T) {
	auth := map[string]SnmpV3AuthProtocol{
		"": NoAuth, "none": NoAuth, "md5": MD5, "SHA": SHA, "sha1": SHA,
		"sha224": SHA224, "SHA256": SHA256, "sha384": SHA384, "Sha512": SHA512,
	}
	for in, want := range auth {
		got, err := ParseAuthProtocol(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseAuthProtocol("sha3")
	assert.ErrorIs(t, err, ErrInvalidParameters)

	priv := map[string]SnmpV3PrivProtocol{"": NoPriv, "nopriv": NoPriv, "des": DES, "AES": AES, "aes128": AES}
	for in, want := range priv {
		got, err := ParsePrivProtocol(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err = ParsePrivProtocol("aes256")
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestReportError(t *testing.T) {
	tests := []struct {
		oid  OID
		want error
	}{
		{usmStatsUnsupportedSecLevels, ErrUnknownSecurityLevel},
		{usmStatsNotInTimeWindows, ErrNotInTimeWindow},
		{usmStatsUnknownUserNames, ErrUnknownUsername},
		{usmStatsUnknownEngineIDs, ErrUnknownEngineID},
		{usmStatsWrongDigests, ErrWrongDigest},
		{usmStatsDecryptionErrors, ErrDecryption},
		{snmpUnknownSecurityModels, ErrUnknownSecurityModels},
		{snmpInvalidMsgs, ErrInvalidMsgs},
		{snmpUnknownPDUHandlers, ErrUnknownPDUHandlers},
		{OID{1, 3, 6, 1, 4, 1, 9}, ErrUnknownReportPDU},
	}
	for _, tt := range tests {
		pdu := &Pdu{Type: Report, Variables: []Vb{{Name: tt.oid, Type: Counter32, Value: uint32(1)}}}
		err := ReportError(pdu)
		require.ErrorIs(t, err, tt.want, tt.oid.String())
		assert.Equal(t, KindSecurity, KindOf(err))
	}

	assert.ErrorIs(t, ReportError(&Pdu{Type: Report}), ErrUnknownReportPDU)
	assert.NoError(t, ReportError(&Pdu{Type: GetResponse}))
	assert.NoError(t, ReportError(nil))
}

func TestDiscover(t *testing.T) {
	user := UsmSecurityParameters{
		UserName:                 "discoverer",
		AuthenticationProtocol:   SHA256,
		AuthenticationPassphrase: "discover-auth",
	}

	t.Run("engine with a clock", func(t *testing.T) {
		agent := newUSMAgent(t, user, "\x80\x00\x1f\x88\x80clock", 5, 200, systemMIB)
		target := newTestTarget(t, agent)
		params := user
		require.NoError(t, target.Discover(context.Background(), &params))
		assert.Equal(t, 1, agent.discoveries)
		assert.Empty(t, agent.requests)
		assert.Equal(t, "\x80\x00\x1f\x88\x80clock", params.AuthoritativeEngineID)
		assert.Equal(t, uint32(5), params.AuthoritativeEngineBoots)
		assert.Equal(t, uint32(200), params.AuthoritativeEngineTime)
	})
	t.Run("engine reporting zero boots and time", func(t *testing.T) {
		agent := newUSMAgent(t, user, "\x80\x00\x1f\x88\x80noclock", 0, 0, systemMIB)
		target := newTestTarget(t, agent)
		params := user
		require.NoError(t, target.Discover(context.Background(), &params))
		assert.Equal(t, 1, agent.discoveries)
		// the second probe is authenticated and reaches the agent
		assert.Len(t, agent.requests, 1)
		assert.True(t, params.HasCachedKeys())
	})
	t.Run("agent silent", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		tr := mocks.NewMockTransport(ctrl)
		tr.EXPECT().
			Exchange(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), true).
			Return(nil, newError(KindTimeout, "exchange", ErrRequestTimeout, nil))
		target := newTestTarget(t, tr)
		params := user
		err := target.Discover(context.Background(), &params)
		require.ErrorIs(t, err, ErrDiscoveryFailed)
		assert.ErrorIs(t, err, ErrRequestTimeout)
		assert.Equal(t, KindSecurity, KindOf(err))
	})
	t.Run("missing secret", func(t *testing.T) {
		target := newTestTarget(t, newUSMAgent(t, user, "engine", 1, 1, systemMIB))
		params := user
		params.AuthenticationPassphrase = ""
		err := target.Discover(context.Background(), &params)
		assert.ErrorIs(t, err, ErrAuthSecretMissing)
	})
}

func TestUSMRequests(t *testing.T) {
	user := UsmSecurityParameters{
		UserName:                 "reader",
		AuthenticationProtocol:   MD5,
		AuthenticationPassphrase: "reader-auth-pass",
		PrivacyProtocol:          DES,
		PrivacyPassphrase:        "reader-priv-pass",
	}
	agent := newUSMAgent(t, user, "\x80\x00\x1f\x88\x80reader", 12, 5000, systemMIB)
	target := newTestTarget(t, agent)
	params := user

	vbs, err := target.Get(context.Background(), &params, "1.3.6.1.2.1.1.5.0")
	require.NoError(t, err)
	assert.Equal(t, []byte("core1"), vbs[0].Value)
	assert.Equal(t, 1, agent.discoveries)

	vbs, err = target.GetBulk(context.Background(), &params, 0, 2, "1.3.6.1.2.1.1")
	require.NoError(t, err)
	assert.Len(t, vbs, 2)

	agent.rewrite = func(_ int, reply *Pdu) {
		reply.Type = Report
		reply.Variables = []Vb{{Name: usmStatsNotInTimeWindows, Type: Counter32, Value: uint32(1)}}
	}
	_, err = target.Get(context.Background(), &params, "1.3.6.1.2.1.1.5.0")
	require.ErrorIs(t, err, ErrNotInTimeWindow)
	assert.Equal(t, KindSecurity, KindOf(err))
}

func TestUSMUnauthenticatedReportKeepsEngineState(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	target := newTestTarget(t, tr)
	params := usmUser(SHA, NoPriv)
	require.NoError(t, params.deriveKeys())

	tr.EXPECT().
		Exchange(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), true).
		DoAndReturn(func(_ context.Context, _ netip.AddrPort, out []byte, _ time.Duration, _ int, _ bool) ([]byte, error) {
			sent, err := DecodeMessage(out, Logger{})
			require.NoError(t, err)
			req := sent.(*V3Packet)
			report := &Pdu{Type: Report, RequestID: req.Pdu.RequestID}
			report.Add(Vb{Name: usmStatsUnknownUserNames, Type: Counter32, Value: uint32(1)})
			reply := &V3Packet{
				MsgID:         req.MsgID,
				MsgMaxSize:    rxBufSize,
				MsgFlags:      NoAuthNoPriv,
				SecurityModel: UserSecurityModel,
				Usm: UsmHeader{
					AuthoritativeEngineID:    "\x80\x00\x1f\x88\x80spoofed",
					AuthoritativeEngineBoots: 99,
					AuthoritativeEngineTime:  1,
				},
				Pdu: report,
			}
			return reply.MarshalMsg()
		})

	_, err := target.Get(context.Background(), &params, "1.3.6.1.2.1.1.5.0")
	require.ErrorIs(t, err, ErrUnknownUsername)
	assert.Equal(t, "\x80\x00\x1f\x88\x80usm-test", params.AuthoritativeEngineID)
	assert.Equal(t, uint32(9), params.AuthoritativeEngineBoots)
	assert.True(t, params.HasCachedKeys())
}

func TestUSMSafeString(t *testing.T) {
	sp := usmUser(SHA, AES)
	s := sp.SafeString()
	assert.Contains(t, s, "UserName:operator")
	assert.NotContains(t, s, "operator-auth")
	assert.NotContains(t, s, "operator-priv")
}

func TestNextMsgID(t *testing.T) {
	seen := map[uint32]bool{}
	for range 1000 {
		id := nextMsgID()
		require.NotZero(t, id)
		require.Less(t, id, uint32(1<<31))
		require.False(t, seen[id])
		seen[id] = true
	}
}
