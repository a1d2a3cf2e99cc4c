// Copyright 2025 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

//go:build tsm_integration

package snmpclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/dtls/v3"
	"github.com/stretchr/testify/require"
)

// These tests need a net-snmp agent listening for DTLS, for example
//
//	snmpd -f -Lo -C -c snmpd-tsm.conf
//
// SNMPCLIENT_TSM_CERT_DIR holds client.crt, client.key and ca.crt.
// SNMPCLIENT_TSM_TARGET defaults to 127.0.0.1:10161.

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// tsmTarget returns a Target with a DTLSTransport configured from the
// environment.
func tsmTarget(t *testing.T) *Target {
	t.Helper()
	dir := os.Getenv("SNMPCLIENT_TSM_CERT_DIR")
	if dir == "" {
		t.Skip("SNMPCLIENT_TSM_CERT_DIR not set")
	}

	cert, err := tls.LoadX509KeyPair(filepath.Join(dir, "client.crt"), filepath.Join(dir, "client.key"))
	require.NoError(t, err)
	caPEM, err := os.ReadFile(filepath.Join(dir, "ca.crt"))
	require.NoError(t, err)
	pool := x509.NewCertPool()
	require.True(t, pool.AppendCertsFromPEM(caPEM), "failed to parse CA certificate")

	target, err := NewTarget(getEnvOrDefault("SNMPCLIENT_TSM_TARGET", "127.0.0.1:10161"), DefaultConfig())
	require.NoError(t, err)
	target.Timeout = 5 * time.Second
	target.Transport = &DTLSTransport{
		Config: &dtls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      pool,
			ServerName:   getEnvOrDefault("SNMPCLIENT_TSM_SERVER_NAME", "localhost"),
		},
	}
	t.Cleanup(func() { _ = target.Transport.Close() })
	return target
}

func TestDTLSGetSysUpTime(t *testing.T) {
	target := tsmTarget(t)
	vbs, err := target.Get(context.Background(), &TsmSecurityParameters{}, ".1.3.6.1.2.1.1.3.0")
	require.NoError(t, err)
	require.Len(t, vbs, 1)
	require.Equal(t, TimeTicks, vbs[0].Type)
	t.Logf("sysUpTime.0 = %v", vbs[0].Value)
}

func TestDTLSGetSysDescr(t *testing.T) {
	target := tsmTarget(t)
	vbs, err := target.Get(context.Background(), &TsmSecurityParameters{}, ".1.3.6.1.2.1.1.1.0")
	require.NoError(t, err)
	require.Len(t, vbs, 1)
	require.Equal(t, OctetString, vbs[0].Type)
	t.Logf("sysDescr.0 = %s", vbs[0].Value)
}

func TestDTLSWalkSystem(t *testing.T) {
	target := tsmTarget(t)
	vbs, err := target.BulkWalkAll(context.Background(), &TsmSecurityParameters{}, "1.3.6.1.2.1.1")
	require.NoError(t, err)
	require.NotEmpty(t, vbs)
	for _, vb := range vbs {
		t.Log(vb)
	}
}
