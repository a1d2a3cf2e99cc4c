// Copyright 2025 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// CertMappingType selects how an agent certificate is turned into a
// tmSecurityName (RFC 6353 §5.3.2).
type CertMappingType int

const (
	// CertMapSpecified matches a configured fingerprint and yields the
	// configured SecurityName.
	CertMapSpecified CertMappingType = iota
	// CertMapSANRFC822 yields the first rfc822Name, host part lowercased.
	CertMapSANRFC822
	// CertMapSANDNSName yields the first dNSName, lowercased.
	CertMapSANDNSName
	CertMapSANIPAddress
	// CertMapSANAny tries rfc822Name, dNSName, then iPAddress.
	CertMapSANAny
	CertMapCommonName
)

var certMappingNames = map[CertMappingType]string{
	CertMapSpecified:    "specified",
	CertMapSANRFC822:    "san-rfc822",
	CertMapSANDNSName:   "san-dns",
	CertMapSANIPAddress: "san-ip",
	CertMapSANAny:       "san-any",
	CertMapCommonName:   "common-name",
}

func (t CertMappingType) String() string {
	if s, ok := certMappingNames[t]; ok {
		return s
	}
	return fmt.Sprintf("CertMappingType(%d)", int(t))
}

// UnmarshalText accepts the names printed by String, so mapping types can
// be written by name in configuration files.
func (t *CertMappingType) UnmarshalText(text []byte) error {
	for k, v := range certMappingNames {
		if strings.EqualFold(v, string(text)) {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown certificate mapping type %q", text)
}

// CertMapping is one entry of the certificate-to-name table used to check
// which agent answered on a (D)TLS session.
type CertMapping struct {
	Type CertMappingType `yaml:"type"`
	// Fingerprint is compared against the certificate for CertMapSpecified.
	Fingerprint []byte `yaml:"-"`
	// HashAlgo computes the fingerprint. Zero means SHA256.
	HashAlgo crypto.Hash `yaml:"-"`
	// SecurityName is the result of a CertMapSpecified match.
	SecurityName string `yaml:"security_name"`
}

// ErrNoCertMapping is returned when no mapping matches the agent's chain.
var ErrNoCertMapping = errors.New("no matching certificate mapping")

// ParseFingerprint decodes a fingerprint written as hex, optionally with
// colon separators and a hash name prefix, for example
// "SHA256:9f:86:d0:...". A missing prefix means SHA256.
func ParseFingerprint(s string) ([]byte, crypto.Hash, error) {
	algo := crypto.SHA256
	if name, rest, ok := strings.Cut(s, "="); ok {
		s = rest
		var err error
		if algo, err = fingerprintHash(name); err != nil {
			return nil, 0, err
		}
	} else if i := strings.IndexByte(s, ':'); i > 2 && i < 7 {
		if h, err := fingerprintHash(s[:i]); err == nil {
			algo, s = h, s[i+1:]
		}
	}
	fp, err := hex.DecodeString(strings.ReplaceAll(s, ":", ""))
	if err != nil {
		return nil, 0, fmt.Errorf("fingerprint: %w", err)
	}
	if len(fp) != algo.Size() {
		return nil, 0, fmt.Errorf("fingerprint is %d bytes, %s needs %d", len(fp), algo, algo.Size())
	}
	return fp, algo, nil
}

func fingerprintHash(name string) (crypto.Hash, error) {
	switch strings.ToUpper(strings.ReplaceAll(name, "-", "")) {
	case "SHA1":
		return crypto.SHA1, nil
	case "SHA224":
		return crypto.SHA224, nil
	case "SHA256":
		return crypto.SHA256, nil
	case "SHA384":
		return crypto.SHA384, nil
	case "SHA512":
		return crypto.SHA512, nil
	}
	return 0, fmt.Errorf("unknown fingerprint hash %q", name)
}

// CertFingerprint hashes the DER encoding of cert. Zero hashAlgo means
// SHA256.
func CertFingerprint(cert *x509.Certificate, hashAlgo crypto.Hash) []byte {
	if hashAlgo == 0 {
		hashAlgo = crypto.SHA256
	}
	h := hashAlgo.New()
	h.Write(cert.Raw)
	return h.Sum(nil)
}

// ResolveAgentIdentity maps the DER chain presented by an agent to a
// tmSecurityName. Mappings are tried in order, each against every
// certificate of the chain; the first match wins.
func ResolveAgentIdentity(rawChain [][]byte, mappings []CertMapping) (string, error) {
	if len(rawChain) == 0 {
		return "", errors.New("agent presented no certificate")
	}
	chain := make([]*x509.Certificate, 0, len(rawChain))
	for i, der := range rawChain {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return "", fmt.Errorf("agent certificate %d: %w", i, err)
		}
		chain = append(chain, cert)
	}
	return securityNameFromChain(chain, mappings)
}

func securityNameFromChain(chain []*x509.Certificate, mappings []CertMapping) (string, error) {
	for _, m := range mappings {
		for _, cert := range chain {
			if name, ok := m.apply(cert); ok {
				return name, nil
			}
		}
	}
	return "", ErrNoCertMapping
}

// verifyAgentIdentity resolves the chain and, when want is set, checks the
// result against it.
func verifyAgentIdentity(rawChain [][]byte, mappings []CertMapping, want string) (string, error) {
	if len(mappings) == 0 {
		return "", nil
	}
	name, err := ResolveAgentIdentity(rawChain, mappings)
	if err != nil {
		return "", newError(KindSecurity, "agent identity", ErrAgentIdentity, err)
	}
	if want != "" && name != want {
		return name, newError(KindSecurity, "agent identity", ErrAgentIdentity,
			fmt.Errorf("agent maps to %q, want %q", name, want))
	}
	return name, nil
}

func (m CertMapping) apply(cert *x509.Certificate) (string, bool) {
	switch m.Type {
	case CertMapSpecified:
		if len(m.Fingerprint) > 0 && bytes.Equal(CertFingerprint(cert, m.HashAlgo), m.Fingerprint) {
			return m.SecurityName, true
		}
	case CertMapSANRFC822:
		if len(cert.EmailAddresses) > 0 {
			return lowercaseEmailHost(cert.EmailAddresses[0]), true
		}
	case CertMapSANDNSName:
		if len(cert.DNSNames) > 0 {
			return strings.ToLower(cert.DNSNames[0]), true
		}
	case CertMapSANIPAddress:
		if len(cert.IPAddresses) > 0 {
			return cert.IPAddresses[0].String(), true
		}
	case CertMapSANAny:
		for _, t := range [...]CertMappingType{CertMapSANRFC822, CertMapSANDNSName, CertMapSANIPAddress} {
			if name, ok := (CertMapping{Type: t}).apply(cert); ok {
				return name, true
			}
		}
	case CertMapCommonName:
		if cert.Subject.CommonName != "" {
			return cert.Subject.CommonName, true
		}
	}
	return "", false
}

// lowercaseEmailHost lowercases the part after the @ only.
func lowercaseEmailHost(email string) string {
	local, host, ok := strings.Cut(email, "@")
	if !ok {
		return email
	}
	return local + "@" + strings.ToLower(host)
}
