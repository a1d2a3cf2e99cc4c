// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"errors"
	"fmt"
)

// AgentParameters is the version tag and security material of a request.
// It is implemented by *CommunityParameters for v1 and v2c, and by the v3
// security contexts *UsmSecurityParameters and *TsmSecurityParameters. The
// set is closed.
type AgentParameters interface {
	Version() SnmpVersion
	// Valid reports whether the parameters can be used for a request.
	Valid() bool
	agentParameters()
}

// CommunityParameters carries the community string of a v1 or v2c request.
type CommunityParameters struct {
	version   SnmpVersion
	Community string
}

// NewCommunityParameters returns parameters for version, which must be
// Version1 or Version2c, and a non-empty community.
func NewCommunityParameters(version SnmpVersion, community string) (*CommunityParameters, error) {
	p := &CommunityParameters{version: version, Community: community}
	if version != Version1 && version != Version2c {
		return nil, newError(KindConfiguration, "community parameters", ErrUnsupportedVersion,
			fmt.Errorf("version %s does not use a community", version))
	}
	if community == "" {
		return nil, newError(KindConfiguration, "community parameters", ErrInvalidParameters,
			errors.New("empty community"))
	}
	return p, nil
}

func (p *CommunityParameters) Version() SnmpVersion { return p.version }

func (p *CommunityParameters) Valid() bool {
	return p != nil && (p.version == Version1 || p.version == Version2c) && p.Community != ""
}

func (p *CommunityParameters) agentParameters() {}
