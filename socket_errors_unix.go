// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

//go:build unix

package snmpclient

import (
	"errors"

	"golang.org/x/sys/unix"
)

// fatalErrnos are socket errors that no retry can fix. Anything else,
// EMSGSIZE and ETIMEDOUT included, is left to the retry loop.
var fatalErrnos = []struct {
	errno    unix.Errno
	sentinel error
}{
	{unix.ENETDOWN, ErrNetworkDown},
	{unix.ENETUNREACH, ErrNetworkUnreachable},
	{unix.ECONNRESET, ErrConnectionReset},
	{unix.EHOSTDOWN, ErrHostDown},
	{unix.EHOSTUNREACH, ErrHostUnreachable},
	{unix.ECONNREFUSED, ErrConnectionRefused},
}

// classifySocketError returns a KindNetwork *Error if err is fatal, or nil
// if the attempt may be retried.
func classifySocketError(op string, err error) error {
	for _, f := range fatalErrnos {
		if errors.Is(err, f.errno) {
			return newError(KindNetwork, op, f.sentinel, err)
		}
	}
	return nil
}
