// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

//go:build !unix && !plan9

package snmpclient

import (
	"errors"
	"syscall"
)

var fatalErrnos = []struct {
	errno    syscall.Errno
	sentinel error
}{
	{syscall.ENETUNREACH, ErrNetworkUnreachable},
	{syscall.ECONNRESET, ErrConnectionReset},
	{syscall.EHOSTUNREACH, ErrHostUnreachable},
	{syscall.ECONNREFUSED, ErrConnectionRefused},
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
