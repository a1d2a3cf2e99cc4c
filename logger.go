// Copyright 2021 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpclient

import (
	"context"
	"fmt"
	"log/slog"
)

// LoggerInterface is satisfied by *log.Logger and anything else with the
// same Print and Printf methods.
//
// For verbose logging to stdout:
//
//	target.Logger = snmpclient.NewLogger(log.New(os.Stdout, "", 0))
type LoggerInterface interface {
	Print(v ...any)
	Printf(format string, v ...any)
}

// Logger is the debug logger used throughout the package. The zero value
// discards everything. Building with the snmpclient_nodebug tag compiles
// logging out entirely.
type Logger struct {
	logger LoggerInterface
}

func NewLogger(logger LoggerInterface) Logger {
	return Logger{
		logger: logger,
	}
}

// SlogAdapter routes Logger output into a slog.Logger at a fixed level.
type SlogAdapter struct {
	Logger *slog.Logger
	Level  slog.Level
}

func (a SlogAdapter) Print(v ...any) {
	a.Logger.Log(context.Background(), a.Level, fmt.Sprint(v...))
}

func (a SlogAdapter) Printf(format string, v ...any) {
	a.Logger.Log(context.Background(), a.Level, fmt.Sprintf(format, v...))
}
