/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2023-2026 Overlaynet Authors. All Rights Reserved.
 */

package rldp

import (
	"io"
	"log"
	"os"

	"github.com/overlaynet/rldp/transport"
)

const (
	LogLevelSilent = iota
	LogLevelError
	LogLevelInfo
	LogLevelDebug
)

// Logger is the protocol's leveled log sink. Loops that work on behalf of
// one transfer derive a scoped logger once and tag every line with the
// transfer id and peer, instead of threading ids through format arguments.
type Logger interface {
	Debugf(f string, v ...interface{})
	Infof(f string, v ...interface{})
	Errorf(f string, v ...interface{})

	// WithTransfer and WithPeer return a logger whose lines carry the
	// given scope. Scopes accumulate.
	WithTransfer(id TransferID) Logger
	WithPeer(peer transport.KeyID) Logger
}

type protocolLogger struct {
	level int
	out   *log.Logger
	scope string
}

var _ Logger = &protocolLogger{}

// NewLogger writes to stdout, discarding lines above level.
func NewLogger(level int, prepend string) Logger {
	return newLoggerTo(os.Stdout, level, prepend)
}

func newLoggerTo(w io.Writer, level int, prepend string) *protocolLogger {
	return &protocolLogger{
		level: level,
		out:   log.New(w, prepend, log.Ldate|log.Ltime),
	}
}

func (l *protocolLogger) printf(level int, tag, f string, v ...interface{}) {
	if l.level < level {
		return
	}
	l.out.Printf(tag+f+l.scope, v...)
}

func (l *protocolLogger) Debugf(f string, v ...interface{}) {
	l.printf(LogLevelDebug, "DEBUG: ", f, v...)
}

func (l *protocolLogger) Infof(f string, v ...interface{}) {
	l.printf(LogLevelInfo, "INFO: ", f, v...)
}

func (l *protocolLogger) Errorf(f string, v ...interface{}) {
	l.printf(LogLevelError, "ERROR: ", f, v...)
}

func (l *protocolLogger) with(scope string) Logger {
	scoped := *l
	scoped.scope = l.scope + scope
	return &scoped
}

func (l *protocolLogger) WithTransfer(id TransferID) Logger {
	return l.with(" [transfer " + id.String() + "]")
}

func (l *protocolLogger) WithPeer(peer transport.KeyID) Logger {
	return l.with(" [peer " + peer.String() + "]")
}
