// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package log is a small stackable logging framework for pre-boot use.
// Loggers form a singly-linked stack; an entry given to the head is
// forwarded down the stack so the same event can land in memory, on the
// console, and in a file. The default stack holds only a memLog, so
// nothing is lost before a real sink is attached.
//
// Logf records detail for the log file; Msgf is for messages the operator
// is meant to see; Fatalf reports and then runs the configured FailAction,
// which in the initramfs means rebooting the machine.
package log

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/purecloudlabs/sedboot/pkg/log/flags"
)

// Severity orders entries for threshold filtering; sinks may drop entries
// below their configured minimum. EndUser and Fatal entries are never
// dropped.
type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warning:
		return "warn"
	case Error:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity understands the log-level values accepted in the config
// file.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "debug":
		return Debug, nil
	case "info", "":
		return Info, nil
	case "warn", "warning":
		return Warning, nil
	case "error":
		return Error, nil
	}
	return Info, fmt.Errorf("unknown log level %q", s)
}

type LogEntry struct {
	Time  time.Time
	Sev   Severity
	Flags flags.Flag
	Msg   string
	Args  []interface{}
}

// Text returns the formatted message without timestamp or severity.
func (e LogEntry) Text() string {
	if len(e.Args) == 0 {
		return e.Msg
	}
	return fmt.Sprintf(e.Msg, e.Args...)
}

const TimestampLayout = "15:04:05.000"

// Line returns the form written to file/console sinks for non-user
// entries.
func (e LogEntry) Line() string {
	return "@" + e.Time.Format(TimestampLayout) + " " + e.Sev.String() + ": " + e.Text()
}

type StackableLogger interface {
	AddEntry(LogEntry)
	ForwardTo(StackableLogger)
	Next() StackableLogger
	Ident() string
	Finalize()
}

var (
	logStackMtx sync.Mutex
	logStack    StackableLogger
	prefix      string
)

func init() { logStack = &memLog{} }

// FailAction defines what Fatalf does after logging. The initramfs wires
// this to a reboot; tests replace Terminator with a no-op.
type FailAction struct {
	MsgPfx     string
	Terminator func()
}

var DefaultFatal = FailAction{Terminator: func() { os.Exit(1) }}

var fatalMtx sync.Mutex
var fatalAction = DefaultFatal

func SetFatalAction(fa FailAction) {
	fatalMtx.Lock()
	defer fatalMtx.Unlock()
	if fa.Terminator == nil {
		fa.Terminator = DefaultFatal.Terminator
	}
	fatalAction = fa
}

// Adds sl to the stack - at the head if atHead, else at the tail. Fails if
// a logger with the same ident is already present.
func AddLogger(sl StackableLogger, atHead bool) error {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	if findInStack(sl.Ident()) != nil {
		return fmt.Errorf("logger %s already in stack", sl.Ident())
	}
	if logStack == nil || atHead {
		sl.ForwardTo(logStack)
		logStack = sl
		return nil
	}
	tail := logStack
	for tail.Next() != nil {
		tail = tail.Next()
	}
	tail.ForwardTo(sl)
	return nil
}

// Replaces the entire stack with sl. Loggers being discarded are not
// finalized; see Finalize.
func NewLogStack(sl StackableLogger) {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	logStack = sl
}

// Restores the default stack (a lone memLog).
func DefaultLogStack() {
	NewLogStack(&memLog{})
}

func findInStack(ident string) StackableLogger {
	sl := logStack
	for sl != nil {
		if sl.Ident() == ident {
			return sl
		}
		sl = sl.Next()
	}
	return nil
}

// FindInStack returns the logger with the given ident, if present.
func FindInStack(ident string) StackableLogger {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	return findInStack(ident)
}

func InStack(ident string) bool { return FindInStack(ident) != nil }

// RemoveLogger unlinks the logger with the given ident, without
// finalizing it.
func RemoveLogger(ident string) {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	var prev StackableLogger
	sl := logStack
	for sl != nil {
		if sl.Ident() == ident {
			if prev == nil {
				logStack = sl.Next()
			} else {
				//relink around sl; ForwardTo refuses to overwrite, so clear first
				prev.ForwardTo(nil)
				prev.ForwardTo(sl.Next())
			}
			return
		}
		prev = sl
		sl = sl.Next()
	}
}

// Finalize flushes and shuts down every logger in the stack. Call before
// handing off control to the next kernel.
func Finalize() {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	if logStack != nil {
		logStack.Finalize()
	}
}

func SetPrefix(p string) {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	prefix = p
}

func GetPrefix() string {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	return prefix
}

func addEntry(sev Severity, fl flags.Flag, f string, va ...interface{}) {
	e := LogEntry{
		Time:  time.Now(),
		Sev:   sev,
		Flags: fl,
		Msg:   f,
		Args:  va,
	}
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	if logStack != nil {
		logStack.AddEntry(e)
	}
}

//detail for the log, not shown to the operator by default
func Logf(f string, va ...interface{}) { addEntry(Info, flags.NA, f, va...) }
func Log(s string)                     { addEntry(Info, flags.NA, "%s", s) }
func Logln(va ...interface{}) {
	addEntry(Info, flags.NA, "%s", fmt.Sprintln(va...))
}

func Debugf(f string, va ...interface{}) { addEntry(Debug, flags.NA, f, va...) }
func Warnf(f string, va ...interface{})  { addEntry(Warning, flags.NA, f, va...) }
func Errorf(f string, va ...interface{}) { addEntry(Error, flags.NA, f, va...) }

//message intended for the operator's eyes
func Msgf(f string, va ...interface{}) { addEntry(Info, flags.EndUser, f, va...) }
func Msg(s string)                     { addEntry(Info, flags.EndUser, "%s", s) }

// Fatalf logs the message and then executes the configured FailAction.
// It does not return unless the FailAction's Terminator does.
func Fatalf(f string, va ...interface{}) {
	fatalMtx.Lock()
	fa := fatalAction
	fatalMtx.Unlock()
	if fa.MsgPfx != "" {
		f = fa.MsgPfx + " " + f
	}
	addEntry(Error, flags.Fatal|flags.EndUser, f, va...)
	fa.Terminator()
}
