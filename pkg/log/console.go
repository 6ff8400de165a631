// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"fmt"
	"io"
	"os"

	"github.com/purecloudlabs/sedboot/pkg/log/flags"
)

// Console sink. End-user entries are printed bare; everything else at or
// above the configured minimum severity is printed with timestamp and
// severity. The minimum comes from the config file's log-level key.
type consoleLog struct {
	w    io.Writer
	min  Severity
	next StackableLogger
}

var _ StackableLogger = (*consoleLog)(nil)

const ConsoleLogIdent = "consoleLog"

func AddConsoleLog(min Severity) error {
	return AddLogger(&consoleLog{w: os.Stdout, min: min}, false)
}

//for tests
func AddConsoleLogTo(w io.Writer, min Severity) error {
	return AddLogger(&consoleLog{w: w, min: min}, false)
}

// SetConsoleLevel adjusts the threshold of an installed console sink,
// for when the configured level only becomes known after the sink is
// already catching early output.
func SetConsoleLevel(min Severity) {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	if cl, ok := findInStack(ConsoleLogIdent).(*consoleLog); ok {
		cl.min = min
	}
}

func (cl *consoleLog) AddEntry(e LogEntry) {
	switch {
	case e.Flags&flags.EndUser != 0:
		fmt.Fprintln(cl.w, e.Text())
	case e.Sev >= cl.min:
		fmt.Fprintln(cl.w, e.Line())
	}
	if cl.next != nil {
		cl.next.AddEntry(e)
	}
}

func (cl *consoleLog) ForwardTo(sl StackableLogger) {
	if cl.next == nil || sl == nil {
		cl.next = sl
	} else {
		panic("next already set")
	}
}

func (cl *consoleLog) Ident() string         { return ConsoleLogIdent }
func (cl *consoleLog) Next() StackableLogger { return cl.next }

func (cl *consoleLog) Finalize() {
	if cl.next != nil {
		cl.next.Finalize()
	}
}
