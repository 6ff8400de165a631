// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package testlog hijacks the output of the log package for tests. By
// default output goes through testing functions; with buffering it is
// captured for analysis as part of the test. Fatal() becomes a test error
// unless FatalIsNotErr is set.
package testlog

import (
	"bytes"
	"fmt"
	"os"
	"testing"

	"github.com/purecloudlabs/sedboot/pkg/log"
	"github.com/purecloudlabs/sedboot/pkg/log/flags"
)

//Conforms to log.StackableLogger. Constructed via NewTestLog().
type TstLog struct {
	t             *testing.T
	Buf           *bytes.Buffer //if non-nil, output goes here instead of t.Log
	MsgCount      int           //counts end-user entries
	LogCount      int           //counts everything else
	FatalCount    int           //counts fatal entries
	FatalIsNotErr bool          //if true, do not call t.Errorf() for a fatal entry
	frozen        bool
	stderr        bool //also write to stderr immediately
}

// Returns a new TstLog installed as the entire log stack. If bufferLog,
// output accumulates in Buf rather than going to t.Log/t.Error. Do not
// share a TstLog between tests - create a new one each time, and call
// Freeze at the end.
func NewTestLog(t *testing.T, bufferLog, stderr bool) *TstLog {
	tlog := &TstLog{t: t, stderr: stderr}
	if bufferLog {
		tlog.Buf = new(bytes.Buffer)
	}
	log.NewLogStack(tlog)
	log.SetFatalAction(log.FailAction{Terminator: func() {}})
	return tlog
}

var _ log.StackableLogger = (*TstLog)(nil)

const TstLogIdent = "tstLog"

func (tl *TstLog) Ident() string                   { return TstLogIdent }
func (tl *TstLog) Next() log.StackableLogger       { return nil }
func (tl *TstLog) Finalize()                       {}
func (tl *TstLog) ForwardTo(_ log.StackableLogger) {}

func (tl *TstLog) AddEntry(e log.LogEntry) {
	if tl.frozen {
		return
	}
	tl.t.Helper()
	msg := e.Text()
	switch {
	case e.Flags&flags.Fatal != 0:
		tl.FatalCount++
		msg = ">>FATAL()<< " + msg
		if !tl.FatalIsNotErr {
			tl.t.Errorf("%s", msg)
			return
		}
	case e.Flags&flags.EndUser != 0:
		tl.MsgCount++
		msg = "MSG:" + msg
	default:
		tl.LogCount++
		msg = "LOG:" + msg
	}
	if tl.stderr {
		fmt.Fprintf(os.Stderr, "@%s %s\n", e.Time.Format(log.TimestampLayout), msg)
	}
	if tl.Buf != nil {
		fmt.Fprintln(tl.Buf, msg)
	} else {
		tl.t.Logf("%s", msg)
	}
}

//call at end of test to restore the default stack
func (tl *TstLog) Freeze() {
	if tl.frozen {
		return
	}
	tl.frozen = true
	log.DefaultLogStack()
	log.SetFatalAction(log.DefaultFatal)
}
