// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestParseSeverity(t *testing.T) {
	for _, td := range []struct {
		in   string
		want Severity
		err  bool
	}{
		{in: "debug", want: Debug},
		{in: "info", want: Info},
		{in: "", want: Info},
		{in: "warn", want: Warning},
		{in: "warning", want: Warning},
		{in: "error", want: Error},
		{in: "chatty", want: Info, err: true},
	} {
		got, err := ParseSeverity(td.in)
		if (err != nil) != td.err {
			t.Errorf("%q: err %v", td.in, err)
		}
		if got != td.want {
			t.Errorf("%q: want %s, got %s", td.in, td.want, got)
		}
	}
}

func TestStackManipulation(t *testing.T) {
	DefaultLogStack()
	defer DefaultLogStack()

	if !InStack(MemLogIdent) {
		t.Fatal("default stack missing memLog")
	}
	buf := new(bytes.Buffer)
	if err := AddConsoleLogTo(buf, Info); err != nil {
		t.Fatal(err)
	}
	if err := AddConsoleLogTo(buf, Info); err == nil {
		t.Error("duplicate ident accepted")
	}
	Logf("first %d", 1)
	RemoveLogger(ConsoleLogIdent)
	Logf("second %d", 2)
	if got := buf.String(); !strings.Contains(got, "first 1") || strings.Contains(got, "second 2") {
		t.Errorf("unexpected console output: %q", got)
	}
	//memLog saw both
	ents := StoredEntries()
	if len(ents) != 2 {
		t.Fatalf("want 2 stored entries, got %d", len(ents))
	}
	if ents[1].Text() != "second 2" {
		t.Errorf("stored entry: %q", ents[1].Text())
	}
}

func TestConsoleThreshold(t *testing.T) {
	DefaultLogStack()
	defer DefaultLogStack()

	buf := new(bytes.Buffer)
	if err := AddConsoleLogTo(buf, Warning); err != nil {
		t.Fatal(err)
	}
	Debugf("too quiet")
	Logf("still too quiet")
	Warnf("loud enough")
	Msg("for the operator")
	out := buf.String()
	if strings.Contains(out, "too quiet") {
		t.Errorf("sub-threshold entries printed: %q", out)
	}
	if !strings.Contains(out, "loud enough") {
		t.Errorf("warning dropped: %q", out)
	}
	//end-user lines print bare, regardless of threshold
	if !strings.Contains(out, "for the operator\n") || strings.Contains(out, "info: for the operator") {
		t.Errorf("end-user formatting wrong: %q", out)
	}
}

func TestReplayAndFlush(t *testing.T) {
	DefaultLogStack()
	defer DefaultLogStack()

	Logf("early")
	buf := new(bytes.Buffer)
	if err := AddConsoleLogTo(buf, Info); err != nil {
		t.Fatal(err)
	}
	ReplayAndFlush(ConsoleLogIdent)
	if !strings.Contains(buf.String(), "early") {
		t.Errorf("buffered entry not replayed: %q", buf.String())
	}
	if InStack(MemLogIdent) {
		t.Error("memLog still in stack after flush")
	}
}

// a file sink installed below the console before the flush gets the
// buffered early entries through the cascade, exactly once
func TestReplayReachesFileLog(t *testing.T) {
	DefaultLogStack()
	defer DefaultLogStack()

	Logf("early")
	buf := new(bytes.Buffer)
	if err := AddConsoleLogTo(buf, Info); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	path, err := AddFileLog(dir)
	if err != nil {
		t.Fatal(err)
	}
	ReplayAndFlush(ConsoleLogIdent)
	Logf("late")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(raw)
	for _, want := range []string{"early", "late"} {
		if n := strings.Count(got, want); n != 1 {
			t.Errorf("%q appears %d times in file log, want 1:\n%s", want, n, got)
		}
	}
}

func TestFatalAction(t *testing.T) {
	DefaultLogStack()
	defer DefaultLogStack()
	defer SetFatalAction(DefaultFatal)

	fired := false
	SetFatalAction(FailAction{MsgPfx: "ERROR, rebooting:", Terminator: func() { fired = true }})
	Fatalf("boom %s", "now")
	if !fired {
		t.Error("terminator not run")
	}
	ents := StoredEntries()
	if len(ents) != 1 {
		t.Fatalf("want 1 entry, got %d", len(ents))
	}
	if got := ents[0].Text(); got != "ERROR, rebooting: boom now" {
		t.Errorf("fatal text: %q", got)
	}
}
