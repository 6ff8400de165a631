// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package unlock

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/purecloudlabs/sedboot/pkg/config"
	"github.com/purecloudlabs/sedboot/pkg/hw/console"
	"github.com/purecloudlabs/sedboot/pkg/log/testlog"
	"github.com/purecloudlabs/sedboot/pkg/sed"
)

func testCfg() *config.Config {
	return &config.Config{
		Prompt:       "password: ",
		RetryPrompt:  "bad password, retry: ",
		SEDLockedMsg: "too many bad tries, SED locked out",
	}
}

func locked(name string) *sed.Drive {
	return &sed.Drive{Name: name, Dev: "/dev/" + name, Variant: sed.ATASecurity, State: sed.Locked}
}

// scripted unlocker: pops the next outcome for each drive and records
// every presentation
type fakeUnlocker struct {
	script map[string][]sed.Outcome
	calls  []string
}

func (f *fakeUnlocker) Unlock(d *sed.Drive, password string) sed.Attempt {
	f.calls = append(f.calls, d.Name+":"+password)
	s := f.script[d.Name]
	if len(s) == 0 {
		return sed.Attempt{Outcome: sed.ProtoErr, Err: errors.New("unscripted attempt")}
	}
	out := s[0]
	f.script[d.Name] = s[1:]
	if out == sed.Accepted {
		d.State = sed.Unlocked
	}
	return sed.Attempt{Outcome: out, Err: errors.New(out.String())}
}

type harness struct {
	u         *fakeUnlocker
	prompts   []string
	retries   []bool
	passwords []string
	rescanned []string
	launched  int
}

func (h *harness) collab(drives ...*sed.Drive) Collaborators {
	return Collaborators{
		Enumerate: func() []*sed.Drive { return drives },
		Unlocker:  h.u,
		Prompt: func(prompt string, retry bool) (string, error) {
			h.prompts = append(h.prompts, prompt)
			h.retries = append(h.retries, retry)
			if len(h.passwords) == 0 {
				return "", errors.New("out of passwords")
			}
			p := h.passwords[0]
			h.passwords = h.passwords[1:]
			return p, nil
		},
		Rescan: func(devpath string) error {
			h.rescanned = append(h.rescanned, devpath)
			return nil
		},
		Launch: func() error { h.launched++; return nil },
	}
}

func TestSharedPasswordFirstCycle(t *testing.T) {
	tl := testlog.NewTestLog(t, true, false)
	defer tl.Freeze()

	h := &harness{
		u: &fakeUnlocker{script: map[string][]sed.Outcome{
			"sda": {sed.Accepted},
			"sdb": {sed.Accepted},
		}},
		passwords: []string{"hunter2"},
	}
	if err := Run(testCfg(), h.collab(locked("sda"), locked("sdb"))); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"sda:hunter2", "sdb:hunter2"}, h.u.calls); diff != "" {
		t.Errorf("attempt order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"password: "}, h.prompts); diff != "" {
		t.Errorf("prompts (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"/dev/sda", "/dev/sdb"}, h.rescanned); diff != "" {
		t.Errorf("rescans (-want +got):\n%s", diff)
	}
	if h.launched != 1 {
		t.Errorf("launched %d times, want 1", h.launched)
	}
}

func TestAcceptedDriveLeavesPending(t *testing.T) {
	tl := testlog.NewTestLog(t, true, false)
	defer tl.Freeze()

	h := &harness{
		u: &fakeUnlocker{script: map[string][]sed.Outcome{
			"sda": {sed.Accepted},
			"sdb": {sed.Rejected, sed.Accepted},
		}},
		passwords: []string{"first", "second"},
	}
	if err := Run(testCfg(), h.collab(locked("sda"), locked("sdb"))); err != nil {
		t.Fatal(err)
	}
	want := []string{"sda:first", "sdb:first", "sdb:second"}
	if diff := cmp.Diff(want, h.u.calls); diff != "" {
		t.Errorf("sda must not see the second cycle (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"password: ", "bad password, retry: "}, h.prompts); diff != "" {
		t.Errorf("prompts (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]bool{false, true}, h.retries); diff != "" {
		t.Errorf("retry flags (-want +got):\n%s", diff)
	}
}

func TestLockoutMessageOnce(t *testing.T) {
	tl := testlog.NewTestLog(t, true, false)
	defer tl.Freeze()

	cfg := testCfg()
	h := &harness{
		u: &fakeUnlocker{script: map[string][]sed.Outcome{
			"sda": {sed.Rejected, sed.Rejected, sed.TriesExpired},
		}},
		passwords: []string{"a", "b", "c"},
	}
	if err := Run(cfg, h.collab(locked("sda"))); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(tl.Buf.String(), cfg.SEDLockedMsg); n != 1 {
		t.Errorf("lockout message shown %d times, want 1\n%s", n, tl.Buf.String())
	}
	if len(h.prompts) != 3 {
		t.Errorf("prompted %d times, want 3", len(h.prompts))
	}
	if h.launched != 1 {
		t.Error("boot must proceed after a lockout")
	}
	if len(h.rescanned) != 0 {
		t.Error("nothing unlocked, nothing to rescan")
	}
}

func TestProtoErrDrivesDropped(t *testing.T) {
	tl := testlog.NewTestLog(t, true, false)
	defer tl.Freeze()

	h := &harness{
		u: &fakeUnlocker{script: map[string][]sed.Outcome{
			"sda": {sed.ProtoErr},
		}},
		passwords: []string{"pw"},
	}
	if err := Run(testCfg(), h.collab(locked("sda"))); err != nil {
		t.Fatal(err)
	}
	if len(h.prompts) != 1 {
		t.Errorf("prompted %d times, want 1", len(h.prompts))
	}
	if h.launched != 1 {
		t.Error("boot must proceed past an unreachable drive")
	}
}

func TestAbortPropagates(t *testing.T) {
	tl := testlog.NewTestLog(t, true, false)
	defer tl.Freeze()

	h := &harness{u: &fakeUnlocker{script: map[string][]sed.Outcome{}}}
	c := h.collab(locked("sda"))
	c.Prompt = func(string, bool) (string, error) { return "", console.ErrAborted }
	err := Run(testCfg(), c)
	if !errors.Is(err, console.ErrAborted) {
		t.Errorf("got %v, want ErrAborted", err)
	}
	if h.launched != 0 {
		t.Error("abort must not boot")
	}
}

func TestNoConsoleIsFatal(t *testing.T) {
	tl := testlog.NewTestLog(t, true, false)
	defer tl.Freeze()

	h := &harness{u: &fakeUnlocker{}}
	c := h.collab(locked("sda"))
	c.Prompt = nil
	if err := Run(testCfg(), c); !errors.Is(err, ErrNoConsole) {
		t.Errorf("got %v, want ErrNoConsole", err)
	}
}

func TestNoDrivesStillBoots(t *testing.T) {
	tl := testlog.NewTestLog(t, true, false)
	defer tl.Freeze()

	h := &harness{u: &fakeUnlocker{}}
	c := h.collab()
	c.Prompt = nil //no console needed when nothing is locked
	if err := Run(testCfg(), c); err != nil {
		t.Fatal(err)
	}
	if h.launched != 1 {
		t.Error("must boot with no drives at all")
	}
}

func TestPreLockedOutReportedWithoutPrompt(t *testing.T) {
	tl := testlog.NewTestLog(t, true, false)
	defer tl.Freeze()

	cfg := testCfg()
	d := locked("sda")
	d.State = sed.LockedOut
	h := &harness{u: &fakeUnlocker{}}
	if err := Run(cfg, h.collab(d)); err != nil {
		t.Fatal(err)
	}
	if len(h.prompts) != 0 {
		t.Error("a drive locked out on arrival is not worth prompting for")
	}
	if n := strings.Count(tl.Buf.String(), cfg.SEDLockedMsg); n != 1 {
		t.Errorf("lockout message shown %d times, want 1", n)
	}
	if h.launched != 1 {
		t.Error("boot must proceed regardless")
	}
}

func TestUnsupportedDrivesIgnored(t *testing.T) {
	tl := testlog.NewTestLog(t, true, false)
	defer tl.Freeze()

	d := &sed.Drive{Name: "sdz", Dev: "/dev/sdz", Variant: sed.Unsupported}
	h := &harness{u: &fakeUnlocker{}}
	c := h.collab(d)
	c.Prompt = nil
	if err := Run(testCfg(), c); err != nil {
		t.Fatal(err)
	}
	if h.launched != 1 {
		t.Error("unsupported drives must not block boot")
	}
}
