// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package unlock runs the interactive unlock flow: prompt for a
// password, present it to every drive still locked, repeat until none
// remain, then hand off to the boot launcher. Drives leave the pending
// set exactly once each, and a drive whose unlock counter runs out
// gets the configured lockout message exactly once. Boot proceeds
// regardless of how the drives left the set.
package unlock

import (
	"errors"
	"fmt"

	"github.com/purecloudlabs/sedboot/pkg/config"
	"github.com/purecloudlabs/sedboot/pkg/log"
	"github.com/purecloudlabs/sedboot/pkg/sed"
)

// ErrNoConsole means locked drives exist but there is no way to ask
// for a password. Unattended recovery is impossible; the caller should
// treat it as fatal.
var ErrNoConsole = errors.New("locked drives present but no usable console")

// PromptFn reads one password. retry is set on every prompt after the
// first, so the presentation layer can switch messages and clear the
// screen. It returns the console package's ErrAborted when the
// operator asks to give up.
type PromptFn func(prompt string, retry bool) (string, error)

// Collaborators are the seams between the flow and the machinery. Every
// field must be set except Prompt, which may be nil when no console
// could be opened; that is only fatal if something is actually locked.
type Collaborators struct {
	Enumerate func() []*sed.Drive
	Unlocker  sed.Unlocker
	Prompt    PromptFn
	Rescan    func(devpath string) error
	Launch    func() error
}

// Run is the whole show. It returns the launcher's error (the launcher
// does not return on success), ErrNoConsole, or the prompt's abort
// error.
func Run(cfg *config.Config, c Collaborators) error {
	drives := c.Enumerate()

	var pending, unlocked []*sed.Drive
	for _, d := range drives {
		switch {
		case d.Variant == sed.Unsupported:
		case d.State == sed.Locked:
			pending = append(pending, d)
		case d.State == sed.LockedOut:
			log.Msgf("%s: %s", d.Dev, cfg.SEDLockedMsg)
		}
	}
	if len(pending) > 0 {
		if c.Prompt == nil {
			return ErrNoConsole
		}
		var err error
		unlocked, err = drain(cfg, c, pending)
		if err != nil {
			return err
		}
	}

	for _, d := range drives {
		d.Close()
	}
	for _, d := range unlocked {
		if err := c.Rescan(d.Dev); err != nil {
			log.Errorf("%s: partition rescan: %s", d.Dev, err)
		}
	}
	return c.Launch()
}

// drain prompts until the pending set is empty and returns the drives
// that actually unlocked. One password per cycle, tried against every
// pending drive in enumeration order.
func drain(cfg *config.Config, c Collaborators, pending []*sed.Drive) ([]*sed.Drive, error) {
	var unlocked []*sed.Drive
	for retry := false; len(pending) > 0; retry = true {
		prompt := cfg.Prompt
		if retry {
			prompt = cfg.RetryPrompt
		}
		password, err := c.Prompt(prompt, retry)
		if err != nil {
			return nil, fmt.Errorf("password entry: %w", err)
		}

		var still []*sed.Drive
		for _, d := range pending {
			a := c.Unlocker.Unlock(d, password)
			switch a.Outcome {
			case sed.Accepted:
				unlocked = append(unlocked, d)
			case sed.Rejected:
				if a.Err != nil {
					log.Logf("%s: %s", d.Dev, a.Err)
				} else {
					log.Logf("%s: password rejected", d.Dev)
				}
				still = append(still, d)
			case sed.TriesExpired:
				log.Msgf("%s: %s", d.Dev, cfg.SEDLockedMsg)
			case sed.ProtoErr:
				// detail already logged by the unlocker; no point
				// retrying a drive we cannot talk to
				log.Msgf("%s: giving up, drive is not responding correctly", d.Dev)
			}
		}
		pending = still
	}
	return unlocked, nil
}
