// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package sed models self-encrypting drives and dispatches unlock
// attempts to the protocol each drive speaks: TCG Opal 2.0 or the ATA
// Security feature set. Enumeration probes every whole-disk block
// device, Opal first, and classifies its lock state; the unlock flow
// in pkg/unlock drives the rest.
package sed

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/open-source-firmware/go-tcg-storage/pkg/core"
	"github.com/purecloudlabs/sedboot/pkg/config"
	"github.com/purecloudlabs/sedboot/pkg/log"
	"github.com/purecloudlabs/sedboot/pkg/sed/ata"
	"github.com/purecloudlabs/sedboot/pkg/sed/opal"
)

// Variant is the unlock protocol a drive speaks.
type Variant int

const (
	Unsupported Variant = iota
	ATASecurity
	TCGOpal
)

func (v Variant) String() string {
	switch v {
	case ATASecurity:
		return "ata security"
	case TCGOpal:
		return "tcg opal"
	}
	return "unsupported"
}

// LockState is what we know about a drive's locking state.
type LockState int

const (
	Unlocked LockState = iota
	Locked
	// LockedOut drives abort every credential until power cycled.
	LockedOut
)

func (s LockState) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case Locked:
		return "locked"
	}
	return "locked out"
}

// Outcome classifies a single unlock attempt.
type Outcome int

const (
	// Accepted: the drive took the credential and released its locks.
	Accepted Outcome = iota
	// Rejected: wrong credential; the drive will take another.
	Rejected
	// TriesExpired: the drive refuses all further credentials until a
	// power cycle.
	TriesExpired
	// ProtoErr: the exchange itself failed; no verdict on the credential.
	ProtoErr
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case TriesExpired:
		return "tries expired"
	}
	return "protocol error"
}

// Attempt is the result of presenting one credential to one drive.
type Attempt struct {
	Outcome Outcome
	Err     error
}

// Drive is one enumerated disk.
type Drive struct {
	Name     string //kernel name, e.g. sda
	Dev      string //device node
	Model    string
	Serial   string
	Size     uint64 //bytes, 0 if unreadable
	Variant  Variant
	State    LockState
	Failures int

	opal *opalHandle
	ata  *ata.Dev
}

type opalHandle struct {
	core        *core.Core
	comID       uint16
	mbrShadowed bool //shadow MBR enabled and not yet marked done
}

func (d *Drive) String() string {
	if d.Size == 0 {
		return fmt.Sprintf("%s (%s, %s, %s)", d.Dev, d.Model, d.Variant, d.State)
	}
	return fmt.Sprintf("%s (%s, %s, %s, %s)", d.Dev, d.Model, humanize.Bytes(d.Size), d.Variant, d.State)
}

// Unlocker presents one credential to one drive and classifies the
// result. Exactly one protocol exchange per call; retry policy lives
// with the caller.
type Unlocker interface {
	Unlock(d *Drive, password string) Attempt
}

// NewUnlocker returns the real protocol dispatcher. hash selects the
// password-to-pin derivation used for Opal drives.
func NewUnlocker(hash config.PinHash) Unlocker {
	return &protoUnlocker{hash: hash}
}

type protoUnlocker struct {
	hash config.PinHash
}

func (u *protoUnlocker) Unlock(d *Drive, password string) (a Attempt) {
	switch d.Variant {
	case ATASecurity:
		a = classifyAta(d.ata.Unlock(password))
	case TCGOpal:
		a = u.opalUnlock(d, password)
	default:
		a = Attempt{Outcome: ProtoErr, Err: fmt.Errorf("%s: no unlock protocol", d.Dev)}
	}
	switch a.Outcome {
	case Accepted:
		d.State = Unlocked
		log.Logf("%s: unlocked", d.Dev)
	case Rejected:
		d.Failures++
	case TriesExpired:
		d.State = LockedOut
		d.Failures++
	case ProtoErr:
		log.Errorf("%s: unlock failed: %s", d.Dev, a.Err)
	}
	return
}

func classifyAta(err error) Attempt {
	switch {
	case err == nil:
		return Attempt{Outcome: Accepted}
	case errors.Is(err, ata.ErrRejected), errors.Is(err, ata.ErrPasswordTooLong):
		// an oversize password cannot be the right one, and the drive
		// never saw it, so it costs no tries
		return Attempt{Outcome: Rejected, Err: err}
	case errors.Is(err, ata.ErrTriesExpired):
		return Attempt{Outcome: TriesExpired, Err: err}
	}
	return Attempt{Outcome: ProtoErr, Err: err}
}

func (u *protoUnlocker) opalUnlock(d *Drive, password string) Attempt {
	pin := DerivePin(password, d.Serial, u.hash)
	s, err := opal.Start(d.opal.core, d.opal.comID, pin)
	switch {
	case err == nil:
	case errors.Is(err, opal.ErrNotAuthorized):
		return Attempt{Outcome: Rejected, Err: err}
	case errors.Is(err, opal.ErrAuthorityLockedOut):
		return Attempt{Outcome: TriesExpired, Err: err}
	default:
		return Attempt{Outcome: ProtoErr, Err: err}
	}
	defer s.Close()
	if err := s.UnlockGlobalRange(); err != nil {
		return Attempt{Outcome: ProtoErr, Err: err}
	}
	if d.opal.mbrShadowed {
		if err := s.SetMBRDone(); err != nil {
			return Attempt{Outcome: ProtoErr, Err: err}
		}
	}
	return Attempt{Outcome: Accepted}
}

// Close releases the device handles held for unlock attempts. Call it
// once the unlock flow is done with the drive.
func (d *Drive) Close() {
	if d.opal != nil {
		if err := d.opal.core.Close(); err != nil {
			log.Debugf("%s: close: %s", d.Dev, err)
		}
		d.opal = nil
	}
	if d.ata != nil {
		if err := d.ata.Close(); err != nil {
			log.Debugf("%s: close: %s", d.Dev, err)
		}
		d.ata = nil
	}
}
