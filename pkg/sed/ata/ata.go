// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package ata issues SECURITY UNLOCK to drives using the ATA Security
// feature set, via ATA-16 passthrough over SG_IO. The scuzz package
// handles IDENTIFY; the unlock path is framed here because the caller
// needs to tell a wrong password (command aborted) from an exhausted
// unlock counter, and that distinction lives in the sense data and the
// post-abort security status word.
package ata

import (
	"errors"
	"fmt"
	"os"

	"github.com/purecloudlabs/sedboot/pkg/log"
	"github.com/u-root/u-root/pkg/mount/scuzz"
)

// IDENTIFY DEVICE word 128 bits.
const (
	SecSupported    = 1 << 0
	SecEnabled      = 1 << 1
	SecLocked       = 1 << 2
	SecFrozen       = 1 << 3
	SecCountExpired = 1 << 4
)

var (
	// ErrPasswordTooLong is returned without touching the drive; the
	// feature set caps passwords at 32 bytes.
	ErrPasswordTooLong = errors.New("ata: password longer than 32 bytes")
	// ErrRejected means the drive aborted SECURITY UNLOCK, i.e. the
	// password is wrong.
	ErrRejected = errors.New("ata: security unlock rejected")
	// ErrTriesExpired means the unlock counter is exhausted and the
	// drive will abort every further attempt until power cycled.
	ErrTriesExpired = errors.New("ata: unlock attempts exhausted until power cycle")
)

const (
	cmdSecurityUnlock = 0xf2

	maxPasswordLen = 32
	payloadLen     = 512
)

type transport interface {
	ata16(cdb [16]byte, data []byte) (status uint8, sense []byte, err error)
	securityStatus() (uint16, error)
}

// Dev is a drive reachable over ATA passthrough.
type Dev struct {
	name string
	t    transport
	f    *os.File
}

// Close releases the passthrough file descriptor.
func (d *Dev) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// Open prepares dev for passthrough and returns it along with the
// IDENTIFY data, so the caller can classify the security state. The
// file stays open for the life of the Dev.
func Open(f *os.File) (*Dev, *scuzz.Info, error) {
	disk, err := scuzz.NewSGDiskFromFile(f)
	if err != nil {
		return nil, nil, fmt.Errorf("sg setup for %s: %w", f.Name(), err)
	}
	info, err := disk.Identify()
	if err != nil {
		return nil, nil, fmt.Errorf("identify %s: %w", f.Name(), err)
	}
	d := &Dev{
		name: f.Name(),
		t:    &sgIdentTransport{sgTransport: sgTransport{f: f}, disk: disk},
		f:    f,
	}
	return d, info, nil
}

type sgIdentTransport struct {
	sgTransport
	disk scuzz.Disk
}

func (t *sgIdentTransport) securityStatus() (uint16, error) {
	info, err := t.disk.Identify()
	if err != nil {
		return 0, err
	}
	return uint16(info.SecurityStatus), nil
}

// Unlock issues a single SECURITY UNLOCK with the user password.
// nil means the drive accepted it. ErrRejected, ErrTriesExpired and
// ErrPasswordTooLong classify the failures the caller acts on; any
// other error is a transport or protocol failure.
func (d *Dev) Unlock(password string) error {
	if len(password) > maxPasswordLen {
		return ErrPasswordTooLong
	}
	payload := make([]byte, payloadLen)
	// word 0 bit 0 selects the master password; zero means user
	copy(payload[2:], password)

	cdb := securityUnlockCDB()
	status, sense, err := d.t.ata16(cdb, payload)
	if err != nil {
		return fmt.Errorf("security unlock %s: %w", d.name, err)
	}
	aborted, err := classify(status, sense)
	if err != nil {
		return fmt.Errorf("security unlock %s: %w", d.name, err)
	}
	if !aborted {
		return nil
	}
	// The drive aborts both for a wrong password and for an exhausted
	// counter; re-read the security status word to tell them apart.
	sec, err := d.t.securityStatus()
	if err != nil {
		log.Debugf("%s: identify after abort: %s", d.name, err)
		return ErrRejected
	}
	if sec&SecCountExpired != 0 || sec&SecFrozen != 0 {
		return ErrTriesExpired
	}
	return ErrRejected
}

// ATA-16 (opcode 0x85) wrapping SECURITY UNLOCK: PIO data-out, one
// 512-byte block, length in the sector count field, CK_COND set so the
// ATA registers come back in the sense data.
func securityUnlockCDB() (cdb [16]byte) {
	cdb[0] = 0x85
	cdb[1] = 5 << 1 //PIO data-out
	cdb[2] = 0x26   //CK_COND, BYT_BLOK, T_LENGTH=sector count
	cdb[6] = 1      //one block
	cdb[14] = cmdSecurityUnlock
	return cdb
}

// classify decides whether the command succeeded or was aborted by the
// device, from the scsi status and the ATA status return descriptor.
func classify(status uint8, sense []byte) (aborted bool, err error) {
	st, errReg, ok := ataRegisters(sense)
	if !ok {
		// no descriptor; fall back on the scsi status alone
		if status == 0 {
			return false, nil
		}
		return false, fmt.Errorf("scsi status %#x with unusable sense % x", status, sense)
	}
	if st&0x01 == 0 { //ERR clear
		return false, nil
	}
	if errReg&0x04 != 0 { //ABRT
		return true, nil
	}
	return false, fmt.Errorf("device error: status %#x error %#x", st, errReg)
}

// ataRegisters pulls the ATA status and error registers out of
// descriptor-format sense data (response code 0x72, descriptor 0x09).
func ataRegisters(sense []byte) (status, errReg uint8, ok bool) {
	if len(sense) < 8 || sense[0]&0x7f != 0x72 {
		return 0, 0, false
	}
	desc := sense[8:]
	for len(desc) >= 2 {
		dlen := int(desc[1]) + 2
		if dlen > len(desc) {
			break
		}
		if desc[0] == 0x09 && dlen >= 14 {
			return desc[13], desc[3], true
		}
		desc = desc[dlen:]
	}
	return 0, 0, false
}
