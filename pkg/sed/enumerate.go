// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package sed

import (
	"os"
	"strings"

	"github.com/open-source-firmware/go-tcg-storage/pkg/core"
	"github.com/purecloudlabs/sedboot/pkg/hw/block"
	"github.com/purecloudlabs/sedboot/pkg/log"
	"github.com/purecloudlabs/sedboot/pkg/sed/ata"
)

// Enumerate probes every whole disk and reports what it found, in
// stable bus order. Drives that speak neither protocol come back with
// Variant Unsupported so the caller can see them in the logs; probe
// failures are logged and the drive skipped. Never fatal: a machine
// with no drives at all still boots from whatever the ESP holds.
func Enumerate() []*Drive {
	var drives []*Drive
	for _, name := range block.Disks() {
		devpath, err := block.DevPath(name)
		if err != nil {
			log.Errorf("%s: no device node: %s", name, err)
			continue
		}
		d := probe(name, devpath)
		if d == nil {
			continue
		}
		log.Logf("found %s", d)
		drives = append(drives, d)
	}
	if len(drives) == 0 {
		log.Msgf("no drives detected")
	}
	return drives
}

func probe(name, devpath string) *Drive {
	d := &Drive{
		Name:  name,
		Dev:   devpath,
		Model: block.Model(name),
	}
	if size, err := block.DiskSize(devpath); err == nil {
		d.Size = size
	}
	if probeOpal(d) {
		return d
	}
	if probeAta(d) {
		return d
	}
	// readable but speaks neither protocol; report it as unsupported
	// so it shows up in the log next to its siblings
	d.Variant = Unsupported
	d.State = Unlocked
	return d
}

// probeOpal runs Level 0 discovery. True means the drive's lock state
// is settled, whether or not Opal applies: an Opal drive without
// locking enabled is just an unlocked disk.
func probeOpal(d *Drive) bool {
	c, err := core.NewCore(d.Dev)
	if err != nil {
		// no discovery response; plain disks land here
		log.Debugf("%s: no opal discovery: %s", d.Dev, err)
		return false
	}
	if sn, err := c.SerialNumber(); err == nil {
		d.Serial = strings.TrimSpace(string(sn))
	} else {
		log.Debugf("%s: serial: %s", d.Dev, err)
	}
	loc := c.Level0Discovery.Locking
	if loc == nil || !loc.LockingEnabled {
		c.Close()
		return false
	}
	comID, _, err := core.FindComID(c.DriveIntf, c.Level0Discovery)
	if err != nil {
		log.Errorf("%s: opal comID: %s", d.Dev, err)
		c.Close()
		return false
	}
	d.Variant = TCGOpal
	if loc.Locked || (loc.MBREnabled && !loc.MBRDone) {
		d.State = Locked
	} else {
		d.State = Unlocked
	}
	d.opal = &opalHandle{
		core:        c,
		comID:       uint16(comID),
		mbrShadowed: loc.MBREnabled && !loc.MBRDone,
	}
	return true
}

func probeAta(d *Drive) bool {
	f, err := os.OpenFile(d.Dev, os.O_RDWR, 0)
	if err != nil {
		log.Errorf("%s: open: %s", d.Dev, err)
		return false
	}
	dev, info, err := ata.Open(f)
	if err != nil {
		log.Debugf("%s: no ata passthrough: %s", d.Dev, err)
		f.Close()
		return false
	}
	if d.Serial == "" {
		d.Serial = strings.TrimSpace(info.Serial)
	}
	if d.Model == "" {
		d.Model = strings.TrimSpace(info.Model)
	}
	sec := uint16(info.SecurityStatus)
	if sec&ata.SecSupported == 0 || sec&ata.SecEnabled == 0 {
		f.Close()
		return false
	}
	d.Variant = ATASecurity
	d.ata = dev
	switch {
	case sec&ata.SecLocked == 0:
		d.State = Unlocked
	case sec&ata.SecCountExpired != 0, sec&ata.SecFrozen != 0:
		d.State = LockedOut
	default:
		d.State = Locked
	}
	return true
}
