// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package boot loads a kernel from the EFI system partition and jumps
// into it via kexec. The image and argument lists come from the config
// on the same partition; paths are relative to its root.
package boot

import (
	"errors"
	"fmt"
	"os"
	fp "path/filepath"
	"strings"

	"github.com/purecloudlabs/sedboot/pkg/hw/block"
	"github.com/purecloudlabs/sedboot/pkg/log"
	ub "github.com/u-root/u-root/pkg/boot"
	"github.com/u-root/u-root/pkg/boot/kexec"
	"github.com/u-root/u-root/pkg/mount"
	"golang.org/x/sys/unix"
)

// Target is what to boot: both paths relative to the ESP root, args as
// a single kernel command line.
type Target struct {
	Image string
	Args  string
}

// Launcher boots a Target from a mounted ESP.
type Launcher struct {
	ESPDir string
}

// Launch loads the kernel plus any initrd= from the command line and
// kexecs into it. It only returns on failure.
func (l *Launcher) Launch(t Target) error {
	if t.Image == "" {
		return errors.New("no boot image configured")
	}
	kernel, err := os.Open(fp.Join(l.ESPDir, t.Image))
	if err != nil {
		return fmt.Errorf("boot image: %w", err)
	}
	defer kernel.Close()

	img := &ub.LinuxImage{
		Name:    t.Image,
		Kernel:  kernel,
		Cmdline: t.Args,
	}
	if rdPath := initrdArg(t.Args); rdPath != "" {
		rd, err := os.Open(fp.Join(l.ESPDir, rdPath))
		if err != nil {
			return fmt.Errorf("initrd: %w", err)
		}
		defer rd.Close()
		img.Initrd = rd
	}

	log.Logf("loading %s", img)
	if err := img.Load(false); err != nil {
		return fmt.Errorf("kexec load %s: %w", t.Image, err)
	}
	log.Logf("booting %s", t.Image)
	log.Finalize()
	if err := kexec.Reboot(); err != nil {
		return fmt.Errorf("kexec: %w", err)
	}
	return nil
}

// initrdArg pulls the initrd path out of a kernel command line. The
// value stays on the command line; the kernel ignores it once kexec
// passes the image directly.
func initrdArg(args string) string {
	for _, f := range strings.Fields(args) {
		if v, ok := strings.CutPrefix(f, "initrd="); ok {
			return strings.TrimPrefix(v, "/")
		}
	}
	return ""
}

// MountESP finds the EFI system partition and mounts it read-only at
// dir, creating dir if needed.
func MountESP(dir string) error {
	devpath, err := block.FindESP()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if _, err := mount.Mount(devpath, dir, "vfat", "", unix.MS_RDONLY); err != nil {
		return fmt.Errorf("mounting %s on %s: %w", devpath, dir, err)
	}
	log.Logf("mounted %s on %s", devpath, dir)
	return nil
}
