// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// sedboot is the pre-boot unlock binary: it runs as pid 1 in a tiny
// initramfs, unlocks any self-encrypting drives with a password typed
// at the console, and kexecs into the kernel named by the config file
// on the EFI system partition.
//
// It can also run as an ordinary process for development, in which
// case reboot/poweroff degrade to exiting.
package main

import (
	"errors"
	"os"
	fp "path/filepath"

	"github.com/purecloudlabs/sedboot/pkg/boot"
	"github.com/purecloudlabs/sedboot/pkg/config"
	"github.com/purecloudlabs/sedboot/pkg/hw/block"
	"github.com/purecloudlabs/sedboot/pkg/hw/console"
	"github.com/purecloudlabs/sedboot/pkg/hw/dmi"
	"github.com/purecloudlabs/sedboot/pkg/hw/power"
	"github.com/purecloudlabs/sedboot/pkg/log"
	"github.com/purecloudlabs/sedboot/pkg/sed"
	"github.com/purecloudlabs/sedboot/pkg/unlock"
	"github.com/spf13/pflag"
	"github.com/u-root/u-root/pkg/mount"
	"github.com/u-root/u-root/pkg/ulog"
)

//set by the linker
var buildId = "dev build"

var (
	cfgPath = pflag.String("config", "config", "config file, relative to the ESP root")
	espDir  = pflag.String("esp", "/esp", "mountpoint for the EFI system partition")
	logDir  = pflag.String("log-dir", "", "also write the log to a file under this dir")
)

func main() {
	pflag.Parse()
	log.SetPrefix("sedboot")

	if os.Getpid() == 1 {
		earlyMounts()
		//keep kernel chatter off the password prompt
		if err := ulog.KernelLog.SetConsoleLogLevel(ulog.KLogNotice); err != nil {
			log.Logf("console loglevel: %s", err)
		}
	}
	if err := log.AddConsoleLog(log.Warning); err != nil {
		log.Logf("console sink: %s", err)
	}
	//file sink goes in before the replay so the buffered early entries
	//cascade into it as well
	var logPath string
	if *logDir != "" {
		path, err := log.AddFileLog(*logDir)
		if err != nil {
			log.Logf("file log: %s", err)
		}
		logPath = path
	}
	log.ReplayAndFlush(log.ConsoleLogIdent)
	if logPath != "" {
		log.Logf("logging to %s", logPath)
	}
	log.Logf("sedboot %s", buildId)
	dmi.LogIdentity()

	if err := boot.MountESP(*espDir); err != nil {
		log.Fatalf("%s", err)
	}
	raw, err := os.ReadFile(fp.Join(*espDir, *cfgPath))
	if err != nil {
		log.Fatalf("reading config: %s", err)
	}
	cfg, err := config.Parse(raw)
	if err != nil {
		log.Fatalf("config %s: %s", *cfgPath, err)
	}
	log.SetConsoleLevel(cfg.LogLevel)

	collab := unlock.Collaborators{
		Enumerate: sed.Enumerate,
		Unlocker:  sed.NewUnlocker(cfg.PinHash),
		Rescan:    block.Rescan,
		Launch: func() error {
			l := &boot.Launcher{ESPDir: *espDir}
			return l.Launch(boot.Target{Image: cfg.ImagePath(), Args: cfg.KernelArgs()})
		},
	}
	if cons, err := console.Open(cfg.ClearOnRetry); err == nil {
		collab.Prompt = cons.ReadPassword
	} else {
		//only fatal if something turns out to be locked
		log.Logf("no console: %s", err)
	}

	//Run only returns on failure
	err = unlock.Run(cfg, collab)
	if errors.Is(err, console.ErrAborted) {
		log.Msgf("giving up at operator request, powering off")
		power.Off()
		return
	}
	if err == nil {
		err = errors.New("boot handoff returned")
	}
	log.Fatalf("%s", err)
}

// The initramfs has no fstab and nothing mounts the api filesystems
// before pid 1; everything downstream needs them.
func earlyMounts() {
	for _, m := range []struct{ src, dir, fstype string }{
		{"proc", "/proc", "proc"},
		{"sysfs", "/sys", "sysfs"},
		{"devtmpfs", "/dev", "devtmpfs"},
	} {
		if err := os.MkdirAll(m.dir, 0755); err != nil {
			log.Logf("mkdir %s: %s", m.dir, err)
			continue
		}
		if _, err := mount.Mount(m.src, m.dir, m.fstype, "", 0); err != nil {
			log.Logf("mount %s: %s", m.dir, err)
		}
	}
}
