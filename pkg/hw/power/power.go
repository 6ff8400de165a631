// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//Package power handles poweroff- and reboot-related functionality.
//
//As a side-effect of import, log's fatal action is set to FailReboot, so
//any log.Fatalf anywhere in the binary ends with a clean machine reset
//instead of a pid-1 exit panic.
package power

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/purecloudlabs/sedboot/pkg/log"

	"golang.org/x/sys/unix"
)

// Defines the action taken on failure, which is to reboot. Importing this
// package has the side effect of calling log.SetFatalAction() with this.
var FatalAction = log.FailAction{
	MsgPfx:     "ERROR, rebooting:",
	Terminator: FailReboot,
}

func init() {
	log.SetFatalAction(FatalAction)
}

//give the operator a chance to read the message before the screen goes away
var failDelay = 10 * time.Second

//Pause, then reboot.
func FailReboot() {
	time.Sleep(failDelay)
	Reboot(false)
}

//Not for general use - prefer FailReboot() or log.Fatalf()
func Reboot(success bool) {
	/* this func can be called from a defer statement; deferred functions
	   will execute even if panic() was called. exiting or rebooting will
	   mask any such panic, so check for it and log it
	*/
	x := recover()
	if x != nil {
		log.Logf("panic() caught in reboot(success=%t)", success)
		log.Msgf("internal error: %s", x)
		stars := "***********************************************************"
		log.Logf("%s\nstack trace:\n%s\n%s", stars, debug.Stack(), stars)
	}

	log.Finalize()
	if os.Getpid() != 1 {
		fmt.Fprintln(os.Stderr, "pid 1 would reboot here")
		os.Exit(1)
	}
	time.Sleep(2 * time.Second)
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		fmt.Printf("%s", err)
	}
}

// Off powers the machine down. Used when the operator hits ESC at the
// password prompt rather than waiting out a boot they do not want.
func Off() {
	log.Finalize()
	if os.Getpid() != 1 {
		fmt.Fprintln(os.Stderr, "pid 1 would shutdown here")
		os.Exit(0)
	}
	time.Sleep(2 * time.Second)
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_POWER_OFF); err != nil {
		fmt.Printf("%s", err)
	}
}
