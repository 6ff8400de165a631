// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package console implements the operator-facing side of the password
// loop: masked input with * echo, backspace editing, ESC to give up and
// power off, and the optional clear-screen-between-attempts display
// style. Presentation only - the retry state machine lives in pkg/unlock
// and calls in here through a callback.
package console

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// ErrAborted means the operator hit ESC (or ctrl-c) at the prompt; the
// caller is expected to power the machine off.
var ErrAborted = errors.New("aborted by operator")

var ErrNoConsole = errors.New("no usable console")

type Console struct {
	in           *os.File
	out          io.Writer
	clearOnRetry bool
}

// Open finds a usable terminal. The initramfs normally has stdin/stdout
// on /dev/console already; if stdin is not a terminal there is no way to
// ask for a password at all.
func Open(clearOnRetry bool) (*Console, error) {
	c := &Console{in: os.Stdin, out: os.Stdout, clearOnRetry: clearOnRetry}
	if !term.IsTerminal(int(c.in.Fd())) {
		tty, err := os.OpenFile("/dev/console", os.O_RDWR, 0)
		if err != nil || !term.IsTerminal(int(tty.Fd())) {
			return nil, ErrNoConsole
		}
		c.in, c.out = tty, tty
	}
	return c, nil
}

//ANSI clear screen + home
func (c *Console) clear() {
	fmt.Fprint(c.out, "\x1b[2J\x1b[H")
}

// ReadPassword displays the prompt and collects a line with * echo.
// With clear-on-retry active, a retry prompt replaces the whole screen;
// otherwise prompts stack up, leaving a visible history of attempts.
// Satisfies unlock.PromptFn.
func (c *Console) ReadPassword(prompt string, retry bool) (string, error) {
	if retry && c.clearOnRetry {
		c.clear()
	}
	fmt.Fprint(c.out, prompt)

	old, err := term.MakeRaw(int(c.in.Fd()))
	if err != nil {
		return "", fmt.Errorf("raw mode: %w", err)
	}
	defer func() {
		term.Restore(int(c.in.Fd()), old)
		fmt.Fprint(c.out, "\r\n")
	}()

	var pw []byte
	var b [1]byte
	for {
		if _, err := c.in.Read(b[:]); err != nil {
			return "", err
		}
		switch {
		case b[0] == '\r' || b[0] == '\n':
			return string(pw), nil
		case b[0] == 0x7f || b[0] == 0x08: //backspace
			if len(pw) > 0 {
				pw = pw[:len(pw)-1]
				fmt.Fprint(c.out, "\b \b")
			}
		case b[0] == 0x1b:
			//arrow and function keys arrive as multi-byte escape
			//sequences; only a lone ESC is the operator giving up
			if !c.swallowEscapeSeq() {
				return "", ErrAborted
			}
		case b[0] == 0x03: //ctrl-c
			return "", ErrAborted
		case b[0] >= 0x20 && b[0] < 0x7f:
			pw = append(pw, b[0])
			fmt.Fprint(c.out, "*")
		}
		//anything else (NUL, stray control bytes) is ignored
	}
}

//how long the rest of a sequence may lag behind its ESC. Terminals send
//the whole sequence in one burst; a human cannot type this fast.
const escSeqDelayMs = 50

// swallowEscapeSeq consumes the remainder of an escape sequence whose
// ESC byte was just read. False means nothing else was pending, so the
// ESC stood alone.
func (c *Console) swallowEscapeSeq() bool {
	if !c.inputPending(escSeqDelayMs) {
		return false
	}
	var b [1]byte
	if _, err := c.in.Read(b[:]); err != nil {
		return false
	}
	switch b[0] {
	case '[':
		//CSI: parameter/intermediate bytes, then one final in 0x40-0x7e
		for c.inputPending(escSeqDelayMs) {
			if _, err := c.in.Read(b[:]); err != nil {
				break
			}
			if b[0] >= 0x40 && b[0] <= 0x7e {
				break
			}
		}
	case 'O':
		//SS3 (F1-F4, keypad): exactly one more byte
		if c.inputPending(escSeqDelayMs) {
			c.in.Read(b[:])
		}
	}
	//anything else is an alt-modified key; its byte is already consumed
	return true
}

func (c *Console) inputPending(ms int) bool {
	fds := []unix.PollFd{{Fd: int32(c.in.Fd()), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, ms)
	return err == nil && n > 0 && fds[0].Revents&unix.POLLIN != 0
}
