// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"fmt"
	"os"
	fp "path/filepath"

	"github.com/purecloudlabs/sedboot/pkg/log/flags"
)

// File sink. Receives every entry regardless of severity, except those
// flagged NotFile. In the initramfs this is only useful when a writable
// volume exists before boot, e.g. when diagnosing in qemu.
type fileLog struct {
	f    *os.File
	next StackableLogger
}

var _ StackableLogger = (*fileLog)(nil)

const FileLogIdent = "fileLog"
const logName = "sedboot.log"

// AddFileLog creates dir/sedboot.log and adds a file sink writing to it.
// Returns the path of the log file.
func AddFileLog(dir string) (string, error) {
	path := fp.Join(dir, logName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return "", err
	}
	if err := AddLogger(&fileLog{f: f}, false); err != nil {
		f.Close()
		return "", err
	}
	return path, nil
}

func (fl *fileLog) AddEntry(e LogEntry) {
	if e.Flags&flags.NotFile == 0 {
		fmt.Fprintln(fl.f, e.Line())
	}
	if fl.next != nil {
		fl.next.AddEntry(e)
	}
}

func (fl *fileLog) ForwardTo(sl StackableLogger) {
	if fl.next == nil || sl == nil {
		fl.next = sl
	} else {
		panic("next already set")
	}
}

func (fl *fileLog) Ident() string         { return FileLogIdent }
func (fl *fileLog) Next() StackableLogger { return fl.next }

func (fl *fileLog) Finalize() {
	fl.f.Sync()
	fl.f.Close()
	if fl.next != nil {
		fl.next.Finalize()
	}
}
