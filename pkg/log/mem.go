// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

// Default log type, holding entries in memory so that nothing logged
// before the console or file sinks exist is lost. Once a real sink is in
// the stack, ReplayAndFlush hands the buffered entries over.
type memLog struct {
	entries []LogEntry
	next    StackableLogger
}

var _ StackableLogger = (*memLog)(nil)

//entries kept before the oldest are dropped; boot logging is small but a
//wedged prompt loop must not grow without bound
const memLimit = 4096

func AddMemLog() error { return AddLogger(&memLog{}, false) }

func (ml *memLog) AddEntry(e LogEntry) {
	if len(ml.entries) >= memLimit {
		ml.entries = ml.entries[1:]
	}
	ml.entries = append(ml.entries, e)
	if ml.next != nil {
		ml.next.AddEntry(e)
	}
}

func (ml *memLog) ForwardTo(sl StackableLogger) {
	if ml.next == nil || sl == nil {
		ml.next = sl
	} else {
		panic("next already set")
	}
}

const MemLogIdent = "memLog"

func (ml *memLog) Ident() string         { return MemLogIdent }
func (ml *memLog) Next() StackableLogger { return ml.next }

func (ml *memLog) Finalize() {
	ml.entries = nil
	if ml.next != nil {
		ml.next.Finalize()
	}
}

// StoredEntries returns everything logged so far. Requires a memLog in the
// stack; mostly useful in tests.
func StoredEntries() []LogEntry {
	ml := FindInStack(MemLogIdent)
	if ml == nil {
		return nil
	}
	return ml.(*memLog).entries
}

// ReplayAndFlush re-sends buffered entries to the logger with the given
// ident (skipping itself and anything else in the stack), then removes the
// memLog. Used once the console/file sinks exist, so early entries appear
// there too.
func ReplayAndFlush(ident string) {
	logStackMtx.Lock()
	ml, _ := findInStack(MemLogIdent).(*memLog)
	dst := findInStack(ident)
	if ml != nil && dst != nil {
		for _, e := range ml.entries {
			dst.AddEntry(e)
		}
	}
	logStackMtx.Unlock()
	RemoveLogger(MemLogIdent)
}

// FlushMemLog removes the memLog without replaying, preventing unbounded
// accumulation once other sinks exist.
func FlushMemLog() {
	RemoveLogger(MemLogIdent)
}
