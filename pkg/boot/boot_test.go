// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package boot

import (
	"testing"
)

func TestInitrdArg(t *testing.T) {
	for _, tc := range []struct {
		args, want string
	}{
		{"initrd=/initramfs.img rw quiet", "initramfs.img"},
		{"rw initrd=boot/initrd.img", "boot/initrd.img"},
		{"rw quiet", ""},
		{"", ""},
		{"notinitrd=/x", ""},
	} {
		if got := initrdArg(tc.args); got != tc.want {
			t.Errorf("initrdArg(%q) = %q, want %q", tc.args, got, tc.want)
		}
	}
}

func TestLaunchMissingImage(t *testing.T) {
	l := &Launcher{ESPDir: t.TempDir()}
	if err := l.Launch(Target{Image: "vmlinuz-linux"}); err == nil {
		t.Error("want error for nonexistent kernel")
	}
	if err := l.Launch(Target{}); err == nil {
		t.Error("want error for empty target")
	}
}
