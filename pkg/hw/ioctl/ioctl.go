// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//Package ioctl wraps the handful of ioctls sedboot needs on block and
//generic scsi devices.
package ioctl

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

//anything with a file descriptor, i.e. os.File
type FDer interface {
	Fd() uintptr
}

//ioctl whose arg is an out pointer to a uint64
func Ioctl1(fd uintptr, op int) (uint64, error) {
	var val uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(op), uintptr(unsafe.Pointer(&val)))
	if errno != 0 {
		return 0, errno
	}
	return val, nil
}

//ioctl whose arg is a pointer to a struct the kernel reads and/or fills
func Ioctl(fd uintptr, op int, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(op), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

//BLKSSZGET
func BlkGetSectorSize(f FDer) (uint64, error) {
	BLKSSZGET := 0x1268
	var val uint32 //int-sized, unlike BLKGETSIZE64
	err := Ioctl(f.Fd(), BLKSSZGET, unsafe.Pointer(&val))
	return uint64(val), err
}

//BLKGETSIZE64
func BlkGetSize64(f FDer) (uint64, error) {
	BLKGETSIZE64 := 0x80081272
	return Ioctl1(f.Fd(), BLKGETSIZE64)
}
