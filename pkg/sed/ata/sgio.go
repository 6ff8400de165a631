// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package ata

import (
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"github.com/purecloudlabs/sedboot/pkg/hw/ioctl"
)

const (
	sgIO = 0x2285

	sgDxferNone  = -1
	sgDxferToDev = -2

	sgSenseLen  = 32
	sgTimeoutMs = 10000
)

// sg_io_hdr from <scsi/sg.h>, 64-bit layout.
type sgIOHdr struct {
	interfaceID    int32
	dxferDirection int32
	cmdLen         uint8
	mxSBLen        uint8
	iovecCount     uint16
	dxferLen       uint32
	dxferp         uintptr
	cmdp           uintptr
	sbp            uintptr
	timeout        uint32
	flags          uint32
	packID         int32
	_              int32
	usrPtr         uintptr
	status         uint8
	maskedStatus   uint8
	msgStatus      uint8
	sbLenWr        uint8
	hostStatus     uint16
	driverStatus   uint16
	resid          int32
	duration       uint32
	info           uint32
}

// sgTransport issues ATA-16 passthrough commands through the SG_IO
// ioctl on an open block device.
type sgTransport struct {
	f *os.File
}

func (t *sgTransport) ata16(cdb [16]byte, data []byte) (status uint8, sense []byte, err error) {
	sense = make([]byte, sgSenseLen)
	hdr := sgIOHdr{
		interfaceID:    'S',
		dxferDirection: sgDxferNone,
		cmdLen:         uint8(len(cdb)),
		mxSBLen:        sgSenseLen,
		cmdp:           uintptr(unsafe.Pointer(&cdb[0])),
		sbp:            uintptr(unsafe.Pointer(&sense[0])),
		timeout:        sgTimeoutMs,
	}
	if len(data) > 0 {
		hdr.dxferDirection = sgDxferToDev
		hdr.dxferLen = uint32(len(data))
		hdr.dxferp = uintptr(unsafe.Pointer(&data[0]))
	}
	err = ioctl.Ioctl(t.f.Fd(), sgIO, unsafe.Pointer(&hdr))
	runtime.KeepAlive(&cdb)
	runtime.KeepAlive(data)
	runtime.KeepAlive(sense)
	if err != nil {
		return 0, nil, fmt.Errorf("SG_IO on %s: %w", t.f.Name(), err)
	}
	if hdr.hostStatus != 0 || hdr.driverStatus&0x0f != 0 {
		return 0, nil, fmt.Errorf("SG_IO on %s: host status %#x, driver status %#x",
			t.f.Name(), hdr.hostStatus, hdr.driverStatus)
	}
	return hdr.status, sense[:hdr.sbLenWr], nil
}
