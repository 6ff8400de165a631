// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//Package block deals with linux block devices as seen from the
//initramfs: enumerating whole disks from sysfs, creating missing /dev
//nodes, and locating the EFI system partition.
package block

import (
	"fmt"
	"os"
	fp "path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/purecloudlabs/sedboot/pkg/hw/ioctl"
	"github.com/purecloudlabs/sedboot/pkg/log"

	ublock "github.com/u-root/u-root/pkg/mount/block"
	"golang.org/x/sys/unix"
)

var sysClassBlock = "/sys/class/block"

type devNum struct {
	major, minor uint32
}

//parse "8:0\n" from /sys/class/block/<name>/dev
func readDevNum(name string) (devNum, error) {
	raw, err := os.ReadFile(fp.Join(sysClassBlock, name, "dev"))
	if err != nil {
		return devNum{}, err
	}
	maj, min, ok := strings.Cut(strings.TrimSpace(string(raw)), ":")
	if !ok {
		return devNum{}, fmt.Errorf("%s: malformed dev %q", name, raw)
	}
	major, err := strconv.ParseUint(maj, 10, 32)
	if err != nil {
		return devNum{}, err
	}
	minor, err := strconv.ParseUint(min, 10, 32)
	if err != nil {
		return devNum{}, err
	}
	return devNum{uint32(major), uint32(minor)}, nil
}

// Disks lists whole-disk device names (sda, nvme0n1, ...), ordered by
// major:minor. Readdir order is not stable and lexical order interleaves
// sda10 before sda2; device numbers follow bus discovery and are stable
// run to run on the same hardware, which keeps the prompt sequence
// deterministic.
func Disks() []string {
	ents, err := os.ReadDir(sysClassBlock)
	if err != nil {
		log.Logf("reading %s: %s", sysClassBlock, err)
		return nil
	}
	type cand struct {
		name string
		num  devNum
	}
	var cands []cand
	for _, e := range ents {
		name := e.Name()
		//partitions have no device link; loop/ram/zram have no backing hw
		if _, err := os.Stat(fp.Join(sysClassBlock, name, "device")); err != nil {
			continue
		}
		num, err := readDevNum(name)
		if err != nil {
			log.Logf("skipping %s: %s", name, err)
			continue
		}
		cands = append(cands, cand{name, num})
	}
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i].num, cands[j].num
		if a.major != b.major {
			return a.major < b.major
		}
		return a.minor < b.minor
	})
	var names []string
	for _, c := range cands {
		names = append(names, c.name)
	}
	return names
}

// DevPath returns /dev/<name>, creating the node from sysfs major:minor
// if the initramfs has no udev to do it.
func DevPath(name string) (string, error) {
	path := fp.Join("/dev", name)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	num, err := readDevNum(name)
	if err != nil {
		return "", err
	}
	dev := unix.Mkdev(num.major, num.minor)
	if err := unix.Mknod(path, unix.S_IFBLK|0600, int(dev)); err != nil {
		return "", fmt.Errorf("mknod %s: %s", path, err)
	}
	return path, nil
}

// Model returns the device model string from sysfs, or "" when absent.
func Model(name string) string {
	raw, err := os.ReadFile(fp.Join(sysClassBlock, name, "device", "model"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// DiskSize returns the device capacity in bytes (BLKGETSIZE64).
func DiskSize(devpath string) (uint64, error) {
	f, err := os.Open(devpath)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ioctl.BlkGetSize64(f)
}

// PartName returns the kernel name of partition n on the given disk:
// sda 1 -> sda1, nvme0n1 1 -> nvme0n1p1.
func PartName(disk string, n int) string {
	if len(disk) > 0 && disk[len(disk)-1] >= '0' && disk[len(disk)-1] <= '9' {
		return fmt.Sprintf("%sp%d", disk, n)
	}
	return fmt.Sprintf("%s%d", disk, n)
}

// Rescan asks the kernel to re-read the partition table, needed after an
// unlock since the partitions only become readable then.
func Rescan(devpath string) error {
	bd, err := ublock.Device(devpath)
	if err != nil {
		return err
	}
	return bd.ReadPartitionTable()
}
