// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package block

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"unicode/utf16"

	"github.com/purecloudlabs/sedboot/pkg/hw/ioctl"
	"github.com/purecloudlabs/sedboot/pkg/log"
)

// Just enough GPT to find the EFI system partition; writing and repair
// belong to the OS proper, not a pre-boot environment.

const ESPType = "C12A7328-F81F-11D2-BA4B-00A0C93EC93B"

type Partition struct {
	Index    int //1-based, matches kernel partition numbering
	TypeGUID string
	GUID     string
	Name     string
	FirstLBA uint64
	LastLBA  uint64
}

type gptHeader struct {
	Signature      [8]byte
	Revision       uint32
	HeaderSize     uint32
	HeaderCRC      uint32
	_              uint32
	CurrentLBA     uint64
	BackupLBA      uint64
	FirstUsableLBA uint64
	LastUsableLBA  uint64
	DiskGUID       [16]byte
	EntriesLBA     uint64
	NumEntries     uint32
	EntrySize      uint32
	EntriesCRC     uint32
}

type gptEntry struct {
	TypeGUID   [16]byte
	GUID       [16]byte
	FirstLBA   uint64
	LastLBA    uint64
	Attributes uint64
	Name       [72]byte
}

var gptSignature = [8]byte{'E', 'F', 'I', ' ', 'P', 'A', 'R', 'T'}

// Partitions parses the primary GPT of a disk. Returns only entries that
// are in use (non-zero type GUID).
func Partitions(r io.ReaderAt, sectorSize uint64) ([]Partition, error) {
	if sectorSize == 0 {
		sectorSize = 512
	}
	hbuf := make([]byte, sectorSize)
	if _, err := r.ReadAt(hbuf, int64(sectorSize)); err != nil {
		return nil, fmt.Errorf("reading gpt header: %w", err)
	}
	var hdr gptHeader
	if err := binary.Read(bytes.NewReader(hbuf), binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	if hdr.Signature != gptSignature {
		return nil, fmt.Errorf("no gpt signature")
	}
	if hdr.EntrySize < 128 || hdr.NumEntries == 0 || hdr.NumEntries > 512 {
		return nil, fmt.Errorf("implausible gpt: %d entries of %d bytes", hdr.NumEntries, hdr.EntrySize)
	}
	ebuf := make([]byte, uint64(hdr.NumEntries)*uint64(hdr.EntrySize))
	if _, err := r.ReadAt(ebuf, int64(hdr.EntriesLBA*sectorSize)); err != nil {
		return nil, fmt.Errorf("reading gpt entries: %w", err)
	}
	var parts []Partition
	for i := uint32(0); i < hdr.NumEntries; i++ {
		var ent gptEntry
		off := i * hdr.EntrySize
		if err := binary.Read(bytes.NewReader(ebuf[off:off+hdr.EntrySize]), binary.LittleEndian, &ent); err != nil {
			return nil, err
		}
		if ent.TypeGUID == ([16]byte{}) {
			continue
		}
		parts = append(parts, Partition{
			Index:    int(i) + 1,
			TypeGUID: GUIDFromBytes(ent.TypeGUID[:]),
			GUID:     GUIDFromBytes(ent.GUID[:]),
			Name:     decodePartName(ent.Name[:]),
			FirstLBA: ent.FirstLBA,
			LastLBA:  ent.LastLBA,
		})
	}
	return parts, nil
}

// GUIDFromBytes returns the canonical string form of an on-disk GUID,
// whose first three groups are little-endian.
func GUIDFromBytes(b []byte) string {
	return fmt.Sprintf("%08X-%04X-%04X-%02X%02X-%012X",
		binary.LittleEndian.Uint32(b[0:4]),
		binary.LittleEndian.Uint16(b[4:6]),
		binary.LittleEndian.Uint16(b[6:8]),
		b[8], b[9], b[10:16])
}

func decodePartName(b []byte) string {
	u := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		c := binary.LittleEndian.Uint16(b[i:])
		if c == 0 {
			break
		}
		u = append(u, c)
	}
	return string(utf16.Decode(u))
}

// FindESP scans every disk for an EFI system partition and returns its
// /dev path. Exactly one must exist across all disks; zero or several
// mean the machine is not set up the way sedboot expects, and guessing a
// boot volume would be worse than stopping.
func FindESP() (string, error) {
	type hit struct {
		disk string
		part Partition
	}
	var hits []hit
	for _, disk := range Disks() {
		devpath, err := DevPath(disk)
		if err != nil {
			log.Logf("%s: %s", disk, err)
			continue
		}
		f, err := os.Open(devpath)
		if err != nil {
			log.Logf("%s: %s", devpath, err)
			continue
		}
		ssz, err := ioctl.BlkGetSectorSize(f)
		if err != nil {
			log.Logf("%s: sector size: %s, assuming 512", devpath, err)
			ssz = 512
		}
		parts, err := Partitions(f, ssz)
		f.Close()
		if err != nil {
			log.Debugf("%s: %s", devpath, err)
			continue
		}
		for _, p := range parts {
			if p.TypeGUID == ESPType {
				hits = append(hits, hit{disk, p})
			}
		}
	}
	switch len(hits) {
	case 0:
		return "", fmt.Errorf("no EFI system partition found")
	case 1:
	default:
		return "", fmt.Errorf("%d EFI system partitions found, refusing to guess", len(hits))
	}
	h := hits[0]
	log.Logf("ESP: %s partition %d (%s)", h.disk, h.part.Index, h.part.Name)
	return DevPath(PartName(h.disk, h.part.Index))
}
