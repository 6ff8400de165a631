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
	"testing"

	"github.com/google/go-cmp/cmp"
)

var espTypeBytes = []byte{
	0x28, 0x73, 0x2a, 0xc1, 0x1f, 0xf8, 0xd2, 0x11,
	0xba, 0x4b, 0x00, 0xa0, 0xc9, 0x3e, 0xc9, 0x3b,
}

func TestGUIDFromBytes(t *testing.T) {
	if got := GUIDFromBytes(espTypeBytes); got != ESPType {
		t.Errorf("want %s, got %s", ESPType, got)
	}
}

//build a synthetic single-disk image: protective mbr, gpt header, entries
func fakeDisk(t *testing.T, entries []gptEntry) *bytes.Reader {
	t.Helper()
	const ssz = 512
	img := make([]byte, ssz*(2+32))
	hdr := gptHeader{
		Signature:  gptSignature,
		Revision:   0x00010000,
		HeaderSize: 92,
		EntriesLBA: 2,
		NumEntries: uint32(len(entries)),
		EntrySize:  128,
	}
	var hbuf bytes.Buffer
	if err := binary.Write(&hbuf, binary.LittleEndian, &hdr); err != nil {
		t.Fatal(err)
	}
	copy(img[ssz:], hbuf.Bytes())
	off := 2 * ssz
	for _, e := range entries {
		var ebuf bytes.Buffer
		if err := binary.Write(&ebuf, binary.LittleEndian, &e); err != nil {
			t.Fatal(err)
		}
		copy(img[off:], ebuf.Bytes())
		off += 128
	}
	return bytes.NewReader(img)
}

func utf16leName(s string) (b [72]byte) {
	for i, r := range s {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(r))
	}
	return
}

func TestPartitions(t *testing.T) {
	var esp, root gptEntry
	copy(esp.TypeGUID[:], espTypeBytes)
	esp.GUID = [16]byte{1}
	esp.FirstLBA = 2048
	esp.LastLBA = 4095
	esp.Name = utf16leName("EFI system partition")
	root.TypeGUID = [16]byte{0xaa}
	root.GUID = [16]byte{2}
	root.FirstLBA = 4096
	root.LastLBA = 8191
	root.Name = utf16leName("root")

	//entry 2 is unused (zero type guid) and must be skipped
	parts, err := Partitions(fakeDisk(t, []gptEntry{esp, {}, root}), 512)
	if err != nil {
		t.Fatal(err)
	}
	want := []Partition{
		{
			Index:    1,
			TypeGUID: ESPType,
			GUID:     GUIDFromBytes(esp.GUID[:]),
			Name:     "EFI system partition",
			FirstLBA: 2048,
			LastLBA:  4095,
		},
		{
			Index:    3,
			TypeGUID: GUIDFromBytes(root.TypeGUID[:]),
			GUID:     GUIDFromBytes(root.GUID[:]),
			Name:     "root",
			FirstLBA: 4096,
			LastLBA:  8191,
		},
	}
	if diff := cmp.Diff(want, parts); diff != "" {
		t.Errorf("partitions mismatch (-want +got):\n%s", diff)
	}
}

func TestPartitionsBadSignature(t *testing.T) {
	img := make([]byte, 512*3)
	if _, err := Partitions(bytes.NewReader(img), 512); err == nil {
		t.Error("accepted disk without gpt signature")
	}
}

func TestPartName(t *testing.T) {
	for _, td := range []struct {
		disk string
		n    int
		want string
	}{
		{"sda", 1, "sda1"},
		{"sdb", 12, "sdb12"},
		{"nvme0n1", 1, "nvme0n1p1"},
		{"mmcblk0", 2, "mmcblk0p2"},
	} {
		if got := PartName(td.disk, td.n); got != td.want {
			t.Errorf("PartName(%s, %d) = %s, want %s", td.disk, td.n, got, td.want)
		}
	}
}
