// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package opal

import (
	"bytes"
	"errors"
	"testing"

	"github.com/open-source-firmware/go-tcg-storage/pkg/drive"
)

const testComID = 0x07fe

// fakeTPer records IF-SEND payloads and plays back canned IF-RECV
// responses in order.
type fakeTPer struct {
	sent      [][]byte
	responses [][]byte
}

func (f *fakeTPer) IFSend(proto drive.SecurityProtocol, sps uint16, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTPer) IFRecv(proto drive.SecurityProtocol, sps uint16, data *[]byte) error {
	if len(f.responses) == 0 {
		return errors.New("no canned response left")
	}
	copy(*data, f.responses[0])
	f.responses = f.responses[1:]
	return nil
}

//a SyncSession response carrying the given TSN and method status
func syncSessionResp(tsn uint32, status uint64) []byte {
	var w tokenWriter
	w.ctl(tokCall)
	w.bytes(uidSessionMgr)
	w.bytes([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0x03})
	w.ctl(tokStartList)
	w.uint(hostSessionID)
	w.uint(uint64(tsn))
	w.ctl(tokEndList)
	w.ctl(tokEndOfData)
	w.ctl(tokStartList)
	w.uint(status)
	w.uint(0)
	w.uint(0)
	w.ctl(tokEndList)
	return wrapComPacket(testComID, 0, 0, 1, w.b)
}

//a bare method result with the given status
func statusResp(status uint64) []byte {
	var w tokenWriter
	w.ctl(tokStartList)
	w.ctl(tokEndList)
	w.ctl(tokEndOfData)
	w.ctl(tokStartList)
	w.uint(status)
	w.uint(0)
	w.uint(0)
	w.ctl(tokEndList)
	return wrapComPacket(testComID, 0x1234, hostSessionID, 1, w.b)
}

func TestTokenRoundTrip(t *testing.T) {
	var w tokenWriter
	uints := []uint64{0, 0x3f, 0x40, 0xff, 0x1234, 0xdeadbeefcafe}
	for _, v := range uints {
		w.uint(v)
	}
	short := bytes.Repeat([]byte{0xab}, 15)
	med := bytes.Repeat([]byte{0xcd}, 300)
	w.bytes(short)
	w.bytes(med)

	r := &tokenReader{b: w.b}
	for _, v := range uints {
		tok, err := r.next()
		if err != nil {
			t.Fatal(err)
		}
		if tok.kind != kindUint || tok.u != v {
			t.Errorf("got %#v, want uint %#x", tok, v)
		}
	}
	for _, b := range [][]byte{short, med} {
		tok, err := r.next()
		if err != nil {
			t.Fatal(err)
		}
		if tok.kind != kindBytes || !bytes.Equal(tok.bs, b) {
			t.Errorf("byte atom mismatch, got %d bytes want %d", len(tok.bs), len(b))
		}
	}
	if r.more() {
		t.Error("unconsumed tokens")
	}
}

func TestStartSessionSuccess(t *testing.T) {
	f := &fakeTPer{responses: [][]byte{syncSessionResp(0x1234, statusSuccess)}}
	pin := []byte("sekrit")
	s, err := Start(f, testComID, pin)
	if err != nil {
		t.Fatal(err)
	}
	if s.tsn != 0x1234 || s.hsn != hostSessionID {
		t.Errorf("session numbers tsn=%#x hsn=%d", s.tsn, s.hsn)
	}
	if len(f.sent) != 1 {
		t.Fatalf("sent %d packets, want 1", len(f.sent))
	}
	sent := f.sent[0]
	if sent[4] != 0x07 || sent[5] != 0xfe {
		t.Errorf("comID not in compacket header: % x", sent[:8])
	}
	if !bytes.Contains(sent, pin) {
		t.Error("pin not present in StartSession payload")
	}
	if !bytes.Contains(sent, uidLockingSP) {
		t.Error("Locking SP UID not present in StartSession payload")
	}
}

func TestStartSessionNotAuthorized(t *testing.T) {
	f := &fakeTPer{responses: [][]byte{syncSessionResp(0, statusNotAuthorized)}}
	_, err := Start(f, testComID, []byte("wrong"))
	if !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("got %v, want ErrNotAuthorized", err)
	}
}

func TestStartSessionLockedOut(t *testing.T) {
	f := &fakeTPer{responses: [][]byte{syncSessionResp(0, statusAuthorityLockedOut)}}
	_, err := Start(f, testComID, []byte("wrong"))
	if !errors.Is(err, ErrAuthorityLockedOut) {
		t.Errorf("got %v, want ErrAuthorityLockedOut", err)
	}
}

func TestStartSessionEndedByTPer(t *testing.T) {
	var w tokenWriter
	w.ctl(tokEndSession)
	f := &fakeTPer{responses: [][]byte{wrapComPacket(testComID, 0, 0, 1, w.b)}}
	_, err := Start(f, testComID, []byte("x"))
	if !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("got %v, want ErrNotAuthorized", err)
	}
}

func TestUnlockAndMBRDone(t *testing.T) {
	f := &fakeTPer{responses: [][]byte{
		syncSessionResp(0x1234, statusSuccess),
		statusResp(statusSuccess),
		statusResp(statusSuccess),
	}}
	s, err := Start(f, testComID, []byte("pw"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UnlockGlobalRange(); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMBRDone(); err != nil {
		t.Fatal(err)
	}
	if len(f.sent) != 3 {
		t.Fatalf("sent %d packets, want 3", len(f.sent))
	}
	if !bytes.Contains(f.sent[1], uidGlobalRange) {
		t.Error("global range UID missing from unlock packet")
	}
	if !bytes.Contains(f.sent[2], uidMBRControl) {
		t.Error("MBRControl UID missing from mbr-done packet")
	}
}

func TestSetStatusFailure(t *testing.T) {
	f := &fakeTPer{responses: [][]byte{
		syncSessionResp(0x1234, statusSuccess),
		statusResp(0x3f),
	}}
	s, err := Start(f, testComID, []byte("pw"))
	if err != nil {
		t.Fatal(err)
	}
	err = s.UnlockGlobalRange()
	if err == nil {
		t.Fatal("want error for status 0x3f")
	}
	if errors.Is(err, ErrNotAuthorized) || errors.Is(err, ErrAuthorityLockedOut) {
		t.Errorf("status 0x3f misclassified: %v", err)
	}
}

func TestPendingResponseRetried(t *testing.T) {
	// zero-length compacket with outstanding data, then the real thing
	pending := make([]byte, comPktHdrLen)
	pending[8+3] = 1 //outstanding = 1
	f := &fakeTPer{responses: [][]byte{pending, syncSessionResp(0x42, statusSuccess)}}
	s, err := Start(f, testComID, []byte("pw"))
	if err != nil {
		t.Fatal(err)
	}
	if s.tsn != 0x42 {
		t.Errorf("tsn = %#x, want 0x42", s.tsn)
	}
}

func TestUnwrapTruncated(t *testing.T) {
	if _, _, err := unwrapComPacket(make([]byte, 10)); err == nil {
		t.Error("want error for short buffer")
	}
	// length field claiming more than the buffer holds
	buf := make([]byte, comPktHdrLen+8)
	buf[16+2] = 0xff
	if _, _, err := unwrapComPacket(buf); err == nil {
		t.Error("want error for oversized length field")
	}
}
