// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package opal speaks enough of the TCG Opal 2.0 session protocol to
// authenticate as Admin1 on the Locking SP and clear the locks: token
// encoding, compacket framing, StartSession, Set on the MBRControl and
// Locking tables, and EndSession. Method status codes are surfaced so
// callers can tell a bad credential from a tries-exhausted authority.
package opal

import (
	"errors"
	"fmt"
	"time"

	"github.com/open-source-firmware/go-tcg-storage/pkg/drive"
	"github.com/purecloudlabs/sedboot/pkg/log"
)

// Transport is the IF-SEND/IF-RECV surface of an opened drive.
// *core.Core satisfies it.
type Transport interface {
	IFSend(proto drive.SecurityProtocol, sps uint16, data []byte) error
	IFRecv(proto drive.SecurityProtocol, sps uint16, data *[]byte) error
}

// 8-byte UIDs from the Opal SSC reference tables.
var (
	uidSessionMgr   = []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff}
	uidStartSession = []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0x02}
	uidLockingSP    = []byte{0x00, 0x00, 0x02, 0x05, 0x00, 0x00, 0x00, 0x02}
	uidAdmin1       = []byte{0x00, 0x00, 0x00, 0x09, 0x00, 0x01, 0x00, 0x01}
	uidMethodSet    = []byte{0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00, 0x17}
	uidMBRControl   = []byte{0x00, 0x00, 0x08, 0x03, 0x00, 0x00, 0x00, 0x01}
	uidGlobalRange  = []byte{0x00, 0x00, 0x08, 0x02, 0x00, 0x00, 0x00, 0x01}
)

// Method status codes we act on; anything else nonzero is a protocol
// failure as far as the unlock flow is concerned.
const (
	statusSuccess            = 0x00
	statusNotAuthorized      = 0x01
	statusAuthorityLockedOut = 0x12
)

// MBRControl and Locking table column numbers.
const (
	colMBRDone     = 2
	colReadLocked  = 7
	colWriteLocked = 8
)

var (
	// ErrNotAuthorized means the TPer rejected the credential.
	ErrNotAuthorized = errors.New("opal: not authorized")
	// ErrAuthorityLockedOut means the authority's TryLimit is exhausted
	// until the drive is power cycled.
	ErrAuthorityLockedOut = errors.New("opal: authority locked out")
)

const (
	hostSessionID = 105
	recvBufLen    = 2048
	recvTries     = 10
	recvDelay     = 10 * time.Millisecond
)

// Session is an authenticated session on the Locking SP.
type Session struct {
	t     Transport
	comID uint16
	tsn   uint32
	hsn   uint32
	seq   uint32
}

// Start opens a session on the Locking SP authenticated as Admin1 with
// the given pin. ErrNotAuthorized and ErrAuthorityLockedOut map the
// corresponding method status codes; any other failure is a protocol
// error. Exactly one StartSession is issued per call.
func Start(t Transport, comID uint16, pin []byte) (*Session, error) {
	var w tokenWriter
	w.ctl(tokCall)
	w.bytes(uidSessionMgr)
	w.bytes(uidStartSession)
	w.ctl(tokStartList)
	w.uint(hostSessionID)
	w.bytes(uidLockingSP)
	w.uint(1) //write session
	w.ctl(tokStartName)
	w.uint(0) //HostChallenge
	w.bytes(pin)
	w.ctl(tokEndName)
	w.ctl(tokStartName)
	w.uint(3) //HostSigningAuthority
	w.bytes(uidAdmin1)
	w.ctl(tokEndName)
	w.ctl(tokEndList)
	endMethod(&w)

	s := &Session{t: t, comID: comID}
	tokens, err := s.exchange(0, 0, w.b)
	if err != nil {
		return nil, fmt.Errorf("StartSession: %w", err)
	}
	tsn, err := parseSyncSession(tokens)
	if err != nil {
		return nil, fmt.Errorf("StartSession: %w", err)
	}
	s.tsn = tsn
	s.hsn = hostSessionID
	return s, nil
}

// UnlockGlobalRange clears ReadLocked and WriteLocked on the global
// locking range.
func (s *Session) UnlockGlobalRange() error {
	err := s.set(uidGlobalRange, []col{{colReadLocked, 0}, {colWriteLocked, 0}})
	if err != nil {
		return fmt.Errorf("unlock global range: %w", err)
	}
	return nil
}

// SetMBRDone sets the Done flag on the MBRControl table so the drive
// presents the real user data instead of the shadow MBR.
func (s *Session) SetMBRDone() error {
	err := s.set(uidMBRControl, []col{{colMBRDone, 1}})
	if err != nil {
		return fmt.Errorf("set MBR done: %w", err)
	}
	return nil
}

// Close sends EndSession. Errors are logged, not returned; the locks
// are already released by the time this runs.
func (s *Session) Close() {
	var w tokenWriter
	w.ctl(tokEndSession)
	if _, err := s.exchange(s.tsn, s.hsn, w.b); err != nil {
		log.Debugf("opal: EndSession: %s", err)
	}
}

type col struct {
	num uint64
	val uint64
}

func (s *Session) set(obj []byte, cols []col) error {
	var w tokenWriter
	w.ctl(tokCall)
	w.bytes(obj)
	w.bytes(uidMethodSet)
	w.ctl(tokStartList)
	w.ctl(tokStartName)
	w.uint(1) //Values
	w.ctl(tokStartList)
	for _, c := range cols {
		w.ctl(tokStartName)
		w.uint(c.num)
		w.uint(c.val)
		w.ctl(tokEndName)
	}
	w.ctl(tokEndList)
	w.ctl(tokEndName)
	w.ctl(tokEndList)
	endMethod(&w)

	tokens, err := s.exchange(s.tsn, s.hsn, w.b)
	if err != nil {
		return err
	}
	return checkStatus(tokens)
}

//method call epilogue: EndOfData plus the host status list
func endMethod(w *tokenWriter) {
	w.ctl(tokEndOfData)
	w.ctl(tokStartList)
	w.uint(0)
	w.uint(0)
	w.uint(0)
	w.ctl(tokEndList)
}

func (s *Session) exchange(tsn, hsn uint32, tokens []byte) ([]byte, error) {
	s.seq++
	pkt := wrapComPacket(s.comID, tsn, hsn, s.seq, tokens)
	if err := s.t.IFSend(drive.SecurityProtocolTCGManagement, s.comID, pkt); err != nil {
		return nil, fmt.Errorf("IF-SEND: %w", err)
	}
	for i := 0; i < recvTries; i++ {
		buf := make([]byte, recvBufLen)
		if err := s.t.IFRecv(drive.SecurityProtocolTCGManagement, s.comID, &buf); err != nil {
			return nil, fmt.Errorf("IF-RECV: %w", err)
		}
		resp, pending, err := unwrapComPacket(buf)
		if err != nil {
			return nil, err
		}
		if !pending {
			return resp, nil
		}
		time.Sleep(recvDelay)
	}
	return nil, fmt.Errorf("response still pending after %d IF-RECVs", recvTries)
}

// parseSyncSession extracts the TPer session number from a SyncSession
// response and checks its status list.
func parseSyncSession(tokens []byte) (tsn uint32, err error) {
	if err = checkStatus(tokens); err != nil {
		return 0, err
	}
	r := &tokenReader{b: tokens}
	r.skipEmpty()
	// call, SMUID, SyncSession UID, then [ HostSessionID SPSessionID ... ]
	for _, want := range []byte{tokCall, 0, 0, tokStartList} {
		tok, err := r.next()
		if err != nil {
			return 0, err
		}
		if want != 0 && (tok.kind != kindCtl || tok.ctl != want) {
			return 0, fmt.Errorf("malformed SyncSession response")
		}
	}
	hsnTok, err := r.next()
	if err != nil {
		return 0, err
	}
	tsnTok, err := r.next()
	if err != nil {
		return 0, err
	}
	if hsnTok.kind != kindUint || tsnTok.kind != kindUint {
		return 0, fmt.Errorf("malformed SyncSession session numbers")
	}
	if hsnTok.u != hostSessionID {
		return 0, fmt.Errorf("SyncSession echoed host session %d, want %d", hsnTok.u, hostSessionID)
	}
	return uint32(tsnTok.u), nil
}

// checkStatus finds the status list trailing EndOfData and maps its
// first code to an error.
func checkStatus(tokens []byte) error {
	r := &tokenReader{b: tokens}
	r.skipEmpty()
	if r.more() && tokens[r.pos] == tokEndSession {
		// TPer abandoned the session instead of answering the method
		return ErrNotAuthorized
	}
	seenEOD := false
	for r.more() {
		tok, err := r.next()
		if err != nil {
			return err
		}
		if tok.kind != kindCtl {
			continue
		}
		switch tok.ctl {
		case tokEndOfData:
			seenEOD = true
		case tokStartList:
			if !seenEOD {
				continue
			}
			st, err := r.next()
			if err != nil {
				return err
			}
			if st.kind != kindUint {
				return fmt.Errorf("malformed status list")
			}
			switch st.u {
			case statusSuccess:
				return nil
			case statusNotAuthorized:
				return ErrNotAuthorized
			case statusAuthorityLockedOut:
				return ErrAuthorityLockedOut
			default:
				return fmt.Errorf("method failed with status 0x%02x", st.u)
			}
		}
	}
	return fmt.Errorf("response carries no status list")
}
