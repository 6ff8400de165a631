// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package opal

import (
	"fmt"
)

// TCG Core token stream encoding (spec 3.2.2). Only the subset the
// session layer produces and consumes: unsigned atoms, byte-sequence
// atoms, and the control tokens.

const (
	tokStartList  = 0xf0
	tokEndList    = 0xf1
	tokStartName  = 0xf2
	tokEndName    = 0xf3
	tokCall       = 0xf8
	tokEndOfData  = 0xf9
	tokEndSession = 0xfa
	tokEmpty      = 0xff
)

type tokenWriter struct {
	b []byte
}

func (w *tokenWriter) ctl(t byte) { w.b = append(w.b, t) }

//unsigned integer atom: tiny if it fits, short otherwise
func (w *tokenWriter) uint(v uint64) {
	if v < 0x40 {
		w.b = append(w.b, byte(v))
		return
	}
	var be [8]byte
	n := 0
	for i := 7; i >= 0; i-- {
		be[i] = byte(v)
		v >>= 8
		n++
		if v == 0 {
			break
		}
	}
	w.b = append(w.b, 0x80|byte(n))
	w.b = append(w.b, be[8-n:]...)
}

//byte-sequence atom: short for <16 bytes, medium otherwise
func (w *tokenWriter) bytes(b []byte) {
	switch {
	case len(b) < 16:
		w.b = append(w.b, 0xa0|byte(len(b)))
	case len(b) < 2048:
		w.b = append(w.b, 0xd0|byte(len(b)>>8), byte(len(b)))
	default:
		panic(fmt.Sprintf("token too long: %d", len(b)))
	}
	w.b = append(w.b, b...)
}

type tokenKind int

const (
	kindUint tokenKind = iota
	kindBytes
	kindCtl
)

type token struct {
	kind tokenKind
	u    uint64
	bs   []byte
	ctl  byte
}

type tokenReader struct {
	b   []byte
	pos int
}

func (r *tokenReader) more() bool { return r.pos < len(r.b) }

func (r *tokenReader) next() (token, error) {
	if !r.more() {
		return token{}, fmt.Errorf("token stream exhausted")
	}
	h := r.b[r.pos]
	r.pos++
	switch {
	case h < 0x80: //tiny atom; bit 6 is the sign, which we never expect
		if h&0x40 != 0 {
			return token{}, fmt.Errorf("unexpected signed tiny atom 0x%02x", h)
		}
		return token{kind: kindUint, u: uint64(h & 0x3f)}, nil
	case h < 0xc0: //short atom
		n := int(h & 0x0f)
		if h&0x10 != 0 {
			return token{}, fmt.Errorf("unexpected continued/signed short atom 0x%02x", h)
		}
		body, err := r.take(n)
		if err != nil {
			return token{}, err
		}
		if h&0x20 != 0 {
			return token{kind: kindBytes, bs: body}, nil
		}
		var v uint64
		for _, by := range body {
			v = v<<8 | uint64(by)
		}
		return token{kind: kindUint, u: v}, nil
	case h < 0xe0: //medium atom
		if !r.more() {
			return token{}, fmt.Errorf("truncated medium atom")
		}
		n := int(h&0x07)<<8 | int(r.b[r.pos])
		r.pos++
		body, err := r.take(n)
		if err != nil {
			return token{}, err
		}
		if h&0x10 != 0 {
			return token{kind: kindBytes, bs: body}, nil
		}
		var v uint64
		for _, by := range body {
			v = v<<8 | uint64(by)
		}
		return token{kind: kindUint, u: v}, nil
	case h == tokStartList, h == tokEndList, h == tokStartName, h == tokEndName,
		h == tokCall, h == tokEndOfData, h == tokEndSession, h == tokEmpty:
		return token{kind: kindCtl, ctl: h}, nil
	}
	return token{}, fmt.Errorf("unhandled token 0x%02x", h)
}

func (r *tokenReader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.b) {
		return nil, fmt.Errorf("token runs past buffer (%d > %d)", r.pos+n, len(r.b))
	}
	b := r.b[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

//skip empty-atom padding between tokens
func (r *tokenReader) skipEmpty() {
	for r.more() && r.b[r.pos] == tokEmpty {
		r.pos++
	}
}
