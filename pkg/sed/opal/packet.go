// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package opal

import (
	"encoding/binary"
	"fmt"
)

// ComPacket/Packet/Subpacket framing per TCG Core 3.3.
// Header layout:
//   ComPacket  20 bytes: reserved(4) comID(2) comIDExt(2) outstanding(4) minTransfer(4) length(4)
//   Packet     24 bytes: TSN(4) HSN(4) seq(4) reserved(2) ackType(2) ack(4) length(4)
//   Subpacket  12 bytes: reserved(6) kind(2) length(4)
// All integers big-endian. Token payload padded to a 4-byte boundary.

const (
	comPktHdrLen = 20
	pktHdrLen    = 24
	subPktHdrLen = 12
)

func wrapComPacket(comID uint16, tsn, hsn, seq uint32, tokens []byte) []byte {
	pad := (4 - len(tokens)%4) % 4
	subLen := subPktHdrLen + len(tokens) + pad
	pktLen := pktHdrLen + subLen
	out := make([]byte, comPktHdrLen+pktLen)

	binary.BigEndian.PutUint16(out[4:], comID)
	binary.BigEndian.PutUint32(out[16:], uint32(pktLen))

	p := out[comPktHdrLen:]
	binary.BigEndian.PutUint32(p[0:], tsn)
	binary.BigEndian.PutUint32(p[4:], hsn)
	binary.BigEndian.PutUint32(p[8:], seq)
	binary.BigEndian.PutUint32(p[20:], uint32(subLen))

	s := p[pktHdrLen:]
	binary.BigEndian.PutUint32(s[8:], uint32(len(tokens)))
	copy(s[subPktHdrLen:], tokens)
	return out
}

// unwrapComPacket returns the token payload of the first data subpacket,
// or (nil, true, nil) when the TPer signals that the response is not yet
// available (zero length with outstanding data).
func unwrapComPacket(buf []byte) (tokens []byte, pending bool, err error) {
	if len(buf) < comPktHdrLen {
		return nil, false, fmt.Errorf("response shorter than compacket header (%d)", len(buf))
	}
	total := binary.BigEndian.Uint32(buf[16:])
	if total == 0 {
		outstanding := binary.BigEndian.Uint32(buf[8:])
		if outstanding != 0 {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("empty compacket with no outstanding data")
	}
	if int(total) > len(buf)-comPktHdrLen {
		return nil, false, fmt.Errorf("compacket length %d exceeds buffer", total)
	}
	p := buf[comPktHdrLen : comPktHdrLen+int(total)]
	if len(p) < pktHdrLen+subPktHdrLen {
		return nil, false, fmt.Errorf("packet shorter than headers (%d)", len(p))
	}
	s := p[pktHdrLen:]
	n := binary.BigEndian.Uint32(s[8:])
	if int(n) > len(s)-subPktHdrLen {
		return nil, false, fmt.Errorf("subpacket length %d exceeds buffer", n)
	}
	return s[subPktHdrLen : subPktHdrLen+int(n)], false, nil
}
