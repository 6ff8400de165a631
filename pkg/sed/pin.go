// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package sed

import (
	"crypto/sha1"
	"crypto/sha512"
	"fmt"

	"github.com/purecloudlabs/sedboot/pkg/config"
	"golang.org/x/crypto/pbkdf2"
)

// DerivePin stretches a typed password into the 32-byte Opal
// credential, salted with the drive serial so the same password yields
// a distinct pin per drive. The parameters match what sedutil-cli uses
// when provisioning, so drives set up with it unlock here.
//
// The serial is space padded to 20 characters before use, mirroring
// how it appears in the IDENTIFY data.
func DerivePin(password, serial string, hash config.PinHash) []byte {
	salt := []byte(fmt.Sprintf("%-20s", serial))
	switch hash {
	case config.HashSedutilSHA512:
		return pbkdf2.Key([]byte(password), salt, 500000, 32, sha512.New)
	default:
		return pbkdf2.Key([]byte(password), salt, 75000, 32, sha1.New)
	}
}
