// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Sedboot is a pre-boot authenticator for machines whose storage is one or
// more self-encrypting drives (SEDs). It is built into a minimal initramfs
// and runs as pid 1 in place of a normal init. At power-on it
//
//   - locates the EFI system partition and reads its config file,
//   - enumerates block devices and classifies each by unlock protocol
//     (legacy ATA security, TCG Opal locking, or unsupported),
//   - prompts the operator for a password and tries it against every drive
//     still locked, honoring drive-enforced try limits,
//   - once every drive is resolved one way or the other, kexecs the real
//     kernel with the configured argument string.
//
// A drive that reports its try limit exhausted is left alone for the rest
// of the session; clearing that state requires a power cycle. Unlock
// failure is never fatal to the boot path - the machine boots with
// whatever subset of drives unlocked, and the operator message log shows
// which ones did not.
//
// Subpackages under pkg contain the implementation; cmd/sedboot is the
// initramfs binary.
package sedboot
