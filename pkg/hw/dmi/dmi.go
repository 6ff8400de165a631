// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//Package dmi reads a few DMI (aka SMBIOS) identity strings from sysfs.
//No dmidecode binary exists in the initramfs, but the kernel exports the
//interesting fields under /sys/class/dmi/id.
package dmi

import (
	"os"
	fp "path/filepath"
	"strings"

	"github.com/purecloudlabs/sedboot/pkg/log"
)

var sysDmi = "/sys/class/dmi/id"

type Identity struct {
	Vendor        string
	Product       string
	ProductSerial string
	BoardSerial   string
}

func read(name string) string {
	raw, err := os.ReadFile(fp.Join(sysDmi, name))
	if err != nil {
		//common on vms and odd boards; not worth a warning
		log.Debugf("dmi %s: %s", name, err)
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func Read() Identity {
	return Identity{
		Vendor:        read("sys_vendor"),
		Product:       read("product_name"),
		ProductSerial: read("product_serial"),
		BoardSerial:   read("board_serial"),
	}
}

// LogIdentity records which machine this is, so a captured log can be
// matched to a unit.
func LogIdentity() {
	id := Read()
	log.Logf("system vendor:  %s", id.Vendor)
	log.Logf("system product: %s", id.Product)
	log.Logf("system serial:  %s", id.ProductSerial)
	log.Logf("board serial:   %s", id.BoardSerial)
}
