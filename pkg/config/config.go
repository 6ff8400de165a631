// Copyright (C) 2024-2026 the Sedboot Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package config reads the sedboot config file, a flat list of
// `key value` lines kept next to the boot image on the EFI system
// partition. Repeated image keys concatenate into one path; repeated arg
// keys accumulate into the kernel command line. Unknown keys are logged
// and skipped so that a config written for a newer sedboot still boots an
// older one.
package config

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
	"github.com/purecloudlabs/sedboot/pkg/log"
)

// How passwords map to drives. Only one password for all drives is
// implemented; asking per drive is a recognized-but-rejected mode so that
// a config requesting it fails loudly instead of silently prompting the
// wrong way.
type PasswordMode int

const (
	PwShared PasswordMode = iota
	PwAskIndividually
)

// Pin derivation scheme for Opal authentication, matching the two sedutil
// lineages in the field.
type PinHash int

const (
	HashSedutilDTA    PinHash = iota //pbkdf2, 75000 x sha1
	HashSedutilSHA512                //pbkdf2, 500000 x sha512
)

type Config struct {
	LogLevel     log.Severity
	Prompt       string
	RetryPrompt  string
	ClearOnRetry bool
	SEDLockedMsg string
	ImageSegs    []string
	ArgSegs      []string
	PinHash      PinHash
	PasswordMode PasswordMode
}

const (
	DefaultPrompt      = "password: "
	DefaultRetryPrompt = "bad password, retry: "
	DefaultLockedMsg   = "too many bad tries, SED locked out"
)

func defaults() *Config {
	return &Config{
		LogLevel:     log.Info,
		Prompt:       DefaultPrompt,
		RetryPrompt:  DefaultRetryPrompt,
		SEDLockedMsg: DefaultLockedMsg,
	}
}

// Parse reads the config file content. Malformed lines and unknown keys
// are logged and skipped; errors are reserved for values that cannot be
// given a safe meaning.
func Parse(data []byte) (*Config, error) {
	c := defaults()
	for n, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, _ := strings.Cut(line, " ")
		val = strings.TrimSpace(val)
		switch key {
		case "log-level":
			sev, err := log.ParseSeverity(val)
			if err != nil {
				log.Warnf("config line %d: %s, keeping %s", n+1, err, c.LogLevel)
				continue
			}
			c.LogLevel = sev
		case "prompt":
			c.Prompt = unquote(val)
		case "retry-prompt":
			c.RetryPrompt = unquote(val)
		case "clear-on-retry":
			c.ClearOnRetry = truthy(val)
		case "sed-locked-msg":
			c.SEDLockedMsg = unquote(val)
		case "image":
			c.ImageSegs = append(c.ImageSegs, val)
		case "arg":
			segs, err := shlex.Split(val)
			if err != nil {
				return nil, fmt.Errorf("config line %d: arg %q: %s", n+1, val, err)
			}
			c.ArgSegs = append(c.ArgSegs, segs...)
		case "pin-hash":
			switch val {
			case "sedutil-dta", "dta", "sha1":
				c.PinHash = HashSedutilDTA
			case "sedutil-sha512", "sha512":
				c.PinHash = HashSedutilSHA512
			default:
				return nil, fmt.Errorf("config line %d: unknown pin-hash %q", n+1, val)
			}
		case "password-mode":
			switch val {
			case "shared", "":
				c.PasswordMode = PwShared
			case "ask-individually":
				c.PasswordMode = PwAskIndividually
			default:
				return nil, fmt.Errorf("config line %d: unknown password-mode %q", n+1, val)
			}
		default:
			log.Logf("config line %d: ignoring unknown key %q", n+1, key)
		}
	}
	return c, c.Validate()
}

// Validate enforces the constraints that make booting possible at all.
func (c *Config) Validate() error {
	if len(c.ImageSegs) == 0 {
		return fmt.Errorf("no boot image configured")
	}
	if c.PasswordMode == PwAskIndividually {
		return fmt.Errorf("password-mode ask-individually is not implemented")
	}
	return nil
}

// ImagePath joins the image segments into the boot image path. Segments
// concatenate directly, no separator: "vmlinuz-" + "linux" is
// "vmlinuz-linux".
func (c *Config) ImagePath() string { return strings.Join(c.ImageSegs, "") }

// KernelArgs joins the arg segments with single spaces, in config order.
func (c *Config) KernelArgs() string { return strings.Join(c.ArgSegs, " ") }

//values like prompts may be quoted to preserve trailing whitespace
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
