// Bytenuts
// Copyright (c) 2026 The Bytenuts Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Bytenuts.
//
// Bytenuts is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Bytenuts is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Bytenuts.  If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/bytenuts/bytenuts/pkg/serial"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"gopkg.in/ini.v1"
)

// Load resolves the effective configuration: vals holds the defaults plus
// paths, the file at vals.ConfigPath is applied on top, and ov wins over
// both. A missing, unreadable or malformed config file is logged and
// otherwise ignored.
//
//nolint:gocritic // config struct copied for immutability
func Load(fsys afero.Fs, vals Values, ov Overrides) Values {
	if vals.ConfigPath != "" {
		data, err := afero.ReadFile(fsys, vals.ConfigPath)
		switch {
		case err == nil:
			if err := applyFile(&vals, data); err != nil {
				log.Warn().Err(err).Str("path", vals.ConfigPath).Msg("ignoring config file")
			}
		case errors.Is(err, fs.ErrNotExist):
			log.Debug().Str("path", vals.ConfigPath).Msg("no config file")
		default:
			log.Warn().Err(err).Str("path", vals.ConfigPath).Msg("failed to read config file")
		}
	}

	applyOverrides(&vals, ov)
	return vals
}

// applyFile reads key=value lines. Lines that don't parse are skipped, and
// for switches only a leading 0 or 1 counts.
func applyFile(vals *Values, data []byte) error {
	f, err := ini.LoadSources(ini.LoadOptions{
		SkipUnrecognizableLines: true,
		IgnoreInlineComment:     true,
	}, data)
	if err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	sec := f.Section(ini.DefaultSection)

	switchKey(sec, "colors", &vals.Colors)
	switchKey(sec, "echo", &vals.Echo)
	switchKey(sec, "no_crlf", &vals.NoCRLF)
	switchKey(sec, "normalize", &vals.Normalize)

	if sec.HasKey("escape") {
		v := sec.Key("escape").String()
		if esc, err := ParseEscape(v); err == nil {
			vals.Escape = esc
		} else if v != "" {
			vals.Escape = v[0]
		}
	}

	if sec.HasKey("baud") {
		vals.Baud = serial.ParseSpeed(sec.Key("baud").String())
	}

	if sec.HasKey("scrollback") {
		if n, err := sec.Key("scrollback").Int(); err == nil && n > 0 {
			vals.Scrollback = n
		}
	}

	return nil
}

func switchKey(sec *ini.Section, name string, dst *bool) {
	if !sec.HasKey(name) {
		return
	}
	v := sec.Key(name).String()
	if v == "" {
		return
	}
	switch v[0] {
	case '0':
		*dst = false
	case '1':
		*dst = true
	}
}

func applyOverrides(vals *Values, ov Overrides) {
	if ov.Baud != nil {
		vals.Baud = *ov.Baud
	}
	if ov.Escape != nil {
		vals.Escape = *ov.Escape
	}
	if ov.Colors != nil {
		vals.Colors = *ov.Colors
	}
	if ov.Echo != nil {
		vals.Echo = *ov.Echo
	}
	if ov.NoCRLF != nil {
		vals.NoCRLF = *ov.NoCRLF
	}
	if ov.Normalize != nil {
		vals.Normalize = *ov.Normalize
	}
}
