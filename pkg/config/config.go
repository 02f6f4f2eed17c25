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
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/bytenuts/bytenuts/pkg/serial"
)

var ErrInvalidEscape = errors.New("escape must be a single character or ^X")

// Values is the effective session configuration. It is built once at startup
// and treated as read-only afterwards.
type Values struct {
	SerialPath string
	LogPath    string
	ConfigPath string
	Baud       serial.Speed
	Scrollback int
	Escape     byte
	Colors     bool
	Echo       bool
	NoCRLF     bool
	Normalize  bool
}

var BaseDefaults = Values{
	Baud:       serial.B115200,
	Scrollback: DefaultScrollback,
	Escape:     DefaultEscape,
	Colors:     true,
	Echo:       false,
	NoCRLF:     false,
	Normalize:  true,
}

// Overrides holds values set explicitly on the command line. A nil field was
// not given and leaves the config file (or default) in charge.
type Overrides struct {
	Baud      *serial.Speed
	Escape    *byte
	Colors    *bool
	Echo      *bool
	NoCRLF    *bool
	Normalize *bool
}

// DefaultConfigPath is $XDG_CONFIG_HOME/bytenuts/config.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, CfgFile)
}

// ParseEscape accepts a literal single character, or caret notation such as
// "^B" for ctrl+b and "^?" for DEL.
func ParseEscape(s string) (byte, error) {
	switch {
	case len(s) == 1:
		return s[0], nil
	case len(s) == 2 && s[0] == '^':
		c := s[1]
		if c == '?' {
			return 0x7f, nil
		}
		c = strings.ToUpper(string(c))[0]
		if c < '@' || c > '_' {
			return 0, ErrInvalidEscape
		}
		return c & 0x1f, nil
	default:
		return 0, ErrInvalidEscape
	}
}

// EscapeString renders b the way ParseEscape reads it back.
func EscapeString(b byte) string {
	switch {
	case b < 0x20:
		return "^" + string(rune(b+0x40))
	case b == 0x7f:
		return "^?"
	default:
		return string(rune(b))
	}
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

// StatsLines describes the configuration one entry per line.
func (v *Values) StatsLines() []string {
	return []string{
		"colors: " + enabled(v.Colors),
		"echo: " + enabled(v.Echo),
		"no_crlf: " + enabled(v.NoCRLF),
		"escape: " + EscapeString(v.Escape),
		"baud: " + v.Baud.String(),
		"config_path: " + v.ConfigPath,
		"log_path: " + v.LogPath,
		"serial_path: " + v.SerialPath,
	}
}
