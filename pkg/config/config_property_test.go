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
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"pgregory.net/rapid"
)

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// TestPropertyPrecedence checks flags > file > defaults for every switch.
func TestPropertyPrecedence(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		inFile := rapid.Bool().Draw(t, "inFile")
		fileVal := rapid.Bool().Draw(t, "fileVal")
		hasFlag := rapid.Bool().Draw(t, "hasFlag")
		flagVal := rapid.Bool().Draw(t, "flagVal")
		key := rapid.SampledFrom([]string{"colors", "echo", "no_crlf", "normalize"}).Draw(t, "key")

		fs := afero.NewMemMapFs()
		if inFile {
			line := fmt.Sprintf("%s=%s\n", key, boolDigit(fileVal))
			if err := afero.WriteFile(fs, testCfgPath, []byte(line), 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}
		}

		var ov Overrides
		if hasFlag {
			v := flagVal
			switch key {
			case "colors":
				ov.Colors = &v
			case "echo":
				ov.Echo = &v
			case "no_crlf":
				ov.NoCRLF = &v
			case "normalize":
				ov.Normalize = &v
			}
		}

		base := BaseDefaults
		base.ConfigPath = testCfgPath
		vals := Load(fs, base, ov)

		var got, def bool
		switch key {
		case "colors":
			got, def = vals.Colors, BaseDefaults.Colors
		case "echo":
			got, def = vals.Echo, BaseDefaults.Echo
		case "no_crlf":
			got, def = vals.NoCRLF, BaseDefaults.NoCRLF
		case "normalize":
			got, def = vals.Normalize, BaseDefaults.Normalize
		}

		want := def
		if inFile {
			want = fileVal
		}
		if hasFlag {
			want = flagVal
		}
		if got != want {
			t.Fatalf("%s: got %v want %v (file=%v:%v flag=%v:%v)",
				key, got, want, inFile, fileVal, hasFlag, flagVal)
		}
	})
}

// TestPropertyEscapeRoundTrip checks EscapeString output parses back.
func TestPropertyEscapeRoundTrip(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		b := rapid.Byte().Draw(t, "b")
		if b >= 0x80 {
			t.Skip("non-ascii")
		}
		got, err := ParseEscape(EscapeString(b))
		if err != nil {
			t.Fatalf("ParseEscape(%q): %v", EscapeString(b), err)
		}
		if got != b {
			t.Fatalf("round trip %#x -> %q -> %#x", b, EscapeString(b), got)
		}
	})
}
