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

package dispatch

import (
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
)

// keySequences are the VT100/xterm encodings of the named keys.
var keySequences = map[tcell.Key]string{
	tcell.KeyUp:      "\x1b[A",
	tcell.KeyDown:    "\x1b[B",
	tcell.KeyRight:   "\x1b[C",
	tcell.KeyLeft:    "\x1b[D",
	tcell.KeyHome:    "\x1b[H",
	tcell.KeyEnd:     "\x1b[F",
	tcell.KeyInsert:  "\x1b[2~",
	tcell.KeyDelete:  "\x1b[3~",
	tcell.KeyPgUp:    "\x1b[5~",
	tcell.KeyPgDn:    "\x1b[6~",
	tcell.KeyBacktab: "\x1b[Z",
	tcell.KeyF1:      "\x1bOP",
	tcell.KeyF2:      "\x1bOQ",
	tcell.KeyF3:      "\x1bOR",
	tcell.KeyF4:      "\x1bOS",
	tcell.KeyF5:      "\x1b[15~",
	tcell.KeyF6:      "\x1b[17~",
	tcell.KeyF7:      "\x1b[18~",
	tcell.KeyF8:      "\x1b[19~",
	tcell.KeyF9:      "\x1b[20~",
	tcell.KeyF10:     "\x1b[21~",
	tcell.KeyF11:     "\x1b[23~",
	tcell.KeyF12:     "\x1b[24~",
}

// KeyBytes returns what a terminal would send to the device for ev: runes
// as UTF-8, control keys as their C0 byte (Enter is CR, Backspace is DEL or
// BS) and named keys as escape sequences. Alt prefixes ESC. Keys with no
// encoding return nil.
func KeyBytes(ev *tcell.EventKey) []byte {
	var out []byte
	if ev.Modifiers()&tcell.ModAlt != 0 {
		out = append(out, 0x1b)
	}

	switch k := ev.Key(); {
	case k == tcell.KeyRune:
		return utf8.AppendRune(out, ev.Rune())
	case k < tcell.KeyRune:
		return append(out, byte(k))
	default:
		seq, ok := keySequences[k]
		if !ok {
			return nil
		}
		return append(out, seq...)
	}
}
