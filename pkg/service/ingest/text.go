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

package ingest

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// textRenderer turns raw device text into valid UTF-8 for the output
// region. Bytes that aren't UTF-8 are shown as code page 437, which is what
// most 8-bit devices mean. An incomplete sequence at the end of a read is
// held until the next one.
type textRenderer struct {
	partial   []byte
	normalize bool
	prevCR    bool
}

// render appends the rendered form of p to dst. inserted counts the CRs
// added in front of bare LFs.
func (t *textRenderer) render(dst, p []byte) (out []byte, inserted int) {
	if len(t.partial) > 0 {
		p = append(t.partial, p...)
		t.partial = nil
	}

	for len(p) > 0 {
		b := p[0]
		if b < utf8.RuneSelf {
			switch {
			case b == '\n':
				if t.normalize && !t.prevCR {
					dst = append(dst, '\r')
					inserted++
				}
				dst = append(dst, b)
			case b == '\r', b == '\b', b == '\t':
				dst = append(dst, b)
			case b < 0x20, b == 0x7f:
				// other controls, BEL included, are dropped
			default:
				dst = append(dst, b)
			}
			t.prevCR = b == '\r'
			p = p[1:]
			continue
		}

		if !utf8.FullRune(p) {
			t.partial = append(t.partial[:0], p...)
			break
		}

		r, size := utf8.DecodeRune(p)
		if r == utf8.RuneError && size <= 1 {
			dst = utf8.AppendRune(dst, charmap.CodePage437.DecodeByte(b))
			size = 1
		} else {
			dst = append(dst, p[:size]...)
		}
		t.prevCR = false
		p = p[size:]
	}
	return dst, inserted
}

// flush renders any held partial sequence as single bytes.
func (t *textRenderer) flush(dst []byte) []byte {
	if len(t.partial) == 0 {
		return dst
	}
	for _, b := range t.partial {
		dst = utf8.AppendRune(dst, charmap.CodePage437.DecodeByte(b))
	}
	t.partial = nil
	t.prevCR = false
	return dst
}
