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

package surface

import (
	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
)

const (
	tabWidth = 8
	// maxLineCells forces a line break on devices that never send one.
	maxLineCells = 64 * 1024
)

type cell struct {
	style tcell.Style
	r     rune
}

// outputBuffer is the scrollback behind the output region. Lines are stored
// unwrapped and wrapped to the region width when rendered, so a resize never
// reorders or loses content. The cursor is always on the last line.
type outputBuffer struct {
	lines  [][]cell
	max    int
	col    int
	scroll int
	// trimmed counts lines dropped off the top since the last reset.
	trimmed int
}

func newOutputBuffer(maxLines int) *outputBuffer {
	return &outputBuffer{
		lines: [][]cell{nil},
		max:   maxLines,
	}
}

func (b *outputBuffer) put(r rune, style tcell.Style) {
	switch r {
	case '\r':
		b.col = 0
	case '\n':
		b.newline()
	case '\b':
		if b.col > 0 {
			b.col--
		}
	case '\t':
		b.col = (b.col/tabWidth + 1) * tabWidth
	default:
		if r < 0x20 || r == 0x7f {
			return
		}
		last := len(b.lines) - 1
		ln := b.lines[last]
		for len(ln) < b.col {
			ln = append(ln, cell{r: ' ', style: tcell.StyleDefault})
		}
		c := cell{r: r, style: style}
		if b.col < len(ln) {
			ln[b.col] = c
		} else {
			ln = append(ln, c)
		}
		b.lines[last] = ln
		b.col++
		if b.col >= maxLineCells {
			b.col = 0
			b.newline()
		}
	}
}

func (b *outputBuffer) newline() {
	b.lines = append(b.lines, nil)
	// trim in batches so a full buffer doesn't copy on every line
	if b.max > 0 && len(b.lines) > b.max+b.max/4 {
		drop := len(b.lines) - b.max
		n := copy(b.lines, b.lines[drop:])
		clear(b.lines[n:])
		b.lines = b.lines[:n]
		b.trimmed += drop
	}
}

// atLineStart reports whether the cursor sits at the start of an empty line.
func (b *outputBuffer) atLineStart() bool {
	return b.col == 0 && len(b.lines[len(b.lines)-1]) == 0
}

func (b *outputBuffer) reset() {
	b.lines = [][]cell{nil}
	b.col = 0
	b.scroll = 0
	b.trimmed = 0
}

// mark records the newest line and how many rows it wraps to, so keepView
// can hold a scrolled-back view on the same content.
type mark struct {
	line int
	rows int
}

func (b *outputBuffer) mark(width int) mark {
	if b.scroll == 0 || width <= 0 {
		return mark{line: -1}
	}
	last := len(b.lines) - 1
	return mark{line: b.trimmed + last, rows: b.rowsFrom(last, width)}
}

// keepView grows the scroll offset by the rows appended since m.
func (b *outputBuffer) keepView(m mark, width int) {
	if m.line < 0 || b.scroll == 0 {
		return
	}
	first := m.line - b.trimmed
	if first < 0 {
		return
	}
	b.scroll += max(b.rowsFrom(first, width)-m.rows, 0)
}

func (b *outputBuffer) rowsFrom(i, width int) int {
	n := 0
	for ; i < len(b.lines); i++ {
		n += len(wrap(b.lines[i], width))
	}
	return n
}

func cellWidth(r rune) int {
	w := runewidth.RuneWidth(r)
	if w < 1 {
		return 1
	}
	return w
}

func wrap(line []cell, width int) [][]cell {
	if len(line) == 0 {
		return [][]cell{nil}
	}
	var rows [][]cell
	start, used := 0, 0
	for i, c := range line {
		w := cellWidth(c.r)
		if used+w > width && i > start {
			rows = append(rows, line[start:i])
			start, used = i, 0
		}
		used += w
	}
	return append(rows, line[start:])
}

// view returns the rows visible in a width x height region, top to bottom,
// honouring the scroll offset. The offset is clamped to the content.
func (b *outputBuffer) view(width, height int) [][]cell {
	if width <= 0 || height <= 0 {
		return nil
	}

	need := height + b.scroll
	rev := make([][]cell, 0, need)
	for i := len(b.lines) - 1; i >= 0 && len(rev) < need; i-- {
		wrapped := wrap(b.lines[i], width)
		for j := len(wrapped) - 1; j >= 0 && len(rev) < need; j-- {
			rev = append(rev, wrapped[j])
		}
	}

	maxScroll := max(len(rev)-height, 0)
	b.scroll = min(b.scroll, maxScroll)

	end := min(b.scroll+height, len(rev))
	rows := make([][]cell, 0, end-b.scroll)
	for i := end - 1; i >= b.scroll; i-- {
		rows = append(rows, rev[i])
	}
	return rows
}

func (b *outputBuffer) text() []string {
	out := make([]string, len(b.lines))
	for i, ln := range b.lines {
		rs := make([]rune, len(ln))
		for j, c := range ln {
			rs[j] = c.r
		}
		out[i] = string(rs)
	}
	return out
}
