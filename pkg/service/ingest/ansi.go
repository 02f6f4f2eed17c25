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

	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/ansi/parser"
	"github.com/gdamore/tcell/v2"
)

// maxStringData bounds the payload kept for OSC, DCS and other string
// sequences. The rest of an oversized payload is still consumed.
const maxStringData = 4096

// ansiParser splits a byte stream into text runs and escape sequences. Text
// outside a sequence goes straight to emit so the text renderer sees the raw
// bytes; everything from ESC on is driven through the x/ansi state machine.
// SGR sequences change the current style when colours are on and every other
// sequence, OSC and DCS strings included, is consumed. Sequences split
// across reads are carried over.
type ansiParser struct {
	p      *ansi.Parser
	emit   func(text []byte, style tcell.Style)
	style  tcell.Style
	colors bool
	buf    [utf8.UTFMax]byte
}

func newANSIParser(colors bool) *ansiParser {
	a := &ansiParser{
		p:      ansi.NewParser(),
		colors: colors,
		style:  tcell.StyleDefault,
	}
	a.p.SetDataSize(maxStringData)
	a.p.SetHandler(ansi.Handler{
		Print:     a.print,
		Execute:   a.execute,
		HandleCsi: a.handleCSI,
	})
	return a
}

// inSequence reports whether a sequence is partially parsed.
func (a *ansiParser) inSequence() bool {
	return a.p.State() != parser.GroundState
}

// feed calls emit for each text run in p with the style in effect for it,
// and onEscape when a new sequence starts.
func (a *ansiParser) feed(p []byte, emit func(text []byte, style tcell.Style), onEscape func()) {
	a.emit = emit
	defer func() { a.emit = nil }()

	start := 0
	for i, b := range p {
		if !a.inSequence() {
			if b != ansi.ESC {
				continue
			}
			if i > start {
				emit(p[start:i], a.style)
			}
			onEscape()
			a.p.Advance(b)
			start = i + 1
			continue
		}

		if a.p.State() == parser.EscapeState && b < 0x20 && b != ansi.ESC {
			// a control right after ESC abandons the escape and is kept
			a.p.Reset()
			start = i
			continue
		}

		a.p.Advance(b)
		start = i + 1
	}

	if !a.inSequence() && start < len(p) {
		emit(p[start:], a.style)
	}
}

// print receives runes the state machine decodes inside a sequence.
func (a *ansiParser) print(r rune) {
	a.emit(utf8.AppendRune(a.buf[:0], r), a.style)
}

// execute receives controls met inside a sequence. They take effect in
// place, as on a VT terminal.
func (a *ansiParser) execute(b byte) {
	if b == ansi.ESC {
		return
	}
	a.buf[0] = b
	a.emit(a.buf[:1], a.style)
}

func (a *ansiParser) handleCSI(cmd ansi.Cmd, params ansi.Params) {
	if !a.colors || cmd.Final() != 'm' || cmd.Prefix() != 0 || cmd.Intermediate() != 0 {
		return
	}
	codes := make([]int, len(params))
	for i, p := range params {
		codes[i] = p.Param(0)
	}
	a.style = applySGR(a.style, codes)
}

// applySGR returns style updated by the parameters of one SGR sequence,
// missing parameters given as 0. Unknown parameters are ignored.
func applySGR(style tcell.Style, codes []int) tcell.Style {
	if len(codes) == 0 {
		return tcell.StyleDefault
	}

	for i := 0; i < len(codes); i++ {
		c := codes[i]
		switch {
		case c == 0:
			style = tcell.StyleDefault
		case c == 1:
			style = style.Bold(true)
		case c == 4:
			style = style.Underline(true)
		case c == 7:
			style = style.Reverse(true)
		case c == 22:
			style = style.Bold(false)
		case c == 24:
			style = style.Underline(false)
		case c == 27:
			style = style.Reverse(false)
		case c >= 30 && c <= 37:
			style = style.Foreground(tcell.PaletteColor(c - 30))
		case c == 39:
			style = style.Foreground(tcell.ColorReset)
		case c >= 40 && c <= 47:
			style = style.Background(tcell.PaletteColor(c - 40))
		case c == 49:
			style = style.Background(tcell.ColorReset)
		case c >= 90 && c <= 97:
			style = style.Foreground(tcell.PaletteColor(c - 90 + 8))
		case c >= 100 && c <= 107:
			style = style.Background(tcell.PaletteColor(c - 100 + 8))
		case c == 38 || c == 48:
			color, used := extendedColor(codes[i+1:])
			i += used
			if color == tcell.ColorDefault {
				continue
			}
			if c == 38 {
				style = style.Foreground(color)
			} else {
				style = style.Background(color)
			}
		}
	}
	return style
}

// extendedColor decodes the arguments after 38 or 48: "5;n" for the 256
// colour palette or "2;r;g;b" for true colour. It returns how many codes it
// consumed.
func extendedColor(args []int) (tcell.Color, int) {
	if len(args) == 0 {
		return tcell.ColorDefault, 0
	}
	switch args[0] {
	case 5:
		if len(args) < 2 || args[1] < 0 || args[1] > 255 {
			return tcell.ColorDefault, min(len(args), 2)
		}
		return tcell.PaletteColor(args[1]), 2
	case 2:
		if len(args) < 4 {
			return tcell.ColorDefault, len(args)
		}
		for _, v := range args[1:4] {
			if v < 0 || v > 255 {
				return tcell.ColorDefault, 4
			}
		}
		return tcell.NewRGBColor(int32(args[1]), int32(args[2]), int32(args[3])), 4
	default:
		return tcell.ColorDefault, 1
	}
}
