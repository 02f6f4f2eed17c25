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

// Package surface is the three-region character display the session draws
// on: a scrollback output area, a one-line status bar and a one-line input
// area at the bottom. Every mutation goes through a single terminal lock and
// only redraws the region it touched.
package surface

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bytenuts/bytenuts/pkg/helpers/syncutil"
	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
)

const DefaultScrollback = 10000

var ErrClosed = errors.New("surface closed")

type Options struct {
	// Scrollback is the number of output lines kept; <= 0 uses the default.
	Scrollback int
}

// geometry is the row layout for a given screen size. A negative row means
// the region doesn't fit and is not drawn.
type geometry struct {
	width     int
	outRows   int
	statusRow int
	inputRow  int
}

func layout(w, h int) geometry {
	g := geometry{width: w, outRows: h - 2, statusRow: h - 2, inputRow: h - 1}
	if g.outRows < 0 {
		g.outRows = 0
	}
	if w <= 0 {
		g.statusRow, g.inputRow = -1, -1
	}
	return g
}

type Surface struct {
	screen      tcell.Screen
	out         *outputBuffer
	keys        chan *tcell.EventKey
	quit        chan struct{}
	pumpDone    chan struct{}
	prompt      string
	input       string
	status      [ownerCount]string
	statusStyle tcell.Style
	geo         geometry
	finiOnce    sync.Once
	mu          syncutil.Mutex
	closed      bool
}

// New initialises screen and takes it over. The caller must call Fini.
func New(screen tcell.Screen, opts Options) (*Surface, error) {
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize screen: %w", err)
	}

	if opts.Scrollback <= 0 {
		opts.Scrollback = DefaultScrollback
	}

	s := &Surface{
		screen:      screen,
		out:         newOutputBuffer(opts.Scrollback),
		keys:        make(chan *tcell.EventKey, 64),
		quit:        make(chan struct{}),
		pumpDone:    make(chan struct{}),
		statusStyle: tcell.StyleDefault.Reverse(true),
	}

	screen.SetStyle(tcell.StyleDefault)
	s.Resize()

	go s.pump()
	return s, nil
}

// pump forwards key events to ReadKey and applies resizes as they arrive.
func (s *Surface) pump() {
	defer close(s.pumpDone)
	for {
		switch ev := s.screen.PollEvent().(type) {
		case nil:
			return
		case *tcell.EventResize:
			s.Resize()
		case *tcell.EventKey:
			select {
			case s.keys <- ev:
			case <-s.quit:
				return
			}
		}
	}
}

// ReadKey waits for the next key press. It returns ctx.Err() once ctx is
// done, or ErrClosed after Fini.
func (s *Surface) ReadKey(ctx context.Context) (*tcell.EventKey, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.quit:
		return nil, ErrClosed
	case ev := <-s.keys:
		return ev, nil
	}
}

// Resize recomputes the layout from the screen size and redraws everything.
func (s *Surface) Resize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.geo = layout(s.screen.Size())
	s.screen.Clear()
	s.drawOutputLocked()
	s.drawStatusLocked()
	s.drawInputLocked()
	s.placeCursorLocked()
	s.screen.Sync()
}

// Fini releases the terminal. Later calls are no-ops, as are mutations made
// after it.
func (s *Surface) Fini() {
	s.finiOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.quit)
		s.screen.Fini()
		s.mu.Unlock()
		<-s.pumpDone
	})
}

// WriteOutput appends UTF-8 text to the output region. CR, LF, BS and TAB
// move the output cursor; other control characters are dropped.
func (s *Surface) WriteOutput(p []byte, style tcell.Style) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.out.mark(s.geo.width)
	for len(p) > 0 {
		r, size := utf8.DecodeRune(p)
		s.out.put(r, style)
		p = p[size:]
	}
	s.out.keepView(m, s.geo.width)

	s.refreshOutputLocked()
}

// Notice prints a line of local information into the output region,
// starting on a fresh line.
func (s *Surface) Notice(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.out.mark(s.geo.width)
	if !s.out.atLineStart() {
		s.out.put('\r', tcell.StyleDefault)
		s.out.put('\n', tcell.StyleDefault)
	}
	for _, r := range text {
		s.out.put(r, tcell.StyleDefault)
	}
	s.out.put('\r', tcell.StyleDefault)
	s.out.put('\n', tcell.StyleDefault)
	s.out.keepView(m, s.geo.width)

	s.refreshOutputLocked()
}

// Clear empties the scrollback.
func (s *Surface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.reset()
	s.refreshOutputLocked()
}

// ScrollUp moves the view n rows back into the scrollback.
func (s *Surface) ScrollUp(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.scroll += n
	s.refreshOutputLocked()
}

// ScrollDown moves the view n rows towards the newest output.
func (s *Surface) ScrollDown(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.scroll = max(s.out.scroll-n, 0)
	s.refreshOutputLocked()
}

// ScrollReset returns the view to the newest output.
func (s *Surface) ScrollReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.scroll = 0
	s.refreshOutputLocked()
}

// Scroll returns how many rows the view is scrolled back.
func (s *Surface) Scroll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.scroll
}

// OutputRows returns the current height of the output region.
func (s *Surface) OutputRows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geo.outRows
}

// OutputLines returns the scrollback text, oldest line first.
func (s *Surface) OutputLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.text()
}

// Row returns the text drawn on screen row y with trailing blanks trimmed.
// It reads under the terminal lock, so it is safe to call while the
// engines draw.
func (s *Surface) Row(y int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ""
	}

	var sb strings.Builder
	for x := 0; x < s.geo.width; {
		r, _, _, w := s.screen.GetContent(x, y)
		if r == 0 {
			r = ' '
		}
		sb.WriteRune(r)
		x += max(w, 1)
	}
	return strings.TrimRight(sb.String(), " ")
}

// CellStyle returns the style drawn at x, y.
func (s *Surface) CellStyle(x, y int) tcell.Style {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return tcell.StyleDefault
	}
	_, _, style, _ := s.screen.GetContent(x, y)
	return style
}

// SetInput redraws the input line as prompt followed by text, with the
// cursor after it.
func (s *Surface) SetInput(prompt, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompt, s.input = prompt, text
	if s.closed {
		return
	}
	s.drawInputLocked()
	s.placeCursorLocked()
	s.screen.Show()
}

func (s *Surface) refreshOutputLocked() {
	if s.closed {
		return
	}
	s.drawOutputLocked()
	s.placeCursorLocked()
	s.screen.Show()
}

func (s *Surface) drawOutputLocked() {
	rows := s.out.view(s.geo.width, s.geo.outRows)
	for y := range s.geo.outRows {
		x := 0
		if y < len(rows) {
			for _, c := range rows[y] {
				s.screen.SetContent(x, y, c.r, nil, c.style)
				x += cellWidth(c.r)
			}
		}
		for ; x < s.geo.width; x++ {
			s.screen.SetContent(x, y, ' ', nil, tcell.StyleDefault)
		}
	}
}

func (s *Surface) inputText() string {
	text := s.prompt + s.input
	limit := s.geo.width - 1
	for runewidth.StringWidth(text) > limit && text != "" {
		_, size := utf8.DecodeRuneInString(text)
		text = text[size:]
	}
	return text
}

func (s *Surface) drawInputLocked() {
	if s.geo.inputRow < 0 {
		return
	}
	s.drawRowLocked(s.geo.inputRow, s.inputText(), tcell.StyleDefault)
}

func (s *Surface) drawRowLocked(y int, text string, style tcell.Style) {
	x := 0
	for _, r := range text {
		if x >= s.geo.width {
			break
		}
		s.screen.SetContent(x, y, r, nil, style)
		x += cellWidth(r)
	}
	for ; x < s.geo.width; x++ {
		s.screen.SetContent(x, y, ' ', nil, style)
	}
}

// placeCursorLocked parks the terminal cursor at the end of the input line.
// Output never moves it.
func (s *Surface) placeCursorLocked() {
	if s.geo.inputRow < 0 {
		s.screen.HideCursor()
		return
	}
	s.screen.ShowCursor(runewidth.StringWidth(s.inputText()), s.geo.inputRow)
}
