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
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Owner identifies which component a status slot belongs to.
type Owner int

const (
	OwnerSystem Owner = iota
	OwnerIngest
	OwnerDispatch
	OwnerCommand
	ownerCount
)

func (o Owner) String() string {
	switch o {
	case OwnerSystem:
		return "system"
	case OwnerIngest:
		return "ingest"
	case OwnerDispatch:
		return "dispatch"
	case OwnerCommand:
		return "command"
	default:
		return fmt.Sprintf("owner(%d)", int(o))
	}
}

// ComposeStatus lays the slots out as |--a--|--b--|... over a row of dashes
// closed by '|', truncated to width display cells.
func ComposeStatus(slots []string, width int) string {
	if width <= 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteByte('|')
	for _, s := range slots {
		sb.WriteString("--")
		sb.WriteString(s)
		sb.WriteString("--|")
	}
	composed := sb.String()

	used := runewidth.StringWidth(composed)
	if used >= width {
		return runewidth.Truncate(composed, width, "")
	}

	fill := width - used
	return composed + strings.Repeat("-", fill-1) + "|"
}

// SetStatus replaces owner's slot and redraws the status line. The text is
// formatted before the terminal lock is taken; the input cursor is put back
// where it was.
func (s *Surface) SetStatus(owner Owner, format string, args ...any) {
	if owner < 0 || owner >= ownerCount {
		return
	}
	text := fmt.Sprintf(format, args...)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.status[owner] = text
	if s.closed {
		return
	}

	s.screen.HideCursor()
	s.drawStatusLocked()
	s.placeCursorLocked()
	s.screen.Show()
}

// Status returns the current text of owner's slot.
func (s *Surface) Status(owner Owner) string {
	if owner < 0 || owner >= ownerCount {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[owner]
}

// StatusLine returns the composed status line as last drawn.
func (s *Surface) StatusLine() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ComposeStatus(s.status[:], s.geo.width)
}

func (s *Surface) drawStatusLocked() {
	if s.geo.statusRow < 0 {
		return
	}
	s.drawRowLocked(s.geo.statusRow, ComposeStatus(s.status[:], s.geo.width), s.statusStyle)
}
