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

package helpers

import (
	"testing"
	"time"

	"github.com/bytenuts/bytenuts/pkg/ui/surface"
	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/require"
)

// NewSimSurface returns a surface drawn on a w x h simulation screen. It is
// torn down when the test ends.
func NewSimSurface(t *testing.T, w, h int) (*surface.Surface, tcell.SimulationScreen) {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	s, err := surface.New(screen, surface.Options{})
	require.NoError(t, err)
	screen.SetSize(w, h)
	s.Resize()
	t.Cleanup(s.Fini)
	return s, screen
}

// WaitForOutput waits until the last non-empty scrollback line equals want.
func WaitForOutput(t *testing.T, s *surface.Surface, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return LastLine(s) == want
	}, 2*time.Second, 5*time.Millisecond, "output never showed %q", want)
}

// LastLine returns the newest non-empty scrollback line.
func LastLine(s *surface.Surface) string {
	lines := s.OutputLines()
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i] != "" {
			return lines[i]
		}
	}
	return ""
}
