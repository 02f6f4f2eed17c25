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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bytenuts/bytenuts/pkg/config"
	"github.com/bytenuts/bytenuts/pkg/service/state"
	"github.com/bytenuts/bytenuts/pkg/testing/helpers"
	"github.com/bytenuts/bytenuts/pkg/testing/mocks"
	"github.com/bytenuts/bytenuts/pkg/ui/surface"
	"github.com/gdamore/tcell/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	st     *state.State
	port   *mocks.MockPort
	surf   *surface.Surface
	screen tcell.SimulationScreen
	engine *Engine
	done   <-chan error
}

func startHarness(t *testing.T, cfg config.Values, opts ...Option) *harness {
	t.Helper()
	surf, screen := helpers.NewSimSurface(t, 80, 24)
	port := mocks.NewMockPort()
	st := state.NewState(&cfg, surf, port, "test-session")

	e := New(st, opts...)
	stop, done := helpers.RunInBackground(st.Context(), e.Run)
	t.Cleanup(func() {
		stop()
		<-done
	})
	require.Eventually(t, func() bool {
		return e.Mode() == ModeNormal
	}, time.Second, time.Millisecond)
	return &harness{st: st, port: port, surf: surf, screen: screen, engine: e, done: done}
}

func (h *harness) typeText(text string) {
	for _, r := range text {
		h.screen.InjectKey(tcell.KeyRune, r, tcell.ModNone)
	}
}

func (h *harness) key(k tcell.Key) {
	h.screen.InjectKey(k, 0, tcell.ModNone)
}

func (h *harness) escape() {
	h.screen.InjectKey(tcell.KeyCtrlB, 0, tcell.ModCtrl)
}

func (h *harness) waitWritten(t *testing.T, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return string(h.port.Written()) == want
	}, 2*time.Second, 2*time.Millisecond, "written %q, want %q", h.port.Written(), want)
}

// sync waits until every key injected so far has been handled, by sending a
// marker byte and waiting for it to reach the port.
func (h *harness) sync(t *testing.T) {
	t.Helper()
	before := string(h.port.Written())
	h.typeText("~")
	h.waitWritten(t, before+"~")
}

func TestDispatch_ForwardsKeys(t *testing.T) {
	t.Parallel()

	h := startHarness(t, config.BaseDefaults)
	h.typeText("ab")
	h.key(tcell.KeyUp)
	h.screen.InjectKey(tcell.KeyCtrlC, 0, tcell.ModCtrl)

	h.waitWritten(t, "ab\x1b[A\x03")
	assert.Equal(t, uint64(6), h.st.Tx())
	assert.Equal(t, []string{""}, h.surf.OutputLines(), "no echo by default")
}

func TestDispatch_EnterLineEnding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		want   string
		noCRLF bool
	}{
		{name: "crlf", noCRLF: false, want: "x\r\n"},
		{name: "no_crlf", noCRLF: true, want: "x\r"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.BaseDefaults
			cfg.NoCRLF = tt.noCRLF
			h := startHarness(t, cfg)

			h.typeText("x")
			h.key(tcell.KeyEnter)
			h.waitWritten(t, tt.want)
		})
	}
}

func TestDispatch_EchoRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		written string
		lines   []string
		noCRLF  bool
	}{
		// CR LF moves to a fresh line
		{name: "crlf", noCRLF: false, written: "abc\r\ny", lines: []string{"abc", "y"}},
		// a lone CR returns to column 0 of the same line
		{name: "no_crlf", noCRLF: true, written: "abc\ry", lines: []string{"ybc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.BaseDefaults
			cfg.Echo = true
			cfg.NoCRLF = tt.noCRLF
			h := startHarness(t, cfg)

			h.typeText("abc")
			h.key(tcell.KeyEnter)
			h.typeText("y")

			// echo is drawn before the write, so the output is complete here
			h.waitWritten(t, tt.written)
			assert.Equal(t, tt.lines, h.surf.OutputLines())
		})
	}
}

func TestDispatch_EscapeTwiceSendsLiteral(t *testing.T) {
	t.Parallel()

	h := startHarness(t, config.BaseDefaults)
	h.escape()
	require.Eventually(t, func() bool {
		return h.engine.Mode() == ModeEscapeSeen
	}, time.Second, time.Millisecond)
	assert.Equal(t, "ESC", h.surf.Status(surface.OwnerCommand))

	h.escape()
	h.waitWritten(t, "\x02")
	assert.Equal(t, ModeNormal, h.engine.Mode())
	assert.Empty(t, h.surf.Status(surface.OwnerCommand))
}

func TestDispatch_EscapeUnknownKeyDiscarded(t *testing.T) {
	t.Parallel()

	h := startHarness(t, config.BaseDefaults)
	h.escape()
	h.typeText("x")
	h.sync(t)

	assert.Equal(t, "~", string(h.port.Written()))
	assert.Equal(t, ModeNormal, h.engine.Mode())
}

func TestDispatch_CustomEscape(t *testing.T) {
	t.Parallel()

	cfg := config.BaseDefaults
	cfg.Escape = 0x01
	h := startHarness(t, cfg)

	// ^B is an ordinary key now
	h.escape()
	h.waitWritten(t, "\x02")

	h.screen.InjectKey(tcell.KeyCtrlA, 0, tcell.ModCtrl)
	h.typeText("q")
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("quit not handled")
	}
}

func TestDispatch_Quit(t *testing.T) {
	t.Parallel()

	h := startHarness(t, config.BaseDefaults)
	h.escape()
	h.typeText("q")

	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not stop on quit")
	}
	assert.True(t, h.st.Stopped())
	require.NoError(t, h.st.Reason())
	assert.Equal(t, ModeStopped, h.engine.Mode())
	assert.Empty(t, h.port.Written())
}

func TestDispatch_Stats(t *testing.T) {
	t.Parallel()

	cfg := config.BaseDefaults
	cfg.SerialPath = "/dev/ttyUSB0"
	h := startHarness(t, cfg)
	h.escape()
	h.typeText("s")

	helpers.WaitForOutput(t, h.surf, "serial_path: /dev/ttyUSB0")
	assert.Equal(t, []string{
		"colors: enabled",
		"echo: disabled",
		"no_crlf: disabled",
		"escape: ^B",
		"baud: B115200",
		"config_path: ",
		"log_path: ",
		"serial_path: /dev/ttyUSB0",
		"",
	}, h.surf.OutputLines())
}

func TestDispatch_HelpAndClear(t *testing.T) {
	t.Parallel()

	h := startHarness(t, config.BaseDefaults)
	h.escape()
	h.typeText("?")
	require.Eventually(t, func() bool {
		return len(h.surf.OutputLines()) > 5
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, "^B ^B    send ^B", h.surf.OutputLines()[0])

	h.escape()
	h.typeText("c")
	require.Eventually(t, func() bool {
		return len(h.surf.OutputLines()) == 1
	}, time.Second, 2*time.Millisecond)
}

func TestDispatch_BreakAndModemLines(t *testing.T) {
	t.Parallel()

	h := startHarness(t, config.BaseDefaults)
	h.escape()
	h.typeText("b")
	h.escape()
	h.typeText("d")
	h.escape()
	h.typeText("r")
	h.escape()
	h.typeText("r")
	h.sync(t)

	assert.Equal(t, []time.Duration{BreakDuration}, h.port.Breaks())
	dtr, set := h.port.DTR()
	assert.True(t, set)
	assert.False(t, dtr)
	rts, set := h.port.RTS()
	assert.True(t, set)
	assert.True(t, rts)
	assert.Equal(t, "rts on", h.surf.Status(surface.OwnerCommand))
}

func TestDispatch_Scroll(t *testing.T) {
	t.Parallel()

	h := startHarness(t, config.BaseDefaults)
	for i := range 100 {
		h.surf.Notice(fmt.Sprintf("line %d", i))
	}

	h.escape()
	h.typeText("k")
	require.Eventually(t, func() bool {
		return h.surf.Scroll() == h.surf.OutputRows()/2
	}, time.Second, 2*time.Millisecond)

	h.escape()
	h.key(tcell.KeyPgUp)
	require.Eventually(t, func() bool {
		return h.surf.Scroll() == 2*(h.surf.OutputRows()/2)
	}, time.Second, 2*time.Millisecond)

	h.escape()
	h.typeText("j")
	require.Eventually(t, func() bool {
		return h.surf.Scroll() == h.surf.OutputRows()/2
	}, time.Second, 2*time.Millisecond)

	h.escape()
	h.typeText("G")
	require.Eventually(t, func() bool {
		return h.surf.Scroll() == 0
	}, time.Second, 2*time.Millisecond)
}

func TestDispatch_CommandSend(t *testing.T) {
	t.Parallel()

	h := startHarness(t, config.BaseDefaults)
	h.escape()
	h.typeText(":")
	require.Eventually(t, func() bool {
		return h.engine.Mode() == ModeCommand
	}, time.Second, time.Millisecond)

	h.typeText("send AT+GMR")
	require.Eventually(t, func() bool {
		return h.surf.Row(23) == ":send AT+GMR"
	}, time.Second, 2*time.Millisecond)

	h.key(tcell.KeyEnter)
	h.waitWritten(t, "AT+GMR\r\n")
	assert.Equal(t, ModeNormal, h.engine.Mode())
	assert.Empty(t, h.surf.Row(23))
}

func TestDispatch_CommandHex(t *testing.T) {
	t.Parallel()

	cfg := config.BaseDefaults
	h := startHarness(t, cfg)
	h.escape()
	h.typeText(":hex 41 42 0d")
	h.key(tcell.KeyEnter)

	h.waitWritten(t, "AB\r")

	h.escape()
	h.typeText(":hex zz")
	h.key(tcell.KeyEnter)
	require.Eventually(t, func() bool {
		return h.surf.Status(surface.OwnerCommand) == "bad hex: zz"
	}, time.Second, 2*time.Millisecond)
}

func TestDispatch_CommandUnknownAndEditing(t *testing.T) {
	t.Parallel()

	h := startHarness(t, config.BaseDefaults)
	h.escape()
	h.typeText(":fooo")
	h.key(tcell.KeyBackspace2)
	h.key(tcell.KeyEnter)

	require.Eventually(t, func() bool {
		return h.surf.Status(surface.OwnerCommand) == "unknown: foo"
	}, time.Second, 2*time.Millisecond)

	// Esc cancels without sending anything
	h.escape()
	h.typeText(":send nope")
	h.key(tcell.KeyEsc)
	// Ctrl+U clears the line
	h.escape()
	h.typeText(":garbage")
	h.screen.InjectKey(tcell.KeyCtrlU, 0, tcell.ModCtrl)
	h.typeText("send ok")
	h.key(tcell.KeyEnter)

	h.waitWritten(t, "ok\r\n")
}

func TestDispatch_CommandQuit(t *testing.T) {
	t.Parallel()

	h := startHarness(t, config.BaseDefaults)
	h.escape()
	h.typeText(":quit")
	h.key(tcell.KeyEnter)

	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not stop on :quit")
	}
	assert.True(t, h.st.Stopped())
}

func TestDispatch_WriteErrorStopsSession(t *testing.T) {
	t.Parallel()

	h := startHarness(t, config.BaseDefaults)
	broken := errors.New("broken pipe")
	h.port.FailWrites(broken)
	h.typeText("a")

	select {
	case err := <-h.done:
		require.ErrorIs(t, err, ErrWrite)
		require.ErrorIs(t, err, broken)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not stop on write error")
	}
	assert.ErrorIs(t, h.st.Reason(), broken)
	assert.Equal(t, "write error", h.surf.Status(surface.OwnerDispatch))
}

func TestDispatch_StatusThrottled(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	h := startHarness(t, config.BaseDefaults, WithClock(clock))
	assert.Equal(t, "tx 0", h.surf.Status(surface.OwnerDispatch))

	h.typeText("abc")
	h.waitWritten(t, "abc")
	assert.Equal(t, "tx 0", h.surf.Status(surface.OwnerDispatch))

	clock.Advance(StatusInterval)
	require.Eventually(t, func() bool {
		return h.surf.Status(surface.OwnerDispatch) == "tx 3"
	}, time.Second, 2*time.Millisecond)
}

func TestModeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "escape seen", ModeEscapeSeen.String())
	assert.Equal(t, "mode(9)", Mode(9).String())
}
