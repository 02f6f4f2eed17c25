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
	"bytes"
	"errors"
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
	engine *Engine
	done   <-chan error
}

func startHarness(t *testing.T, cfg config.Values, opts ...Option) *harness {
	t.Helper()
	surf, _ := helpers.NewSimSurface(t, 80, 24)
	port := mocks.NewMockPort()
	st := state.NewState(&cfg, surf, port, "test-session")

	e := New(st, opts...)
	stop, done := helpers.RunInBackground(st.Context(), e.Run)
	t.Cleanup(func() {
		stop()
		<-done
	})
	return &harness{st: st, port: port, surf: surf, engine: e, done: done}
}

func TestIngest_RendersLines(t *testing.T) {
	t.Parallel()

	h := startHarness(t, config.BaseDefaults)
	h.port.Feed([]byte("hello\r\nworld\r\n"))

	helpers.WaitForOutput(t, h.surf, "world")
	assert.Equal(t, []string{"hello", "world", ""}, h.surf.OutputLines())
	assert.Equal(t, "hello", h.surf.Row(0))
	assert.Equal(t, ReadTimeout, h.port.ReadTimeout())
}

func TestIngest_NormalizesBareLF(t *testing.T) {
	t.Parallel()

	h := startHarness(t, config.BaseDefaults)
	h.port.Feed([]byte("one\ntwo\r"))
	h.port.Feed([]byte("\nthree"))

	helpers.WaitForOutput(t, h.surf, "three")
	assert.Equal(t, []string{"one", "two", "three"}, h.surf.OutputLines())
}

func TestIngest_NormalizeOff(t *testing.T) {
	t.Parallel()

	cfg := config.BaseDefaults
	cfg.Normalize = false
	h := startHarness(t, cfg)
	h.port.Feed([]byte("ab\ncd"))

	helpers.WaitForOutput(t, h.surf, "  cd")
	assert.Equal(t, []string{"ab", "  cd"}, h.surf.OutputLines())
}

func TestIngest_Colors(t *testing.T) {
	t.Parallel()

	h := startHarness(t, config.BaseDefaults)
	h.port.Feed([]byte("\x1b[31mred\x1b[0m ok\r\n"))

	helpers.WaitForOutput(t, h.surf, "red ok")
	fg, _, _ := h.surf.CellStyle(0, 0).Decompose()
	assert.Equal(t, tcell.ColorMaroon, fg)
	fg, _, _ = h.surf.CellStyle(4, 0).Decompose()
	assert.Equal(t, tcell.ColorDefault, fg)
}

func TestIngest_ColorsDisabled(t *testing.T) {
	t.Parallel()

	cfg := config.BaseDefaults
	cfg.Colors = false
	h := startHarness(t, cfg)
	h.port.Feed([]byte("\x1b[31mred\x1b[0m ok\r\n"))

	helpers.WaitForOutput(t, h.surf, "red ok")
	fg, _, _ := h.surf.CellStyle(0, 0).Decompose()
	assert.Equal(t, tcell.ColorDefault, fg)
}

func TestIngest_EscapeSplitAcrossReads(t *testing.T) {
	t.Parallel()

	h := startHarness(t, config.BaseDefaults)
	h.port.Feed([]byte("\x1b[3"))
	require.Eventually(t, func() bool {
		return h.engine.Phase() == PhaseColorEscape
	}, time.Second, 5*time.Millisecond)

	h.port.Feed([]byte("2mgreen"))
	helpers.WaitForOutput(t, h.surf, "green")
	fg, _, _ := h.surf.CellStyle(0, 0).Decompose()
	assert.Equal(t, tcell.ColorGreen, fg)
	assert.Equal(t, PhaseReading, h.engine.Phase())
}

func TestIngest_CP437AndSplitUTF8(t *testing.T) {
	t.Parallel()

	h := startHarness(t, config.BaseDefaults)
	h.port.Feed([]byte("caf\xc3"))
	h.port.Feed([]byte("\xa9 \xb0\xb0"))

	helpers.WaitForOutput(t, h.surf, "café ░░")
}

func TestIngest_PartialUTF8ShownWhenIdle(t *testing.T) {
	t.Parallel()

	h := startHarness(t, config.BaseDefaults)
	h.port.Feed([]byte("ok\xc3"))

	// 0xC3 is a box drawing character in code page 437
	helpers.WaitForOutput(t, h.surf, "ok├")

	h.port.Feed([]byte("\xa9"))
	helpers.WaitForOutput(t, h.surf, "ok├⌐")
}

func TestIngest_Capture(t *testing.T) {
	t.Parallel()

	var capture bytes.Buffer
	cfg := config.BaseDefaults
	surf, _ := helpers.NewSimSurface(t, 80, 24)
	port := mocks.NewMockPort()
	st := state.NewState(&cfg, surf, port, "test-session")

	e := New(st, WithCapture(&capture))
	stop, done := helpers.RunInBackground(st.Context(), e.Run)

	raw := []byte("\x1b[1mraw\nbytes\x07")
	port.Feed(raw)
	helpers.WaitForOutput(t, surf, "bytes")

	stop()
	require.NoError(t, <-done)
	assert.Equal(t, raw, capture.Bytes())
	assert.Equal(t, uint64(len(raw)), st.Rx())
}

func TestIngest_StatusThrottled(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	h := startHarness(t, config.BaseDefaults, WithClock(clock))

	require.Eventually(t, func() bool {
		return h.surf.Status(surface.OwnerIngest) == "rx 0"
	}, time.Second, 5*time.Millisecond)

	h.port.Feed([]byte("abc"))
	helpers.WaitForOutput(t, h.surf, "abc")
	// a few read timeouts pass without the clock moving
	time.Sleep(3 * ReadTimeout)
	assert.Equal(t, "rx 0", h.surf.Status(surface.OwnerIngest))

	clock.Advance(StatusInterval)
	require.Eventually(t, func() bool {
		return h.surf.Status(surface.OwnerIngest) == "rx 3"
	}, time.Second, 5*time.Millisecond)
}

func TestIngest_ReadErrorStopsSession(t *testing.T) {
	t.Parallel()

	h := startHarness(t, config.BaseDefaults)
	unplugged := errors.New("device unplugged")
	h.port.FailReads(unplugged)

	select {
	case err := <-h.done:
		require.ErrorIs(t, err, ErrRead)
		require.ErrorIs(t, err, unplugged)
	case <-time.After(2 * time.Second):
		t.Fatal("ingest did not stop on read error")
	}

	assert.True(t, h.st.Stopped())
	assert.ErrorIs(t, h.st.Reason(), unplugged)
	assert.Equal(t, "read error", h.surf.Status(surface.OwnerIngest))
	assert.Equal(t, PhaseStopped, h.engine.Phase())
}

func TestIngest_StopsWithSession(t *testing.T) {
	t.Parallel()

	h := startHarness(t, config.BaseDefaults)
	h.st.Stop(nil)

	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ingest did not stop with the session")
	}
	assert.Equal(t, PhaseStopped, h.engine.Phase())
}

func TestPhaseString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "color escape", PhaseColorEscape.String())
	assert.Equal(t, "phase(42)", Phase(42).String())
}
