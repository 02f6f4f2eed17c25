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

// Package dispatch reads keystrokes from the surface and forwards them to
// the serial port. An escape key gives access to local commands.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bytenuts/bytenuts/pkg/config"
	"github.com/bytenuts/bytenuts/pkg/helpers/syncutil"
	"github.com/bytenuts/bytenuts/pkg/service/state"
	"github.com/bytenuts/bytenuts/pkg/ui/surface"
	"github.com/gdamore/tcell/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	BreakDuration  = 250 * time.Millisecond
	StatusInterval = 250 * time.Millisecond
)

var ErrWrite = errors.New("serial write failed")

type Mode int32

const (
	ModeIdle Mode = iota
	ModeNormal
	ModeEscapeSeen
	ModeCommand
	ModeStopped
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeNormal:
		return "normal"
	case ModeEscapeSeen:
		return "escape seen"
	case ModeCommand:
		return "command"
	case ModeStopped:
		return "stopped"
	default:
		return fmt.Sprintf("mode(%d)", int32(m))
	}
}

type Engine struct {
	st          *state.State
	surf        *surface.Surface
	cfg         *config.Values
	clock       clockwork.Clock
	statusTimer clockwork.Timer
	lastStatus  time.Time
	line        []rune
	mode        atomic.Int32
	statusMu    syncutil.Mutex
	dtr         bool
	rts         bool
}

type Option func(*Engine)

func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

func New(st *state.State, opts ...Option) *Engine {
	e := &Engine{
		st:    st,
		surf:  st.Surface(),
		cfg:   st.Config(),
		clock: clockwork.NewRealClock(),
		dtr:   true,
		rts:   true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Mode() Mode {
	return Mode(e.mode.Load())
}

func (e *Engine) setMode(m Mode) {
	e.mode.Store(int32(m))
}

// Run reads keys until ctx is cancelled, the user quits or a write fails.
// A write failure stops the session and is returned.
func (e *Engine) Run(ctx context.Context) error {
	defer e.stopStatus()

	e.statusMu.Lock()
	e.flushStatusLocked()
	e.statusMu.Unlock()
	e.surf.SetInput("", "")
	e.setMode(ModeNormal)
	log.Debug().Msg("dispatch started")

	for {
		ev, err := e.surf.ReadKey(ctx)
		if err != nil {
			e.setMode(ModeStopped)
			if ctx.Err() != nil || errors.Is(err, surface.ErrClosed) {
				log.Debug().Msg("dispatch stopped")
				return nil
			}
			return fmt.Errorf("failed to read key: %w", err)
		}

		if err := e.handleKey(ev); err != nil {
			e.setMode(ModeStopped)
			return err
		}
		if e.Mode() == ModeStopped {
			return nil
		}
	}
}

func (e *Engine) handleKey(ev *tcell.EventKey) error {
	switch e.Mode() {
	case ModeEscapeSeen:
		e.setMode(ModeNormal)
		e.surf.SetStatus(surface.OwnerCommand, "")
		return e.escapeAction(ev)
	case ModeCommand:
		return e.editCommand(ev)
	case ModeIdle, ModeNormal, ModeStopped:
	}

	b := KeyBytes(ev)
	if b == nil {
		return nil
	}
	if len(b) == 1 && b[0] == e.cfg.Escape {
		e.setMode(ModeEscapeSeen)
		e.surf.SetStatus(surface.OwnerCommand, "ESC")
		return nil
	}
	return e.send(b, true)
}

// send forwards p to the port. With translate, CR becomes CR LF unless
// no_crlf is set. Echo shows the bytes as sent.
func (e *Engine) send(p []byte, translate bool) error {
	if translate && !e.cfg.NoCRLF {
		p = bytes.ReplaceAll(p, []byte{'\r'}, []byte{'\r', '\n'})
	}
	if e.cfg.Echo {
		e.surf.WriteOutput(p, tcell.StyleDefault)
	}
	return e.write(p)
}

func (e *Engine) write(p []byte) error {
	n, err := e.st.Port().Write(p)
	if n > 0 {
		e.st.AddTx(n)
		e.updateStatus()
	}
	if err != nil {
		e.surf.SetStatus(surface.OwnerDispatch, "write error")
		err = fmt.Errorf("%w: %w", ErrWrite, err)
		e.st.Stop(err)
		return err
	}
	return nil
}

func (e *Engine) quit() {
	e.setMode(ModeStopped)
	e.st.Stop(nil)
}

// updateStatus refreshes the tx counter at most once per StatusInterval. An
// update that comes too soon is deferred so the final count is always shown.
func (e *Engine) updateStatus() {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()

	if e.statusTimer != nil {
		return
	}
	wait := StatusInterval - e.clock.Since(e.lastStatus)
	if wait <= 0 {
		e.flushStatusLocked()
		return
	}
	e.statusTimer = e.clock.AfterFunc(wait, func() {
		e.statusMu.Lock()
		defer e.statusMu.Unlock()
		if e.statusTimer == nil {
			return
		}
		e.statusTimer = nil
		e.flushStatusLocked()
	})
}

func (e *Engine) flushStatusLocked() {
	e.surf.SetStatus(surface.OwnerDispatch, "tx %d", e.st.Tx())
	e.lastStatus = e.clock.Now()
}

func (e *Engine) stopStatus() {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	if e.statusTimer != nil {
		e.statusTimer.Stop()
		e.statusTimer = nil
	}
}
