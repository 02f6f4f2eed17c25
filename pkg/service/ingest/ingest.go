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

// Package ingest reads from the serial port and renders what arrives into
// the output region.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/bytenuts/bytenuts/pkg/service/state"
	"github.com/bytenuts/bytenuts/pkg/ui/surface"
	"github.com/gdamore/tcell/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	ReadSize       = 4096
	ReadTimeout    = 50 * time.Millisecond
	StatusInterval = 250 * time.Millisecond
)

var ErrRead = errors.New("serial read failed")

type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseReading
	PhaseColorEscape
	PhaseLineEnding
	PhaseError
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseReading:
		return "reading"
	case PhaseColorEscape:
		return "color escape"
	case PhaseLineEnding:
		return "line ending"
	case PhaseError:
		return "error"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

type Engine struct {
	st         *state.State
	clock      clockwork.Clock
	capture    io.Writer
	parser     *ansiParser
	lastStatus time.Time
	text       textRenderer
	scratch    []byte
	phase      atomic.Int32
	dirty      bool
}

type Option func(*Engine)

func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithCapture appends every received byte, unmodified, to w.
func WithCapture(w io.Writer) Option {
	return func(e *Engine) {
		e.capture = w
	}
}

func New(st *state.State, opts ...Option) *Engine {
	cfg := st.Config()
	e := &Engine{
		st:     st,
		clock:  clockwork.NewRealClock(),
		parser: newANSIParser(cfg.Colors),
		text:   textRenderer{normalize: cfg.Normalize},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Phase() Phase {
	return Phase(e.phase.Load())
}

func (e *Engine) setPhase(p Phase) {
	e.phase.Store(int32(p))
}

// Run reads from the port until ctx is cancelled or a read fails. A read
// failure stops the session and is returned.
func (e *Engine) Run(ctx context.Context) error {
	port := e.st.Port()
	surf := e.st.Surface()

	if err := port.SetReadTimeout(ReadTimeout); err != nil {
		log.Warn().Err(err).Msg("failed to set read timeout on serial port")
	}

	e.setPhase(PhaseReading)
	surf.SetStatus(surface.OwnerIngest, "rx %d", e.st.Rx())
	e.lastStatus = e.clock.Now()
	log.Debug().Msg("ingest started")

	buf := make([]byte, ReadSize)
	for {
		if ctx.Err() != nil {
			e.setPhase(PhaseStopped)
			log.Debug().Msg("ingest stopped")
			return nil
		}

		n, err := port.Read(buf)
		switch {
		case n > 0:
			e.process(surf, buf[:n])
		case err == nil:
			// the line went quiet; show a held partial sequence as it is
			e.flushPartial(surf)
		}
		if err != nil {
			if ctx.Err() != nil {
				e.setPhase(PhaseStopped)
				return nil
			}
			e.setPhase(PhaseError)
			surf.SetStatus(surface.OwnerIngest, "read error")
			err = fmt.Errorf("%w: %w", ErrRead, err)
			e.st.Stop(err)
			e.setPhase(PhaseStopped)
			return err
		}

		e.updateStatus(surf)
	}
}

func (e *Engine) process(surf *surface.Surface, p []byte) {
	e.writeCapture(p)
	e.st.AddRx(len(p))
	e.dirty = true

	e.parser.feed(p, func(text []byte, style tcell.Style) {
		out, inserted := e.text.render(e.scratch[:0], text)
		if inserted > 0 {
			e.setPhase(PhaseLineEnding)
		}
		e.scratch = out
		if len(out) > 0 {
			surf.WriteOutput(out, style)
		}
	}, func() {
		e.setPhase(PhaseColorEscape)
		e.flushPartial(surf)
	})

	if e.parser.inSequence() {
		e.setPhase(PhaseColorEscape)
	} else {
		e.setPhase(PhaseReading)
	}
}

func (e *Engine) flushPartial(surf *surface.Surface) {
	out := e.text.flush(e.scratch[:0])
	e.scratch = out
	if len(out) > 0 {
		surf.WriteOutput(out, e.parser.style)
	}
}

func (e *Engine) writeCapture(p []byte) {
	if e.capture == nil {
		return
	}
	if _, err := e.capture.Write(p); err != nil {
		log.Error().Err(err).Msg("failed to write capture log, capture disabled")
		e.capture = nil
	}
}

// updateStatus refreshes the rx counter at most once per StatusInterval.
func (e *Engine) updateStatus(surf *surface.Surface) {
	if !e.dirty {
		return
	}
	now := e.clock.Now()
	if now.Sub(e.lastStatus) < StatusInterval {
		return
	}
	surf.SetStatus(surface.OwnerIngest, "rx %d", e.st.Rx())
	e.lastStatus = now
	e.dirty = false
}
