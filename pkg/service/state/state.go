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

package state

import (
	"context"
	"sync/atomic"

	"github.com/bytenuts/bytenuts/pkg/config"
	"github.com/bytenuts/bytenuts/pkg/helpers/syncutil"
	"github.com/bytenuts/bytenuts/pkg/serial"
	"github.com/bytenuts/bytenuts/pkg/ui/surface"
	"github.com/rs/zerolog/log"
)

// State is the session context shared by the ingest and dispatch engines:
// the immutable config, the display surface, the open port and the stop
// signal.
//
// The stop signal is level triggered. Stop may be called any number of
// times from any goroutine; only the first call takes effect and its reason
// is kept. Done is closed once and stays closed.
//
// LOCKING RULES: mu protects reason and stopped only. Never call into the
// surface or the port while holding it.
type State struct {
	ctx           context.Context
	port          serial.Port
	surface       *surface.Surface
	reason        error
	ctxCancelFunc context.CancelFunc
	sessionID     string
	cfg           config.Values
	rx            atomic.Uint64
	tx            atomic.Uint64
	mu            syncutil.RWMutex
	stopped       bool
}

func NewState(
	cfg *config.Values,
	surf *surface.Surface,
	port serial.Port,
	sessionID string,
) *State {
	ctx, ctxCancelFunc := context.WithCancel(context.Background())
	return &State{
		ctx:           ctx,
		ctxCancelFunc: ctxCancelFunc,
		cfg:           *cfg,
		surface:       surf,
		port:          port,
		sessionID:     sessionID,
	}
}

// Stop requests the end of the session. A nil reason is a normal quit; a
// non-nil reason is the transport error that ended it. It reports whether
// this call was the one that stopped the session.
func (s *State) Stop(reason error) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.stopped = true
	s.reason = reason
	s.mu.Unlock()

	if reason != nil {
		log.Error().Err(reason).Str("session", s.sessionID).Msg("session stopping")
	} else {
		log.Info().Str("session", s.sessionID).Msg("session stopping")
	}
	s.ctxCancelFunc()
	return true
}

// Done is closed once Stop has been called.
func (s *State) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Context is cancelled when the session stops. Engines derive their own
// contexts from it.
func (s *State) Context() context.Context {
	return s.ctx
}

func (s *State) Stopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// Reason returns the error passed to the first Stop call.
func (s *State) Reason() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

func (s *State) Config() *config.Values {
	cfg := s.cfg
	return &cfg
}

func (s *State) Surface() *surface.Surface {
	return s.surface
}

func (s *State) Port() serial.Port {
	return s.port
}

func (s *State) SessionID() string {
	return s.sessionID
}

// AddRx counts received bytes and returns the new total.
func (s *State) AddRx(n int) uint64 {
	return s.rx.Add(uint64(n)) //nolint:gosec // n is a read count, never negative
}

// AddTx counts transmitted bytes and returns the new total.
func (s *State) AddTx(n int) uint64 {
	return s.tx.Add(uint64(n)) //nolint:gosec // n is a write count, never negative
}

func (s *State) Rx() uint64 {
	return s.rx.Load()
}

func (s *State) Tx() uint64 {
	return s.tx.Load()
}
