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

// Package service runs one terminal session: it opens the port and the
// display, starts the ingest and dispatch engines, and tears everything down
// again in order when the session stops.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bytenuts/bytenuts/pkg/config"
	"github.com/bytenuts/bytenuts/pkg/serial"
	"github.com/bytenuts/bytenuts/pkg/service/dispatch"
	"github.com/bytenuts/bytenuts/pkg/service/ingest"
	"github.com/bytenuts/bytenuts/pkg/service/state"
	"github.com/bytenuts/bytenuts/pkg/ui/surface"
	"github.com/gdamore/tcell/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// TeardownTimeout bounds the wait for each engine to return. After it the
// port is closed to unblock a stuck read or write.
const TeardownTimeout = 2 * time.Second

// Options are the collaborators a session is built from. Zero fields fall
// back to DefaultOptions.
type Options struct {
	PortFactory   serial.Factory
	ScreenFactory func() (tcell.Screen, error)
	Fs            afero.Fs
	Clock         clockwork.Clock

	// onSurface, if set, is handed the surface once it is up.
	onSurface func(*surface.Surface)
}

func DefaultOptions() Options {
	return Options{
		PortFactory:   serial.Open,
		ScreenFactory: tcell.NewScreen,
		Fs:            afero.NewOsFs(),
		Clock:         clockwork.NewRealClock(),
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.PortFactory == nil {
		o.PortFactory = def.PortFactory
	}
	if o.ScreenFactory == nil {
		o.ScreenFactory = def.ScreenFactory
	}
	if o.Fs == nil {
		o.Fs = def.Fs
	}
	if o.Clock == nil {
		o.Clock = def.Clock
	}
	return o
}

// Start opens the session's resources and starts the engines. done is closed
// once the session has stopped, by the user, a transport error or stop, and
// everything has been released. stop ends the session, waits for done and
// returns the transport error that ended it, if any.
func Start(
	cfg *config.Values,
	opts Options,
) (stop func() error, done <-chan struct{}, err error) {
	opts = opts.withDefaults()

	log.Info().Msgf("version: %s", config.AppVersion)
	sessionID := uuid.New().String()
	log.Info().Msgf("session UUID: %s", sessionID)

	log.Info().Str("path", cfg.SerialPath).Stringer("baud", cfg.Baud).Msg("opening serial port")
	port, err := opts.PortFactory(cfg.SerialPath, cfg.Baud)
	if err != nil {
		log.Error().Err(err).Msg("error opening serial port")
		return nil, nil, err
	}
	closePort := sync.OnceValue(port.Close)

	var capture afero.File
	if cfg.LogPath != "" {
		log.Info().Str("path", cfg.LogPath).Msg("opening capture log")
		capture, err = opts.Fs.OpenFile(cfg.LogPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			log.Error().Err(err).Msg("error opening capture log")
			_ = closePort()
			return nil, nil, fmt.Errorf("failed to open capture log: %w", err)
		}
	}

	log.Info().Msg("initializing display")
	surf, err := newSurface(cfg, opts)
	if err != nil {
		log.Error().Err(err).Msg("error initializing display")
		closeCapture(capture)
		_ = closePort()
		return nil, nil, err
	}

	if opts.onSurface != nil {
		opts.onSurface(surf)
	}

	surf.SetStatus(surface.OwnerSystem, "%s", cfg.SerialPath)
	if named, ok := port.(serial.Named); ok && cfg.SerialPath == serial.PTYPath {
		log.Info().Str("pty", named.Name()).Msg("opened pseudo-terminal")
		surf.SetStatus(surface.OwnerSystem, "%s", named.Name())
		surf.Notice("Opened PTY port " + named.Name())
	}

	st := state.NewState(cfg, surf, port, sessionID)

	// One group supervises both engines: the first engine error cancels the
	// other. Each engine also gets its own context so teardown can stop them
	// in order.
	g, gctx := errgroup.WithContext(st.Context())

	log.Info().Msg("starting ingest")
	ingestOpts := []ingest.Option{ingest.WithClock(opts.Clock)}
	if capture != nil {
		ingestOpts = append(ingestOpts, ingest.WithCapture(capture))
	}
	ingestCtx, stopIngest := context.WithCancel(gctx)
	ingestDone := goEngine(g, ingestCtx, "ingest", ingest.New(st, ingestOpts...).Run)

	log.Info().Msg("starting dispatch")
	dispatchCtx, stopDispatch := context.WithCancel(gctx)
	dispatchDone := goEngine(g, dispatchCtx, "dispatch", dispatch.New(st, dispatch.WithClock(opts.Clock)).Run)

	doneCh := make(chan struct{})
	go func() {
		<-gctx.Done()
		st.Stop(context.Cause(gctx))
		log.Info().Msg("session stopped, running cleanup")

		stopDispatch()
		waitEngine(opts.Clock, "dispatch", dispatchDone, closePort)
		stopIngest()
		waitEngine(opts.Clock, "ingest", ingestDone, closePort)
		if err := g.Wait(); err != nil {
			log.Info().Err(err).Msg("session ended on transport error")
		}

		surf.Fini()
		closeCapture(capture)
		if closeErr := closePort(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("error closing serial port")
		}

		log.Info().Uint64("rx", st.Rx()).Uint64("tx", st.Tx()).Msg("session cleanup completed")
		close(doneCh)
	}()

	stop = func() error {
		st.Stop(nil)
		<-doneCh
		return st.Reason()
	}
	done = doneCh
	return stop, done, nil
}

// Run runs a session until the user quits, the port fails or ctx is
// cancelled. The terminal is restored before it returns. It returns the
// transport error that ended the session, or nil.
func Run(ctx context.Context, cfg *config.Values, opts Options) error {
	stop, done, err := Start(cfg, opts)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("received stop signal")
	case <-done:
	}

	err = stop()
	if err != nil {
		return fmt.Errorf("session ended: %w", err)
	}
	return nil
}

func newSurface(cfg *config.Values, opts Options) (*surface.Surface, error) {
	screen, err := opts.ScreenFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create screen: %w", err)
	}
	surf, err := surface.New(screen, surface.Options{Scrollback: cfg.Scrollback})
	if err != nil {
		return nil, err
	}
	return surf, nil
}

// goEngine runs an engine loop in g. The returned channel is closed once
// the loop has returned.
func goEngine(
	g *errgroup.Group,
	ctx context.Context, //nolint:revive // the group comes first
	name string,
	run func(context.Context) error,
) <-chan struct{} {
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		err := run(ctx)
		logEngineExit(name, err)
		return err
	})
	return done
}

// waitEngine waits for an engine to return. If it hasn't after
// TeardownTimeout the port is closed to unblock it.
func waitEngine(clock clockwork.Clock, name string, done <-chan struct{}, closePort func() error) {
	select {
	case <-done:
		return
	case <-clock.After(TeardownTimeout):
	}

	log.Warn().Str("engine", name).Msg("engine did not stop in time, closing port")
	if err := closePort(); err != nil {
		log.Warn().Err(err).Msg("error closing serial port")
	}
	<-done
}

func logEngineExit(name string, err error) {
	switch {
	case err == nil:
		log.Debug().Str("engine", name).Msg("engine stopped")
	case errors.Is(err, ingest.ErrRead), errors.Is(err, dispatch.ErrWrite):
		log.Info().Err(err).Str("engine", name).Msg("engine stopped on transport error")
	default:
		log.Error().Err(err).Str("engine", name).Msg("engine failed")
	}
}

func closeCapture(f afero.File) {
	if f == nil {
		return
	}
	if err := f.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing capture log")
	}
}
