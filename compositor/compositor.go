// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package compositor keeps track of client surfaces, ties them to the processes
// that were launched for them and closes them again, forcefully if needed.
// It knows nothing about the wayland library in use, the protocol side feeds it
// through the Surface, Toplevel and LegacyShellSurface interfaces.
package compositor

import (
	"context"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mstarongithub/marathon-shell/launcher"
	"github.com/mstarongithub/marathon-shell/metrics"
	"github.com/mstarongithub/marathon-shell/util/multiplexer"
	"github.com/sirupsen/logrus"
)

const (
	DefaultGracePeriod     = 5 * time.Second
	DefaultTerminatePeriod = 3 * time.Second
	DefaultShutdownTimeout = 3 * time.Second
)

// ProcessLauncher is what the compositor needs from a launcher.Launcher
type ProcessLauncher interface {
	Launch(command string) (string, error)
	Alive(pid int) bool
	Signal(pid int, sig syscall.Signal) error
	Events() <-chan launcher.Event
	Shutdown(timeout time.Duration)
}

type Options struct {
	Launcher ProcessLauncher
	Clock    clockwork.Clock
	Metrics  *metrics.Metrics
	// Time a window gets to close after being asked before SIGTERM
	GracePeriod time.Duration
	// Time between SIGTERM and SIGKILL
	TerminatePeriod time.Duration
	// How long launched apps get to exit when the compositor stops
	ShutdownTimeout time.Duration
	// Buffer of every subscriber channel
	EventBuffer int
}

type Compositor struct {
	launcher ProcessLauncher
	clock    clockwork.Clock
	metrics  *metrics.Metrics

	gracePeriod     time.Duration
	terminatePeriod time.Duration
	shutdownTimeout time.Duration

	// Everything below is guarded by mu.
	// Holding it for every mutation is what orders protocol callbacks,
	// launcher events and timers against each other
	mu       sync.Mutex
	nextID   int
	surfaces map[int]*managedSurface
	// Creation order of live surface ids
	order    []int
	byHandle map[Surface]int
	byPID    map[int]int
	// Started, not yet exited launches in launch order
	launched []int
	// Launch id of the running process behind each pid in launched.
	// A pid alone can't tell a process from a later one the kernel gave the same number
	launchIDs map[int]string

	outbox   []Event
	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	pumpDone chan struct{}
	plexer   *multiplexer.OneToMany[Event]
}

func New(opts Options) *Compositor {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.TerminatePeriod <= 0 {
		opts.TerminatePeriod = DefaultTerminatePeriod
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}

	c := &Compositor{
		launcher:        opts.Launcher,
		clock:           opts.Clock,
		metrics:         opts.Metrics,
		gracePeriod:     opts.GracePeriod,
		terminatePeriod: opts.TerminatePeriod,
		shutdownTimeout: opts.ShutdownTimeout,
		nextID:          1,
		surfaces:        make(map[int]*managedSurface),
		byHandle:        make(map[Surface]int),
		byPID:           make(map[int]int),
		launchIDs:       make(map[int]string),
		wake:            make(chan struct{}, 1),
		stop:            make(chan struct{}),
		pumpDone:        make(chan struct{}),
		plexer:          multiplexer.NewOneToMany[Event](opts.EventBuffer),
	}
	go c.plexer.StartPlexer()
	go c.pump()
	return c
}

// Subscribe returns a channel receiving every event emitted from now on, in emission order.
// The channel must be drained until it is closed by Close or Unsubscribe
func (c *Compositor) Subscribe(name string) (<-chan Event, error) {
	return c.plexer.MakeReceiver(name)
}

func (c *Compositor) Unsubscribe(name string) {
	c.plexer.CloseReceiver(name)
}

// Queue an event. mu must be held
func (c *Compositor) emit(ev Event) {
	c.outbox = append(c.outbox, ev)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Compositor) publish(events ...Event) {
	c.mu.Lock()
	for _, ev := range events {
		c.emit(ev)
	}
	c.mu.Unlock()
}

// Moves queued events into the plexer, outside of mu so slow subscribers never block mutation
func (c *Compositor) pump() {
	defer close(c.pumpDone)
	for {
		select {
		case <-c.wake:
			c.flush()
		case <-c.stop:
			c.flush()
			return
		}
	}
}

func (c *Compositor) flush() {
	for {
		c.mu.Lock()
		batch := c.outbox
		c.outbox = nil
		c.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			c.plexer.GetSender() <- ev
		}
	}
}

// Run handles launcher events until ctx is done or the launcher closed its events
func (c *Compositor) Run(ctx context.Context) error {
	events := c.launcher.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				logrus.Debugln("Launcher events closed, compositor stops listening")
				return nil
			}
			c.handleLauncherEvent(ev)
		}
	}
}

// LaunchApp starts command. accepted is false only for commands that can't be run at all,
// everything else (including spawn failures) is reported through events
func (c *Compositor) LaunchApp(command string) (launchID string, accepted bool) {
	id, err := c.launcher.Launch(command)
	if err != nil {
		logrus.WithError(err).WithField("command", command).Warningln("Rejected app launch")
		c.metrics.ProcessError(launcher.FailedToStart.String())
		c.publish(ProcessError{Command: command, Kind: launcher.FailedToStart, Err: err})
		return "", false
	}
	return id, true
}

// GetSurfaceByID returns a snapshot of the surface with the given id
func (c *Compositor) GetSurfaceByID(id int) (SurfaceInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.surfaces[id]
	if !ok {
		return SurfaceInfo{}, false
	}
	return rec.info(), true
}

// Surfaces lists all live surfaces in creation order
func (c *Compositor) Surfaces() []SurfaceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	infos := make([]SurfaceInfo, 0, len(c.order))
	for _, id := range c.order {
		infos = append(infos, c.surfaces[id].info())
	}
	return infos
}

// UnlinkedLaunches lists PIDs of running launched apps that have no surface yet, oldest first.
// Protocol backends without client credentials use it to guess the owner of a new surface
func (c *Compositor) UnlinkedLaunches() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	pids := []int{}
	for _, pid := range c.launched {
		if _, linked := c.byPID[pid]; !linked {
			pids = append(pids, pid)
		}
	}
	return pids
}

// SoleUnlinkedLaunch returns the only running launched app without a surface.
// False when there is none or more than one, as then nobody can tell which app a new surface belongs to
func (c *Compositor) SoleUnlinkedLaunch() (int, bool) {
	pending := c.UnlinkedLaunches()
	if len(pending) != 1 {
		return 0, false
	}
	return pending[0], true
}

// Is launchID still the running process behind pid. mu must not be held
func (c *Compositor) currentLaunch(pid int, launchID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return launchID != "" && c.launchIDs[pid] == launchID
}

// Shutdown stops all launched apps and then the event delivery.
// Run has to keep going while this waits, it reports the exits
func (c *Compositor) Shutdown() {
	logrus.WithField("timeout", c.shutdownTimeout).Infoln("Stopping launched apps")
	c.launcher.Shutdown(c.shutdownTimeout)
	c.Close()
}

// Close delivers what is still queued and closes all subscriber channels
func (c *Compositor) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	<-c.pumpDone
	c.plexer.CloseSender()
}
