// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package launcher spawns client apps with an environment pointing them at the
// compositor and keeps track of them until they exit.
package launcher

import (
	"bufio"
	"errors"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mstarongithub/marathon-shell/util/multiplexer"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

type Options struct {
	SocketName      string
	RuntimeDir      string
	Shell           string
	DesktopFileDir  string
	QtControlsStyle string
	// Forward client stdout as Output events. stderr is always forwarded
	Debug bool
	// Environment clients start from. Defaults to os.Environ
	BaseEnv func() []string
	Clock   clockwork.Clock
	// Buffer of the events channel
	EventBuffer int
}

type Launcher struct {
	opts   Options
	clock  clockwork.Clock
	events *multiplexer.ManyToOne[Event]

	mu     sync.Mutex
	byID   map[string]*Process
	byPID  map[int]*Process
	seq    uint64
	closed bool
	// One per launch, done once the exit has been reported
	running sync.WaitGroup
}

func New(opts Options) *Launcher {
	if opts.Shell == "" {
		opts.Shell = "/bin/sh"
	}
	if opts.DesktopFileDir == "" {
		opts.DesktopFileDir = "/tmp/marathon-apps"
	}
	if opts.BaseEnv == nil {
		opts.BaseEnv = os.Environ
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	return &Launcher{
		opts:   opts,
		clock:  opts.Clock,
		events: multiplexer.NewManyToOne(make(chan Event, opts.EventBuffer)),
		byID:   make(map[string]*Process),
		byPID:  make(map[int]*Process),
	}
}

// Events delivers everything that happens to launched processes.
// Must be drained until it is closed by Shutdown, otherwise process goroutines block
func (l *Launcher) Events() <-chan Event {
	return l.events.Receiver()
}

// Launch starts raw in the background and returns the id of the launch.
// Whether the process actually started is reported through Events.
// Only an empty command or a shut down launcher are reported here
func (l *Launcher) Launch(raw string) (string, error) {
	cmd, err := ParseCommand(raw, l.opts.SocketName)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return "", ErrShutdown
	}
	l.seq++
	p := &Process{
		LaunchID: uuid.NewString(),
		Command:  cmd,
		Identity: NewIdentity(l.clock.Now(), cmd.Resolved, l.seq, l.opts.DesktopFileDir),
		state:    StateStarting,
	}
	l.byID[p.LaunchID] = p
	l.running.Add(1)
	l.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"launch":   p.LaunchID,
		"command":  cmd.Original,
		"resolved": cmd.Resolved,
		"kind":     cmd.Kind,
		"app-id":   p.Identity.AppID,
	}).Infoln("Launching app")

	go l.run(p)
	return p.LaunchID, nil
}

func (l *Launcher) run(p *Process) {
	defer l.running.Done()

	c := exec.Command(l.opts.Shell, "-c", p.Command.Resolved)
	c.Env = BuildEnv(l.opts.BaseEnv(), EnvOptions{
		SocketName:      l.opts.SocketName,
		RuntimeDir:      l.opts.RuntimeDir,
		QtControlsStyle: l.opts.QtControlsStyle,
		CompositorPID:   os.Getpid(),
	}, p.Identity)
	// Own process group so signals reach whatever the shell spawned
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout io.ReadCloser
	stderr, err := c.StderrPipe()
	if err == nil && l.opts.Debug {
		stdout, err = c.StdoutPipe()
	}
	if err == nil {
		err = c.Start()
	}
	if err != nil {
		l.forget(p)
		logrus.WithError(err).WithField("command", p.Command.Original).Errorln("App failed to start")
		l.emit(Failed{ID: p.LaunchID, Command: p.Command, Kind: FailedToStart, Err: err})
		return
	}

	pid := c.Process.Pid
	p.mu.Lock()
	p.pid = pid
	p.state = StateRunning
	p.mu.Unlock()

	l.mu.Lock()
	l.byPID[pid] = p
	closed := l.closed
	l.mu.Unlock()
	if closed {
		// Shutdown raced the start, don't leave it behind
		_ = unix.Kill(-pid, unix.SIGKILL)
	}

	logrus.WithFields(logrus.Fields{
		"command": p.Command.Original,
		"pid":     pid,
	}).Infoln("App process started, waiting for its surface")
	l.emit(Started{ID: p.LaunchID, Command: p.Command, PID: pid})

	var readers sync.WaitGroup
	readers.Add(1)
	go l.forward(p, pid, Stderr, stderr, &readers)
	if stdout != nil {
		readers.Add(1)
		go l.forward(p, pid, Stdout, stdout, &readers)
	}
	// Wait closes the pipes, so all output has to be read first
	readers.Wait()

	err = c.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		logrus.WithError(err).WithField("pid", pid).Warningln("Waiting for app failed")
	}
	code, crashed := exitStatus(c.ProcessState)

	l.forget(p)
	logrus.WithFields(logrus.Fields{
		"command":   p.Command.Original,
		"pid":       pid,
		"exit-code": code,
		"crashed":   crashed,
	}).Infoln("App process finished")
	l.emit(Exited{ID: p.LaunchID, Command: p.Command, PID: pid, ExitCode: code, Crashed: crashed})
}

// Turns lines of one output stream into events
func (l *Launcher) forward(p *Process, pid int, stream Stream, r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		l.emit(Output{ID: p.LaunchID, Command: p.Command, PID: pid, Stream: stream, Line: line})
	}
	if err := scanner.Err(); err != nil {
		l.emit(Failed{ID: p.LaunchID, Command: p.Command, PID: pid, Kind: ReadError, Err: err})
		// Keep the pipe drained so the client never blocks on a write
		_, _ = io.Copy(io.Discard, r)
	}
}

func exitStatus(state *os.ProcessState) (code int, crashed bool) {
	if state == nil {
		return -1, false
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -1, true
	}
	return state.ExitCode(), false
}

// Drops a process from the live set, it is not kept for history
func (l *Launcher) forget(p *Process) {
	p.setState(StateExited)
	l.mu.Lock()
	delete(l.byID, p.LaunchID)
	if pid := p.PID(); pid > 0 && l.byPID[pid] == p {
		delete(l.byPID, pid)
	}
	l.mu.Unlock()
}

func (l *Launcher) emit(ev Event) {
	if err := l.events.Send(ev); err != nil {
		logrus.WithField("launch", ev.Launch()).Debugln("Dropping launcher event after shutdown")
	}
}

func (l *Launcher) lookup(pid int) (*Process, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.byPID[pid]
	return p, ok
}

// Alive reports whether pid belongs to a launched process that has not exited yet
func (l *Launcher) Alive(pid int) bool {
	p, ok := l.lookup(pid)
	return ok && p.State() != StateExited
}

// Signal sends sig to the process group of a launched process.
// ErrProcessGone means it already exited, which callers usually treat as success
func (l *Launcher) Signal(pid int, sig syscall.Signal) error {
	p, ok := l.lookup(pid)
	if !ok || p.State() == StateExited {
		return ErrProcessGone
	}
	if sig == unix.SIGTERM || sig == unix.SIGKILL {
		p.mu.Lock()
		if p.state == StateRunning {
			p.state = StateExiting
		}
		p.mu.Unlock()
	}
	if err := unix.Kill(-pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return ErrProcessGone
		}
		return err
	}
	return nil
}

// Processes lists all live processes ordered by PID. Processes still starting have PID 0
func (l *Launcher) Processes() []Info {
	l.mu.Lock()
	infos := make([]Info, 0, len(l.byID))
	for _, p := range l.byID {
		infos = append(infos, p.info())
	}
	l.mu.Unlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].PID < infos[j].PID })
	return infos
}

// Shutdown terminates every live process, kills those still around after timeout
// and closes the events channel once all exits have been reported
func (l *Launcher) Shutdown(timeout time.Duration) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	pids := make([]int, 0, len(l.byPID))
	for pid := range l.byPID {
		pids = append(pids, pid)
	}
	l.mu.Unlock()

	for _, pid := range pids {
		_ = l.Signal(pid, unix.SIGTERM)
	}

	done := make(chan struct{})
	go func() {
		l.running.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-l.clock.After(timeout):
		for _, info := range l.Processes() {
			if info.PID == 0 {
				continue
			}
			logrus.WithField("pid", info.PID).Warningln("App did not exit on shutdown, killing it")
			l.emit(Failed{ID: info.LaunchID, Command: info.Command, PID: info.PID, Kind: TimedOut, Err: errors.New("no exit after SIGTERM")})
			_ = l.Signal(info.PID, unix.SIGKILL)
		}
		<-done
	}
	l.events.Close()
}
