package compositor

import (
	"context"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mstarongithub/marathon-shell/launcher"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

type sentSignal struct {
	PID    int
	Signal syscall.Signal
}

// Stands in for launcher.Launcher. Processes only exit when the test says so
type fakeLauncher struct {
	mu        sync.Mutex
	alive     map[int]bool
	launches  []string
	signals   []sentSignal
	signalErr error
	events    chan launcher.Event
	closeOnce sync.Once
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{
		alive:  make(map[int]bool),
		events: make(chan launcher.Event, 64),
	}
}

func (f *fakeLauncher) Launch(command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", launcher.ErrEmptyCommand
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launches = append(f.launches, command)
	return "launch-" + command, nil
}

func (f *fakeLauncher) Alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

func (f *fakeLauncher) Signal(pid int, sig syscall.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.alive[pid] {
		return launcher.ErrProcessGone
	}
	if f.signalErr != nil {
		return f.signalErr
	}
	f.signals = append(f.signals, sentSignal{PID: pid, Signal: sig})
	return nil
}

func (f *fakeLauncher) Events() <-chan launcher.Event {
	return f.events
}

func (f *fakeLauncher) Shutdown(time.Duration) {
	f.closeOnce.Do(func() { close(f.events) })
}

// Makes every following signal fail with err
func (f *fakeLauncher) failSignals(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signalErr = err
}

func (f *fakeLauncher) sentSignals() []sentSignal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentSignal(nil), f.signals...)
}

func (f *fakeLauncher) start(pid int, raw string) launcher.Command {
	cmd, err := launcher.ParseCommand(raw, "marathon-test-0")
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	f.alive[pid] = true
	f.mu.Unlock()
	f.events <- launcher.Started{ID: "launch-" + raw, Command: cmd, PID: pid}
	return cmd
}

func (f *fakeLauncher) exit(pid int, cmd launcher.Command, code int, crashed bool) {
	f.mu.Lock()
	f.alive[pid] = false
	f.mu.Unlock()
	f.events <- launcher.Exited{ID: "launch-" + cmd.Original, Command: cmd, PID: pid, ExitCode: code, Crashed: crashed}
}

type fakeSurface struct {
	pid    int
	hasPID bool

	mu     sync.Mutex
	closed int
}

func newFakeSurface(pid int) *fakeSurface {
	return &fakeSurface{pid: pid, hasPID: pid > 0}
}

func (s *fakeSurface) ClientPID() (int, bool) {
	return s.pid, s.hasPID
}

func (s *fakeSurface) CloseClient() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
}

func (s *fakeSurface) closedClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeToplevel struct {
	mu            sync.Mutex
	title         string
	appID         string
	nextSub       int
	titleSubs     map[int]func(string)
	appIDSubs     map[int]func(string)
	closeRequests int
}

func newFakeToplevel(title, appID string) *fakeToplevel {
	return &fakeToplevel{
		title:     title,
		appID:     appID,
		titleSubs: make(map[int]func(string)),
		appIDSubs: make(map[int]func(string)),
	}
}

func (t *fakeToplevel) Title() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.title
}

func (t *fakeToplevel) AppID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appID
}

func (t *fakeToplevel) subscribe(subs map[int]func(string), fn func(string)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextSub++
	id := t.nextSub
	subs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(subs, id)
	}
}

func (t *fakeToplevel) OnTitleChanged(fn func(string)) func() {
	return t.subscribe(t.titleSubs, fn)
}

func (t *fakeToplevel) OnAppIDChanged(fn func(string)) func() {
	return t.subscribe(t.appIDSubs, fn)
}

func (t *fakeToplevel) SendClose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeRequests++
}

func (t *fakeToplevel) closeRequested() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeRequests
}

func (t *fakeToplevel) subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.titleSubs) + len(t.appIDSubs)
}

// Changes the title like a client would, notifying subscribers outside the lock
func (t *fakeToplevel) setTitle(title string) {
	t.mu.Lock()
	t.title = title
	fns := make([]func(string), 0, len(t.titleSubs))
	for _, fn := range t.titleSubs {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(title)
	}
}

func (t *fakeToplevel) setAppID(appID string) {
	t.mu.Lock()
	t.appID = appID
	fns := make([]func(string), 0, len(t.appIDSubs))
	for _, fn := range t.appIDSubs {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(appID)
	}
}

// wl_shell surfaces have no app id and can't be asked to close
type fakeLegacyShell struct {
	mu    sync.Mutex
	title string
	subs  map[int]func(string)
	next  int
}

func (l *fakeLegacyShell) Title() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.title
}

func (l *fakeLegacyShell) OnTitleChanged(fn func(string)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subs == nil {
		l.subs = make(map[int]func(string))
	}
	l.next++
	id := l.next
	l.subs[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, id)
	}
}

// Collects every event the compositor emits
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func eventsOf[T Event](r *recorder) []T {
	var found []T
	for _, ev := range r.all() {
		if typed, ok := ev.(T); ok {
			found = append(found, typed)
		}
	}
	return found
}

// Waits until n events of type T were recorded and returns them
func waitEvents[T Event](t *testing.T, r *recorder, n int) []T {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(eventsOf[T](r)) >= n
	}, waitTimeout, time.Millisecond, "waiting for %d events of type %T", n, *new(T))
	return eventsOf[T](r)
}

// Position of the first event matching, -1 if there is none
func indexOf(events []Event, match func(Event) bool) int {
	for i, ev := range events {
		if match(ev) {
			return i
		}
	}
	return -1
}

type harness struct {
	c        *Compositor
	launcher *fakeLauncher
	clock    clockwork.FakeClock
	rec      *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		launcher: newFakeLauncher(),
		clock:    clockwork.NewFakeClock(),
		rec:      &recorder{},
	}
	h.c = New(Options{Launcher: h.launcher, Clock: h.clock})

	events, err := h.c.Subscribe("test")
	require.NoError(t, err)
	recorded := make(chan struct{})
	go func() {
		defer close(recorded)
		for ev := range events {
			h.rec.mu.Lock()
			h.rec.events = append(h.rec.events, ev)
			h.rec.mu.Unlock()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{})
	go func() {
		defer close(ran)
		_ = h.c.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-ran
		h.c.Close()
		<-recorded
	})
	return h
}

// Launches raw as pid and waits until the compositor saw it start
func (h *harness) launch(t *testing.T, pid int, raw string) launcher.Command {
	t.Helper()
	_, ok := h.c.LaunchApp(raw)
	require.True(t, ok)
	before := len(eventsOf[AppLaunched](h.rec))
	cmd := h.launcher.start(pid, raw)
	waitEvents[AppLaunched](t, h.rec, before+1)
	return cmd
}
