package launcher

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

const waitTimeout = 10 * time.Second

func newTestLauncher(t *testing.T, debug bool) *Launcher {
	t.Helper()
	l := New(Options{
		SocketName: "marathon-test-0",
		RuntimeDir: t.TempDir(),
		Debug:      debug,
		BaseEnv: func() []string {
			return []string{"PATH=/usr/bin:/bin", "WAYLAND_DISPLAY=host-wayland", "DISPLAY=:0"}
		},
	})
	t.Cleanup(func() {
		go func() {
			for range l.Events() {
			}
		}()
		l.Shutdown(time.Second)
	})
	return l
}

// Reads events until one matches, failing the test on timeout
func waitFor[T Event](t *testing.T, l *Launcher, match func(T) bool) T {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev, ok := <-l.Events():
			require.True(t, ok, "events closed early")
			if typed, ok := ev.(T); ok && (match == nil || match(typed)) {
				return typed
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func TestLaunchReportsStartAndExit(t *testing.T) {
	l := newTestLauncher(t, false)
	id, err := l.Launch("exit 3")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	started := waitFor[Started](t, l, nil)
	assert.Equal(t, id, started.ID)
	assert.Positive(t, started.PID)

	exited := waitFor[Exited](t, l, nil)
	assert.Equal(t, started.PID, exited.PID)
	assert.Equal(t, 3, exited.ExitCode)
	assert.False(t, exited.Crashed)
	assert.False(t, l.Alive(started.PID))
	assert.Empty(t, l.Processes())
}

func TestLaunchRejectsEmpty(t *testing.T) {
	l := newTestLauncher(t, false)
	_, err := l.Launch("  ")
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestSpawnFailureIsAnEvent(t *testing.T) {
	l := New(Options{SocketName: "marathon-test-0", Shell: "/nonexistent/sh"})
	t.Cleanup(func() { l.Shutdown(time.Second) })

	id, err := l.Launch("/usr/bin/app1")
	require.NoError(t, err, "spawn failures must not be reported synchronously")

	failed := waitFor[Failed](t, l, nil)
	assert.Equal(t, id, failed.ID)
	assert.Equal(t, FailedToStart, failed.Kind)
	assert.Error(t, failed.Err)
	assert.Empty(t, l.Processes(), "failed launch must not stay in the process table")
}

func TestChildEnvironment(t *testing.T) {
	l := newTestLauncher(t, false)
	_, err := l.Launch(`echo "$WAYLAND_DISPLAY|${DISPLAY-unset}|$GDK_BACKEND" >&2`)
	require.NoError(t, err)

	out := waitFor[Output](t, l, nil)
	assert.Equal(t, Stderr, out.Stream)
	assert.Equal(t, "marathon-test-0|unset|wayland", out.Line)
}

func TestAppIDDiffersBetweenIdenticalLaunches(t *testing.T) {
	l := newTestLauncher(t, false)
	const cmd = `echo "$MARATHON_APP_ID" >&2`
	_, err := l.Launch(cmd)
	require.NoError(t, err)
	first := waitFor[Output](t, l, nil)
	_, err = l.Launch(cmd)
	require.NoError(t, err)
	second := waitFor[Output](t, l, nil)

	assert.True(t, strings.HasPrefix(first.Line, "marathon.app."))
	assert.NotEqual(t, first.Line, second.Line)
}

func TestStdoutOnlyInDebug(t *testing.T) {
	quiet := newTestLauncher(t, false)
	_, err := quiet.Launch("echo hidden; echo shown >&2")
	require.NoError(t, err)
	out := waitFor[Output](t, quiet, nil)
	assert.Equal(t, "shown", out.Line)
	waitFor[Exited](t, quiet, nil)

	verbose := newTestLauncher(t, true)
	_, err = verbose.Launch("echo visible")
	require.NoError(t, err)
	out = waitFor[Output](t, verbose, nil)
	assert.Equal(t, Stdout, out.Stream)
	assert.Equal(t, "visible", out.Line)
}

func TestSignalTerminatesProcess(t *testing.T) {
	l := newTestLauncher(t, false)
	_, err := l.Launch("exec sleep 30")
	require.NoError(t, err)
	started := waitFor[Started](t, l, nil)
	require.True(t, l.Alive(started.PID))

	require.NoError(t, l.Signal(started.PID, unix.SIGTERM))
	exited := waitFor[Exited](t, l, nil)
	assert.True(t, exited.Crashed, "death by signal is reported as crash")
	assert.False(t, l.Alive(started.PID))
	assert.ErrorIs(t, l.Signal(started.PID, unix.SIGKILL), ErrProcessGone)
}

func TestSignalUnknownPID(t *testing.T) {
	l := newTestLauncher(t, false)
	assert.ErrorIs(t, l.Signal(999999, unix.SIGTERM), ErrProcessGone)
	assert.False(t, l.Alive(999999))
}

func TestShutdownKillsStubbornProcesses(t *testing.T) {
	l := New(Options{SocketName: "marathon-test-0"})
	_, err := l.Launch("trap '' TERM; sleep 30")
	require.NoError(t, err)
	started := waitFor[Started](t, l, nil)

	var events []Event
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for ev := range l.Events() {
			events = append(events, ev)
		}
	}()
	l.Shutdown(200 * time.Millisecond)
	<-collected

	var timedOut, exited bool
	for _, ev := range events {
		switch e := ev.(type) {
		case Failed:
			timedOut = timedOut || (e.Kind == TimedOut && e.PID == started.PID)
		case Exited:
			exited = exited || e.PID == started.PID
		}
	}
	assert.True(t, timedOut, "expected a timed out report")
	assert.True(t, exited, "expected the exit to be reported before close")

	_, err = l.Launch("true")
	assert.ErrorIs(t, err, ErrShutdown)
}
