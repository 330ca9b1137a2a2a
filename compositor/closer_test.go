package compositor

import (
	"testing"
	"time"

	"github.com/mstarongithub/marathon-shell/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

const quiet = 50 * time.Millisecond

// A launched app with a bound toplevel
func (h *harness) window(t *testing.T, pid int, raw string) (launcher.Command, *fakeSurface, *fakeToplevel, int) {
	t.Helper()
	cmd := h.launch(t, pid, raw)
	s := newFakeSurface(pid)
	tl := newFakeToplevel(raw, "")
	id := h.c.HandleSurfaceCreated(s)
	h.c.BindToplevel(s, tl)
	return cmd, s, tl, id
}

func signalCount(h *harness) func() int {
	return func() int { return len(h.launcher.sentSignals()) }
}

func TestCloseWithCleanExit(t *testing.T) {
	h := newHarness(t)
	cmd, s, tl, id := h.window(t, 100, "/usr/bin/app1")

	h.c.CloseWindow(id)
	assert.Equal(t, 1, tl.closeRequested(), "polite close must be sent right away")
	info, _ := h.c.GetSurfaceByID(id)
	assert.True(t, info.Closing)

	h.clock.BlockUntil(1)
	h.clock.Advance(2 * time.Second)
	h.launcher.exit(100, cmd, 0, false)
	waitEvents[AppClosed](t, h.rec, 1)
	require.Eventually(t, func() bool { return s.closedClients() == 1 }, waitTimeout, time.Millisecond)

	// The protocol side reacts to the dropped client by destroying the surface
	h.c.HandleSurfaceDestroyed(s)
	destroyed := waitEvents[SurfaceDestroyed](t, h.rec, 1)
	assert.Equal(t, id, destroyed[0].ID)

	h.clock.Advance(3 * time.Second)
	completed := waitEvents[CloseCompleted](t, h.rec, 1)
	assert.Equal(t, CloseCompleted{ID: id, PID: 100, Outcome: ExitedCleanly}, completed[0])
	assert.Empty(t, h.launcher.sentSignals(), "no signal for an app that exited in time")
	assert.Empty(t, eventsOf[CloseEscalated](h.rec))
}

func TestCloseEscalatesOnStubbornApp(t *testing.T) {
	h := newHarness(t)
	_, _, tl, id := h.window(t, 101, "/usr/bin/stubborn")

	h.c.CloseWindow(id)
	require.Equal(t, 1, tl.closeRequested())
	h.clock.BlockUntil(1)

	h.clock.Advance(5*time.Second - time.Millisecond)
	assert.Never(t, func() bool { return signalCount(h)() > 0 }, quiet, time.Millisecond)

	h.clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return signalCount(h)() == 1 }, waitTimeout, time.Millisecond)
	assert.Equal(t, sentSignal{PID: 101, Signal: unix.SIGTERM}, h.launcher.sentSignals()[0])
	escalated := waitEvents[CloseEscalated](t, h.rec, 1)
	assert.Equal(t, CloseEscalated{ID: id, PID: 101, Signal: unix.SIGTERM}, escalated[0])

	h.clock.BlockUntil(1)
	h.clock.Advance(3*time.Second - time.Millisecond)
	assert.Never(t, func() bool { return signalCount(h)() > 1 }, quiet, time.Millisecond)

	h.clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return signalCount(h)() == 2 }, waitTimeout, time.Millisecond)
	assert.Equal(t, sentSignal{PID: 101, Signal: unix.SIGKILL}, h.launcher.sentSignals()[1])

	completed := waitEvents[CloseCompleted](t, h.rec, 1)
	assert.Equal(t, ForceKilled, completed[0].Outcome)
	assert.Len(t, eventsOf[CloseEscalated](h.rec), 2)
}

func TestCloseStopsAfterSIGTERMWorks(t *testing.T) {
	h := newHarness(t)
	cmd, _, _, id := h.window(t, 102, "/usr/bin/app2")

	h.c.CloseWindow(id)
	h.clock.BlockUntil(1)
	h.clock.Advance(5 * time.Second)
	waitEvents[CloseEscalated](t, h.rec, 1)

	h.launcher.exit(102, cmd, -1, true)
	waitEvents[AppClosed](t, h.rec, 1)
	h.clock.BlockUntil(1)
	h.clock.Advance(3 * time.Second)

	completed := waitEvents[CloseCompleted](t, h.rec, 1)
	assert.Equal(t, ExitedCleanly, completed[0].Outcome)
	assert.Len(t, h.launcher.sentSignals(), 1, "SIGKILL must not follow once the app is gone")
}

func TestCloseTwiceSchedulesOnce(t *testing.T) {
	h := newHarness(t)
	_, _, tl, id := h.window(t, 103, "/usr/bin/app3")

	h.c.CloseWindow(id)
	h.c.CloseWindow(id)
	assert.Equal(t, 1, tl.closeRequested())

	h.clock.BlockUntil(1)
	h.clock.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return signalCount(h)() == 1 }, waitTimeout, time.Millisecond)
	assert.Never(t, func() bool { return signalCount(h)() > 1 }, quiet, time.Millisecond)
}

func TestCloseUnknownWindowIsNoop(t *testing.T) {
	h := newHarness(t)
	assert.NotPanics(t, func() { h.c.CloseWindow(42) })
	h.clock.Advance(10 * time.Second)
	assert.Empty(t, h.launcher.sentSignals())
	assert.Empty(t, eventsOf[CloseCompleted](h.rec))
}

func TestCloseWindowWithoutProcess(t *testing.T) {
	h := newHarness(t)
	s := newFakeSurface(0)
	tl := newFakeToplevel("external", "")
	id := h.c.HandleSurfaceCreated(s)
	h.c.BindToplevel(s, tl)

	h.c.CloseWindow(id)
	assert.Equal(t, 1, tl.closeRequested())
	h.clock.Advance(10 * time.Second)
	assert.Empty(t, h.launcher.sentSignals())
}

func TestCloseLegacyDropsClient(t *testing.T) {
	h := newHarness(t)
	h.launch(t, 104, "/usr/bin/oldapp")
	s := newFakeSurface(104)
	id := h.c.HandleSurfaceCreated(s)
	h.c.BindLegacyShell(s, &fakeLegacyShell{title: "old"})

	h.c.CloseWindow(id)
	assert.Equal(t, 1, s.closedClients(), "surfaces without close request lose their client")
}

func TestCloseTimerSurvivesDestroyedSurface(t *testing.T) {
	h := newHarness(t)
	_, s, _, id := h.window(t, 105, "/usr/bin/app5")

	h.c.CloseWindow(id)
	// Surface is gone but the process stays around
	h.c.HandleSurfaceDestroyed(s)
	h.clock.BlockUntil(1)
	h.clock.Advance(5 * time.Second)

	escalated := waitEvents[CloseEscalated](t, h.rec, 1)
	assert.Equal(t, unix.SIGTERM, escalated[0].Signal)
	assert.Equal(t, id, escalated[0].ID)
}

func TestExitedAppLosesItsPID(t *testing.T) {
	h := newHarness(t)
	cmd, s, _, id := h.window(t, 106, "/usr/bin/app6")

	h.launcher.exit(106, cmd, 0, false)
	waitEvents[AppClosed](t, h.rec, 1)
	require.Eventually(t, func() bool { return s.closedClients() == 1 }, waitTimeout, time.Millisecond)

	info, ok := h.c.GetSurfaceByID(id)
	require.True(t, ok, "the surface stays until the protocol side destroys it")
	assert.False(t, info.HasPID)

	// The kernel hands the same pid to the next app
	h.launch(t, 106, "/usr/bin/app7")
	fresh := newFakeSurface(106)
	freshID := h.c.HandleSurfaceCreated(fresh)
	freshInfo, _ := h.c.GetSurfaceByID(freshID)
	assert.True(t, freshInfo.HasPID, "a reused pid must link to the new app's surface")
	assert.Equal(t, 106, freshInfo.PID)

	h.c.CloseWindow(id)
	h.clock.Advance(10 * time.Second)
	assert.Never(t, func() bool { return signalCount(h)() > 0 }, quiet, time.Millisecond)
	assert.Equal(t, 0, fresh.closedClients())
}

func TestCloseTimerIgnoresReusedPID(t *testing.T) {
	h := newHarness(t)
	cmd, _, _, id := h.window(t, 107, "/usr/bin/app8")

	h.c.CloseWindow(id)
	h.clock.BlockUntil(1)
	h.launcher.exit(107, cmd, 0, false)
	waitEvents[AppClosed](t, h.rec, 1)
	h.launch(t, 107, "/usr/bin/app9")

	h.clock.Advance(5 * time.Second)
	completed := waitEvents[CloseCompleted](t, h.rec, 1)
	assert.Equal(t, CloseCompleted{ID: id, PID: 107, Outcome: ExitedCleanly}, completed[0])
	assert.Empty(t, h.launcher.sentSignals(), "the new app behind the pid must not be signalled")
}

func TestCloseEndsWhenSignalFails(t *testing.T) {
	h := newHarness(t)
	_, _, tl, id := h.window(t, 108, "/usr/bin/setuid-app")
	h.launcher.failSignals(unix.EPERM)

	h.c.CloseWindow(id)
	h.clock.BlockUntil(1)
	h.clock.Advance(5 * time.Second)

	completed := waitEvents[CloseCompleted](t, h.rec, 1)
	assert.Equal(t, CloseCompleted{ID: id, PID: 108, Outcome: SignalFailed}, completed[0])
	assert.Empty(t, eventsOf[CloseEscalated](h.rec))

	info, _ := h.c.GetSurfaceByID(id)
	assert.False(t, info.Closing)
	h.c.CloseWindow(id)
	assert.Equal(t, 2, tl.closeRequested(), "the window can be closed again")
}
