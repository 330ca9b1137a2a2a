package compositor

import (
	"errors"
	"syscall"

	"github.com/mstarongithub/marathon-shell/launcher"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// CloseWindow asks the window with the given id to close. If its process is
// still around after the grace period it gets SIGTERM, then SIGKILL.
// Unknown ids and windows already closing are ignored
func (c *Compositor) CloseWindow(id int) {
	c.mu.Lock()
	rec, ok := c.surfaces[id]
	if !ok {
		c.mu.Unlock()
		logrus.WithField("id", id).Debugln("Close requested for unknown window")
		return
	}
	if rec.closing {
		c.mu.Unlock()
		logrus.WithField("id", id).Debugln("Window is already closing")
		return
	}
	rec.closing = true
	toplevel, handle := rec.toplevel, rec.handle
	pid, hasPID, launchID := rec.pid, rec.hasPID, rec.launchID
	c.mu.Unlock()

	c.metrics.CloseRequested()
	logrus.WithFields(logrus.Fields{
		"id":  id,
		"pid": pid,
	}).Infoln("Closing window")

	// Outside of mu, a client may well destroy its surface right away
	if toplevel != nil {
		toplevel.SendClose()
	} else {
		handle.CloseClient()
	}

	if !hasPID {
		logrus.WithField("id", id).Debugln("Window has no known process, not watching it exit")
		return
	}
	if !c.running(pid, launchID) {
		logrus.WithField("pid", pid).Debugln("No launched process for window, not watching it exit")
		return
	}
	c.clock.AfterFunc(c.gracePeriod, func() { c.terminate(id, pid, launchID) })
}

// The process launched as launchID is still running under pid
func (c *Compositor) running(pid int, launchID string) bool {
	return c.currentLaunch(pid, launchID) && c.launcher.Alive(pid)
}

// Grace period is over
func (c *Compositor) terminate(id, pid int, launchID string) {
	if !c.running(pid, launchID) {
		c.finishClose(id, pid, ExitedCleanly)
		return
	}
	logrus.WithFields(logrus.Fields{
		"id":  id,
		"pid": pid,
	}).Warningln("App ignored close request, sending SIGTERM")
	if !c.escalate(id, pid, unix.SIGTERM) {
		return
	}
	c.clock.AfterFunc(c.terminatePeriod, func() { c.kill(id, pid, launchID) })
}

func (c *Compositor) kill(id, pid int, launchID string) {
	if !c.running(pid, launchID) {
		c.finishClose(id, pid, ExitedCleanly)
		return
	}
	logrus.WithFields(logrus.Fields{
		"id":  id,
		"pid": pid,
	}).Warningln("App survived SIGTERM, killing it")
	if !c.escalate(id, pid, unix.SIGKILL) {
		return
	}
	c.finishClose(id, pid, ForceKilled)
}

// Sends sig and reports it. False if the close sequence is over
func (c *Compositor) escalate(id, pid int, sig syscall.Signal) bool {
	err := c.launcher.Signal(pid, sig)
	switch {
	case errors.Is(err, launcher.ErrProcessGone):
		c.finishClose(id, pid, ExitedCleanly)
		return false
	case err != nil:
		logrus.WithError(err).WithFields(logrus.Fields{
			"pid":    pid,
			"signal": sig,
		}).Errorln("Failed to signal app")
		// The window may be closed again
		c.mu.Lock()
		if rec, ok := c.surfaces[id]; ok {
			rec.closing = false
		}
		c.mu.Unlock()
		c.finishClose(id, pid, SignalFailed)
		return false
	}
	c.metrics.Escalated(unix.SignalName(sig))
	c.publish(CloseEscalated{ID: id, PID: pid, Signal: sig})
	return true
}

func (c *Compositor) finishClose(id, pid int, outcome CloseOutcome) {
	logrus.WithFields(logrus.Fields{
		"id":      id,
		"pid":     pid,
		"outcome": outcome,
	}).Infoln("Window close finished")
	c.metrics.CloseFinished(outcome.String())
	c.publish(CloseCompleted{ID: id, PID: pid, Outcome: outcome})
}
