package compositor

import (
	"slices"

	"github.com/mstarongithub/marathon-shell/launcher"
	"github.com/sirupsen/logrus"
)

func (c *Compositor) handleLauncherEvent(ev launcher.Event) {
	switch e := ev.(type) {
	case launcher.Started:
		c.mu.Lock()
		if !slices.Contains(c.launched, e.PID) {
			c.launched = append(c.launched, e.PID)
		}
		c.launchIDs[e.PID] = e.ID
		c.emit(AppLaunched{Command: e.Command.Original, PID: e.PID})
		c.mu.Unlock()
		c.metrics.Launched()
	case launcher.Failed:
		c.metrics.ProcessError(e.Kind.String())
		c.publish(ProcessError{
			LaunchID: e.ID,
			Command:  e.Command.Original,
			PID:      e.PID,
			Kind:     e.Kind,
			Err:      e.Err,
		})
	case launcher.Output:
		entry := logrus.WithFields(logrus.Fields{
			"pid":    e.PID,
			"stream": e.Stream,
		})
		if e.Stream == launcher.Stderr {
			entry.Warningln(e.Line)
		} else {
			entry.Debugln(e.Line)
		}
		c.publish(ProcessOutput{Command: e.Command.Original, PID: e.PID, Stream: e.Stream, Line: e.Line})
	case launcher.Exited:
		c.handleProcessExited(e)
	default:
		logrus.WithField("event", ev).Warningln("Unknown launcher event")
	}
}

func (c *Compositor) handleProcessExited(e launcher.Exited) {
	c.mu.Lock()
	// A newer launch may already own the pid if its start was reported first
	if c.launchIDs[e.PID] == e.ID {
		delete(c.launchIDs, e.PID)
		c.launched = slices.DeleteFunc(c.launched, func(pid int) bool { return pid == e.PID })
	}
	c.emit(ProcessExited{Command: e.Command.Original, PID: e.PID, ExitCode: e.ExitCode, Crashed: e.Crashed})
	if e.Crashed {
		c.emit(ProcessError{
			LaunchID: e.ID,
			Command:  e.Command.Original,
			PID:      e.PID,
			Kind:     launcher.Crashed,
		})
		c.metrics.ProcessError(launcher.Crashed.String())
	}

	if e.Command.ActivationHelper {
		c.mu.Unlock()
		// The window belongs to whatever process the helper woke up
		logrus.WithFields(logrus.Fields{
			"pid":     e.PID,
			"command": e.Command.Original,
		}).Infoln("Activation helper finished, window lifetime is up to the activated app")
		c.metrics.ProcessExited("activation-helper")
		return
	}

	c.emit(AppClosed{PID: e.PID})
	var handle Surface
	if id, ok := c.byPID[e.PID]; ok && c.surfaces[id].launchID == e.ID {
		rec := c.surfaces[id]
		handle = rec.handle
		// The pid is free for the kernel to hand out again
		delete(c.byPID, e.PID)
		rec.pid, rec.hasPID, rec.launchID = 0, false, ""
	}
	c.mu.Unlock()

	kind := "normal"
	if e.Crashed {
		kind = "crashed"
	}
	c.metrics.ProcessExited(kind)

	if handle != nil {
		logrus.WithField("pid", e.PID).Debugln("Dropping client of exited app")
		handle.CloseClient()
	}
}
