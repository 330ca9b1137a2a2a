package console

import (
	"fmt"

	"github.com/mstarongithub/marathon-shell/compositor"
)

// Notifier receives printable lines, *repl.Repl is one
type Notifier interface {
	Notify(format string, args ...any)
}

// Watch prints compositor events until the channel closes
func Watch(events <-chan compositor.Event, out Notifier) {
	for ev := range events {
		if line, ok := Describe(ev); ok {
			out.Notify("%s", line)
		}
	}
}

// Describe turns an event into a console line. False for events not worth printing
func Describe(ev compositor.Event) (string, bool) {
	switch e := ev.(type) {
	case compositor.SurfaceCreated:
		title := ""
		if e.Shell != nil {
			title = e.Shell.Title()
		}
		return fmt.Sprintf("* window %d opened: %q", e.ID, title), true
	case compositor.SurfaceDestroyed:
		if !e.Announced {
			return "", false
		}
		return fmt.Sprintf("* window %d closed", e.ID), true
	case compositor.MetadataChanged:
		return fmt.Sprintf("* window %d is now %q (%s)", e.ID, e.Title, e.AppID), true
	case compositor.AppLaunched:
		return fmt.Sprintf("* started %s as pid %d", e.Command, e.PID), true
	case compositor.AppClosed:
		return fmt.Sprintf("* pid %d exited", e.PID), true
	case compositor.ProcessError:
		if e.Err != nil {
			return fmt.Sprintf("! %s (pid %d) %s: %s", e.Command, e.PID, e.Kind, e.Err), true
		}
		return fmt.Sprintf("! %s (pid %d) %s", e.Command, e.PID, e.Kind), true
	case compositor.CloseEscalated:
		return fmt.Sprintf("! window %d ignored close, sent %s to pid %d", e.ID, e.Signal, e.PID), true
	case compositor.CloseCompleted:
		return fmt.Sprintf("* window %d close finished: %s", e.ID, e.Outcome), true
	default:
		return "", false
	}
}
