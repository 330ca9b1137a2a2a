package compositor

import (
	"syscall"

	"github.com/mstarongithub/marathon-shell/launcher"
)

// Event is anything the compositor tells the shell ui about
type Event interface {
	event()
}

// The list of surfaces changed, sent for every add and remove
type SurfacesChanged struct{}

// A surface got its shell role and is now a window the ui should show
type SurfaceCreated struct {
	Surface Surface
	ID      int
	Shell   ShellSurface
}

// A surface is gone. Announced is false if SurfaceCreated was never sent for it
type SurfaceDestroyed struct {
	Surface   Surface
	ID        int
	Announced bool
}

type MetadataChanged struct {
	ID    int
	Title string
	AppID string
}

type AppLaunched struct {
	Command string
	PID     int
}

// A launched app process ended. Not sent for activation helpers
type AppClosed struct {
	PID int
}

type ProcessError struct {
	LaunchID string
	Command  string
	// 0 if the process never started
	PID  int
	Kind launcher.ErrorKind
	Err  error
}

type ProcessOutput struct {
	Command string
	PID     int
	Stream  launcher.Stream
	Line    string
}

type ProcessExited struct {
	Command  string
	PID      int
	ExitCode int
	Crashed  bool
}

// A window ignored its close request and a signal was sent to its process
type CloseEscalated struct {
	ID     int
	PID    int
	Signal syscall.Signal
}

type CloseOutcome int

const (
	ExitedCleanly = CloseOutcome(iota)
	ForceKilled
	// Signalling the process failed, it may still be running
	SignalFailed
)

func (o CloseOutcome) String() string {
	switch o {
	case ForceKilled:
		return "force-killed"
	case SignalFailed:
		return "signal-failed"
	default:
		return "exited"
	}
}

// The close sequence of a window with a known process ended
type CloseCompleted struct {
	ID      int
	PID     int
	Outcome CloseOutcome
}

func (SurfacesChanged) event()  {}
func (SurfaceCreated) event()   {}
func (SurfaceDestroyed) event() {}
func (MetadataChanged) event()  {}
func (AppLaunched) event()      {}
func (AppClosed) event()        {}
func (ProcessError) event()     {}
func (ProcessOutput) event()    {}
func (ProcessExited) event()    {}
func (CloseEscalated) event()   {}
func (CloseCompleted) event()   {}
