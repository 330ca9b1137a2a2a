package launcher

import "errors"

var (
	ErrEmptyCommand = errors.New("empty command")
	ErrShutdown     = errors.New("launcher has been shut down")
	ErrProcessGone  = errors.New("process is not running")
)

// Why a process failed, mirrors what a caller can act upon
type ErrorKind int

const (
	// Executable missing, permission denied, ...
	FailedToStart = ErrorKind(iota)
	// Terminated by a signal it did not handle
	Crashed
	// Did not exit in time and had to be killed
	TimedOut
	// Reading its output failed
	ReadError
)

func (k ErrorKind) String() string {
	switch k {
	case FailedToStart:
		return "failed to start"
	case Crashed:
		return "crashed"
	case TimedOut:
		return "timed out"
	case ReadError:
		return "read error"
	default:
		return "unknown error"
	}
}

type Stream int

const (
	Stdout = Stream(iota)
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Event is anything the launcher reports about its processes.
// One of Started, Failed, Output or Exited
type Event interface {
	// ID of the launch the event belongs to
	Launch() string
}

type Started struct {
	ID      string
	Command Command
	PID     int
}

type Failed struct {
	ID      string
	Command Command
	// 0 if the process never started
	PID  int
	Kind ErrorKind
	Err  error
}

type Output struct {
	ID      string
	Command Command
	PID     int
	Stream  Stream
	Line    string
}

type Exited struct {
	ID       string
	Command  Command
	PID      int
	ExitCode int
	Crashed  bool
}

func (e Started) Launch() string { return e.ID }
func (e Failed) Launch() string  { return e.ID }
func (e Output) Launch() string  { return e.ID }
func (e Exited) Launch() string  { return e.ID }
