package launcher

import "sync"

type State int

const (
	StateStarting = State(iota)
	StateRunning
	// A termination signal has been sent
	StateExiting
	StateExited
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExiting:
		return "exiting"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// A launched client process
type Process struct {
	LaunchID string
	Command  Command
	Identity Identity

	pid   int
	state State
	mu    sync.Mutex
}

func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Process) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Snapshot of a live process
type Info struct {
	LaunchID string
	PID      int
	Command  Command
	State    State
}

func (p *Process) info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Info{
		LaunchID: p.LaunchID,
		PID:      p.pid,
		Command:  p.Command,
		State:    p.state,
	}
}
