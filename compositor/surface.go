// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package compositor

// Surface is the protocol-level handle of a client surface.
// Implementations are used as map keys and must be comparable, pointer types work.
// None of the methods may call back into the Compositor synchronously
type Surface interface {
	// PID of the client owning the surface, false if it can't be resolved
	ClientPID() (int, bool)
	// Makes the owning client let go of the surface. Called after its process exited
	// and for surfaces without a close request. Implementations may only ask the
	// client to close it, so the surface can outlive this call
	CloseClient()
}

// ShellSurface is the role object carrying window metadata
type ShellSurface interface {
	Title() string
	// Registers fn for title changes and returns a func removing it again.
	// fn must not be invoked from inside OnTitleChanged itself
	OnTitleChanged(fn func(title string)) (unsubscribe func())
}

// Toplevel is a modern (xdg) shell surface that also supports polite closing
type Toplevel interface {
	ShellSurface
	AppID() string
	OnAppIDChanged(fn func(appID string)) (unsubscribe func())
	// Asks the client to close the window. It may ignore this
	SendClose()
}

// LegacyShellSurface is a wl_shell surface. It has a title but no app id and no close request
type LegacyShellSurface interface {
	ShellSurface
}

type Binding int

const (
	BindingNone = Binding(iota)
	BindingToplevel
	BindingLegacy
)

func (b Binding) String() string {
	switch b {
	case BindingToplevel:
		return "toplevel"
	case BindingLegacy:
		return "legacy"
	default:
		return "none"
	}
}

// Registry record of one surface. Only touched with the compositor lock held
type managedSurface struct {
	id     int
	handle Surface
	pid    int
	hasPID bool
	// Launch the linked pid belonged to when it was linked, empty for foreign clients
	launchID string

	binding  Binding
	shell    ShellSurface
	toplevel Toplevel
	title    string
	appID    string

	// SurfaceCreated has been emitted
	announced bool
	// A close sequence is running
	closing bool

	unsubscribe []func()
}

func (m *managedSurface) dropSubscriptions() {
	for _, fn := range m.unsubscribe {
		if fn != nil {
			fn()
		}
	}
	m.unsubscribe = nil
}

func (m *managedSurface) info() SurfaceInfo {
	return SurfaceInfo{
		ID:        m.id,
		Handle:    m.handle,
		Shell:     m.shell,
		PID:       m.pid,
		HasPID:    m.hasPID,
		Binding:   m.binding,
		Title:     m.title,
		AppID:     m.appID,
		Announced: m.announced,
		Closing:   m.closing,
	}
}

// SurfaceInfo is a snapshot of a tracked surface
type SurfaceInfo struct {
	ID     int
	Handle Surface
	// nil until bound
	Shell ShellSurface
	// Only meaningful if HasPID
	PID       int
	HasPID    bool
	Binding   Binding
	Title     string
	AppID     string
	Announced bool
	Closing   bool
}
