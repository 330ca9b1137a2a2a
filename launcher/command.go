// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package launcher

import (
	"strings"
)

type Kind int

const (
	KindShell = Kind(iota)
	KindFlatpak
	KindSnap
)

const (
	flatpakPrefix = "FLATPAK:"
	snapPrefix    = "SNAP:"
	// Exits right after handing the window over to another (possibly pre-existing) process
	activationHelper = "gapplication launch"
)

func (k Kind) String() string {
	switch k {
	case KindFlatpak:
		return "flatpak"
	case KindSnap:
		return "snap"
	default:
		return "shell"
	}
}

// A command as requested by the shell ui and as it will actually be run
type Command struct {
	// Exactly what was passed to Launch, prefix included
	Original string
	// What gets handed to `sh -c`
	Resolved string
	Kind     Kind
	// The launched process only delegates to an untracked one and exits immediately.
	// Its exit says nothing about the window's lifetime
	ActivationHelper bool
}

// ParseCommand resolves a raw launch command into what will be executed.
// Flatpak launches get the permissions needed to reach the given wayland socket
func ParseCommand(raw, socketName string) (Command, error) {
	cmd := Command{Original: raw, Kind: KindShell}
	resolved := raw

	if rest, ok := strings.CutPrefix(raw, flatpakPrefix); ok {
		cmd.Kind = KindFlatpak
		resolved = strings.TrimSpace(rest)
		if resolved != "" {
			resolved += " --socket=wayland" +
				" --env=WAYLAND_DISPLAY=" + socketName +
				" --filesystem=xdg-run/" + socketName +
				" --unset-env=DBUS_SESSION_BUS_ADDRESS"
		}
	} else if rest, ok := strings.CutPrefix(raw, snapPrefix); ok {
		// Snaps need their wayland interface connected, nothing to rewrite here
		cmd.Kind = KindSnap
		resolved = strings.TrimSpace(rest)
	}

	resolved = strings.TrimSpace(resolved)
	if resolved == "" {
		return Command{}, ErrEmptyCommand
	}
	cmd.Resolved = resolved
	cmd.ActivationHelper = strings.Contains(resolved, activationHelper)
	return cmd, nil
}
