// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package console implements the text commands for driving the compositor
// from a terminal, standing in for the task switcher of the shell ui
package console

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mstarongithub/marathon-shell/common/ipc"
	"github.com/mstarongithub/marathon-shell/compositor"
	"github.com/mstarongithub/marathon-shell/repl"
	"github.com/mstarongithub/marathon-shell/util"
	"github.com/sirupsen/logrus"
	"gitlab.com/mstarongitlab/goutils/sliceutils"
)

// Target is the part of the compositor the console drives
type Target interface {
	LaunchApp(command string) (string, bool)
	CloseWindow(id int)
	Surfaces() []compositor.SurfaceInfo
	GetSurfaceByID(id int) (compositor.SurfaceInfo, bool)
	UnlinkedLaunches() []int
}

type Console struct {
	target Target
	// Called by `quit` before the repl ends
	quit func()
	// Answers `inspect <target> <mod>` for protocol internals. May be nil
	inspect func(target, mod string) string
}

func New(target Target, quit func(), inspect func(target, mod string) string) *Console {
	return &Console{target: target, quit: quit, inspect: inspect}
}

const helpText = `Commands:
	launch <command>  Launch an app. FLATPAK: and SNAP: prefixes are understood
	close <id>        Ask a window to close, killing its app if it doesn't
	list [json]       List all windows
	surface <id>      Show one window
	find <text>       List windows whose title or app id contain text
	inspect <target>  Show compositor internals
	quit              Stop the compositor`

// Handle is a repl.MessageHandler
func (c *Console) Handle(input string, _ *repl.Repl) (string, error) {
	var cmd, args string
	util.Unpack(strings.SplitN(input, " ", 2), &cmd, &args)
	args = strings.TrimSpace(args)

	switch cmd {
	case "launch":
		if args == "" {
			return "Usage: launch <command>", nil
		}
		id, ok := c.target.LaunchApp(args)
		if !ok {
			return "Not launching " + args, nil
		}
		return fmt.Sprintf("Launching %s (%s)", args, id), nil
	case "close":
		id, err := strconv.Atoi(args)
		if err != nil {
			return "Usage: close <id>", nil
		}
		if _, ok := c.target.GetSurfaceByID(id); !ok {
			return fmt.Sprintf("No window %d", id), nil
		}
		c.target.CloseWindow(id)
		return fmt.Sprintf("Closing window %d", id), nil
	case "list":
		if args == "json" {
			return c.listJSON()
		}
		return formatList(c.target.Surfaces()), nil
	case "surface":
		id, err := strconv.Atoi(args)
		if err != nil {
			return "Usage: surface <id>", nil
		}
		info, ok := c.target.GetSurfaceByID(id)
		if !ok {
			return fmt.Sprintf("No window %d", id), nil
		}
		return formatDetails(info), nil
	case "find":
		if args == "" {
			return "Usage: find <text>", nil
		}
		return formatList(Find(c.target.Surfaces(), args)), nil
	case "inspect":
		var target, mod string
		util.Unpack(strings.SplitN(args, " ", 2), &target, &mod)
		logrus.WithFields(logrus.Fields{
			"target": target,
			"mod":    mod,
		}).Debugln("Parsed inspect command")
		if target == "pending" {
			return fmt.Sprintf("Launched apps without window: %v", c.target.UnlinkedLaunches()), nil
		}
		if c.inspect == nil {
			return "Nothing to inspect", nil
		}
		return c.inspect(target, mod), nil
	case "help":
		return helpText, nil
	case "quit":
		if c.quit != nil {
			c.quit()
		}
		return "Quitting", repl.ErrStop
	default:
		return "Unknown command, try help", nil
	}
}

// Find returns the windows whose title or app id contain text, ignoring case
func Find(infos []compositor.SurfaceInfo, text string) []compositor.SurfaceInfo {
	text = strings.ToLower(text)
	return sliceutils.Filter(infos, func(info compositor.SurfaceInfo) bool {
		return strings.Contains(strings.ToLower(info.Title), text) ||
			strings.Contains(strings.ToLower(info.AppID), text)
	})
}

// ToIPC converts a surface snapshot into its printable form
func ToIPC(info compositor.SurfaceInfo) ipc.Window {
	w := ipc.Window{
		ID:        info.ID,
		Title:     info.Title,
		AppID:     info.AppID,
		Role:      info.Binding.String(),
		Announced: info.Announced,
		Closing:   info.Closing,
	}
	if info.HasPID {
		w.PID = info.PID
	}
	return w
}

func (c *Console) listJSON() (string, error) {
	list := ipc.WindowList{
		Windows:     []ipc.Window{},
		PendingPIDs: c.target.UnlinkedLaunches(),
	}
	for _, info := range c.target.Surfaces() {
		list.Windows = append(list.Windows, ToIPC(info))
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to encode window list: %w", err)
	}
	return string(data), nil
}

func formatList(infos []compositor.SurfaceInfo) string {
	if len(infos) == 0 {
		return "No windows"
	}
	var b strings.Builder
	for i, info := range infos {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d: %q", info.ID, info.Title)
		if info.AppID != "" {
			fmt.Fprintf(&b, " (%s)", info.AppID)
		}
		if info.Closing {
			b.WriteString(" [closing]")
		}
	}
	return b.String()
}

func formatDetails(info compositor.SurfaceInfo) string {
	pid := "unknown"
	if info.HasPID {
		pid = strconv.Itoa(info.PID)
	}
	return fmt.Sprintf("Window %d\n\ttitle: %q\n\tapp id: %q\n\tpid: %s\n\trole: %s\n\tannounced: %t\n\tclosing: %t",
		info.ID, info.Title, info.AppID, pid, info.Binding, info.Announced, info.Closing)
}
