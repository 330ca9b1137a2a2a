// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package launcher

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	EnvWaylandDisplay = "WAYLAND_DISPLAY"
	EnvWaylandSocket  = "WAYLAND_SOCKET"
	EnvX11Display     = "DISPLAY"
	EnvRuntimeDir     = "XDG_RUNTIME_DIR"
	// Per launch identity. GApplication derives its bus name from the desktop file,
	// a fresh one per launch keeps it from reusing a host side or stale instance
	EnvDesktopFile    = "GIO_LAUNCHED_DESKTOP_FILE"
	EnvDesktopFilePID = "GIO_LAUNCHED_DESKTOP_FILE_PID"
	EnvAppID          = "MARATHON_APP_ID"
)

// Variables that would let a client attach to the host's display instead of ours
var hostDisplayVars = []string{EnvWaylandDisplay, EnvWaylandSocket, EnvX11Display}

// Toolkit backend selection, always forced to wayland
var backendVars = []string{"QT_QPA_PLATFORM", "GDK_BACKEND", "CLUTTER_BACKEND", "SDL_VIDEODRIVER"}

type EnvOptions struct {
	SocketName      string
	RuntimeDir      string
	QtControlsStyle string
	// PID announced as owner of the desktop file identity
	CompositorPID int
}

// Identity generated once per launch
type Identity struct {
	AppID       string
	DesktopFile string
}

// NewIdentity derives a launch identity from the launch time and the resolved command.
// seq keeps two launches of the same command within one millisecond apart
func NewIdentity(now time.Time, resolved string, seq uint64, desktopDir string) Identity {
	ms := now.UnixMilli()
	hash := uint32(xxhash.Sum64String(resolved))
	return Identity{
		AppID:       fmt.Sprintf("marathon.app.%d.%d.%d", ms, hash, seq),
		DesktopFile: filepath.Join(desktopDir, fmt.Sprintf("app-%d-%d-%d.desktop", ms, hash, seq)),
	}
}

// BuildEnv builds the environment of a client process from base (usually os.Environ()).
// The result is sorted by key
func BuildEnv(base []string, opts EnvOptions, id Identity) []string {
	env := make(map[string]string, len(base)+16)
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	for _, k := range hostDisplayVars {
		delete(env, k)
	}

	runtimeDir := opts.RuntimeDir
	if runtimeDir == "" {
		runtimeDir = "/tmp"
	}
	env[EnvWaylandDisplay] = opts.SocketName
	env[EnvRuntimeDir] = runtimeDir
	for _, k := range backendVars {
		env[k] = "wayland"
	}

	env[EnvDesktopFile] = id.DesktopFile
	env[EnvDesktopFilePID] = strconv.Itoa(opts.CompositorPID)
	env[EnvAppID] = id.AppID

	// Adaptive/mobile layouts for libadwaita, phosh aware and Qt Quick apps.
	// No GDK_SCALE here, scaling reaches clients through wl_output
	env["LIBADWAITA_MOBILE"] = "1"
	env["GTK_USE_PORTAL"] = "0"
	env["PURISM_FORM_FACTOR"] = "phone"
	env["GTK_CSD"] = "1"
	env["QT_QUICK_CONTROLS_MOBILE"] = "1"
	if opts.QtControlsStyle != "" {
		env["QT_QUICK_CONTROLS_STYLE"] = opts.QtControlsStyle
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// LookupEnv returns the value of key in a KEY=VALUE list
func LookupEnv(env []string, key string) (string, bool) {
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}
