package main

import (
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/mstarongithub/marathon-shell/compositor"
	"github.com/mstarongithub/marathon-shell/launcher"
	"github.com/sirupsen/logrus"
	"github.com/swaywm/go-wlroots/wlroots"
	"github.com/swaywm/go-wlroots/xkb"
)

type Server struct {
	display     wlroots.Display
	backend     wlroots.Backend
	renderer    wlroots.Renderer
	allocator   wlroots.Allocator
	scene       wlroots.Scene
	sceneLayout wlroots.SceneOutputLayout

	xdgShell wlroots.XDGShell
	// Mapped windows, focused one first
	windows []*wlrToplevel
	// Every toplevel xdg surface handed to the compositor core
	surfaces map[wlroots.XDGSurface]*wlrSurface

	cursor    wlroots.Cursor
	cursorMgr wlroots.XCursorManager

	seat      wlroots.Seat
	keyboards []wlroots.InputDevice

	outputLayout wlroots.OutputLayout
	outputs      []*wlroots.Output
	// Size new windows get, taken from the first output
	screenWidth, screenHeight int

	// Name clients connect to and the cleanup of its link
	socket     string
	unlinkSock func()

	// nil in tool mode
	comp *compositor.Compositor

	// Guards windows, keyboards, outputs and the screen size against the console.
	// Only the event loop writes them, so it reads without the lock
	stateLock sync.Mutex

	// wlroots may only be called from the event loop. Work from other
	// goroutines is queued here and run on the next frame or input event
	pendingLock sync.Mutex
	pending     []func()
}

// Run fn on the event loop
func (server *Server) queue(fn func()) {
	server.pendingLock.Lock()
	server.pending = append(server.pending, fn)
	server.pendingLock.Unlock()
}

func (server *Server) runPending() {
	server.pendingLock.Lock()
	work := server.pending
	server.pending = nil
	server.pendingLock.Unlock()
	for _, fn := range work {
		fn()
	}
}

func (server *Server) findWindow(xdgSurface wlroots.XDGSurface) int {
	return slices.IndexFunc(server.windows, func(w *wlrToplevel) bool {
		return w.xdg == xdgSurface
	})
}

func (server *Server) focusWindow(w *wlrToplevel) {
	if w == nil {
		return
	}
	surface := w.xdg.Surface()
	prevSurface := server.seat.KeyboardState().FocusedSurface()
	if prevSurface == surface {
		return
	}
	if !prevSurface.Nil() {
		if prevTopLevel, err := prevSurface.XDGTopLevel(); err == nil {
			prevTopLevel.SetActivated(false)
		}
	}

	w.xdg.SceneTree().Node().RaiseToTop()
	if i := server.findWindow(w.xdg); i > 0 {
		server.stateLock.Lock()
		server.windows = append(server.windows[:i], server.windows[i+1:]...)
		server.windows = append([]*wlrToplevel{w}, server.windows...)
		server.stateLock.Unlock()
	}
	w.toplevel.SetActivated(true)
	server.seat.NotifyKeyboardEnter(surface, server.seat.Keyboard())
	logrus.WithField("id", w.surface.id).Debugln("Focused window")
}

func (server *Server) focused() *wlrToplevel {
	if len(server.windows) == 0 {
		return nil
	}
	return server.windows[0]
}

func (server *Server) handleKey(keyboard wlroots.Keyboard, time uint32, keyCode uint32, updateState bool, state wlroots.KeyState) {
	server.runPending()
	// libinput keycodes are offset by 8 from xkb ones
	syms := keyboard.XKBState().Syms(xkb.KeyCode(keyCode + 8))

	handled := false
	modifiers := keyboard.Modifiers()
	if (modifiers&wlroots.KeyboardModifierAlt != 0) && state == wlroots.KeyStatePressed {
		for _, sym := range syms {
			handled = server.handleKeyBinding(sym)
		}
	}

	if !handled {
		server.seat.SetKeyboard(keyboard.Base())
		server.seat.NotifyKeyboardKey(time, keyCode, state)
	}
}

func (server *Server) handleNewKeyboard(dev wlroots.InputDevice) {
	keyboard := dev.Keyboard()

	context := xkb.NewContext(xkb.KeySymFlagNoFlags)
	keymap := context.KeyMap()
	keyboard.SetKeymap(keymap)
	keymap.Destroy()
	context.Destroy()
	keyboard.SetRepeatInfo(25, 600)

	keyboard.OnModifiers(func(keyboard wlroots.Keyboard) {
		server.seat.SetKeyboard(dev)
		server.seat.NotifyKeyboardModifiers(keyboard)
	})
	keyboard.OnKey(server.handleKey)

	server.seat.SetKeyboard(dev)
	server.stateLock.Lock()
	server.keyboards = append(server.keyboards, dev)
	server.stateLock.Unlock()
}

func (server *Server) handleNewInput(dev wlroots.InputDevice) {
	switch dev.Type() {
	case wlroots.InputDeviceTypePointer:
		server.cursor.AttachInputDevice(dev)
	case wlroots.InputDeviceTypeKeyboard:
		server.handleNewKeyboard(dev)
	}

	caps := wlroots.SeatCapabilityPointer
	if len(server.keyboards) > 0 {
		caps |= wlroots.SeatCapabilityKeyboard
	}
	server.seat.SetCapabilities(caps)
}

// Alt is held down
func (server *Server) handleKeyBinding(sym xkb.KeySym) bool {
	switch sym {
	case xkb.KeySymEscape:
		server.display.Terminate()
	case xkb.KeySymF1:
		// Switch to the window used before the current one
		if len(server.windows) < 2 {
			break
		}
		server.focusWindow(server.windows[1])
	case xkb.KeySymF4:
		if w := server.focused(); w != nil && server.comp != nil {
			server.comp.CloseWindow(w.surface.id)
		}
	default:
		return false
	}
	return true
}

func (server *Server) surfaceAt(lx float64, ly float64) (*wlroots.Surface, float64, float64) {
	node, sx, sy := server.scene.Tree().Node().At(lx, ly)
	if node.Nil() || node.Type() != wlroots.SceneNodeBuffer {
		return nil, 0, 0
	}
	sceneSurface := node.SceneBuffer().SceneSurface()
	if sceneSurface.Nil() {
		return nil, 0, 0
	}
	surface := sceneSurface.Surface()
	return &surface, sx, sy
}

func (server *Server) handleNewFrame(output wlroots.Output) {
	server.runPending()
	// Clients get no event for title changes, so look at every frame
	for _, w := range server.windows {
		w.refresh()
	}

	sOut, err := server.scene.SceneOutput(output)
	if err != nil {
		return
	}
	sOut.Commit()
	sOut.SendFrameDone(time.Now())
}

func (server *Server) handleOutputRequestState(output wlroots.Output, state wlroots.OutputState) {
	logrus.WithField("output", output.Name()).Debugln("New state request for output")
	output.CommitState(state)
}

func (server *Server) handleNewOutput(output wlroots.Output) {
	logrus.WithField("name", output.Name()).Infoln("New output")
	server.stateLock.Lock()
	server.outputs = append(server.outputs, &output)
	server.stateLock.Unlock()

	output.InitRender(server.allocator, server.renderer)

	oState := wlroots.NewOutputState()
	oState.StateInit()
	oState.StateSetEnabled(true)
	mode, err := output.PrefferedMode()
	if err == nil {
		oState.SetMode(mode)
		if server.screenWidth == 0 {
			server.stateLock.Lock()
			server.screenWidth, server.screenHeight = int(mode.Width()), int(mode.Height())
			server.stateLock.Unlock()
		}
	}
	output.CommitState(oState)
	oState.Finish()

	output.OnFrame(server.handleNewFrame)
	output.OnRequestState(server.handleOutputRequestState)
	output.OnDestroy(func(output wlroots.Output) {
		logrus.WithField("name", output.Name()).Infoln("Output gone")
	})

	lOutput := server.outputLayout.AddOutputAuto(output)
	sceneOutput := server.scene.NewOutput(output)
	server.sceneLayout.AddOutput(lOutput, sceneOutput)

	if err = output.SetTitle(fmt.Sprintf("marathon - %s", output.Name())); err != nil {
		logrus.WithError(err).Debugln("Output can't have a title")
	}
}

func (server *Server) handleCursorMotion(dev wlroots.InputDevice, time uint32, dx float64, dy float64) {
	server.cursor.Move(dev, dx, dy)
	server.processCursorMotion(time)
}

func (server *Server) handleCursorMotionAbsolute(dev wlroots.InputDevice, time uint32, x float64, y float64) {
	server.cursor.WarpAbsolute(dev, x, y)
	server.processCursorMotion(time)
}

func (server *Server) processCursorMotion(time uint32) {
	server.runPending()
	surface, sx, sy := server.surfaceAt(server.cursor.X(), server.cursor.Y())
	if surface == nil {
		server.cursor.SetXCursor(server.cursorMgr, "default")
		server.seat.ClearPointerFocus()
		return
	}
	server.seat.NotifyPointerEnter(*surface, sx, sy)
	server.seat.NotifyPointerMotion(time, sx, sy)
}

func (server *Server) handleSetCursorRequest(client wlroots.SeatClient, surface wlroots.Surface, _ uint32, hotspotX int32, hotspotY int32) {
	if server.seat.PointerState().FocusedClient() == client {
		server.cursor.SetSurface(surface, hotspotX, hotspotY)
	}
}

func (server *Server) handleCursorButton(_ wlroots.InputDevice, time uint32, button uint32, state wlroots.ButtonState) {
	server.seat.NotifyPointerButton(time, button, state)
	if state == wlroots.ButtonStateReleased {
		return
	}
	surface, _, _ := server.surfaceAt(server.cursor.X(), server.cursor.Y())
	if surface == nil {
		return
	}
	for _, w := range server.windows {
		if w.xdg.Surface() == *surface {
			server.focusWindow(w)
			return
		}
	}
}

func (server *Server) handleCursorAxis(_ wlroots.InputDevice, time uint32, source wlroots.AxisSource, orientation wlroots.AxisOrientation, delta float64, deltaDiscrete int32) {
	server.seat.NotifyPointerAxis(time, orientation, delta, deltaDiscrete, source)
}

func (server *Server) handleCursorFrame() {
	server.seat.NotifyPointerFrame()
}

func (server *Server) handleNewXDGSurface(xdgSurface wlroots.XDGSurface) {
	if xdgSurface.Role() == wlroots.XDGSurfaceRolePopup {
		parent := xdgSurface.Popup().Parent()
		if parent.Nil() {
			logrus.Warningln("Popup without parent, ignoring it")
			return
		}
		xdgSurface.SetData(parent.XDGSurface().SceneTree().NewXDGSurface(xdgSurface))
		return
	}
	if xdgSurface.Role() != wlroots.XDGSurfaceRoleTopLevel {
		logrus.WithField("role", xdgSurface.Role()).Warningln("Ignoring xdg surface without a known role")
		return
	}
	xdgSurface.SetData(server.scene.Tree().NewXDGSurface(xdgSurface.TopLevel().Base()))

	if server.comp == nil {
		return
	}

	surface := &wlrSurface{server: server, xdg: xdgSurface}
	// go-wlroots has no access to client credentials. Only link a pid when a single
	// launched app is still waiting for its window, anything else is a guess that
	// could end with signals for the wrong app
	if pid, ok := server.comp.SoleUnlinkedLaunch(); ok {
		surface.pid, surface.hasPID = pid, true
	} else if pending := server.comp.UnlinkedLaunches(); len(pending) > 1 {
		logrus.WithField("pending", pending).Debugln("Several apps wait for a window, new surface stays without pid")
	}
	surface.id = server.comp.HandleSurfaceCreated(surface)
	server.surfaces[xdgSurface] = surface

	xdgSurface.OnMap(server.handleMapXDGToplevel)
	xdgSurface.OnUnmap(server.handleUnmapXDGToplevel)
	xdgSurface.OnDestroy(server.handleDestroyXDGToplevel)
}

func (server *Server) handleMapXDGToplevel(xdgSurface wlroots.XDGSurface) {
	surface, ok := server.surfaces[xdgSurface]
	if !ok {
		return
	}
	w := surface.window
	if w == nil {
		w = newWlrToplevel(surface)
		surface.window = w
	}
	// Every app is fullscreen on a phone
	if server.screenWidth > 0 {
		xdgSurface.TopLevelSetSize(uint32(server.screenWidth), uint32(server.screenHeight))
	}
	server.stateLock.Lock()
	server.windows = append([]*wlrToplevel{w}, server.windows...)
	server.stateLock.Unlock()
	server.comp.BindToplevel(surface, w)
	server.focusWindow(w)
}

func (server *Server) handleUnmapXDGToplevel(xdgSurface wlroots.XDGSurface) {
	if i := server.findWindow(xdgSurface); i >= 0 {
		server.stateLock.Lock()
		server.windows = append(server.windows[:i], server.windows[i+1:]...)
		server.stateLock.Unlock()
	}
	server.focusWindow(server.focused())
}

func (server *Server) handleDestroyXDGToplevel(xdgSurface wlroots.XDGSurface) {
	surface, ok := server.surfaces[xdgSurface]
	if !ok {
		return
	}
	delete(server.surfaces, xdgSurface)
	surface.gone = true
	server.comp.HandleSurfaceDestroyed(surface)
}

func (server *Server) GetOutputs() []*wlroots.Output {
	return server.outputs
}

func NewServer(comp *compositor.Compositor) (server *Server, err error) {
	server = &Server{
		comp:     comp,
		surfaces: make(map[wlroots.XDGSurface]*wlrSurface),
	}

	server.display = wlroots.NewDisplay()
	server.backend, err = server.display.BackendAutocreate()
	if err != nil {
		return nil, err
	}
	server.renderer, err = server.backend.RendererAutoCreate()
	if err != nil {
		return nil, err
	}
	server.renderer.InitDisplay(server.display)
	server.allocator, err = server.backend.AllocatorAutocreate(server.renderer)
	if err != nil {
		return nil, err
	}

	server.display.CompositorCreate(5, server.renderer)
	server.display.SubCompositorCreate()
	server.display.DataDeviceManagerCreate()

	server.outputLayout = wlroots.NewOutputLayout()
	server.backend.OnNewOutput(server.handleNewOutput)

	server.scene = wlroots.NewScene()
	server.sceneLayout = server.scene.AttachOutputLayout(server.outputLayout)

	server.xdgShell = server.display.XDGShellCreate(3)
	server.xdgShell.OnNewSurface(server.handleNewXDGSurface)

	server.cursor = wlroots.NewCursor()
	server.cursor.AttachOutputLayout(server.outputLayout)
	server.cursorMgr = wlroots.NewXCursorManager("", 24)
	server.cursor.OnMotion(server.handleCursorMotion)
	server.cursor.OnMotionAbsolute(server.handleCursorMotionAbsolute)
	server.cursor.OnButton(server.handleCursorButton)
	server.cursor.OnAxis(server.handleCursorAxis)
	server.cursor.OnFrame(server.handleCursorFrame)
	server.cursorMgr.Load(1)

	server.backend.OnNewInput(server.handleNewInput)
	server.seat = server.display.SeatCreate("seat0")
	server.seat.OnSetCursorRequest(server.handleSetCursorRequest)

	return
}

// Start opens the display socket, reachable as socketName in runtimeDir, and starts the backend
func (server *Server) Start(socketName, runtimeDir string) error {
	socket, err := server.display.AddSocketAuto()
	if err != nil {
		server.backend.Destroy()
		return fmt.Errorf("failed to create display socket: %w", err)
	}
	server.unlinkSock, err = launcher.LinkSocket(runtimeDir, socket, socketName)
	if err != nil {
		server.backend.Destroy()
		server.display.Destroy()
		return err
	}
	server.socket = socketName
	if socketName == "" {
		server.socket = socket
	}
	logrus.WithFields(logrus.Fields{
		"socket": socket,
		"name":   server.socket,
	}).Debugln("Display socket ready")

	if err = server.backend.Start(); err != nil {
		server.unlinkSock()
		server.backend.Destroy()
		server.display.Destroy()
		return err
	}

	if res := os.Getenv("WAYLAND_DISPLAY"); res != "" {
		logrus.WithField("WAYLAND_DISPLAY", res).Debugln("Wayland display already set, overwriting")
	}
	if err = os.Setenv("WAYLAND_DISPLAY", server.socket); err != nil {
		return err
	}

	logrus.WithField("WAYLAND_DISPLAY", server.socket).Infoln("Running Wayland compositor")
	return nil
}

// Run blocks in the wayland event loop until Stop is called, then tears everything down
func (server *Server) Run() error {
	server.display.Run()

	server.display.DestroyClients()
	server.scene.Tree().Node().Destroy()
	server.cursorMgr.Destroy()
	server.outputLayout.Destroy()
	server.display.Destroy()
	if server.unlinkSock != nil {
		server.unlinkSock()
	}
	return nil
}

func (server *Server) Stop() {
	server.display.Terminate()
}

// Answers the console's inspect command
func (server *Server) inspect(target, _ string) string {
	server.stateLock.Lock()
	defer server.stateLock.Unlock()
	switch target {
	case "socket":
		return "Socket: " + server.socket
	case "outputs":
		names := make([]string, 0, len(server.outputs))
		for _, output := range server.outputs {
			names = append(names, output.Name())
		}
		return fmt.Sprintf("Outputs: %v, windows sized %dx%d", names, server.screenWidth, server.screenHeight)
	case "cursor":
		return fmt.Sprintf("Cursor: Location (%f:%f)", server.cursor.X(), server.cursor.Y())
	case "windows":
		ids := make([]int, 0, len(server.windows))
		for _, w := range server.windows {
			ids = append(ids, w.surface.id)
		}
		return fmt.Sprintf("Mapped windows, focused first: %v", ids)
	case "keyboards":
		return fmt.Sprintf("Keyboards: %d", len(server.keyboards))
	default:
		return "Unknown target, try socket, outputs, cursor, windows, keyboards or pending"
	}
}
