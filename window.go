package main

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/swaywm/go-wlroots/wlroots"
)

// wlrSurface is the compositor.Surface of a toplevel xdg surface
type wlrSurface struct {
	server *Server
	xdg    wlroots.XDGSurface
	id     int
	pid    int
	hasPID bool
	// Set once mapped
	window *wlrToplevel
	// Destroyed by the client, xdg must not be touched anymore
	gone bool
}

func (s *wlrSurface) ClientPID() (int, bool) {
	return s.pid, s.hasPID
}

// CloseClient is called once the owning app exited or a surface without close request
// should go away. go-wlroots gives no access to the wl_client, so the connection is not
// torn down here. It ends with the process, all that is left is asking the surface to close
func (s *wlrSurface) CloseClient() {
	s.server.queue(func() {
		if s.gone {
			return
		}
		logrus.WithField("id", s.id).Debugln("Closing surface of dropped client")
		s.xdg.SendClose()
	})
}

// wlrToplevel is the compositor.Toplevel of a mapped xdg toplevel
type wlrToplevel struct {
	surface  *wlrSurface
	xdg      wlroots.XDGSurface
	toplevel wlroots.XDGTopLevel

	lock      sync.Mutex
	title     string
	appID     string
	nextSub   int
	titleSubs map[int]func(string)
	appIDSubs map[int]func(string)
}

func newWlrToplevel(surface *wlrSurface) *wlrToplevel {
	toplevel := surface.xdg.TopLevel()
	return &wlrToplevel{
		surface:   surface,
		xdg:       surface.xdg,
		toplevel:  toplevel,
		title:     toplevel.Title(),
		appID:     toplevel.AppID(),
		titleSubs: make(map[int]func(string)),
		appIDSubs: make(map[int]func(string)),
	}
}

func (w *wlrToplevel) Title() string {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.title
}

func (w *wlrToplevel) AppID() string {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.appID
}

func (w *wlrToplevel) subscribe(subs map[int]func(string), fn func(string)) func() {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.nextSub++
	id := w.nextSub
	subs[id] = fn
	return func() {
		w.lock.Lock()
		delete(subs, id)
		w.lock.Unlock()
	}
}

func (w *wlrToplevel) OnTitleChanged(fn func(string)) func() {
	return w.subscribe(w.titleSubs, fn)
}

func (w *wlrToplevel) OnAppIDChanged(fn func(string)) func() {
	return w.subscribe(w.appIDSubs, fn)
}

// SendClose may come from any goroutine
func (w *wlrToplevel) SendClose() {
	w.surface.server.queue(func() {
		if w.surface.gone {
			return
		}
		w.xdg.SendClose()
	})
}

// Picks up title and app id changes. Event loop only
func (w *wlrToplevel) refresh() {
	if w.surface.gone {
		return
	}
	title, appID := w.toplevel.Title(), w.toplevel.AppID()

	w.lock.Lock()
	var notify []func()
	if title != w.title {
		w.title = title
		for _, fn := range w.titleSubs {
			fn := fn
			notify = append(notify, func() { fn(title) })
		}
	}
	if appID != w.appID {
		w.appID = appID
		for _, fn := range w.appIDSubs {
			fn := fn
			notify = append(notify, func() { fn(appID) })
		}
	}
	w.lock.Unlock()

	for _, fn := range notify {
		fn()
	}
}
