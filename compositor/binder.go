package compositor

import (
	"github.com/sirupsen/logrus"
)

// BindToplevel attaches an xdg toplevel to a tracked surface, announcing it as window
// the first time. Binding again only refreshes metadata and change subscriptions
func (c *Compositor) BindToplevel(s Surface, t Toplevel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.lookupHandle(s)
	if !ok {
		logrus.Warningln("Toplevel bound to a surface that is not tracked, ignoring")
		return
	}
	if rec.binding == BindingLegacy {
		logrus.WithField("id", rec.id).Warningln("Surface already has a legacy shell role, ignoring toplevel")
		return
	}

	rec.dropSubscriptions()
	rec.binding = BindingToplevel
	rec.shell = t
	rec.toplevel = t
	rec.title = t.Title()
	rec.appID = t.AppID()

	id := rec.id
	rec.unsubscribe = []func(){
		t.OnTitleChanged(func(title string) { c.updateMetadata(id, &title, nil) }),
		t.OnAppIDChanged(func(appID string) { c.updateMetadata(id, nil, &appID) }),
	}
	c.announce(rec)
}

// BindLegacyShell attaches a wl_shell surface. Those only carry a title
func (c *Compositor) BindLegacyShell(s Surface, l LegacyShellSurface) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.lookupHandle(s)
	if !ok {
		logrus.Warningln("Legacy shell surface bound to a surface that is not tracked, ignoring")
		return
	}
	if rec.binding == BindingToplevel {
		logrus.WithField("id", rec.id).Warningln("Surface already is a toplevel, ignoring legacy shell role")
		return
	}

	rec.dropSubscriptions()
	rec.binding = BindingLegacy
	rec.shell = l
	rec.title = l.Title()

	id := rec.id
	rec.unsubscribe = []func(){
		l.OnTitleChanged(func(title string) { c.updateMetadata(id, &title, nil) }),
	}
	c.announce(rec)
}

func (c *Compositor) lookupHandle(s Surface) (*managedSurface, bool) {
	id, ok := c.byHandle[s]
	if !ok {
		return nil, false
	}
	return c.surfaces[id], true
}

// mu must be held
func (c *Compositor) announce(rec *managedSurface) {
	logrus.WithFields(logrus.Fields{
		"id":      rec.id,
		"title":   rec.title,
		"app-id":  rec.appID,
		"binding": rec.binding,
	}).Infoln("Window ready")

	if rec.announced {
		c.emit(MetadataChanged{ID: rec.id, Title: rec.title, AppID: rec.appID})
		return
	}
	rec.announced = true
	c.emit(SurfaceCreated{Surface: rec.handle, ID: rec.id, Shell: rec.shell})
}

// Runs from change callbacks, so the surface may already be gone
func (c *Compositor) updateMetadata(id int, title, appID *string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.surfaces[id]
	if !ok {
		return
	}
	changed := false
	if title != nil && *title != rec.title {
		rec.title = *title
		changed = true
	}
	if appID != nil && *appID != rec.appID {
		rec.appID = *appID
		changed = true
	}
	if changed {
		c.emit(MetadataChanged{ID: id, Title: rec.title, AppID: rec.appID})
	}
}
