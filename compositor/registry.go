package compositor

import (
	"slices"

	"github.com/sirupsen/logrus"
)

// HandleSurfaceCreated starts tracking a new client surface and returns its id.
// The surface is not announced as a window until a shell role gets bound to it
func (c *Compositor) HandleSurfaceCreated(s Surface) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.byHandle[s]; ok {
		logrus.WithField("id", id).Warningln("Surface reported as created twice")
		return id
	}

	rec := &managedSurface{id: c.nextID, handle: s}
	c.nextID++

	if pid, ok := s.ClientPID(); ok && pid > 0 {
		if other, taken := c.byPID[pid]; taken {
			// One process, one window. Later surfaces of the same client stay unlinked
			logrus.WithFields(logrus.Fields{
				"id":     rec.id,
				"pid":    pid,
				"linked": other,
			}).Debugln("Client already owns a window, not linking its pid again")
		} else {
			rec.pid = pid
			rec.hasPID = true
			rec.launchID = c.launchIDs[pid]
			c.byPID[pid] = rec.id
		}
	}

	c.surfaces[rec.id] = rec
	c.byHandle[s] = rec.id
	c.order = append(c.order, rec.id)
	c.metrics.SurfaceAdded()

	logrus.WithFields(logrus.Fields{
		"id":      rec.id,
		"pid":     rec.pid,
		"has-pid": rec.hasPID,
	}).Debugln("New surface")
	c.emit(SurfacesChanged{})
	return rec.id
}

// HandleSurfaceDestroyed forgets a surface. Unknown surfaces are ignored
func (c *Compositor) HandleSurfaceDestroyed(s Surface) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.byHandle[s]
	if !ok {
		return
	}
	rec := c.surfaces[id]
	rec.dropSubscriptions()

	delete(c.surfaces, id)
	delete(c.byHandle, s)
	if rec.hasPID && c.byPID[rec.pid] == id {
		delete(c.byPID, rec.pid)
	}
	c.order = slices.DeleteFunc(c.order, func(other int) bool { return other == id })
	c.metrics.SurfaceRemoved()

	logrus.WithFields(logrus.Fields{
		"id":        id,
		"title":     rec.title,
		"announced": rec.announced,
	}).Debugln("Surface destroyed")
	c.emit(SurfacesChanged{})
	c.emit(SurfaceDestroyed{Surface: s, ID: id, Announced: rec.announced})
}
