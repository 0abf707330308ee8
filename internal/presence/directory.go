package presence

import "ctchen222/presence-relay/internal/player"

// Directory maps player ids to their current connection handle.
type Directory struct {
	handles map[string]player.Connection
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{handles: make(map[string]player.Connection)}
}

// Bind associates conn with id and returns the handle it replaced, if any.
// The previous handle is neither closed nor notified here.
func (d *Directory) Bind(id string, conn player.Connection) player.Connection {
	previous := d.handles[id]
	d.handles[id] = conn
	return previous
}

// Unbind drops the association for id and returns the handle that was bound.
func (d *Directory) Unbind(id string) player.Connection {
	conn := d.handles[id]
	delete(d.handles, id)
	return conn
}

// HandleOf returns the handle bound to id.
func (d *Directory) HandleOf(id string) (player.Connection, bool) {
	conn, ok := d.handles[id]
	return conn, ok
}
