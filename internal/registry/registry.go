// Package registry tracks the signaling connections attached to the relay and
// the peer metadata each connection registered with.
//
// A Registry is not safe for concurrent use. The signaling hub owns the only
// instance and mutates it from a single goroutine, so a snapshot can never
// observe a half-applied registration or removal.
package registry

import (
	"errors"
	"slices"
)

var (
	ErrUnknownConn = errors.New("registry: unknown connection")

	// ErrSendQueueFull and ErrConnClosing are the failures reported by
	// Conn.Send.
	ErrSendQueueFull = errors.New("registry: send queue full")
	ErrConnClosing   = errors.New("registry: connection closing")
)

// Conn is the transport handle owned by a registry entry.
type Conn interface {
	// ID identifies the transport connection. It is unrelated to the peer id
	// supplied by the client.
	ID() string

	// Send queues a serialized frame for the connection's writer. It fails
	// with ErrSendQueueFull when the writer has fallen behind and with
	// ErrConnClosing once Close has been called.
	Send(frame []byte) error

	// Close tears down the transport. The close is reported back to the owner
	// of the registry asynchronously.
	Close()
}

// Metadata is the descriptive information a peer supplies when it registers.
type Metadata struct {
	ID         string
	DeviceName string
	Username   string
	UserAgent  string
}

// Entry is one connection known to the registry.
type Entry struct {
	Conn       Conn
	Metadata   Metadata
	Registered bool
}

type Registry struct {
	// conns holds every accepted connection in accept order.
	conns []*Entry
	index map[Conn]*Entry

	// registered holds registered entries in registration order; byID keeps,
	// per peer id, the entries sharing that id in the same order.
	registered []*Entry
	byID       map[string][]*Entry
}

func New() *Registry {
	return &Registry{
		index: make(map[Conn]*Entry),
		byID:  make(map[string][]*Entry),
	}
}

// Add inserts an unregistered placeholder for a newly accepted connection. It
// reports false if the connection is already known.
func (r *Registry) Add(conn Conn) bool {
	if _, ok := r.index[conn]; ok {
		return false
	}
	e := &Entry{Conn: conn}
	r.index[conn] = e
	r.conns = append(r.conns, e)
	return true
}

// Register attaches md to the connection's entry and marks it registered.
//
// Neither emptiness nor uniqueness of md.ID is checked. When several entries
// share an id, FindByID resolves to the one registered first. Registering an
// already registered connection again replaces its metadata in place and
// keeps its listing position; first reports whether this was the entry's
// first registration.
func (r *Registry) Register(conn Conn, md Metadata) (first bool, err error) {
	e, ok := r.index[conn]
	if !ok {
		return false, ErrUnknownConn
	}

	if e.Registered {
		if e.Metadata.ID != md.ID {
			r.unindex(e)
			e.Metadata = md
			r.byID[md.ID] = insertByOrder(r.byID[md.ID], e, r.registered)
		} else {
			e.Metadata = md
		}
		return false, nil
	}

	e.Metadata = md
	e.Registered = true
	r.registered = append(r.registered, e)
	r.byID[md.ID] = append(r.byID[md.ID], e)
	return true, nil
}

// FindByID returns the first registered entry whose peer id equals id.
func (r *Registry) FindByID(id string) (Entry, bool) {
	entries := r.byID[id]
	if len(entries) == 0 {
		return Entry{}, false
	}
	return *entries[0], true
}

// Get returns the entry for conn.
func (r *Registry) Get(conn Conn) (Entry, bool) {
	e, ok := r.index[conn]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Remove drops the entry for a closed connection and returns it.
func (r *Registry) Remove(conn Conn) (Entry, bool) {
	e, ok := r.index[conn]
	if !ok {
		return Entry{}, false
	}
	delete(r.index, conn)
	r.conns = deleteEntry(r.conns, e)
	if e.Registered {
		r.registered = deleteEntry(r.registered, e)
		r.unindex(e)
	}
	return *e, true
}

// Snapshot returns the registered entries in registration order. The result
// is a copy; later mutations of the registry do not affect it.
func (r *Registry) Snapshot() []Entry {
	out := make([]Entry, 0, len(r.registered))
	for _, e := range r.registered {
		out = append(out, *e)
	}
	return out
}

// Connections returns every connected transport handle, registered or not,
// in accept order.
func (r *Registry) Connections() []Conn {
	out := make([]Conn, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, e.Conn)
	}
	return out
}

// Len reports the number of connected transports.
func (r *Registry) Len() int { return len(r.conns) }

// RegisteredLen reports the number of registered peers.
func (r *Registry) RegisteredLen() int { return len(r.registered) }

func (r *Registry) unindex(e *Entry) {
	id := e.Metadata.ID
	rest := deleteEntry(r.byID[id], e)
	if len(rest) == 0 {
		delete(r.byID, id)
		return
	}
	r.byID[id] = rest
}

func deleteEntry(entries []*Entry, e *Entry) []*Entry {
	i := slices.Index(entries, e)
	if i < 0 {
		return entries
	}
	return slices.Delete(entries, i, i+1)
}

// insertByOrder inserts e into entries so the result follows the order of
// entries in order.
func insertByOrder(entries []*Entry, e *Entry, order []*Entry) []*Entry {
	pos := slices.Index(order, e)
	for i, other := range entries {
		if slices.Index(order, other) > pos {
			return slices.Insert(entries, i, e)
		}
	}
	return append(entries, e)
}
