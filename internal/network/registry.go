package network

import (
	"sync"
	"sync/atomic"
)

// Registry tracks every live client connection across a broker's
// listeners. Unlike the teacher's connection pool, a broker-side socket
// is never idle-and-reused the way an outbound client connection is: it
// belongs to exactly one Session for its whole life, so Registry drops
// the teacher's idle-list/lifetime-eviction machinery and keeps only
// what ForEach-driven operations (graceful shutdown, Stats, admin
// lookups) need.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection

	total atomic.Int32

	closedBytesRead    atomic.Uint64
	closedBytesWritten atomic.Uint64
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

func (r *Registry) Add(conn *Connection) {
	r.mu.Lock()
	r.conns[conn.ID()] = conn
	r.mu.Unlock()
	r.total.Add(1)
}

func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// Remove stops tracking id, folding its final byte counts into the
// registry's closed-connection totals so TotalBytes stays monotonic even
// as individual connections come and go.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()
	if ok {
		r.total.Add(-1)
		r.closedBytesRead.Add(conn.BytesRead())
		r.closedBytesWritten.Add(conn.BytesWritten())
	}
}

// TotalBytes returns the cumulative bytes read/written across every
// connection this registry has ever tracked, live or closed.
func (r *Registry) TotalBytes() (read, written uint64) {
	var liveRead, liveWritten uint64
	r.ForEach(func(c *Connection) bool {
		liveRead += c.BytesRead()
		liveWritten += c.BytesWritten()
		return true
	})
	return r.closedBytesRead.Load() + liveRead, r.closedBytesWritten.Load() + liveWritten
}

// ForEach visits every tracked connection in no particular order, stopping
// early if fn returns false. Used by TotalBytes.
func (r *Registry) ForEach(fn func(*Connection) bool) {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		if !fn(conn) {
			break
		}
	}
}

func (r *Registry) Count() int {
	return int(r.total.Load())
}
