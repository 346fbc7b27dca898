package registry

import (
	"sync"

	"task_reminders/internal/logger"
)

// Pusher is a live push-channel connection the dispatcher can write to.
type Pusher interface {
	Push(msg []byte)
}

// Registry tracks, per user, the set of live push-channel connections.
// It is process-wide shared state mutated from independent connection
// handlers and read from the dispatcher; synchronization is per user so
// unrelated users never contend on a common lock.
type Registry struct {
	users sync.Map // int64 -> *userConns
}

type userConns struct {
	mu sync.Mutex
	// gone marks an entry evicted after its last connection left; an Add
	// racing with eviction must not resurrect it.
	gone  bool
	conns map[string]Pusher
}

func New() *Registry {
	return &Registry{}
}

// Add registers a connection for the user, creating the user's set if absent.
func (r *Registry) Add(userID int64, connID string, p Pusher) {
	for {
		v, _ := r.users.LoadOrStore(userID, &userConns{conns: make(map[string]Pusher)})
		e := v.(*userConns)

		e.mu.Lock()
		if e.gone {
			e.mu.Unlock()
			continue
		}
		e.conns[connID] = p
		n := len(e.conns)
		e.mu.Unlock()

		logger.Info("push channel connected", "user_id", userID, "conn_id", connID, "connections", n)
		return
	}
}

// Remove unregisters a connection; when the user's set becomes empty the
// whole entry is evicted. Unknown user or connection ids are a no-op
// (a disconnect can race with eviction).
func (r *Registry) Remove(userID int64, connID string) {
	v, ok := r.users.Load(userID)
	if !ok {
		return
	}
	e := v.(*userConns)

	e.mu.Lock()
	if _, ok := e.conns[connID]; !ok {
		e.mu.Unlock()
		return
	}
	delete(e.conns, connID)
	if len(e.conns) == 0 {
		e.gone = true
		r.users.Delete(userID)
	}
	e.mu.Unlock()

	logger.Info("push channel disconnected", "user_id", userID, "conn_id", connID)
}

// Lookup returns a snapshot of the user's live connections; empty means no
// live session.
func (r *Registry) Lookup(userID int64) []Pusher {
	v, ok := r.users.Load(userID)
	if !ok {
		return nil
	}
	e := v.(*userConns)

	e.mu.Lock()
	out := make([]Pusher, 0, len(e.conns))
	for _, p := range e.conns {
		out = append(out, p)
	}
	e.mu.Unlock()
	return out
}
