package tools

import (
	"errors"
	"sync"

	"github.com/danmuck/devctl/internal/abort"
)

// ErrKilled is the abort cause used by Tool.KillAll.
var ErrKilled = errors.New("tools: killed")

// registry is the running process record: the invocation signals of every
// live process owned by a tool and its derived instances.
type registry struct {
	mu   sync.Mutex
	live map[*abort.Signal]struct{}
}

func newRegistry() *registry {
	return &registry{live: make(map[*abort.Signal]struct{})}
}

func (r *registry) add(sig *abort.Signal) {
	r.mu.Lock()
	r.live[sig] = struct{}{}
	r.mu.Unlock()
}

func (r *registry) remove(sig *abort.Signal) {
	r.mu.Lock()
	delete(r.live, sig)
	r.mu.Unlock()
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// killAll aborts every live invocation and reports how many were signalled.
func (r *registry) killAll() int {
	r.mu.Lock()
	live := make([]*abort.Signal, 0, len(r.live))
	for sig := range r.live {
		live = append(live, sig)
	}
	r.mu.Unlock()

	for _, sig := range live {
		sig.Abort(ErrKilled)
	}
	return len(live)
}
