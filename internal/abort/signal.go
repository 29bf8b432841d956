package abort

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrAborted = errors.New("abort: aborted")
	ErrTimeout = errors.New("abort: deadline exceeded")
)

type callback struct {
	id uint64
	fn func(error)
}

// Signal is one node of a cancellation tree.
//
// A Signal aborts when Abort is called on it or when any signal it listens to
// aborts. Aborting is monotonic and only flows from parents to children.
// A Signal satisfies context.Context so it can govern exec.CommandContext and
// any other context-aware call directly.
type Signal struct {
	mu        sync.Mutex
	aborted   bool
	cause     error
	done      chan struct{}
	nextID    uint64
	callbacks []callback
	children  map[*Signal]struct{}
	parents   []*Signal
	stops     []func()
	deadline  time.Time
	values    context.Context
}

// New returns a signal listening to every non-nil parent.
func New(parents ...*Signal) *Signal {
	s := &Signal{
		done:     make(chan struct{}),
		children: make(map[*Signal]struct{}),
	}
	s.Listen(parents...)
	return s
}

// FromContext returns a root signal that aborts when ctx is done.
func FromContext(ctx context.Context) *Signal {
	s := New()
	s.follow(ctx)
	return s
}

// Listen subscribes s to additional parents. Joining a parent that is already
// aborted aborts s without running its OnAbort callbacks.
func (s *Signal) Listen(parents ...*Signal) {
	for _, p := range parents {
		if p == nil || p == s {
			continue
		}
		p.mu.Lock()
		if p.aborted {
			cause := p.cause
			p.mu.Unlock()
			s.abort(cause, false)
			continue
		}
		p.children[s] = struct{}{}
		deadline := p.deadline
		p.mu.Unlock()

		s.mu.Lock()
		if s.aborted {
			s.mu.Unlock()
			p.removeChild(s)
			continue
		}
		s.parents = append(s.parents, p)
		if !deadline.IsZero() && (s.deadline.IsZero() || deadline.Before(s.deadline)) {
			s.deadline = deadline
		}
		s.mu.Unlock()
	}
}

// Derive returns a child of s that additionally listens to extra.
func (s *Signal) Derive(extra ...*Signal) *Signal {
	return New(append([]*Signal{s}, extra...)...)
}

// WithTimeout returns a child of s (and extra) that aborts with ErrTimeout
// once d has elapsed. The receiver's own lifetime is unaffected.
func (s *Signal) WithTimeout(d time.Duration, extra ...*Signal) *Signal {
	child := s.Derive(extra...)
	if d <= 0 {
		return child
	}
	deadline := time.Now().Add(d)
	child.mu.Lock()
	if child.deadline.IsZero() || deadline.Before(child.deadline) {
		child.deadline = deadline
	}
	child.mu.Unlock()

	timer := time.AfterFunc(d, func() { child.Abort(ErrTimeout) })
	child.addStop(func() { timer.Stop() })
	return child
}

// Join returns a child of s that also aborts when ctx is done. The returned
// release func detaches the child from s once the caller is finished with it.
func (s *Signal) Join(ctx context.Context) (*Signal, func()) {
	child := New(s)
	child.mu.Lock()
	child.values = ctx
	child.mu.Unlock()
	child.follow(ctx)
	return child, child.Detach
}

func (s *Signal) follow(ctx context.Context) {
	if ctx == nil || ctx.Done() == nil {
		return
	}
	if ctx.Err() != nil {
		s.abort(context.Cause(ctx), false)
		return
	}
	stop := context.AfterFunc(ctx, func() { s.Abort(context.Cause(ctx)) })
	s.addStop(func() { stop() })
}

// Abort transitions s and every listening child to aborted. Only the first
// call has an effect; a nil cause is recorded as ErrAborted.
func (s *Signal) Abort(cause error) {
	s.abort(cause, true)
}

func (s *Signal) abort(cause error, notify bool) {
	if cause == nil {
		cause = ErrAborted
	}
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return
	}
	s.aborted = true
	s.cause = cause
	close(s.done)
	callbacks := s.callbacks
	s.callbacks = nil
	children := make([]*Signal, 0, len(s.children))
	for child := range s.children {
		children = append(children, child)
	}
	s.children = make(map[*Signal]struct{})
	parents := s.parents
	s.parents = nil
	stops := s.stops
	s.stops = nil
	s.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	for _, p := range parents {
		p.removeChild(s)
	}
	if notify {
		for _, cb := range callbacks {
			cb.fn(cause)
		}
	}
	for _, child := range children {
		child.abort(cause, notify)
	}
}

// OnAbort registers fn to run once when s aborts. If s is already aborted fn
// runs immediately. The returned func unregisters fn.
func (s *Signal) OnAbort(fn func(cause error)) func() {
	s.mu.Lock()
	if s.aborted {
		cause := s.cause
		s.mu.Unlock()
		fn(cause)
		return func() {}
	}
	s.nextID++
	id := s.nextID
	s.callbacks = append(s.callbacks, callback{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, cb := range s.callbacks {
			if cb.id == id {
				s.callbacks = append(s.callbacks[:i], s.callbacks[i+1:]...)
				return
			}
		}
	}
}

// Detach unsubscribes s from its parents and stops its timers without
// aborting it.
func (s *Signal) Detach() {
	s.mu.Lock()
	parents := s.parents
	s.parents = nil
	stops := s.stops
	s.stops = nil
	s.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	for _, p := range parents {
		p.removeChild(s)
	}
}

func (s *Signal) addStop(stop func()) {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		stop()
		return
	}
	s.stops = append(s.stops, stop)
	s.mu.Unlock()
}

func (s *Signal) removeChild(child *Signal) {
	s.mu.Lock()
	delete(s.children, child)
	s.mu.Unlock()
}

// Aborted reports whether s has been aborted.
func (s *Signal) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Check returns the abort cause if s is aborted and nil otherwise.
func (s *Signal) Check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.aborted {
		return nil
	}
	return s.cause
}

// Cause returns the error s was aborted with, or nil.
func (s *Signal) Cause() error {
	return s.Check()
}

func (s *Signal) Done() <-chan struct{} {
	return s.done
}

func (s *Signal) Err() error {
	cause := s.Check()
	if cause == nil {
		return nil
	}
	if errors.Is(cause, ErrTimeout) || errors.Is(cause, context.DeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return context.Canceled
}

func (s *Signal) Deadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline, !s.deadline.IsZero()
}

func (s *Signal) Value(key any) any {
	s.mu.Lock()
	values := s.values
	s.mu.Unlock()
	if values != nil {
		return values.Value(key)
	}
	return nil
}

// IsAbort reports whether err came from an aborted signal or context.
func IsAbort(err error) bool {
	return errors.Is(err, ErrAborted) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

var _ context.Context = (*Signal)(nil)
