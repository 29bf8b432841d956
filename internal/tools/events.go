package tools

import (
	"time"

	"github.com/rs/zerolog"
)

// EventKind names one of the four lifecycle events.
type EventKind string

const (
	EventExec       EventKind = "exec"
	EventSpawnStart EventKind = "spawn:start"
	EventSpawnExit  EventKind = "spawn:exit"
	EventSpawnError EventKind = "spawn:error"
)

// ExitStatus is how a process terminated. Code is -1 when a signal ended it.
type ExitStatus struct {
	Code   int
	Signal string
}

// Event describes one invocation lifecycle step. Empty fields are omitted
// when the event is logged.
type Event struct {
	Kind     EventKind
	Tool     string
	Cmd      []string
	Stdout   string
	Stderr   string
	Exit     *ExitStatus
	Err      error
	Duration time.Duration
}

func (e Event) MarshalZerologObject(z *zerolog.Event) {
	z.Str("kind", string(e.Kind))
	if e.Tool != "" {
		z.Str("tool", e.Tool)
	}
	if len(e.Cmd) > 0 {
		z.Strs("cmd", e.Cmd)
	}
	if e.Stdout != "" {
		z.Str("stdout", e.Stdout)
	}
	if e.Stderr != "" {
		z.Str("stderr", e.Stderr)
	}
	if e.Exit != nil {
		z.Int("exit_code", e.Exit.Code)
		if e.Exit.Signal != "" {
			z.Str("signal", e.Exit.Signal)
		}
	}
	if e.Err != nil {
		z.Str("error", e.Err.Error())
	}
	if e.Duration > 0 {
		z.Dur("duration", e.Duration)
	}
}

// Observer receives lifecycle events. Events of one invocation arrive in
// order: Exec alone for buffered runs; SpawnStart, then SpawnExit and
// possibly SpawnError for streaming runs.
type Observer interface {
	Exec(Event)
	SpawnStart(Event)
	SpawnExit(Event)
	SpawnError(Event)
}

// NopObserver discards events.
type NopObserver struct{}

func (NopObserver) Exec(Event)       {}
func (NopObserver) SpawnStart(Event) {}
func (NopObserver) SpawnExit(Event)  {}
func (NopObserver) SpawnError(Event) {}

// Observers fans events out to each member in order.
type Observers []Observer

func (o Observers) Exec(e Event) {
	for _, obs := range o {
		obs.Exec(e)
	}
}

func (o Observers) SpawnStart(e Event) {
	for _, obs := range o {
		obs.SpawnStart(e)
	}
}

func (o Observers) SpawnExit(e Event) {
	for _, obs := range o {
		obs.SpawnExit(e)
	}
}

func (o Observers) SpawnError(e Event) {
	for _, obs := range o {
		obs.SpawnError(e)
	}
}

// ObserverFunc adapts a single function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Exec(e Event)       { f(e) }
func (f ObserverFunc) SpawnStart(e Event) { f(e) }
func (f ObserverFunc) SpawnExit(e Event)  { f(e) }
func (f ObserverFunc) SpawnError(e Event) { f(e) }
