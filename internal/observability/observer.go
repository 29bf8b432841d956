package observability

import (
	"github.com/danmuck/devctl/internal/tools"
	"github.com/rs/zerolog"
)

// LogObserver writes tool lifecycle events to a zerolog logger. Successful
// events log at debug, failures at warn.
type LogObserver struct {
	Logger zerolog.Logger
}

func NewLogObserver(logger zerolog.Logger) LogObserver {
	return LogObserver{Logger: logger}
}

func (o LogObserver) Exec(e tools.Event)       { o.log(e) }
func (o LogObserver) SpawnStart(e tools.Event) { o.log(e) }
func (o LogObserver) SpawnExit(e tools.Event)  { o.log(e) }
func (o LogObserver) SpawnError(e tools.Event) { o.log(e) }

func (o LogObserver) log(e tools.Event) {
	event := o.Logger.Debug()
	if e.Err != nil {
		event = o.Logger.Warn()
	}
	event.EmbedObject(e).Msg("tool_" + string(e.Kind))
}

// MetricsObserver feeds tool lifecycle events into prometheus.
type MetricsObserver struct{}

func (MetricsObserver) Exec(e tools.Event) {
	RecordInvocation(e.Tool, string(e.Kind), e.Err, e.Duration)
	if e.Exit != nil {
		RecordExitCode(e.Tool, e.Exit.Code)
	}
}

func (MetricsObserver) SpawnStart(e tools.Event) {
	RecordInvocation(e.Tool, string(e.Kind), nil, 0)
}

func (MetricsObserver) SpawnExit(e tools.Event) {
	RecordInvocation(e.Tool, string(e.Kind), nil, e.Duration)
	if e.Exit != nil {
		RecordExitCode(e.Tool, e.Exit.Code)
	}
}

func (MetricsObserver) SpawnError(e tools.Event) {
	RecordInvocation(e.Tool, string(e.Kind), e.Err, e.Duration)
}

// Default is the observer chain used by the CLI: structured logs plus metrics.
func Default(logger zerolog.Logger) tools.Observer {
	return tools.Observers{NewLogObserver(logger), MetricsObserver{}}
}
