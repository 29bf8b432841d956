package tools

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/danmuck/devctl/internal/abort"
	"github.com/danmuck/devctl/internal/argsmodel"
	"github.com/danmuck/devctl/internal/classify"
	"github.com/rs/zerolog/log"
)

var ErrMissingExecutable = errors.New("tools: missing executable")

// DefaultKillGrace is how long a cancelled process gets to exit after
// SIGTERM before it is killed.
const DefaultKillGrace = 2 * time.Second

// Spec configures a new tool instance.
type Spec struct {
	Name       string
	Executable string
	Schema     *argsmodel.Schema
	Config     argsmodel.Config
	Args       []string
	Env        map[string]string
	Signal     *abort.Signal
	Rules      []classify.Rule
	Observer   Observer
	KillGrace  time.Duration
	// ActionFirst places the first operation argument before compiled options.
	ActionFirst bool
}

// Tool is a configured, logically immutable wrapper around one executable.
// Every With* method returns a new instance; the receiver is never changed.
type Tool struct {
	name        string
	executable  string
	schema      *argsmodel.Schema
	config      argsmodel.Config
	args        []string
	env         map[string]string
	parent      *abort.Signal
	signal      *abort.Signal
	classifier  *classify.Classifier
	observer    Observer
	killGrace   time.Duration
	actionFirst bool
	procs       *registry
}

// New builds a tool. Config overrides are merged over schema defaults.
func New(spec Spec) (*Tool, error) {
	name := strings.TrimSpace(spec.Name)
	exe := strings.TrimSpace(spec.Executable)
	if exe == "" {
		exe = name
	}
	if exe == "" {
		return nil, ErrMissingExecutable
	}
	if name == "" {
		name = exe
	}

	schema := spec.Schema
	if schema == nil {
		schema = argsmodel.MustSchema()
	}
	cfg, err := schema.Merge(spec.Config)
	if err != nil {
		return nil, fmt.Errorf("tools: %s config: %w", name, err)
	}

	observer := spec.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	grace := spec.KillGrace
	if grace <= 0 {
		grace = DefaultKillGrace
	}

	sig := abort.New(spec.Signal)
	sig.OnAbort(func(cause error) {
		log.Debug().Str("tool", name).AnErr("cause", cause).Msg("tool scope aborted")
	})

	return &Tool{
		name:       name,
		executable: exe,
		schema:     schema,
		config:     cfg,
		args:       append([]string(nil), spec.Args...),
		env:        maps.Clone(spec.Env),
		parent:     spec.Signal,
		signal:     sig,
		classifier: &classify.Classifier{
			Tool:       name,
			Executable: exe,
			Rules:      append([]classify.Rule(nil), spec.Rules...),
		},
		observer:    observer,
		killGrace:   grace,
		actionFirst: spec.ActionFirst,
		procs:       newRegistry(),
	}, nil
}

func (t *Tool) derive() *Tool {
	c := *t
	return &c
}

func (t *Tool) Name() string {
	return t.name
}

func (t *Tool) Executable() string {
	return t.executable
}

// Config returns a copy of the live configuration.
func (t *Tool) Config() argsmodel.Config {
	return t.config.Clone()
}

// Option returns the live value of one option.
func (t *Tool) Option(name string) (any, bool) {
	v, ok := t.config[name]
	return v, ok
}

// Signal is the tool's own cancellation scope.
func (t *Tool) Signal() *abort.Signal {
	return t.signal
}

// Parent is the signal the tool's scope listens to, if any.
func (t *Tool) Parent() *abort.Signal {
	return t.parent
}

// WithConfig returns a tool whose config has overrides applied.
func (t *Tool) WithConfig(overrides argsmodel.Config) (*Tool, error) {
	cfg := t.config.Clone()
	for name, value := range overrides {
		if _, ok := t.schema.Lookup(name); !ok {
			return nil, fmt.Errorf("tools: %s: %w: %s", t.name, argsmodel.ErrUnknownOption, name)
		}
		cfg[name] = value
	}
	if err := t.schema.Validate(cfg); err != nil {
		return nil, fmt.Errorf("tools: %s: %w", t.name, err)
	}
	c := t.derive()
	c.config = cfg
	return c, nil
}

// WithOption returns a tool with a single option overridden.
func (t *Tool) WithOption(name string, value any) (*Tool, error) {
	return t.WithConfig(argsmodel.Config{name: value})
}

// WithEnv returns a tool with extra environment variables layered on top.
func (t *Tool) WithEnv(env map[string]string) *Tool {
	merged := maps.Clone(t.env)
	if merged == nil {
		merged = make(map[string]string, len(env))
	}
	maps.Copy(merged, env)
	c := t.derive()
	c.env = merged
	return c
}

// WithSignals returns a tool whose scope also listens to extra signals.
// The derived scope stays registered with its parents until it aborts or
// Release is called.
func (t *Tool) WithSignals(extra ...*abort.Signal) *Tool {
	c := t.derive()
	c.parent = t.signal
	c.signal = t.signal.Derive(extra...)
	return c
}

// WithTimeout returns a tool whose scope aborts after d without affecting
// the receiver. Call Release when the derived tool is done before its
// deadline.
func (t *Tool) WithTimeout(d time.Duration, extra ...*abort.Signal) *Tool {
	c := t.derive()
	c.parent = t.signal
	c.signal = t.signal.WithTimeout(d, extra...)
	return c
}

// WithObserver returns a tool reporting lifecycle events to o.
func (t *Tool) WithObserver(o Observer) *Tool {
	if o == nil {
		o = NopObserver{}
	}
	c := t.derive()
	c.observer = o
	return c
}

// WithRules returns a tool whose classifier checks rules before the
// receiver's chain.
func (t *Tool) WithRules(rules ...classify.Rule) *Tool {
	c := t.derive()
	c.classifier = &classify.Classifier{
		Tool:       t.name,
		Executable: t.executable,
		Rules:      rules,
		Base:       t.classifier,
	}
	return c
}

// Abort cancels the tool scope and everything running under it.
func (t *Tool) Abort() {
	t.signal.Abort(nil)
}

// Release unsubscribes the tool's scope from its parents and stops its
// timer without aborting it. The tool must not be used afterwards for work
// that should follow the parents.
func (t *Tool) Release() {
	t.signal.Detach()
}

// KillAll terminates every live process started by this tool or any
// instance derived from it.
func (t *Tool) KillAll() int {
	n := t.procs.killAll()
	if n > 0 {
		log.Debug().Str("tool", t.name).Int("processes", n).Msg("kill all")
	}
	return n
}

// Running reports the number of live processes in the record.
func (t *Tool) Running() int {
	return t.procs.len()
}

// Args assembles the full argument vector for an operation.
func (t *Tool) Args(op ...string) []string {
	compiled := t.schema.Compile(t.config)
	if t.actionFirst {
		return argsmodel.AssembleActionFirst(t.args, compiled, op...)
	}
	return argsmodel.Assemble(t.args, compiled, op...)
}

// Classify labels a raw failure with this tool's rule chain.
func (t *Tool) Classify(f classify.Failure) *classify.Error {
	return t.classifier.Classify(f)
}
