// Package argsmodel compiles declarative option schemas into argument vectors.
package argsmodel

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"strings"
)

var (
	ErrDuplicateOption = errors.New("argsmodel: duplicate option")
	ErrInvalidOption   = errors.New("argsmodel: invalid option")
	ErrUnknownOption   = errors.New("argsmodel: unknown option")
	ErrMissingOverride = errors.New("argsmodel: override key not in config")
)

// Option declares one command-line option.
// When OverrideKey is set the emitted value is read from that config key.
type Option struct {
	Name        string
	Flag        string
	Default     any
	Boolean     bool
	OverrideKey string
}

// Config holds the live values of a schema's options.
type Config map[string]any

// Clone returns a shallow copy of c.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	maps.Copy(out, c)
	return out
}

// Schema is an ordered, immutable set of options.
type Schema struct {
	options []Option
	index   map[string]int
}

// NewSchema validates opts and keeps their declaration order.
func NewSchema(opts ...Option) (*Schema, error) {
	s := &Schema{
		options: make([]Option, 0, len(opts)),
		index:   make(map[string]int, len(opts)),
	}
	for _, opt := range opts {
		name := strings.TrimSpace(opt.Name)
		if name == "" || strings.TrimSpace(opt.Flag) == "" {
			return nil, fmt.Errorf("%w: name=%q flag=%q", ErrInvalidOption, opt.Name, opt.Flag)
		}
		if _, ok := s.index[name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOption, name)
		}
		opt.Name = name
		s.index[name] = len(s.options)
		s.options = append(s.options, opt)
	}
	return s, nil
}

// MustSchema is NewSchema for package-level schema tables.
func MustSchema(opts ...Option) *Schema {
	s, err := NewSchema(opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Options returns a copy of the declared options in order.
func (s *Schema) Options() []Option {
	if s == nil {
		return nil
	}
	return append([]Option(nil), s.options...)
}

// Lookup returns the option declared under name.
func (s *Schema) Lookup(name string) (Option, bool) {
	if s == nil {
		return Option{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return Option{}, false
	}
	return s.options[i], true
}

// Defaults returns a config holding every option's default value.
func (s *Schema) Defaults() Config {
	cfg := make(Config)
	if s == nil {
		return cfg
	}
	for _, opt := range s.options {
		cfg[opt.Name] = opt.Default
	}
	return cfg
}

// Merge layers overrides over the schema defaults. The input is not modified.
func (s *Schema) Merge(overrides Config) (Config, error) {
	cfg := s.Defaults()
	for name, value := range overrides {
		if _, ok := s.Lookup(name); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownOption, name)
		}
		cfg[name] = value
	}
	if err := s.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every override key names a key present in cfg.
func (s *Schema) Validate(cfg Config) error {
	if s == nil {
		return nil
	}
	for _, opt := range s.options {
		if opt.OverrideKey == "" {
			continue
		}
		if _, ok := cfg[opt.OverrideKey]; !ok {
			return fmt.Errorf("%w: %s -> %s", ErrMissingOverride, opt.Name, opt.OverrideKey)
		}
	}
	return nil
}

// Compile renders cfg as flat argument tokens in declaration order.
// Options still at their default value are omitted.
func (s *Schema) Compile(cfg Config) []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.options))
	for _, opt := range s.options {
		value, ok := cfg[opt.Name]
		if !ok || isDefault(value, opt.Default) {
			continue
		}
		if opt.Boolean {
			out = append(out, opt.Flag)
			continue
		}
		if opt.OverrideKey != "" {
			value = cfg[opt.OverrideKey]
		}
		out = append(out, opt.Flag, format(value))
	}
	return out
}

func isDefault(value, def any) bool {
	if value == nil || def == nil {
		return value == nil && def == nil
	}
	if reflect.DeepEqual(value, def) {
		return true
	}
	// TOML and JSON decoders widen numbers; 5037 and int64(5037) are the same default.
	return isNumber(value) && isNumber(def) && format(value) == format(def)
}

func isNumber(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func format(value any) string {
	if value == nil {
		return ""
	}
	return fmt.Sprint(value)
}

// Assemble joins fixed, compiled and operation arguments, dropping empty
// operation arguments so optional positionals can be left blank.
func Assemble(fixed, compiled []string, op ...string) []string {
	out := make([]string, 0, len(fixed)+len(compiled)+len(op))
	out = append(out, fixed...)
	out = append(out, compiled...)
	return appendNonEmpty(out, op)
}

// AssembleActionFirst places the first operation argument ahead of the
// compiled options, for tools whose options must follow the action verb.
func AssembleActionFirst(fixed, compiled []string, op ...string) []string {
	op = appendNonEmpty(nil, op)
	if len(op) == 0 {
		return Assemble(fixed, compiled)
	}
	out := make([]string, 0, len(fixed)+len(compiled)+len(op))
	out = append(out, fixed...)
	out = append(out, op[0])
	out = append(out, compiled...)
	return append(out, op[1:]...)
}

func appendNonEmpty(out []string, args []string) []string {
	for _, arg := range args {
		if arg == "" {
			continue
		}
		out = append(out, arg)
	}
	return out
}
