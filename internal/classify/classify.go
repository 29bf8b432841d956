// Package classify turns raw process failures into stable error labels.
package classify

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Reason is a short symbolic failure label callers can branch on.
type Reason string

const (
	Killed           Reason = "killed"
	NoDevice         Reason = "no-device"
	MultipleDevices  Reason = "multiple-devices"
	Unauthorized     Reason = "unauthorized"
	DeviceOffline    Reason = "device-offline"
	BootloaderLocked Reason = "bootloader-locked"
	EnableUnlocking  Reason = "enable-unlocking"
	LowBattery       Reason = "low-battery"
	FailedToBoot     Reason = "failed-to-boot"
	UnexpectedOutput Reason = "unexpected-output"
)

// Failure is the raw outcome of a process that did not exit cleanly.
type Failure struct {
	Err      error
	ExitCode int
	Signal   string
	Stdout   string
	Stderr   string
	Canceled bool
}

// Rule labels a failure when Match reports true.
type Rule struct {
	Reason Reason
	Match  func(Failure) bool
}

// Classifier evaluates Rules top to bottom, then Base, then the generic chain.
type Classifier struct {
	Tool       string
	Executable string
	Rules      []Rule
	Base       *Classifier
}

// Classify labels f. Cancellation always wins over text matches.
func (c *Classifier) Classify(f Failure) *Error {
	reason := c.reason(f)
	return &Error{
		Reason:   reason,
		Message:  c.message(reason, f),
		Tool:     c.tool(),
		ExitCode: f.ExitCode,
		Signal:   f.Signal,
		Stdout:   f.Stdout,
		Stderr:   f.Stderr,
		Cause:    f.Err,
	}
}

func (c *Classifier) reason(f Failure) Reason {
	if f.Canceled {
		return Killed
	}
	for cur := c; cur != nil; cur = cur.Base {
		for _, rule := range cur.Rules {
			if rule.Match != nil && rule.Match(f) {
				return rule.Reason
			}
		}
	}
	if wasKilled(f) {
		return Killed
	}
	return ""
}

func wasKilled(f Failure) bool {
	switch f.Signal {
	case "SIGKILL", "SIGTERM":
		return true
	}
	return strings.Contains(f.Stderr, "killed") || strings.Contains(f.Stdout, "killed")
}

type fallback struct {
	Error  string `json:"error,omitempty"`
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
}

// message is the label, or the structured fallback when nothing matched.
func (c *Classifier) message(reason Reason, f Failure) string {
	if reason != "" {
		return string(reason)
	}
	fb := fallback{Stdout: f.Stdout, Stderr: f.Stderr}
	if f.Err != nil {
		fb.Error = f.Err.Error()
	}
	data, err := json.Marshal(fb)
	if err != nil {
		data = []byte(fb.Error)
	}
	return c.scrub(string(data))
}

// scrub replaces the resolved executable path with the tool name.
func (c *Classifier) scrub(text string) string {
	exe := c.executable()
	if exe == "" || exe == c.tool() {
		return text
	}
	text = strings.ReplaceAll(text, exe, c.tool())
	// json.Marshal escapes backslashes in windows paths.
	if escaped, err := json.Marshal(exe); err == nil {
		quoted := strings.Trim(string(escaped), `"`)
		if quoted != exe {
			text = strings.ReplaceAll(text, quoted, c.tool())
		}
	}
	return text
}

func (c *Classifier) tool() string {
	for cur := c; cur != nil; cur = cur.Base {
		if cur.Tool != "" {
			return cur.Tool
		}
	}
	return "tool"
}

func (c *Classifier) executable() string {
	for cur := c; cur != nil; cur = cur.Base {
		if cur.Executable != "" {
			return cur.Executable
		}
	}
	return ""
}

// WithExecutable returns a copy of c bound to a resolved executable path.
func (c *Classifier) WithExecutable(path string) *Classifier {
	if c == nil {
		return &Classifier{Executable: path}
	}
	out := *c
	out.Executable = path
	return &out
}

// StderrContains matches when stderr holds any of subs.
func StderrContains(subs ...string) func(Failure) bool {
	return func(f Failure) bool {
		return containsAny(f.Stderr, subs)
	}
}

// OutputContains matches when stdout or stderr holds any of subs.
func OutputContains(subs ...string) func(Failure) bool {
	return func(f Failure) bool {
		return containsAny(f.Stderr, subs) || containsAny(f.Stdout, subs)
	}
}

// StderrMatches matches when stderr matches re.
func StderrMatches(re *regexp.Regexp) func(Failure) bool {
	return func(f Failure) bool {
		return re.MatchString(f.Stderr)
	}
}

// Any matches when one of preds matches.
func Any(preds ...func(Failure) bool) func(Failure) bool {
	return func(f Failure) bool {
		for _, p := range preds {
			if p(f) {
				return true
			}
		}
		return false
	}
}

func containsAny(s string, subs []string) bool {
	if s == "" {
		return false
	}
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
