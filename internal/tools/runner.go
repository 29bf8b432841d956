package tools

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/danmuck/devctl/internal/abort"
	"github.com/danmuck/devctl/internal/classify"
)

// Exec runs the tool to completion with op appended to the compiled
// arguments. It returns trimmed stdout, or trimmed stderr when stdout is
// empty. Failures are returned as *classify.Error; a run stopped by ctx or
// the tool scope is always labelled killed.
func (t *Tool) Exec(ctx context.Context, op ...string) (string, error) {
	argv := t.Args(op...)
	ev := Event{Kind: EventExec, Tool: t.name, Cmd: t.commandLine(argv)}

	if cause := t.signal.Check(); cause != nil {
		err := t.Classify(classify.Failure{Err: cause, ExitCode: -1, Canceled: true})
		ev.Err = err
		t.observer.Exec(ev)
		return "", err
	}

	sig, release := t.signal.Join(ctx)
	defer release()

	var stdout, stderr bytes.Buffer
	cmd := t.command(sig, argv)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	t.procs.add(sig)
	start := time.Now()
	runErr := cmd.Run()
	t.procs.remove(sig)

	ev.Duration = time.Since(start)
	ev.Stdout = strings.TrimSpace(stdout.String())
	ev.Stderr = strings.TrimSpace(stderr.String())
	status := exitStatus(cmd.ProcessState)
	ev.Exit = &status

	if succeeded(runErr, cmd.ProcessState) {
		t.observer.Exec(ev)
		if ev.Stdout != "" {
			return ev.Stdout, nil
		}
		return ev.Stderr, nil
	}

	err := t.Classify(failureOf(runErr, status, ev.Stdout, ev.Stderr, sig.Aborted()))
	ev.Err = err
	t.observer.Exec(ev)
	return "", err
}

// command builds an exec.Cmd governed by sig. Cancellation sends SIGTERM and
// escalates to a kill once the grace period runs out.
func (t *Tool) command(sig *abort.Signal, argv []string) *exec.Cmd {
	cmd := exec.CommandContext(sig, t.executable, argv...)
	cmd.Env = t.environ()
	cmd.Cancel = func() error {
		return terminate(cmd.Process)
	}
	cmd.WaitDelay = t.killGrace
	return cmd
}

// environ is the process environment plus the tool's extra variables in
// sorted key order.
func (t *Tool) environ() []string {
	env := os.Environ()
	if len(t.env) == 0 {
		return env
	}
	keys := make([]string, 0, len(t.env))
	for k := range t.env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		env = append(env, k+"="+t.env[k])
	}
	return env
}

func (t *Tool) commandLine(argv []string) []string {
	return append([]string{t.executable}, argv...)
}

// CommandLine renders the command an operation would run, for logs.
func (t *Tool) CommandLine(op ...string) string {
	return strings.Join(t.commandLine(t.Args(op...)), " ")
}

// succeeded treats a clean exit whose pipes were held open by a forked
// daemon (adb start-server) as success.
func succeeded(err error, ps *os.ProcessState) bool {
	if err == nil {
		return true
	}
	return errors.Is(err, exec.ErrWaitDelay) && ps != nil && ps.Success()
}

func exitStatus(ps *os.ProcessState) ExitStatus {
	if ps == nil {
		return ExitStatus{Code: -1}
	}
	return ExitStatus{Code: ps.ExitCode(), Signal: signalName(ps)}
}

func failureOf(err error, status ExitStatus, stdout, stderr string, canceled bool) classify.Failure {
	f := classify.Failure{
		Err:      err,
		ExitCode: status.Code,
		Signal:   status.Signal,
		Stdout:   stdout,
		Stderr:   stderr,
		Canceled: canceled,
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return f
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) || errors.Is(err, fs.ErrNotExist) {
		f.ExitCode = 127
		return f
	}
	if f.ExitCode == 0 {
		f.ExitCode = 1
	}
	return f
}
