package tools

import (
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/devctl/internal/abort"
	"github.com/danmuck/devctl/internal/classify"
	"golang.org/x/sync/errgroup"
)

// Process is a live handle to a streaming invocation.
//
// Both Stdout and Stderr must be drained; the process blocks once an unread
// stream fills up. The handle owns its own abort scope under the tool's.
type Process struct {
	tool    *Tool
	cmd     *exec.Cmd
	sig     *abort.Signal
	release func()
	event   Event
	start   time.Time

	stdout  *io.PipeReader
	stderr  *io.PipeReader
	stdoutW *io.PipeWriter
	stderrW *io.PipeWriter

	done    chan struct{}
	mu      sync.Mutex
	status  ExitStatus
	err     error
	waitErr error
}

// Spawn starts the tool with op appended to the compiled arguments and
// returns immediately. SpawnStart is emitted once the process runs;
// SpawnExit when it terminates; SpawnError when it cannot start or is
// interrupted by cancellation.
func (t *Tool) Spawn(ctx context.Context, op ...string) (*Process, error) {
	argv := t.Args(op...)
	ev := Event{Tool: t.name, Cmd: t.commandLine(argv)}

	if cause := t.signal.Check(); cause != nil {
		err := t.Classify(classify.Failure{Err: cause, ExitCode: -1, Canceled: true})
		ev.Kind = EventSpawnError
		ev.Err = err
		t.observer.SpawnError(ev)
		return nil, err
	}

	sig, release := t.signal.Join(ctx)
	cmd := t.command(sig, argv)
	stdout, stdoutW := io.Pipe()
	stderr, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		release()
		_ = stdoutW.CloseWithError(err)
		_ = stderrW.CloseWithError(err)
		cerr := t.Classify(failureOf(err, ExitStatus{Code: -1}, "", "", sig.Aborted()))
		ev.Kind = EventSpawnError
		ev.Err = cerr
		t.observer.SpawnError(ev)
		return nil, cerr
	}

	p := &Process{
		tool:    t,
		cmd:     cmd,
		sig:     sig,
		release: release,
		event:   ev,
		start:   time.Now(),
		stdout:  stdout,
		stderr:  stderr,
		stdoutW: stdoutW,
		stderrW: stderrW,
		done:    make(chan struct{}),
	}
	t.procs.add(sig)

	ev.Kind = EventSpawnStart
	t.observer.SpawnStart(ev)

	go p.wait()
	return p, nil
}

func (p *Process) wait() {
	waitErr := p.cmd.Wait()
	_ = p.stdoutW.Close()
	_ = p.stderrW.Close()
	p.tool.procs.remove(p.sig)

	status := exitStatus(p.cmd.ProcessState)
	canceled := p.sig.Aborted()

	var err error
	if !succeeded(waitErr, p.cmd.ProcessState) {
		err = p.tool.Classify(failureOf(waitErr, status, "", "", canceled))
	}

	p.mu.Lock()
	p.status = status
	p.err = err
	p.waitErr = waitErr
	p.mu.Unlock()

	ev := p.event
	ev.Duration = time.Since(p.start)
	ev.Exit = &status
	ev.Kind = EventSpawnExit
	p.tool.observer.SpawnExit(ev)
	if err != nil && canceled {
		ev.Kind = EventSpawnError
		ev.Err = err
		p.tool.observer.SpawnError(ev)
	}

	p.release()
	close(p.done)
}

// Stdout streams the process's standard output.
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

// Stderr streams the process's standard error.
func (p *Process) Stderr() io.Reader {
	return p.stderr
}

// Done is closed once the process has terminated and its events were sent.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Signal is the abort scope governing this process.
func (p *Process) Signal() *abort.Signal {
	return p.sig
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Kill requests termination; SIGTERM first, a kill after the grace delay.
func (p *Process) Kill() {
	p.sig.Abort(ErrKilled)
}

// Wait blocks until the process terminates. The error is nil on a clean
// exit and a *classify.Error otherwise, classified without output text.
func (p *Process) Wait() (ExitStatus, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.err
}

// Result waits for termination and classifies the outcome using output
// text the caller collected from the streams.
func (p *Process) Result(stdout, stderr string) error {
	<-p.done
	p.mu.Lock()
	status, err, waitErr := p.status, p.err, p.waitErr
	p.mu.Unlock()
	if err == nil {
		return nil
	}
	return p.tool.Classify(failureOf(
		waitErr,
		status,
		strings.TrimSpace(stdout),
		strings.TrimSpace(stderr),
		p.sig.Aborted(),
	))
}

// Drain copies both streams into the given writers (nil discards) until the
// process exits, then waits for it.
func (p *Process) Drain(stdout, stderr io.Writer) (ExitStatus, error) {
	var g errgroup.Group
	g.Go(func() error { return copyStream(stdout, p.stdout) })
	g.Go(func() error { return copyStream(stderr, p.stderr) })
	copyErr := g.Wait()

	status, err := p.Wait()
	if err == nil && copyErr != nil {
		err = copyErr
	}
	return status, err
}

func copyStream(dst io.Writer, src io.Reader) error {
	if dst == nil {
		dst = io.Discard
	}
	if _, err := io.Copy(dst, src); err != nil {
		_, _ = io.Copy(io.Discard, src)
		return err
	}
	return nil
}
