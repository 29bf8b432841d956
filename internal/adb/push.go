package adb

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/danmuck/devctl/internal/progress"
)

// traceEnv turns on the read/write trace channel push progress is read from.
var traceEnv = map[string]string{"ADB_TRACE": "rwx"}

var lenPattern = regexp.MustCompile(`len=(\d+)`)

// pushTracker turns adb trace output into byte counts. Lines without the
// source tag are real stderr and are kept for classification.
type pushTracker struct {
	total    int64
	pushed   int64
	reporter *progress.Reporter
	errs     progress.ErrorText
}

func (p *pushTracker) line(line string) {
	if !strings.Contains(line, ".cpp") {
		p.errs.Add(line)
		return
	}
	if !strings.Contains(line, "writex") {
		return
	}
	m := lenPattern.FindStringSubmatch(line)
	if m == nil {
		return
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return
	}
	p.pushed += n
	if p.total > 0 {
		p.reporter.Report(float64(p.pushed) / float64(p.total))
	}
}

// Push copies local files to dest on the device. fn (may be nil) receives
// 0 first, a non-decreasing byte ratio while the transfer runs and 1 once it
// succeeds. An empty file list reports 0 and 1 without running adb.
func (c *Client) Push(ctx context.Context, files []string, dest string, fn progress.Func) error {
	var total int64
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return fmt.Errorf("adb: push %s: %w", f, err)
		}
		total += info.Size()
	}

	tracker := &pushTracker{total: total, reporter: progress.NewReporter(fn)}
	tracker.reporter.Start()
	if len(files) == 0 {
		tracker.reporter.Finish()
		return nil
	}

	op := append([]string{"push"}, files...)
	op = append(op, dest)
	p, err := c.tool.WithEnv(traceEnv).Spawn(ctx, op...)
	if err != nil {
		return err
	}

	var stdout bytes.Buffer
	lines := progress.NewLineWriter(tracker.line)
	_, waitErr := p.Drain(&stdout, lines)
	_ = lines.Close()
	if waitErr != nil {
		if err := p.Result(stdout.String(), tracker.errs.String()); err != nil {
			return err
		}
		return waitErr
	}
	tracker.reporter.Finish()
	return nil
}
