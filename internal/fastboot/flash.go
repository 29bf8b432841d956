package fastboot

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/danmuck/devctl/internal/progress"
)

// Image pairs a partition with the local file written to it.
type Image struct {
	Partition string
	File      string
}

// sendShare is the part of an image window spent on the transfer; the rest
// covers the device side write.
const sendShare = 0.3

var (
	phasePattern  = regexp.MustCompile(`^(Sending|Writing) (sparse )?'([^']*)'(?: (\d+)/(\d+))?`)
	failedPattern = regexp.MustCompile(`(?i)^FAILED|error:`)
)

// flashTracker maps one image's output onto its progress window.
type flashTracker struct {
	window   progress.Window
	phase    progress.Window
	reporter *progress.Reporter
	errs     *progress.ErrorText
}

func (f *flashTracker) line(line string) {
	if m := phasePattern.FindStringSubmatch(line); m != nil {
		window := f.window
		if m[2] != "" {
			chunk, _ := strconv.Atoi(m[4])
			chunks, _ := strconv.Atoi(m[5])
			if chunk > 0 && chunks > 0 {
				window = window.Item(chunk-1, chunks)
			}
		}
		if m[1] == "Sending" {
			f.phase = window.Span(0, sendShare)
		} else {
			f.phase = window.Span(sendShare, 1)
		}
		f.reporter.Report(f.phase.At(0))
		if strings.Contains(line, "OKAY") {
			f.reporter.Report(f.phase.End())
		}
		return
	}
	switch {
	case strings.HasPrefix(line, "OKAY"):
		f.reporter.Report(f.phase.End())
	case failedPattern.MatchString(line):
		f.errs.Add(line)
	}
}

// Flash writes each image in order. Image i of n reports inside
// [i/n, (i+1)/n]; fn sees 0 first and 1 only after every image succeeded,
// which for an empty list is immediately.
func (c *Client) Flash(ctx context.Context, images []Image, fn progress.Func) error {
	reporter := progress.NewReporter(fn)
	reporter.Start()

	for i, img := range images {
		if err := c.flashOne(ctx, img, progress.Full.Item(i, len(images)), reporter); err != nil {
			return err
		}
	}
	reporter.Finish()
	return nil
}

func (c *Client) flashOne(ctx context.Context, img Image, window progress.Window, reporter *progress.Reporter) error {
	tracker := &flashTracker{
		window:   window,
		phase:    window.Span(0, sendShare),
		reporter: reporter,
		errs:     &progress.ErrorText{},
	}
	p, err := c.tool.Spawn(ctx, "flash", img.Partition, img.File)
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
	reporter.Report(window.End())
	return nil
}
