package heimdall

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/danmuck/devctl/internal/progress"
)

// Image pairs a PIT partition name with the file uploaded to it.
type Image struct {
	Partition string
	File      string
}

var percentPattern = regexp.MustCompile(`^(\d{1,3})%$`)

// flashTracker follows upload markers on both streams, so it is locked.
type flashTracker struct {
	mu       sync.Mutex
	parts    []string
	item     int
	reporter *progress.Reporter
	errs     progress.ErrorText
}

func (f *flashTracker) window() progress.Window {
	return progress.Full.Item(f.item, len(f.parts))
}

func (f *flashTracker) line(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if part, ok := strings.CutPrefix(line, "Uploading "); ok {
		next := f.item + 1
		for i := f.item + 1; i < len(f.parts); i++ {
			if strings.EqualFold(f.parts[i], strings.TrimSpace(part)) {
				next = i
				break
			}
		}
		if f.item >= 0 {
			f.reporter.Report(f.window().End())
		}
		f.item = min(next, len(f.parts)-1)
		f.reporter.Report(f.window().At(0))
		return
	}
	if m := percentPattern.FindStringSubmatch(line); m != nil {
		if f.item < 0 {
			return
		}
		pct, _ := strconv.Atoi(m[1])
		f.reporter.Report(f.window().At(float64(pct) / 100))
		return
	}
	if strings.HasPrefix(line, "ERROR:") {
		f.errs.Add(line)
	}
}

// Flash uploads every image in one session. Image i of n reports inside
// [i/n, (i+1)/n]. No images reports 0 and 1 without running heimdall.
func (c *Client) Flash(ctx context.Context, images []Image, fn progress.Func) error {
	op := []string{"flash"}
	parts := make([]string, 0, len(images))
	for _, img := range images {
		op = append(op, "--"+img.Partition, img.File)
		parts = append(parts, img.Partition)
	}

	tracker := &flashTracker{parts: parts, item: -1, reporter: progress.NewReporter(fn)}
	tracker.reporter.Start()
	if len(images) == 0 {
		tracker.reporter.Finish()
		return nil
	}

	p, err := c.tool.Spawn(ctx, op...)
	if err != nil {
		return err
	}
	stdout := progress.NewLineWriter(tracker.line)
	stderr := progress.NewLineWriter(tracker.line)
	_, waitErr := p.Drain(stdout, stderr)
	_ = stdout.Close()
	_ = stderr.Close()
	if waitErr != nil {
		if err := p.Result("", tracker.errs.String()); err != nil {
			return err
		}
		return waitErr
	}
	tracker.reporter.Finish()
	return nil
}
