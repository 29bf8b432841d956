// Package progress derives monotonic completion values from streamed tool output.
//
// Ownership boundary:
// - clamping, rounding and ordering of progress callbacks
//
// - offset/scale windows for composite operations
//
// - splitting incremental output into lines
//
// Tool specific line parsers live with each tool and feed a Reporter.
package progress

import (
	"math"
	"sync"
)

// Func receives progress values in [0, 1].
type Func func(float64)

// Precision is the number of decimal places reported values are truncated to.
const Precision = 2

// ceiling caps intermediate reports so that only Finish emits 1.
const ceiling = 0.99

// Reporter enforces the callback contract: one 0 first, one 1 last and a
// non-decreasing sequence in between.
type Reporter struct {
	mu       sync.Mutex
	fn       Func
	last     float64
	started  bool
	finished bool
}

func NewReporter(fn Func) *Reporter {
	return &Reporter{fn: fn}
}

// Start emits 0. Later calls are no-ops.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startLocked()
}

func (r *Reporter) startLocked() {
	if r.started {
		return
	}
	r.started = true
	r.last = 0
	r.emit(0)
}

// Report emits v after clamping and truncating, unless it would not advance
// the last emitted value.
func (r *Reporter) Report(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.startLocked()
	v = math.Min(Floor(Clamp(v)), ceiling)
	if v <= r.last {
		return
	}
	r.last = v
	r.emit(v)
}

// Finish emits 1 exactly once, starting first if nothing was reported.
func (r *Reporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.startLocked()
	r.finished = true
	r.last = 1
	r.emit(1)
}

// Last returns the most recent emitted value.
func (r *Reporter) Last() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Reporter) emit(v float64) {
	if r.fn != nil {
		r.fn(v)
	}
}

// Clamp limits v to [0, 1]. NaN becomes 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Floor truncates v to Precision decimal places so a reported value never
// passes the window end it was computed from. The small bias absorbs
// representation error (0.29*100 is 28.999...).
func Floor(v float64) float64 {
	scale := math.Pow(10, Precision)
	return math.Floor(v*scale+1e-9) / scale
}

// Window maps a local [0, 1] range onto [Offset, Offset+Scale].
type Window struct {
	Offset float64
	Scale  float64
}

// Full is the whole [0, 1] range.
var Full = Window{Offset: 0, Scale: 1}

// At maps local value v into the window.
func (w Window) At(v float64) float64 {
	return w.Offset + w.Scale*Clamp(v)
}

// Item returns the sub-window of item i out of n equally sized items.
func (w Window) Item(i, n int) Window {
	if n <= 0 {
		return Window{Offset: w.At(1)}
	}
	if i < 0 {
		i = 0
	}
	if i >= n {
		i = n - 1
	}
	size := w.Scale / float64(n)
	return Window{Offset: w.Offset + size*float64(i), Scale: size}
}

// Span returns the sub-window covering local range [from, to].
func (w Window) Span(from, to float64) Window {
	from, to = Clamp(from), Clamp(to)
	if to < from {
		to = from
	}
	return Window{Offset: w.At(from), Scale: w.Scale * (to - from)}
}

// End is the upper bound of the window.
func (w Window) End() float64 {
	return w.Offset + w.Scale
}
