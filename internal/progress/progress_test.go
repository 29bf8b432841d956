package progress

import (
	"math"
	"reflect"
	"testing"

	"github.com/danmuck/devctl/internal/testutil/testlog"
)

func record() (*[]float64, Func) {
	var got []float64
	return &got, func(v float64) { got = append(got, v) }
}

func TestReporterEmptyInput(t *testing.T) {
	testlog.Start(t)
	got, fn := record()
	r := NewReporter(fn)
	r.Start()
	r.Finish()
	r.Finish()

	if want := []float64{0, 1}; !reflect.DeepEqual(*got, want) {
		t.Fatalf("want %v, got %v", want, *got)
	}
}

func TestReporterFinishWithoutStart(t *testing.T) {
	testlog.Start(t)
	got, fn := record()
	NewReporter(fn).Finish()
	if want := []float64{0, 1}; !reflect.DeepEqual(*got, want) {
		t.Fatalf("want %v, got %v", want, *got)
	}
}

func TestReporterMonotonicAndRounded(t *testing.T) {
	testlog.Start(t)
	got, fn := record()
	r := NewReporter(fn)
	r.Start()
	for _, v := range []float64{0.1234, 0.1201, 0.05, -3, 0.5, 0.501, 0.999, 7} {
		r.Report(v)
	}
	r.Finish()
	r.Report(0.7)

	want := []float64{0, 0.12, 0.5, 0.99, 1}
	if !reflect.DeepEqual(*got, want) {
		t.Fatalf("want %v, got %v", want, *got)
	}
	for i := 1; i < len(*got); i++ {
		if (*got)[i] < (*got)[i-1] {
			t.Fatalf("sequence decreased at %d: %v", i, *got)
		}
	}
}

func TestReporterNilFunc(t *testing.T) {
	testlog.Start(t)
	r := NewReporter(nil)
	r.Start()
	r.Report(0.5)
	r.Finish()
	if r.Last() != 1 {
		t.Fatalf("expected last=1, got %v", r.Last())
	}
}

func TestWindowItemBounds(t *testing.T) {
	testlog.Start(t)
	const n = 3
	for i := 0; i < n; i++ {
		w := Full.Item(i, n)
		lo, hi := float64(i)/n, float64(i+1)/n
		if math.Abs(w.At(0)-lo) > 1e-9 || math.Abs(w.At(1)-hi) > 1e-9 {
			t.Fatalf("item %d window [%v,%v], want [%v,%v]", i, w.At(0), w.At(1), lo, hi)
		}
		if w.At(5) > hi+1e-9 || w.At(-1) < lo-1e-9 {
			t.Fatalf("item %d window not clamped", i)
		}
	}
}

func TestReporterKeepsItemsInsideWindows(t *testing.T) {
	testlog.Start(t)
	for _, n := range []int{3, 7} {
		var current int
		var bad []float64
		r := NewReporter(func(v float64) {
			if v > float64(current+1)/float64(n) {
				bad = append(bad, v)
			}
		})
		r.Start()
		for i := 0; i < n; i++ {
			current = i
			w := Full.Item(i, n)
			for _, phase := range []Window{w.Span(0, 0.3), w.Span(0.3, 1)} {
				for step := 0; step <= 10; step++ {
					r.Report(phase.At(float64(step) / 10))
				}
			}
			r.Report(w.End())
		}
		r.Finish()
		if len(bad) > 0 {
			t.Fatalf("n=%d: values past their item window: %v", n, bad)
		}
	}
}

func TestFloorTruncates(t *testing.T) {
	testlog.Start(t)
	cases := map[float64]float64{2.0 / 3: 0.66, 0.29: 0.29, 0.65: 0.65, 0.999: 0.99, 1.0 / 7: 0.14}
	for in, want := range cases {
		if got := Floor(in); math.Abs(got-want) > 1e-12 {
			t.Fatalf("Floor(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestWindowSpanSplit(t *testing.T) {
	testlog.Start(t)
	item := Full.Item(1, 2)
	sending := item.Span(0, 0.3)
	writing := item.Span(0.3, 1)

	if math.Abs(sending.Offset-0.5) > 1e-9 || math.Abs(sending.End()-0.65) > 1e-9 {
		t.Fatalf("unexpected sending window %+v", sending)
	}
	if math.Abs(writing.Offset-0.65) > 1e-9 || math.Abs(writing.End()-1) > 1e-9 {
		t.Fatalf("unexpected writing window %+v", writing)
	}

	chunk := writing.Item(1, 4)
	if chunk.Offset < writing.Offset || chunk.End() > writing.End()+1e-9 {
		t.Fatalf("chunk window escaped parent: %+v in %+v", chunk, writing)
	}
}

func TestWindowZeroItems(t *testing.T) {
	testlog.Start(t)
	w := Full.Item(0, 0)
	if w.Scale != 0 || w.Offset != 1 {
		t.Fatalf("expected empty window at end, got %+v", w)
	}
}

func TestLineWriterSplitsChunks(t *testing.T) {
	testlog.Start(t)
	var lines []string
	w := NewLineWriter(func(line string) { lines = append(lines, line) })

	chunks := []string{"Sending 'bo", "ot' (1 KB)\nOK", "AY\r 45%\r\n\n", "tail"}
	for _, c := range chunks {
		if _, err := w.Write([]byte(c)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := []string{"Sending 'boot' (1 KB)", "OKAY", "45%", "tail"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("want %q, got %q", want, lines)
	}
}

func TestErrorText(t *testing.T) {
	testlog.Start(t)
	var e ErrorText
	e.Add("error: one")
	e.Add("error: two")
	if e.String() != "error: one\nerror: two" {
		t.Fatalf("unexpected error text %q", e.String())
	}
}
