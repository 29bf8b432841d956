package observability

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/devctl/internal/classify"
	"github.com/danmuck/devctl/internal/testutil/testlog"
	"github.com/danmuck/devctl/internal/tools"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	before := testutil.ToFloat64(invocations.WithLabelValues("adb", "exec", "no-device"))
	RecordInvocation("adb", "exec", &classify.Error{Reason: classify.NoDevice}, 12*time.Millisecond)
	after := testutil.ToFloat64(invocations.WithLabelValues("adb", "exec", "no-device"))
	if after != before+1 {
		t.Fatalf("expected counter to advance by 1, got %v -> %v", before, after)
	}

	RecordInvocation("adb", "exec", errors.New("plain"), 0)
	if got := testutil.ToFloat64(invocations.WithLabelValues("adb", "exec", "error")); got < 1 {
		t.Fatalf("expected unlabelled failure counted as error, got %v", got)
	}
}

func TestMetricsObserverAndTextfile(t *testing.T) {
	testlog.Start(t)
	var obs tools.Observer = MetricsObserver{}
	obs.SpawnStart(tools.Event{Kind: tools.EventSpawnStart, Tool: "fastboot"})
	obs.SpawnExit(tools.Event{Kind: tools.EventSpawnExit, Tool: "fastboot", Exit: &tools.ExitStatus{Code: 0}, Duration: time.Second})

	path := filepath.Join(t.TempDir(), "devctl.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `devctl_tool_invocations_total{kind="spawn:start",outcome="ok",tool="fastboot"}`) {
		t.Fatalf("textfile missing spawn counter:\n%s", data)
	}
}

func TestLogObserverOmitsEmptyFields(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	obs := NewLogObserver(zerolog.New(&buf).Level(zerolog.DebugLevel))
	obs.Exec(tools.Event{Kind: tools.EventExec, Tool: "adb", Cmd: []string{"adb", "devices"}, Stdout: "List of devices attached"})

	line := buf.String()
	if !strings.Contains(line, `"kind":"exec"`) || !strings.Contains(line, `"cmd":["adb","devices"]`) {
		t.Fatalf("unexpected log line %s", line)
	}
	if strings.Contains(line, `"stderr"`) || strings.Contains(line, `"error"`) {
		t.Fatalf("empty fields should be omitted: %s", line)
	}

	buf.Reset()
	obs.SpawnError(tools.Event{Kind: tools.EventSpawnError, Tool: "adb", Err: &classify.Error{Reason: classify.Killed}})
	if !strings.Contains(buf.String(), `"level":"warn"`) || !strings.Contains(buf.String(), `"error":"killed"`) {
		t.Fatalf("failed event should log at warn with label: %s", buf.String())
	}
}
