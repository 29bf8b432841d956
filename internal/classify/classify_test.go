package classify

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/danmuck/devctl/internal/testutil/testlog"
)

func adbLike() *Classifier {
	return &Classifier{
		Tool:       "adb",
		Executable: "/opt/platform-tools/adb",
		Rules: []Rule{
			{Reason: Unauthorized, Match: StderrContains("device unauthorized")},
			{Reason: NoDevice, Match: OutputContains("no devices/emulators found", "device not found")},
		},
	}
}

func TestClassifyKilledByRemoteRequest(t *testing.T) {
	testlog.Start(t)
	err := adbLike().Classify(Failure{
		Err:      errors.New("exit status 1"),
		ExitCode: 1,
		Stderr:   "adb server killed by remote request",
	})
	if err.Reason != Killed {
		t.Fatalf("expected killed, got %q (%s)", err.Reason, err.Error())
	}
	if err.Error() != "killed" {
		t.Fatalf("message should be the bare label, got %q", err.Error())
	}
}

func TestClassifyCancellationWins(t *testing.T) {
	testlog.Start(t)
	err := adbLike().Classify(Failure{
		Err:      errors.New("signal: terminated"),
		Signal:   "SIGTERM",
		Stderr:   "error: device unauthorized",
		Canceled: true,
	})
	if err.Reason != Killed {
		t.Fatalf("cancelled failure must classify killed, got %q", err.Reason)
	}
	if !errors.Is(err, ErrKilled) {
		t.Fatalf("errors.Is should match ErrKilled")
	}
}

func TestClassifySignalTermination(t *testing.T) {
	testlog.Start(t)
	err := adbLike().Classify(Failure{Err: errors.New("signal: killed"), ExitCode: -1, Signal: "SIGKILL"})
	if err.Reason != Killed {
		t.Fatalf("expected killed, got %q", err.Reason)
	}
}

func TestClassifyRuleOrder(t *testing.T) {
	testlog.Start(t)
	err := adbLike().Classify(Failure{
		ExitCode: 1,
		Stderr:   "error: device unauthorized.\nerror: device not found",
	})
	if err.Reason != Unauthorized {
		t.Fatalf("specific rule should win, got %q", err.Reason)
	}
	if !errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNoDevice) {
		t.Fatalf("errors.Is should match by label only")
	}
}

func TestClassifyBaseChain(t *testing.T) {
	testlog.Start(t)
	specific := &Classifier{
		Rules: []Rule{{Reason: LowBattery, Match: StderrMatches(regexp.MustCompile(`(?i)battery.*low`))}},
		Base:  adbLike(),
	}
	if got := specific.Classify(Failure{Stderr: "Battery too low"}).Reason; got != LowBattery {
		t.Fatalf("expected low-battery, got %q", got)
	}
	if got := specific.Classify(Failure{Stdout: "no devices/emulators found"}).Reason; got != NoDevice {
		t.Fatalf("expected base rule no-device, got %q", got)
	}
	err := specific.Classify(Failure{Stderr: "something odd"})
	if err.Tool != "adb" {
		t.Fatalf("tool name should come from the base chain, got %q", err.Tool)
	}
}

func TestClassifyFallbackScrubsExecutable(t *testing.T) {
	testlog.Start(t)
	err := adbLike().Classify(Failure{
		Err:      fmt.Errorf("/opt/platform-tools/adb: exit status 3"),
		ExitCode: 3,
		Stderr:   "/opt/platform-tools/adb: unknown command",
	})
	if err.Reason != "" {
		t.Fatalf("expected no label, got %q", err.Reason)
	}
	want := `{"error":"adb: exit status 3","stderr":"adb: unknown command"}`
	if err.Error() != want {
		t.Fatalf("unexpected fallback\nwant: %s\ngot:  %s", want, err.Error())
	}
	if strings.Contains(err.Error(), "/opt/platform-tools") {
		t.Fatalf("fallback leaked executable path: %s", err.Error())
	}
	if err.Stderr != "/opt/platform-tools/adb: unknown command" {
		t.Fatalf("raw stderr should be preserved on the error value")
	}
}

func TestReasonOfWrapped(t *testing.T) {
	testlog.Start(t)
	wrapped := fmt.Errorf("flash boot: %w", &Error{Reason: BootloaderLocked})
	if got := ReasonOf(wrapped); got != BootloaderLocked {
		t.Fatalf("expected bootloader-locked, got %q", got)
	}
	if got := ReasonOf(errors.New("plain")); got != "" {
		t.Fatalf("expected empty reason, got %q", got)
	}
	if Unexpected("fastboot", "garbage").Error() != "unexpected-output" {
		t.Fatalf("unexpected-output message mismatch")
	}
}
