package argsmodel

import (
	"errors"
	"reflect"
	"testing"

	"github.com/danmuck/devctl/internal/testutil/testlog"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema(
		Option{Name: "wipe", Flag: "-w", Default: false, Boolean: true},
		Option{Name: "slot", Flag: "--slot", Default: ""},
		Option{Name: "port", Flag: "-P", Default: 5037},
		Option{Name: "target", Flag: "-t", Default: "", OverrideKey: "slot"},
	)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

func TestCompileBooleanFlag(t *testing.T) {
	testlog.Start(t)
	s := MustSchema(Option{Name: "wipe", Flag: "-w", Default: false, Boolean: true})

	on, err := s.Merge(Config{"wipe": true})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if got := s.Compile(on); !reflect.DeepEqual(got, []string{"-w"}) {
		t.Fatalf("expected [-w], got %v", got)
	}

	off, err := s.Merge(Config{"wipe": false})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if got := s.Compile(off); len(got) != 0 {
		t.Fatalf("expected no args, got %v", got)
	}
}

func TestCompileFollowsDeclarationOrder(t *testing.T) {
	testlog.Start(t)
	s := testSchema(t)
	cfg, err := s.Merge(Config{"port": 5038, "wipe": true, "slot": "b"})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	got := s.Compile(cfg)
	want := []string{"-w", "--slot", "b", "-P", "5038"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected args\nwant: %v\ngot:  %v", want, got)
	}
	if again := s.Compile(cfg); !reflect.DeepEqual(got, again) {
		t.Fatalf("compile is not deterministic: %v vs %v", got, again)
	}
}

func TestCompileOmitsDefaults(t *testing.T) {
	testlog.Start(t)
	s := testSchema(t)
	cfg, err := s.Merge(Config{"port": int64(5037)})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if got := s.Compile(cfg); len(got) != 0 {
		t.Fatalf("defaults must be suppressed, got %v", got)
	}
}

func TestCompileOverrideKey(t *testing.T) {
	testlog.Start(t)
	s := testSchema(t)
	cfg, err := s.Merge(Config{"target": "x", "slot": "a"})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	got := s.Compile(cfg)
	want := []string{"--slot", "a", "-t", "a"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected args\nwant: %v\ngot:  %v", want, got)
	}
}

func TestMergeDoesNotMutateInput(t *testing.T) {
	testlog.Start(t)
	s := testSchema(t)
	overrides := Config{"wipe": true}
	cfg, err := s.Merge(overrides)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	cfg["slot"] = "b"
	if len(overrides) != 1 {
		t.Fatalf("overrides mutated: %v", overrides)
	}

	before := cfg.Clone()
	_ = s.Compile(cfg)
	if !reflect.DeepEqual(before, cfg) {
		t.Fatalf("compile mutated config")
	}
}

func TestMergeRejectsUnknownOption(t *testing.T) {
	testlog.Start(t)
	s := testSchema(t)
	if _, err := s.Merge(Config{"nope": 1}); !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("expected ErrUnknownOption, got %v", err)
	}
}

func TestSchemaValidation(t *testing.T) {
	testlog.Start(t)
	_, err := NewSchema(
		Option{Name: "a", Flag: "-a"},
		Option{Name: "a", Flag: "-b"},
	)
	if !errors.Is(err, ErrDuplicateOption) {
		t.Fatalf("expected ErrDuplicateOption, got %v", err)
	}
	if _, err := NewSchema(Option{Name: "a"}); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}

	dangling := MustSchema(Option{Name: "a", Flag: "-a", OverrideKey: "missing"})
	if _, err := dangling.Merge(nil); !errors.Is(err, ErrMissingOverride) {
		t.Fatalf("expected ErrMissingOverride, got %v", err)
	}
}

func TestAssembleFiltersEmptyOperationArgs(t *testing.T) {
	testlog.Start(t)
	got := Assemble([]string{"fixed"}, []string{"-w"}, "reboot", "", "bootloader")
	want := []string{"fixed", "-w", "reboot", "bootloader"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected args\nwant: %v\ngot:  %v", want, got)
	}

	got = AssembleActionFirst(nil, []string{"--no-reboot"}, "", "flash", "--BOOT", "boot.img")
	want = []string{"flash", "--no-reboot", "--BOOT", "boot.img"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected action-first args\nwant: %v\ngot:  %v", want, got)
	}
}
