// Package fakebin writes throwaway shell scripts that stand in for the
// wrapped device tools in tests.
package fakebin

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// Write creates an executable /bin/sh script named name holding body and
// returns its path. Tests are skipped where /bin/sh is unavailable.
func Write(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake executables require /bin/sh")
	}
	path := filepath.Join(t.TempDir(), name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake %s: %v", name, err)
	}
	return path
}

// Echo is a script printing its arguments on one line.
const Echo = `echo "$@"`
