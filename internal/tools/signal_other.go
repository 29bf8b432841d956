//go:build !unix

package tools

import "os"

func signalName(*os.ProcessState) string {
	return ""
}

func terminate(p *os.Process) error {
	return p.Kill()
}
