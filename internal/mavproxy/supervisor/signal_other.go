//go:build !unix

package supervisor

import (
	"os"
	"os/exec"
)

func configureProcessGroup(*exec.Cmd) {}

func terminate(p *os.Process) error { return p.Kill() }

func kill(p *os.Process) error { return p.Kill() }
