package ssh

import (
	"context"
	"io"
	"os/exec"
)

type ExecCommandRequest struct {
	SSHPath string
	Target  string
	Command []string
	StdIn   io.Reader
	StdOut  io.Writer
	StdErr  io.Writer
}

func (w *Writer) Write(p []byte) (n int, err error) {
	str := string(p)
	if len(str) > 0 {
		w.Output += str
	}
	return len(str), nil
}

type Writer struct {
	Output string
}

// RunSSHCommand spawns a single ssh child process running the given command
// on the remote side and blocks until it exits or the context is canceled.
// A non-zero remote exit is reported through the exit code, not the error.
func RunSSHCommand(ctx context.Context, req ExecCommandRequest) (int, error) {
	args := append([]string{req.Target}, req.Command...)

	cmd := exec.CommandContext(ctx, req.SSHPath, args...)
	cmd.Stdin = req.StdIn
	cmd.Stdout = req.StdOut
	cmd.Stderr = req.StdErr

	err := cmd.Run()

	var exitCode = 0

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			err = nil
		}
	}

	return exitCode, err
}
