package ssh

import (
	"context"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

type SSHApiService interface {
	ExecuteCommand(ctx context.Context, command []string, stdOut io.Writer) (int, error)
}

type SSHApiServiceImpl struct {
	target  string
	sshPath string
}

func NewSSHApiService(target string) SSHApiService {
	return &SSHApiServiceImpl{target: target, sshPath: "ssh"}
}

func (s *SSHApiServiceImpl) ExecuteCommand(ctx context.Context, command []string, stdOut io.Writer) (int, error) {
	log.Infof("executing command: '%s' on device: '%s'", command, s.target)
	stdErr := new(Writer)

	executeCommandRequest := ExecCommandRequest{
		SSHPath: s.sshPath,
		Target:  s.target,
		Command: command,
		// stdin stays attached so the ssh binary can prompt for credentials.
		StdIn:  os.Stdin,
		StdOut: stdOut,
		StdErr: stdErr,
	}

	exitCode, err := RunSSHCommand(ctx, executeCommandRequest)
	if err != nil {
		log.WithError(err).Errorf("failed executing command: '%s', exitCode: '%d', stdErr: '%s'",
			command, exitCode, stdErr.Output)

		return exitCode, err
	}

	log.Infof("command: '%s' executed successfully, exitCode: '%d', stdErr: '%s'", command, exitCode, stdErr.Output)

	return exitCode, err
}
