package sniffer

import (
	"context"
	"io"

	"rsniff/pkg/config"
	"rsniff/pkg/ssh"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type SSHSnifferService struct {
	settings      *config.RsniffSettings
	sshApiService ssh.SSHApiService
}

func NewSSHSnifferService(options *config.RsniffSettings, service ssh.SSHApiService) SnifferService {
	return &SSHSnifferService{settings: options, sshApiService: service}
}

func (s *SSHSnifferService) Setup() error {
	log.Infof("sniffing method: tcpdump over ssh [device: '%s']", s.settings.UserSpecifiedDevice)
	return nil
}

func (s *SSHSnifferService) Cleanup() error {
	// the remote tcpdump dies with the ssh channel, nothing is left behind
	return nil
}

func buildTcpdumpCommand(tcpdumpPath string, netInterface string, filter string) []string {
	command := []string{tcpdumpPath, "-i", netInterface, "-U", "-s", "0", "-w", "-"}
	if filter != "" {
		command = append(command, filter)
	}
	return command
}

func (s *SSHSnifferService) Start(ctx context.Context, stdOut io.Writer) error {
	log.Info("start sniffing on remote device")

	command := buildTcpdumpCommand(s.settings.UserSpecifiedRemoteTcpdumpPath,
		s.settings.UserSpecifiedInterface, s.settings.UserSpecifiedFilter)

	exitCode, err := s.sshApiService.ExecuteCommand(ctx, command, stdOut)
	if err != nil || exitCode != 0 {
		return errors.Errorf("executing sniffer failed, exit code: '%d'", exitCode)
	}

	log.Infof("done sniffing on remote device")

	return nil
}
