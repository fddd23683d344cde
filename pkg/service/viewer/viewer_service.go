package viewer

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"rsniff/pkg/config"
	"rsniff/utils"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const ViewerBinaryName = "sngrep"

const pipeAttachTimeout = 2 * time.Second

const pipeOpenRetryDelay = 100 * time.Millisecond

type ViewerService interface {
	// Create the named pipe the viewer will read from
	Setup() error

	// Remove the named pipe
	Cleanup() error

	// Run the viewer in the foreground, attached to the named pipe
	Start(ctx context.Context) error

	PipePath() string
}

type LiveViewerService struct {
	settings *config.RsniffSettings
	pipePath string
}

func NewLiveViewerService(options *config.RsniffSettings) ViewerService {
	return &LiveViewerService{
		settings: options,
		pipePath: filepath.Join(config.CaptureDirName, options.UserSpecifiedDevice),
	}
}

func (v *LiveViewerService) PipePath() string {
	return v.pipePath
}

func (v *LiveViewerService) Setup() error {
	if err := os.MkdirAll(config.CaptureDirName, 0755); err != nil {
		return errors.Wrapf(err, "failed to create capture directory: '%s'", config.CaptureDirName)
	}

	if _, err := os.Stat(v.pipePath); err == nil {
		log.Warnf("removing stale named pipe: '%s'", v.pipePath)

		if err := os.Remove(v.pipePath); err != nil {
			return errors.Wrapf(err, "failed to remove stale named pipe: '%s'", v.pipePath)
		}
	}

	if err := unix.Mkfifo(v.pipePath, 0600); err != nil {
		return errors.Wrapf(err, "failed to create named pipe: '%s'", v.pipePath)
	}

	log.Infof("named pipe created: '%s'", v.pipePath)

	return nil
}

func (v *LiveViewerService) Cleanup() error {
	log.Infof("removing named pipe: '%s'", v.pipePath)

	if err := os.Remove(v.pipePath); err != nil {
		return errors.Wrapf(err, "failed to remove named pipe: '%s'", v.pipePath)
	}

	log.Info("named pipe removed successfully")

	return nil
}

func (v *LiveViewerService) Start(ctx context.Context) error {
	pipeExists := func() bool {
		_, err := os.Stat(v.pipePath)
		return err == nil
	}

	// refuse to attach to a pipe that was never created, a blocked open
	// would hang silently instead
	if !utils.RunWhileFalse(pipeExists, pipeAttachTimeout, 100*time.Millisecond) {
		return errors.Errorf("named pipe: '%s' does not exist, cannot attach viewer", v.pipePath)
	}

	log.Infof("starting %s on: '%s'", ViewerBinaryName, v.pipePath)

	cmd := exec.CommandContext(ctx, v.settings.DetectedViewerPath, "-I", v.pipePath)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}

// OpenPipeForWriting opens the write end of the named pipe. A blocking FIFO
// open cannot be interrupted by context cancellation, so the open is
// attempted in non-blocking mode and retried until the viewer attaches a
// reader or the context is canceled.
func OpenPipeForWriting(ctx context.Context, pipePath string) (*os.File, error) {
	for {
		fd, err := unix.Open(pipePath, unix.O_WRONLY|unix.O_NONBLOCK, 0)
		if err == nil {
			// writes should block again once the reader is attached
			if err := unix.SetNonblock(fd, false); err != nil {
				_ = unix.Close(fd)
				return nil, errors.Wrapf(err, "failed to open named pipe: '%s'", pipePath)
			}

			return os.NewFile(uintptr(fd), pipePath), nil
		}

		if err != unix.ENXIO && err != unix.EINTR {
			return nil, errors.Wrapf(err, "failed to open named pipe: '%s'", pipePath)
		}

		select {
		case <-ctx.Done():
			return nil, errors.Errorf("no viewer attached to named pipe: '%s'", pipePath)
		case <-time.After(pipeOpenRetryDelay):
		}
	}
}

// FindViewerBinary resolves the sngrep binary, first on PATH and then on a
// fixed lookup list of conventional install locations.
func FindViewerBinary() (string, error) {
	if path, err := exec.LookPath(ViewerBinaryName); err == nil {
		return path, nil
	}

	lookupList, err := buildViewerBinaryPathLookupList()
	if err != nil {
		return "", err
	}

	return FindViewerBinaryIn(lookupList)
}

func FindViewerBinaryIn(lookupList []string) (string, error) {
	log.Debugf("searching for viewer binary using lookup list: '%v'", lookupList)

	for _, possibleViewerPath := range lookupList {
		if _, err := os.Stat(possibleViewerPath); err == nil {
			log.Debugf("viewer binary found at: '%s'", possibleViewerPath)

			return possibleViewerPath, nil
		}

		log.Debugf("viewer binary was not found at: '%s'", possibleViewerPath)
	}

	return "", errors.Errorf("couldn't find '%s' on any of: '%v', "+
		"install it with your package manager (e.g. 'apt-get install sngrep' or 'brew install sngrep')",
		ViewerBinaryName, lookupList)
}

func buildViewerBinaryPathLookupList() ([]string, error) {
	userHomeDir, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	return []string{
		filepath.Join(userHomeDir, ".local", "bin", ViewerBinaryName),
		filepath.Join("/usr/local/bin", ViewerBinaryName),
		filepath.Join("/usr/bin", ViewerBinaryName),
	}, nil
}
