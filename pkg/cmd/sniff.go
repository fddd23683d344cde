package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"rsniff/pkg/config"
	"rsniff/pkg/service/sniffer"
	"rsniff/pkg/service/viewer"
	"rsniff/pkg/ssh"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rsniffExample = "rsniff -d admin@10.1.1.100 -i eth1 -p 'port 5060'"

const remoteTcpdumpDefaultPath = "tcpdump"

// filter forced by viewer mode, the well-known SIP signaling port range
const signalingPortRangeFilter = "portrange 5060-5061"

const captureStartTimeFormat = "20060102_150405"

type Rsniff struct {
	settings       *config.RsniffSettings
	sshApiService  ssh.SSHApiService
	snifferService sniffer.SnifferService
	viewerService  viewer.ViewerService
	locateViewer   func() (string, error)
}

func NewRsniff(settings *config.RsniffSettings) *Rsniff {
	return &Rsniff{
		settings:     settings,
		locateViewer: viewer.FindViewerBinary,
	}
}

func NewCmdRsniff(settings *config.RsniffSettings) *cobra.Command {
	rsniff := NewRsniff(settings)

	cmd := &cobra.Command{
		Use:          "rsniff -d user@device [-i interface] [-p filter] [-s]",
		Short:        "Capture network traffic on a remote device over ssh.",
		Example:      rsniffExample,
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			if err := rsniff.Complete(c, args); err != nil {
				return err
			}
			if err := rsniff.Validate(); err != nil {
				return err
			}
			if err := rsniff.Run(); err != nil {
				return err
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&settings.UserSpecifiedDevice, "device", "d", "",
		"device to capture from, as user@host (required)")
	_ = viper.BindEnv("device", "RSNIFF_DEVICE")
	_ = viper.BindPFlag("device", cmd.Flags().Lookup("device"))

	cmd.Flags().StringVarP(&settings.UserSpecifiedInterface, "interface", "i", "any",
		"remote interface to packet capture (optional)")
	_ = viper.BindEnv("interface", "RSNIFF_INTERFACE")
	_ = viper.BindPFlag("interface", cmd.Flags().Lookup("interface"))

	cmd.Flags().StringVarP(&settings.UserSpecifiedFilter, "filter", "p", "",
		"tcpdump capture filter (optional)")
	_ = viper.BindEnv("filter", "RSNIFF_FILTER")
	_ = viper.BindPFlag("filter", cmd.Flags().Lookup("filter"))

	cmd.Flags().BoolVarP(&settings.UserSpecifiedViewerMode, "sngrep", "s", false,
		"stream the capture live into sngrep through a named pipe, forces the filter to the SIP signaling port range (optional)")
	_ = viper.BindEnv("sngrep", "RSNIFF_SNGREP")
	_ = viper.BindPFlag("sngrep", cmd.Flags().Lookup("sngrep"))

	cmd.Flags().StringVarP(&settings.UserSpecifiedRemoteTcpdumpPath, "tcpdump-path", "r", remoteTcpdumpDefaultPath,
		"remote tcpdump binary path (optional)")
	_ = viper.BindEnv("tcpdump-path", "RSNIFF_TCPDUMP_PATH")
	_ = viper.BindPFlag("tcpdump-path", cmd.Flags().Lookup("tcpdump-path"))

	cmd.Flags().BoolVarP(&settings.UserSpecifiedVerboseMode, "verbose", "v", false,
		"if specified, rsniff output will include debug information (optional)")
	_ = viper.BindEnv("verbose", "RSNIFF_VERBOSE")
	_ = viper.BindPFlag("verbose", cmd.Flags().Lookup("verbose"))

	return cmd
}

func (o *Rsniff) Complete(cmd *cobra.Command, args []string) error {
	o.settings.UserSpecifiedDevice = viper.GetString("device")
	o.settings.UserSpecifiedInterface = viper.GetString("interface")
	o.settings.UserSpecifiedFilter = viper.GetString("filter")
	o.settings.UserSpecifiedViewerMode = viper.GetBool("sngrep")
	o.settings.UserSpecifiedRemoteTcpdumpPath = viper.GetString("tcpdump-path")
	o.settings.UserSpecifiedVerboseMode = viper.GetBool("verbose")

	if o.settings.UserSpecifiedVerboseMode {
		log.Info("running in verbose mode")
		log.SetLevel(log.DebugLevel)
	}

	if o.settings.UserSpecifiedRemoteTcpdumpPath == "" {
		o.settings.UserSpecifiedRemoteTcpdumpPath = remoteTcpdumpDefaultPath
	}

	if o.settings.UserSpecifiedInterface == "" {
		o.settings.UserSpecifiedInterface = "any"
	}

	if o.settings.UserSpecifiedViewerMode {
		log.Infof("viewer mode requested, forcing filter to: '%s'", signalingPortRangeFilter)
		o.settings.UserSpecifiedFilter = signalingPortRangeFilter
	}

	o.settings.CaptureStartTime = time.Now().Format(captureStartTimeFormat)

	o.sshApiService = ssh.NewSSHApiService(o.settings.UserSpecifiedDevice)
	o.snifferService = sniffer.NewSSHSnifferService(o.settings, o.sshApiService)
	o.viewerService = viewer.NewLiveViewerService(o.settings)

	return nil
}

func (o *Rsniff) Validate() error {
	if o.settings.UserSpecifiedDevice == "" {
		return errors.New("need a device to sniff on, specify with: -d user@host")
	}

	if o.settings.UserSpecifiedViewerMode {
		viewerPath, err := o.locateViewer()
		if err != nil {
			return err
		}

		o.settings.DetectedViewerPath = viewerPath

		log.Infof("using viewer at: '%s'", viewerPath)
	}

	return nil
}

func (o *Rsniff) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Infof("sniffing on device: '%s' [interface: '%s', filter: '%s']",
		o.settings.UserSpecifiedDevice, o.settings.UserSpecifiedInterface, o.settings.UserSpecifiedFilter)

	err := o.snifferService.Setup()
	if err != nil {
		return err
	}

	defer func() {
		log.Info("starting sniffer cleanup")

		err := o.snifferService.Cleanup()
		if err != nil {
			log.WithError(err).Error("failed to teardown sniffer, a manual teardown is required.")
			return
		}

		log.Info("sniffer cleanup completed successfully")
	}()

	if o.settings.UserSpecifiedViewerMode {
		return o.streamToViewer(ctx, cancel)
	}

	return o.captureToFile(ctx)
}

func (o *Rsniff) captureToFile(ctx context.Context) error {
	if err := os.MkdirAll(config.CaptureDirName, 0755); err != nil {
		return errors.Wrapf(err, "failed to create capture directory: '%s'", config.CaptureDirName)
	}

	outputPath := buildCaptureFilePath(o.settings.UserSpecifiedDevice, o.settings.CaptureStartTime)

	log.Infof("storing capture in: '%s'", outputPath)

	fileWriter, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer fileWriter.Close()

	return o.snifferService.Start(ctx, fileWriter)
}

func (o *Rsniff) streamToViewer(ctx context.Context, cancel context.CancelFunc) error {
	if err := o.viewerService.Setup(); err != nil {
		return err
	}

	defer func() {
		if err := o.viewerService.Cleanup(); err != nil {
			log.WithError(err).Error("failed to remove named pipe, a manual removal may be required.")
		}
	}()

	streamDone := make(chan error, 1)

	go func() {
		// waits for the viewer to attach to the read end, gives up once the
		// context is canceled instead of blocking in the open forever
		pipe, err := viewer.OpenPipeForWriting(ctx, o.viewerService.PipePath())
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Error("failed to open named pipe for writing")
				cancel()
			}
			streamDone <- err
			return
		}
		defer pipe.Close()

		err = o.snifferService.Start(ctx, pipe)
		if err != nil && ctx.Err() == nil {
			log.WithError(err).Error("remote capture stream terminated, stopping viewer")
			cancel()
		}
		streamDone <- err
	}()

	log.Infof("spawning %s!", viewer.ViewerBinaryName)

	viewerErr := o.viewerService.Start(ctx)

	// the viewer is gone, tear down the remote stream and wait for it
	cancel()
	streamErr := <-streamDone

	if viewerErr != nil {
		if streamErr != nil {
			return streamErr
		}
		return viewerErr
	}

	return nil
}

func buildCaptureFilePath(device string, startTime string) string {
	return filepath.Join(config.CaptureDirName, fmt.Sprintf("%s_%s.pcap", device, startTime))
}
