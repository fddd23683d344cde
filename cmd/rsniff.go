package main

import (
	"os"

	"rsniff/pkg/cmd"
	"rsniff/pkg/config"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("rsniff", pflag.ExitOnError)
	pflag.CommandLine = flags

	root := cmd.NewCmdRsniff(config.NewRsniffSettings())

	if len(os.Args) < 2 {
		log.Error("no options specified")
		_ = root.Usage()
		os.Exit(1)
	}

	// usage requests exit non-zero, so scripts can't mistake them for a
	// completed capture
	helpRequested := false
	defaultHelpFunc := root.HelpFunc()
	root.SetHelpFunc(func(c *cobra.Command, args []string) {
		helpRequested = true
		defaultHelpFunc(c, args)
	})

	if err := root.Execute(); err != nil || helpRequested {
		os.Exit(1)
	}
}
