// Command fieldsync runs and inspects the offline field-service sync core.
package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

type rootOptions struct {
	configPath string
	offline    bool
	cellular   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "fieldsync",
		Short:         "Offline-first sync for field service work orders",
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "path to a config file (YAML, TOML or JSON)")
	f.BoolVar(&opts.offline, "offline", false, "treat the device as offline")
	f.BoolVar(&opts.cellular, "cellular", false, "treat the connection as metered; photo files are not transferred")

	root.AddCommand(
		newSyncCmd(opts),
		newStatusCmd(opts),
		newDiagnosticsCmd(opts),
		newDaemonCmd(opts),
		newQueueCmd(opts),
		newConflictsCmd(opts),
		newQuickLogCmd(opts),
	)
	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		printer{w: color.Error}.errorf("%s", err)
		os.Exit(1)
	}
}
