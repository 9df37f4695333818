package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/alexjbarnes/halcyon/internal/config"
	"github.com/alexjbarnes/halcyon/internal/hub"
	"github.com/alexjbarnes/halcyon/internal/logging"
	"github.com/alexjbarnes/halcyon/internal/platform"
	"github.com/alexjbarnes/halcyon/internal/setup"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configFile string
	verbosity  int
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "halcyon",
		Short: "Home Assistant companion for desktop machines",
		Long: `halcyon registers this machine with a Home Assistant instance.

Run "halcyon setup" once with a config file containing ha.host. Setup
authorizes the device in the browser, stores a long-lived token and
registers the device and its sensors.`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to do, Goodbye")
			return nil
		},
	}

	root.SetVersionTemplate(`{{printf "halcyon version %s\n" .Version}}`)

	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "config file (default $HALCYON_CONFIG or config.yml)")
	root.PersistentFlags().CountVarP(&flags.verbosity, "verbose", "v", "increase log verbosity (repeatable)")

	root.AddCommand(newSetupCmd(flags), newReportCmd(flags))

	return root
}

func newSetupCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Authorize and register this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			return a.runner.Run(cmd.Context(), a.configFile)
		},
	}
}

func newReportCmd(flags *globalFlags) *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Push the sample sensor state once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			return a.runner.Report(cmd.Context(), a.configFile, value)
		},
	}

	cmd.Flags().StringVar(&value, "state", "ok", "state value to report")

	return cmd
}

// app is the wiring shared by the subcommands.
type app struct {
	runner     *setup.Runner
	configFile string
}

func newApp(flags *globalFlags, out io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, flags.verbosity)

	configFile := cfg.ConfigFile
	if flags.configFile != "" {
		configFile = flags.configFile
	}

	info := platform.Detect()

	logger.Debug("halcyon starting",
		slog.String("version", Version),
		slog.String("config", configFile),
		slog.String("node", info.Nodename),
	)

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	newClient := func(host string) (setup.HubClient, error) {
		c, err := hub.NewClient(host, cfg.ClientID, httpClient)
		if err != nil {
			return nil, err
		}

		return c, nil
	}

	waiter := &setup.BrowserWaiter{
		Addr:        cfg.CallbackAddr,
		Timeout:     cfg.CallbackTimeout,
		OpenBrowser: cfg.OpenBrowser,
		Out:         out,
		Logger:      logger,
	}

	negotiator := hub.NewNegotiator(hub.NegotiatorConfig{MessageTimeout: cfg.MessageTimeout}, logger)

	opts := setup.Options{
		CallbackAddr: cfg.CallbackAddr,
		ClientID:     cfg.ClientID,
		AppVersion:   Version,
		Platform:     info,
	}

	return &app{
		runner:     setup.NewRunner(opts, waiter, newClient, negotiator, out, logger),
		configFile: configFile,
	}, nil
}
