package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"

	"github.com/moosethebrown/tello-pilot-bridge/config"
	"github.com/spf13/cobra"
)

// set at build time
var version = "dev"

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "tello-pilot-bridge",
		Short: "Fly a Tello drone from key events and a visual tracking signal",
		Long: `tello-pilot-bridge drives a Tello drone over its text SDK.

Discrete key events (locally or from an MQTT operator) become acknowledged
flight commands; in tracking mode direction vectors from a vision provider
become a paced rc velocity stream.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(configFile)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c",
		"/etc/tello-pilot-bridge.conf", "path to configuration file")

	rootCmd.AddCommand(
		runCmd(&configFile),
		probeCmd(&configFile),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func runCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start a flight session (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(*configFile)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tello-pilot-bridge %s (%s %s/%s)\n", version,
				runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

func runSession(configFile string) error {
	cfg, err := config.NewConfig(configFile)
	if err != nil {
		return fmt.Errorf("error reading config: %w", err)
	}

	app, err := NewApp(cfg)
	if err != nil {
		return err
	}

	if err := app.Prepare(); err != nil {
		app.Stop()
		return err
	}

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt)

	app.Start()

	select {
	case <-sigch:
	case <-app.Done():
	}
	app.Stop()

	return nil
}
