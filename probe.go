package main

import (
	"fmt"
	"io"
	"time"

	"github.com/moosethebrown/tello-pilot-bridge/config"
	"github.com/moosethebrown/tello-pilot-bridge/protocol"
	"github.com/moosethebrown/tello-pilot-bridge/transport"
	"github.com/spf13/cobra"
)

func probeCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Enter command mode and print every telemetry value",
		Long: `Probe connects to the drone, enters SDK command mode and runs every
telemetry query once. Nothing that makes the drone move is sent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig(*configFile)
			if err != nil {
				return fmt.Errorf("error reading config: %w", err)
			}
			return probe(cfg, cmd.OutOrStdout())
		},
	}
}

func probe(cfg *config.Config, out io.Writer) error {
	logger := newLogger(cfg.LogLevel).With().Str("component", "probe").Logger()

	replyTimeout := time.Duration(cfg.Drone.ReplyTimeout) * time.Millisecond
	if replyTimeout == 0 {
		// probing an absent drone must not hang
		replyTimeout = time.Second
	}

	client, err := transport.NewClient(cfg.Drone.Host, cfg.Drone.Port, cfg.Drone.LocalPort,
		cfg.Drone.BufferSize, replyTimeout)
	if err != nil {
		return fmt.Errorf("failed to open drone socket: %w", err)
	}
	defer client.Close()

	engine := protocol.NewEngine(client, protocol.Timing{
		Attempts:       cfg.Drone.Attempts,
		AttemptTimeout: time.Duration(cfg.Drone.AttemptTimeout) * time.Millisecond,
		RCInterval:     time.Duration(cfg.Drone.RCInterval) * time.Millisecond,
	}, nil, &logger)

	if res := engine.Connect(); !res.OK() {
		return fmt.Errorf("failed to connect to %s: %w", client.Peer(), res.Err())
	}

	for _, name := range protocol.Queries {
		res, _ := engine.GetTelemetry(name)
		if err := res.Err(); err != nil {
			fmt.Fprintf(out, "%-9s %s\n", name, err)
			continue
		}
		fmt.Fprintf(out, "%-9s %s\n", name, res.Reply)
	}

	return nil
}
