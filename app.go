package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/moosethebrown/tello-pilot-bridge/adapters/display"
	"github.com/moosethebrown/tello-pilot-bridge/adapters/httpapi"
	"github.com/moosethebrown/tello-pilot-bridge/adapters/input"
	"github.com/moosethebrown/tello-pilot-bridge/adapters/mqtt"
	"github.com/moosethebrown/tello-pilot-bridge/adapters/vision"
	"github.com/moosethebrown/tello-pilot-bridge/config"
	"github.com/moosethebrown/tello-pilot-bridge/core"
	"github.com/moosethebrown/tello-pilot-bridge/metrics"
	"github.com/moosethebrown/tello-pilot-bridge/protocol"
	"github.com/moosethebrown/tello-pilot-bridge/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type App struct {
	cfg            *config.Config
	logger         *zerolog.Logger
	registry       *prometheus.Registry
	client         *transport.Client
	engine         *protocol.Engine
	theCore        *core.Core
	inputAdapter   *input.Adapter
	displayAdapter *display.Adapter
	httpAdapter    *httpapi.Adapter
	mqttAdapter    *mqtt.Adapter
	wg             sync.WaitGroup
}

func NewApp(cfg *config.Config) (*App, error) {
	app := &App{
		cfg:      cfg,
		logger:   newLogger(cfg.LogLevel),
		registry: prometheus.NewRegistry(),
	}

	if err := app.init(); err != nil {
		return nil, err
	}

	return app, nil
}

func newLogger(level string) *zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		fmt.Printf("Invalid logLevel: %s, error: %s\n", level, err.Error())
		logLevel = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(logLevel)
	return &logger
}

// Prepare connects to the drone and starts its video stream.
// The session must be aborted when it fails.
func (app *App) Prepare() error {
	return app.theCore.Prepare()
}

func (app *App) Start() {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.theCore.Run()
	}()

	// a read blocked on stdin cannot be interrupted, so the input adapter
	// is not waited for
	go app.inputAdapter.Run()

	if app.displayAdapter != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.displayAdapter.Run()
		}()
	}

	if app.httpAdapter != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.httpAdapter.Run()
		}()
	}

	if app.mqttAdapter != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			err := app.mqttAdapter.Run()
			if err != nil {
				app.logger.Error().Err(err).Msg("mqtt adapter exited, remote operator unavailable")
			}
		}()
	}
}

// Done is closed when the control loop has ended the session.
func (app *App) Done() <-chan struct{} {
	return app.theCore.Done()
}

func (app *App) Stop() {
	if app.mqttAdapter != nil {
		app.mqttAdapter.Stop()
	}
	if app.httpAdapter != nil {
		app.httpAdapter.Stop()
	}
	if app.displayAdapter != nil {
		app.displayAdapter.Stop()
	}
	app.inputAdapter.Stop()
	app.theCore.Stop()
	app.wg.Wait()
	app.client.Close()
}

func (app *App) init() error {
	droneCfg := app.cfg.Drone
	trackerCfg := app.cfg.Tracker

	var err error
	app.client, err = transport.NewClient(droneCfg.Host, droneCfg.Port, droneCfg.LocalPort,
		droneCfg.BufferSize, time.Duration(droneCfg.ReplyTimeout)*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to open drone socket: %w", err)
	}

	m := metrics.New(app.registry)

	engineLogger := app.logger.With().Str("component", "protocol").Logger()
	app.engine = protocol.NewEngine(app.client, protocol.Timing{
		Attempts:       droneCfg.Attempts,
		AttemptTimeout: time.Duration(droneCfg.AttemptTimeout) * time.Millisecond,
		RCInterval:     time.Duration(droneCfg.RCInterval) * time.Millisecond,
	}, m, &engineLogger)

	coreLogger := app.logger.With().Str("component", "core").Logger()
	app.theCore = core.NewCore(app.engine, nil, nil, core.Settings{
		TickInterval:     time.Second / time.Duration(trackerCfg.TickRate),
		AnnounceInterval: time.Duration(app.cfg.AnnounceInterval) * time.Millisecond,
		Gains: core.Gains{
			LeftRight:   trackerCfg.LRGain,
			ForwardBack: trackerCfg.FBGain,
			UpDown:      trackerCfg.UDGain,
		},
		Speed:         droneCfg.Speed,
		MoveDistance:  trackerCfg.MoveDistance,
		RotateAngle:   trackerCfg.RotateAngle,
		VideoURL:      protocol.VideoURL(droneCfg.VideoPort),
		VectorTimeout: time.Duration(trackerCfg.VectorTimeout) * time.Millisecond,
	}, m, &coreLogger)

	inputLogger := app.logger.With().Str("component", "input").Logger()
	app.inputAdapter = input.NewAdapter(app.cfg.Input.SocketName, app.theCore, &inputLogger)

	if app.cfg.Display.SocketName != "" {
		displayLogger := app.logger.With().Str("component", "display").Logger()
		app.displayAdapter = display.NewAdapter(app.cfg.Display.SocketName,
			app.cfg.Display.QueueSize, &displayLogger)
		app.theCore.SetDisplay(app.displayAdapter)
	}

	if app.cfg.HTTP.Addr != "" {
		visionLogger := app.logger.With().Str("component", "vision").Logger()
		httpLogger := app.logger.With().Str("component", "http").Logger()
		app.httpAdapter = httpapi.NewAdapter(app.cfg.HTTP.Addr, app.theCore,
			vision.NewAdapter(app.theCore, &visionLogger), app.registry, &httpLogger)
	}

	if app.cfg.Mqtt.Enabled {
		mqttLogger := app.logger.With().Str("component", "mqtt").Logger()
		app.mqttAdapter = mqtt.NewAdapter(app.cfg.Mqtt.Broker,
			time.Duration(app.cfg.Mqtt.ConnTimeout)*time.Millisecond,
			app.cfg.Mqtt.Username,
			app.cfg.Mqtt.Password,
			app.cfg.Mqtt.DroneId,
			app.cfg.Mqtt.AnnounceTopic,
			time.Duration(app.cfg.Mqtt.AnnounceTimeout)*time.Millisecond,
			time.Duration(app.cfg.Mqtt.DisconnectTimeout)*time.Millisecond,
			app.cfg.Mqtt.CertCheck,
			app.theCore,
			&mqttLogger)
		app.theCore.SetMqttHandler(app.mqttAdapter)
	}

	return nil
}
