package core

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/moosethebrown/tello-pilot-bridge/metrics"
	"github.com/moosethebrown/tello-pilot-bridge/protocol"
	"github.com/rs/zerolog"
)

type Drone interface {
	Connect() protocol.Result
	SetSpeed(x int) protocol.Result
	StreamOn() protocol.Result
	StreamOff() protocol.Result
	Takeoff() protocol.Result
	Land() protocol.Result
	Move(direction protocol.Direction, distance int) protocol.Result
	RotateCW(degrees int) protocol.Result
	RotateCCW(degrees int) protocol.Result
	MoveWithVelocities(lr, fb, ud, yaw int) protocol.Result
	Stop() protocol.Result
	GetTelemetry(name string) (protocol.Result, bool)
	End() error
}

type Display interface {
	Update(*Status)
}

type MqttHandler interface {
	SendResponse([]byte)
	Announce()
}

type Settings struct {
	TickInterval     time.Duration
	AnnounceInterval time.Duration
	Gains            Gains
	Speed            int
	MoveDistance     int
	RotateAngle      int
	VideoURL         string
	// VectorTimeout is how long the last direction vector stays valid
	// without a new one; zero keeps it until replaced.
	VectorTimeout time.Duration
}

// Core arbitrates the manual and tracking command sources into the single
// command stream of one Drone. Everything that talks to the drone runs on
// the Run goroutine.
type Core struct {
	drone       Drone
	display     Display
	mqttHandler MqttHandler
	settings    Settings
	metrics     *metrics.Metrics
	logger      *zerolog.Logger
	keyChan     chan Key
	vecChan     chan DirectionVector
	rqChan      chan *Request
	stopChan    chan bool
	doneChan    chan struct{}

	mode        Mode
	airborne    bool
	tick        uint64
	vector      DirectionVector
	vectorAge   int
	velocity    VelocityIntent
	lastCommand string
	lastStatus  string

	statusMu sync.RWMutex
	status   Status
}

func NewCore(drone Drone, display Display, mqttHandler MqttHandler,
	settings Settings, m *metrics.Metrics, logger *zerolog.Logger) *Core {
	return &Core{
		drone:       drone,
		display:     display,
		mqttHandler: mqttHandler,
		settings:    settings,
		metrics:     m,
		logger:      logger,
		keyChan:     make(chan Key, 100),
		vecChan:     make(chan DirectionVector, 1),
		rqChan:      make(chan *Request, 100),
		stopChan:    make(chan bool, 1),
		doneChan:    make(chan struct{}),
	}
}

func (c *Core) SetDisplay(display Display) {
	c.display = display
}

func (c *Core) SetMqttHandler(handler MqttHandler) {
	c.mqttHandler = handler
}

// Prepare enters command mode, sets the speed and restarts the video
// stream. An error means the session must not start.
func (c *Core) Prepare() error {
	if res := c.drone.Connect(); !res.OK() {
		return fmt.Errorf("failed to connect: %w", res.Err())
	}
	c.logger.Info().Msg("connected")

	if res := c.drone.SetSpeed(c.settings.Speed); !res.OK() {
		return fmt.Errorf("failed to set speed: %w", res.Err())
	}
	c.logger.Info().Int("speed", c.settings.Speed).Msg("speed set")

	if res := c.drone.StreamOff(); !res.OK() {
		return fmt.Errorf("failed to stop video stream: %w", res.Err())
	}
	if res := c.drone.StreamOn(); !res.OK() {
		return fmt.Errorf("failed to start video stream: %w", res.Err())
	}
	c.logger.Info().Str("url", c.settings.VideoURL).Msg("video stream started")

	c.publish()
	return nil
}

// HandleKey queues an input event for the control loop.
func (c *Core) HandleKey(k Key) {
	c.keyChan <- k
}

// HandleDirection offers the latest direction vector to the control loop.
// An unconsumed older vector is discarded.
func (c *Core) HandleDirection(v DirectionVector) {
	v = v.Normalized()
	for {
		select {
		case c.vecChan <- v:
			return
		default:
		}

		select {
		case <-c.vecChan:
			c.metrics.VectorDropped()
		default:
		}
	}
}

// HandleRequest parses a remote operator request and queues it.
func (c *Core) HandleRequest(msg []byte) {
	var rq Request

	err := json.Unmarshal(msg, &rq)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to unmarshal request")
		return
	}

	c.rqChan <- &rq
}

// Snapshot returns the most recently published status.
func (c *Core) Snapshot() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

// Done is closed once Run has returned and the drone session was ended.
func (c *Core) Done() <-chan struct{} {
	return c.doneChan
}

func (c *Core) Run() {
	defer close(c.doneChan)
	defer c.end()

	ticker := time.NewTicker(c.settings.TickInterval)
	defer ticker.Stop()

	var announce <-chan time.Time
	if c.mqttHandler != nil && c.settings.AnnounceInterval > 0 {
		announceTicker := time.NewTicker(c.settings.AnnounceInterval)
		defer announceTicker.Stop()
		announce = announceTicker.C
	}

core_loop:
	for {
		select {
		case k := <-c.keyChan:
			if !c.handleKey(k) {
				break core_loop
			}
		case rq := <-c.rqChan:
			c.handleRequest(rq)
		case <-ticker.C:
			c.step()
		case <-announce:
			c.mqttHandler.Announce()
		case <-c.stopChan:
			break core_loop
		}
	}
}

func (c *Core) Stop() {
	select {
	case c.stopChan <- true:
	default:
	}
}

func (c *Core) end() {
	c.logger.Info().Msg("ending drone session")
	if err := c.drone.End(); err != nil {
		c.logger.Error().Err(err).Msg("failed to end drone session")
	}
}

// step runs one control tick: in tracking mode the latest direction vector
// becomes the rc velocity, sent through the paced streaming command.
func (c *Core) step() {
	c.tick++
	c.metrics.Tick()

	// the last vector holds until the provider sends a new one or goes silent
	select {
	case c.vector = <-c.vecChan:
		c.vectorAge = 0
	default:
		c.vectorAge++
		if c.vectorExpired() {
			c.vector = DirectionVector{}
		}
	}

	if c.mode == ModeTracking {
		c.velocity = IntentFromVector(c.vector, c.settings.Gains)
		if c.airborne {
			res := c.drone.MoveWithVelocities(c.velocity.LeftRight, c.velocity.ForwardBack,
				c.velocity.UpDown, c.velocity.Yaw)
			if res.Status != protocol.StatusRateLimited {
				c.record(res)
			}
		}
	}

	c.publish()
}

func (c *Core) vectorExpired() bool {
	timeout := c.settings.VectorTimeout
	if timeout <= 0 || c.vector == (DirectionVector{}) {
		return false
	}
	return time.Duration(c.vectorAge)*c.settings.TickInterval >= timeout
}

// handleKey returns false when the loop has to terminate.
func (c *Core) handleKey(k Key) bool {
	switch k {
	case KeyQuit:
		c.logger.Info().Msg("quit requested")
		return false
	case KeyTakeoff:
		c.logger.Info().Msg("taking off")
		res := c.drone.Takeoff()
		c.record(res)
		if res.OK() {
			c.airborne = true
		}
	case KeyLand:
		c.logger.Info().Msg("landing")
		res := c.drone.Land()
		c.record(res)
		// a drone that did not acknowledge landing is still flying
		if res.OK() {
			c.airborne = false
		}
	case KeyToggleMode:
		c.toggleMode()
	case KeyUp, KeyDown, KeyLeft, KeyRight, KeyForward, KeyBack:
		if c.ignoredInTracking(k) {
			return true
		}
		c.record(c.drone.Move(moveDirections[k], c.settings.MoveDistance))
	case KeyRotateCW:
		if c.ignoredInTracking(k) {
			return true
		}
		c.record(c.drone.RotateCW(c.settings.RotateAngle))
	case KeyRotateCCW:
		if c.ignoredInTracking(k) {
			return true
		}
		c.record(c.drone.RotateCCW(c.settings.RotateAngle))
	default:
		c.logger.Debug().Msgf("unmapped key: %q", rune(k))
		return true
	}

	c.publish()
	return true
}

var moveDirections = map[Key]protocol.Direction{
	KeyUp:      protocol.Up,
	KeyDown:    protocol.Down,
	KeyLeft:    protocol.Left,
	KeyRight:   protocol.Right,
	KeyForward: protocol.Forward,
	KeyBack:    protocol.Back,
}

func (c *Core) ignoredInTracking(k Key) bool {
	if c.mode != ModeTracking {
		return false
	}
	c.logger.Warn().Msgf("key %q ignored in tracking mode", rune(k))
	return true
}

// toggleMode is the only way to change the flight mode. Leaving tracking
// always zeroes the velocities with an unpaced stop.
func (c *Core) toggleMode() {
	if c.mode == ModeTracking {
		c.mode = ModeManual
		c.velocity = VelocityIntent{}
		c.record(c.drone.Stop())
	} else {
		c.mode = ModeTracking
	}

	c.metrics.FlightMode(c.mode == ModeTracking)
	c.logger.Info().Str("mode", c.mode.String()).Msg("flight mode changed")
}

func (c *Core) handleRequest(rq *Request) {
	if rq.Type == RequestTypeCmd {
		key, ok := commandKeys[rq.Cmd]
		if !ok {
			c.logger.Error().Msgf("unknown command: %s", rq.Cmd)
			return
		}
		c.handleKey(key)
	} else if rq.Type == RequestTypeQuery {
		c.handleQuery(rq.Cmd)
	} else {
		c.logger.Error().Msgf("unknown request type: %s", rq.Type)
	}
}

func (c *Core) handleQuery(name string) {
	if c.mqttHandler == nil {
		return
	}

	resp := &TelemetryResponse{Query: name}
	if name == QueryStatus {
		status := c.Snapshot()
		resp.Status = protocol.StatusOK.String()
		resp.State = &status
	} else if res, ok := c.drone.GetTelemetry(name); !ok {
		resp.Status = "unknown_query"
	} else {
		resp.Status = res.Status.String()
		resp.Value = res.Reply
		if err := res.Err(); err != nil {
			resp.Error = err.Error()
		}
	}

	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal telemetry response")
		return
	}
	c.mqttHandler.SendResponse(data)
}

func (c *Core) record(res protocol.Result) {
	c.lastCommand = res.Command
	c.lastStatus = res.Status.String()
	c.logger.Debug().Str("cmd", res.Command).Str("status", c.lastStatus).
		Int("attempts", res.Attempts).Msg("command done")
}

func (c *Core) publish() {
	status := Status{
		Mode:        c.mode.String(),
		Airborne:    c.airborne,
		Vector:      c.vector,
		Velocity:    c.velocity,
		LastCommand: c.lastCommand,
		LastStatus:  c.lastStatus,
		Tick:        c.tick,
		VideoURL:    c.settings.VideoURL,
	}

	c.statusMu.Lock()
	c.status = status
	c.statusMu.Unlock()

	if c.display != nil {
		c.display.Update(&status)
	}
}

// IntentFromVector converts a direction vector into rc velocities.
// Centring takes priority: a horizontal or vertical offset is corrected
// alone and depth is only corrected once the target is centred. Yaw is
// never used.
func IntentFromVector(v DirectionVector, g Gains) VelocityIntent {
	var in VelocityIntent
	if v.X != 0 || v.Y != 0 {
		in.LeftRight = -g.LeftRight * v.X
		in.UpDown = g.UpDown * v.Y
	} else {
		in.ForwardBack = g.ForwardBack * v.Z
	}
	return in
}
