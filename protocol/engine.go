package protocol

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/moosethebrown/tello-pilot-bridge/metrics"
	"github.com/moosethebrown/tello-pilot-bridge/transport"
	"github.com/rs/zerolog"
)

const (
	AttemptNumbers        = 3
	Timeout               = 100 * time.Millisecond
	TimeBetweenRCCommands = 100 * time.Millisecond
	DefaultVideoPort      = 11111
	replyOK               = "ok"
)

// Transport is the datagram client the engine sends through.
type Transport interface {
	Send(cmd string) error
	SendAndAwaitReply(cmd string) (string, error)
}

// Timing holds the retry and pacing parameters of an engine.
type Timing struct {
	Attempts       int
	AttemptTimeout time.Duration
	RCInterval     time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		Attempts:       AttemptNumbers,
		AttemptTimeout: Timeout,
		RCInterval:     TimeBetweenRCCommands,
	}
}

// Engine speaks the Tello text SDK over a Transport. All command traffic
// of a session goes through one Engine; it is not safe for concurrent use.
type Engine struct {
	transport       Transport
	timing          Timing
	metrics         *metrics.Metrics
	logger          *zerolog.Logger
	lastCommandTime time.Time
	streamOn        bool
	capture         io.Closer
	now             func() time.Time
	sleep           func(time.Duration)
}

func NewEngine(t Transport, timing Timing, m *metrics.Metrics, logger *zerolog.Logger) *Engine {
	if timing.Attempts < 1 {
		timing.Attempts = 1
	}

	return &Engine{
		transport: t,
		timing:    timing,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// LastCommandTime is the send time of the most recent dispatched command.
func (e *Engine) LastCommandTime() time.Time {
	return e.lastCommandTime
}

// Streaming reports whether the video stream was switched on by this engine.
func (e *Engine) Streaming() bool {
	return e.streamOn
}

// AttachCapture hands the engine a capture resource opened by an external
// frame source reading VideoURL, so End releases it. The bridge opens none
// itself.
func (e *Engine) AttachCapture(c io.Closer) {
	e.capture = c
}

// sendWithRetry sends cmd up to Attempts times and stops at the first "ok".
// A transport error aborts the loop at once; Nack, timeout and decode
// failures wait AttemptTimeout before the next attempt.
func (e *Engine) sendWithRetry(cmd string) Result {
	res := Result{Command: cmd}

	for res.Attempts < e.timing.Attempts {
		if res.Attempts > 0 {
			e.sleep(e.timing.AttemptTimeout)
		}

		res.Attempts++
		reply, err := e.exchange(cmd)
		res.Status, res.Reply, res.Cause = classify(reply, err)

		if res.Status == StatusOK || res.Status == StatusTransportError {
			break
		}
		e.logger.Debug().Str("cmd", cmd).Int("attempt", res.Attempts).
			Str("status", res.Status.String()).Str("reply", res.Reply).Msg("command not acknowledged")
	}

	e.done(res)
	return res
}

// query performs a single request/response exchange with no retry.
// Any non-error reply is returned as data.
func (e *Engine) query(cmd string) Result {
	res := Result{Command: cmd, Attempts: 1}

	reply, err := e.exchange(cmd)
	if err != nil {
		res.Status, _, res.Cause = classify(reply, err)
	} else {
		res.Status = StatusOK
		res.Reply = reply
	}

	e.done(res)
	return res
}

func (e *Engine) exchange(cmd string) (string, error) {
	e.metrics.Attempt(verbOf(cmd))
	e.lastCommandTime = e.now()
	reply, err := e.transport.SendAndAwaitReply(cmd)
	e.metrics.ReplyLatency(e.now().Sub(e.lastCommandTime))
	return reply, err
}

func (e *Engine) done(res Result) {
	e.metrics.CommandDone(verbOf(res.Command), res.Status.String())
	if res.Status != StatusOK {
		e.logger.Error().Str("cmd", res.Command).Str("status", res.Status.String()).
			Int("attempts", res.Attempts).Str("reply", res.Reply).Err(res.Cause).Msg("command failed")
	}
}

func classify(reply string, err error) (Status, string, error) {
	switch {
	case err == nil && reply == replyOK:
		return StatusOK, reply, nil
	case err == nil:
		return StatusNack, reply, nil
	case errors.Is(err, transport.ErrInvalidReply):
		return StatusDecodeError, "", err
	case errors.Is(err, transport.ErrTimeout):
		return StatusTimeout, "", err
	}
	return StatusTransportError, "", err
}

// Connect enters SDK command mode. A failure is fatal to the session.
func (e *Engine) Connect() Result {
	return e.sendWithRetry("command")
}

func (e *Engine) SetWifi(ssid string, password string) Result {
	return e.sendWithRetry(fmt.Sprintf("wifi %s %s", ssid, password))
}

// SetSpeed sets speed to x cm/s (10-100).
func (e *Engine) SetSpeed(x int) Result {
	return e.sendWithRetry(fmt.Sprintf("speed %d", x))
}

func (e *Engine) StreamOn() Result {
	res := e.sendWithRetry("streamon")
	if res.OK() {
		e.streamOn = true
	}
	return res
}

func (e *Engine) StreamOff() Result {
	res := e.sendWithRetry("streamoff")
	if res.OK() {
		e.streamOn = false
	}
	return res
}

// End switches the video stream off if this engine switched it on and
// releases a capture handed over with AttachCapture. Safe to call repeatedly.
func (e *Engine) End() error {
	var err error
	if e.streamOn {
		err = e.StreamOff().Err()
		e.streamOn = false
	}
	if e.capture != nil {
		if cerr := e.capture.Close(); cerr != nil && err == nil {
			err = cerr
		}
		e.capture = nil
	}
	return err
}

// VideoURL is the address the frame source reads the video stream from.
func VideoURL(port int) string {
	return fmt.Sprintf("udp://@0.0.0.0:%d", port)
}

func verbOf(cmd string) string {
	verb, _, _ := strings.Cut(cmd, " ")
	return verb
}
