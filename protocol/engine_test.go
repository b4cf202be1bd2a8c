package protocol

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/moosethebrown/tello-pilot-bridge/metrics"
	"github.com/moosethebrown/tello-pilot-bridge/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

type reply struct {
	text string
	err  error
}

// mockTransport records every datagram with the fake time it was sent at
// and answers awaited sends from a scripted list of replies.
type mockTransport struct {
	clock   *fakeClock
	replies []reply
	sent    []string
	sentAt  []time.Time
	sendErr error
}

func (m *mockTransport) Send(cmd string) error {
	m.sent = append(m.sent, cmd)
	m.sentAt = append(m.sentAt, m.clock.Now())
	return m.sendErr
}

func (m *mockTransport) SendAndAwaitReply(cmd string) (string, error) {
	m.sent = append(m.sent, cmd)
	m.sentAt = append(m.sentAt, m.clock.Now())
	if len(m.replies) == 0 {
		return "ok", nil
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r.text, r.err
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.t = c.t.Add(d)
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func setup(replies ...reply) (*Engine, *mockTransport, *fakeClock) {
	logger := zerolog.New(io.Discard)
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	mt := &mockTransport{clock: clock, replies: replies}

	e := NewEngine(mt, DefaultTiming(), nil, &logger)
	e.now = clock.Now
	e.sleep = clock.Sleep

	return e, mt, clock
}

func ok() reply           { return reply{text: "ok"} }
func nack(s string) reply { return reply{text: s} }

func TestAcknowledgedCommandSucceedsOnAttemptK(t *testing.T) {
	commands := map[string]func(e *Engine) Result{
		"command":         (*Engine).Connect,
		"takeoff":         (*Engine).Takeoff,
		"land":            (*Engine).Land,
		"streamon":        (*Engine).StreamOn,
		"streamoff":       (*Engine).StreamOff,
		"speed 20":        func(e *Engine) Result { return e.SetSpeed(20) },
		"up 50":           func(e *Engine) Result { return e.Up(50) },
		"cw 30":           func(e *Engine) Result { return e.RotateCW(30) },
		"ccw 30":          func(e *Engine) Result { return e.RotateCCW(30) },
		"flip b":          (*Engine).FlipBack,
		"go 20 30 40 50":  func(e *Engine) Result { return e.Go(20, 30, 40, 50) },
		"wifi tello pass": func(e *Engine) Result { return e.SetWifi("tello", "pass") },
	}

	for cmd, call := range commands {
		for k := 1; k <= AttemptNumbers; k++ {
			replies := make([]reply, 0, k)
			for i := 1; i < k; i++ {
				replies = append(replies, nack("error"))
			}
			replies = append(replies, ok())

			e, mt, _ := setup(replies...)
			res := call(e)

			if !res.OK() {
				t.Errorf("%s: expected success on attempt %d, got %s", cmd, k, res.Status)
			}
			if len(mt.sent) != k {
				t.Errorf("%s: expected %d sends, got %d", cmd, k, len(mt.sent))
			}
			if res.Attempts != k {
				t.Errorf("%s: expected %d attempts, got %d", cmd, k, res.Attempts)
			}
			for _, s := range mt.sent {
				if s != cmd {
					t.Errorf("expected datagram %q, got %q", cmd, s)
				}
			}
		}
	}
}

func TestAcknowledgedCommandFailsAfterAttemptBudget(t *testing.T) {
	e, mt, _ := setup(nack("error"), nack("error"), nack("error"), ok())

	res := e.Takeoff()

	if res.OK() {
		t.Fatal("expected failure")
	}
	if res.Status != StatusNack {
		t.Errorf("expected StatusNack, got %s", res.Status)
	}
	if res.Reply != "error" {
		t.Errorf("expected reply %q, got %q", "error", res.Reply)
	}
	if len(mt.sent) != AttemptNumbers {
		t.Fatalf("expected %d sends, got %d", AttemptNumbers, len(mt.sent))
	}
	for i := 1; i < len(mt.sentAt); i++ {
		if gap := mt.sentAt[i].Sub(mt.sentAt[i-1]); gap < Timeout {
			t.Errorf("attempts %d and %d separated by %v, want >= %v", i, i+1, gap, Timeout)
		}
	}

	var nackErr *NackError
	if !errors.As(res.Err(), &nackErr) || nackErr.Reply != "error" {
		t.Errorf("expected NackError with reply, got %v", res.Err())
	}
	if !errors.Is(res.Err(), ErrNack) {
		t.Errorf("expected error to wrap ErrNack, got %v", res.Err())
	}
}

func TestConnectStopsOnTransportError(t *testing.T) {
	sockErr := errors.New("network is unreachable")
	e, mt, clock := setup(nack("error"), reply{err: sockErr}, ok())
	start := clock.Now()

	res := e.Connect()

	if res.Status != StatusTransportError {
		t.Fatalf("expected StatusTransportError, got %s", res.Status)
	}
	if len(mt.sent) != 2 {
		t.Errorf("expected 2 sends, got %d", len(mt.sent))
	}
	if !errors.Is(res.Cause, sockErr) {
		t.Errorf("expected cause %v, got %v", sockErr, res.Cause)
	}
	if !errors.Is(res.Err(), ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", res.Err())
	}
	if errors.Is(res.Err(), ErrNack) {
		t.Error("transport error must not be reported as a nack")
	}
	if waited := clock.Now().Sub(start); waited != Timeout {
		t.Errorf("expected one wait of %v, got %v", Timeout, waited)
	}
}

func TestDecodeErrorIsReportedNotRaised(t *testing.T) {
	bad := fmt.Errorf("%w: cc ff", transport.ErrInvalidReply)
	e, mt, _ := setup(reply{err: bad}, reply{err: bad}, reply{err: bad})

	res := e.Land()

	if res.Status != StatusDecodeError {
		t.Fatalf("expected StatusDecodeError, got %s", res.Status)
	}
	if len(mt.sent) != AttemptNumbers {
		t.Errorf("expected %d sends, got %d", AttemptNumbers, len(mt.sent))
	}
	if !errors.Is(res.Err(), ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", res.Err())
	}
}

func TestTimeoutIsRetried(t *testing.T) {
	e, mt, _ := setup(reply{err: transport.ErrTimeout}, ok())

	res := e.Connect()

	if !res.OK() {
		t.Fatalf("expected success, got %s", res.Status)
	}
	if len(mt.sent) != 2 {
		t.Errorf("expected 2 sends, got %d", len(mt.sent))
	}
}

func TestQueriesAreSentOnceAndReturnData(t *testing.T) {
	queries := map[string]func(e *Engine) Result{
		"speed?":    (*Engine).GetSpeed,
		"battery?":  (*Engine).GetBattery,
		"time?":     (*Engine).GetFlightTime,
		"wifi?":     (*Engine).GetWifi,
		"baro?":     (*Engine).GetBaro,
		"attitude?": (*Engine).GetAttitude,
		"height?":   (*Engine).GetHeight,
	}

	for cmd, call := range queries {
		e, mt, _ := setup(reply{text: "87"})
		res := call(e)

		if !res.OK() || res.Reply != "87" {
			t.Errorf("%s: expected reply 87, got %s %q", cmd, res.Status, res.Reply)
		}
		if len(mt.sent) != 1 || mt.sent[0] != cmd {
			t.Errorf("%s: expected a single send, got %v", cmd, mt.sent)
		}
	}
}

func TestQueryTransportErrorIsSurfaced(t *testing.T) {
	e, mt, _ := setup(reply{err: errors.New("connection refused")}, reply{text: "87"})

	res := e.GetBattery()

	if res.Status != StatusTransportError {
		t.Errorf("expected StatusTransportError, got %s", res.Status)
	}
	if res.Reply != "" {
		t.Errorf("expected no value, got %q", res.Reply)
	}
	if len(mt.sent) != 1 {
		t.Errorf("expected no retry, got %d sends", len(mt.sent))
	}
}

func TestGetTelemetryByName(t *testing.T) {
	e, mt, _ := setup(reply{text: "pitch:0;roll:0;yaw:0;"})

	res, ok := e.GetTelemetry(QueryAttitude)
	if !ok || res.Reply != "pitch:0;roll:0;yaw:0;" {
		t.Errorf("unexpected result %v %v", res, ok)
	}
	if _, ok := e.GetTelemetry("temp"); ok {
		t.Error("expected unknown query to be rejected")
	}
	if len(mt.sent) != 1 {
		t.Errorf("expected 1 send, got %d", len(mt.sent))
	}
}

func TestMoveWithVelocitiesPacing(t *testing.T) {
	e, mt, clock := setup()

	// burst of intents every 20ms over one second
	const step = 20 * time.Millisecond
	start := clock.Now()
	for i := 0; i < 50; i++ {
		e.MoveWithVelocities(10, 0, 0, 0)
		clock.Advance(step)
	}
	elapsed := clock.Now().Sub(start)

	limit := int((elapsed+TimeBetweenRCCommands-1)/TimeBetweenRCCommands) + 1
	if len(mt.sent) > limit {
		t.Errorf("expected at most %d rc sends, got %d", limit, len(mt.sent))
	}
	for i := 1; i < len(mt.sentAt); i++ {
		if gap := mt.sentAt[i].Sub(mt.sentAt[i-1]); gap < TimeBetweenRCCommands {
			t.Errorf("rc sends %d and %d only %v apart", i, i+1, gap)
		}
	}
}

func TestMoveWithVelocitiesDropsWithinInterval(t *testing.T) {
	e, mt, clock := setup()

	first := e.MoveWithVelocities(25, 0, -25, 0)
	if first.Status != StatusSent {
		t.Fatalf("expected first rc to be sent, got %s", first.Status)
	}

	clock.Advance(50 * time.Millisecond)
	second := e.MoveWithVelocities(0, 15, 0, 0)
	if second.Status != StatusRateLimited {
		t.Errorf("expected StatusRateLimited, got %s", second.Status)
	}
	if second.Err() != nil {
		t.Errorf("rate limiting must not be an error, got %v", second.Err())
	}

	clock.Advance(50 * time.Millisecond)
	third := e.MoveWithVelocities(0, 15, 0, 0)
	if third.Status != StatusSent {
		t.Errorf("expected third rc to be sent, got %s", third.Status)
	}

	want := []string{"rc 25 0 -25 0", "rc 0 15 0 0"}
	if len(mt.sent) != len(want) {
		t.Fatalf("expected %v, got %v", want, mt.sent)
	}
	for i := range want {
		if mt.sent[i] != want[i] {
			t.Errorf("send %d: expected %q, got %q", i, want[i], mt.sent[i])
		}
	}
}

func TestAcknowledgedCommandArmsPacingGate(t *testing.T) {
	e, mt, clock := setup()

	e.Takeoff()
	clock.Advance(10 * time.Millisecond)

	if res := e.MoveWithVelocities(0, 0, 0, 0); res.Status != StatusRateLimited {
		t.Errorf("expected rc right after takeoff to be rate limited, got %s", res.Status)
	}
	if len(mt.sent) != 1 {
		t.Errorf("expected only takeoff on the wire, got %v", mt.sent)
	}
}

func TestStopBypassesPacingGate(t *testing.T) {
	e, mt, clock := setup()

	e.MoveWithVelocities(50, 50, 0, 0)
	clock.Advance(5 * time.Millisecond)
	e.Stop()
	clock.Advance(5 * time.Millisecond)
	e.Stop()

	if len(mt.sent) != 3 {
		t.Fatalf("expected 3 sends, got %v", mt.sent)
	}
	if mt.sent[1] != "rc 0 0 0 0" || mt.sent[2] != "rc 0 0 0 0" {
		t.Errorf("expected two stop commands, got %v", mt.sent[1:])
	}
	if !e.LastCommandTime().Equal(clock.Now()) {
		t.Errorf("last command time not updated by stop")
	}
}

func TestMoveWithVelocitiesClampsRange(t *testing.T) {
	e, mt, _ := setup()

	e.MoveWithVelocitiesWithoutWaiting(150, -150, 100, -100)

	if mt.sent[0] != "rc 100 -100 100 -100" {
		t.Errorf("unexpected rc command %q", mt.sent[0])
	}
}

func TestMoveWithVelocitiesTransportError(t *testing.T) {
	e, mt, _ := setup()
	mt.sendErr = errors.New("no route to host")

	res := e.MoveWithVelocities(1, 2, 3, 4)

	if res.Status != StatusTransportError {
		t.Errorf("expected StatusTransportError, got %s", res.Status)
	}
}

func TestCommandFormatting(t *testing.T) {
	e, mt, _ := setup()

	e.Curve(20, 20, 20, 60, 40, 20, 30)
	e.Move(Back, 100)
	e.FlipLeft()
	e.Forward(20)

	want := []string{"curve 20 20 20 60 40 20 30", "back 100", "flip l", "forward 20"}
	for i := range want {
		if mt.sent[i] != want[i] {
			t.Errorf("expected %q, got %q", want[i], mt.sent[i])
		}
	}
}

type mockCapture struct {
	closed int
}

func (m *mockCapture) Close() error {
	m.closed++
	return nil
}

func TestEndIsIdempotent(t *testing.T) {
	e, mt, _ := setup()

	if err := e.End(); err != nil {
		t.Fatalf("End with nothing open returned %v", err)
	}
	if len(mt.sent) != 0 {
		t.Errorf("expected nothing sent, got %v", mt.sent)
	}

	e.StreamOn()
	capture := &mockCapture{}
	e.AttachCapture(capture)

	if err := e.End(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.End(); err != nil {
		t.Fatalf("unexpected error on second End: %v", err)
	}

	if capture.closed != 1 {
		t.Errorf("expected capture closed once, got %d", capture.closed)
	}
	if e.Streaming() {
		t.Error("expected stream off")
	}
	if len(mt.sent) != 2 || mt.sent[1] != "streamoff" {
		t.Errorf("expected streamon then one streamoff, got %v", mt.sent)
	}
}

func TestEngineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	logger := zerolog.New(io.Discard)
	clock := &fakeClock{t: time.Now()}
	mt := &mockTransport{clock: clock, replies: []reply{nack("error"), ok()}}

	e := NewEngine(mt, DefaultTiming(), metrics.New(reg), &logger)
	e.now = clock.Now
	e.sleep = clock.Sleep

	e.Takeoff()
	clock.Advance(time.Second)
	e.MoveWithVelocities(0, 0, 0, 0)
	e.MoveWithVelocities(0, 0, 0, 0)

	count, err := testutil.GatherAndCount(reg, "tello_command_attempts_total")
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one attempts series, got %d", count)
	}

	expected := `
# HELP tello_rc_rate_limited_total RC commands dropped by the pacing gate
# TYPE tello_rc_rate_limited_total counter
tello_rc_rate_limited_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "tello_rc_rate_limited_total"); err != nil {
		t.Error(err)
	}
}

func TestVideoURL(t *testing.T) {
	if got := VideoURL(DefaultVideoPort); got != "udp://@0.0.0.0:11111" {
		t.Errorf("unexpected video url %q", got)
	}
}
