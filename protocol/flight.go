package protocol

import "fmt"

// Direction is the verb of a fixed-distance move.
type Direction string

const (
	Up      Direction = "up"
	Down    Direction = "down"
	Left    Direction = "left"
	Right   Direction = "right"
	Forward Direction = "forward"
	Back    Direction = "back"
)

// FlipDirection is the argument of the flip command.
type FlipDirection string

const (
	FlipLeft    FlipDirection = "l"
	FlipRight   FlipDirection = "r"
	FlipForward FlipDirection = "f"
	FlipBack    FlipDirection = "b"
)

func (e *Engine) Takeoff() Result {
	return e.sendWithRetry("takeoff")
}

func (e *Engine) Land() Result {
	return e.sendWithRetry("land")
}

// Move flies distance cm (20-500) in direction.
func (e *Engine) Move(direction Direction, distance int) Result {
	return e.sendWithRetry(fmt.Sprintf("%s %d", direction, distance))
}

func (e *Engine) Up(distance int) Result      { return e.Move(Up, distance) }
func (e *Engine) Down(distance int) Result    { return e.Move(Down, distance) }
func (e *Engine) Left(distance int) Result    { return e.Move(Left, distance) }
func (e *Engine) Right(distance int) Result   { return e.Move(Right, distance) }
func (e *Engine) Forward(distance int) Result { return e.Move(Forward, distance) }
func (e *Engine) Back(distance int) Result    { return e.Move(Back, distance) }

// RotateCW rotates degrees (1-360) clockwise.
func (e *Engine) RotateCW(degrees int) Result {
	return e.sendWithRetry(fmt.Sprintf("cw %d", degrees))
}

// RotateCCW rotates degrees (1-360) counter-clockwise.
func (e *Engine) RotateCCW(degrees int) Result {
	return e.sendWithRetry(fmt.Sprintf("ccw %d", degrees))
}

func (e *Engine) Flip(direction FlipDirection) Result {
	return e.sendWithRetry(fmt.Sprintf("flip %s", direction))
}

func (e *Engine) FlipLeft() Result    { return e.Flip(FlipLeft) }
func (e *Engine) FlipRight() Result   { return e.Flip(FlipRight) }
func (e *Engine) FlipForward() Result { return e.Flip(FlipForward) }
func (e *Engine) FlipBack() Result    { return e.Flip(FlipBack) }

// Go flies to x y z (cm, relative) at speed cm/s.
func (e *Engine) Go(x, y, z, speed int) Result {
	return e.sendWithRetry(fmt.Sprintf("go %d %d %d %d", x, y, z, speed))
}

// Curve flies an arc through (x1,y1,z1) to (x2,y2,z2) at speed cm/s (10-60).
// The drone refuses arcs with a radius outside 0.5-10 m.
func (e *Engine) Curve(x1, y1, z1, x2, y2, z2, speed int) Result {
	return e.sendWithRetry(fmt.Sprintf("curve %d %d %d %d %d %d %d", x1, y1, z1, x2, y2, z2, speed))
}

// MoveWithVelocities sends an rc command unless less than RCInterval has
// passed since the last dispatched command, in which case it returns a
// StatusRateLimited result and nothing goes on the wire.
// Velocities are -100..100: left/right, forward/back, up/down, yaw.
func (e *Engine) MoveWithVelocities(lr, fb, ud, yaw int) Result {
	if e.now().Sub(e.lastCommandTime) < e.timing.RCInterval {
		e.metrics.RateLimited()
		e.logger.Trace().Msg("rc command rate limited")
		return Result{Command: "rc", Status: StatusRateLimited}
	}
	return e.MoveWithVelocitiesWithoutWaiting(lr, fb, ud, yaw)
}

// MoveWithVelocitiesWithoutWaiting sends an rc command bypassing the pacing gate.
func (e *Engine) MoveWithVelocitiesWithoutWaiting(lr, fb, ud, yaw int) Result {
	cmd := fmt.Sprintf("rc %d %d %d %d", clamp(lr), clamp(fb), clamp(ud), clamp(yaw))
	res := Result{Command: cmd, Attempts: 1}

	e.lastCommandTime = e.now()
	if err := e.transport.Send(cmd); err != nil {
		res.Status = StatusTransportError
		res.Cause = err
	} else {
		res.Status = StatusSent
	}

	e.metrics.CommandDone("rc", res.Status.String())
	if res.Cause != nil {
		e.logger.Error().Err(res.Cause).Str("cmd", cmd).Msg("failed to send rc command")
	}
	return res
}

// Stop zeroes all four velocity channels immediately.
func (e *Engine) Stop() Result {
	return e.MoveWithVelocitiesWithoutWaiting(0, 0, 0, 0)
}

func clamp(v int) int {
	switch {
	case v > 100:
		return 100
	case v < -100:
		return -100
	}
	return v
}
