package protocol

// Telemetry queries return the raw reply; numeric parsing is up to the caller.
// They are sent once and never retried.

// GetSpeed returns the current speed in cm/s.
func (e *Engine) GetSpeed() Result {
	return e.query("speed?")
}

// GetBattery returns the battery percentage.
func (e *Engine) GetBattery() Result {
	return e.query("battery?")
}

// GetFlightTime returns the seconds elapsed in flight.
func (e *Engine) GetFlightTime() Result {
	return e.query("time?")
}

// GetWifi returns the wifi SNR.
func (e *Engine) GetWifi() Result {
	return e.query("wifi?")
}

// GetBaro returns the barometer reading in metres.
func (e *Engine) GetBaro() Result {
	return e.query("baro?")
}

// GetAttitude returns "pitch:%d;roll:%d;yaw:%d;".
func (e *Engine) GetAttitude() Result {
	return e.query("attitude?")
}

// GetHeight returns the height in cm.
func (e *Engine) GetHeight() Result {
	return e.query("height?")
}

// Query names accepted by GetTelemetry.
const (
	QuerySpeed      = "speed"
	QueryBattery    = "battery"
	QueryFlightTime = "time"
	QueryWifi       = "wifi"
	QueryBaro       = "baro"
	QueryAttitude   = "attitude"
	QueryHeight     = "height"
)

// Queries lists every telemetry query in a stable order.
var Queries = []string{
	QuerySpeed, QueryBattery, QueryFlightTime, QueryWifi,
	QueryBaro, QueryAttitude, QueryHeight,
}

// GetTelemetry runs the query with the given name. ok is false for an
// unknown name, in which case nothing is sent.
func (e *Engine) GetTelemetry(name string) (res Result, ok bool) {
	switch name {
	case QuerySpeed:
		return e.GetSpeed(), true
	case QueryBattery:
		return e.GetBattery(), true
	case QueryFlightTime:
		return e.GetFlightTime(), true
	case QueryWifi:
		return e.GetWifi(), true
	case QueryBaro:
		return e.GetBaro(), true
	case QueryAttitude:
		return e.GetAttitude(), true
	case QueryHeight:
		return e.GetHeight(), true
	}
	return Result{}, false
}
