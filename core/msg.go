package core

const (
	RequestTypeCmd   = "cmd"
	RequestTypeQuery = "query"
)

// Remote command names accepted in cmd requests.
const (
	CmdTakeoff    = "takeoff"
	CmdLand       = "land"
	CmdUp         = "up"
	CmdDown       = "down"
	CmdLeft       = "left"
	CmdRight      = "right"
	CmdForward    = "forward"
	CmdBack       = "back"
	CmdRotateCW   = "cw"
	CmdRotateCCW  = "ccw"
	CmdToggleMode = "toggle_mode"
)

// QueryStatus asks for the arbiter status instead of a drone telemetry value.
const QueryStatus = "status"

// Key is a single-character input event.
type Key byte

const (
	KeyQuit       Key = 'q'
	KeyTakeoff    Key = 't'
	KeyLand       Key = 'g'
	KeyForward    Key = 'i'
	KeyBack       Key = 'k'
	KeyLeft       Key = 'j'
	KeyRight      Key = 'l'
	KeyUp         Key = 'w'
	KeyDown       Key = 's'
	KeyRotateCW   Key = 'a'
	KeyRotateCCW  Key = 'd'
	KeyToggleMode Key = ' '
)

var commandKeys = map[string]Key{
	CmdTakeoff:    KeyTakeoff,
	CmdLand:       KeyLand,
	CmdUp:         KeyUp,
	CmdDown:       KeyDown,
	CmdLeft:       KeyLeft,
	CmdRight:      KeyRight,
	CmdForward:    KeyForward,
	CmdBack:       KeyBack,
	CmdRotateCW:   KeyRotateCW,
	CmdRotateCCW:  KeyRotateCCW,
	CmdToggleMode: KeyToggleMode,
}

type Mode int

const (
	ModeManual Mode = iota
	ModeTracking
)

func (m Mode) String() string {
	if m == ModeTracking {
		return "tracking"
	}
	return "manual"
}

// DirectionVector is the target offset from frame centre on the
// horizontal, vertical and depth axes, each in {-1, 0, 1}.
type DirectionVector struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Normalized maps every component onto its sign.
func (v DirectionVector) Normalized() DirectionVector {
	return DirectionVector{X: sign(v.X), Y: sign(v.Y), Z: sign(v.Z)}
}

// VelocityIntent holds the four rc channels, each in [-100, 100].
type VelocityIntent struct {
	LeftRight   int `json:"lr"`
	ForwardBack int `json:"fb"`
	UpDown      int `json:"ud"`
	Yaw         int `json:"yaw"`
}

// Gains convert a direction vector into rc velocities.
type Gains struct {
	LeftRight   int
	ForwardBack int
	UpDown      int
}

// Request is a remote operator message.
type Request struct {
	Type string `json:"type"`
	Cmd  string `json:"cmd"`
}

// TelemetryResponse answers a query request.
type TelemetryResponse struct {
	Query  string  `json:"query"`
	Value  string  `json:"value,omitempty"`
	Status string  `json:"status"`
	Error  string  `json:"error,omitempty"`
	State  *Status `json:"state,omitempty"`
}

// Status is the overlay/status snapshot published after every tick.
type Status struct {
	Mode        string          `json:"mode"`
	Airborne    bool            `json:"airborne"`
	Vector      DirectionVector `json:"vector"`
	Velocity    VelocityIntent  `json:"velocity"`
	LastCommand string          `json:"lastCommand,omitempty"`
	LastStatus  string          `json:"lastStatus,omitempty"`
	Tick        uint64          `json:"tick"`
	VideoURL    string          `json:"videoUrl,omitempty"`
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}
