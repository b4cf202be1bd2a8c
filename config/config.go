package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

type DroneConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	LocalPort  int    `json:"localPort"`
	BufferSize int    `json:"bufferSize"`
	// times are in milliseconds
	ReplyTimeout   int `json:"replyTimeout"`
	Attempts       int `json:"attempts"`
	AttemptTimeout int `json:"attemptTimeout"`
	RCInterval     int `json:"rcInterval"`
	Speed          int `json:"speed"`
	VideoPort      int `json:"videoPort"`
}

type TrackerConfig struct {
	TickRate     int `json:"tickRate"`
	LRGain       int `json:"lrGain"`
	FBGain       int `json:"fbGain"`
	UDGain       int `json:"udGain"`
	MoveDistance int `json:"moveDistance"`
	RotateAngle  int `json:"rotateAngle"`
	// ms without a new direction vector before the target counts as lost,
	// 0 keeps the last vector forever
	VectorTimeout int `json:"vectorTimeout"`
}

type MqttConfig struct {
	Enabled           bool   `json:"enabled"`
	Broker            string `json:"broker"`
	ConnTimeout       int    `json:"connTimeout"`
	Username          string `json:"username"`
	Password          string `json:"password"`
	DroneId           string `json:"droneId"`
	AnnounceTopic     string `json:"announceTopic"`
	AnnounceTimeout   int    `json:"announceTimeout"`
	DisconnectTimeout int    `json:"disconnectTimeout"`
	CertCheck         bool   `json:"certCheck"`
}

type InputConfig struct {
	// "-" reads keys from stdin
	SocketName string `json:"socketName"`
}

type DisplayConfig struct {
	// empty disables the display adapter
	SocketName string `json:"socketName"`
	QueueSize  int    `json:"queueSize"`
}

type HTTPConfig struct {
	// empty disables the HTTP server
	Addr string `json:"addr"`
}

// JSON-based bridge configuration
type Config struct {
	Drone            *DroneConfig   `json:"drone"`
	Tracker          *TrackerConfig `json:"tracker"`
	Mqtt             *MqttConfig    `json:"mqtt"`
	Input            *InputConfig   `json:"input"`
	Display          *DisplayConfig `json:"display"`
	HTTP             *HTTPConfig    `json:"http"`
	AnnounceInterval int            `json:"announceInterval"`
	LogLevel         string         `json:"logLevel"`
}

func Default() *Config {
	return &Config{
		Drone: &DroneConfig{
			Host:           "192.168.10.1",
			Port:           8889,
			BufferSize:     1024,
			Attempts:       3,
			AttemptTimeout: 100,
			RCInterval:     100,
			Speed:          20,
			VideoPort:      11111,
		},
		Tracker: &TrackerConfig{
			TickRate:      20,
			LRGain:        25,
			FBGain:        15,
			UDGain:        25,
			MoveDistance:  50,
			RotateAngle:   30,
			VectorTimeout: 500,
		},
		Mqtt: &MqttConfig{
			ConnTimeout:       5000,
			DroneId:           "tello",
			AnnounceTopic:     "drone/announce",
			AnnounceTimeout:   1000,
			DisconnectTimeout: 1000,
			CertCheck:         true,
		},
		Input: &InputConfig{
			SocketName: "-",
		},
		Display: &DisplayConfig{
			QueueSize: 16,
		},
		HTTP:             &HTTPConfig{},
		AnnounceInterval: 3000,
		LogLevel:         "info",
	}
}

// NewConfig reads filename on top of the defaults, so omitted keys keep
// their default values.
func NewConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	config := Default()
	err = json.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.Drone == nil || c.Tracker == nil || c.Mqtt == nil ||
		c.Input == nil || c.Display == nil || c.HTTP == nil {
		return fmt.Errorf("config sections must not be null")
	}
	if c.Drone.Host == "" {
		return fmt.Errorf("drone.host is empty")
	}
	if !validPort(c.Drone.Port) || !validPort(c.Drone.VideoPort) {
		return fmt.Errorf("drone ports must be in 1-65535")
	}
	if c.Drone.LocalPort < 0 || c.Drone.LocalPort > 65535 {
		return fmt.Errorf("drone.localPort must be in 0-65535")
	}
	if c.Drone.Attempts < 1 {
		return fmt.Errorf("drone.attempts must be at least 1, got %d", c.Drone.Attempts)
	}
	if c.Drone.ReplyTimeout < 0 || c.Drone.AttemptTimeout < 0 || c.Drone.RCInterval < 0 {
		return fmt.Errorf("drone timeouts must not be negative")
	}
	if c.Drone.Speed < 10 || c.Drone.Speed > 100 {
		return fmt.Errorf("drone.speed must be in 10-100, got %d", c.Drone.Speed)
	}
	if c.Tracker.TickRate <= 0 {
		return fmt.Errorf("tracker.tickRate must be positive, got %d", c.Tracker.TickRate)
	}
	for name, gain := range map[string]int{
		"lrGain": c.Tracker.LRGain,
		"fbGain": c.Tracker.FBGain,
		"udGain": c.Tracker.UDGain,
	} {
		if gain < 0 || gain > 100 {
			return fmt.Errorf("tracker.%s must be in 0-100, got %d", name, gain)
		}
	}
	if c.Tracker.MoveDistance < 20 || c.Tracker.MoveDistance > 500 {
		return fmt.Errorf("tracker.moveDistance must be in 20-500, got %d", c.Tracker.MoveDistance)
	}
	if c.Tracker.RotateAngle < 1 || c.Tracker.RotateAngle > 360 {
		return fmt.Errorf("tracker.rotateAngle must be in 1-360, got %d", c.Tracker.RotateAngle)
	}
	if c.Tracker.VectorTimeout < 0 {
		return fmt.Errorf("tracker.vectorTimeout must not be negative, got %d", c.Tracker.VectorTimeout)
	}
	if c.Mqtt.Enabled && c.Mqtt.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
