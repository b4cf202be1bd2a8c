package display

import (
	"encoding/json"
	"net"

	"github.com/moosethebrown/tello-pilot-bridge/core"
	"github.com/rs/zerolog"
)

// Adapter pushes status overlays as JSON lines to the unix socket of an
// external renderer.
type Adapter struct {
	socketName string
	stopChan   chan bool
	statusChan chan *core.Status
	logger     *zerolog.Logger
}

func NewAdapter(socketName string, queueSize int, logger *zerolog.Logger) *Adapter {
	return &Adapter{
		socketName: socketName,
		stopChan:   make(chan bool, 1),
		statusChan: make(chan *core.Status, queueSize),
		logger:     logger,
	}
}

func (a *Adapter) Run() {
	conn, err := net.Dial("unix", a.socketName)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to connect to socket")
		return
	}
	defer conn.Close()

main_loop:
	for {
		select {
		case s := <-a.statusChan:
			a.sendMessage(conn, s)
		case <-a.stopChan:
			break main_loop
		}
	}
}

func (a *Adapter) Stop() {
	a.stopChan <- true
}

// Update queues s for rendering. It never blocks the control loop: when
// the renderer lags behind, the overlay is dropped.
func (a *Adapter) Update(s *core.Status) {
	select {
	case a.statusChan <- s:
	default:
		a.logger.Trace().Uint64("tick", s.Tick).Msg("display queue full, overlay dropped")
	}
}

func (a *Adapter) sendMessage(conn net.Conn, s *core.Status) {
	data, err := json.Marshal(s)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to marshal status")
		return
	}
	data = append(data, '\n')

	_, err = conn.Write(data)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to send status")
		return
	}
}
