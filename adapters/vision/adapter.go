package vision

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/moosethebrown/tello-pilot-bridge/core"
	"github.com/rs/zerolog"
)

const (
	readLimit   = 4096
	readTimeout = 10 * time.Second
)

type DirectionHandler interface {
	HandleDirection(core.DirectionVector)
}

// Adapter accepts WebSocket connections from an external vision provider.
// Every text message is a direction vector {"x":..,"y":..,"z":..};
// null means no target is visible.
type Adapter struct {
	handler  DirectionHandler
	upgrader websocket.Upgrader
	logger   *zerolog.Logger
}

func NewAdapter(handler DirectionHandler, logger *zerolog.Logger) *Adapter {
	return &Adapter{
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the provider runs next to the bridge, not in a browser
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	a.logger.Info().Str("remote", r.RemoteAddr).Msg("vision provider connected")
	defer a.logger.Info().Str("remote", r.RemoteAddr).Msg("vision provider disconnected")

	conn.SetReadLimit(readLimit)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			a.logger.Error().Err(err).Msg("failed to set read deadline")
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.logger.Error().Err(err).Msg("failed to read direction vector")
			}
			return
		}

		var vec *core.DirectionVector
		if err := json.Unmarshal(msg, &vec); err != nil {
			a.logger.Warn().Err(err).Msg("malformed direction vector")
			continue
		}
		if vec == nil {
			vec = &core.DirectionVector{}
		}
		a.handler.HandleDirection(*vec)
	}
}
