package input

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"

	"github.com/moosethebrown/tello-pilot-bridge/core"
	"github.com/rs/zerolog"
)

// Stdin is the socket name that selects standard input as the key source.
const Stdin = "-"

type KeyHandler interface {
	HandleKey(core.Key)
}

// Adapter reads single-character key events from the unix socket of an
// external input/display process (or stdin) and forwards them to the core.
type Adapter struct {
	socketName string
	handler    KeyHandler
	readBuf    []byte
	logger     *zerolog.Logger

	mu      sync.Mutex
	src     io.ReadCloser
	stopped bool
}

func NewAdapter(socketName string, handler KeyHandler, logger *zerolog.Logger) *Adapter {
	return &Adapter{
		socketName: socketName,
		handler:    handler,
		readBuf:    make([]byte, 64),
		logger:     logger,
	}
}

func (a *Adapter) Run() {
	src, err := a.open()
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to open key source")
		return
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		src.Close()
		return
	}
	a.src = src
	a.mu.Unlock()

	a.readKeys(src)
}

// Stop closes the key source, which unblocks Run.
func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	if a.src != nil {
		a.src.Close()
	}
}

func (a *Adapter) open() (io.ReadCloser, error) {
	if a.socketName == Stdin {
		return io.NopCloser(os.Stdin), nil
	}
	return net.Dial("unix", a.socketName)
}

func (a *Adapter) readKeys(r io.Reader) {
	for {
		n, err := r.Read(a.readBuf)
		for _, b := range a.readBuf[:n] {
			if b == '\n' || b == '\r' {
				continue
			}
			a.logger.Debug().Msgf("key %q", rune(b))
			a.handler.HandleKey(core.Key(b))
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				a.logger.Error().Err(err).Msg("failed to read keys")
			}
			return
		}
	}
}
