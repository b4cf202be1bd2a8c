package mqtt

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type mockRequestHandler struct {
}

func (m *mockRequestHandler) HandleRequest([]byte) {
}

func setup(t *testing.T) *Adapter {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.DebugLevel)

	return NewAdapter("tcp://127.0.0.1:1", 100*time.Millisecond, "", "", "tello-1",
		"drone/announce", time.Second, time.Second, true, &mockRequestHandler{}, &logger)
}

func TestTopics(t *testing.T) {
	a := setup(t)

	if a.rqTopic != "drone/tello-1/request" {
		t.Errorf("unexpected request topic %s", a.rqTopic)
	}
	if a.respTopic != "drone/tello-1/response" {
		t.Errorf("unexpected response topic %s", a.respTopic)
	}
}

func TestAnnounceDoesNotBlock(t *testing.T) {
	a := setup(t)

	done := make(chan struct{})
	go func() {
		a.Announce()
		a.Announce()
		a.Announce()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Announce blocked")
	}
	if len(a.announceChan) != 1 {
		t.Errorf("expected a single pending announce, got %d", len(a.announceChan))
	}
}

func TestSendResponseDropsWhenFull(t *testing.T) {
	a := setup(t)

	for i := 0; i < cap(a.responseChan)+10; i++ {
		a.SendResponse([]byte("{}"))
	}
	if len(a.responseChan) != cap(a.responseChan) {
		t.Errorf("expected full queue, got %d", len(a.responseChan))
	}
}

func TestRunFailsWithoutBroker(t *testing.T) {
	a := setup(t)

	if err := a.Run(); err == nil {
		t.Error("expected connection error")
	}
}
