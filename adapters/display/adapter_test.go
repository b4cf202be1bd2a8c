package display

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moosethebrown/tello-pilot-bridge/core"
	"github.com/rs/zerolog"
)

func TestStatusIsWrittenAsJSONLine(t *testing.T) {
	logger := zerolog.New(os.Stdout)
	socketName := filepath.Join(t.TempDir(), "display.sock")

	ln, err := net.Listen("unix", socketName)
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()

	a := NewAdapter(socketName, 4, &logger)
	go a.Run()
	defer a.Stop()

	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("failed to accept: %v", err)
	}
	defer conn.Close()

	a.Update(&core.Status{
		Mode:     "tracking",
		Airborne: true,
		Vector:   core.DirectionVector{X: 1},
		Velocity: core.VelocityIntent{LeftRight: -25},
		Tick:     7,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		t.Fatalf("failed to read overlay: %v", err)
	}

	var got core.Status
	if err := json.Unmarshal(line, &got); err != nil {
		t.Fatalf("failed to unmarshal overlay: %v", err)
	}
	if got.Mode != "tracking" || got.Tick != 7 || got.Velocity.LeftRight != -25 {
		t.Errorf("unexpected overlay %+v", got)
	}
}

func TestUpdateDropsWhenQueueFull(t *testing.T) {
	logger := zerolog.New(os.Stdout)
	a := NewAdapter("unused", 1, &logger)

	done := make(chan struct{})
	go func() {
		a.Update(&core.Status{Tick: 1})
		a.Update(&core.Status{Tick: 2})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Update blocked on a full queue")
	}
	if s := <-a.statusChan; s.Tick != 1 {
		t.Errorf("expected first overlay kept, got tick %d", s.Tick)
	}
}
