package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/flowpbx/voiceswitch/internal/command"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []command.StatusEvent
}

func (r *recordingHandler) HandleStatus(evt command.StatusEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return true
}

func (r *recordingHandler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHubRoundTrip(t *testing.T) {
	hub := NewHub(testLogger())
	handler := &recordingHandler{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, "console-1", handler)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, _, err := ws.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.Connections() == 1 })

	hub.Sender("console-1").Send(command.New(command.TypeDial, "5551212", 1))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	data, err := wsutil.ReadServerText(conn)
	if err != nil {
		t.Fatalf("ReadServerText() error: %v", err)
	}
	var got command.Command
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decoding command: %v", err)
	}
	if got.Type != command.TypeDial || got.Cmd1 != "5551212" || got.Discriminator() != 1 {
		t.Errorf("received %+v", got)
	}

	frames := []string{
		`{"type":"status","call":"T1-5551212","status":"connected"}`,
		`{"type":"ping"}`,
		`not json`,
	}
	for _, f := range frames {
		if err := wsutil.WriteClientText(conn, []byte(f)); err != nil {
			t.Fatalf("WriteClientText() error: %v", err)
		}
	}
	waitFor(t, func() bool { return handler.count() == 1 })
	if handler.events[0].Status != "connected" {
		t.Errorf("event = %+v", handler.events[0])
	}

	if counts := hub.CommandCounts(); counts[command.TypeDial] != 1 {
		t.Errorf("CommandCounts() = %v", counts)
	}
}

func TestPublishWithoutSubscriber(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Publish("nobody", command.Command{Type: command.TypeIASelfTest})

	if hub.Undelivered() != 1 {
		t.Errorf("Undelivered() = %d, want 1", hub.Undelivered())
	}
	if hub.CommandCounts()[command.TypeIASelfTest] != 1 {
		t.Errorf("CommandCounts() = %v", hub.CommandCounts())
	}
}
