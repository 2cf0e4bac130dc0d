package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/hark/internal/health"
	"github.com/MrWong99/hark/internal/transport"
	"github.com/MrWong99/hark/internal/turn"
	"github.com/MrWong99/hark/pkg/audio"
)

// fakeDialogue records what the audio handler forwards.
type fakeDialogue struct {
	mu     sync.Mutex
	frames []audio.Frame
	stops  int
	clears int
}

func (f *fakeDialogue) Submit(frame audio.Frame) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeDialogue) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeDialogue) ClearMemory(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return nil
}

func (f *fakeDialogue) snapshot() (frames, stops, clears int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames), f.stops, f.clears
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeDialogue, *transport.Router) {
	t.Helper()
	dlg := &fakeDialogue{}
	router := transport.NewRouter()
	srv := New(Options{
		Dialogue: dlg,
		Router:   router,
		Health:   health.New(),
		Events:   NewEventHub(),
	})
	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)
	return ts, dlg, router
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAudioEndpointForwardsFramesAndControls(t *testing.T) {
	ts, dlg, router := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, wsURL(ts, "/ws"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	if err := c.Write(ctx, websocket.MessageBinary, make([]byte, 640)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	waitUntil(t, "frame forwarded", func() bool {
		frames, _, _ := dlg.snapshot()
		return frames == 1
	})

	if err := c.Write(ctx, websocket.MessageText, []byte(`{"type":"mute"}`)); err != nil {
		t.Fatalf("write control: %v", err)
	}
	waitUntil(t, "mute applied", func() bool { return router.Muted() })

	// Muted capture is dropped before it reaches the dialogue.
	if err := c.Write(ctx, websocket.MessageBinary, make([]byte, 640)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	for _, msg := range []string{
		`{"type":"stop"}`,
		`{"type":"clear_memory"}`,
	} {
		if err := c.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
			t.Fatalf("write control: %v", err)
		}
	}
	waitUntil(t, "controls applied", func() bool {
		_, stops, clears := dlg.snapshot()
		return stops == 1 && clears == 1
	})
	if frames, _, _ := dlg.snapshot(); frames != 1 {
		t.Errorf("muted frame reached the dialogue, frames = %d", frames)
	}

	if err := c.Write(ctx, websocket.MessageText, []byte(`{"type":"unmute"}`)); err != nil {
		t.Fatalf("write control: %v", err)
	}
	waitUntil(t, "unmute applied", func() bool { return !router.Muted() })

	if err := c.Write(ctx, websocket.MessageBinary, make([]byte, 640)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	waitUntil(t, "unmuted frame forwarded", func() bool {
		frames, _, _ := dlg.snapshot()
		return frames == 2
	})
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	ts, _, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestEventHubBroadcast(t *testing.T) {
	hub := NewEventHub()
	ts := httptest.NewServer(http.HandlerFunc(hub.Handle))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, wsURL(ts, ""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	waitUntil(t, "subscription", func() bool { return hub.Subscribers() == 1 })

	want := turn.Event{Type: turn.EventTranscribed, TurnID: 7, Text: "hello", Time: time.Now()}
	hub.Publish(want)

	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got turn.Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != want.Type || got.TurnID != want.TurnID || got.Text != want.Text {
		t.Errorf("event = %+v, want %+v", got, want)
	}
}

func TestEventHubUnsubscribesOnDisconnect(t *testing.T) {
	hub := NewEventHub()
	ts := httptest.NewServer(http.HandlerFunc(hub.Handle))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, wsURL(ts, ""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitUntil(t, "subscription", func() bool { return hub.Subscribers() == 1 })

	_ = c.Close(websocket.StatusNormalClosure, "")
	waitUntil(t, "unsubscription", func() bool { return hub.Subscribers() == 0 })
}

func TestAudioEndpointRejectsBadNegotiation(t *testing.T) {
	ts, _, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, wsURL(ts, "/ws?codec=mp3"), nil)
	if err == nil {
		_ = c.Close(websocket.StatusNormalClosure, "")
		t.Fatal("dial with unsupported codec should fail")
	}
}
