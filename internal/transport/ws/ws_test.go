package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/hark/internal/transport/ws"
	"github.com/MrWong99/hark/pkg/audio"
)

// dialTestConn starts a server that accepts one audio WebSocket and returns
// both ends. The query string selects codec and format.
func dialTestConn(t *testing.T, query string) (*ws.Conn, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *ws.Conn, 1)
	hold := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		connCh <- conn
		<-hold
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if query != "" {
		url += "?" + query
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	var conn *ws.Conn
	select {
	case conn = <-connCh:
	case <-time.After(5 * time.Second):
		t.Fatal("server never accepted the connection")
	}

	t.Cleanup(func() {
		_ = client.Close(websocket.StatusNormalClosure, "")
		_ = conn.Close()
		close(hold)
		srv.Close()
	})
	return conn, client
}

func recvFrame(t *testing.T, conn *ws.Conn) audio.Frame {
	t.Helper()
	select {
	case f, ok := <-conn.Frames():
		if !ok {
			t.Fatal("frames channel closed")
		}
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return audio.Frame{}
}

func TestInboundPCMFrames(t *testing.T) {
	t.Parallel()
	conn, client := dialTestConn(t, "")

	ctx := context.Background()
	// 50ms of 16kHz mono: 800 samples.
	payload := make([]byte, 1600)
	if err := client.Write(ctx, websocket.MessageBinary, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := client.Write(ctx, websocket.MessageBinary, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	f1 := recvFrame(t, conn)
	if f1.SampleRate != 16000 || f1.Channels != 1 {
		t.Errorf("format = %d/%d, want 16000/1", f1.SampleRate, f1.Channels)
	}
	if len(f1.PCM) != 1600 {
		t.Errorf("pcm length = %d, want 1600", len(f1.PCM))
	}
	if f1.Timestamp != 0 {
		t.Errorf("first frame timestamp = %v, want 0", f1.Timestamp)
	}

	f2 := recvFrame(t, conn)
	if f2.Timestamp != 50*time.Millisecond {
		t.Errorf("second frame timestamp = %v, want 50ms", f2.Timestamp)
	}
}

func TestNegotiatedInputFormat(t *testing.T) {
	t.Parallel()
	conn, client := dialTestConn(t, "sample_rate=48000&channels=2")

	if err := client.Write(context.Background(), websocket.MessageBinary, make([]byte, 960)); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := recvFrame(t, conn)
	if f.SampleRate != 48000 || f.Channels != 2 {
		t.Errorf("format = %d/%d, want 48000/2", f.SampleRate, f.Channels)
	}
}

func TestInvalidNegotiationRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := ws.Accept(w, r); err == nil {
			t.Error("Accept succeeded with invalid parameters")
		} else {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	for _, query := range []string{"codec=mp3", "sample_rate=abc", "channels=5"} {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?" + query
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		c, _, err := websocket.Dial(ctx, url, nil)
		cancel()
		if err == nil {
			_ = c.Close(websocket.StatusNormalClosure, "")
			t.Errorf("dial with %q should have been rejected", query)
		}
	}
}

func TestControlMessages(t *testing.T) {
	t.Parallel()
	conn, client := dialTestConn(t, "")

	ctx := context.Background()
	for _, msg := range []string{`{"type":"mute"}`, `{"type":"stop"}`, "not json"} {
		if err := client.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	want := []ws.ControlType{ws.ControlMute, ws.ControlStop}
	for _, w := range want {
		select {
		case ctl := <-conn.Controls():
			if ctl.Type != w {
				t.Errorf("control = %q, want %q", ctl.Type, w)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for control %q", w)
		}
	}
}

func TestSendDeliversPlayback(t *testing.T) {
	t.Parallel()
	conn, client := dialTestConn(t, "")

	frame := audio.Frame{PCM: []byte{1, 2, 3, 4}, SampleRate: 16000, Channels: 1}
	if err := conn.Send(context.Background(), frame); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	typ, data, err := client.Read(ctx)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if typ != websocket.MessageBinary {
		t.Fatalf("message type = %v, want binary", typ)
	}
	if string(data) != string(frame.PCM) {
		t.Errorf("payload = %v, want %v", data, frame.PCM)
	}
}

func TestInterruptSendsControl(t *testing.T) {
	t.Parallel()
	conn, client := dialTestConn(t, "")

	if err := conn.Interrupt(); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	typ, data, err := client.Read(ctx)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("message type = %v, want text", typ)
	}
	if !strings.Contains(string(data), "interrupt") {
		t.Errorf("payload = %s, want interrupt control", data)
	}
}

func TestDisconnectClosesChannels(t *testing.T) {
	t.Parallel()
	conn, client := dialTestConn(t, "")

	if err := client.Close(websocket.StatusNormalClosure, ""); err != nil {
		t.Fatalf("client close: %v", err)
	}

	select {
	case _, ok := <-conn.Frames():
		if ok {
			t.Fatal("unexpected frame after disconnect")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("frames channel not closed after disconnect")
	}
}
