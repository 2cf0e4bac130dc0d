// Package server exposes the Hark HTTP surface: the duplex audio WebSocket,
// the lifecycle event feed, health probes, and the Prometheus metrics
// endpoint.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/hark/internal/health"
	"github.com/MrWong99/hark/internal/transport"
	"github.com/MrWong99/hark/internal/transport/ws"
	"github.com/MrWong99/hark/pkg/audio"
)

const shutdownGrace = 10 * time.Second

// Dialogue is the controller surface the server drives. Implemented by
// *turn.Controller.
type Dialogue interface {
	// Submit offers a captured frame; reports false when dropped.
	Submit(frame audio.Frame) bool

	// Stop cancels the in-flight turn.
	Stop()

	// ClearMemory empties the conversation memory.
	ClearMemory(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	// Addr is the TCP listen address.
	Addr string

	// CertFile/KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string

	// Dialogue receives audio and control commands from clients.
	Dialogue Dialogue

	// Router is the playback fan-out the audio connection attaches to.
	Router *transport.Router

	// Health serves the liveness and readiness probes.
	Health *health.Handler

	// Events feeds the /events WebSocket. Optional.
	Events *EventHub
}

// Server is the HTTP front of a running Hark instance.
type Server struct {
	opts Options
	http *http.Server
}

// New assembles the route table and returns a Server ready for
// [Server.ListenAndServe].
func New(opts Options) *Server {
	s := &Server{opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleAudio)
	if opts.Events != nil {
		mux.HandleFunc("GET /events", opts.Events.Handle)
	}
	if opts.Health != nil {
		opts.Health.Register(mux)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe runs the server until ctx is cancelled, then drains with a
// grace period.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.opts.CertFile != "" && s.opts.KeyFile != "" {
			err = s.http.ListenAndServeTLS(s.opts.CertFile, s.opts.KeyFile)
		} else {
			err = s.http.ListenAndServe()
		}
		errCh <- err
	}()

	slog.Info("http server listening", "addr", s.opts.Addr, "tls", s.opts.CertFile != "")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleAudio owns one client's audio session: frames flow to the dialogue
// controller, playback flows back through the router, and control commands
// are applied inline. One client at a time; a new connection displaces the
// previous one as the playback sink.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer conn.Close()

	s.opts.Router.Attach(conn)
	defer s.opts.Router.Detach(conn)
	slog.Info("audio client connected", "remote", r.RemoteAddr, "codec", conn.Codec())
	defer slog.Info("audio client disconnected", "remote", r.RemoteAddr)

	frames := conn.Frames()
	controls := conn.Controls()
	for frames != nil || controls != nil {
		select {
		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			// Mute gates capture here, before wake/VAD ever see the frame.
			if s.opts.Router.Muted() {
				continue
			}
			s.opts.Dialogue.Submit(frame)
		case ctl, ok := <-controls:
			if !ok {
				controls = nil
				continue
			}
			s.applyControl(r.Context(), ctl)
		}
	}
}

func (s *Server) applyControl(ctx context.Context, ctl ws.Control) {
	switch ctl.Type {
	case ws.ControlMute:
		s.opts.Router.SetMuted(true)
	case ws.ControlUnmute:
		s.opts.Router.SetMuted(false)
	case ws.ControlStop:
		s.opts.Dialogue.Stop()
	case ws.ControlClearMemory:
		if err := s.opts.Dialogue.ClearMemory(ctx); err != nil {
			slog.Error("clear memory failed", "error", err)
		}
	default:
		slog.Warn("ignoring unknown control", "type", ctl.Type)
	}
}
