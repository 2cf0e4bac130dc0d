// Package ws carries duplex audio over a WebSocket: binary messages are
// audio (raw PCM or Opus packets, per the negotiated codec), text messages
// are JSON control commands. One connection is one microphone plus one
// speaker.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/hark/internal/transport"
	"github.com/MrWong99/hark/pkg/audio"
)

const (
	defaultSampleRate = 16000
	defaultChannels   = 1

	// frameBuffer bounds inbound frames awaiting pickup. Capture must never
	// stall the socket, so overflow drops the oldest pending work.
	frameBuffer = 256

	controlBuffer = 16
)

// Codec selects the binary payload encoding for a connection.
type Codec string

const (
	// CodecPCM carries raw little-endian 16-bit PCM.
	CodecPCM Codec = "pcm"

	// CodecOpus carries Opus packets at 16 kHz mono, 20 ms per packet.
	CodecOpus Codec = "opus"
)

// ControlType identifies a client control command.
type ControlType string

const (
	// ControlMute gates playback off at the server.
	ControlMute ControlType = "mute"

	// ControlUnmute re-enables playback.
	ControlUnmute ControlType = "unmute"

	// ControlStop cancels the in-flight turn.
	ControlStop ControlType = "stop"

	// ControlClearMemory empties the conversation memory.
	ControlClearMemory ControlType = "clear_memory"
)

// Control is one inbound client command.
type Control struct {
	Type ControlType `json:"type"`
}

// interruptMsg tells the client to discard buffered playback immediately.
var interruptMsg = []byte(`{"type":"interrupt"}`)

// Conn is one established audio WebSocket. Reads run on an internal
// goroutine; Frames and Controls are closed when the peer disconnects.
type Conn struct {
	c          *websocket.Conn
	codec      Codec
	sampleRate int
	channels   int

	frames   chan audio.Frame
	controls chan Control

	writeMu sync.Mutex
	enc     *opusEncoder
	dec     *opusDecoder

	closeOnce sync.Once

	// ts accumulates the inbound stream position; read loop only.
	ts time.Duration
}

// Compile-time assertion that Conn can serve as the router's playback sink.
var _ transport.Sink = (*Conn)(nil)

// Accept upgrades an HTTP request to an audio WebSocket. The codec and input
// format are negotiated via query parameters: codec (pcm|opus), sample_rate,
// channels. Opus connections are fixed at 16 kHz mono. The read loop runs
// until the peer disconnects or the request context ends; callers must keep
// the handler alive for the lifetime of the connection.
func Accept(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	q := r.URL.Query()

	codec := CodecPCM
	if v := q.Get("codec"); v != "" {
		codec = Codec(v)
	}

	conn := &Conn{
		codec:      codec,
		sampleRate: defaultSampleRate,
		channels:   defaultChannels,
		frames:     make(chan audio.Frame, frameBuffer),
		controls:   make(chan Control, controlBuffer),
	}

	switch codec {
	case CodecPCM:
		if v := q.Get("sample_rate"); v != "" {
			rate, err := strconv.Atoi(v)
			if err != nil || rate <= 0 {
				return nil, fmt.Errorf("ws: invalid sample_rate %q", v)
			}
			conn.sampleRate = rate
		}
		if v := q.Get("channels"); v != "" {
			ch, err := strconv.Atoi(v)
			if err != nil || ch < 1 || ch > 2 {
				return nil, fmt.Errorf("ws: invalid channels %q", v)
			}
			conn.channels = ch
		}
	case CodecOpus:
		var err error
		if conn.dec, err = newOpusDecoder(); err != nil {
			return nil, err
		}
		if conn.enc, err = newOpusEncoder(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("ws: unsupported codec %q", codec)
	}

	wsc, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("ws: accept: %w", err)
	}
	conn.c = wsc

	go conn.readLoop(r.Context())
	return conn, nil
}

// Frames returns inbound microphone audio. Closed on disconnect.
func (c *Conn) Frames() <-chan audio.Frame {
	return c.frames
}

// Controls returns inbound client commands. Closed on disconnect.
func (c *Conn) Controls() <-chan Control {
	return c.controls
}

// Codec returns the negotiated payload encoding.
func (c *Conn) Codec() Codec {
	return c.codec
}

func (c *Conn) readLoop(ctx context.Context) {
	defer close(c.frames)
	defer close(c.controls)

	for {
		typ, data, err := c.c.Read(ctx)
		if err != nil {
			return
		}
		switch typ {
		case websocket.MessageBinary:
			frame, err := c.decodeInbound(data)
			if err != nil {
				slog.Warn("dropping undecodable audio message", "error", err)
				continue
			}
			select {
			case c.frames <- frame:
			default:
				// Consumer fell behind; drop rather than stall the socket.
			}
		case websocket.MessageText:
			var ctl Control
			if err := json.Unmarshal(data, &ctl); err != nil {
				slog.Warn("dropping malformed control message", "error", err)
				continue
			}
			select {
			case c.controls <- ctl:
			default:
			}
		}
	}
}

func (c *Conn) decodeInbound(data []byte) (audio.Frame, error) {
	pcm := data
	if c.codec == CodecOpus {
		decoded, err := c.dec.decode(data)
		if err != nil {
			return audio.Frame{}, err
		}
		pcm = decoded
	}
	frame := audio.Frame{
		PCM:        pcm,
		SampleRate: c.sampleRate,
		Channels:   c.channels,
		Timestamp:  c.ts,
	}
	c.ts += frame.Duration()
	return frame, nil
}

// Send delivers one playback frame to the client as one or more binary
// messages, encoding per the negotiated codec.
func (c *Conn) Send(ctx context.Context, frame audio.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.codec == CodecPCM {
		return c.c.Write(ctx, websocket.MessageBinary, frame.PCM)
	}

	packets, err := c.enc.encode(frame.PCM)
	if err != nil {
		return err
	}
	for _, pkt := range packets {
		if err := c.c.Write(ctx, websocket.MessageBinary, pkt); err != nil {
			return err
		}
	}
	return nil
}

// Interrupt tells the client to flush its playback buffer. Any partially
// encoded audio is discarded with it.
func (c *Conn) Interrupt() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.enc != nil {
		c.enc.reset()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.c.Write(ctx, websocket.MessageText, interruptMsg)
}

// Close terminates the connection. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.c.Close(websocket.StatusNormalClosure, "")
	})
	return err
}
