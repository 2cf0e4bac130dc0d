package ws

import (
	"fmt"

	"layeh.com/gopus"
)

// Opus connections run 16 kHz mono with 20 ms packets, matching the
// pipeline's native STT format so no resampling happens on the hot path.
const (
	opusSampleRate  = 16000
	opusChannels    = 1
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per 20 ms packet.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 320
)

// opusDecoder wraps a gopus Opus decoder for the inbound microphone stream.
// Decoder state carries across consecutive packets, so one decoder serves the
// whole connection.
type opusDecoder struct {
	dec *gopus.Decoder
}

func newOpusDecoder() (*opusDecoder, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("ws: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec}, nil
}

// decode decodes one Opus packet into little-endian int16 PCM bytes.
func (d *opusDecoder) decode(opus []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(opus, opusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("ws: opus decode: %w", err)
	}
	return int16sToBytes(pcm), nil
}

// opusEncoder wraps a gopus Opus encoder for the playback stream. Playback
// frames rarely align to the 20 ms packet size, so samples that do not fill a
// whole packet are held until the next frame arrives.
type opusEncoder struct {
	enc     *gopus.Encoder
	pending []int16
}

func newOpusEncoder() (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("ws: create opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc}, nil
}

// encode appends pcmBytes to the pending samples and returns every complete
// packet that can be cut from them.
func (e *opusEncoder) encode(pcmBytes []byte) ([][]byte, error) {
	e.pending = append(e.pending, bytesToInt16s(pcmBytes)...)

	var packets [][]byte
	for len(e.pending) >= opusFrameSize {
		chunk := e.pending[:opusFrameSize]
		pkt, err := e.enc.Encode(chunk, opusFrameSize, opusFrameSize*2)
		if err != nil {
			return nil, fmt.Errorf("ws: opus encode: %w", err)
		}
		packets = append(packets, pkt)
		e.pending = e.pending[opusFrameSize:]
	}
	return packets, nil
}

// reset drops partially buffered samples, used when playback is interrupted.
func (e *opusEncoder) reset() {
	e.pending = nil
}

// int16sToBytes converts int16 PCM samples to little-endian bytes.
func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// bytesToInt16s converts little-endian bytes to int16 PCM samples.
func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
