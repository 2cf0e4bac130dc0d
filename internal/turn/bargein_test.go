package turn

import (
	"testing"
	"time"

	"github.com/MrWong99/hark/pkg/audio"
)

func bargeFrame(d time.Duration, marker byte) audio.Frame {
	n := int(16000 * d.Seconds())
	pcm := make([]byte, n*2)
	if len(pcm) > 0 {
		pcm[0] = marker
	}
	return audio.Frame{PCM: pcm, SampleRate: 16000, Channels: 1}
}

func TestBargeDetectorTriggersOnSustainedSpeech(t *testing.T) {
	t.Parallel()
	b := newBargeDetector(BargeInConfig{
		Window:      300 * time.Millisecond,
		SpeechRatio: 2.0 / 3.0,
	})
	f := bargeFrame(100*time.Millisecond, 0)

	if b.feed(f, true) || b.feed(f, true) {
		t.Fatal("triggered before the window filled")
	}
	if !b.feed(f, true) {
		t.Fatal("did not trigger after a full window of speech")
	}
}

func TestBargeDetectorIgnoresShortNoise(t *testing.T) {
	t.Parallel()
	b := newBargeDetector(BargeInConfig{
		Window:      300 * time.Millisecond,
		SpeechRatio: 2.0 / 3.0,
	})
	f := bargeFrame(100*time.Millisecond, 0)

	// One speech frame in every three keeps the ratio at 1/3, below 2/3.
	for i := 0; i < 12; i++ {
		if b.feed(f, i%3 == 0) {
			t.Fatalf("triggered at frame %d with 1/3 speech ratio", i)
		}
	}
}

func TestBargeDetectorSlidesOldVotesOut(t *testing.T) {
	t.Parallel()
	b := newBargeDetector(BargeInConfig{
		Window:      300 * time.Millisecond,
		SpeechRatio: 2.0 / 3.0,
	})
	f := bargeFrame(100*time.Millisecond, 0)

	// Fill the window with silence, then speak: the stale silence must age
	// out so sustained speech still triggers within one window.
	for i := 0; i < 5; i++ {
		if b.feed(f, false) {
			t.Fatal("triggered on silence")
		}
	}
	var triggered bool
	for i := 0; i < 3; i++ {
		triggered = b.feed(f, true)
	}
	if !triggered {
		t.Fatal("speech after stale silence did not trigger")
	}
}

func TestBargeDetectorWindowReturnsFramesOldestFirst(t *testing.T) {
	t.Parallel()
	b := newBargeDetector(BargeInConfig{
		Window:      300 * time.Millisecond,
		SpeechRatio: 2.0 / 3.0,
	})

	for i := byte(0); i < 5; i++ {
		b.feed(bargeFrame(100*time.Millisecond, i), true)
	}
	w := b.window()
	if len(w) != 3 {
		t.Fatalf("window holds %d frames, want 3", len(w))
	}
	// Frames 0 and 1 aged out; 2, 3, 4 remain in arrival order.
	for i, want := range []byte{2, 3, 4} {
		if w[i].PCM[0] != want {
			t.Errorf("window[%d] marker = %d, want %d", i, w[i].PCM[0], want)
		}
	}
}

func TestBargeDetectorReset(t *testing.T) {
	t.Parallel()
	b := newBargeDetector(BargeInConfig{
		Window:      300 * time.Millisecond,
		SpeechRatio: 2.0 / 3.0,
	})
	f := bargeFrame(100*time.Millisecond, 0)

	b.feed(f, true)
	b.feed(f, true)
	b.reset()
	if len(b.window()) != 0 {
		t.Fatal("reset left frames in the window")
	}
	if b.feed(f, true) || b.feed(f, true) {
		t.Fatal("triggered before a full window after reset")
	}
}
