package turn

import (
	"time"

	"github.com/MrWong99/hark/pkg/audio"
)

// BargeInConfig tunes interruption detection during playback.
type BargeInConfig struct {
	// Window is the debounce window: incoming speech must dominate this much
	// recent audio before playback is interrupted.
	Window time.Duration

	// SpeechRatio is the fraction of the window that must be speech to
	// trigger, in (0, 1]. Two thirds rejects coughs and short noises while
	// still firing within one window of sustained speech.
	SpeechRatio float64

	// StartedTalkingThreshold is the VAD probability above which a playback
	// frame counts as the user talking.
	StartedTalkingThreshold float64
}

// bargeVote is one frame's contribution to the debounce window.
type bargeVote struct {
	frame  audio.Frame
	dur    time.Duration
	speech bool
}

// bargeDetector keeps a sliding vote window over incoming frames during
// playback. It buffers the window's frames so a trigger can hand the
// interrupting audio to the segmenter as the start of the next utterance.
// Owned by the controller goroutine; no locking.
type bargeDetector struct {
	cfg       BargeInConfig
	votes     []bargeVote
	totalDur  time.Duration
	speechDur time.Duration
}

func newBargeDetector(cfg BargeInConfig) *bargeDetector {
	return &bargeDetector{cfg: cfg}
}

// feed pushes one frame's vote and reports whether the interruption
// threshold is now met. Duration is taken from the frame itself.
func (b *bargeDetector) feed(frame audio.Frame, speech bool) bool {
	dur := frame.Duration()
	if dur <= 0 {
		return false
	}

	b.votes = append(b.votes, bargeVote{frame: frame, dur: dur, speech: speech})
	b.totalDur += dur
	if speech {
		b.speechDur += dur
	}

	// Evict old votes, keeping at least one full window of history.
	for len(b.votes) > 1 && b.totalDur-b.votes[0].dur >= b.cfg.Window {
		old := b.votes[0]
		b.votes = b.votes[1:]
		b.totalDur -= old.dur
		if old.speech {
			b.speechDur -= old.dur
		}
	}

	if b.totalDur < b.cfg.Window {
		return false
	}
	return float64(b.speechDur) >= b.cfg.SpeechRatio*float64(b.totalDur)
}

// window returns the buffered frames, oldest first. Called on trigger to
// seed the next utterance with the speech that caused the interruption.
func (b *bargeDetector) window() []audio.Frame {
	out := make([]audio.Frame, len(b.votes))
	for i, v := range b.votes {
		out[i] = v.frame
	}
	return out
}

// reset clears the window.
func (b *bargeDetector) reset() {
	b.votes = nil
	b.totalDur = 0
	b.speechDur = 0
}
