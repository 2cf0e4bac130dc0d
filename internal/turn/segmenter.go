package turn

import (
	"time"

	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/vad"
)

// SegmenterConfig bounds utterance capture. All durations are counted from
// frame lengths, not wall-clock time, so capture behaves identically under
// test and in production.
type SegmenterConfig struct {
	// MinSpeech is the minimum accumulated speech for a valid utterance;
	// anything shorter is discarded as noise.
	MinSpeech time.Duration

	// MaxSpeech is the forced-cutoff cap on total utterance length. An
	// utterance reaching it is finalized immediately, never dropped.
	MaxSpeech time.Duration

	// MinSilence is the trailing silence that ends an utterance.
	MinSilence time.Duration

	// SpeechPad is how much audio preceding speech onset is prepended to the
	// utterance, so a soft first syllable is not clipped.
	SpeechPad time.Duration
}

// segResult classifies the outcome of feeding one frame.
type segResult int

const (
	// segNone means the utterance is still open (or nothing is happening).
	segNone segResult = iota

	// segUtterance means a valid utterance just finalized.
	segUtterance

	// segNoise means a sub-minimum utterance just ended and was discarded.
	segNoise
)

// utterance is a finalized audio segment.
type utterance struct {
	pcm        []byte
	sampleRate int
	channels   int
	speech     time.Duration
	total      time.Duration
	forced     bool
}

// segmenter accumulates one utterance at a time from frames plus their VAD
// events. It keeps a pre-roll ring while inactive so speech onset includes
// the configured padding. Owned by the controller goroutine; no locking.
type segmenter struct {
	cfg SegmenterConfig

	// pre-roll ring, kept only while no utterance is active
	preRoll    []audio.Frame
	preRollDur time.Duration

	active     bool
	buf        []byte
	sampleRate int
	channels   int
	speechDur  time.Duration
	silenceDur time.Duration
	totalDur   time.Duration
}

func newSegmenter(cfg SegmenterConfig) *segmenter {
	return &segmenter{cfg: cfg}
}

// feed processes one frame and its VAD event. When it returns segUtterance
// the utterance holds the finalized segment; on segNoise the segment was
// discarded and capture returned to the inactive state.
func (s *segmenter) feed(frame audio.Frame, ev vad.Event) (utterance, segResult) {
	dur := frame.Duration()
	speech := ev.Type == vad.SpeechStart || ev.Type == vad.SpeechContinue

	if !s.active {
		if !speech {
			s.pushPreRoll(frame, dur)
			return utterance{}, segNone
		}
		s.begin(frame)
	} else {
		s.buf = append(s.buf, frame.PCM...)
		s.totalDur += dur
		if speech {
			s.speechDur += dur
			s.silenceDur = 0
		} else {
			s.silenceDur += dur
		}
	}

	// Forced cutoff: finalize regardless of trailing silence.
	if s.cfg.MaxSpeech > 0 && s.totalDur >= s.cfg.MaxSpeech {
		return s.finalize(true)
	}

	if s.silenceDur >= s.cfg.MinSilence {
		return s.finalize(false)
	}

	return utterance{}, segNone
}

// seed replays frames captured elsewhere (the barge-in window) as if they
// had just arrived, so the interrupting speech opens the next utterance.
func (s *segmenter) seed(frames []audio.Frame, session vad.SessionHandle) {
	for _, f := range frames {
		ev, err := session.ProcessFrame(f)
		if err != nil {
			continue
		}
		// Finalization inside the seed window is impossible in practice
		// (the window is shorter than MinSilence); discard if it happens.
		s.feed(f, ev)
	}
}

// reset discards all capture state including the pre-roll.
func (s *segmenter) reset() {
	s.preRoll = nil
	s.preRollDur = 0
	s.active = false
	s.buf = nil
	s.speechDur = 0
	s.silenceDur = 0
	s.totalDur = 0
}

func (s *segmenter) begin(frame audio.Frame) {
	s.active = true
	s.sampleRate = frame.SampleRate
	s.channels = frame.Channels

	var buf []byte
	for _, f := range s.preRoll {
		buf = append(buf, f.PCM...)
	}
	s.buf = append(buf, frame.PCM...)
	s.totalDur = s.preRollDur + frame.Duration()
	s.speechDur = frame.Duration()
	s.silenceDur = 0
	s.preRoll = nil
	s.preRollDur = 0
}

func (s *segmenter) pushPreRoll(frame audio.Frame, dur time.Duration) {
	if s.cfg.SpeechPad <= 0 {
		return
	}
	s.preRoll = append(s.preRoll, frame)
	s.preRollDur += dur
	for len(s.preRoll) > 0 && s.preRollDur-s.preRoll[0].Duration() >= s.cfg.SpeechPad {
		s.preRollDur -= s.preRoll[0].Duration()
		s.preRoll = s.preRoll[1:]
	}
}

func (s *segmenter) finalize(forced bool) (utterance, segResult) {
	u := utterance{
		pcm:        s.buf,
		sampleRate: s.sampleRate,
		channels:   s.channels,
		speech:     s.speechDur,
		total:      s.totalDur,
		forced:     forced,
	}
	s.active = false
	s.buf = nil
	s.speechDur = 0
	s.silenceDur = 0
	s.totalDur = 0

	if u.speech < s.cfg.MinSpeech {
		return utterance{}, segNoise
	}
	return u, segUtterance
}
