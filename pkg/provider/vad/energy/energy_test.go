package energy

import (
	"context"
	"testing"

	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/vad"
)

func frameWithAmplitude(amp int16) audio.Frame {
	samples := make([]int16, 160) // 10ms at 16kHz
	for i := range samples {
		samples[i] = amp
	}
	return audio.Frame{PCM: audio.EncodeSamples(samples), SampleRate: 16000, Channels: 1}
}

func newTestSession(t *testing.T) vad.SessionHandle {
	t.Helper()
	s, err := New().NewSession(context.Background(), vad.SessionConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSpeechStartEndCycle(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	defer s.Close()

	loud := frameWithAmplitude(3000) // well above speech threshold
	quiet := frameWithAmplitude(50)  // below silence threshold
	mid := frameWithAmplitude(400)   // inside the hysteresis band

	steps := []struct {
		frame audio.Frame
		want  vad.EventType
	}{
		{quiet, vad.Silence},
		{loud, vad.SpeechStart},
		{loud, vad.SpeechContinue},
		{mid, vad.SpeechContinue}, // hysteresis holds in-speech
		{quiet, vad.SpeechEnd},
		{quiet, vad.Silence},
		{mid, vad.Silence}, // hysteresis holds silence too
		{loud, vad.SpeechStart},
	}
	for i, step := range steps {
		ev, err := s.ProcessFrame(step.frame)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if ev.Type != step.want {
			t.Fatalf("step %d: got %v, want %v", i, ev.Type, step.want)
		}
	}
}

func TestResetReturnsToSilence(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	defer s.Close()

	if ev, _ := s.ProcessFrame(frameWithAmplitude(3000)); ev.Type != vad.SpeechStart {
		t.Fatalf("got %v, want speech_start", ev.Type)
	}
	s.Reset()
	if ev, _ := s.ProcessFrame(frameWithAmplitude(3000)); ev.Type != vad.SpeechStart {
		t.Fatalf("after Reset got %v, want speech_start", ev.Type)
	}
}

func TestInvalidThresholdOrdering(t *testing.T) {
	t.Parallel()

	_, err := New().NewSession(context.Background(), vad.SessionConfig{
		SpeechThreshold:  0.01,
		SilenceThreshold: 0.02,
	})
	if err == nil {
		t.Fatal("silence threshold above speech threshold should fail")
	}
}

func TestProbabilityReportsRMS(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	defer s.Close()

	ev, err := s.ProcessFrame(frameWithAmplitude(16384))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Probability < 0.49 || ev.Probability > 0.51 {
		t.Fatalf("probability = %v, want ~0.5 for half-scale PCM", ev.Probability)
	}
}
