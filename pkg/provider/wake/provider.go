// Package wake defines the wake-word detection contract. A detector decides
// whether an utterance transcript addresses the assistant, gating the
// dialogue loop while it is idle.
package wake

// Detection is the result of scoring a transcript against the wake word.
type Detection struct {
	// Matched reports whether the wake word was found.
	Matched bool

	// Score is the best match confidence (0.0–1.0). Exact hits score 1.0;
	// phonetic near-matches score lower.
	Score float64

	// Remainder is the transcript text following the matched wake word, with
	// leading punctuation trimmed. When non-empty the user issued a command
	// in the same breath ("computer, what time is it") and the loop can skip
	// a separate listening round.
	Remainder string
}

// Detector scores utterance transcripts for the wake word. Implementations
// must be safe for concurrent use.
type Detector interface {
	// Detect scores the transcript. An empty transcript never matches.
	Detect(transcript string) Detection

	// WakeWord returns the configured wake word.
	WakeWord() string
}
