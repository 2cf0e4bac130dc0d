// Package phonetic implements wake.Detector with fuzzy string matching.
// STT engines routinely mangle the wake word ("komputer", "commuter"), so an
// exact substring check misses real activations. This detector combines
// Double Metaphone codes with Jaro-Winkler similarity: a token matches when
// it either looks very close to the wake word, or looks moderately close and
// sounds identical.
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/hark/pkg/provider/wake"
)

// DefaultWakeWord is the activation word when none is configured.
const DefaultWakeWord = "computer"

// Similarity thresholds. A token is accepted on string similarity alone at
// the strong bar, or at the weak bar when its Double Metaphone code also
// agrees with the wake word's.
const (
	defaultStrongThreshold = 0.85
	defaultWeakThreshold   = 0.70
)

// Detector scores transcripts against a single wake word.
type Detector struct {
	wakeWord  string
	primary   string
	secondary string
	strong    float64
	weak      float64
}

// Compile-time assertion that Detector satisfies wake.Detector.
var _ wake.Detector = (*Detector)(nil)

// Option configures a Detector.
type Option func(*Detector)

// WithThresholds overrides the strong (similarity alone) and weak (similarity
// plus phonetic agreement) acceptance bars.
func WithThresholds(strong, weak float64) Option {
	return func(d *Detector) {
		d.strong = strong
		d.weak = weak
	}
}

// New creates a Detector for the given wake word. An empty wake word falls
// back to [DefaultWakeWord].
func New(wakeWord string, opts ...Option) *Detector {
	if wakeWord == "" {
		wakeWord = DefaultWakeWord
	}
	wakeWord = strings.ToLower(strings.TrimSpace(wakeWord))

	d := &Detector{
		wakeWord: wakeWord,
		strong:   defaultStrongThreshold,
		weak:     defaultWeakThreshold,
	}
	d.primary, d.secondary = matchr.DoubleMetaphone(wakeWord)
	for _, o := range opts {
		o(d)
	}
	return d
}

// WakeWord implements wake.Detector.
func (d *Detector) WakeWord() string { return d.wakeWord }

// Detect implements wake.Detector. It scans the transcript token by token
// and matches on the first accepted token, so a wake word buried mid-sentence
// still activates.
func (d *Detector) Detect(transcript string) wake.Detection {
	fields := strings.Fields(transcript)
	for i, field := range fields {
		token := normalizeToken(field)
		if token == "" {
			continue
		}
		score, ok := d.scoreToken(token)
		if !ok {
			continue
		}
		return wake.Detection{
			Matched:   true,
			Score:     score,
			Remainder: strings.Join(fields[i+1:], " "),
		}
	}
	return wake.Detection{}
}

// scoreToken returns the Jaro-Winkler similarity and whether the token is
// accepted as the wake word.
func (d *Detector) scoreToken(token string) (float64, bool) {
	if token == d.wakeWord {
		return 1.0, true
	}

	jw := matchr.JaroWinkler(token, d.wakeWord, true)
	if jw >= d.strong {
		return jw, true
	}
	if jw >= d.weak && d.soundsAlike(token) {
		return jw, true
	}
	return jw, false
}

// soundsAlike reports whether the token shares a Double Metaphone code with
// the wake word.
func (d *Detector) soundsAlike(token string) bool {
	p, s := matchr.DoubleMetaphone(token)
	for _, code := range []string{p, s} {
		if code == "" {
			continue
		}
		if code == d.primary || (d.secondary != "" && code == d.secondary) {
			return true
		}
	}
	return false
}

// normalizeToken lowercases and strips surrounding punctuation so "Computer,"
// compares as "computer".
func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}))
}
