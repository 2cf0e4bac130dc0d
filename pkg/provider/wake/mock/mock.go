// Package mock provides a scriptable test double for wake.Detector.
package mock

import (
	"sync"

	"github.com/MrWong99/hark/pkg/provider/wake"
)

// Detector is a mock wake.Detector. MatchOn maps transcripts to detections;
// anything not listed does not match.
type Detector struct {
	mu sync.Mutex

	// Word is returned from WakeWord. Defaults to "computer" when empty.
	Word string

	// MatchOn maps exact transcripts to their detection result.
	MatchOn map[string]wake.Detection

	// Calls records every transcript passed to Detect.
	Calls []string
}

// Compile-time assertion that Detector satisfies wake.Detector.
var _ wake.Detector = (*Detector)(nil)

// Detect implements wake.Detector.
func (d *Detector) Detect(transcript string) wake.Detection {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, transcript)
	if det, ok := d.MatchOn[transcript]; ok {
		return det
	}
	return wake.Detection{}
}

// WakeWord implements wake.Detector.
func (d *Detector) WakeWord() string {
	if d.Word == "" {
		return "computer"
	}
	return d.Word
}
