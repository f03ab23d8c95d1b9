// Package transcript defines the timestamped segment model the refinement
// pipeline operates on, plus the JSON codec and timestamp-text helpers
// shared by the prompt renderer and the aligner.
package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Segment is one transcript line. StartMS/EndMS are milliseconds from the
// start of the video. Segments are ordered by StartMS; the pipeline never
// reorders them and never changes their count.
type Segment struct {
	Text          string `json:"text"`
	StartMS       int64  `json:"start_ms"`
	EndMS         int64  `json:"end_ms"`
	StartTimeText string `json:"start_time_text,omitempty"`
}

// TimeTag returns the bracketed timestamp prefix used when rendering a
// segment into a prompt, e.g. "[1:05]". StartTimeText wins when the
// transcript source supplied one.
func (s Segment) TimeTag() string {
	if s.StartTimeText != "" {
		return "[" + s.StartTimeText + "]"
	}
	return "[" + FormatTimeText(s.StartMS) + "]"
}

// FormatTimeText renders milliseconds as "m:ss" or "h:mm:ss".
func FormatTimeText(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	totalSec := ms / 1000
	h := totalSec / 3600
	m := (totalSec % 3600) / 60
	sec := totalSec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

// DurationMS returns the end time of the last segment, which the chunker
// treats as the transcript duration. Zero for an empty list.
func DurationMS(segments []Segment) int64 {
	if len(segments) == 0 {
		return 0
	}
	return segments[len(segments)-1].EndMS
}

// ClampEndTimes lowers any EndMS that overshoots the next segment's StartMS
// down to that StartMS, in place, so segments never overlap.
func ClampEndTimes(segments []Segment) {
	for i := 0; i < len(segments)-1; i++ {
		if segments[i].EndMS > segments[i+1].StartMS {
			segments[i].EndMS = segments[i+1].StartMS
		}
	}
}

// Validate checks segment ordering and timestamp sanity.
func Validate(segments []Segment) error {
	for i, s := range segments {
		if s.StartMS < 0 || s.EndMS < 0 {
			return fmt.Errorf("segment %d: negative timestamp", i)
		}
		if s.EndMS < s.StartMS {
			return fmt.Errorf("segment %d: end %dms before start %dms", i, s.EndMS, s.StartMS)
		}
		if i > 0 && s.StartMS < segments[i-1].StartMS {
			return fmt.Errorf("segment %d: starts at %dms before previous segment at %dms", i, s.StartMS, segments[i-1].StartMS)
		}
	}
	return nil
}

// Load decodes a JSON array of segments and validates it.
func Load(r io.Reader) ([]Segment, error) {
	var segments []Segment
	if err := json.NewDecoder(r).Decode(&segments); err != nil {
		return nil, fmt.Errorf("failed to decode segments: %w", err)
	}
	if err := Validate(segments); err != nil {
		return nil, fmt.Errorf("invalid transcript: %w", err)
	}
	return segments, nil
}

// LoadFile reads segments from a JSON file.
func LoadFile(path string) ([]Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Save writes segments as indented JSON.
func Save(w io.Writer, segments []Segment) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(segments); err != nil {
		return fmt.Errorf("failed to encode segments: %w", err)
	}
	return nil
}

// SaveFile writes segments to path, creating or truncating it.
func SaveFile(path string, segments []Segment) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()
	return Save(f, segments)
}
