// Package chunker splits an ordered transcript into contiguous, size-bounded
// index ranges for per-chunk refinement, and computes the priority window:
// the leading minutes of a video that are refined and reported before the
// rest so playback can show corrected captions early.
package chunker

import "subrefine/internal/transcript"

const (
	// DefaultMaxPerChunk is the default number of segments sent to the
	// model in a single request.
	DefaultMaxPerChunk = 30

	// priorityWindowCapMS caps the priority window at five minutes.
	priorityWindowCapMS = 5 * 60 * 1000
)

// Range is a half-open [Start, End) index interval over the segment list.
// The ranges produced for one transcript partition it exactly: no gaps, no
// overlaps, in order.
type Range struct {
	Start int
	End   int
}

// Len returns the number of segments the range covers.
func (r Range) Len() int { return r.End - r.Start }

// Ranges slices count segments into consecutive ranges of at most
// maxPerChunk each, left to right. maxPerChunk ≤ 0 falls back to
// DefaultMaxPerChunk.
func Ranges(count, maxPerChunk int) []Range {
	if count <= 0 {
		return nil
	}
	if maxPerChunk <= 0 {
		maxPerChunk = DefaultMaxPerChunk
	}

	ranges := make([]Range, 0, (count+maxPerChunk-1)/maxPerChunk)
	for start := 0; start < count; start += maxPerChunk {
		end := start + maxPerChunk
		if end > count {
			end = count
		}
		ranges = append(ranges, Range{Start: start, End: end})
	}
	return ranges
}

// PriorityWindowMS returns the duration of the priority window for a
// transcript of the given total duration: five minutes, or half the video,
// whichever is shorter.
func PriorityWindowMS(durationMS int64) int64 {
	half := durationMS / 2
	if half < priorityWindowCapMS {
		return half
	}
	return priorityWindowCapMS
}

// Split partitions segments into chunk ranges with the priority sub-list
// chunked first, and returns the ranges plus the number of leading ranges
// that cover the priority window.
//
// The priority sub-list runs through the first segment whose end time
// exceeds the window, inclusive; when no segment does, the whole transcript
// is priority. Priority and remainder are chunked independently with the
// same maxPerChunk, so a window boundary mid-chunk shortens the last
// priority range rather than shifting the remainder.
func Split(segments []transcript.Segment, maxPerChunk int) ([]Range, int) {
	if len(segments) == 0 {
		return nil, 0
	}

	boundary := priorityBoundary(segments)

	priority := Ranges(boundary, maxPerChunk)
	remainder := Ranges(len(segments)-boundary, maxPerChunk)
	for i := range remainder {
		remainder[i].Start += boundary
		remainder[i].End += boundary
	}

	return append(priority, remainder...), len(priority)
}

// priorityBoundary returns the count of leading segments inside the
// priority window: index of the first segment with EndMS beyond the window,
// plus one, or the full length when every segment ends inside it.
func priorityBoundary(segments []transcript.Segment) int {
	window := PriorityWindowMS(transcript.DurationMS(segments))
	for i, s := range segments {
		if s.EndMS > window {
			return i + 1
		}
	}
	return len(segments)
}
