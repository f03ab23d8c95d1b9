// Package aligner reconciles model-corrected lines with the original
// timestamped segments of a chunk. The model is free to split, merge, drop
// or invent lines, so the mapping is recovered with a global
// sequence-alignment pass (Needleman-Wunsch shape) over segments × lines:
// matched segments take the corrected text, unmatched ones keep their
// original text, and timestamps always come from the originals.
package aligner

import (
	"subrefine/internal/scorer"
	"subrefine/internal/transcript"
)

const (
	// gapPenalty is the score charged for skipping one segment or one
	// line instead of matching.
	gapPenalty = -0.5

	// tailGuardWindow and tailGuardMaxDelta bound the defensive check on
	// the trailing segments of a chunk: a replacement whose length
	// deviates more than 50% from the original near a chunk boundary is
	// likely misaligned spillover from the neighbouring chunk, so the
	// original text is kept.
	tailGuardWindow   = 3
	tailGuardMaxDelta = 0.5
)

// unmatched marks a segment with no corresponding refined line.
const unmatched = -1

type move uint8

const (
	moveNone move = iota
	moveMatch
	moveSkipOriginal
	moveSkipRefined
)

// Align maps refined lines onto original segments and returns a new segment
// list of exactly len(original). applyTailGuard enables the chunk-boundary
// length check; it is off for whole-transcript alignment where there is no
// neighbouring chunk to spill from.
func Align(original []transcript.Segment, refined []string, applyTailGuard bool) []transcript.Segment {
	mapping := alignIndices(original, refined)

	out := make([]transcript.Segment, len(original))
	for i, seg := range original {
		out[i] = seg
		if j := mapping[i]; j != unmatched {
			out[i].Text = refined[j]
		}
	}

	if applyTailGuard {
		guardTail(out, original)
	}

	transcript.ClampEndTimes(out)
	return out
}

// alignIndices runs the DP and returns, per original index, the refined
// line index it maps to or unmatched.
//
// The transition preference on exactly equal scores is Match, then
// skip-original, then skip-refined. Nothing deep: it is kept fixed so
// output is stable run to run.
func alignIndices(original []transcript.Segment, refined []string) []int {
	n, m := len(original), len(refined)

	score := make([][]float64, n+1)
	trace := make([][]move, n+1)
	for i := 0; i <= n; i++ {
		score[i] = make([]float64, m+1)
		trace[i] = make([]move, m+1)
	}
	for i := 1; i <= n; i++ {
		score[i][0] = score[i-1][0] + gapPenalty
		trace[i][0] = moveSkipOriginal
	}
	for j := 1; j <= m; j++ {
		score[0][j] = score[0][j-1] + gapPenalty
		trace[0][j] = moveSkipRefined
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			match := score[i-1][j-1] + scorer.Similarity(original[i-1].Text, refined[j-1])
			skipOriginal := score[i-1][j] + gapPenalty
			skipRefined := score[i][j-1] + gapPenalty

			switch {
			case match >= skipOriginal && match >= skipRefined:
				score[i][j] = match
				trace[i][j] = moveMatch
			case skipOriginal >= skipRefined:
				score[i][j] = skipOriginal
				trace[i][j] = moveSkipOriginal
			default:
				score[i][j] = skipRefined
				trace[i][j] = moveSkipRefined
			}
		}
	}

	mapping := make([]int, n)
	for i := range mapping {
		mapping[i] = unmatched
	}
	for i, j := n, m; i > 0 || j > 0; {
		switch trace[i][j] {
		case moveMatch:
			mapping[i-1] = j - 1
			i--
			j--
		case moveSkipOriginal:
			i--
		case moveSkipRefined:
			j--
		default:
			return mapping
		}
	}
	return mapping
}

// guardTail reverts suspicious replacements on the last segments of a
// chunk. A replacement is suspicious when its rune length deviates from the
// original's by more than tailGuardMaxDelta relative to the original.
func guardTail(out, original []transcript.Segment) {
	start := len(out) - tailGuardWindow
	if start < 0 {
		start = 0
	}
	for i := start; i < len(out); i++ {
		if out[i].Text == original[i].Text {
			continue
		}
		origLen := len([]rune(original[i].Text))
		newLen := len([]rune(out[i].Text))
		delta := newLen - origLen
		if delta < 0 {
			delta = -delta
		}
		if float64(delta) > tailGuardMaxDelta*float64(origLen) {
			out[i].Text = original[i].Text
		}
	}
}
