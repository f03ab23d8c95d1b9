// Package parser turns raw completion output back into segments. Chunked
// output arrives as blocks joined by ChunkSentinel, one block per chunk
// range; each block is normalized, split into lines and handed to the
// aligner. Output without the sentinel is treated as one whole-transcript
// block.
package parser

import (
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"subrefine/internal/aligner"
	"subrefine/internal/chunker"
	"subrefine/internal/postprocess"
	"subrefine/internal/transcript"
)

// ChunkSentinel is the reserved token inserted between per-chunk completion
// texts before parsing. It is a wire-format contract: the dispatcher joins
// chunk results with it, Parse splits on it, and it never appears in final
// output. Blocks are split on the token wherever it occurs, so a model that
// echoes the sentinel mid-chunk splits that chunk there; the token is
// obscure enough that this has not been observed outside tests.
const ChunkSentinel = "<<<CHUNK_BREAK>>>"

// timeTagRe matches a leading "[...]" timestamp tag on a line. Models are
// told to omit the tags but frequently echo them back.
var timeTagRe = regexp.MustCompile(`^\[[^\]\n]*\]\s*`)

// whitespaceRe collapses internal runs of whitespace to single spaces.
var whitespaceRe = regexp.MustCompile(`\s+`)

// Parse realigns raw completion output with the original segments and
// returns a list of exactly len(originals) segments in original order.
//
// When raw contains ChunkSentinel the chunk ranges are recomputed exactly
// as the chunker produced them for dispatch; otherwise the whole output is
// aligned against the whole transcript in one pass. logger may be nil.
func Parse(raw string, originals []transcript.Segment, maxPerChunk int, logger *slog.Logger) []transcript.Segment {
	if !strings.Contains(raw, ChunkSentinel) {
		return parseGlobal(raw, originals, logger)
	}
	ranges, _ := chunker.Split(originals, maxPerChunk)
	return ParseChunked(raw, originals, ranges, logger)
}

// ParseChunked realigns sentinel-joined chunk output against originals
// using the exact ranges the chunks were dispatched with. Missing trailing
// blocks (a truncated response) are padded with empty text so their
// segments fall back to the originals.
func ParseChunked(raw string, originals []transcript.Segment, ranges []chunker.Range, logger *slog.Logger) []transcript.Segment {
	logger = orDefault(logger)

	blocks := strings.Split(raw, ChunkSentinel)
	for len(blocks) < len(ranges) {
		blocks = append(blocks, "")
	}
	if len(blocks) > len(ranges) {
		logger.Warn("more chunk blocks than ranges, ignoring extras",
			"blocks", len(blocks), "ranges", len(ranges))
		blocks = blocks[:len(ranges)]
	}

	out := make([]transcript.Segment, 0, len(originals))
	for i, r := range ranges {
		chunkSegments := originals[r.Start:r.End]
		lines := splitLines(blocks[i])
		if len(lines) != len(chunkSegments) {
			logger.Warn("chunk line count differs from segment count",
				"chunk", i, "lines", len(lines), "segments", len(chunkSegments))
		}
		out = append(out, aligner.Align(chunkSegments, lines, true)...)
	}

	transcript.ClampEndTimes(out)
	return out
}

// parseGlobal aligns un-chunked output against the whole transcript. The
// tail guard stays off: there is no neighbouring chunk to bleed across the
// boundary.
func parseGlobal(raw string, originals []transcript.Segment, logger *slog.Logger) []transcript.Segment {
	lines := splitLines(raw)
	if len(lines) != len(originals) {
		orDefault(logger).Warn("refined line count differs from segment count",
			"lines", len(lines), "segments", len(originals))
	}
	return aligner.Align(originals, lines, false)
}

// splitLines normalizes one block of completion output into aligned-ready
// lines: artifact cleanup, NFC normalization, newline splitting, timestamp
// tag stripping, whitespace collapsing and blank removal.
func splitLines(block string) []string {
	block = postprocess.Clean(block)
	block = norm.NFC.String(block)
	block = strings.ReplaceAll(block, "\r\n", "\n")

	var lines []string
	for _, line := range strings.Split(block, "\n") {
		line = timeTagRe.ReplaceAllString(strings.TrimSpace(line), "")
		line = strings.TrimSpace(whitespaceRe.ReplaceAllString(line, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
