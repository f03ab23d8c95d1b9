// Package refiner is the top of the pipeline: it chunks a transcript,
// dispatches the chunks to a completion endpoint, joins the results with
// the chunk sentinel and realigns them into a corrected segment list of the
// same shape as the input.
package refiner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"subrefine/internal/chunker"
	"subrefine/internal/completion"
	"subrefine/internal/dispatcher"
	"subrefine/internal/parser"
	"subrefine/internal/transcript"
)

// Orchestrator wires chunking, dispatch and parsing. Zero-value fields fall
// back to defaults: DefaultConcurrency workers, DefaultMaxPerChunk segments
// per chunk, slog.Default logging and the built-in preamble.
type Orchestrator struct {
	Client      completion.Client
	Logger      *slog.Logger
	RunID       string
	Concurrency int
	MaxPerChunk int

	// PreambleBuilder produces the context block prepended to every
	// chunk prompt. Nil uses DefaultPreamble.
	PreambleBuilder func(title, description string) string

	// OnPriority, when set, receives the realigned priority-window
	// segments as soon as every priority chunk has completed. Fires at
	// most once per Refine call, from a worker goroutine.
	OnPriority func(partial []transcript.Segment)
}

// DefaultPreamble renders the video title and description into prompt
// context, skipping empty parts.
func DefaultPreamble(title, description string) string {
	var sb strings.Builder
	if title != "" {
		fmt.Fprintf(&sb, "Video title: %s\n", title)
	}
	if description != "" {
		fmt.Fprintf(&sb, "Video description: %s\n", description)
	}
	if sb.Len() == 0 {
		return ""
	}
	return "Context for correcting the transcript below:\n" + sb.String()
}

// Refine corrects a transcript and returns a segment list with the same
// length and order as the input; timestamps are never changed. Failed
// chunks keep their original text, so the worst case is the unrefined
// input, never lost lines. An empty transcript returns empty output.
func (o *Orchestrator) Refine(ctx context.Context, segments []transcript.Segment, title, description string) ([]transcript.Segment, error) {
	if len(segments) == 0 {
		return []transcript.Segment{}, nil
	}

	maxPerChunk := o.MaxPerChunk
	if maxPerChunk <= 0 {
		maxPerChunk = chunker.DefaultMaxPerChunk
	}
	buildPreamble := o.PreambleBuilder
	if buildPreamble == nil {
		buildPreamble = DefaultPreamble
	}

	ranges, priorityCount := chunker.Split(segments, maxPerChunk)

	d := &dispatcher.Dispatcher{
		Client: o.Client,
		Logger: o.Logger,
		RunID:  o.RunID,
	}
	opts := dispatcher.Options{
		Preamble:      buildPreamble(title, description),
		Concurrency:   o.Concurrency,
		PriorityCount: priorityCount,
	}
	if o.OnPriority != nil {
		priorityEnd := ranges[priorityCount-1].End
		priorityRanges := ranges[:priorityCount]
		opts.OnPriority = func(raw string) {
			o.OnPriority(parser.ParseChunked(raw, segments[:priorityEnd], priorityRanges, o.Logger))
		}
	}

	results := d.Dispatch(ctx, ranges, segments, opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	raw := strings.Join(texts, parser.ChunkSentinel)

	return parser.ParseChunked(raw, segments, ranges, o.Logger), nil
}
