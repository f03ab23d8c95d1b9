// Package dispatcher fans transcript chunks out to a completion endpoint
// under a bounded worker pool. Results are written back by chunk index so
// the final order never depends on completion order, and a one-shot
// callback fires the moment every priority chunk has completed, letting
// callers show the first minutes of a video before the rest is done.
package dispatcher

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"subrefine/internal/chunker"
	"subrefine/internal/completion"
	"subrefine/internal/parser"
	"subrefine/internal/transcript"
)

// DefaultConcurrency is the default worker-pool size.
const DefaultConcurrency = 8

// SystemPrompt carries the fixed correction instructions sent with every
// chunk. The per-line contract (one corrected line per input line, tags
// omitted) is what the parser and aligner downstream rely on.
const SystemPrompt = `You are a subtitle editor. The user sends lines from an automatic video
transcript, one line per row, each prefixed with a [timestamp] tag.
The lines contain speech recognition errors.

Rules:
1. Fix misrecognized words, punctuation and capitalization using the surrounding context.
2. Keep the wording as close to the original as possible; never summarize or embellish.
3. Keep the language of the transcript. Do not translate.
4. Return exactly one corrected line per input line, in the same order.
5. Never merge, split, add or remove lines.
6. Do not include the [timestamp] tags in your output.
Respond with the corrected lines only.`

// Result is one chunk's outcome. Text is the completion output, or the
// chunk's original text when the call failed; Err records the recovered
// failure for logging and inspection but never aborts the batch.
type Result struct {
	Index int
	Text  string
	Err   error
}

// Options configures one dispatch run.
type Options struct {
	// Preamble is prepended to every chunk prompt (video title,
	// description, language hint).
	Preamble string

	// Concurrency caps the worker pool; DefaultConcurrency when ≤ 0.
	Concurrency int

	// PriorityCount is the number of leading ranges whose joint
	// completion fires OnPriority.
	PriorityCount int

	// OnPriority, when set, receives the priority chunk texts joined
	// with parser.ChunkSentinel. It fires at most once, from whichever
	// worker completes the last priority chunk.
	OnPriority func(raw string)
}

// Dispatcher runs chunk completions. Logger may be nil; RunID, when set,
// tags every log line of a run.
type Dispatcher struct {
	Client completion.Client
	Logger *slog.Logger
	RunID  string
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Dispatch sends one completion request per range and returns results
// indexed identically to ranges. A failed request is logged and degrades
// to the chunk's original text. Cancelling ctx stops issuing new requests;
// remaining chunks degrade the same way.
func (d *Dispatcher) Dispatch(ctx context.Context, ranges []chunker.Range, segments []transcript.Segment, opts Options) []Result {
	logger := d.logger()
	results := make([]Result, len(ranges))
	if len(ranges) == 0 {
		return results
	}

	workers := opts.Concurrency
	if workers <= 0 {
		workers = DefaultConcurrency
	}
	if workers > len(ranges) {
		workers = len(ranges)
	}

	latch := priorityLatch{
		need:    opts.PriorityCount,
		results: results,
		fire:    opts.OnPriority,
	}

	jobs := make(chan int, len(ranges))
	for i := range ranges {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				r := ranges[i]
				chunkSegments := segments[r.Start:r.End]
				results[i] = d.completeChunk(ctx, i, chunkSegments, opts.Preamble, logger)
				latch.complete(i)
			}
		}()
	}
	wg.Wait()

	return results
}

// completeChunk runs one chunk request, degrading to the original text on
// failure or cancellation.
func (d *Dispatcher) completeChunk(ctx context.Context, index int, chunkSegments []transcript.Segment, preamble string, logger *slog.Logger) Result {
	if err := ctx.Err(); err != nil {
		logger.Warn("chunk skipped, context cancelled",
			"run_id", d.RunID, "chunk", index)
		return Result{Index: index, Text: OriginalText(chunkSegments), Err: err}
	}

	logger.Info("refining chunk",
		"run_id", d.RunID, "chunk", index, "segments", len(chunkSegments))

	text, err := d.Client.Complete(ctx, SystemPrompt, BuildUserPrompt(preamble, chunkSegments))
	if err != nil {
		logger.Warn("chunk completion failed, keeping original text",
			"run_id", d.RunID, "chunk", index, "error", err)
		return Result{Index: index, Text: OriginalText(chunkSegments), Err: err}
	}

	logger.Info("chunk refined",
		"run_id", d.RunID, "chunk", index)
	return Result{Index: index, Text: text}
}

// BuildUserPrompt renders a chunk into the user prompt: the preamble, a
// blank line, then one "[timestamp] text" row per segment.
func BuildUserPrompt(preamble string, chunkSegments []transcript.Segment) string {
	var sb strings.Builder
	if preamble != "" {
		sb.WriteString(preamble)
		sb.WriteString("\n\n")
	}
	for i, s := range chunkSegments {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(s.TimeTag())
		sb.WriteByte(' ')
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// OriginalText renders a chunk's unrefined fallback text, one line per
// segment. Aligning it back is an identity mapping, so a failed chunk
// passes through untouched.
func OriginalText(chunkSegments []transcript.Segment) string {
	texts := make([]string, len(chunkSegments))
	for i, s := range chunkSegments {
		texts[i] = s.Text
	}
	return strings.Join(texts, "\n")
}

// priorityLatch fires the one-shot priority callback when every chunk with
// index < need has a result. Multiple workers can finish priority chunks
// concurrently, so the count and the firing are guarded together.
type priorityLatch struct {
	mu      sync.Mutex
	done    int
	fired   bool
	need    int
	results []Result
	fire    func(string)
}

func (l *priorityLatch) complete(index int) {
	if l.fire == nil || l.need <= 0 || index >= l.need {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.done++
	if l.fired || l.done < l.need {
		return
	}
	l.fired = true

	texts := make([]string, l.need)
	for i := 0; i < l.need; i++ {
		texts[i] = l.results[i].Text
	}
	l.fire(strings.Join(texts, parser.ChunkSentinel))
}
