package dispatcher_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"subrefine/internal/chunker"
	"subrefine/internal/dispatcher"
	"subrefine/internal/parser"
	"subrefine/internal/transcript"
)

// fakeClient returns canned text per call, optionally delaying or failing.
type fakeClient struct {
	mu       sync.Mutex
	calls    int
	reply    func(call int, userPrompt string) (string, error)
	maxInUse int32
	inUse    int32
}

func (f *fakeClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	cur := atomic.AddInt32(&f.inUse, 1)
	defer atomic.AddInt32(&f.inUse, -1)
	for {
		max := atomic.LoadInt32(&f.maxInUse)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxInUse, max, cur) {
			break
		}
	}

	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.reply(call, userPrompt)
}

func makeSegments(n int, stepMS int64) []transcript.Segment {
	segments := make([]transcript.Segment, n)
	for i := range segments {
		segments[i] = transcript.Segment{
			Text:    fmt.Sprintf("segment %d text", i),
			StartMS: int64(i) * stepMS,
			EndMS:   int64(i+1) * stepMS,
		}
	}
	return segments
}

func TestDispatch_ResultsAreIndexAddressed(t *testing.T) {
	segments := makeSegments(50, 1000)
	ranges := chunker.Ranges(50, 10)

	// Echo the first rendered line back so each result identifies its
	// chunk; stagger delays so completion order differs from index order.
	client := &fakeClient{reply: func(call int, userPrompt string) (string, error) {
		time.Sleep(time.Duration(call%3) * 5 * time.Millisecond)
		firstLine := strings.SplitN(userPrompt, "\n", 2)[0]
		return firstLine, nil
	}}

	d := &dispatcher.Dispatcher{Client: client}
	results := d.Dispatch(context.Background(), ranges, segments, dispatcher.Options{Concurrency: 4})

	if len(results) != len(ranges) {
		t.Fatalf("expected %d results, got %d", len(ranges), len(results))
	}
	for i, r := range ranges {
		wantMarker := fmt.Sprintf("segment %d text", r.Start)
		if !strings.Contains(results[i].Text, wantMarker) {
			t.Errorf("result %d does not correspond to range %d: %q", i, i, results[i].Text)
		}
	}
}

func TestDispatch_ConcurrencyCapRespected(t *testing.T) {
	segments := makeSegments(40, 1000)
	ranges := chunker.Ranges(40, 5)

	client := &fakeClient{reply: func(call int, userPrompt string) (string, error) {
		time.Sleep(10 * time.Millisecond)
		return "ok", nil
	}}

	d := &dispatcher.Dispatcher{Client: client}
	d.Dispatch(context.Background(), ranges, segments, dispatcher.Options{Concurrency: 3})

	if got := atomic.LoadInt32(&client.maxInUse); got > 3 {
		t.Errorf("concurrency cap exceeded: %d simultaneous calls", got)
	}
}

func TestDispatch_FailedChunkKeepsOriginalText(t *testing.T) {
	segments := makeSegments(6, 1000)
	ranges := chunker.Ranges(6, 3)

	client := &fakeClient{reply: func(call int, userPrompt string) (string, error) {
		if strings.Contains(userPrompt, "segment 3 text") {
			return "", errors.New("boom")
		}
		return "Refined block", nil
	}}

	d := &dispatcher.Dispatcher{Client: client}
	results := d.Dispatch(context.Background(), ranges, segments, dispatcher.Options{Concurrency: 2})

	if results[0].Err != nil {
		t.Errorf("first chunk should succeed: %v", results[0].Err)
	}
	if results[1].Err == nil {
		t.Fatal("expected second chunk to record its failure")
	}
	want := dispatcher.OriginalText(segments[3:6])
	if results[1].Text != want {
		t.Errorf("failed chunk text: expected originals %q, got %q", want, results[1].Text)
	}
}

func TestDispatch_PriorityCallbackFiresExactlyOnce(t *testing.T) {
	// The end-to-end scenario: 65 segments, maxPerChunk 30, priority
	// boundary inside chunk 0, concurrency 2. The callback must fire
	// exactly once, with only chunk 0's text, while later chunks are
	// still running.
	segments := makeSegments(65, 13500)
	ranges, priorityCount := chunker.Split(segments, 30)
	if priorityCount != 1 {
		t.Fatalf("scenario broken: priorityCount = %d", priorityCount)
	}

	block := make(chan struct{})
	client := &fakeClient{reply: func(call int, userPrompt string) (string, error) {
		if !strings.Contains(userPrompt, "segment 0 text") {
			<-block // hold non-priority chunks until the callback fired
		}
		return "chunk done", nil
	}}

	var fires int32
	var firedText string
	done := make(chan struct{})
	opts := dispatcher.Options{
		Concurrency:   2,
		PriorityCount: priorityCount,
		OnPriority: func(raw string) {
			atomic.AddInt32(&fires, 1)
			firedText = raw
			close(done)
		},
	}

	d := &dispatcher.Dispatcher{Client: client}
	go func() {
		<-done
		close(block)
	}()
	results := d.Dispatch(context.Background(), ranges, segments, opts)

	if got := atomic.LoadInt32(&fires); got != 1 {
		t.Fatalf("expected exactly 1 callback fire, got %d", got)
	}
	if strings.Contains(firedText, parser.ChunkSentinel) {
		t.Errorf("single priority chunk must not contain the sentinel: %q", firedText)
	}
	for i := range results {
		if results[i].Err != nil {
			t.Errorf("chunk %d failed: %v", i, results[i].Err)
		}
	}
}

func TestDispatch_PriorityCallbackWaitsForAllPriorityChunks(t *testing.T) {
	segments := makeSegments(40, 1000)
	ranges := chunker.Ranges(40, 10)

	client := &fakeClient{reply: func(call int, userPrompt string) (string, error) {
		return strings.SplitN(userPrompt, "\n", 2)[0], nil
	}}

	var mu sync.Mutex
	var fired []string
	opts := dispatcher.Options{
		Concurrency:   4,
		PriorityCount: 2,
		OnPriority: func(raw string) {
			mu.Lock()
			fired = append(fired, raw)
			mu.Unlock()
		},
	}

	d := &dispatcher.Dispatcher{Client: client}
	d.Dispatch(context.Background(), ranges, segments, opts)

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 {
		t.Fatalf("expected exactly 1 fire, got %d", len(fired))
	}
	parts := strings.Split(fired[0], parser.ChunkSentinel)
	if len(parts) != 2 {
		t.Fatalf("expected 2 sentinel-joined priority texts, got %d", len(parts))
	}
	if !strings.Contains(parts[0], "segment 0 text") || !strings.Contains(parts[1], "segment 10 text") {
		t.Errorf("priority texts out of order: %q", fired[0])
	}
}

func TestDispatch_NoCallbackWithoutPriorityChunks(t *testing.T) {
	segments := makeSegments(10, 1000)
	ranges := chunker.Ranges(10, 5)

	client := &fakeClient{reply: func(call int, userPrompt string) (string, error) {
		return "ok", nil
	}}

	opts := dispatcher.Options{
		Concurrency:   2,
		PriorityCount: 0,
		OnPriority: func(raw string) {
			t.Error("callback fired with zero priority chunks")
		},
	}
	d := &dispatcher.Dispatcher{Client: client}
	d.Dispatch(context.Background(), ranges, segments, opts)
}

func TestDispatch_CancelledContextDegradesToOriginals(t *testing.T) {
	segments := makeSegments(6, 1000)
	ranges := chunker.Ranges(6, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeClient{reply: func(call int, userPrompt string) (string, error) {
		t.Error("no completion call expected after cancellation")
		return "", nil
	}}

	d := &dispatcher.Dispatcher{Client: client}
	results := d.Dispatch(ctx, ranges, segments, dispatcher.Options{Concurrency: 2})

	for i, r := range ranges {
		if results[i].Text != dispatcher.OriginalText(segments[r.Start:r.End]) {
			t.Errorf("chunk %d: expected original fallback text", i)
		}
		if !errors.Is(results[i].Err, context.Canceled) {
			t.Errorf("chunk %d: expected context.Canceled, got %v", i, results[i].Err)
		}
	}
}

func TestBuildUserPrompt(t *testing.T) {
	segments := []transcript.Segment{
		{Text: "hello there", StartMS: 0, EndMS: 2000},
		{Text: "general remark", StartMS: 65000, EndMS: 68000, StartTimeText: "1:05"},
	}
	got := dispatcher.BuildUserPrompt("Video title: Demo", segments)

	want := "Video title: Demo\n\n[0:00] hello there\n[1:05] general remark"
	if got != want {
		t.Errorf("prompt mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestBuildUserPrompt_NoPreamble(t *testing.T) {
	segments := []transcript.Segment{{Text: "solo line", StartMS: 0, EndMS: 1000}}
	if got := dispatcher.BuildUserPrompt("", segments); got != "[0:00] solo line" {
		t.Errorf("unexpected prompt %q", got)
	}
}
