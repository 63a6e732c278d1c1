package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeSink struct {
	mu         sync.Mutex
	logs       []string
	reconciles int
}

func (f *fakeSink) ReconcileActive(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconciles++
	return nil
}

func (f *fakeSink) Log(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, fmt.Sprintf(format, args...))
}

type scriptedOpener struct {
	mu      sync.Mutex
	streams []string
	opens   int
}

func (s *scriptedOpener) OpenEvents(ctx context.Context) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opens >= len(s.streams) {
		return nil, errors.New("no more streams")
	}
	stream := s.streams[s.opens]
	s.opens++
	return io.NopCloser(strings.NewReader(stream)), nil
}

func runListener(t *testing.T, opener StreamOpener, sink Sink, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	NewListener(opener, sink, nil, 5*time.Millisecond).Run(ctx)
}

func TestJSONMessageLogsTypeAndReconciles(t *testing.T) {
	sink := &fakeSink{}
	opener := &scriptedOpener{streams: []string{
		"data: {\"type\":\"JOB_PROGRESS\",\"message\":\"folder 2/5\"}\n\n",
	}}

	runListener(t, opener, sink, 30*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.reconciles < 1 {
		t.Fatal("expected at least one reconciliation")
	}
	found := false
	for _, l := range sink.logs {
		if l == "JOB_PROGRESS: folder 2/5" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected decoded log line, got %v", sink.logs)
	}
}

func TestMalformedMessageStillLogsOnceAndReconcilesOnce(t *testing.T) {
	sink := &fakeSink{}
	opener := &scriptedOpener{streams: []string{
		"data: this is not json\n\n",
	}}

	runListener(t, opener, sink, 30*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()

	raw, disconnects := 0, 0
	for _, l := range sink.logs {
		switch {
		case l == "this is not json":
			raw++
		case strings.Contains(l, "disconnected"):
			disconnects++
		}
	}
	if raw != 1 {
		t.Errorf("malformed payload should produce exactly one raw log entry, got %d (%v)", raw, sink.logs)
	}
	if sink.reconciles != 1 {
		t.Errorf("malformed payload should trigger exactly one reconciliation, got %d", sink.reconciles)
	}
	if disconnects == 0 {
		t.Error("stream end should be logged as a disconnect")
	}
}

func TestMultiLineDataIsOneEvent(t *testing.T) {
	sink := &fakeSink{}
	opener := &scriptedOpener{streams: []string{
		"data: line one\ndata: line two\n\n",
	}}

	runListener(t, opener, sink, 30*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.reconciles != 1 {
		t.Errorf("two data lines in one event should reconcile once, got %d", sink.reconciles)
	}
}

func TestCommentsAreNotWakeUps(t *testing.T) {
	sink := &fakeSink{}
	opener := &scriptedOpener{streams: []string{
		":keepalive\n\n:keepalive\n\n",
	}}

	runListener(t, opener, sink, 30*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.reconciles != 0 {
		t.Errorf("comments must not trigger reconciliation, got %d", sink.reconciles)
	}
}

func TestListenerReconnectsAfterDrop(t *testing.T) {
	sink := &fakeSink{}
	opener := &scriptedOpener{streams: []string{
		"data: {\"type\":\"A\"}\n\n",
		"data: {\"type\":\"B\"}\n\n",
	}}

	runListener(t, opener, sink, 100*time.Millisecond)

	opener.mu.Lock()
	opens := opener.opens
	opener.mu.Unlock()
	if opens < 2 {
		t.Errorf("expected the listener to reopen the stream, got %d opens", opens)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.reconciles < 2 {
		t.Errorf("expected a reconciliation per stream, got %d", sink.reconciles)
	}
}
