// Package events maintains the console's server-push connection. The stream
// carries no differential data: every message, decodable or not, is a
// wake-up signal that triggers one full refresh of jobs and credentials.
package events

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kmg/ocrdesk/internal/api"
)

// StreamOpener opens the long-lived event stream.
type StreamOpener interface {
	OpenEvents(ctx context.Context) (io.ReadCloser, error)
}

// Sink is the store-side surface the listener drives.
type Sink interface {
	ReconcileActive(ctx context.Context) error
	Log(format string, args ...any)
}

// Listener reads server-push messages for the lifetime of a session and
// reconnects whenever the transport drops. It never interprets event types;
// semantics stay on the server.
type Listener struct {
	opener StreamOpener
	sink   Sink
	logger *slog.Logger
	retry  time.Duration
}

// NewListener wires a listener. retry is the pause between reconnection
// attempts; <= 0 defaults to 2s.
func NewListener(opener StreamOpener, sink Sink, logger *slog.Logger, retry time.Duration) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	if retry <= 0 {
		retry = 2 * time.Second
	}
	return &Listener{opener: opener, sink: sink, logger: logger, retry: retry}
}

// Run blocks until ctx is cancelled, holding one stream open at a time.
func (l *Listener) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := l.listenOnce(ctx); err != nil && ctx.Err() == nil {
			l.sink.Log("event stream disconnected, retrying...")
			l.logger.Debug("event stream dropped", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.retry):
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context) error {
	body, err := l.opener.OpenEvents(ctx)
	if err != nil {
		return err
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			// Blank line ends one event.
			if len(data) > 0 {
				l.handle(ctx, strings.Join(data, "\n"))
				data = data[:0]
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// Comments (":keepalive") and fields like "event:" or "id:" are
			// not wake-up signals on this stream.
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("event stream closed by server")
}

// handle logs one line per message and triggers exactly one reconciliation,
// regardless of whether the payload decodes.
func (l *Listener) handle(ctx context.Context, payload string) {
	var evt api.Event
	if err := json.Unmarshal([]byte(payload), &evt); err == nil {
		l.sink.Log("%s: %s", evt.Type, evt.Message)
	} else {
		l.sink.Log("%s", payload)
	}

	if err := l.sink.ReconcileActive(ctx); err != nil {
		l.logger.Debug("stream-triggered refresh failed", "error", err)
	}
}
