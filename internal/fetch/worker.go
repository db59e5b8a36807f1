// Package fetch implements the Event Fetcher (C7): one logical worker per
// watched chat that drains the server's event backlog using the sync +
// continuation cursor pair and hands events to a dispatcher in order.
//
// Grounded on linepy/polling.py's ChatWorker (the probe-then-fetch-loop
// shape and the 429/other-error backoff split) and linepy/helpers/square.py's
// SquareHelper._poll_chat (the same loop, expressed against the high-level
// helper instead of the raw client).
package fetch

import (
	"context"
	"log/slog"
	"time"

	"github.com/jkfujinami/linepy/internal/facade"
	"github.com/jkfujinami/linepy/internal/lineerr"
	"github.com/jkfujinami/linepy/internal/metrics"
	"github.com/jkfujinami/linepy/internal/store"
)

const (
	fetchLimit       = 50
	probeLimit       = 1
	rateLimitBackoff = 2 * time.Second
	transientBackoff = 100 * time.Millisecond
)

// ChatFetcher is the subset of facade.Client a Worker needs, so tests can
// substitute a fake without standing up a server.
type ChatFetcher interface {
	FetchChatEvents(ctx context.Context, chatMid, syncToken, continuationToken string, limit int32, prefetchProfiles bool) (*facade.FetchEventsResult, error)
}

// EventSink is where a Worker delivers fetched events, in order, for
// eventual dispatch (C8).
type EventSink interface {
	Enqueue(kind ServiceEventKind, chatMid string, event facade.Event)
}

// ServiceEventKind distinguishes which service an enqueued event came from.
// Square is presently the only fetch-driven source.
type ServiceEventKind int

const (
	EventKindSquare ServiceEventKind = iota
)

// Worker drains one watched chat's event backlog. A single Worker value is
// reused across every call to FetchCycle for that chat; it is not safe for
// concurrent use by more than one goroutine at a time.
type Worker struct {
	ChatMid string

	fetcher ChatFetcher
	store   store.Store
	sink    EventSink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewWorker builds a Worker for chatMid. logger may be nil.
func NewWorker(chatMid string, fetcher ChatFetcher, st store.Store, sink EventSink, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{ChatMid: chatMid, fetcher: fetcher, store: st, sink: sink, logger: logger, metrics: metrics.NewNop()}
}

// SetMetrics wires Prometheus collectors into this worker's fetch cycles.
// Passing nil reverts to discarding collectors.
func (w *Worker) SetMetrics(m *metrics.Metrics) {
	if m == nil {
		m = metrics.NewNop()
	}
	w.metrics = m
}

// FetchCycle runs exactly one iteration of the C7 contract: load cursor,
// probe if empty, fetch, persist, enqueue. On a rate-limit or transient
// error it sleeps the prescribed backoff itself and returns nil, so a
// caller looping on FetchCycle doesn't need its own retry logic — only
// ctx cancellation stops it early.
func (w *Worker) FetchCycle(ctx context.Context) error {
	start := time.Now()
	outcome := "ok"
	defer func() {
		w.metrics.FetchCycleDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	cursor, _, err := w.store.GetCursor(ctx, w.ChatMid)
	if err != nil {
		outcome = "state_error"
		w.metrics.FetchCycleErrors.WithLabelValues("state").Inc()
		return lineerr.Wrap(lineerr.KindState, "fetch: load cursor", err)
	}

	var cycleErr error
	if cursor.SyncToken == "" {
		cycleErr = w.probe(ctx)
	} else {
		cycleErr = w.fetchOnce(ctx, cursor)
	}
	if cycleErr != nil {
		outcome = "error"
	}
	return cycleErr
}

// probe issues a limit=1 fetch whose only purpose is to obtain a fresh
// syncToken without delivering history, mirroring ChatWorker._init_token.
func (w *Worker) probe(ctx context.Context) error {
	res, err := w.fetcher.FetchChatEvents(ctx, w.ChatMid, "", "", probeLimit, true)
	if err != nil {
		return w.backoff(ctx, err)
	}
	if res.SyncToken == "" {
		return nil
	}
	if err := w.store.SetCursor(ctx, w.ChatMid, store.Cursor{SyncToken: res.SyncToken}); err != nil {
		return lineerr.Wrap(lineerr.KindState, "fetch: persist probed cursor", err)
	}
	return nil
}

func (w *Worker) fetchOnce(ctx context.Context, cursor store.Cursor) error {
	res, err := w.fetcher.FetchChatEvents(ctx, w.ChatMid, cursor.SyncToken, cursor.ContinuationToken, fetchLimit, true)
	if err != nil {
		return w.backoff(ctx, err)
	}

	next := store.Cursor{SyncToken: res.SyncToken, ContinuationToken: res.ContinuationToken}
	if next.SyncToken == "" {
		next.SyncToken = cursor.SyncToken
	}
	if err := w.store.SetCursor(ctx, w.ChatMid, next); err != nil {
		return lineerr.Wrap(lineerr.KindState, "fetch: persist cursor", err)
	}

	for _, ev := range res.Events {
		w.sink.Enqueue(EventKindSquare, w.ChatMid, ev)
	}
	return nil
}

// backoff classifies err the way C5 tags it: rate-limit errors sleep ~2s,
// everything else sleeps ~100ms, and in both cases the cursor is left
// untouched so the next cycle retries the identical call.
func (w *Worker) backoff(ctx context.Context, err error) error {
	delay := transientBackoff
	if lineerr.Of(err, lineerr.KindRateLimit) {
		w.logger.Warn("fetch: rate limited, backing off", "chat", w.ChatMid, "delay", rateLimitBackoff)
		w.metrics.FetchCycleErrors.WithLabelValues("rate_limit").Inc()
		delay = rateLimitBackoff
	} else {
		w.logger.Debug("fetch: transient error, retrying", "chat", w.ChatMid, "error", err)
		w.metrics.FetchCycleErrors.WithLabelValues("transient").Inc()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
