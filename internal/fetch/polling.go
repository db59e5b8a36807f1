package fetch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// pollingIdleDelay is the pause between consecutive successful fetch cycles
// in polling mode, mirroring ChatWorker's "small delay to prevent hammering
// the server" between iterations.
const pollingIdleDelay = 100 * time.Millisecond

// Poller runs one goroutine per watched chat, each continuously looping its
// Worker's FetchCycle. It is the polling-fallback trigger mode and is
// mutually exclusive with push-driven triggering (PushTrigger) for a given
// session: a session picks exactly one of the two.
//
// Grounded on linepy/polling.py's PollingManager: one ChatWorker thread per
// watched chat, all funneling into a shared sink, with AddWatchedChat able
// to spawn a worker onto an already-running Poller.
type Poller struct {
	newWorker func(chatMid string) *Worker
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewPoller builds a Poller. newWorker constructs the Worker for a given
// chat mid; callers typically close over the shared fetcher/store/sink.
func NewPoller(newWorker func(chatMid string) *Worker, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{newWorker: newWorker, logger: logger, cancels: map[string]context.CancelFunc{}}
}

// Start begins polling the given chats. Calling Start twice without an
// intervening Stop is a no-op.
func (p *Poller) Start(ctx context.Context, chatMids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	for _, mid := range chatMids {
		p.startLocked(ctx, mid)
	}
}

// AddChat begins polling one additional chat. If the Poller isn't running
// yet, the chat is ignored until Start is called with it included.
func (p *Poller) AddChat(ctx context.Context, chatMid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	if _, exists := p.cancels[chatMid]; exists {
		return
	}
	p.startLocked(ctx, chatMid)
}

// RemoveChat stops polling one chat; its cursor in the store is untouched.
func (p *Poller) RemoveChat(chatMid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cancel, ok := p.cancels[chatMid]; ok {
		cancel()
		delete(p.cancels, chatMid)
	}
}

func (p *Poller) startLocked(ctx context.Context, chatMid string) {
	chatCtx, cancel := context.WithCancel(ctx)
	p.cancels[chatMid] = cancel
	w := p.newWorker(chatMid)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runChat(chatCtx, w)
	}()
}

func (p *Poller) runChat(ctx context.Context, w *Worker) {
	p.logger.Debug("fetch: polling started", "chat", w.ChatMid)
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("fetch: polling stopped", "chat", w.ChatMid)
			return
		default:
		}

		if err := w.FetchCycle(ctx); err != nil {
			p.logger.Warn("fetch: cycle error", "chat", w.ChatMid, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(pollingIdleDelay):
		}
	}
}

// Stop ends every chat's polling loop and waits for the goroutines to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	for mid, cancel := range p.cancels {
		cancel()
		delete(p.cancels, mid)
	}
	p.mu.Unlock()

	p.wg.Wait()
}
