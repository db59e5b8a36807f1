// Package client is the top-level orchestrator wiring together every layer
// of the library into one running session: transport, login, token
// refresh, the RPC facade, the push session, the event fetcher/dispatcher,
// the bot-layer collaborators, and the optional admin/control surfaces.
//
// Grounded on cmd/api/main.go's top-level wiring style: one struct holding
// every collaborator, a single New that builds them in dependency order,
// and a Start that starts the long-running pieces and blocks until shutdown.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jkfujinami/linepy/internal/admin"
	"github.com/jkfujinami/linepy/internal/auth"
	"github.com/jkfujinami/linepy/internal/bot"
	"github.com/jkfujinami/linepy/internal/botstore"
	"github.com/jkfujinami/linepy/internal/bus"
	"github.com/jkfujinami/linepy/internal/circuitbreaker"
	"github.com/jkfujinami/linepy/internal/config"
	"github.com/jkfujinami/linepy/internal/control"
	"github.com/jkfujinami/linepy/internal/device"
	"github.com/jkfujinami/linepy/internal/diag"
	"github.com/jkfujinami/linepy/internal/dispatch"
	"github.com/jkfujinami/linepy/internal/facade"
	"github.com/jkfujinami/linepy/internal/fetch"
	"github.com/jkfujinami/linepy/internal/metrics"
	"github.com/jkfujinami/linepy/internal/push"
	"github.com/jkfujinami/linepy/internal/store"
	"github.com/jkfujinami/linepy/internal/token"
	"github.com/jkfujinami/linepy/internal/transport"
)

// Client is one logged-in LINE session and every collaborator built on top
// of it. Construct with New; call Login (or resume from a persisted
// session) before Start.
type Client struct {
	cfg     *config.Config
	profile *device.Profile
	logger  *slog.Logger

	transport *transport.Client
	auth      *auth.Client
	token     *token.Client
	facade    *facade.Client
	store     store.Store
	push      *push.Session

	metrics  *metrics.Metrics
	registry *prometheus.Registry
	breakers *circuitbreaker.Manager

	dispatcher  *dispatch.Dispatcher
	poller      *fetch.Poller
	pushTrigger *fetch.PushTrigger
	fetchLock   fetch.FetchLock
	eventBus    eventBus

	botStore        botstore.Store
	rateLimiter     *bot.RateLimiter
	readChecker     *bot.ReadChecker
	adminDispatcher *bot.AdminDispatcher

	login *admin.LoginStatus

	mu           sync.RWMutex
	mid          string
	watchedChats map[string]bool
	connected    bool
	lastPush     time.Time

	runCtx    context.Context
	runCancel context.CancelFunc
}

// eventBus is the subset of bus.Bus/bus.PubSubBus this orchestrator uses,
// so either backend can be wired in from config without this package
// caring which.
type eventBus interface {
	Publish(msg *bus.Message)
}

// New builds every collaborator from cfg but does not start anything: call
// Login then Start. logger may be nil.
func New(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	profile, err := device.NewProfile(device.Kind(cfg.Device.Kind), cfg.Device.AppVersion)
	if err != nil {
		return nil, fmt.Errorf("client: device profile: %w", err)
	}

	st, err := buildStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("client: build store: %w", err)
	}

	registry := prometheus.NewRegistry()
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(registry)
	} else {
		m = metrics.NewNop()
	}

	breakers := circuitbreaker.NewManager(nil)

	tr := transport.NewClient(profile, cfg.Timeout(), logger)
	authClient := auth.NewClient(tr, profile, cfg.Endpoints.LegyHost, nil, logger)
	tokenClient := token.NewClient(tr, st, profile, cfg.Endpoints.LegyHost, logger)
	facadeClient := facade.NewClient(tr, profile, cfg.Endpoints.LegyHost, logger)
	facadeClient.SetCircuitBreaker(breakers.GetOrCreate("facade", circuitbreaker.DefaultConfig("facade")))

	pushSession := push.NewSession(profile, st, logger)
	pushSession.SetMetrics(m)
	pushSession.SetCircuitBreaker(breakers.GetOrCreate("push-dial", circuitbreaker.DefaultConfig("push-dial")))

	var eb eventBus
	if cfg.Bus.Backend == "pubsub" && cfg.Bus.PubSub.Enabled {
		pb, err := bus.NewPubSubBus(context.Background(), cfg.Bus.PubSub.ProjectID, cfg.Bus.PubSub.TopicID, cfg.Fetch.QueueSize, logger)
		if err != nil {
			return nil, fmt.Errorf("client: build pubsub bus: %w", err)
		}
		eb = pb
	} else {
		eb = bus.New(cfg.Fetch.QueueSize)
	}

	botStoreImpl, err := buildBotStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("client: build bot store: %w", err)
	}

	c := &Client{
		cfg:          cfg,
		profile:      profile,
		logger:       logger,
		transport:    tr,
		auth:         authClient,
		token:        tokenClient,
		facade:       facadeClient,
		store:        st,
		push:         pushSession,
		metrics:      m,
		registry:     registry,
		breakers:     breakers,
		eventBus:     eb,
		botStore:     botStoreImpl,
		login:        admin.NewLoginStatus(),
		watchedChats: make(map[string]bool),
	}

	c.dispatcher = dispatch.New(cfg.Fetch.QueueSize, c.handleDispatched, logger, m)
	c.rateLimiter = bot.NewRateLimiter(bot.RateLimitConfig{MaxRepliesPerMinute: cfg.Bot.RateLimit.MaxPerMinute}, logger)
	c.readChecker = bot.NewReadChecker(facadeClient, botStoreImpl, "", logger)
	c.adminDispatcher = bot.NewAdminDispatcher(facadeClient, cfg.Bot.AdminUserIDs, logger)

	c.fetchLock = fetch.NewLocalFetchLock()
	c.pushTrigger = fetch.NewPushTrigger(c.fetchLock, c.sweepWatchedChats)
	c.poller = fetch.NewPoller(c.newWorker, logger)

	pushSession.OnPush = c.handlePush

	return c, nil
}

func buildStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "redis":
		adapter, err := store.NewGoRedisAdapter(cfg.Store.Redis.Addr, "", cfg.Store.Redis.DB)
		if err != nil {
			return nil, err
		}
		return store.NewRedisStore(adapter, "", cfg.Store.Mid, 0), nil
	case "spanner":
		return store.NewSpannerStore(context.Background(), cfg.Store.Spanner.ProjectID, cfg.Store.Spanner.InstanceID, cfg.Store.Spanner.DatabaseID, cfg.Store.Mid)
	default:
		path := cfg.Store.Path
		if path == "" {
			path = "line-session.json"
		}
		return store.NewFileStore(path), nil
	}
}

func buildBotStore(cfg *config.Config) (botstore.Store, error) {
	switch cfg.Bot.ReadStore.Backend {
	case "supabase":
		if cfg.Bot.ReadStore.Supabase.URL == "" {
			return nil, nil
		}
		return botstore.NewSupabaseStore(cfg.Bot.ReadStore.Supabase.URL, cfg.Bot.ReadStore.Supabase.ServiceKey)
	case "postgres":
		if cfg.Bot.ReadStore.Postgres.DSN == "" {
			return nil, nil
		}
		return botstore.NewPostgresStore(cfg.Bot.ReadStore.Postgres.DSN)
	default:
		return nil, nil
	}
}

// Login runs the QR login flow and persists the resulting session. onURL
// and onPIN are forwarded to auth.Client.LoginWithQR; passing c.login's
// OnURL/OnPIN methods wires the admin surface's QR code endpoint
// automatically.
func (c *Client) Login(ctx context.Context, savedCert string, onURL auth.URLCallback, onPIN auth.PINCallback) error {
	c.login.SetState("logging_in")
	result, err := c.auth.LoginWithQR(ctx, savedCert, onURL, onPIN)
	if err != nil {
		c.login.SetState("login_failed")
		return fmt.Errorf("client: login: %w", err)
	}

	sess := &store.Session{
		Mid:          result.Mid,
		AccessToken:  result.Token.AccessToken,
		RefreshToken: result.Token.RefreshToken,
		IsPrimary:    true,
	}
	if err := c.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("client: save session: %w", err)
	}

	c.mu.Lock()
	c.mid = result.Mid
	c.mu.Unlock()
	c.readChecker.SetSelf(result.Mid)

	c.transport.SetAccessToken(result.Token.AccessToken)
	c.push.SetAccessToken(result.Token.AccessToken)
	c.login.SetState("logged_in")
	c.login.Reset()
	return nil
}

// Resume loads a previously persisted session instead of logging in again.
func (c *Client) Resume(ctx context.Context) error {
	sess, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("client: resume: %w", err)
	}
	c.mu.Lock()
	c.mid = sess.Mid
	c.mu.Unlock()
	c.readChecker.SetSelf(sess.Mid)
	c.transport.SetAccessToken(sess.AccessToken)
	c.push.SetAccessToken(sess.AccessToken)
	return nil
}

// Subscribe exposes the underlying bus's Subscribe method for callers (such
// as a CLI) that want to observe dispatched events directly, rather than
// through the bot-layer collaborators. ok is false when the configured bus
// backend has no local fan-out to subscribe to, which is the case for the
// Pub/Sub backend.
func (c *Client) Subscribe(chatMids ...string) (ch chan *bus.Message, unsubscribe func(), ok bool) {
	mb, ok := c.eventBus.(*bus.Bus)
	if !ok {
		return nil, nil, false
	}
	ch = mb.Subscribe(chatMids...)
	return ch, func() { mb.Unsubscribe(ch) }, true
}

// Start begins the push session (or polling fallback) and the admin
// command/read-checker handler, then blocks until ctx is canceled or Stop
// is called.
func (c *Client) Start(ctx context.Context, watchedChats []string) {
	runCtx, cancel := context.WithCancel(ctx)
	c.runCtx = runCtx
	c.runCancel = cancel

	c.mu.Lock()
	for _, mid := range watchedChats {
		c.watchedChats[mid] = true
	}
	c.mu.Unlock()

	if c.cfg.Fetch.Mode == "poll" {
		c.poller.Start(runCtx, watchedChats)
	} else {
		c.push.Start(runCtx, []push.ServiceKind{push.ServiceSquare, push.ServiceTalkSync})
	}

	<-runCtx.Done()
}

// Stop ends the push session (or pollers), the dispatcher, and the rate
// limiter's background goroutine.
func (c *Client) Stop() {
	if c.runCancel != nil {
		c.runCancel()
	}
	c.push.Stop()
	c.dispatcher.Stop()
	c.rateLimiter.Close()
	if closer, ok := c.eventBus.(interface{ Close() error }); ok {
		closer.Close()
	}
}

func (c *Client) newWorker(chatMid string) *fetch.Worker {
	sink := fetch.NewDispatcherSink(c.dispatcher)
	w := fetch.NewWorker(chatMid, c.facade, c.store, sink, c.logger)
	w.SetMetrics(c.metrics)
	return w
}

// handlePush is wired as push.Session.OnPush: a square-service push frame
// fires the coalesced fetch sweep instead of this client fetching inline,
// keeping C6 and C7 decoupled the way the push/fetch split requires.
func (c *Client) handlePush(kind push.ServiceKind, pushID int32) {
	c.mu.Lock()
	c.connected = true
	c.lastPush = time.Now()
	c.mu.Unlock()

	if kind != push.ServiceSquare {
		return
	}
	if c.cfg.Fetch.Mode == "poll" {
		return
	}
	c.pushTrigger.Fire(c.runCtx)
}

func (c *Client) sweepWatchedChats(ctx context.Context) {
	c.mu.RLock()
	chats := make([]string, 0, len(c.watchedChats))
	for mid := range c.watchedChats {
		chats = append(chats, mid)
	}
	c.mu.RUnlock()

	for _, mid := range chats {
		w := c.newWorker(mid)
		if err := w.FetchCycle(ctx); err != nil {
			c.logger.Warn("client: fetch cycle failed", "chat_mid", mid, "error", err)
		}
	}
}

// handleDispatched is the single dispatch.Handler registered on the
// Dispatcher: it fans the event out to the bus, then to the bot-layer
// collaborators, in that order, so the bus always sees every event even if
// a bot handler later errors.
func (c *Client) handleDispatched(ev dispatch.Event) error {
	c.eventBus.Publish(&bus.Message{
		ServiceKind: ev.ServiceKind,
		ChatMid:     ev.ChatMid,
		Payload:     ev.Payload,
		Time:        time.Now(),
	})

	if err := c.adminDispatcher.Handle(ev); err != nil {
		c.logger.Warn("client: admin dispatcher error", "error", err)
	}
	if err := c.readChecker.Handle(ev); err != nil {
		c.logger.Warn("client: read checker error", "error", err)
	}
	return nil
}

// Snapshot implements admin.StatusProvider.
func (c *Client) Snapshot() admin.StatusSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	chats := make([]string, 0, len(c.watchedChats))
	for mid := range c.watchedChats {
		chats = append(chats, mid)
	}
	state := "idle"
	if c.connected {
		state = "connected"
	}

	stats := c.breakers.Stats()
	breakerStates := make(map[string]string, len(stats))
	for name, stat := range stats {
		breakerStates[name] = stat.State.String()
	}

	return admin.StatusSnapshot{
		State:           state,
		Mid:             c.mid,
		WatchedChats:    chats,
		Connected:       c.connected,
		LastPush:        c.lastPush,
		CircuitBreakers: breakerStates,
	}
}

// Registry exposes the Prometheus registry backing this client's metrics,
// for wiring into admin.New's gatherer parameter.
func (c *Client) Registry() *prometheus.Registry {
	return c.registry
}

// LoginStatus exposes the login status tracker, for wiring into admin.New
// and as the auth.URLCallback/auth.PINCallback source for Login.
func (c *Client) LoginStatus() *admin.LoginStatus {
	return c.login
}

// Status implements control.SessionController.
func (c *Client) Status(ctx context.Context) (control.SessionStatus, error) {
	snap := c.Snapshot()
	return control.SessionStatus{
		State:        snap.State,
		Mid:          snap.Mid,
		Connected:    snap.Connected,
		WatchedChats: snap.WatchedChats,
	}, nil
}

// AddWatchedChat implements control.SessionController.
func (c *Client) AddWatchedChat(ctx context.Context, chatMid string) error {
	c.mu.Lock()
	c.watchedChats[chatMid] = true
	c.mu.Unlock()

	if c.cfg.Fetch.Mode == "poll" {
		c.poller.AddChat(c.runCtx, chatMid)
	}
	return nil
}

// RemoveWatchedChat implements control.SessionController.
func (c *Client) RemoveWatchedChat(ctx context.Context, chatMid string) error {
	c.mu.Lock()
	delete(c.watchedChats, chatMid)
	c.mu.Unlock()

	if c.cfg.Fetch.Mode == "poll" {
		c.poller.RemoveChat(chatMid)
	}
	return nil
}

// ForceReconnect implements control.SessionController by restarting the
// push session; a no-op in polling mode since there is no persistent
// connection to restart.
func (c *Client) ForceReconnect(ctx context.Context) error {
	if c.cfg.Fetch.Mode == "poll" {
		return nil
	}
	c.push.Stop()
	c.push.Start(c.runCtx, []push.ServiceKind{push.ServiceSquare, push.ServiceTalkSync})
	return nil
}

// DiagStreamer builds a diagnostics websocket streamer wired to emit a
// "push" event every time this client's push session delivers a frame.
// Callers that want /diag/ws should call this once, run the result's Run
// loop, and pass it to admin.New; repeated calls build independent
// streamers.
func (c *Client) DiagStreamer() *diag.Streamer {
	s := diag.NewStreamer(c.logger)
	prevOnPush := c.push.OnPush
	c.push.OnPush = func(kind push.ServiceKind, pushID int32) {
		s.Emit("push", map[string]any{"service_kind": int(kind), "push_id": pushID})
		if prevOnPush != nil {
			prevOnPush(kind, pushID)
		}
	}
	return s
}
