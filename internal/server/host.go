package server

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"minigames/internal/app"
	"minigames/internal/config"
	"minigames/internal/domain"
	"minigames/internal/engine"
	"minigames/internal/repo"
)

// ErrRateLimited is returned when a session sends commands faster than the
// configured budget.
var ErrRateLimited = errors.New("command rate exceeded")

const reapInterval = 30 * time.Second

type HostConfig struct {
	DB     *sql.DB
	Config *config.Config
	Logger *slog.Logger
}

// Host owns the live sessions. Each session runs its own frame loop that
// ticks the game with the wall-clock time since the previous frame and
// pushes the resulting snapshot to stream subscribers.
type Host struct {
	cfg      *config.Config
	db       *sql.DB
	repo     repo.Repo
	log      *slog.Logger
	webhooks *webhookDispatcher

	mu       sync.Mutex
	sessions map[string]*liveSession
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

type liveSession struct {
	*app.Session
	limiter *rate.Limiter

	subMu sync.Mutex
	subs  map[chan engine.Snapshot]struct{}

	stop chan struct{}
	once sync.Once
}

func NewHost(cfg HostConfig) (*Host, error) {
	if cfg.DB == nil {
		return nil, errors.New("host requires a database")
	}
	c := cfg.Config
	if c == nil {
		c = config.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		cfg:      c,
		db:       cfg.DB,
		repo:     repo.Repo{DB: cfg.DB},
		log:      logger,
		sessions: make(map[string]*liveSession),
		ctx:      ctx,
		cancel:   cancel,
	}
	h.webhooks = newWebhookDispatcher(h.repo, c.Webhooks, logger)
	if h.webhooks != nil {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.webhooks.run(ctx)
		}()
	}
	if c.Server.SessionIdleMinutes > 0 {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.reapLoop(ctx, time.Duration(c.Server.SessionIdleMinutes)*time.Minute)
		}()
	}
	return h, nil
}

func (h *Host) Config() *config.Config { return h.cfg }

func (h *Host) Repo() repo.Repo { return h.repo }

func (h *Host) limiter() *rate.Limiter {
	sc := h.cfg.Server
	if sc.CommandsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := sc.CommandBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(sc.CommandsPerSecond), burst)
}

// Create starts a session of game for playerID.
func (h *Host) Create(ctx context.Context, game domain.Game, playerID string) (*app.Session, engine.Snapshot, error) {
	deps := app.Deps{
		DB:     h.db,
		Config: h.cfg,
		Logger: h.log,
		OnResult: func(context.Context, domain.RoundResult) {
			if h.webhooks != nil {
				h.webhooks.Notify()
			}
		},
	}
	s, err := app.NewSession(ctx, deps, game, playerID)
	if err != nil {
		return nil, engine.Snapshot{}, err
	}
	ls := &liveSession{
		Session: s,
		limiter: h.limiter(),
		subs:    make(map[chan engine.Snapshot]struct{}),
		stop:    make(chan struct{}),
	}
	h.mu.Lock()
	h.sessions[s.Info.ID] = ls
	h.mu.Unlock()
	if hz := h.cfg.Server.FrameRateHz; hz > 0 {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.frameLoop(ls, time.Second/time.Duration(hz))
		}()
	}
	return s, s.Snapshot(), nil
}

// lookup returns the live session id owned by playerID. Sessions owned by
// someone else are reported as missing.
func (h *Host) lookup(id, playerID string) (*liveSession, error) {
	h.mu.Lock()
	ls, ok := h.sessions[id]
	h.mu.Unlock()
	if !ok || ls.Info.PlayerID != playerID {
		return nil, repo.ErrNotFound
	}
	return ls, nil
}

// Session returns the journaled session and, when it is still live, its
// current snapshot.
func (h *Host) Session(ctx context.Context, id, playerID string) (domain.Session, *engine.Snapshot, error) {
	if ls, err := h.lookup(id, playerID); err == nil {
		snap := ls.Snapshot()
		return ls.Info, &snap, nil
	}
	info, err := h.repo.GetSession(ctx, id)
	if err != nil {
		return domain.Session{}, nil, err
	}
	if info.PlayerID != playerID {
		return domain.Session{}, nil, repo.ErrNotFound
	}
	return info, nil, nil
}

// Owns reports whether playerID may read the journal of session id.
func (h *Host) Owns(ctx context.Context, id, playerID string) error {
	_, _, err := h.Session(ctx, id, playerID)
	return err
}

// Sessions lists the live sessions of playerID ordered by id.
func (h *Host) Sessions(playerID string) []domain.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.Session, 0, len(h.sessions))
	for _, ls := range h.sessions {
		if ls.Info.PlayerID == playerID {
			out = append(out, ls.Info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Apply runs cmd against the session after charging its rate budget.
func (h *Host) Apply(ctx context.Context, id, playerID string, cmd engine.Command) (engine.Snapshot, error) {
	ls, err := h.lookup(id, playerID)
	if err != nil {
		return engine.Snapshot{}, err
	}
	if h.throttled(cmd) && !ls.limiter.Allow() {
		return ls.Snapshot(), ErrRateLimited
	}
	snap, err := ls.Apply(ctx, cmd)
	if err == nil {
		ls.publish(snap)
	}
	return snap, err
}

// throttled reports whether cmd counts against the command rate limit.
// Ticks are the client's frame clock when the host runs no frame loop.
func (h *Host) throttled(cmd engine.Command) bool {
	return cmd.Kind != engine.CmdTick || h.cfg.Server.FrameRateHz > 0
}

// Subscribe streams snapshots of a live session until cancel is called or
// the session ends, at which point the channel is closed.
func (h *Host) Subscribe(id, playerID string) (<-chan engine.Snapshot, func(), error) {
	ls, err := h.lookup(id, playerID)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan engine.Snapshot, 4)
	ls.subMu.Lock()
	select {
	case <-ls.stop:
		ls.subMu.Unlock()
		return nil, nil, repo.ErrNotFound
	default:
	}
	ch <- ls.Snapshot()
	ls.subs[ch] = struct{}{}
	ls.subMu.Unlock()
	cancel := func() {
		ls.subMu.Lock()
		defer ls.subMu.Unlock()
		if _, ok := ls.subs[ch]; ok {
			delete(ls.subs, ch)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// End stops the session's frame loop and journals its end.
func (h *Host) End(ctx context.Context, id, playerID string) error {
	ls, err := h.lookup(id, playerID)
	if err != nil {
		return err
	}
	return h.end(ctx, ls)
}

func (h *Host) end(ctx context.Context, ls *liveSession) error {
	h.mu.Lock()
	if h.sessions[ls.Info.ID] != ls {
		h.mu.Unlock()
		return repo.ErrNotFound
	}
	delete(h.sessions, ls.Info.ID)
	h.mu.Unlock()
	ls.shutdown()
	if err := ls.Session.End(ctx); err != nil {
		return err
	}
	h.log.Info("session ended", "session", ls.Info.ID)
	return nil
}

// Shutdown ends every live session and waits for background loops.
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	live := make([]*liveSession, 0, len(h.sessions))
	for _, ls := range h.sessions {
		live = append(live, ls)
	}
	h.mu.Unlock()
	var firstErr error
	for _, ls := range live {
		if err := h.end(ctx, ls); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	h.cancel()
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if h.webhooks != nil {
		h.webhooks.dispatchAll(ctx)
	}
	return firstErr
}

func (h *Host) frameLoop(ls *liveSession, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ls.stop:
			return
		case <-h.ctx.Done():
			return
		case now := <-ticker.C:
			snap, err := ls.Apply(h.ctx, engine.Tick(now.Sub(last)))
			last = now
			if err != nil {
				h.log.Warn("frame tick failed", "session", ls.Info.ID, "err", err)
				continue
			}
			ls.publish(snap)
		}
	}
}

func (h *Host) reapLoop(ctx context.Context, idle time.Duration) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.reap(ctx, now, idle)
		}
	}
}

func (h *Host) reap(ctx context.Context, now time.Time, idle time.Duration) {
	h.mu.Lock()
	var stale []*liveSession
	for _, ls := range h.sessions {
		if ls.Idle(now) >= idle {
			stale = append(stale, ls)
		}
	}
	h.mu.Unlock()
	for _, ls := range stale {
		if err := h.end(ctx, ls); err != nil {
			h.log.Warn("reap session failed", "session", ls.Info.ID, "err", err)
			continue
		}
		h.log.Info("idle session reaped", "session", ls.Info.ID)
	}
}

// publish hands snap to every subscriber, dropping it for subscribers that
// have not drained the previous frames.
func (ls *liveSession) publish(snap engine.Snapshot) {
	ls.subMu.Lock()
	defer ls.subMu.Unlock()
	for ch := range ls.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (ls *liveSession) shutdown() {
	ls.once.Do(func() {
		ls.subMu.Lock()
		close(ls.stop)
		for ch := range ls.subs {
			delete(ls.subs, ch)
			close(ch)
		}
		ls.subMu.Unlock()
	})
}
