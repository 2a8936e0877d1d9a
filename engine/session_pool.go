package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/siteprobe/models"
)

// SessionHandle wraps a pooled session with health tracking metadata.
type SessionHandle struct {
	ID       int64
	session  Session
	errScore float64
	useCount int
	created  time.Time
	mu       sync.Mutex
}

// Session returns the underlying browser session.
func (h *SessionHandle) Session() Session { return h.session }

func (h *SessionHandle) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore = math.Max(0, h.errScore-0.5)
}

func (h *SessionHandle) recordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	h.errScore += 1.0
}

func (h *SessionHandle) shouldRetire(maxUses int, maxAge time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errScore >= 3.0 || h.useCount >= maxUses || time.Since(h.created) >= maxAge
}

// PoolConfig holds the session pool bounds.
type PoolConfig struct {
	MinSessions  int
	MaxSessions  int
	MaxUses      int           // default: 50
	MaxAge       time.Duration // default: 50m
	MemThreshold float64       // 0.0–1.0 heap fraction above which idle sessions are shed
}

// SessionPool hands out at most MaxSessions exclusive sessions. Acquire
// blocks up to a caller-chosen wait; sessions are created lazily and retired
// when unhealthy, overused or old.
type SessionPool struct {
	cfg     PoolConfig
	factory SessionFactory
	logger  *slog.Logger

	slots   chan struct{} // one token per leased session
	idle    chan *SessionHandle
	mu      sync.Mutex
	all     map[int64]*SessionHandle
	nextID  atomic.Int64
	stopped chan struct{}
	stop    sync.Once
}

// NewSessionPool creates a pool and pre-opens MinSessions sessions.
func NewSessionPool(cfg PoolConfig, factory SessionFactory) *SessionPool {
	if cfg.MaxSessions < 1 {
		cfg.MaxSessions = 1
	}
	if cfg.MinSessions > cfg.MaxSessions {
		cfg.MinSessions = cfg.MaxSessions
	}
	if cfg.MaxUses <= 0 {
		cfg.MaxUses = 50
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 50 * time.Minute
	}
	if cfg.MemThreshold <= 0 {
		cfg.MemThreshold = 0.9
	}

	p := &SessionPool{
		cfg:     cfg,
		factory: factory,
		logger:  slog.With("component", "session_pool"),
		slots:   make(chan struct{}, cfg.MaxSessions),
		idle:    make(chan *SessionHandle, cfg.MaxSessions),
		all:     make(map[int64]*SessionHandle),
		stopped: make(chan struct{}),
	}

	for i := 0; i < cfg.MinSessions; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		h, err := p.createHandle(ctx)
		cancel()
		if err != nil {
			p.logger.Warn("failed to pre-open session", "error", err)
			continue
		}
		p.idle <- h
	}

	go p.scalingLoop()
	return p
}

// Acquire leases a session, waiting at most wait for one to free up. On
// timeout it fails with KindFatal and leaves the pool untouched.
func (p *SessionPool) Acquire(ctx context.Context, wait time.Duration) (*SessionHandle, error) {
	select {
	case <-p.stopped:
		return nil, models.NewFetchError(models.KindFatal, "session pool is closed", models.ErrPoolExhausted)
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.stopped:
		return nil, models.NewFetchError(models.KindFatal, "session pool is closed", models.ErrPoolExhausted)
	case <-timer.C:
		return nil, models.NewFetchError(models.KindFatal,
			fmt.Sprintf("no browser session available within %s", wait), models.ErrPoolExhausted)
	}

	select {
	case h := <-p.idle:
		return h, nil
	default:
	}

	h, err := p.createHandle(ctx)
	if err != nil {
		<-p.slots
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, models.NewFetchError(models.KindFatal, "failed to open browser session", err)
	}
	return h, nil
}

// Release returns a leased session. Unhealthy sessions and sessions that
// fail to reset are closed instead of going back to the idle set.
func (p *SessionPool) Release(h *SessionHandle, success bool) {
	defer func() { <-p.slots }()

	if success {
		h.recordSuccess()
	} else {
		h.recordFailure()
	}

	select {
	case <-p.stopped:
		p.destroyHandle(h)
		return
	default:
	}

	if h.shouldRetire(p.cfg.MaxUses, p.cfg.MaxAge) {
		p.logger.Debug("retiring session", "id", h.ID, "errScore", h.errScore, "useCount", h.useCount)
		p.destroyHandle(h)
		return
	}
	if err := h.session.Reset(); err != nil {
		p.logger.Warn("session reset failed, closing it", "id", h.ID, "error", err)
		p.destroyHandle(h)
		return
	}
	p.idle <- h
}

// Discard closes a leased session instead of returning it, used when the
// caller was cancelled mid-operation and the tab state is unknown.
func (p *SessionPool) Discard(h *SessionHandle) {
	defer func() { <-p.slots }()
	p.destroyHandle(h)
}

// Available returns how many more sessions can be leased right now.
func (p *SessionPool) Available() int {
	return p.cfg.MaxSessions - len(p.slots)
}

// Stats returns a snapshot of the pool.
func (p *SessionPool) Stats() models.PoolStats {
	p.mu.Lock()
	live := len(p.all)
	p.mu.Unlock()
	active := len(p.slots)
	return models.PoolStats{
		MaxSessions:    p.cfg.MaxSessions,
		LiveSessions:   live,
		ActiveSessions: active,
		Available:      p.cfg.MaxSessions - active,
	}
}

// Close stops the scaling loop and closes every session, leased or idle.
func (p *SessionPool) Close() {
	p.stop.Do(func() {
		close(p.stopped)

	drainLoop:
		for {
			select {
			case h := <-p.idle:
				p.destroyHandle(h)
			default:
				break drainLoop
			}
		}

		p.mu.Lock()
		remaining := make([]*SessionHandle, 0, len(p.all))
		for id, h := range p.all {
			remaining = append(remaining, h)
			delete(p.all, id)
		}
		p.mu.Unlock()
		for _, h := range remaining {
			_ = h.session.Close()
		}
	})
}

func (p *SessionPool) createHandle(ctx context.Context) (*SessionHandle, error) {
	s, err := p.factory(ctx)
	if err != nil {
		return nil, err
	}
	h := &SessionHandle{
		ID:      p.nextID.Add(1),
		session: s,
		created: time.Now(),
	}
	p.mu.Lock()
	p.all[h.ID] = h
	p.mu.Unlock()
	return h, nil
}

// destroyHandle removes a handle from tracking and closes its session.
// Handles already dropped by Close are ignored.
func (p *SessionPool) destroyHandle(h *SessionHandle) {
	p.mu.Lock()
	_, tracked := p.all[h.ID]
	delete(p.all, h.ID)
	p.mu.Unlock()
	if !tracked {
		return
	}
	if err := h.session.Close(); err != nil {
		p.logger.Debug("session close failed", "id", h.ID, "error", err)
	}
}

// scalingLoop sheds idle sessions above MinSessions under memory pressure.
func (p *SessionPool) scalingLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopped:
			return
		case <-ticker.C:
			p.shrinkIfPressured()
		}
	}
}

func (p *SessionPool) shrinkIfPressured() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var memPressure float64
	if m.HeapSys > 0 {
		memPressure = float64(m.HeapInuse) / float64(m.HeapSys)
	}
	if memPressure <= p.cfg.MemThreshold {
		return
	}

	for {
		p.mu.Lock()
		live := len(p.all)
		p.mu.Unlock()
		if live <= p.cfg.MinSessions {
			return
		}
		select {
		case h := <-p.idle:
			p.logger.Debug("memory pressure, closing idle session", "id", h.ID)
			p.destroyHandle(h)
		default:
			return
		}
	}
}
