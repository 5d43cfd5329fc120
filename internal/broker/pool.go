package broker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/trigger-engine/internal/maintenance"
)

// sessionKey identifies one tenant's session with one broker.
type sessionKey struct {
	tenantID string
	broker   string
}

type session struct {
	adapter    Adapter
	lastUsedAt time.Time
}

// Pool amortizes broker logins across the many triggers a tenant may
// have against the same broker. Sessions are evicted on an idle TTL
// and on a hard capacity ceiling, whichever comes first.
type Pool struct {
	factory Factory
	ttl     time.Duration
	maxSize int
	log     zerolog.Logger

	mu       sync.Mutex
	sessions map[sessionKey]*session

	scheduler *maintenance.Scheduler
}

// evictionJob adapts Pool.evictIdle to the maintenance.Job interface.
type evictionJob struct{ pool *Pool }

func (j evictionJob) Run() error { j.pool.evictIdle(); return nil }
func (j evictionJob) Name() string { return "broker_pool_idle_eviction" }

// NewPool builds a pool and registers its idle-eviction job on the
// given maintenance scheduler, started every 5 minutes. Call Stop to
// logout every live session; the caller owns the scheduler's lifecycle.
func NewPool(factory Factory, ttl time.Duration, maxSize int, scheduler *maintenance.Scheduler, log zerolog.Logger) *Pool {
	p := &Pool{
		factory:   factory,
		ttl:       ttl,
		maxSize:   maxSize,
		log:       log.With().Str("component", "broker_pool").Logger(),
		sessions:  make(map[sessionKey]*session),
		scheduler: scheduler,
	}
	if err := scheduler.AddJob("@every 5m", evictionJob{pool: p}); err != nil {
		p.log.Error().Err(err).Msg("failed to register eviction job")
	}
	return p
}

// Get returns the adapter for (tenantID, brokerName), logging in a
// fresh one if none exists yet. Construction happens outside the pool
// lock; a second goroutine racing to build the same session loses and
// reuses the winner's adapter instead (double-checked locking).
func (p *Pool) Get(ctx context.Context, tenantID, brokerName string, credentials map[string]string) (Adapter, error) {
	key := sessionKey{tenantID: tenantID, broker: brokerName}

	p.mu.Lock()
	if sess, ok := p.sessions[key]; ok {
		if sess.adapter.IsLoggedIn() {
			sess.lastUsedAt = time.Now()
			p.mu.Unlock()
			return sess.adapter, nil
		}
		// The broker ended the session out-of-band; drop it and fall
		// through to construct a fresh one below.
		delete(p.sessions, key)
	}
	p.mu.Unlock()

	adapter := p.factory(brokerName)
	if err := adapter.Login(ctx, credentials); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if sess, ok := p.sessions[key]; ok && sess.adapter.IsLoggedIn() {
		// Someone else won the race while we were logging in; discard
		// our session and hand back theirs.
		go adapter.Logout(context.Background())
		sess.lastUsedAt = time.Now()
		return sess.adapter, nil
	}
	if len(p.sessions) >= p.maxSize {
		p.evictOldestLocked()
	}
	p.sessions[key] = &session{adapter: adapter, lastUsedAt: time.Now()}
	return adapter, nil
}

func (p *Pool) evictOldestLocked() {
	var oldestKey sessionKey
	var oldest time.Time
	first := true
	for k, s := range p.sessions {
		if first || s.lastUsedAt.Before(oldest) {
			oldestKey, oldest = k, s.lastUsedAt
			first = false
		}
	}
	if first {
		return
	}
	sess := p.sessions[oldestKey]
	delete(p.sessions, oldestKey)
	go sess.adapter.Logout(context.Background())
	p.log.Debug().Str("tenantId", oldestKey.tenantID).Str("broker", oldestKey.broker).Msg("evicted session at capacity")
}

func (p *Pool) evictIdle() {
	cutoff := time.Now().Add(-p.ttl)
	p.mu.Lock()
	var stale []sessionKey
	for k, s := range p.sessions {
		if s.lastUsedAt.Before(cutoff) {
			stale = append(stale, k)
		}
	}
	sessions := make([]*session, 0, len(stale))
	for _, k := range stale {
		sessions = append(sessions, p.sessions[k])
		delete(p.sessions, k)
	}
	p.mu.Unlock()

	for i, sess := range sessions {
		if err := sess.adapter.Logout(context.Background()); err != nil {
			p.log.Warn().Err(err).Str("tenantId", stale[i].tenantID).Msg("logout during idle eviction failed")
		}
	}
	if len(stale) > 0 {
		p.log.Debug().Int("count", len(stale)).Msg("evicted idle sessions")
	}
}

// Stop logs out every live session. It does not stop the shared
// maintenance scheduler; the caller stops that separately.
func (p *Pool) Stop() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[sessionKey]*session)
	p.mu.Unlock()

	for key, sess := range sessions {
		if err := sess.adapter.Logout(context.Background()); err != nil {
			p.log.Warn().Err(err).Str("tenantId", key.tenantID).Msg("logout during shutdown failed")
		}
	}
}
