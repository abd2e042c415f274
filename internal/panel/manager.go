package panel

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"

	"github.com/tahcohcat/neon-voice/internal/logger"
	"github.com/tahcohcat/neon-voice/internal/tts"
)

// Factory builds the panel for a view and returns a func releasing anything
// owned by that view alone.
type Factory func(viewID string) (*Panel, func())

// ProviderFactory binds each new panel to a platform from provider whose
// audio goes to sink.
func ProviderFactory(provider tts.Provider, sink tts.AudioSink, opts ...Option) Factory {
	return func(viewID string) (*Panel, func()) {
		platform := provider.Platform(viewID, sink)
		release := func() {}
		// shared platforms belong to the provider
		if closer, ok := platform.(io.Closer); ok && any(platform) != any(provider) {
			release = func() { _ = closer.Close() }
		}
		return New(viewID, platform, opts...), release
	}
}

// View is one browser view's panel plus its speak limiter.
type View struct {
	Panel *Panel

	limiter *rate.Limiter
	stop    context.CancelFunc
	release func()
}

// Allow reports whether another speak press may go through now.
func (v *View) Allow() bool {
	return v.limiter.Allow()
}

func (v *View) close() {
	v.stop()
	v.Panel.Close()
	v.release()
}

// Manager keeps one panel per view and drops views idle for longer than
// the ttl.
type Manager struct {
	factory Factory
	limit   rate.Limit
	burst   int

	mu      sync.Mutex
	started bool
	cache   *ttlcache.Cache[string, *View]
	logger  *logger.Log
}

func NewManager(factory Factory, ttl time.Duration, limit rate.Limit, burst int) *Manager {
	cache := ttlcache.New[string, *View](
		ttlcache.WithTTL[string, *View](ttl),
	)

	m := &Manager{
		factory: factory,
		limit:   limit,
		burst:   burst,
		cache:   cache,
		logger:  logger.New(),
	}

	cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *View]) {
		if reason == ttlcache.EvictionReasonExpired {
			m.logger.View(item.Key(), "view expired")
		}
		item.Value().close()
	})

	return m
}

// Start runs the expiry loop until Close.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	go m.cache.Start()
}

// Get returns the view's panel, creating it on first use. Every call
// pushes back the view's expiry.
func (m *Manager) Get(viewID string) *View {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item := m.cache.Get(viewID); item != nil {
		return item.Value()
	}

	p, release := m.factory(viewID)
	ctx, stop := context.WithCancel(context.Background())
	v := &View{
		Panel:   p,
		limiter: rate.NewLimiter(m.limit, m.burst),
		stop:    stop,
		release: release,
	}
	go p.WatchVoices(ctx)

	m.cache.Set(viewID, v, ttlcache.DefaultTTL)
	m.logger.View(viewID, fmt.Sprintf("panel created (%d active)", m.cache.Len()))
	return v
}

// Remove closes and forgets a view.
func (m *Manager) Remove(viewID string) {
	m.cache.Delete(viewID)
}

// Close stops expiry and closes every view.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.started {
		m.cache.Stop()
		m.started = false
	}
	m.mu.Unlock()
	m.cache.DeleteAll()
}
