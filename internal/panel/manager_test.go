package panel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/tahcohcat/neon-voice/internal/tts"
)

type countingFactory struct {
	created  atomic.Int32
	released atomic.Int32
}

func (c *countingFactory) build(viewID string) (*Panel, func()) {
	c.created.Add(1)
	return New(viewID, &fakePlatform{voices: twoVoices}), func() { c.released.Add(1) }
}

func TestManagerReusesPanelPerView(t *testing.T) {
	f := &countingFactory{}
	m := NewManager(f.build, time.Minute, rate.Inf, 1)
	defer m.Close()

	a1 := m.Get("a")
	a2 := m.Get("a")
	b := m.Get("b")

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	assert.Equal(t, "a", a1.Panel.ID())
	assert.EqualValues(t, 2, f.created.Load())
	assert.Equal(t, 2, m.cache.Len())
}

func TestManagerExpiresIdleViews(t *testing.T) {
	f := &countingFactory{}
	m := NewManager(f.build, 20*time.Millisecond, rate.Inf, 1)
	m.Start()
	defer m.Close()

	v := m.Get("a")

	assert.Eventually(t, func() bool { return f.released.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, m.cache.Len())

	v.Panel.SetText("salom")
	result, err := v.Panel.Speak(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Ignored, result, "closed panels ignore speak")
}

func TestManagerRemoveReleasesView(t *testing.T) {
	f := &countingFactory{}
	m := NewManager(f.build, time.Minute, rate.Inf, 1)
	defer m.Close()

	first := m.Get("a")
	m.Remove("a")

	assert.Eventually(t, func() bool { return f.released.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, m.cache.Has("a"))

	// a view that logs back in gets a fresh panel
	assert.NotSame(t, first, m.Get("a"))
	assert.EqualValues(t, 2, f.created.Load())
}

func TestViewRateLimit(t *testing.T) {
	m := NewManager((&countingFactory{}).build, time.Minute, rate.Every(time.Hour), 2)
	defer m.Close()

	v := m.Get("a")
	assert.True(t, v.Allow())
	assert.True(t, v.Allow())
	assert.False(t, v.Allow())
}

type sharedProvider struct {
	platform *fakeClosablePlatform
	perView  bool
}

type fakeClosablePlatform struct {
	fakePlatform
	closed atomic.Bool
}

func (f *fakeClosablePlatform) Close() error {
	f.closed.Store(true)
	return nil
}

func (s *sharedProvider) Platform(string, tts.AudioSink) tts.Platform {
	if s.perView {
		s.platform = &fakeClosablePlatform{}
	}
	return s.platform
}

func (s *sharedProvider) Name() string { return "shared" }
func (s *sharedProvider) Close() error { return nil }

func TestProviderFactoryReleasesPerViewPlatforms(t *testing.T) {
	provider := &sharedProvider{perView: true}
	p, release := ProviderFactory(provider, nil)("a")
	require.NotNil(t, p)

	release()
	assert.True(t, provider.platform.closed.Load())
}

func TestProviderFactoryAppliesOptions(t *testing.T) {
	provider := &sharedProvider{perView: true}
	p, _ := ProviderFactory(provider, nil, WithFallbackLang("en-US"))("a")

	assert.Equal(t, "en-US", p.fallbackLang)
	assert.Equal(t, "a", p.ID())
}
