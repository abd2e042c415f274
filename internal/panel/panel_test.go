package panel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahcohcat/neon-voice/internal/tts"
)

type fakePlatform struct {
	mu         sync.Mutex
	voices     []tts.Voice
	calls      []string
	enqueued   []tts.Utterance
	listCalls  int
	enqueueErr error
	ready      chan struct{}
}

func (f *fakePlatform) Voices() []tts.Voice {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return append([]tts.Voice(nil), f.voices...)
}

func (f *fakePlatform) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "cancel")
}

func (f *fakePlatform) Enqueue(_ context.Context, u tts.Utterance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "enqueue")
	f.enqueued = append(f.enqueued, u)
	return f.enqueueErr
}

func (f *fakePlatform) setVoices(v []tts.Voice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voices = v
}

func (f *fakePlatform) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// notifyingPlatform adds a voices-ready signal.
type notifyingPlatform struct {
	*fakePlatform
}

func (n notifyingPlatform) VoicesChanged() <-chan struct{} {
	return n.ready
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	s.timers = append(s.timers, t)
	return t
}

// fire runs the most recent live timer.
func (s *fakeScheduler) fire(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	require.NotEmpty(t, s.timers)
	timer := s.timers[len(s.timers)-1]
	s.mu.Unlock()

	require.False(t, timer.stopped, "timer was stopped")
	require.False(t, timer.fired, "timer already fired")
	timer.fired = true
	timer.fn()
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

type fakeRecorder struct {
	viewIDs []string
	err     error
}

func (r *fakeRecorder) RecordUtterance(_ context.Context, viewID string, _ tts.Utterance) error {
	r.viewIDs = append(r.viewIDs, viewID)
	return r.err
}

var twoVoices = []tts.Voice{{Name: "A", Lang: "en-US"}, {Name: "B", Lang: "uz-UZ"}}

func newTestPanel(platform tts.Platform, opts ...Option) (*Panel, *fakeScheduler) {
	sched := &fakeScheduler{}
	return New("view-1", platform, append([]Option{WithScheduler(sched)}, opts...)...), sched
}

func loadedPanel(t *testing.T, opts ...Option) (*Panel, *fakePlatform, *fakeScheduler) {
	t.Helper()
	platform := &fakePlatform{voices: twoVoices}
	p, sched := newTestPanel(platform, opts...)
	require.True(t, p.AttemptLoadVoices())
	return p, platform, sched
}

func TestAttemptLoadVoicesSelectsFirst(t *testing.T) {
	p, _, _ := loadedPanel(t)

	s := p.State()
	assert.Equal(t, twoVoices, s.Voices)
	assert.Equal(t, "A", s.Voice)
	assert.False(t, s.Loading)
}

func TestAttemptLoadVoicesEmptyLeavesStateUnchanged(t *testing.T) {
	p, _ := newTestPanel(&fakePlatform{})
	before := p.State()

	assert.False(t, p.AttemptLoadVoices())
	assert.Equal(t, before, p.State())
}

func TestSpeakScenario(t *testing.T) {
	p, platform, sched := loadedPanel(t)
	require.NoError(t, p.SelectVoice("B"))
	p.SetText("salom")
	p.SetRate(1.2)
	p.SetPitch(0.8)

	result, err := p.Speak(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Spoken, result)
	assert.Equal(t, []string{"cancel", "enqueue"}, platform.callLog())
	require.Len(t, platform.enqueued, 1)
	u := platform.enqueued[0]
	assert.Equal(t, "salom", u.Text)
	require.NotNil(t, u.Voice)
	assert.Equal(t, tts.Voice{Name: "B", Lang: "uz-UZ"}, *u.Voice)
	assert.Empty(t, u.Lang)
	assert.InDelta(t, 1.2, u.Rate, 1e-9)
	assert.InDelta(t, 0.8, u.Pitch, 1e-9)
	assert.Zero(t, sched.count())
}

func TestSpeakStaleSelectionFallsBackToLanguage(t *testing.T) {
	for _, stale := range []string{"", "C", "b", "A "} {
		t.Run(stale, func(t *testing.T) {
			p, platform, _ := loadedPanel(t)
			p.SetText("salom")
			p.mu.Lock()
			p.state.Voice = stale
			p.mu.Unlock()

			_, err := p.Speak(context.Background())
			require.NoError(t, err)

			require.Len(t, platform.enqueued, 1)
			assert.Nil(t, platform.enqueued[0].Voice)
			assert.Equal(t, "uz-UZ", platform.enqueued[0].Lang)
		})
	}
}

func TestSpeakFallbackLangConfigurable(t *testing.T) {
	p, platform, _ := loadedPanel(t, WithFallbackLang("en-GB"))
	p.SetText("hello")
	p.mu.Lock()
	p.state.Voice = "gone"
	p.mu.Unlock()

	_, err := p.Speak(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "en-GB", platform.enqueued[0].Lang)
}

func TestSpeakEmptyTextDoesNothing(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		platform := &fakePlatform{}
		p, sched := newTestPanel(platform)
		p.SetText(text)

		result, err := p.Speak(context.Background())
		require.NoError(t, err)

		assert.Equal(t, Ignored, result)
		assert.Empty(t, platform.callLog())
		assert.Zero(t, platform.listCalls, "loader must not run")
		assert.Zero(t, sched.count())
		assert.False(t, p.State().Loading)
	}
}

func TestSpeakWithoutVoicesSchedulesOneRetry(t *testing.T) {
	platform := &fakePlatform{}
	p, sched := newTestPanel(platform)
	p.SetText("salom")

	result, err := p.Speak(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Pending, result)
	assert.Empty(t, platform.callLog())
	assert.Equal(t, 1, platform.listCalls)
	require.Equal(t, 1, sched.count())
	assert.Equal(t, 300*time.Millisecond, sched.timers[0].delay)
	assert.True(t, p.State().Loading)
}

func TestSpeakWithoutVoicesLoadsButDoesNotSpeak(t *testing.T) {
	platform := &fakePlatform{voices: twoVoices}
	p, sched := newTestPanel(platform)
	p.SetText("salom")

	result, err := p.Speak(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Loaded, result)
	assert.Empty(t, platform.callLog())
	assert.Zero(t, sched.count())
	assert.Equal(t, "A", p.State().Voice)
	assert.False(t, p.State().Loading)
}

func TestRepeatedPressesCoalesceRetries(t *testing.T) {
	platform := &fakePlatform{}
	p, sched := newTestPanel(platform)
	p.SetText("salom")

	for i := 0; i < 5; i++ {
		result, err := p.Speak(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Pending, result)
	}

	assert.Equal(t, 1, sched.count())
	assert.Equal(t, 1, platform.listCalls)
}

func TestRetryLoadsVoicesWithoutSpeaking(t *testing.T) {
	platform := &fakePlatform{}
	p, sched := newTestPanel(platform)
	p.SetText("salom")

	_, err := p.Speak(context.Background())
	require.NoError(t, err)

	sched.fire(t)
	assert.Equal(t, 2, sched.count(), "still empty, retry rescheduled")
	assert.Empty(t, platform.callLog())

	platform.setVoices(twoVoices)
	sched.fire(t)

	assert.Empty(t, platform.callLog(), "a call starting with no voices never speaks")
	assert.Equal(t, 2, sched.count())
	assert.Equal(t, twoVoices, p.State().Voices)
	assert.False(t, p.State().Loading)

	result, err := p.Speak(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Spoken, result)
	assert.Equal(t, []string{"cancel", "enqueue"}, platform.callLog())
	require.NotNil(t, platform.enqueued[0].Voice)
	assert.Equal(t, "A", platform.enqueued[0].Voice.Name)
}

func TestRetryAfterTextClearedResetsLoading(t *testing.T) {
	platform := &fakePlatform{}
	p, sched := newTestPanel(platform)
	p.SetText("salom")

	_, err := p.Speak(context.Background())
	require.NoError(t, err)
	require.True(t, p.State().Loading)

	var got []State
	p.OnChange(func(s State) { got = append(got, s) })
	p.SetText("")
	sched.fire(t)

	assert.False(t, p.State().Loading)
	assert.Equal(t, 1, sched.count(), "no further retry")
	assert.Equal(t, 1, platform.listCalls)
	require.Len(t, got, 2)
	assert.False(t, got[1].Loading)

	// the attempt counter starts over on the next press
	p.SetText("salom")
	_, err = p.Speak(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.attempts)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	platform := &fakePlatform{}
	p, sched := newTestPanel(platform, WithMaxAttempts(3))
	p.SetText("salom")

	result, err := p.Speak(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Pending, result)

	sched.fire(t)
	assert.Equal(t, 2, sched.count())
	sched.fire(t)

	assert.Equal(t, 2, sched.count(), "third attempt must not reschedule")
	assert.Equal(t, 3, platform.listCalls)
	assert.False(t, p.State().Loading)

	result, err = p.Speak(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Pending, result, "a fresh press starts a new budget")
	assert.Equal(t, 3, sched.count())
}

func TestRetryAfterCloseIsIgnored(t *testing.T) {
	platform := &fakePlatform{}
	p, sched := newTestPanel(platform)
	p.SetText("salom")

	_, err := p.Speak(context.Background())
	require.NoError(t, err)

	p.Close()
	assert.True(t, sched.timers[0].stopped)

	// a timer that raced past Stop
	platform.setVoices(twoVoices)
	sched.timers[0].fn()
	assert.Empty(t, platform.callLog())
}

func TestWatchVoicesFiresPendingSpeak(t *testing.T) {
	base := &fakePlatform{ready: make(chan struct{})}
	p, sched := newTestPanel(notifyingPlatform{base})
	p.SetText("salom")

	_, err := p.Speak(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		p.WatchVoices(context.Background())
		close(done)
	}()

	base.setVoices(twoVoices)
	close(base.ready)
	<-done

	assert.True(t, sched.timers[0].stopped)
	assert.Equal(t, []string{"cancel", "enqueue"}, base.callLog())
	assert.Equal(t, 1, sched.count())
}

func TestWatchVoicesLoadsWithoutPendingSpeak(t *testing.T) {
	base := &fakePlatform{ready: make(chan struct{}), voices: twoVoices}
	p, _ := newTestPanel(notifyingPlatform{base})

	var got []State
	p.OnChange(func(s State) { got = append(got, s) })

	close(base.ready)
	p.WatchVoices(context.Background())

	assert.Empty(t, base.callLog())
	assert.Equal(t, "A", p.State().Voice)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Voices, 2)
}

func TestWatchVoicesWithoutNotifierReturns(t *testing.T) {
	p, _ := newTestPanel(&fakePlatform{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.WatchVoices(ctx)

	assert.NoError(t, ctx.Err())
}

func TestRateAndPitchClampAndSnap(t *testing.T) {
	p, _ := newTestPanel(&fakePlatform{})

	assert.InDelta(t, 0.5, p.SetRate(0.1), 1e-9)
	assert.InDelta(t, 2.0, p.SetRate(7), 1e-9)
	assert.InDelta(t, 1.3, p.SetRate(1.26), 1e-9)
	assert.InDelta(t, 0.0, p.SetPitch(-1), 1e-9)
	assert.InDelta(t, 2.0, p.SetPitch(2.04), 1e-9)
	assert.InDelta(t, 0.7, p.SetPitch(0.66), 1e-9)
}

func TestSpeakClampsRateAndPitch(t *testing.T) {
	p, platform, _ := loadedPanel(t)
	p.SetText("salom")
	p.mu.Lock()
	p.state.Rate = 9
	p.state.Pitch = -3
	p.mu.Unlock()

	_, err := p.Speak(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, MaxRate, platform.enqueued[0].Rate, 1e-9)
	assert.InDelta(t, MinPitch, platform.enqueued[0].Pitch, 1e-9)
}

func TestSelectVoiceUnknownSuggestsClosest(t *testing.T) {
	platform := &fakePlatform{voices: []tts.Voice{
		{Name: "Microsoft Sardor", Lang: "uz-UZ"},
		{Name: "Microsoft Aria", Lang: "en-US"},
	}}
	p, _ := newTestPanel(platform)
	require.True(t, p.AttemptLoadVoices())

	err := p.SelectVoice("Microsoft Sardr")
	require.ErrorIs(t, err, ErrUnknownVoice)
	assert.Contains(t, err.Error(), "Microsoft Sardor")
	assert.Equal(t, "Microsoft Sardor", p.State().Voice, "selection unchanged")
}

func TestSelectVoiceWithoutVoices(t *testing.T) {
	p, _ := newTestPanel(&fakePlatform{})

	err := p.SelectVoice("A")
	assert.ErrorIs(t, err, ErrUnknownVoice)
	assert.Empty(t, p.State().Voice)
}

func TestSelectionInvariantAfterLoad(t *testing.T) {
	p, _, _ := loadedPanel(t)
	require.NoError(t, p.SelectVoice("B"))

	s := p.State()
	found := false
	for _, v := range s.Voices {
		if v.Name == s.Voice {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCanSpeak(t *testing.T) {
	p, _ := newTestPanel(&fakePlatform{})
	assert.False(t, p.CanSpeak())

	p.SetText("  ")
	assert.False(t, p.CanSpeak())

	p.SetText("salom")
	assert.True(t, p.CanSpeak())
}

func TestEnqueueErrorIsReported(t *testing.T) {
	p, platform, _ := loadedPanel(t)
	platform.enqueueErr = errors.New("device busy")
	rec := &fakeRecorder{}
	p.recorder = rec
	p.SetText("salom")

	result, err := p.Speak(context.Background())

	assert.Equal(t, Rejected, result)
	assert.ErrorContains(t, err, "device busy")
	assert.Empty(t, rec.viewIDs)
}

func TestRecorderReceivesSpokenUtterance(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("disk full")}
	p, _, _ := loadedPanel(t, WithRecorder(rec))
	p.SetText("salom")

	result, err := p.Speak(context.Background())

	require.NoError(t, err, "recorder failures never fail speaking")
	assert.Equal(t, Spoken, result)
	assert.Equal(t, []string{"view-1"}, rec.viewIDs)
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	p, _ := newTestPanel(&fakePlatform{})

	var got []State
	p.OnChange(func(s State) { got = append(got, s) })

	p.SetText("a")
	p.SetRate(1.5)

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Text)
	assert.InDelta(t, 1.5, got[1].Rate, 1e-9)
}

func TestWithDefaults(t *testing.T) {
	p, _ := newTestPanel(&fakePlatform{}, WithDefaults(3, 0.55))

	s := p.State()
	assert.InDelta(t, 2.0, s.Rate, 1e-9)
	assert.InDelta(t, 0.6, s.Pitch, 1e-9)
}

func TestPreviewKeepsText(t *testing.T) {
	p, platform, sched := loadedPanel(t)
	p.SetText("salom")

	result, err := p.Preview(context.Background(), "sinov")
	require.NoError(t, err)

	assert.Equal(t, Spoken, result)
	assert.Equal(t, []string{"cancel", "enqueue"}, platform.callLog())
	assert.Equal(t, "sinov", platform.enqueued[0].Text)
	assert.Equal(t, "salom", p.State().Text)
	assert.Zero(t, sched.count())
}

func TestPreviewWithoutVoicesNeverRetries(t *testing.T) {
	platform := &fakePlatform{}
	p, sched := newTestPanel(platform)

	result, err := p.Preview(context.Background(), "sinov")
	require.NoError(t, err)

	assert.Equal(t, Pending, result)
	assert.Empty(t, platform.callLog())
	assert.Zero(t, sched.count())

	platform.setVoices(twoVoices)
	result, err = p.Preview(context.Background(), "sinov")
	require.NoError(t, err)
	assert.Equal(t, Spoken, result)
}

func TestPlatformVoicesDoesNotLoad(t *testing.T) {
	p, _ := newTestPanel(&fakePlatform{voices: twoVoices})

	assert.Len(t, p.PlatformVoices(), 2)
	assert.Empty(t, p.State().Voices)
}
