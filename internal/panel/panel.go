// Package panel implements the speech control panel: the state behind one
// browser view and the protocol that loads voices and submits utterances.
package panel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/schollz/closestmatch"

	"github.com/tahcohcat/neon-voice/internal/logger"
	"github.com/tahcohcat/neon-voice/internal/tts"
)

const (
	MinRate  = 0.5
	MaxRate  = 2.0
	MinPitch = 0.0
	MaxPitch = 2.0
	Step     = 0.1

	DefaultRetryDelay   = 300 * time.Millisecond
	DefaultFallbackLang = "uz-UZ"
)

var ErrUnknownVoice = errors.New("unknown voice")

// Result describes what a Speak call did.
type Result string

const (
	// Ignored means the text was empty.
	Ignored Result = "ignored"
	// Pending means voices were not ready and a retry is scheduled.
	Pending Result = "pending"
	// Loaded means voices were loaded by this press; nothing was spoken.
	Loaded Result = "voices_loaded"
	// GaveUp means the retry budget ran out before voices appeared.
	GaveUp Result = "gave_up"
	// Spoken means an utterance was handed to the platform.
	Spoken Result = "spoken"
	// Rejected means the platform refused the utterance.
	Rejected Result = "rejected"
)

// State is a snapshot of the panel.
type State struct {
	Text    string      `json:"text"`
	Voices  []tts.Voice `json:"voices"`
	Voice   string      `json:"voice"`
	Rate    float64     `json:"rate"`
	Pitch   float64     `json:"pitch"`
	Loading bool        `json:"loading"`
}

// CanSpeak reports whether the speak trigger is enabled.
func (s State) CanSpeak() bool {
	return strings.TrimSpace(s.Text) != ""
}

// Recorder receives every utterance handed to the platform.
type Recorder interface {
	RecordUtterance(ctx context.Context, viewID string, u tts.Utterance) error
}

type Option func(*Panel)

func WithScheduler(s Scheduler) Option {
	return func(p *Panel) { p.scheduler = s }
}

func WithRetryDelay(d time.Duration) Option {
	return func(p *Panel) { p.retryDelay = d }
}

// WithMaxAttempts caps voice loading retries. Zero retries forever.
func WithMaxAttempts(n int) Option {
	return func(p *Panel) { p.maxAttempts = n }
}

func WithFallbackLang(lang string) Option {
	return func(p *Panel) { p.fallbackLang = lang }
}

func WithDefaults(rate, pitch float64) Option {
	return func(p *Panel) {
		p.state.Rate = snap(rate, MinRate, MaxRate)
		p.state.Pitch = snap(pitch, MinPitch, MaxPitch)
	}
}

func WithRecorder(r Recorder) Option {
	return func(p *Panel) { p.recorder = r }
}

type Panel struct {
	id           string
	platform     tts.Platform
	scheduler    Scheduler
	retryDelay   time.Duration
	maxAttempts  int
	fallbackLang string
	recorder     Recorder
	logger       *logger.Log

	mu       sync.Mutex
	state    State
	retry    Timer
	attempts int
	closed   bool

	listenersMu sync.Mutex
	listeners   []func(State)
}

func New(id string, platform tts.Platform, opts ...Option) *Panel {
	p := &Panel{
		id:           id,
		platform:     platform,
		scheduler:    clockScheduler{},
		retryDelay:   DefaultRetryDelay,
		fallbackLang: DefaultFallbackLang,
		logger:       logger.New(),
		state:        State{Rate: 1, Pitch: 1},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Panel) ID() string {
	return p.id
}

// State returns a copy of the current state.
func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

func (p *Panel) snapshot() State {
	s := p.state
	s.Voices = append([]tts.Voice(nil), p.state.Voices...)
	return s
}

// OnChange registers fn to receive a snapshot after every mutation.
func (p *Panel) OnChange(fn func(State)) {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *Panel) notify(s State) {
	p.listenersMu.Lock()
	listeners := append(([]func(State))(nil), p.listeners...)
	p.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}

func (p *Panel) SetText(text string) {
	p.mu.Lock()
	p.state.Text = text
	s := p.snapshot()
	p.mu.Unlock()

	p.notify(s)
}

// SelectVoice selects a loaded voice by exact name.
func (p *Panel) SelectVoice(name string) error {
	p.mu.Lock()
	if _, ok := p.findVoice(name); !ok {
		err := p.unknownVoiceError(name)
		p.mu.Unlock()
		return err
	}
	p.state.Voice = name
	s := p.snapshot()
	p.mu.Unlock()

	p.notify(s)
	return nil
}

func (p *Panel) unknownVoiceError(name string) error {
	if len(p.state.Voices) == 0 {
		return fmt.Errorf("%w: %q (no voices loaded)", ErrUnknownVoice, name)
	}

	names := make([]string, len(p.state.Voices))
	for i, v := range p.state.Voices {
		names[i] = v.Name
	}
	if suggestion := closestmatch.New(names, []int{2}).Closest(name); suggestion != "" {
		return fmt.Errorf("%w: %q, did you mean %q?", ErrUnknownVoice, name, suggestion)
	}
	return fmt.Errorf("%w: %q", ErrUnknownVoice, name)
}

// SetRate clamps and snaps v to the rate slider and returns the stored value.
func (p *Panel) SetRate(v float64) float64 {
	p.mu.Lock()
	p.state.Rate = snap(v, MinRate, MaxRate)
	s := p.snapshot()
	p.mu.Unlock()

	p.notify(s)
	return s.Rate
}

// SetPitch clamps and snaps v to the pitch slider and returns the stored value.
func (p *Panel) SetPitch(v float64) float64 {
	p.mu.Lock()
	p.state.Pitch = snap(v, MinPitch, MaxPitch)
	s := p.snapshot()
	p.mu.Unlock()

	p.notify(s)
	return s.Pitch
}

// PlatformVoices asks the platform for its voices without loading them
// into the panel.
func (p *Panel) PlatformVoices() []tts.Voice {
	return p.platform.Voices()
}

func (p *Panel) CanSpeak() bool {
	return p.State().CanSpeak()
}

// AttemptLoadVoices queries the platform once. A non-empty list replaces
// the panel's voices, selects the first one and clears the loading flag.
func (p *Panel) AttemptLoadVoices() bool {
	p.mu.Lock()
	ok := p.loadVoicesLocked()
	s := p.snapshot()
	p.mu.Unlock()

	if ok {
		p.notify(s)
	}
	return ok
}

func (p *Panel) loadVoicesLocked() bool {
	voices := p.platform.Voices()
	if len(voices) == 0 {
		return false
	}

	p.state.Voices = append([]tts.Voice(nil), voices...)
	p.state.Voice = voices[0].Name
	p.state.Loading = false
	p.attempts = 0
	return true
}

// Speak turns the current state into one utterance. When no voices are
// loaded it only starts loading them and, if the platform is not ready,
// schedules itself to run again after the retry delay.
func (p *Panel) Speak(ctx context.Context) (Result, error) {
	return p.speak(ctx, false)
}

func (p *Panel) speak(ctx context.Context, retried bool) (Result, error) {
	p.mu.Lock()

	if retried {
		p.retry = nil
	}
	if p.closed {
		p.mu.Unlock()
		return Ignored, nil
	}
	if strings.TrimSpace(p.state.Text) == "" {
		// the text was cleared while a retry was pending
		stale := retried && p.state.Loading
		if stale {
			p.state.Loading = false
			p.attempts = 0
		}
		s := p.snapshot()
		p.mu.Unlock()
		if stale {
			p.notify(s)
		}
		return Ignored, nil
	}

	// a call that starts without voices never speaks, retried or not
	if len(p.state.Voices) == 0 {
		result := p.loadForSpeakLocked(retried)
		s := p.snapshot()
		p.mu.Unlock()
		p.notify(s)
		return result, nil
	}

	u, err := p.submitLocked(ctx, p.state.Text)
	s := p.snapshot()
	p.mu.Unlock()

	if retried {
		p.notify(s)
	}
	return p.finish(u, err)
}

// Preview speaks text with the panel's voice, rate and pitch without
// touching the text field. It never schedules a retry.
func (p *Panel) Preview(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Ignored, nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Ignored, nil
	}
	if len(p.state.Voices) == 0 {
		p.mu.Unlock()
		if !p.AttemptLoadVoices() {
			return Pending, nil
		}
		p.mu.Lock()
	}
	u, err := p.submitLocked(ctx, text)
	p.mu.Unlock()

	return p.finish(u, err)
}

// submitLocked cancels whatever is playing and enqueues text.
func (p *Panel) submitLocked(ctx context.Context, text string) (tts.Utterance, error) {
	u := p.utteranceLocked(text)
	p.platform.Cancel()
	return u, p.platform.Enqueue(ctx, u)
}

func (p *Panel) finish(u tts.Utterance, err error) (Result, error) {
	if err != nil {
		p.logger.WithError(err).Warn("platform rejected utterance")
		return Rejected, fmt.Errorf("failed to enqueue utterance: %w", err)
	}

	p.logger.View(p.id, fmt.Sprintf("speaking %d chars [voice:%s, lang:%s, rate:%.1f, pitch:%.1f]",
		len(u.Text), voiceName(u), u.Language(), u.Rate, u.Pitch))
	p.record(u)
	return Spoken, nil
}

// loadForSpeakLocked handles a speak press with no voices.
func (p *Panel) loadForSpeakLocked(retried bool) Result {
	if !retried && p.retry != nil {
		return Pending
	}

	p.state.Loading = true
	if p.loadVoicesLocked() {
		return Loaded
	}

	p.attempts++
	if p.maxAttempts > 0 && p.attempts >= p.maxAttempts {
		p.logger.Warn(fmt.Sprintf("no voices after %d attempts, giving up", p.attempts))
		p.state.Loading = false
		p.attempts = 0
		return GaveUp
	}

	p.retry = p.scheduler.AfterFunc(p.retryDelay, p.fireRetry)
	return Pending
}

func (p *Panel) fireRetry() {
	if _, err := p.speak(context.Background(), true); err != nil {
		p.logger.WithError(err).Warn("retried speak failed")
	}
}

func (p *Panel) utteranceLocked(text string) tts.Utterance {
	u := tts.Utterance{
		Text:  text,
		Rate:  clamp(p.state.Rate, MinRate, MaxRate),
		Pitch: clamp(p.state.Pitch, MinPitch, MaxPitch),
	}
	if v, ok := p.findVoice(p.state.Voice); ok {
		u.Voice = &v
	} else {
		u.Lang = p.fallbackLang
	}
	return u
}

func (p *Panel) findVoice(name string) (tts.Voice, bool) {
	for _, v := range p.state.Voices {
		if v.Name == name {
			return v, true
		}
	}
	return tts.Voice{}, false
}

func (p *Panel) record(u tts.Utterance) {
	if p.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.recorder.RecordUtterance(ctx, p.id, u); err != nil {
		p.logger.WithError(err).Warn("failed to record utterance")
	}
}

// WatchVoices waits for the platform's voices-ready signal, loads the voices
// and runs any pending retry right away. It returns immediately for
// platforms without a signal.
func (p *Panel) WatchVoices(ctx context.Context) {
	notifier, ok := p.platform.(tts.VoicesNotifier)
	if !ok {
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-notifier.VoicesChanged():
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	pending := p.retry != nil && p.retry.Stop()
	if pending {
		p.retry = nil
	}
	loaded := len(p.state.Voices) == 0 && p.loadVoicesLocked()
	s := p.snapshot()
	p.mu.Unlock()

	if pending {
		p.fireRetry()
		return
	}
	if loaded {
		p.notify(s)
	}
}

// Close stops any pending retry. The platform is left alone since it may be
// shared with other views.
func (p *Panel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	if p.retry != nil {
		p.retry.Stop()
		p.retry = nil
	}
}

func voiceName(u tts.Utterance) string {
	if u.Voice == nil {
		return "-"
	}
	return u.Voice.Name
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// snap clamps v and rounds it to the slider step.
func snap(v, lo, hi float64) float64 {
	return clamp(math.Round(clamp(v, lo, hi)/Step)*Step, lo, hi)
}
