package tts

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrUnsupportedBackend = errors.New("unsupported speech backend")
	ErrNoSpeechBinary     = errors.New("speech not available: install espeak-ng, espeak or say")
	ErrEmptyText          = errors.New("text cannot be empty")
	ErrClosed             = errors.New("speech platform closed")
)

// Voice is one installed synthetic voice as reported by the platform.
type Voice struct {
	Name string `json:"name"`
	Lang string `json:"lang"`
}

// Utterance is a single request to synthesize and play a text span.
// Lang is only consulted when Voice is nil.
type Utterance struct {
	Text  string  `json:"text"`
	Voice *Voice  `json:"voice,omitempty"`
	Lang  string  `json:"lang,omitempty"`
	Rate  float64 `json:"rate"`
	Pitch float64 `json:"pitch"`
}

// Language returns the language tag the utterance should be spoken in.
func (u Utterance) Language() string {
	if u.Voice != nil && u.Voice.Lang != "" {
		return u.Voice.Lang
	}
	return u.Lang
}

// Platform is the speech capability a panel drives.
type Platform interface {
	// Voices returns the currently known voices. It never blocks and may be
	// empty while the backend is still enumerating.
	Voices() []Voice
	// Cancel stops the active utterance and drops queued ones.
	Cancel()
	// Enqueue submits an utterance for playback after anything already queued.
	Enqueue(ctx context.Context, u Utterance) error
}

// VoicesNotifier is implemented by platforms that can signal when their
// voice list becomes available. The channel is closed once.
type VoicesNotifier interface {
	VoicesChanged() <-chan struct{}
}

// AudioSink delivers encoded audio to the browsers of one view.
type AudioSink interface {
	SendAudio(viewID string, audio []byte) error
	SendCancel(viewID string) error
}

// Synthesizer renders utterances to encoded audio for browser playback.
type Synthesizer interface {
	ListVoices(ctx context.Context) ([]Voice, error)
	Synthesize(ctx context.Context, u Utterance) ([]byte, error)
	Name() string
	Close() error
}

// Provider hands out platforms bound to a browser view.
type Provider interface {
	Platform(viewID string, sink AudioSink) Platform
	Name() string
	Close() error
}

// normalizeLang turns "en_us" or "en-us" into "en-US".
func normalizeLang(tag string) string {
	tag = strings.ReplaceAll(strings.TrimSpace(tag), "_", "-")
	parts := strings.Split(tag, "-")
	if len(parts) == 0 || parts[0] == "" {
		return ""
	}
	parts[0] = strings.ToLower(parts[0])
	for i := 1; i < len(parts); i++ {
		if len(parts[i]) == 2 {
			parts[i] = strings.ToUpper(parts[i])
		}
	}
	return strings.Join(parts, "-")
}

// primaryLang returns the primary subtag: "uz-UZ" -> "uz".
func primaryLang(tag string) string {
	tag = normalizeLang(tag)
	if i := strings.Index(tag, "-"); i >= 0 {
		return tag[:i]
	}
	return tag
}
