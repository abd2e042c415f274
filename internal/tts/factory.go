package tts

import (
	"context"
	"fmt"

	"github.com/tahcohcat/neon-voice/config"
)

type Backend string

const (
	BackendSystem    Backend = "system"
	BackendGoogle    Backend = "google"
	BackendTranslate Backend = "translate"
	BackendDummy     Backend = "dummy"
)

// NewProvider creates the configured speech backend and starts its voice
// enumeration under ctx.
func NewProvider(ctx context.Context, cfg *config.SpeechConfig) (Provider, error) {
	switch Backend(cfg.Backend) {
	case BackendSystem:
		s, err := NewSystemTts(cfg.System.Binary, nil)
		if err != nil {
			return nil, err
		}
		s.Start(ctx)
		return s, nil
	case BackendGoogle:
		g, err := NewWebGoogleTTSClient(ctx, cfg.Google.CredentialsFile)
		if err != nil {
			return nil, err
		}
		p := NewStreamProvider(g)
		p.Start(ctx)
		return p, nil
	case BackendTranslate:
		t, err := NewTranslateTTS(cfg.Translate.Languages)
		if err != nil {
			return nil, err
		}
		p := NewStreamProvider(t)
		p.Start(ctx)
		return p, nil
	case BackendDummy:
		return NewDummyTts(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, cfg.Backend)
	}
}
