package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	htgotts "github.com/hegedustibor/htgo-tts"

	"github.com/tahcohcat/neon-voice/internal/logger"
)

// the translate endpoint answers over-long input with a fixed-size stub
const badTranslateMP3Size = 1685

// TranslateTTS uses the Google Translate speech endpoint. It only knows
// languages, so every language is exposed as one voice. Rate and pitch are
// not supported by the service.
type TranslateTTS struct {
	languages []string
	dir       string
	logger    *logger.Log
}

func NewTranslateTTS(languages []string) (*TranslateTTS, error) {
	dir, err := os.MkdirTemp("", "neonvoice-translate-")
	if err != nil {
		return nil, fmt.Errorf("failed to create audio dir: %w", err)
	}
	return &TranslateTTS{
		languages: languages,
		dir:       dir,
		logger:    logger.New(),
	}, nil
}

func (t *TranslateTTS) ListVoices(context.Context) ([]Voice, error) {
	voices := make([]Voice, 0, len(t.languages))
	for _, lang := range t.languages {
		lang = normalizeLang(lang)
		if lang == "" {
			continue
		}
		voices = append(voices, Voice{Name: "Google Translate " + lang, Lang: lang})
	}
	return voices, nil
}

func (t *TranslateTTS) Synthesize(ctx context.Context, u Utterance) ([]byte, error) {
	if strings.TrimSpace(u.Text) == "" {
		return nil, ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lang := primaryLang(u.Language())
	speech := htgotts.Speech{Folder: t.dir, Language: lang}
	path, err := speech.CreateSpeechFile(u.Text, uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	defer os.Remove(path)

	audio, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech file: %w", err)
	}
	if len(audio) == badTranslateMP3Size {
		return nil, errors.New("failed to gen speech - line too long")
	}

	t.logger.Debug(fmt.Sprintf("Generated %d bytes of MP3 audio for language %s", len(audio), lang))
	return audio, nil
}

func (t *TranslateTTS) Name() string {
	return "Google Translate TTS"
}

func (t *TranslateTTS) Close() error {
	return os.RemoveAll(t.dir)
}
