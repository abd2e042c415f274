package tts

import (
	"context"
	"fmt"

	"github.com/tahcohcat/neon-voice/internal/logger"
)

type DummyTts struct {
	logger *logger.Log
}

func NewDummyTts() *DummyTts {
	return &DummyTts{logger: logger.New()}
}

func (d *DummyTts) Voices() []Voice {
	return []Voice{{Name: "Dummy", Lang: "en-US"}}
}

func (d *DummyTts) Cancel() {}

func (d *DummyTts) Enqueue(_ context.Context, u Utterance) error {
	d.logger.Debug(fmt.Sprintf("no tts configured. ignoring utterance [lang:%s, rate:%.1f, pitch:%.1f]",
		u.Language(), u.Rate, u.Pitch))
	return nil
}

func (d *DummyTts) Platform(string, AudioSink) Platform {
	return d
}

func (d *DummyTts) Name() string {
	return "dummy"
}

func (d *DummyTts) Close() error {
	return nil
}
