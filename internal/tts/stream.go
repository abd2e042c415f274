package tts

import (
	"context"
	"fmt"
	"strings"

	"github.com/tahcohcat/neon-voice/internal/logger"
)

// StreamProvider serves synthesizers whose audio is played by the browser.
// The voice catalog is shared; each view gets its own queue so one tab
// cancelling does not silence another.
type StreamProvider struct {
	synth   Synthesizer
	catalog *Catalog
}

func NewStreamProvider(synth Synthesizer) *StreamProvider {
	return &StreamProvider{
		synth:   synth,
		catalog: NewCatalog(synth.ListVoices),
	}
}

// Start begins voice enumeration in the background.
func (p *StreamProvider) Start(ctx context.Context) {
	p.catalog.Start(ctx)
}

func (p *StreamProvider) Platform(viewID string, sink AudioSink) Platform {
	sp := &StreamPlatform{
		viewID:  viewID,
		synth:   p.synth,
		catalog: p.catalog,
		sink:    sink,
		logger:  logger.New(),
	}
	sp.queue = newPlayQueue(sp.play)
	return sp
}

func (p *StreamProvider) Name() string {
	return p.synth.Name()
}

func (p *StreamProvider) Close() error {
	return p.synth.Close()
}

// StreamPlatform synthesizes utterances for one view and pushes the audio
// to that view's sink.
type StreamPlatform struct {
	viewID  string
	synth   Synthesizer
	catalog *Catalog
	sink    AudioSink
	queue   *playQueue
	logger  *logger.Log
}

func (s *StreamPlatform) play(ctx context.Context, u Utterance) error {
	audio, err := s.synth.Synthesize(ctx, u)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.Debug(fmt.Sprintf("Streaming %d bytes of audio to view %s", len(audio), s.viewID))
	return s.sink.SendAudio(s.viewID, audio)
}

func (s *StreamPlatform) Voices() []Voice {
	return s.catalog.Voices()
}

func (s *StreamPlatform) VoicesChanged() <-chan struct{} {
	return s.catalog.VoicesChanged()
}

func (s *StreamPlatform) Cancel() {
	s.queue.cancel()
	if err := s.sink.SendCancel(s.viewID); err != nil {
		s.logger.WithError(err).Warn("could not notify browser of cancel")
	}
}

func (s *StreamPlatform) Enqueue(_ context.Context, u Utterance) error {
	if strings.TrimSpace(u.Text) == "" {
		return ErrEmptyText
	}
	return s.queue.push(u)
}

func (s *StreamPlatform) Close() error {
	s.queue.close()
	return nil
}
