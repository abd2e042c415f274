package tts

import (
	"context"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	ttspb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"

	"github.com/tahcohcat/neon-voice/internal/logger"
)

type WebGoogleTTS struct {
	client *texttospeech.Client
	logger *logger.Log
}

// NewWebGoogleTTSClient connects to Google Cloud Text-to-Speech. An empty
// credentialsFile falls back to GOOGLE_APPLICATION_CREDENTIALS.
func NewWebGoogleTTSClient(ctx context.Context, credentialsFile string) (*WebGoogleTTS, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google TTS client: %w", err)
	}

	return &WebGoogleTTS{
		client: client,
		logger: logger.New(),
	}, nil
}

func (g *WebGoogleTTS) ListVoices(ctx context.Context) ([]Voice, error) {
	resp, err := g.client.ListVoices(ctx, &ttspb.ListVoicesRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list google voices: %w", err)
	}

	voices := make([]Voice, 0, len(resp.GetVoices()))
	for _, v := range resp.GetVoices() {
		lang := ""
		if codes := v.GetLanguageCodes(); len(codes) > 0 {
			lang = codes[0]
		}
		voices = append(voices, Voice{Name: v.GetName(), Lang: lang})
	}
	return voices, nil
}

// Synthesize generates MP3 audio for the utterance.
func (g *WebGoogleTTS) Synthesize(ctx context.Context, u Utterance) ([]byte, error) {
	if strings.TrimSpace(u.Text) == "" {
		return nil, ErrEmptyText
	}

	req := synthesisRequest(u)

	g.logger.Debug(fmt.Sprintf("Generating Google TTS audio with voice: %s, language: %s",
		req.GetVoice().GetName(), req.GetVoice().GetLanguageCode()))

	resp, err := g.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}

	if len(resp.AudioContent) == 0 {
		return nil, fmt.Errorf("empty audio content received from Google TTS")
	}

	g.logger.Debug(fmt.Sprintf("Generated %d bytes of MP3 audio", len(resp.AudioContent)))
	return resp.AudioContent, nil
}

func (g *WebGoogleTTS) Name() string {
	return "Google Cloud Text-to-Speech (Web)"
}

func (g *WebGoogleTTS) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func synthesisRequest(u Utterance) *ttspb.SynthesizeSpeechRequest {
	voice := &ttspb.VoiceSelectionParams{LanguageCode: u.Language()}
	if u.Voice != nil {
		voice.Name = u.Voice.Name
	}

	return &ttspb.SynthesizeSpeechRequest{
		Input: &ttspb.SynthesisInput{
			InputSource: &ttspb.SynthesisInput_Text{Text: u.Text},
		},
		Voice: voice,
		AudioConfig: &ttspb.AudioConfig{
			AudioEncoding:   ttspb.AudioEncoding_MP3, // Use MP3 for web compatibility
			SpeakingRate:    u.Rate,
			Pitch:           pitchToSemitones(u.Pitch),
			SampleRateHertz: 22050,
		},
	}
}

// pitchToSemitones maps the panel's 0..2 pitch onto Google's -20..20 range.
func pitchToSemitones(pitch float64) float64 {
	return (pitch - 1) * 20
}
