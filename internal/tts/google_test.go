package tts

import (
	"testing"

	ttspb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/stretchr/testify/assert"
)

func TestSynthesisRequestWithVoice(t *testing.T) {
	req := synthesisRequest(Utterance{
		Text:  "salom",
		Voice: &Voice{Name: "uz-UZ-Standard-A", Lang: "uz-UZ"},
		Rate:  1.2,
		Pitch: 0.5,
	})

	assert.Equal(t, "salom", req.GetInput().GetText())
	assert.Equal(t, "uz-UZ-Standard-A", req.GetVoice().GetName())
	assert.Equal(t, "uz-UZ", req.GetVoice().GetLanguageCode())
	assert.Equal(t, ttspb.AudioEncoding_MP3, req.GetAudioConfig().GetAudioEncoding())
	assert.InDelta(t, 1.2, req.GetAudioConfig().GetSpeakingRate(), 1e-9)
	assert.InDelta(t, -10.0, req.GetAudioConfig().GetPitch(), 1e-9)
}

func TestSynthesisRequestFallbackLanguage(t *testing.T) {
	req := synthesisRequest(Utterance{Text: "salom", Lang: "uz-UZ", Rate: 1, Pitch: 1})

	assert.Empty(t, req.GetVoice().GetName())
	assert.Equal(t, "uz-UZ", req.GetVoice().GetLanguageCode())
	assert.InDelta(t, 0.0, req.GetAudioConfig().GetPitch(), 1e-9)
}

func TestPitchToSemitonesRange(t *testing.T) {
	assert.InDelta(t, -20.0, pitchToSemitones(0), 1e-9)
	assert.InDelta(t, 20.0, pitchToSemitones(2), 1e-9)
}
