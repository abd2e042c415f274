// Package web holds the browser page that drives a speech panel.
package web

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/tahcohcat/neon-voice/internal/panel"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// Labels shown on the page.
const (
	Title            = "🔊 NEON VOICE"
	TextPlaceholder  = "Matnni yozing..."
	VoiceLabel       = "OVOZ"
	VoicePlaceholder = "Ovoz yuklanadi..."
	RateLabel        = "Tezlik"
	PitchLabel       = "Ohang"
	SpeakLabel       = "▶️ O‘QIB BER"
	LoadingLabel     = "YUKLANMOQDA..."
)

type IndexPage struct {
	State   panel.State
	Backend string
}

func (p IndexPage) ButtonLabel() string {
	if p.State.Loading {
		return LoadingLabel
	}
	return SpeakLabel
}

func (p IndexPage) Labels() map[string]string {
	return map[string]string{
		"title":             Title,
		"text_placeholder":  TextPlaceholder,
		"voice":             VoiceLabel,
		"voice_placeholder": VoicePlaceholder,
		"rate":              RateLabel,
		"pitch":             PitchLabel,
		"speak":             SpeakLabel,
		"loading":           LoadingLabel,
	}
}

func (p IndexPage) Limits() map[string]float64 {
	return map[string]float64{
		"min_rate":  panel.MinRate,
		"max_rate":  panel.MaxRate,
		"min_pitch": panel.MinPitch,
		"max_pitch": panel.MaxPitch,
		"step":      panel.Step,
	}
}

type LoginPage struct {
	Error string
}

// Render executes the named template into w as HTML.
func Render(w http.ResponseWriter, name string, data any) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return templates.ExecuteTemplate(w, name, data)
}
