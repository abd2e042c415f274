package models

import (
	"time"
)

// UtteranceRecord is one utterance handed to the speech platform
type UtteranceRecord struct {
	ID        int       `json:"id" db:"id"`
	ViewID    string    `json:"view_id" db:"view_id"`
	Text      string    `json:"text" db:"text"`
	VoiceName string    `json:"voice_name" db:"voice_name"` // empty when the fallback language was used
	Lang      string    `json:"lang" db:"lang"`
	Rate      float64   `json:"rate" db:"rate"`
	Pitch     float64   `json:"pitch" db:"pitch"`
	Backend   string    `json:"backend" db:"backend"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
