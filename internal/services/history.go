// internal/services/history.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tahcohcat/neon-voice/internal/database"
	"github.com/tahcohcat/neon-voice/internal/models"
	"github.com/tahcohcat/neon-voice/internal/tts"
)

type HistoryService struct {
	db      *database.DB
	backend string
}

func NewHistoryService(db *database.DB, backend string) *HistoryService {
	return &HistoryService{db: db, backend: backend}
}

// RecordUtterance stores an utterance submitted by a view
func (s *HistoryService) RecordUtterance(ctx context.Context, viewID string, u tts.Utterance) error {
	record := &models.UtteranceRecord{
		ViewID:    viewID,
		Text:      u.Text,
		Lang:      u.Language(),
		Rate:      u.Rate,
		Pitch:     u.Pitch,
		Backend:   s.backend,
		CreatedAt: time.Now().UTC(),
	}
	if u.Voice != nil {
		record.VoiceName = u.Voice.Name
	}

	query := `
		INSERT INTO utterances (view_id, text, voice_name, lang, rate, pitch, backend, created_at)
		VALUES (:view_id, :text, :voice_name, :lang, :rate, :pitch, :backend, :created_at)
	`

	if _, err := s.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("failed to record utterance: %w", err)
	}
	return nil
}

// Recent returns the newest utterances first. An empty viewID returns
// utterances from every view.
func (s *HistoryService) Recent(ctx context.Context, viewID string, limit int) ([]models.UtteranceRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	records := []models.UtteranceRecord{}
	var err error
	if viewID == "" {
		err = s.db.SelectContext(ctx, &records,
			`SELECT id, view_id, text, voice_name, lang, rate, pitch, backend, created_at
			 FROM utterances ORDER BY id DESC LIMIT ?`, limit)
	} else {
		err = s.db.SelectContext(ctx, &records,
			`SELECT id, view_id, text, voice_name, lang, rate, pitch, backend, created_at
			 FROM utterances WHERE view_id = ? ORDER BY id DESC LIMIT ?`, viewID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get utterances: %w", err)
	}

	return records, nil
}

// Count returns the number of stored utterances. An empty viewID counts
// every view.
func (s *HistoryService) Count(ctx context.Context, viewID string) (int, error) {
	var count int
	var err error
	if viewID == "" {
		err = s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM utterances`)
	} else {
		err = s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM utterances WHERE view_id = ?`, viewID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count utterances: %w", err)
	}
	return count, nil
}
