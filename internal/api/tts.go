package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/tahcohcat/neon-voice/internal/logger"
	"github.com/tahcohcat/neon-voice/internal/panel"
	"github.com/tahcohcat/neon-voice/internal/services"
)

const TestPhrase = "Salom! Bu ovozni sinash uchun matn."

type TTSHandler struct {
	panels       *panel.Manager
	viewID       ViewIDFunc
	history      *services.HistoryService // nil when history is disabled
	historyLimit int
	logger       *logger.Log
}

func NewTTSHandler(panels *panel.Manager, viewID ViewIDFunc, history *services.HistoryService, historyLimit int) *TTSHandler {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &TTSHandler{
		panels:       panels,
		viewID:       viewID,
		history:      history,
		historyLimit: historyLimit,
		logger:       logger.New(),
	}
}

// GET /api/v1/voices - Voices the platform offers this view right now
func (th *TTSHandler) ListVoices(w http.ResponseWriter, r *http.Request) {
	v := th.panels.Get(th.viewID(w, r))
	voices := v.Panel.PlatformVoices()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"voices": voices,
		"count":  len(voices),
	})
}

// GET /api/v1/tts/test - Speak a fixed phrase with the view's settings
func (th *TTSHandler) TestTTS(w http.ResponseWriter, r *http.Request) {
	v := th.panels.Get(th.viewID(w, r))
	if !v.Allow() {
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := v.Panel.Preview(ctx, TestPhrase)
	if err != nil {
		http.Error(w, "TTS test failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": result,
		"text":   TestPhrase,
	})
}

// GET /api/v1/history?limit=n - Recent utterances of this view
func (th *TTSHandler) History(w http.ResponseWriter, r *http.Request) {
	if th.history == nil {
		http.Error(w, "History is disabled", http.StatusNotFound)
		return
	}

	limit := th.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, th.historyLimit)
	}

	viewID := th.viewID(w, r)
	records, err := th.history.Recent(r.Context(), viewID, limit)
	if err != nil {
		th.logger.WithError(err).Error("failed to load history")
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}

	total, err := th.history.Count(r.Context(), viewID)
	if err != nil {
		th.logger.WithError(err).Error("failed to count history")
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"utterances": records,
		"total":      total,
	})
}

func RegisterTTSRoutes(r *mux.Router, th *TTSHandler) {
	r.HandleFunc("/voices", th.ListVoices).Methods("GET")
	r.HandleFunc("/tts/test", th.TestTTS).Methods("GET")
	r.HandleFunc("/history", th.History).Methods("GET")
}
