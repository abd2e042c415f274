package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tahcohcat/neon-voice/internal/logger"
	"github.com/tahcohcat/neon-voice/internal/panel"
	"github.com/tahcohcat/neon-voice/internal/web"
)

// ViewIDFunc identifies the browser view a request belongs to.
type ViewIDFunc func(w http.ResponseWriter, r *http.Request) string

type PanelHandler struct {
	panels  *panel.Manager
	viewID  ViewIDFunc
	backend string
	logger  *logger.Log
}

type PanelResponse struct {
	panel.State
	CanSpeak bool `json:"can_speak"`
}

type textRequest struct {
	Text string `json:"text"`
}

type voiceRequest struct {
	Name string `json:"name"`
}

type valueRequest struct {
	Value *float64 `json:"value"`
}

func NewPanelHandler(panels *panel.Manager, viewID ViewIDFunc, backend string) *PanelHandler {
	return &PanelHandler{
		panels:  panels,
		viewID:  viewID,
		backend: backend,
		logger:  logger.New(),
	}
}

func (ph *PanelHandler) view(w http.ResponseWriter, r *http.Request) *panel.View {
	return ph.panels.Get(ph.viewID(w, r))
}

// GET / - Serve the panel page
func (ph *PanelHandler) Index(w http.ResponseWriter, r *http.Request) {
	v := ph.view(w, r)
	page := web.IndexPage{State: v.Panel.State(), Backend: ph.backend}
	if err := web.Render(w, "index.html", page); err != nil {
		ph.logger.WithError(err).Error("failed to render index")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// GET /api/v1/panel - Current panel state
func (ph *PanelHandler) GetPanel(w http.ResponseWriter, r *http.Request) {
	v := ph.view(w, r)
	writeJSON(w, http.StatusOK, stateResponse(v.Panel.State()))
}

// PUT /api/v1/panel/text
func (ph *PanelHandler) SetText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	v := ph.view(w, r)
	v.Panel.SetText(req.Text)
	writeJSON(w, http.StatusOK, stateResponse(v.Panel.State()))
}

// PUT /api/v1/panel/voice
func (ph *PanelHandler) SelectVoice(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	v := ph.view(w, r)
	if err := v.Panel.SelectVoice(req.Name); err != nil {
		if errors.Is(err, panel.ErrUnknownVoice) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to select voice: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse(v.Panel.State()))
}

// PUT /api/v1/panel/rate
func (ph *PanelHandler) SetRate(w http.ResponseWriter, r *http.Request) {
	ph.setValue(w, r, func(p *panel.Panel, value float64) float64 {
		return p.SetRate(value)
	})
}

// PUT /api/v1/panel/pitch
func (ph *PanelHandler) SetPitch(w http.ResponseWriter, r *http.Request) {
	ph.setValue(w, r, func(p *panel.Panel, value float64) float64 {
		return p.SetPitch(value)
	})
}

func (ph *PanelHandler) setValue(w http.ResponseWriter, r *http.Request, set func(*panel.Panel, float64) float64) {
	var req valueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	v := ph.view(w, r)
	set(v.Panel, *req.Value)
	writeJSON(w, http.StatusOK, stateResponse(v.Panel.State()))
}

// POST /api/v1/panel/voices/load - One voice loading attempt
func (ph *PanelHandler) LoadVoices(w http.ResponseWriter, r *http.Request) {
	v := ph.view(w, r)
	loaded := v.Panel.AttemptLoadVoices()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"loaded": loaded,
		"state":  stateResponse(v.Panel.State()),
	})
}

// POST /api/v1/panel/speak - Speak the current text
func (ph *PanelHandler) Speak(w http.ResponseWriter, r *http.Request) {
	v := ph.view(w, r)
	if !v.Allow() {
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	// the retry and playback outlive the request
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := v.Panel.Speak(ctx)
	if err != nil {
		http.Error(w, "Failed to speak: "+err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": result,
		"state":  stateResponse(v.Panel.State()),
	})
}

func stateResponse(s panel.State) PanelResponse {
	return PanelResponse{State: s, CanSpeak: s.CanSpeak()}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.New().WithError(err).Warn("failed to encode response")
	}
}

// RegisterRoutes mounts the panel API on r and returns the handler so the
// caller can serve the page from it.
func RegisterRoutes(r *mux.Router, panels *panel.Manager, viewID ViewIDFunc, backend string) *PanelHandler {
	ph := NewPanelHandler(panels, viewID, backend)

	r.HandleFunc("/panel", ph.GetPanel).Methods("GET")
	r.HandleFunc("/panel/text", ph.SetText).Methods("PUT")
	r.HandleFunc("/panel/voice", ph.SelectVoice).Methods("PUT")
	r.HandleFunc("/panel/rate", ph.SetRate).Methods("PUT")
	r.HandleFunc("/panel/pitch", ph.SetPitch).Methods("PUT")
	r.HandleFunc("/panel/voices/load", ph.LoadVoices).Methods("POST")
	r.HandleFunc("/panel/speak", ph.Speak).Methods("POST")

	return ph
}
