// Package control exposes the pad player over a small JSON HTTP API.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/worshippad/padd/internal/catalog"
	"github.com/worshippad/padd/internal/pad"
)

// Player is the command surface of the loop player.
type Player interface {
	Play(ctx context.Context) error
	Pause()
	SetVolume(v float64)
	SelectTrack(ctx context.Context, key string) error
	Status() pad.Status
}

// Handler routes /api requests to a Player.
type Handler struct {
	player Player
	mux    *http.ServeMux
}

// NewHandler creates the control API for p.
func NewHandler(p Player) *Handler {
	h := &Handler{player: p, mux: http.NewServeMux()}
	h.mux.HandleFunc("/api/status", h.status)
	h.mux.HandleFunc("/api/keys", h.keys)
	h.mux.HandleFunc("/api/play", post(h.play))
	h.mux.HandleFunc("/api/pause", post(h.pause))
	h.mux.HandleFunc("/api/volume", post(h.volume))
	h.mux.HandleFunc("/api/key", post(h.key))
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	h.mux.ServeHTTP(w, r)
}

// post rejects anything but POST.
func post(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		fn(w, r)
	}
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statusJSON(h.player.Status()))
}

func (h *Handler) keys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, catalog.Tracks)
}

func (h *Handler) play(w http.ResponseWriter, r *http.Request) {
	if err := h.player.Play(r.Context()); err != nil {
		commandError(w, err)
		return
	}
	writeJSON(w, statusJSON(h.player.Status()))
}

func (h *Handler) pause(w http.ResponseWriter, r *http.Request) {
	h.player.Pause()
	writeJSON(w, statusJSON(h.player.Status()))
}

func (h *Handler) volume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *float64 `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Volume == nil {
		http.Error(w, "invalid volume", http.StatusBadRequest)
		return
	}
	if v := *req.Volume; v < 0 || v > 1 {
		http.Error(w, "volume must be 0-1", http.StatusBadRequest)
		return
	}
	h.player.SetVolume(*req.Volume)
	writeJSON(w, statusJSON(h.player.Status()))
}

func (h *Handler) key(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		http.Error(w, "invalid key", http.StatusBadRequest)
		return
	}
	if err := h.player.SelectTrack(r.Context(), req.Key); err != nil {
		commandError(w, err)
		return
	}
	writeJSON(w, statusJSON(h.player.Status()))
}

func commandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pad.ErrUnknownKey):
		http.Error(w, "unknown key", http.StatusBadRequest)
	case errors.Is(err, pad.ErrClosed):
		http.Error(w, "player shut down", http.StatusServiceUnavailable)
	default:
		log.Printf("Control: %v", err)
		http.Error(w, "playback failed", http.StatusBadGateway)
	}
}

func statusJSON(s pad.Status) map[string]any {
	return map[string]any{
		"playing":     s.Playing,
		"state":       s.State.String(),
		"key":         s.Track.Key,
		"label":       s.Track.Label,
		"volume":      s.Volume,
		"position":    s.Position.Seconds(),
		"duration":    s.Duration.Seconds(),
		"loops":       s.Loops,
		"key_changes": s.KeyChanges,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
