package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gonogo-host/internal/protocol"
	"gonogo-host/internal/sim"
	"gonogo-host/internal/stream"
)

// Handler exposes session HTTP endpoints using go-chi.
type Handler struct {
	manager *Manager
	params  protocol.Params
	log     *slog.Logger
}

// NewHandler returns a Handler creating sessions from the given parameter
// set.
func NewHandler(manager *Manager, params protocol.Params, log *slog.Logger) *Handler {
	return &Handler{manager: manager, params: params, log: log}
}

// RegisterRoutes mounts the session API.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Route("/{session_id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DeleteSession)
			r.Post("/start", h.StartSession)
			r.Post("/pause", h.PauseSession)
			r.Post("/resume", h.ResumeSession)
			r.Post("/stop", h.StopSession)
			r.Post("/results", h.PostResult)
			r.Post("/packets", h.PostPacket)
			r.Get("/performance", h.GetPerformance)
			r.Get("/stream", h.GetStream)
			r.Get("/board", h.GetBoard)
			r.Get("/monitor", h.Monitor)
		})
	})
}

type createRequest struct {
	Controller string `json:"controller"`
}

type createResponse struct {
	ID string `json:"id"`
}

// CreateSession handles POST /sessions.
// Body (optional): { "controller": "log" | "sim" }.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.log.Debug("invalid create body", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	var ctrl Controller
	var bind func(*Engine)
	switch req.Controller {
	case "", "log":
		ctrl = NewLogController(h.log)
	case "sim":
		sc := sim.New(h.log)
		ctrl = sc
		bind = func(e *Engine) { sc.Bind(e) }
	default:
		h.log.Debug("unknown controller kind", slog.String("controller", req.Controller))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	eng, err := h.manager.Create(h.params, ctrl)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if bind != nil {
		bind(eng)
	}

	writeJSON(w, http.StatusCreated, createResponse{ID: eng.ID()})
}

// GetSession handles GET /sessions/{session_id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := eng.Snapshot()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DeleteSession handles DELETE /sessions/{session_id}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	if err := h.manager.Remove(id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartSession handles POST /sessions/{session_id}/start.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, (*Engine).Start)
}

// PauseSession handles POST /sessions/{session_id}/pause.
func (h *Handler) PauseSession(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, (*Engine).Pause)
}

// ResumeSession handles POST /sessions/{session_id}/resume.
func (h *Handler) ResumeSession(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, (*Engine).Resume)
}

// StopSession handles POST /sessions/{session_id}/stop.
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, (*Engine).Stop)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(*Engine) error) {
	eng, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := op(eng); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PostResult handles POST /sessions/{session_id}/results.
// Body: the controller's trial result record.
func (h *Handler) PostResult(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.session(w, r)
	if !ok {
		return
	}
	var res protocol.Result
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		h.log.Debug("invalid result body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := eng.HandleResult(res); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// PostPacket handles POST /sessions/{session_id}/packets.
// Body: one stream packet record.
func (h *Handler) PostPacket(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.session(w, r)
	if !ok {
		return
	}
	var p stream.Packet
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.log.Debug("invalid packet body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := eng.HandlePacket(p); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// GetPerformance handles GET /sessions/{session_id}/performance.
func (h *Handler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := eng.Performance()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetStream handles GET /sessions/{session_id}/stream.
func (h *Handler) GetStream(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := eng.Stream()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetBoard handles GET /sessions/{session_id}/board: a plain-text status
// board for terminal monitoring.
func (h *Handler) GetBoard(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := eng.Snapshot()
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(RenderBoard(snap)))
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Engine, bool) {
	id := chi.URLParam(r, "session_id")
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}
	eng, err := h.manager.Get(id)
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return eng, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, ErrSessionStopped),
		errors.Is(err, ErrSessionRunning),
		errors.Is(err, ErrSessionNotRunning):
		w.WriteHeader(http.StatusConflict)
	case errors.Is(err, ErrInvalidOutcome):
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, protocol.ErrEmptyCatalog):
		w.WriteHeader(http.StatusUnprocessableEntity)
	default:
		h.log.Error("session request failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("encode response", "error", err)
	}
}
