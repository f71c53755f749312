package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"whiteboard/internal/domain"
	"whiteboard/internal/service"
	"whiteboard/internal/transport"
)

const maxBodyBytes = 16 << 20

// Server exposes open boards over HTTP and bridges websocket participants
// onto the shared hub.
type Server struct {
	boards *service.Registry
	ws     http.Handler
}

func New(boards *service.Registry, hub *transport.Hub) *Server {
	return &Server{boards: boards, ws: transport.NewHandler(hub)}
}

// Router builds the full handler with the standard middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	s.RegisterRoutes(r)
	return r
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	// Websockets are long lived, so they stay outside the request timeout.
	r.Get("/boards/{id}/ws", s.ws.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/boards", s.listBoards)
		r.Route("/boards/{id}", func(r chi.Router) {
			r.Get("/snapshot", s.getSnapshot)
			r.Put("/snapshot", s.putSnapshot)
			r.Get("/export", s.export)
			r.Post("/operations", s.postOperations)
			r.Post("/sync", s.syncNow)
		})
	})
}

func (s *Server) board(w http.ResponseWriter, r *http.Request) (*service.BoardService, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, fmt.Errorf("%w: board id required", domain.ErrValidation))
		return nil, false
	}
	b, err := s.boards.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return b, true
}

func (s *Server) listBoards(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"boards": s.boards.Sessions()})
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	b, ok := s.board(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b.Engine.State())
}

// putSnapshot replaces the board and saves it right away.
func (s *Server) putSnapshot(w http.ResponseWriter, r *http.Request) {
	b, ok := s.board(w, r)
	if !ok {
		return
	}
	var state domain.BoardState
	if err := decodeBody(w, r, &state); err != nil {
		writeError(w, err)
		return
	}
	if state.SessionID != "" && state.SessionID != b.SessionID() {
		writeError(w, fmt.Errorf("%w: snapshot is for board %s", domain.ErrValidation, state.SessionID))
		return
	}
	if len(state.Layers) == 0 {
		writeError(w, fmt.Errorf("%w: snapshot has no layers", domain.ErrValidation))
		return
	}
	state.SessionID = b.SessionID()
	b.Engine.LoadState(&state)
	if err := b.Engine.SaveSession(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var contentTypes = map[domain.ExportFormat]string{
	domain.ExportPNG:  "image/png",
	domain.ExportJPG:  "image/jpeg",
	domain.ExportJSON: "application/json",
}

// export renders the board. Query: format, scale, quality, background,
// grid, viewport.
func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	b, ok := s.board(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	format := domain.ExportFormat(q.Get("format"))
	if format == "" {
		format = domain.ExportPNG
	}
	opts := domain.ExportOptions{
		Background:  q.Get("background"),
		IncludeGrid: q.Get("grid") == "true",
		Viewport:    q.Get("viewport") == "true",
	}
	if v := q.Get("scale"); v != "" {
		scale, err := strconv.ParseFloat(v, 64)
		if err != nil || scale <= 0 || scale > 8 {
			writeError(w, fmt.Errorf("%w: scale %q", domain.ErrValidation, v))
			return
		}
		opts.Scale = scale
	}
	if v := q.Get("quality"); v != "" {
		quality, err := strconv.Atoi(v)
		if err != nil || quality < 1 || quality > 100 {
			writeError(w, fmt.Errorf("%w: quality %q", domain.ErrValidation, v))
			return
		}
		opts.Quality = quality
	}

	out, err := b.Engine.Export(format, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", b.SessionID()+"."+string(format)))
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

type operationsRequest struct {
	Origin     string                  `json:"origin"`
	Operations []domain.BoardOperation `json:"operations"`
}

type operationsResponse struct {
	Applied int      `json:"applied"`
	Errors  []string `json:"errors,omitempty"`
}

// postOperations applies a batch from a participant that is not on the
// websocket. Invalid operations are reported but do not stop the batch.
func (s *Server) postOperations(w http.ResponseWriter, r *http.Request) {
	b, ok := s.board(w, r)
	if !ok {
		return
	}
	var req operationsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Origin == "" {
		req.Origin = "http:" + middleware.GetReqID(r.Context())
	}
	applied, err := b.ApplyOperations(req.Origin, req.Operations)
	resp := operationsResponse{Applied: applied}
	status := http.StatusOK
	if err != nil {
		resp.Errors = unwrapJoined(err)
		status = http.StatusMultiStatus
		if applied == 0 {
			status = http.StatusBadRequest
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) syncNow(w http.ResponseWriter, r *http.Request) {
	b, ok := s.board(w, r)
	if !ok {
		return
	}
	res, ran := b.SyncNow(r.Context())
	if !ran {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "no remote store or sync already running"})
		return
	}
	body := map[string]any{"success": res.Success, "synced": res.Synced, "failed": res.Failed}
	if len(res.Errors) > 0 {
		body["error"] = errors.Join(res.Errors...).Error()
	}
	writeJSON(w, http.StatusOK, body)
}

// ── helpers ────────────────────────────────────────────────

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %w", domain.ErrValidation, err)
	}
	return nil
}

func unwrapJoined(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, domain.ErrCapacity):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrDestroyed):
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[SYNC] http: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
