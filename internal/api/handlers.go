package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/FocuswithJustin/JuniperBot/core/chunk"
	"github.com/FocuswithJustin/JuniperBot/core/corpus"
	"github.com/FocuswithJustin/JuniperBot/core/errors"
	"github.com/FocuswithJustin/JuniperBot/core/passage"
	"github.com/FocuswithJustin/JuniperBot/core/render"
	"github.com/FocuswithJustin/JuniperBot/core/session"
	"github.com/FocuswithJustin/JuniperBot/internal/logging"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError carries a stable code and a message safe to show end users.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// PassageRequest is the body of POST /passages.
type PassageRequest struct {
	Reference   string `json:"reference"`
	Translation string `json:"translation,omitempty"`
	Actor       string `json:"actor,omitempty"`
	Mode        string `json:"mode,omitempty"`     // embed (default) or plain
	Delivery    string `json:"delivery,omitempty"` // interactive (default), chunked or single
}

// PassageResponse is a resolved passage. Text is set for single results,
// Chunks for chunked results and Page for interactive results.
type PassageResponse struct {
	Kind        string        `json:"kind"`
	Reference   string        `json:"reference"`
	Translation string        `json:"translation"`
	Mode        string        `json:"mode"`
	Title       string        `json:"title"`
	Footer      string        `json:"footer,omitempty"`
	Text        string        `json:"text,omitempty"`
	Chunks      []chunk.Chunk `json:"chunks,omitempty"`
	Page        *session.Page `json:"page,omitempty"`
}

// NavigateRequest is the body of POST /sessions/{id}/{action} and
// DELETE /sessions/{id}.
type NavigateRequest struct {
	Actor string `json:"actor"`
}

// CloseResponse confirms DELETE /sessions/{id}.
type CloseResponse struct {
	SessionID string `json:"session_id"`
	Closed    bool   `json:"closed"`
}

// InfoResponse describes the service at GET /.
type InfoResponse struct {
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	Book      string            `json:"book"`
	Endpoints []string          `json:"endpoints"`
	Commands  []passage.Command `json:"commands"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Uptime       string `json:"uptime"`
	Translations int    `json:"translations"`
	Fingerprint  string `json:"fingerprint"`
}

// TranslationsResponse lists the corpus contents.
type TranslationsResponse struct {
	Default      string         `json:"default"`
	Translations []corpus.Stats `json:"translations"`
}

var endpoints = []string{
	"GET /",
	"GET /health",
	"GET /ping",
	"GET /commands",
	"GET /translations",
	"GET /metrics",
	"POST /passages",
	"POST /sessions/{id}/next",
	"POST /sessions/{id}/previous",
	"DELETE /sessions/{id}",
	"GET /ws",
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
		return
	}
	book := s.svc.Config().Book
	respond(w, http.StatusOK, InfoResponse{
		Name:      "JuniperBot",
		Version:   s.cfg.Version,
		Book:      book,
		Endpoints: endpoints,
		Commands:  passage.Commands(book),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	c := s.svc.Corpus()
	respond(w, http.StatusOK, HealthInfo{
		Status:       "healthy",
		Version:      s.cfg.Version,
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		Translations: len(c.Translations()),
		Fingerprint:  c.Fingerprint(),
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{"message": passage.Pong})
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	cmds := passage.Commands(s.svc.Config().Book)
	respondList(w, cmds, len(cmds))
}

func (s *Server) handleTranslations(w http.ResponseWriter, r *http.Request) {
	stats := s.svc.Corpus().Stats()
	respondList(w, TranslationsResponse{
		Default:      s.svc.Config().DefaultTranslation,
		Translations: stats,
	}, len(stats))
}

func (s *Server) handlePassages(w http.ResponseWriter, r *http.Request) {
	var body PassageRequest
	if !decodeBody(w, r, &body) {
		return
	}

	req, err := buildRequest(body, actorFrom(r, body.Actor))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	res, err := s.svc.Resolve(r.Context(), req)
	if err != nil {
		respondKindError(w, r, err)
		return
	}
	respond(w, http.StatusOK, newPassageResponse(res))
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	action, err := session.ParseAction(r.PathValue("action"))
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Unknown session action")
		return
	}
	var body NavigateRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &body) {
		return
	}

	page, err := s.svc.Navigate(r.Context(), r.PathValue("id"), actorFrom(r, body.Actor), action)
	if err != nil {
		respondKindError(w, r, err)
		return
	}
	respond(w, http.StatusOK, page)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	var body NavigateRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &body) {
		return
	}

	id := r.PathValue("id")
	if err := s.svc.Close(r.Context(), id, actorFrom(r, body.Actor)); err != nil {
		respondKindError(w, r, err)
		return
	}
	respond(w, http.StatusOK, CloseResponse{SessionID: id, Closed: true})
}

// buildRequest validates the wire fields of a lookup.
func buildRequest(body PassageRequest, actor string) (passage.Request, error) {
	mode, err := render.ParseMode(body.Mode)
	if err != nil {
		return passage.Request{}, err
	}
	delivery, err := passage.ParseDelivery(body.Delivery)
	if err != nil {
		return passage.Request{}, err
	}
	return passage.Request{
		Reference:   body.Reference,
		Translation: body.Translation,
		Actor:       actor,
		Mode:        mode,
		Delivery:    delivery,
	}, nil
}

func newPassageResponse(res passage.Result) PassageResponse {
	resp := PassageResponse{
		Kind:        res.Kind.String(),
		Reference:   res.Reference.String(),
		Translation: res.Translation,
		Mode:        res.Mode.String(),
		Title:       res.Output.Title,
		Footer:      res.Output.Footer,
	}
	switch res.Kind {
	case passage.ResultSingle:
		resp.Text = res.Text()
	case passage.ResultChunks:
		resp.Chunks = res.Chunks
	case passage.ResultInteractive:
		resp.Page = res.Page
	}
	return resp
}

// actorFrom prefers the explicit body field over the actor header.
func actorFrom(r *http.Request, explicit string) string {
	if a := strings.TrimSpace(explicit); a != "" {
		return a
	}
	return strings.TrimSpace(r.Header.Get(logging.ActorHeader))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return false
	}
	return true
}

// statusForKind maps the error taxonomy onto HTTP.
func statusForKind(kind errors.Kind) int {
	switch kind {
	case errors.KindMalformedReference, errors.KindInvertedRange:
		return http.StatusBadRequest
	case errors.KindTranslationNotFound, errors.KindChapterNotFound,
		errors.KindVerseNotFound, errors.KindSessionNotFound:
		return http.StatusNotFound
	case errors.KindPassageTooLong:
		return http.StatusUnprocessableEntity
	case errors.KindUnauthorized:
		return http.StatusForbidden
	case errors.KindSessionExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// respondKindError writes a taxonomy error. Only the fixed user message
// leaves the process; internal failures are logged.
func respondKindError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errors.KindOf(err)
	if kind == errors.KindInternal {
		logging.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	respondError(w, statusForKind(kind), kind.Code(), kind.UserMessage())
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondList(w http.ResponseWriter, data any, total int) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Total: total, Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func writeJSON(w http.ResponseWriter, status int, resp APIResponse) {
	if resp.Meta != nil {
		resp.Meta.RequestID = w.Header().Get("X-Request-ID")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Error("failed to encode response", "error", err)
	}
}
