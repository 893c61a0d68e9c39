// Package web exposes the flashcard scheduler as a JSON HTTP API.
//
// Authentication happens upstream; the caller's user id arrives in the
// X-User-ID header and scopes every request.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/scheduler"
)

// UserHeader carries the authenticated user id.
const UserHeader = "X-User-ID"

// Scheduler is the set of flashcard operations the API serves.
type Scheduler interface {
	ListDue(ctx context.Context, ownerID string, limit int) ([]domain.Flashcard, error)
	List(ctx context.Context, ownerID string, filter domain.Filter, deck string, limit int) ([]domain.Flashcard, error)
	Get(ctx context.Context, ownerID string, id int64) (*domain.Flashcard, error)
	Review(ctx context.Context, ownerID string, id int64, q domain.Quality) (*scheduler.ReviewResult, error)
	Create(ctx context.Context, ownerID string, in domain.CardInput) (*domain.Flashcard, error)
	Update(ctx context.Context, ownerID string, id int64, in domain.CardInput) (*domain.Flashcard, error)
	Delete(ctx context.Context, ownerID string, id int64) error
	Stats(ctx context.Context, ownerID string) (domain.Stats, error)
	Decks(ctx context.Context, ownerID string) ([]domain.Deck, error)
}

var _ Scheduler = (*scheduler.Service)(nil)

// Server holds the dependencies for the HTTP server.
type Server struct {
	cards        Scheduler
	router       *http.ServeMux
	defaultLimit int
}

// NewServer creates and configures a new server. defaultLimit applies to
// listings that name no limit.
func NewServer(cards Scheduler, defaultLimit int) *Server {
	if defaultLimit < 1 || defaultLimit > domain.MaxListLimit {
		defaultLimit = 20
	}
	s := &Server{
		cards:        cards,
		router:       http.NewServeMux(),
		defaultLimit: defaultLimit,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	s.router.Handle("GET /flashcards/due", s.withUser(s.handleListDue))
	s.router.Handle("GET /flashcards/stats", s.withUser(s.handleStats))
	s.router.Handle("GET /flashcards/decks", s.withUser(s.handleDecks))
	s.router.Handle("GET /flashcards", s.withUser(s.handleList))
	s.router.Handle("POST /flashcards", s.withUser(s.handleCreate))
	s.router.Handle("GET /flashcards/{id}", s.withUser(s.handleGet))
	s.router.Handle("PUT /flashcards/{id}", s.withUser(s.handleUpdate))
	s.router.Handle("DELETE /flashcards/{id}", s.withUser(s.handleDelete))
	s.router.Handle("POST /flashcards/{id}/review", s.withUser(s.handleReview))
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

// withUser rejects requests that carry no user id.
func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserHeader)
		if userID == "" {
			ErrorResponse(w, http.StatusUnauthorized, UserHeader+" header required")
			return
		}
		next(w, r, userID)
	})
}

// limitParam reads ?limit=, falling back to def. Range checks are left to the scheduler.
func limitParam(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	return n, nil
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid flashcard ID")
	}
	return id, nil
}

// handleListDue returns the cards due for review, most overdue first.
func (s *Server) handleListDue(w http.ResponseWriter, r *http.Request, userID string) {
	limit, err := limitParam(r, s.defaultLimit)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	cards, err := s.cards.ListDue(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, cards)
}

// handleList browses cards by filter and deck.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request, userID string) {
	q := r.URL.Query()
	filter, err := domain.ParseFilter(q.Get("filter"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := limitParam(r, 50)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	cards, err := s.cards.List(r.Context(), userID, filter, q.Get("deck"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, cards)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, userID string) {
	st, err := s.cards.Stats(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, st)
}

func (s *Server) handleDecks(w http.ResponseWriter, r *http.Request, userID string) {
	decks, err := s.cards.Decks(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, decks)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, userID string) {
	var in domain.CardInput
	if err := ParseJSONBody(r, &in); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	card, err := s.cards.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusCreated, card)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, userID string) {
	id, err := idParam(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	card, err := s.cards.Get(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, card)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, userID string) {
	id, err := idParam(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	var in domain.CardInput
	if err := ParseJSONBody(r, &in); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	card, err := s.cards.Update(r.Context(), userID, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, card)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, userID string) {
	id, err := idParam(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.cards.Delete(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reviewRequest struct {
	Quality *int `json:"quality"`
}

// handleReview grades one card and returns its new schedule.
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request, userID string) {
	id, err := idParam(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	var req reviewRequest
	if err := ParseJSONBody(r, &req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Quality == nil {
		ErrorResponse(w, http.StatusBadRequest, "quality is required")
		return
	}
	res, err := s.cards.Review(r.Context(), userID, id, domain.Quality(*req.Quality))
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, res)
}

// writeError maps scheduler errors onto status codes. Storage failures are
// logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		ErrorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		ErrorResponse(w, http.StatusNotFound, "flashcard not found")
	case errors.Is(err, domain.ErrConflict):
		ErrorResponse(w, http.StatusConflict, "flashcard was changed by another request, reload and try again")
	default:
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestID(r.Context()),
			"error", err,
		)
		ErrorResponse(w, http.StatusInternalServerError, "Internal Server Error")
	}
}
