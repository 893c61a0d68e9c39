// Package scheduler selects due flashcards, applies reviews and summarises an
// owner's collection on top of a CardStore.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/knol"
	"github.com/conorfennell/flashdeck/internal/sm2"
	"github.com/conorfennell/flashdeck/internal/storage"
)

// CardStore is the persistence the scheduler needs. *storage.DB implements it.
type CardStore interface {
	InsertFlashcard(ctx context.Context, c *domain.Flashcard) error
	GetFlashcard(ctx context.Context, ownerID string, id int64) (*domain.Flashcard, error)
	ListFlashcards(ctx context.Context, ownerID string, q storage.ListQuery) ([]domain.Flashcard, error)
	UpdateSchedule(ctx context.Context, ownerID string, id, expectedVersion int64, s domain.Schedule, reviewedAt time.Time) error
	UpdateContent(ctx context.Context, ownerID string, id int64, in domain.CardInput, hash string, now time.Time) error
	DeleteFlashcard(ctx context.Context, ownerID string, id int64) error
	Stats(ctx context.Context, ownerID string, now time.Time) (domain.Stats, error)
	ListDecks(ctx context.Context, ownerID string, now time.Time) ([]domain.Deck, error)
}

var _ CardStore = (*storage.DB)(nil)

// ReviewResult is what a caller learns after grading a card.
type ReviewResult struct {
	FlashcardID   int64        `json:"flashcardId"`
	NewDueDate    time.Time    `json:"newDueDate"`
	NewInterval   int          `json:"newInterval"`
	NewEaseFactor float64      `json:"newEaseFactor"`
	Repetitions   int          `json:"repetitions"`
	Phase         domain.Phase `json:"phase"`
}

// Service is the flashcard scheduler. It holds no per-card state; every call
// is a self-contained read or read-grade-write against the store.
type Service struct {
	store    CardStore
	now      func() time.Time
	validate *validator.Validate
	log      *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger used for review and mutation events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// New creates a scheduler over store.
func New(store CardStore, opts ...Option) *Service {
	s := &Service{
		store:    store,
		now:      time.Now,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	// Millisecond precision matches what the store persists.
	return s.now().UTC().Truncate(time.Millisecond)
}

func checkLimit(limit int) error {
	if limit < 1 || limit > domain.MaxListLimit {
		return fmt.Errorf("%w: limit %d outside [1,%d]", domain.ErrInvalidInput, limit, domain.MaxListLimit)
	}
	return nil
}

func checkOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("%w: owner id is required", domain.ErrInvalidInput)
	}
	return nil
}

// ListDue returns up to limit of the owner's cards whose due date has passed,
// most overdue first. An owner without cards gets an empty slice.
func (s *Service) ListDue(ctx context.Context, ownerID string, limit int) ([]domain.Flashcard, error) {
	return s.List(ctx, ownerID, domain.FilterDue, "", limit)
}

// List returns up to limit of the owner's cards selected by filter, optionally
// restricted to one deck.
func (s *Service) List(ctx context.Context, ownerID string, filter domain.Filter, deck string, limit int) ([]domain.Flashcard, error) {
	if err := checkOwner(ownerID); err != nil {
		return nil, err
	}
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	return s.store.ListFlashcards(ctx, ownerID, storage.ListQuery{
		Filter: filter,
		Deck:   deck,
		Now:    s.clock(),
		Limit:  limit,
	})
}

// Get returns one of the owner's cards.
func (s *Service) Get(ctx context.Context, ownerID string, id int64) (*domain.Flashcard, error) {
	if err := checkOwner(ownerID); err != nil {
		return nil, err
	}
	return s.store.GetFlashcard(ctx, ownerID, id)
}

// Review grades one card and persists the new schedule in a single
// version-checked write. Nothing is retried: a storage failure or a concurrent
// review of the same card is returned to the caller with the card unchanged.
func (s *Service) Review(ctx context.Context, ownerID string, id int64, q domain.Quality) (*ReviewResult, error) {
	if err := checkOwner(ownerID); err != nil {
		return nil, err
	}
	if !q.IsValid() {
		return nil, fmt.Errorf("%w: quality %d outside [0,5]", domain.ErrInvalidInput, int(q))
	}

	card, err := s.store.GetFlashcard(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	next, err := sm2.Grade(card.Schedule(), q, now)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateSchedule(ctx, ownerID, id, card.Version, next, now); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.log.WarnContext(ctx, "review lost to a concurrent update", "owner", ownerID, "flashcard_id", id)
		}
		return nil, err
	}

	card.EaseFactor, card.Interval, card.Repetitions, card.DueDate = next.EaseFactor, next.Interval, next.Repetitions, next.DueDate
	s.log.InfoContext(ctx, "flashcard reviewed",
		"owner", ownerID,
		"flashcard_id", id,
		"quality", q.String(),
		"interval", next.Interval,
		"ease", next.EaseFactor,
		"phase", card.Phase().String(),
	)

	return &ReviewResult{
		FlashcardID:   id,
		NewDueDate:    next.DueDate,
		NewInterval:   next.Interval,
		NewEaseFactor: next.EaseFactor,
		Repetitions:   next.Repetitions,
		Phase:         card.Phase(),
	}, nil
}

func (s *Service) normalize(in domain.CardInput) (domain.CardInput, error) {
	in.Front = strings.TrimSpace(in.Front)
	in.Back = strings.TrimSpace(in.Back)
	in.DeckName = strings.TrimSpace(in.DeckName)
	in.SourceRef = strings.TrimSpace(in.SourceRef)
	if err := s.validate.Struct(in); err != nil {
		return in, fmt.Errorf("%w: %s", domain.ErrInvalidInput, describeValidation(err))
	}
	return in, nil
}

// describeValidation turns validator errors into a short field list.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}

// Create stores a new card with default scheduling state; it is due at once.
func (s *Service) Create(ctx context.Context, ownerID string, in domain.CardInput) (*domain.Flashcard, error) {
	if err := checkOwner(ownerID); err != nil {
		return nil, err
	}
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	sched := domain.NewSchedule(now)
	card := &domain.Flashcard{
		OwnerID:     ownerID,
		Front:       in.Front,
		Back:        in.Back,
		DeckName:    in.DeckName,
		SourceRef:   in.SourceRef,
		ContentHash: knol.Hash(in),
		EaseFactor:  sched.EaseFactor,
		Interval:    sched.Interval,
		Repetitions: sched.Repetitions,
		DueDate:     sched.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertFlashcard(ctx, card); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "flashcard created", "owner", ownerID, "flashcard_id", card.ID, "deck", card.DeckName)
	return card, nil
}

// Update replaces a card's content. Its schedule is left as is.
func (s *Service) Update(ctx context.Context, ownerID string, id int64, in domain.CardInput) (*domain.Flashcard, error) {
	if err := checkOwner(ownerID); err != nil {
		return nil, err
	}
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateContent(ctx, ownerID, id, in, knol.Hash(in), s.clock()); err != nil {
		return nil, err
	}
	return s.store.GetFlashcard(ctx, ownerID, id)
}

// Delete permanently removes one of the owner's cards.
func (s *Service) Delete(ctx context.Context, ownerID string, id int64) error {
	if err := checkOwner(ownerID); err != nil {
		return err
	}
	if err := s.store.DeleteFlashcard(ctx, ownerID, id); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "flashcard deleted", "owner", ownerID, "flashcard_id", id)
	return nil
}

// Stats summarises the owner's collection. An empty collection reports the
// default ease as its average.
func (s *Service) Stats(ctx context.Context, ownerID string) (domain.Stats, error) {
	if err := checkOwner(ownerID); err != nil {
		return domain.Stats{}, err
	}
	st, err := s.store.Stats(ctx, ownerID, s.clock())
	if err != nil {
		return domain.Stats{}, err
	}
	if st.TotalCards == 0 {
		st.AvgEaseFactor = domain.DefaultEaseFactor
	}
	return st, nil
}

// Decks lists the owner's deck names with card and due counts.
func (s *Service) Decks(ctx context.Context, ownerID string) ([]domain.Deck, error) {
	if err := checkOwner(ownerID); err != nil {
		return nil, err
	}
	return s.store.ListDecks(ctx, ownerID, s.clock())
}
