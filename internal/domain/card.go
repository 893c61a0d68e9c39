package domain

import (
	"fmt"
	"time"
)

const (
	// DefaultEaseFactor is the ease given to new cards and reported as the
	// average ease of an empty collection.
	DefaultEaseFactor = 2.5
	// MinEaseFactor is the floor the ease factor is clamped to after every review.
	MinEaseFactor = 1.3
	// MaxListLimit bounds how many cards a single listing may return.
	MaxListLimit = 200
)

// Phase is the learning stage of a card, derived from its repetition count.
type Phase int

const (
	PhaseNew      Phase = iota // never successfully reviewed since the last reset
	PhaseLearning              // one or two consecutive successful reviews
	PhaseReview                // three or more
)

func (p Phase) String() string {
	switch p {
	case PhaseNew:
		return "new"
	case PhaseLearning:
		return "learning"
	case PhaseReview:
		return "review"
	}
	return "unknown"
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name written by MarshalText.
func (p *Phase) UnmarshalText(b []byte) error {
	for _, candidate := range []Phase{PhaseNew, PhaseLearning, PhaseReview} {
		if candidate.String() == string(b) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("%w: unknown phase %q", ErrInvalidInput, b)
}

// Schedule is the part of a card that the SM-2 grader reads and rewrites.
type Schedule struct {
	EaseFactor  float64
	Interval    int // days
	Repetitions int
	DueDate     time.Time
}

// NewSchedule returns the scheduling state of a freshly created card,
// which is due immediately.
func NewSchedule(createdAt time.Time) Schedule {
	return Schedule{
		EaseFactor: DefaultEaseFactor,
		DueDate:    createdAt,
	}
}

// Flashcard is a user-owned front/back pair together with its scheduling state.
type Flashcard struct {
	ID          int64  `json:"id"`
	OwnerID     string `json:"ownerId"`
	Front       string `json:"front"`
	Back        string `json:"back"`
	DeckName    string `json:"deckName,omitempty"`
	SourceRef   string `json:"sourceRef,omitempty"`
	ContentHash string `json:"-"`

	EaseFactor     float64    `json:"easeFactor"`
	Interval       int        `json:"interval"`
	Repetitions    int        `json:"repetitions"`
	DueDate        time.Time  `json:"dueDate"`
	LastReviewedAt *time.Time `json:"lastReviewedAt,omitempty"`

	// Version is bumped on every write and guards reviews against lost updates.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Schedule returns the card's current scheduling state.
func (c *Flashcard) Schedule() Schedule {
	return Schedule{
		EaseFactor:  c.EaseFactor,
		Interval:    c.Interval,
		Repetitions: c.Repetitions,
		DueDate:     c.DueDate,
	}
}

// Phase reports where the card sits in the new/learning/review progression.
func (c *Flashcard) Phase() Phase {
	switch {
	case c.Repetitions == 0:
		return PhaseNew
	case c.Repetitions <= 2:
		return PhaseLearning
	default:
		return PhaseReview
	}
}

// IsDue reports whether the card may be shown at time now.
func (c *Flashcard) IsDue(now time.Time) bool {
	return !c.DueDate.After(now)
}

// CardInput carries the user-editable content of a card.
type CardInput struct {
	Front     string `json:"front" validate:"required,max=4000"`
	Back      string `json:"back" validate:"required,max=4000"`
	DeckName  string `json:"deckName,omitempty" validate:"max=200"`
	SourceRef string `json:"sourceRef,omitempty" validate:"max=500"`
}

// Stats summarises one owner's collection.
type Stats struct {
	TotalCards    int     `json:"totalCards"`
	DueCount      int     `json:"dueCount"`
	ReviewedCount int     `json:"reviewedCount"`
	AvgEaseFactor float64 `json:"avgEaseFactor"`
}

// Deck groups an owner's cards by deck name.
type Deck struct {
	Name      string `json:"name"`
	CardCount int    `json:"cardCount"`
	DueCount  int    `json:"dueCount"`
}
