package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/flashdeck/internal/domain"
)

var base = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "flashdeck.db"))
	if err != nil {
		t.Fatalf("Open() returned an unexpected error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertCard(t *testing.T, db *DB, owner, front string, due time.Time, reps int) *domain.Flashcard {
	t.Helper()
	c := &domain.Flashcard{
		OwnerID:     owner,
		Front:       front,
		Back:        "back of " + front,
		EaseFactor:  domain.DefaultEaseFactor,
		Repetitions: reps,
		DueDate:     due,
		CreatedAt:   base,
		UpdatedAt:   base,
	}
	if err := db.InsertFlashcard(context.Background(), c); err != nil {
		t.Fatalf("InsertFlashcard() returned an unexpected error: %v", err)
	}
	return c
}

func TestInsertAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	c := insertCard(t, db, "alice", "What is SM-2?", base, 0)
	if c.ID == 0 {
		t.Fatal("Expected InsertFlashcard to assign an ID")
	}

	got, err := db.GetFlashcard(ctx, "alice", c.ID)
	if err != nil {
		t.Fatalf("GetFlashcard() returned an unexpected error: %v", err)
	}
	if got.Front != "What is SM-2?" || got.Back != "back of What is SM-2?" {
		t.Errorf("Unexpected content: %+v", got)
	}
	if !got.DueDate.Equal(base) {
		t.Errorf("Expected due date %v, got %v", base, got.DueDate)
	}
	if got.LastReviewedAt != nil {
		t.Errorf("Expected no last review, got %v", got.LastReviewedAt)
	}
	if got.Version != 1 {
		t.Errorf("Expected version 1, got %d", got.Version)
	}

	t.Run("other owner cannot see it", func(t *testing.T) {
		_, err := db.GetFlashcard(ctx, "bob", c.ID)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := db.GetFlashcard(ctx, "alice", 9999)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestListFlashcardsFilters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := base.Add(48 * time.Hour)

	overdue := insertCard(t, db, "alice", "overdue", base, 0)
	dueNow := insertCard(t, db, "alice", "due now", now, 2)
	future := insertCard(t, db, "alice", "future", now.Add(24*time.Hour), 3)
	tie := insertCard(t, db, "alice", "tie with overdue", base, 0)
	insertCard(t, db, "bob", "someone else", base, 0)

	testCases := []struct {
		name    string
		filter  domain.Filter
		limit   int
		wantIDs []int64
	}{
		{"due orders most overdue first", domain.FilterDue, 10, []int64{overdue.ID, tie.ID, dueNow.ID}},
		{"due honours limit", domain.FilterDue, 2, []int64{overdue.ID, tie.ID}},
		{"reviewed", domain.FilterReviewed, 10, []int64{dueNow.ID, future.ID}},
		{"all", domain.FilterAll, 10, []int64{overdue.ID, tie.ID, dueNow.ID, future.ID}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cards, err := db.ListFlashcards(ctx, "alice", ListQuery{Filter: tc.filter, Now: now, Limit: tc.limit})
			if err != nil {
				t.Fatalf("ListFlashcards() returned an unexpected error: %v", err)
			}
			if len(cards) != len(tc.wantIDs) {
				t.Fatalf("Expected %d cards, got %d", len(tc.wantIDs), len(cards))
			}
			for i, want := range tc.wantIDs {
				if cards[i].ID != want {
					t.Errorf("Position %d: expected card %d, got %d", i, want, cards[i].ID)
				}
			}
		})
	}

	t.Run("unknown owner yields empty", func(t *testing.T) {
		cards, err := db.ListFlashcards(ctx, "nobody", ListQuery{Filter: domain.FilterDue, Now: now, Limit: 10})
		if err != nil {
			t.Fatalf("ListFlashcards() returned an unexpected error: %v", err)
		}
		if len(cards) != 0 {
			t.Errorf("Expected no cards, got %d", len(cards))
		}
	})
}

func TestListFlashcardsByDeck(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a := insertCard(t, db, "alice", "in deck a", base, 0)
	if err := db.UpdateContent(ctx, "alice", a.ID, domain.CardInput{Front: a.Front, Back: a.Back, DeckName: "Deck A"}, "", base); err != nil {
		t.Fatalf("UpdateContent() returned an unexpected error: %v", err)
	}
	insertCard(t, db, "alice", "no deck", base, 0)

	cards, err := db.ListFlashcards(ctx, "alice", ListQuery{Filter: domain.FilterAll, Deck: "Deck A", Now: base, Limit: 10})
	if err != nil {
		t.Fatalf("ListFlashcards() returned an unexpected error: %v", err)
	}
	if len(cards) != 1 || cards[0].DeckName != "Deck A" {
		t.Fatalf("Expected only the Deck A card, got %+v", cards)
	}

	decks, err := db.ListDecks(ctx, "alice", base)
	if err != nil {
		t.Fatalf("ListDecks() returned an unexpected error: %v", err)
	}
	if len(decks) != 2 {
		t.Fatalf("Expected 2 decks, got %+v", decks)
	}
	if decks[0].Name != "" || decks[1].Name != "Deck A" || decks[1].CardCount != 1 || decks[1].DueCount != 1 {
		t.Errorf("Unexpected decks: %+v", decks)
	}
}

func TestUpdateSchedule(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	c := insertCard(t, db, "alice", "schedule me", base, 0)

	reviewedAt := base.Add(time.Hour)
	next := domain.Schedule{EaseFactor: 2.6, Interval: 1, Repetitions: 1, DueDate: reviewedAt.AddDate(0, 0, 1)}
	if err := db.UpdateSchedule(ctx, "alice", c.ID, c.Version, next, reviewedAt); err != nil {
		t.Fatalf("UpdateSchedule() returned an unexpected error: %v", err)
	}

	got, err := db.GetFlashcard(ctx, "alice", c.ID)
	if err != nil {
		t.Fatalf("GetFlashcard() returned an unexpected error: %v", err)
	}
	if got.Schedule() != next {
		t.Errorf("Expected schedule %+v, got %+v", next, got.Schedule())
	}
	if got.LastReviewedAt == nil || !got.LastReviewedAt.Equal(reviewedAt) {
		t.Errorf("Expected last review %v, got %v", reviewedAt, got.LastReviewedAt)
	}
	if got.Version != 2 {
		t.Errorf("Expected version 2, got %d", got.Version)
	}

	t.Run("stale version conflicts", func(t *testing.T) {
		err := db.UpdateSchedule(ctx, "alice", c.ID, c.Version, domain.Schedule{EaseFactor: 1.3, Interval: 1, DueDate: base}, reviewedAt)
		if !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("Expected ErrConflict, got %v", err)
		}
		unchanged, _ := db.GetFlashcard(ctx, "alice", c.ID)
		if unchanged.Schedule() != next {
			t.Errorf("Conflicting write changed the schedule to %+v", unchanged.Schedule())
		}
	})

	t.Run("wrong owner is not found", func(t *testing.T) {
		err := db.UpdateSchedule(ctx, "bob", c.ID, got.Version, next, reviewedAt)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ease below floor is rejected by the schema", func(t *testing.T) {
		err := db.UpdateSchedule(ctx, "alice", c.ID, got.Version, domain.Schedule{EaseFactor: 1.0, Interval: 1, DueDate: base}, reviewedAt)
		if !errors.Is(err, domain.ErrStorage) {
			t.Errorf("Expected ErrStorage, got %v", err)
		}
	})
}

func TestDeleteFlashcard(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	c := insertCard(t, db, "alice", "delete me", base, 0)

	if err := db.DeleteFlashcard(ctx, "bob", c.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting another owner's card, got %v", err)
	}
	if err := db.DeleteFlashcard(ctx, "alice", c.ID); err != nil {
		t.Fatalf("DeleteFlashcard() returned an unexpected error: %v", err)
	}
	if _, err := db.GetFlashcard(ctx, "alice", c.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected deleted card to be gone, got %v", err)
	}
	if err := db.DeleteFlashcard(ctx, "alice", c.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestFindByContentHash(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	c := &domain.Flashcard{
		OwnerID: "alice", Front: "f", Back: "b", ContentHash: "abc123",
		EaseFactor: domain.DefaultEaseFactor, DueDate: base, CreatedAt: base, UpdatedAt: base,
	}
	if err := db.InsertFlashcard(ctx, c); err != nil {
		t.Fatalf("InsertFlashcard() returned an unexpected error: %v", err)
	}

	got, err := db.FindByContentHash(ctx, "alice", "abc123")
	if err != nil || got == nil || got.ID != c.ID {
		t.Fatalf("Expected to find card %d, got %+v (err %v)", c.ID, got, err)
	}

	missing, err := db.FindByContentHash(ctx, "bob", "abc123")
	if err != nil || missing != nil {
		t.Errorf("Expected nil for another owner, got %+v (err %v)", missing, err)
	}
}

func TestStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := base.Add(time.Hour)

	empty, err := db.Stats(ctx, "alice", now)
	if err != nil {
		t.Fatalf("Stats() returned an unexpected error: %v", err)
	}
	if empty != (domain.Stats{}) {
		t.Errorf("Expected zero stats for empty owner, got %+v", empty)
	}

	insertCard(t, db, "alice", "due", base, 0)
	insertCard(t, db, "alice", "reviewed and future", now.Add(24*time.Hour), 2)

	st, err := db.Stats(ctx, "alice", now)
	if err != nil {
		t.Fatalf("Stats() returned an unexpected error: %v", err)
	}
	want := domain.Stats{TotalCards: 2, DueCount: 1, ReviewedCount: 1, AvgEaseFactor: domain.DefaultEaseFactor}
	if st != want {
		t.Errorf("Expected %+v, got %+v", want, st)
	}
}

func TestCancelledContext(t *testing.T) {
	db := openTestDB(t)
	c := insertCard(t, db, "alice", "cancel", base, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := db.UpdateSchedule(ctx, "alice", c.ID, c.Version, domain.Schedule{EaseFactor: 2.6, Interval: 1, Repetitions: 1, DueDate: base.AddDate(0, 0, 1)}, base)
	if err == nil {
		t.Fatal("Expected an error for a cancelled context")
	}

	got, err := db.GetFlashcard(context.Background(), "alice", c.ID)
	if err != nil {
		t.Fatalf("GetFlashcard() returned an unexpected error: %v", err)
	}
	if got.Repetitions != 0 || got.Version != 1 {
		t.Errorf("Cancelled update was applied: %+v", got)
	}
}

func TestEveryConnectionWaitsOnLocks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// Hold several connections at once so the pool has to open new ones.
	for i := 0; i < 4; i++ {
		conn, err := db.conn.Conn(ctx)
		if err != nil {
			t.Fatalf("Conn() returned an unexpected error: %v", err)
		}
		defer conn.Close()

		var timeout int
		if err := conn.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&timeout); err != nil {
			t.Fatalf("PRAGMA busy_timeout returned an unexpected error: %v", err)
		}
		if timeout != busyTimeout {
			t.Errorf("Expected connection %d to have busy_timeout %d, got %d", i, busyTimeout, timeout)
		}
	}
}

func TestWithPragmas(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"cards.db", "cards.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"},
		{"file:cards.db?mode=rwc", "file:cards.db?mode=rwc&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"},
		{":memory:", ":memory:?_pragma=busy_timeout(5000)"},
	}
	for _, tc := range tests {
		if got := withPragmas(tc.dsn); got != tc.want {
			t.Errorf("withPragmas(%q) = %q, expected %q", tc.dsn, got, tc.want)
		}
	}
}
