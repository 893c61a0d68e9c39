package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/flashdeck/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB represents a wrapper around the SQL database connection.
// It is the persistent card store behind the scheduler.
type DB struct {
	conn *sql.DB
}

// busyTimeout is how long a connection waits on a locked database, in
// milliseconds, before failing with SQLITE_BUSY.
const busyTimeout = 5000

// withPragmas appends connection pragmas to dsn. The driver runs them on
// every new connection in the pool, not just the first one.
func withPragmas(dsn string) string {
	pragmas := []string{fmt.Sprintf("_pragma=busy_timeout(%d)", busyTimeout)}
	if !strings.Contains(dsn, ":memory:") {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(pragmas, "&")
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to an in-memory database is a separate database.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// ListQuery narrows ListFlashcards to one owner's cards.
type ListQuery struct {
	Filter domain.Filter
	Deck   string // empty matches every deck
	Now    time.Time
	Limit  int
}

const flashcardColumns = `id, owner_id, front, back, deck_name, source_ref, content_hash,
	ease_factor, interval_days, repetitions, due_at, last_reviewed_at, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlashcard(row rowScanner) (*domain.Flashcard, error) {
	var (
		c                         domain.Flashcard
		dueAt, createdAt, updated int64
		lastReviewed              sql.NullInt64
	)
	err := row.Scan(
		&c.ID,
		&c.OwnerID,
		&c.Front,
		&c.Back,
		&c.DeckName,
		&c.SourceRef,
		&c.ContentHash,
		&c.EaseFactor,
		&c.Interval,
		&c.Repetitions,
		&dueAt,
		&lastReviewed,
		&c.Version,
		&createdAt,
		&updated,
	)
	if err != nil {
		return nil, err
	}
	c.DueDate = fromMillis(dueAt)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updated)
	if lastReviewed.Valid {
		t := fromMillis(lastReviewed.Int64)
		c.LastReviewedAt = &t
	}
	return &c, nil
}

// InsertFlashcard stores a new card and fills in its ID and version.
func (db *DB) InsertFlashcard(ctx context.Context, c *domain.Flashcard) error {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO flashcards (owner_id, front, back, deck_name, source_ref, content_hash,
			ease_factor, interval_days, repetitions, due_at, last_reviewed_at, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, 1, ?, ?)
	`,
		c.OwnerID,
		c.Front,
		c.Back,
		c.DeckName,
		c.SourceRef,
		c.ContentHash,
		c.EaseFactor,
		c.Interval,
		c.Repetitions,
		toMillis(c.DueDate),
		toMillis(c.CreatedAt),
		toMillis(c.UpdatedAt),
	)
	if err != nil {
		return storageErr(fmt.Sprintf("failed to insert flashcard for owner %s", c.OwnerID), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storageErr("failed to get last insert ID for flashcard", err)
	}
	c.ID = id
	c.Version = 1
	return nil
}

// GetFlashcard retrieves one of the owner's cards. A card owned by someone
// else is reported as domain.ErrNotFound.
func (db *DB) GetFlashcard(ctx context.Context, ownerID string, id int64) (*domain.Flashcard, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+flashcardColumns+`
		FROM flashcards WHERE id = ? AND owner_id = ?
	`, id, ownerID)

	c, err := scanFlashcard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("flashcard %d: %w", id, domain.ErrNotFound)
		}
		return nil, storageErr(fmt.Sprintf("failed to get flashcard %d", id), err)
	}
	return c, nil
}

// FindByContentHash looks up an owner's card by its content hash.
func (db *DB) FindByContentHash(ctx context.Context, ownerID, hash string) (*domain.Flashcard, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+flashcardColumns+`
		FROM flashcards WHERE owner_id = ? AND content_hash = ?
		ORDER BY id LIMIT 1
	`, ownerID, hash)

	c, err := scanFlashcard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Card not found
		}
		return nil, storageErr(fmt.Sprintf("failed to find flashcard by hash %s", hash), err)
	}
	return c, nil
}

// ListFlashcards returns up to q.Limit of the owner's cards matching q.Filter,
// most overdue first with ties broken by id.
func (db *DB) ListFlashcards(ctx context.Context, ownerID string, q ListQuery) ([]domain.Flashcard, error) {
	where := []string{"owner_id = ?"}
	args := []any{ownerID}

	switch q.Filter {
	case domain.FilterAll:
	case domain.FilterDue:
		where = append(where, "due_at <= ?")
		args = append(args, toMillis(q.Now))
	case domain.FilterReviewed:
		where = append(where, "repetitions > 0")
	default:
		return nil, fmt.Errorf("%w: unknown filter %v", domain.ErrInvalidInput, q.Filter)
	}
	if q.Deck != "" {
		where = append(where, "deck_name = ?")
		args = append(args, q.Deck)
	}
	args = append(args, q.Limit)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+flashcardColumns+`
		FROM flashcards
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY due_at ASC, id ASC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, storageErr(fmt.Sprintf("failed to list %s flashcards for owner %s", q.Filter, ownerID), err)
	}
	defer rows.Close()

	cards := []domain.Flashcard{}
	for rows.Next() {
		c, err := scanFlashcard(rows)
		if err != nil {
			return nil, storageErr("failed to scan flashcard row", err)
		}
		cards = append(cards, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to iterate flashcard rows", err)
	}
	return cards, nil
}

// UpdateSchedule writes a review outcome in a single statement. The write only
// applies if the card still carries expectedVersion; otherwise nothing changes
// and domain.ErrConflict is returned.
func (db *DB) UpdateSchedule(ctx context.Context, ownerID string, id, expectedVersion int64, s domain.Schedule, reviewedAt time.Time) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE flashcards
		SET ease_factor = ?, interval_days = ?, repetitions = ?, due_at = ?,
			last_reviewed_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND owner_id = ? AND version = ?
	`,
		s.EaseFactor,
		s.Interval,
		s.Repetitions,
		toMillis(s.DueDate),
		toMillis(reviewedAt),
		toMillis(reviewedAt),
		id,
		ownerID,
		expectedVersion,
	)
	if err != nil {
		return storageErr(fmt.Sprintf("failed to update schedule for flashcard %d", id), err)
	}
	return db.checkAffected(ctx, res, ownerID, id)
}

// UpdateContent replaces a card's text and deck without touching its schedule.
func (db *DB) UpdateContent(ctx context.Context, ownerID string, id int64, in domain.CardInput, hash string, now time.Time) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE flashcards
		SET front = ?, back = ?, deck_name = ?, source_ref = ?, content_hash = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND owner_id = ?
	`,
		in.Front,
		in.Back,
		in.DeckName,
		in.SourceRef,
		hash,
		toMillis(now),
		id,
		ownerID,
	)
	if err != nil {
		return storageErr(fmt.Sprintf("failed to update flashcard %d", id), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("failed to read affected rows", err)
	}
	if n == 0 {
		return fmt.Errorf("flashcard %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// checkAffected tells a missing card apart from a version mismatch after a
// conditional update touched no rows.
func (db *DB) checkAffected(ctx context.Context, res sql.Result, ownerID string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("failed to read affected rows", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.GetFlashcard(ctx, ownerID, id); err != nil {
		return err
	}
	return fmt.Errorf("flashcard %d: %w", id, domain.ErrConflict)
}

// DeleteFlashcard removes one of the owner's cards.
func (db *DB) DeleteFlashcard(ctx context.Context, ownerID string, id int64) error {
	res, err := db.conn.ExecContext(ctx, `
		DELETE FROM flashcards
		WHERE id = ? AND owner_id = ?
	`, id, ownerID)
	if err != nil {
		return storageErr(fmt.Sprintf("failed to delete flashcard %d", id), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("failed to read affected rows", err)
	}
	if n == 0 {
		return fmt.Errorf("flashcard %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Stats counts the owner's cards in one pass. AvgEaseFactor is left at zero
// when the owner has no cards; callers supply the default.
func (db *DB) Stats(ctx context.Context, ownerID string, now time.Time) (domain.Stats, error) {
	var (
		st      domain.Stats
		avgEase sql.NullFloat64
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN due_at <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN repetitions > 0 THEN 1 ELSE 0 END), 0),
			AVG(ease_factor)
		FROM flashcards WHERE owner_id = ?
	`, toMillis(now), ownerID).Scan(&st.TotalCards, &st.DueCount, &st.ReviewedCount, &avgEase)
	if err != nil {
		return domain.Stats{}, storageErr(fmt.Sprintf("failed to compute stats for owner %s", ownerID), err)
	}
	st.AvgEaseFactor = avgEase.Float64
	return st, nil
}

// ListDecks returns the owner's deck names with card and due counts.
// Cards without a deck are grouped under the empty name.
func (db *DB) ListDecks(ctx context.Context, ownerID string, now time.Time) ([]domain.Deck, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT deck_name, COUNT(*), COALESCE(SUM(CASE WHEN due_at <= ? THEN 1 ELSE 0 END), 0)
		FROM flashcards WHERE owner_id = ?
		GROUP BY deck_name
		ORDER BY deck_name
	`, toMillis(now), ownerID)
	if err != nil {
		return nil, storageErr(fmt.Sprintf("failed to list decks for owner %s", ownerID), err)
	}
	defer rows.Close()

	decks := []domain.Deck{}
	for rows.Next() {
		var d domain.Deck
		if err := rows.Scan(&d.Name, &d.CardCount, &d.DueCount); err != nil {
			return nil, storageErr("failed to scan deck row", err)
		}
		decks = append(decks, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to iterate deck rows", err)
	}
	return decks, nil
}

func storageErr(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, domain.ErrStorage, err)
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
