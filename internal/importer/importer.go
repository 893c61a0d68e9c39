// Package importer adds flashcards written in markdown decks to an owner's
// collection. Sources are local directories or git repositories.
package importer

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/gitsource"
	"github.com/conorfennell/flashdeck/internal/knol"
	"github.com/conorfennell/flashdeck/internal/parser"
)

// CardCreator creates validated cards with default scheduling state.
type CardCreator interface {
	Create(ctx context.Context, ownerID string, in domain.CardInput) (*domain.Flashcard, error)
}

// HashLookup finds an owner's card by content hash, returning nil when absent.
type HashLookup interface {
	FindByContentHash(ctx context.Context, ownerID, hash string) (*domain.Flashcard, error)
}

// Report summarises one import run.
type Report struct {
	Source  string
	Files   int
	Parsed  int
	Created int
	Skipped int // already present for this owner
	Errors  []error
}

// Importer reconciles markdown decks into the card store. Importing never
// deletes or reschedules existing cards.
type Importer struct {
	cards    CardCreator
	lookup   HashLookup
	reposDir string
	progress io.Writer
}

// New creates an Importer. Git sources are checked out under reposDir.
func New(cards CardCreator, lookup HashLookup, reposDir string) *Importer {
	return &Importer{cards: cards, lookup: lookup, reposDir: reposDir}
}

// WithProgress sends git clone/pull progress to w.
func (im *Importer) WithProgress(w io.Writer) *Importer {
	im.progress = w
	return im
}

// Import reads every .md file under source for ownerID. A git URL is cloned
// or pulled first. Per-card failures are collected in the report; only
// failures that stop the whole run are returned as an error.
func (im *Importer) Import(ctx context.Context, ownerID, source string) (*Report, error) {
	dir := source
	if gitsource.IsGitURL(source) {
		if err := os.MkdirAll(im.reposDir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create repos directory: %w", err)
		}
		localPath, err := gitsource.LocalPath(im.reposDir, source)
		if err != nil {
			return nil, err
		}
		if err := gitsource.Sync(ctx, source, localPath, im.progress); err != nil {
			return nil, err
		}
		dir = localPath
	}

	slog.InfoContext(ctx, "importing deck source", "owner", ownerID, "source", source)
	report := &Report{Source: source}

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		report.Files++
		fileCards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			report.Errors = append(report.Errors, fmt.Errorf("parsing %s: %w", path, parseErr))
			return nil
		}

		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}
		deck := deckFromFile(rel)

		for i, in := range fileCards {
			report.Parsed++
			if in.DeckName == "" {
				in.DeckName = deck
			}
			in.SourceRef = fmt.Sprintf("%s#%d", filepath.ToSlash(rel), i+1)

			hash := knol.Hash(in)
			existing, findErr := im.lookup.FindByContentHash(ctx, ownerID, hash)
			if findErr != nil {
				report.Errors = append(report.Errors, fmt.Errorf("db check for %s: %w", in.SourceRef, findErr))
				continue
			}
			if existing != nil {
				report.Skipped++
				continue
			}
			if _, createErr := im.cards.Create(ctx, ownerID, in); createErr != nil {
				report.Errors = append(report.Errors, fmt.Errorf("create %s: %w", in.SourceRef, createErr))
				continue
			}
			report.Created++
		}
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}

	slog.InfoContext(ctx, "import complete",
		"source", source,
		"files", report.Files,
		"parsed_cards", report.Parsed,
		"created", report.Created,
		"skipped", report.Skipped,
		"errors", len(report.Errors),
	)
	return report, nil
}

// deckFromFile names a deck after the file it came from: "go/basics.md" -> "basics".
func deckFromFile(rel string) string {
	base := filepath.Base(rel)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
