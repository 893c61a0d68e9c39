// Package parser reads flashcards out of markdown notes.
//
// A card starts with a "Q:" line, followed by "A:" and an optional "C:" line
// naming the deck. Any of the three may continue over several lines. A "---"
// line or the next "Q:" ends the card.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/flashdeck/internal/domain"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	deckPrefix     = "C:"
	separator      = "---"
)

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingDeck
)

// ParseFile reads a file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.CardInput, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all cards. Cards without a
// question are dropped.
func Parse(r io.Reader) ([]domain.CardInput, error) {
	scanner := bufio.NewScanner(r)
	var (
		cards   []domain.CardInput
		current domain.CardInput
		block   []string
	)
	currentState := seeking

	flushBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.TrimSpace(strings.Join(block, "\n"))
		switch currentState {
		case readingQuestion:
			current.Front = content
		case readingAnswer:
			current.Back = content
		case readingDeck:
			current.DeckName = content
		}
		block = nil
	}

	finishCard := func() {
		flushBlock()
		if current.Front != "" {
			cards = append(cards, current)
		}
		current = domain.CardInput{}
		currentState = seeking
	}

	for scanner.Scan() {
		line := scanner.Text()

		if strings.TrimSpace(line) == separator {
			finishCard()
			continue
		}

		next, rest, ok := cutPrefix(line)
		if !ok {
			if currentState != seeking {
				block = append(block, line)
			}
			continue
		}

		if next == readingQuestion && currentState != seeking {
			finishCard() // A new question always starts a new card
		} else {
			flushBlock()
		}
		currentState = next
		block = append(block, rest)
	}

	finishCard() // Finish the very last card in the file

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return cards, nil
}

// cutPrefix reports which field a line opens and returns the text after the
// prefix with one optional leading space removed.
func cutPrefix(line string) (state, string, bool) {
	for _, p := range []struct {
		prefix string
		state  state
	}{
		{questionPrefix, readingQuestion},
		{answerPrefix, readingAnswer},
		{deckPrefix, readingDeck},
	} {
		if rest, ok := strings.CutPrefix(line, p.prefix); ok {
			return p.state, strings.TrimPrefix(rest, " "), true
		}
	}
	return seeking, "", false
}
