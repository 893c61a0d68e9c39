package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Quality is the 0-5 recall grade a user gives after seeing the answer.
// Grades below Good count as a lapse.
type Quality int

const (
	Blackout  Quality = 0 // no recall at all
	Incorrect Quality = 1 // wrong, but the answer looked familiar
	Hard      Quality = 2 // wrong, though it came back easily once shown
	Good      Quality = 3 // correct with serious effort
	Easy      Quality = 4 // correct after some hesitation
	Perfect   Quality = 5 // instant recall
)

var qualityNames = [...]string{
	Blackout:  "blackout",
	Incorrect: "incorrect",
	Hard:      "hard",
	Good:      "good",
	Easy:      "easy",
	Perfect:   "perfect",
}

// IsValid reports whether q lies in [0, 5].
func (q Quality) IsValid() bool {
	return q >= Blackout && q <= Perfect
}

// Passed reports whether the grade counts as a successful recall.
func (q Quality) Passed() bool {
	return q >= Good
}

func (q Quality) String() string {
	if q.IsValid() {
		return qualityNames[q]
	}
	return fmt.Sprintf("Quality(%d)", int(q))
}

// ParseQuality accepts either a grade number ("4") or a grade name ("easy").
func ParseQuality(s string) (Quality, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if n, err := strconv.Atoi(s); err == nil {
		q := Quality(n)
		if !q.IsValid() {
			return 0, fmt.Errorf("%w: quality %d outside [0,5]", ErrInvalidInput, n)
		}
		return q, nil
	}
	for i, name := range qualityNames {
		if name == s {
			return Quality(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown quality %q", ErrInvalidInput, s)
}
