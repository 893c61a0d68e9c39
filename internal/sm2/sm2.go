// Package sm2 implements the SM-2 review transition used to schedule flashcards.
package sm2

import (
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/flashdeck/internal/domain"
)

const (
	firstInterval  = 1 // days after the first successful review, and after any lapse
	secondInterval = 6 // days after the second consecutive success
)

// NextEase applies the SM-2 ease update for quality q and clamps the result
// to domain.MinEaseFactor. There is no upper bound.
func NextEase(ease float64, q domain.Quality) float64 {
	d := float64(domain.Perfect - q)
	next := ease + (0.1 - d*(0.08+d*0.02))
	return math.Max(next, domain.MinEaseFactor)
}

// Grade computes the scheduling state that follows a review of quality q at
// reviewedAt. It has no side effects: identical inputs give identical outputs.
//
// A lapse (q < Good) resets repetitions to 0 and the interval to one day.
// A success increments repetitions; the interval becomes 1 day, then 6 days,
// then the previous interval multiplied by the updated ease, rounded.
func Grade(prior domain.Schedule, q domain.Quality, reviewedAt time.Time) (domain.Schedule, error) {
	if !q.IsValid() {
		return domain.Schedule{}, fmt.Errorf("%w: quality %d outside [0,5]", domain.ErrInvalidInput, int(q))
	}

	ease := NextEase(prior.EaseFactor, q)

	var reps, interval int
	if !q.Passed() {
		reps = 0
		interval = firstInterval
	} else {
		reps = prior.Repetitions + 1
		switch reps {
		case 1:
			interval = firstInterval
		case 2:
			interval = secondInterval
		default:
			interval = int(math.Round(float64(prior.Interval) * ease))
			if interval < firstInterval {
				interval = firstInterval
			}
		}
	}

	return domain.Schedule{
		EaseFactor:  ease,
		Interval:    interval,
		Repetitions: reps,
		DueDate:     reviewedAt.AddDate(0, 0, interval),
	}, nil
}
