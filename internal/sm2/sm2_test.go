package sm2

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/conorfennell/flashdeck/internal/domain"
)

var reviewedAt = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNextEase(t *testing.T) {
	testCases := []struct {
		name    string
		ease    float64
		quality domain.Quality
		want    float64
	}{
		{"perfect raises ease", 2.5, domain.Perfect, 2.6},
		{"easy keeps ease", 2.5, domain.Easy, 2.5},
		{"good lowers ease", 2.0, domain.Good, 1.86},
		{"good from default ease", 2.5, domain.Good, 2.36},
		{"hard lowers ease", 2.5, domain.Hard, 2.18},
		{"incorrect lowers ease", 2.5, domain.Incorrect, 1.96},
		{"blackout lowers ease", 2.5, domain.Blackout, 1.7},
		{"clamped at floor", 1.3, domain.Blackout, domain.MinEaseFactor},
		{"no upper bound", 4.0, domain.Perfect, 4.1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextEase(tc.ease, tc.quality)
			if !approx(got, tc.want) {
				t.Errorf("NextEase(%.2f, %v) = %.4f, want %.4f", tc.ease, tc.quality, got, tc.want)
			}
		})
	}
}

func TestGradeScenarios(t *testing.T) {
	testCases := []struct {
		name     string
		prior    domain.Schedule
		quality  domain.Quality
		wantReps int
		wantIvl  int
		wantEase float64
	}{
		{
			name:     "fresh card graded easy",
			prior:    domain.Schedule{EaseFactor: 2.5, Interval: 0, Repetitions: 0},
			quality:  domain.Easy,
			wantReps: 1,
			wantIvl:  1,
			wantEase: 2.5,
		},
		{
			name:     "second success graded perfect",
			prior:    domain.Schedule{EaseFactor: 2.5, Interval: 1, Repetitions: 1},
			quality:  domain.Perfect,
			wantReps: 2,
			wantIvl:  6,
			wantEase: 2.6,
		},
		{
			name:     "mature card graded good uses updated ease",
			prior:    domain.Schedule{EaseFactor: 2.0, Interval: 10, Repetitions: 3},
			quality:  domain.Good,
			wantReps: 4,
			wantIvl:  19,
			wantEase: 1.86,
		},
		{
			name:     "blackout on mature card resets",
			prior:    domain.Schedule{EaseFactor: 2.8, Interval: 40, Repetitions: 7},
			quality:  domain.Blackout,
			wantReps: 0,
			wantIvl:  1,
			wantEase: 2.0,
		},
		{
			name:     "blackout on new card",
			prior:    domain.Schedule{EaseFactor: 2.5},
			quality:  domain.Blackout,
			wantReps: 0,
			wantIvl:  1,
			wantEase: 1.7,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Grade(tc.prior, tc.quality, reviewedAt)
			if err != nil {
				t.Fatalf("Grade() returned an unexpected error: %v", err)
			}
			if got.Repetitions != tc.wantReps {
				t.Errorf("Expected repetitions %d, got %d", tc.wantReps, got.Repetitions)
			}
			if got.Interval != tc.wantIvl {
				t.Errorf("Expected interval %d, got %d", tc.wantIvl, got.Interval)
			}
			if !approx(got.EaseFactor, tc.wantEase) {
				t.Errorf("Expected ease %.4f, got %.4f", tc.wantEase, got.EaseFactor)
			}
			wantDue := reviewedAt.AddDate(0, 0, tc.wantIvl)
			if !got.DueDate.Equal(wantDue) {
				t.Errorf("Expected due date %v, got %v", wantDue, got.DueDate)
			}
		})
	}
}

func TestGradeRejectsInvalidQuality(t *testing.T) {
	for _, q := range []domain.Quality{-1, 6, 42} {
		_, err := Grade(domain.NewSchedule(reviewedAt), q, reviewedAt)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("Grade with quality %d: expected ErrInvalidInput, got %v", q, err)
		}
	}
}

// reachableStates walks every grade sequence of the given depth from a new card.
func reachableStates(depth int) []domain.Schedule {
	states := []domain.Schedule{domain.NewSchedule(reviewedAt)}
	frontier := states
	for i := 0; i < depth; i++ {
		var next []domain.Schedule
		for _, s := range frontier {
			for q := domain.Blackout; q <= domain.Perfect; q++ {
				ns, err := Grade(s, q, reviewedAt)
				if err != nil {
					panic(err)
				}
				next = append(next, ns)
			}
		}
		states = append(states, next...)
		frontier = next
	}
	return states
}

func TestGradeProperties(t *testing.T) {
	states := reachableStates(4)
	// a few hand-picked priors outside the walk
	states = append(states,
		domain.Schedule{EaseFactor: 1.3, Interval: 365, Repetitions: 20},
		domain.Schedule{EaseFactor: 5.0, Interval: 2, Repetitions: 2},
	)

	for _, prior := range states {
		for q := domain.Blackout; q <= domain.Perfect; q++ {
			got, err := Grade(prior, q, reviewedAt)
			if err != nil {
				t.Fatalf("Grade(%+v, %v): %v", prior, q, err)
			}

			if got.EaseFactor < domain.MinEaseFactor {
				t.Errorf("ease %.4f below floor for prior %+v, q=%v", got.EaseFactor, prior, q)
			}

			if !q.Passed() {
				if got.Repetitions != 0 || got.Interval != 1 {
					t.Errorf("lapse did not reset: prior %+v q=%v got %+v", prior, q, got)
				}
			} else {
				var want int
				switch prior.Repetitions {
				case 0:
					want = 1
				case 1:
					want = 6
				default:
					want = int(math.Round(float64(prior.Interval) * got.EaseFactor))
				}
				if got.Interval != want {
					t.Errorf("prior %+v q=%v: interval %d, want %d", prior, q, got.Interval, want)
				}
				if got.Repetitions != prior.Repetitions+1 {
					t.Errorf("prior %+v q=%v: repetitions %d, want %d", prior, q, got.Repetitions, prior.Repetitions+1)
				}
			}

			if got.Interval < 1 || !got.DueDate.After(reviewedAt) {
				t.Errorf("prior %+v q=%v: due date %v not after review time", prior, q, got.DueDate)
			}

			again, _ := Grade(prior, q, reviewedAt)
			if again != got {
				t.Errorf("Grade is not deterministic: %+v vs %+v", got, again)
			}
		}
	}
}
