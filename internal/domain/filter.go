package domain

import "fmt"

// Filter selects which of an owner's cards a listing returns.
type Filter int

const (
	FilterAll      Filter = iota
	FilterDue             // due date has passed
	FilterReviewed        // repetitions > 0
)

func (f Filter) String() string {
	switch f {
	case FilterAll:
		return "all"
	case FilterDue:
		return "due"
	case FilterReviewed:
		return "reviewed"
	}
	return fmt.Sprintf("Filter(%d)", int(f))
}

// ParseFilter maps "all", "due" or "reviewed" to a Filter. An empty string means all.
func ParseFilter(s string) (Filter, error) {
	switch s {
	case "", "all":
		return FilterAll, nil
	case "due":
		return FilterDue, nil
	case "reviewed":
		return FilterReviewed, nil
	}
	return 0, fmt.Errorf("%w: unknown filter %q", ErrInvalidInput, s)
}
