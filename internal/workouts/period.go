package workouts

import (
	"errors"
	"fmt"
	"time"
)

// Granularity selects the calendar bucket size for trend aggregation.
type Granularity string

const (
	GranularityWeek    Granularity = "week"
	GranularityMonth   Granularity = "month"
	GranularityQuarter Granularity = "quarter"
	GranularityYear    Granularity = "year"
)

// ErrUnsupportedGranularity - the granularity token is not one of
// week/month/quarter/year.
var ErrUnsupportedGranularity = errors.New("unsupported granularity")

// ParseGranularity validates a granularity token coming from a request.
func ParseGranularity(token string) (Granularity, error) {
	switch Granularity(token) {
	case GranularityWeek, GranularityMonth, GranularityQuarter, GranularityYear:
		return Granularity(token), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedGranularity, token)
	}
}

// PeriodKey identifies one calendar bucket. Keys of the same granularity are
// totally ordered: by year, then by ordinal within the year. Weeks follow the
// ISO week calendar (the ISO week-year can differ from the calendar year at
// year boundaries), quarters are calendar quarters.
type PeriodKey struct {
	Granularity Granularity `json:"granularity"`
	Year        int         `json:"year"`
	// Ordinal is the week/month/quarter number within the year; 0 for year granularity.
	Ordinal int `json:"ordinal,omitempty"`
}

// PeriodKeyFor derives the bucket for t under the given granularity.
func PeriodKeyFor(t time.Time, granularity Granularity) (PeriodKey, error) {
	switch granularity {
	case GranularityWeek:
		isoYear, isoWeek := t.ISOWeek()
		return PeriodKey{Granularity: granularity, Year: isoYear, Ordinal: isoWeek}, nil
	case GranularityMonth:
		return PeriodKey{Granularity: granularity, Year: t.Year(), Ordinal: int(t.Month())}, nil
	case GranularityQuarter:
		return PeriodKey{Granularity: granularity, Year: t.Year(), Ordinal: (int(t.Month())-1)/3 + 1}, nil
	case GranularityYear:
		return PeriodKey{Granularity: granularity, Year: t.Year()}, nil
	default:
		return PeriodKey{}, fmt.Errorf("%w: %q", ErrUnsupportedGranularity, granularity)
	}
}

func (k PeriodKey) Before(other PeriodKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Ordinal < other.Ordinal
}

// Next returns the chronologically following bucket of the same granularity.
func (k PeriodKey) Next() PeriodKey {
	switch k.Granularity {
	case GranularityWeek:
		// step a week forward from this week's Monday and re-derive, so
		// 52/53-week ISO years are handled by the calendar, not by us
		next, _ := PeriodKeyFor(k.startTime().AddDate(0, 0, 7), k.Granularity)
		return next
	case GranularityMonth:
		if k.Ordinal == 12 {
			return PeriodKey{Granularity: k.Granularity, Year: k.Year + 1, Ordinal: 1}
		}
		return PeriodKey{Granularity: k.Granularity, Year: k.Year, Ordinal: k.Ordinal + 1}
	case GranularityQuarter:
		if k.Ordinal == 4 {
			return PeriodKey{Granularity: k.Granularity, Year: k.Year + 1, Ordinal: 1}
		}
		return PeriodKey{Granularity: k.Granularity, Year: k.Year, Ordinal: k.Ordinal + 1}
	default:
		return PeriodKey{Granularity: k.Granularity, Year: k.Year + 1}
	}
}

// startTime returns the UTC instant the bucket begins at.
func (k PeriodKey) startTime() time.Time {
	switch k.Granularity {
	case GranularityWeek:
		// Jan 4 is always in ISO week 1 of its week-year
		jan4 := time.Date(k.Year, time.January, 4, 0, 0, 0, 0, time.UTC)
		weekday := int(jan4.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday
		}
		week1Monday := jan4.AddDate(0, 0, 1-weekday)
		return week1Monday.AddDate(0, 0, (k.Ordinal-1)*7)
	case GranularityMonth:
		return time.Date(k.Year, time.Month(k.Ordinal), 1, 0, 0, 0, 0, time.UTC)
	case GranularityQuarter:
		return time.Date(k.Year, time.Month((k.Ordinal-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(k.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
}

// String renders the key for chronological display: "2024-W03", "2024-01",
// "2024-Q1" or "2024".
func (k PeriodKey) String() string {
	switch k.Granularity {
	case GranularityWeek:
		return fmt.Sprintf("%04d-W%02d", k.Year, k.Ordinal)
	case GranularityMonth:
		return fmt.Sprintf("%04d-%02d", k.Year, k.Ordinal)
	case GranularityQuarter:
		return fmt.Sprintf("%04d-Q%d", k.Year, k.Ordinal)
	default:
		return fmt.Sprintf("%04d", k.Year)
	}
}
