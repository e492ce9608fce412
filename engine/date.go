package engine

import "time"

// =============================================================================
// DATE - Day-granular calendar date
// =============================================================================

// Date is a calendar day in UTC. The ledger never needs sub-day clock time:
// same-day ordering of entries is carried by EntryKey (kind priority +
// sequence), not by timestamps.
type Date struct {
	t time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

func Today() Date {
	return DateOf(time.Now())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.t.After(other.t) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.t.Before(other.t) }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{t: d.t.AddDate(0, n, 0)} }
func (d Date) AddYears(n int) Date  { return Date{t: d.t.AddDate(n, 0, 0)} }

// Properties
func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }
func (d Date) IsZero() bool      { return d.t.IsZero() }
func (d Date) Time() time.Time   { return d.t }

// EndOfDay returns the instant just before the next day starts. Used when a
// date bound has to be compared against clock-time absence ranges.
func (d Date) EndOfDay() time.Time { return d.t.AddDate(0, 0, 1).Add(-time.Nanosecond) }

func (d Date) String() string { return d.t.Format("2006-01-02") }

// anniversaryOnOrBefore returns the latest (month, day) occurrence that is
// on or before ref. Feb 29 collapses to Feb 28 in non-leap years.
func anniversaryOnOrBefore(month time.Month, day int, ref Date) Date {
	candidate := safeDate(ref.Year(), month, day)
	if candidate.After(ref) {
		candidate = safeDate(ref.Year()-1, month, day)
	}
	return candidate
}

// anniversaryAfter returns the earliest (month, day) occurrence strictly
// after ref.
func anniversaryAfter(month time.Month, day int, ref Date) Date {
	candidate := safeDate(ref.Year(), month, day)
	if !candidate.After(ref) {
		candidate = safeDate(ref.Year()+1, month, day)
	}
	return candidate
}

// safeDate clamps the day to the month's length instead of letting time.Date
// normalize Feb 30 into March.
func safeDate(year int, month time.Month, day int) Date {
	last := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1).Day()
	if day > last {
		day = last
	}
	return NewDate(year, month, day)
}
