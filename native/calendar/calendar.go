package calendar

import (
	"errors"
	"time"
)

// PeriodDuration enumerates the billing period lengths supported by the
// protocol.
type PeriodDuration uint8

const (
	Monthly PeriodDuration = iota
	Quarterly
	SemiAnnually
)

// DaysInYear is the fixed year length of the 30/360 day-count convention used
// for all yield and fee pro-rating. The convention is a contract, not a
// calendar: every month contributes exactly 30 days regardless of its actual
// length so that accrual arithmetic reconciles across periods.
const DaysInYear = 30 * 12

// DaySeconds is the number of seconds in one wall-clock day.
const DaySeconds int64 = 24 * 60 * 60

var errReversedRange = errors.New("calendar: end timestamp before start")

// Valid reports whether the duration value is within the supported range.
func (d PeriodDuration) Valid() bool {
	switch d {
	case Monthly, Quarterly, SemiAnnually:
		return true
	default:
		return false
	}
}

func (d PeriodDuration) String() string {
	switch d {
	case Monthly:
		return "monthly"
	case Quarterly:
		return "quarterly"
	case SemiAnnually:
		return "semi-annually"
	default:
		return "unknown"
	}
}

// MonthsInPeriod returns the calendar months spanned by one period.
func (d PeriodDuration) MonthsInPeriod() int {
	switch d {
	case Quarterly:
		return 3
	case SemiAnnually:
		return 6
	default:
		return 1
	}
}

// DaysInPeriod returns the 30/360 day count of one full period.
func (d PeriodDuration) DaysInPeriod() int {
	return d.MonthsInPeriod() * 30
}

func utc(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}

// StartOfDay returns midnight UTC of the day containing ts.
func StartOfDay(ts int64) int64 {
	t := utc(ts)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
}

// StartOfNextDay returns midnight UTC of the day after ts.
func StartOfNextDay(ts int64) int64 {
	return StartOfDay(ts) + DaySeconds
}

// StartOfPeriod returns the first instant of the period containing ts. Periods
// are anchored to the calendar: monthly periods begin on the first of each
// month, quarterly on January/April/July/October, semi-annual on January/July.
func StartOfPeriod(d PeriodDuration, ts int64) int64 {
	t := utc(ts)
	months := d.MonthsInPeriod()
	monthIndex := (int(t.Month()) - 1) / months * months
	return time.Date(t.Year(), time.Month(monthIndex+1), 1, 0, 0, 0, 0, time.UTC).Unix()
}

// StartOfNextPeriod returns the first instant of the period immediately
// following the one containing ts.
func StartOfNextPeriod(d PeriodDuration, ts int64) int64 {
	return AddPeriods(d, StartOfPeriod(d, ts), 1)
}

// AddPeriods advances a period boundary by n whole periods.
func AddPeriods(d PeriodDuration, boundary int64, n uint32) int64 {
	t := utc(boundary)
	return t.AddDate(0, int(n)*d.MonthsInPeriod(), 0).Unix()
}

// DaysDiff returns the number of whole 30/360 days between a and b. The day
// component of either endpoint is capped at 30, so the 31st of a month counts
// as the 30th and a full month always contributes 30 days.
func DaysDiff(a, b int64) (int, error) {
	if b < a {
		return 0, errReversedRange
	}
	ta, tb := utc(a), utc(b)
	da, db := ta.Day(), tb.Day()
	if da > 30 {
		da = 30
	}
	if db > 30 {
		db = 30
	}
	months := (tb.Year()-ta.Year())*12 + int(tb.Month()) - int(ta.Month())
	return months*30 + db - da, nil
}

// PeriodsPassed counts the whole period boundaries crossed between from and
// to. Two timestamps inside the same period yield zero.
func PeriodsPassed(d PeriodDuration, from, to int64) (uint32, error) {
	if to < from {
		return 0, errReversedRange
	}
	tf := utc(StartOfPeriod(d, from))
	tt := utc(StartOfPeriod(d, to))
	months := (tt.Year()-tf.Year())*12 + int(tt.Month()) - int(tf.Month())
	return uint32(months / d.MonthsInPeriod()), nil
}

// DaysRemainingInPeriod returns the 30/360 days from ts until the start of the
// next period.
func DaysRemainingInPeriod(d PeriodDuration, ts int64) int {
	days, err := DaysDiff(ts, StartOfNextPeriod(d, ts))
	if err != nil {
		return 0
	}
	return days
}

// DaysElapsedInPeriod returns the 30/360 days from the start of the current
// period until ts.
func DaysElapsedInPeriod(d PeriodDuration, ts int64) int {
	days, err := DaysDiff(StartOfPeriod(d, ts), ts)
	if err != nil {
		return 0
	}
	return days
}
