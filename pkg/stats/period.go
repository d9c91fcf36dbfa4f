package stats

import (
	"fmt"
	"time"
)

const (
	dateFormat = "2006-01-02"

	// Longest explicit start/end span a query may ask for
	MaxRangeDays = 92
)

type Period string

const (
	PeriodToday Period = "TODAY"
	PeriodWeek  Period = "WEEK"
	PeriodMonth Period = "MONTH"
)

// DateRange is an inclusive service-date window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start)/(24*time.Hour)) + 1
}

func (r DateRange) String() string {
	return r.Start.Format(dateFormat) + ".." + r.End.Format(dateFormat)
}

// RangeError is a request the caller can fix; the API maps it to a 422.
type RangeError struct {
	Reason string
}

func (e RangeError) Error() string {
	return e.Reason
}

// RangeForPeriod resolves a named period into concrete dates anchored on
// today in the given timezone.
func RangeForPeriod(period Period, now time.Time, location *time.Location) (DateRange, error) {
	local := now.In(location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	switch period {
	case PeriodToday:
		return DateRange{Start: today, End: today}, nil
	case PeriodWeek:
		return DateRange{Start: today.AddDate(0, 0, -6), End: today}, nil
	case PeriodMonth:
		return DateRange{Start: today.AddDate(0, 0, -29), End: today}, nil
	default:
		return DateRange{}, RangeError{Reason: fmt.Sprintf("unknown period %q", period)}
	}
}

// ParseRange validates an explicit start/end pair.
func ParseRange(startDate string, endDate string, now time.Time, location *time.Location) (DateRange, error) {
	start, err := time.Parse(dateFormat, startDate)
	if err != nil {
		return DateRange{}, RangeError{Reason: "start_date must be formatted YYYY-MM-DD"}
	}

	end, err := time.Parse(dateFormat, endDate)
	if err != nil {
		return DateRange{}, RangeError{Reason: "end_date must be formatted YYYY-MM-DD"}
	}

	if start.After(end) {
		return DateRange{}, RangeError{Reason: "start_date must be before or equal to end_date"}
	}

	if end.Sub(start) > time.Duration(MaxRangeDays)*24*time.Hour {
		return DateRange{}, RangeError{Reason: fmt.Sprintf("date range cannot exceed %d days", MaxRangeDays)}
	}

	local := now.In(location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	if end.After(today) {
		return DateRange{}, RangeError{Reason: "end_date cannot be in the future"}
	}

	return DateRange{Start: start, End: end}, nil
}
