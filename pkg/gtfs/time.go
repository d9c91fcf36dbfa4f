package gtfs

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const secondsPerDay = 86400

// After-midnight trips can legitimately be observed well past their
// scheduled HH>=24 times; anything earlier than this far into the civil day
// still counts as the previous service date.
const afterMidnightGrace = 12 * 3600

// ParseTime converts a GTFS "HH:MM:SS" time into seconds since the start of
// the service day. Hours may exceed 23 for after-midnight service.
func ParseTime(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid gtfs time %q", value)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid gtfs time %q: %w", value, err)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid gtfs time %q: %w", value, err)
	}
	seconds, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, fmt.Errorf("invalid gtfs time %q: %w", value, err)
	}

	if hours < 0 || minutes < 0 || minutes > 59 || seconds < 0 || seconds > 59 {
		return 0, fmt.Errorf("invalid gtfs time %q", value)
	}

	return hours*3600 + minutes*60 + seconds, nil
}

// ParseOptionalTime is ParseTime but maps an empty value to nil instead of
// an error, for the optional departure_time column.
func ParseOptionalTime(value string) (*int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	seconds, err := ParseTime(value)
	if err != nil {
		return nil, err
	}

	return &seconds, nil
}

// PlannedTime resolves service-day seconds against a service date in the
// agency timezone. Seconds >= 86400 roll over into the next civil day.
func PlannedTime(serviceDate time.Time, seconds int, location *time.Location) time.Time {
	return time.Date(serviceDate.Year(), serviceDate.Month(), serviceDate.Day(), 0, 0, seconds, 0, location).UTC()
}

// ServiceDate infers the service date a position sample belongs to. Normally
// this is the agency-local civil date of the sample, but a trip whose first
// scheduled arrival is after midnight (seconds >= 86400) observed in the
// early hours belongs to the previous service date.
func ServiceDate(timestamp time.Time, firstArrivalSeconds int, location *time.Location) time.Time {
	local := timestamp.In(location)
	civilDate := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	if firstArrivalSeconds < secondsPerDay {
		return civilDate
	}

	secondsOfDay := local.Hour()*3600 + local.Minute()*60 + local.Second()
	if secondsOfDay < firstArrivalSeconds-secondsPerDay+afterMidnightGrace {
		return civilDate.AddDate(0, 0, -1)
	}

	return civilDate
}
