package stats

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type StopDelay struct {
	StopName         string `json:"stop_name"`
	StopSequence     int    `json:"stop_sequence"`
	MaxDelayIncrease int    `json:"max_delay_increase"`
	AvgDelayIncrease int    `json:"avg_delay_increase"`
}

type RouteDelay struct {
	Headsign    string `json:"headsign"`
	DirectionID *int16 `json:"direction_id"`
	Events      int    `json:"events"`
	AvgDelay    int    `json:"avg_delay_seconds"`
	MaxDelay    int    `json:"max_delay_seconds"`
}

type Punctuality struct {
	Total           int `json:"-"`
	OnTime          int `json:"-"`
	SlightlyDelayed int `json:"-"`
	Delayed         int `json:"-"`
}

type TrendDay struct {
	Day      time.Time `json:"day"`
	Events   int       `json:"events"`
	AvgDelay int       `json:"avg_delay_seconds"`
	MaxDelay int       `json:"max_delay_seconds"`
}

type LineSummary struct {
	LineNumber string `json:"line_number"`
	Events     int    `json:"events"`
	AvgDelay   int    `json:"avg_delay_seconds"`
	MaxDelay   int    `json:"max_delay_seconds"`
}

// Repository answers aggregate queries over persisted stop events.
type Repository interface {
	TripsCount(ctx context.Context, lineNumber string, dates DateRange) (int, error)
	MaxDelayBetweenStops(ctx context.Context, lineNumber string, dates DateRange) ([]StopDelay, error)
	RouteDelay(ctx context.Context, lineNumber string, dates DateRange) ([]RouteDelay, error)
	Punctuality(ctx context.Context, lineNumber string, dates DateRange) (Punctuality, error)
	Trend(ctx context.Context, lineNumber string, dates DateRange) ([]TrendDay, error)
	Summary(ctx context.Context, dates DateRange) ([]LineSummary, error)
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) TripsCount(ctx context.Context, lineNumber string, dates DateRange) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT (trip_id, service_date))
		FROM stop_events
		WHERE line_number = $1 AND service_date BETWEEN $2 AND $3`,
		lineNumber, dates.Start, dates.End,
	).Scan(&count)

	return count, err
}

// MaxDelayBetweenStops finds the stops where vehicles lose the most time,
// measured as the delay increase against the previous stop of the same trip.
func (r *PostgresRepository) MaxDelayBetweenStops(ctx context.Context, lineNumber string, dates DateRange) ([]StopDelay, error) {
	rows, err := r.pool.Query(ctx, `
		WITH deltas AS (
			SELECT stop_name, stop_sequence,
				delay_seconds - lag(delay_seconds) OVER (
					PARTITION BY trip_id, service_date ORDER BY stop_sequence
				) AS delta
			FROM stop_events
			WHERE line_number = $1 AND service_date BETWEEN $2 AND $3
		)
		SELECT stop_name, stop_sequence,
			MAX(delta)::int, ROUND(AVG(delta))::int
		FROM deltas
		WHERE delta IS NOT NULL
		GROUP BY stop_name, stop_sequence
		ORDER BY MAX(delta) DESC, stop_sequence
		LIMIT 10`,
		lineNumber, dates.Start, dates.End,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []StopDelay
	for rows.Next() {
		var row StopDelay
		if err := rows.Scan(&row.StopName, &row.StopSequence, &row.MaxDelayIncrease, &row.AvgDelayIncrease); err != nil {
			return nil, err
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

func (r *PostgresRepository) RouteDelay(ctx context.Context, lineNumber string, dates DateRange) ([]RouteDelay, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(headsign, ''), direction_id,
			COUNT(*)::int, ROUND(AVG(delay_seconds))::int, MAX(delay_seconds)::int
		FROM stop_events
		WHERE line_number = $1 AND service_date BETWEEN $2 AND $3
		GROUP BY headsign, direction_id
		ORDER BY ROUND(AVG(delay_seconds)) DESC`,
		lineNumber, dates.Start, dates.End,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []RouteDelay
	for rows.Next() {
		var row RouteDelay
		if err := rows.Scan(&row.Headsign, &row.DirectionID, &row.Events, &row.AvgDelay, &row.MaxDelay); err != nil {
			return nil, err
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

func (r *PostgresRepository) Punctuality(ctx context.Context, lineNumber string, dates DateRange) (Punctuality, error) {
	var row Punctuality
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)::int,
			COUNT(*) FILTER (WHERE delay_seconds <= 60)::int,
			COUNT(*) FILTER (WHERE delay_seconds > 60 AND delay_seconds <= 180)::int,
			COUNT(*) FILTER (WHERE delay_seconds > 180)::int
		FROM stop_events
		WHERE line_number = $1 AND service_date BETWEEN $2 AND $3`,
		lineNumber, dates.Start, dates.End,
	).Scan(&row.Total, &row.OnTime, &row.SlightlyDelayed, &row.Delayed)

	return row, err
}

func (r *PostgresRepository) Trend(ctx context.Context, lineNumber string, dates DateRange) ([]TrendDay, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT service_date,
			COUNT(*)::int, ROUND(AVG(delay_seconds))::int, MAX(delay_seconds)::int
		FROM stop_events
		WHERE line_number = $1 AND service_date BETWEEN $2 AND $3
		GROUP BY service_date
		ORDER BY service_date`,
		lineNumber, dates.Start, dates.End,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TrendDay
	for rows.Next() {
		var row TrendDay
		if err := rows.Scan(&row.Day, &row.Events, &row.AvgDelay, &row.MaxDelay); err != nil {
			return nil, err
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

func (r *PostgresRepository) Summary(ctx context.Context, dates DateRange) ([]LineSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT line_number,
			COUNT(*)::int, ROUND(AVG(delay_seconds))::int, MAX(delay_seconds)::int
		FROM stop_events
		WHERE service_date BETWEEN $1 AND $2
		GROUP BY line_number
		ORDER BY line_number`,
		dates.Start, dates.End,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []LineSummary
	for rows.Next() {
		var row LineSummary
		if err := rows.Scan(&row.LineNumber, &row.Events, &row.AvgDelay, &row.MaxDelay); err != nil {
			return nil, err
		}
		result = append(result, row)
	}

	return result, rows.Err()
}
