package schedule

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads the current_* snapshot tables. Each lookup is a single
// statement, so it sees a consistent row version even while the importer is
// swapping the snapshot in a concurrent transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) LookupStopTime(ctx context.Context, tripID string, stopSequence int) (*StopTime, error) {
	stopTime := StopTime{TripID: tripID, StopSequence: stopSequence}

	err := s.pool.QueryRow(ctx,
		`SELECT stop_id, arrival_seconds, departure_seconds
		 FROM current_stop_times WHERE trip_id = $1 AND stop_sequence = $2`,
		tripID, stopSequence,
	).Scan(&stopTime.StopID, &stopTime.ArrivalSeconds, &stopTime.DepartureSeconds)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &stopTime, nil
}

func (s *PostgresStore) LookupTrip(ctx context.Context, tripID string) (*Trip, error) {
	trip := Trip{ID: tripID}

	err := s.pool.QueryRow(ctx,
		`SELECT route_id, service_id, direction_id, COALESCE(headsign, ''), COALESCE(shape_id, '')
		 FROM current_trips WHERE trip_id = $1`,
		tripID,
	).Scan(&trip.RouteID, &trip.ServiceID, &trip.DirectionID, &trip.Headsign, &trip.ShapeID)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &trip, nil
}

func (s *PostgresStore) LookupRoute(ctx context.Context, routeID string) (*Route, error) {
	route := Route{ID: routeID}

	err := s.pool.QueryRow(ctx,
		`SELECT agency_id, route_short_name FROM current_routes WHERE route_id = $1`,
		routeID,
	).Scan(&route.Agency, &route.ShortName)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &route, nil
}

func (s *PostgresStore) LookupStop(ctx context.Context, stopID string) (*Stop, error) {
	stop := Stop{ID: stopID}

	err := s.pool.QueryRow(ctx,
		`SELECT stop_name, COALESCE(stop_code, ''), COALESCE(stop_desc, ''),
		        COALESCE(stop_lat, 0), COALESCE(stop_lon, 0)
		 FROM current_stops WHERE stop_id = $1`,
		stopID,
	).Scan(&stop.Name, &stop.Code, &stop.Description, &stop.Latitude, &stop.Longitude)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &stop, nil
}

func (s *PostgresStore) FirstArrivalSeconds(ctx context.Context, tripID string) (int, error) {
	var seconds int

	err := s.pool.QueryRow(ctx,
		`SELECT arrival_seconds FROM current_stop_times
		 WHERE trip_id = $1 ORDER BY stop_sequence LIMIT 1`,
		tripID,
	).Scan(&seconds)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return seconds, nil
}

func (s *PostgresStore) ActiveHash(ctx context.Context, agency string) (string, error) {
	var hash string

	err := s.pool.QueryRow(ctx,
		`SELECT current_hash FROM gtfs_meta WHERE agency_id = $1`,
		agency,
	).Scan(&hash)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	return hash, nil
}
