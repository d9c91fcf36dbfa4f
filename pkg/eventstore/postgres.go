package eventstore

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/stoptrack/stoptrack/pkg/monitoring"
)

const uniqueViolation = "23505"
const checkViolation = "23514"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Insert appends a stop event, treating a duplicate of
// (trip_id, service_date, stop_sequence) as already present. The arbiter
// unique indexes live on the monthly partitions, so the conflict clause is
// targetless (Postgres cannot carry that index on the partitioned parent).
func (s *PostgresStore) Insert(ctx context.Context, event StopEvent) (bool, error) {
	commandTag, err := s.pool.Exec(ctx,
		`INSERT INTO stop_events
		   (agency_id, line_number, stop_name, stop_sequence, direction_id,
		    planned_time, event_time, delay_seconds, vehicle_label, is_estimated,
		    headsign, service_date, trip_id, stop_id, static_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT DO NOTHING`,
		event.Agency, event.LineNumber, event.StopName, event.StopSequence, event.DirectionID,
		event.PlannedTime, event.EventTime, event.DelaySeconds, event.VehicleLabel, event.IsEstimated,
		event.Headsign, event.ServiceDate, event.TripID, event.StopID, event.StaticHash,
	)

	var pgError *pgconn.PgError
	if errors.As(err, &pgError) {
		// Another worker won the race; the row is already present
		if pgError.Code == uniqueViolation {
			return false, nil
		}

		// Partition routing failure: no partition covers event_time. Drop
		// the event loudly, provisioning partitions is an operations task.
		if pgError.Code == checkViolation && strings.Contains(pgError.Message, "no partition") {
			monitoring.MissingPartitions.Inc()
			log.Error().
				Str("trip", event.TripID).
				Time("eventtime", event.EventTime).
				Msg("No stop_events partition covers event_time, dropping event")

			return false, nil
		}
	}
	if err != nil {
		return false, err
	}

	return commandTag.RowsAffected() > 0, nil
}
