// Package eventstore is the durable append-only side of the pipeline: one
// row per observed stop arrival, deduplicated on
// (trip_id, service_date, stop_sequence).
package eventstore

import (
	"context"
	"time"
)

type StopEvent struct {
	Agency       string
	LineNumber   string
	StopName     string
	StopSequence int
	DirectionID  *int16
	PlannedTime  time.Time
	EventTime    time.Time
	DelaySeconds int
	VehicleLabel string
	IsEstimated  bool
	Headsign     string
	ServiceDate  time.Time
	TripID       string
	StopID       string
	StaticHash   string
}

// Inserter appends stop events idempotently. Insert reports whether the row
// was newly persisted; a duplicate is not an error.
type Inserter interface {
	Insert(ctx context.Context, event StopEvent) (bool, error)
}
