// Package schedule exposes read-only lookups against the current GTFS-Static
// snapshot. The snapshot is replaced atomically by the data importer; lookups
// observe either the previous or the next snapshot, never a mix.
package schedule

import "context"

type Route struct {
	ID        string
	Agency    string
	ShortName string
}

type Stop struct {
	ID          string
	Name        string
	Code        string
	Description string
	Latitude    float64
	Longitude   float64
}

type Trip struct {
	ID          string
	RouteID     string
	ServiceID   string
	DirectionID *int16
	Headsign    string
	ShapeID     string
}

type StopTime struct {
	TripID           string
	StopSequence     int
	StopID           string
	ArrivalSeconds   int
	DepartureSeconds *int
}

// Store is the schedule snapshot as seen by the detectors. Lookups return
// nil (not an error) when the snapshot does not contain the record - common
// during a schedule rotation.
type Store interface {
	LookupStopTime(ctx context.Context, tripID string, stopSequence int) (*StopTime, error)
	LookupTrip(ctx context.Context, tripID string) (*Trip, error)
	LookupRoute(ctx context.Context, routeID string) (*Route, error)
	LookupStop(ctx context.Context, stopID string) (*Stop, error)

	// FirstArrivalSeconds returns the first scheduled arrival of a trip,
	// used for service date inference on after-midnight trips.
	FirstArrivalSeconds(ctx context.Context, tripID string) (int, error)

	// ActiveHash returns the content hash of the agency's active snapshot.
	ActiveHash(ctx context.Context, agency string) (string, error)
}
