package stopwriter

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stoptrack/stoptrack/pkg/eventstore"
	"github.com/stoptrack/stoptrack/pkg/gtfs"
	"github.com/stoptrack/stoptrack/pkg/monitoring"
	"github.com/stoptrack/stoptrack/pkg/schedule"
)

const serviceDateFormat = "2006-01-02"

// Detector runs the per-vehicle state machine that turns position samples
// into stop events. It must only ever see one sample at a time per
// (agency, license plate); the consumer guarantees that by partitioning.
type Detector struct {
	schedule  schedule.Store
	events    eventstore.Inserter
	states    *VehicleStateRepository
	saved     *SavedSequencesRepository
	locations map[string]*time.Location
}

func NewDetector(scheduleStore schedule.Store, events eventstore.Inserter, states *VehicleStateRepository, saved *SavedSequencesRepository, locations map[string]*time.Location) *Detector {
	return &Detector{
		schedule:  scheduleStore,
		events:    events,
		states:    states,
		saved:     saved,
		locations: locations,
	}
}

func (d *Detector) location(agency string) *time.Location {
	if location, exists := d.locations[agency]; exists {
		return location
	}

	return time.UTC
}

// HandlePosition applies one sample to the vehicle's state machine. A
// returned error is transient (cache or database unavailable) and means the
// delivery should be retried; anything unrecoverable about the sample
// itself is logged and swallowed.
func (d *Detector) HandlePosition(ctx context.Context, curr VehiclePosition) error {
	if curr.Agency == "" || curr.LicensePlate == "" || curr.TripID == "" {
		monitoring.SamplesDiscarded.WithLabelValues("incomplete").Inc()
		return nil
	}

	last := d.states.Get(ctx, curr.Agency, curr.LicensePlate)

	// First sighting of this vehicle, or it rolled onto a new trip. We did
	// not see both ends of a transition so no event can be measured.
	if last == nil || last.TripID != curr.TripID {
		serviceDate, err := d.inferServiceDate(ctx, curr)
		if err != nil {
			return err
		}

		d.saveState(ctx, curr, serviceDate)
		return nil
	}

	if curr.Timestamp.Before(last.Timestamp) {
		monitoring.SamplesDiscarded.WithLabelValues("stale").Inc()
		return nil
	}

	advanced := curr.StopSequence > last.StopSequence
	arrivedAtKnown := curr.StopSequence == last.StopSequence &&
		last.Status == StatusInTransitTo &&
		(curr.Status == StatusStoppedAt || curr.Status == StatusIncomingAt)

	if !advanced && !arrivedAtKnown {
		d.saveState(ctx, curr, last.ServiceDate)
		return nil
	}

	firstSequence := last.StopSequence + 1
	if arrivedAtKnown {
		firstSequence = curr.StopSequence
	}

	for sequence := firstSequence; sequence <= curr.StopSequence; sequence++ {
		isLast := sequence == curr.StopSequence
		isEstimated := !isLast || curr.Status != StatusStoppedAt

		if err := d.emit(ctx, curr, sequence, last.ServiceDate, isEstimated); err != nil {
			return err
		}
	}

	d.saveState(ctx, curr, last.ServiceDate)
	return nil
}

// emit runs the per-candidate pipeline for one stop sequence. Snapshot
// misses silently drop the candidate; they are expected during a schedule
// rotation.
func (d *Detector) emit(ctx context.Context, curr VehiclePosition, sequence int, serviceDate string, isEstimated bool) error {
	stopTime, err := d.schedule.LookupStopTime(ctx, curr.TripID, sequence)
	if err != nil {
		return err
	}
	if stopTime == nil {
		monitoring.SamplesDiscarded.WithLabelValues("unknown_stop_time").Inc()
		return nil
	}

	trip, err := d.schedule.LookupTrip(ctx, curr.TripID)
	if err != nil {
		return err
	}
	if trip == nil {
		monitoring.SamplesDiscarded.WithLabelValues("unknown_trip").Inc()
		log.Debug().Str("trip", curr.TripID).Msg("Trip not in schedule snapshot, dropping sample")
		return nil
	}

	route, err := d.schedule.LookupRoute(ctx, trip.RouteID)
	if err != nil {
		return err
	}
	stop, err := d.schedule.LookupStop(ctx, stopTime.StopID)
	if err != nil {
		return err
	}
	if route == nil || stop == nil {
		monitoring.SamplesDiscarded.WithLabelValues("unknown_reference").Inc()
		return nil
	}

	serviceDay, err := time.Parse(serviceDateFormat, serviceDate)
	if err != nil {
		log.Error().Err(err).Str("servicedate", serviceDate).Msg("Corrupt service date in vehicle state")
		return nil
	}

	plannedTime := gtfs.PlannedTime(serviceDay, stopTime.ArrivalSeconds, d.location(curr.Agency))
	delaySeconds := int(curr.Timestamp.Sub(plannedTime) / time.Second)

	alreadySaved, err := d.saved.IsSaved(ctx, curr.Agency, curr.TripID, serviceDate, sequence)
	if err != nil {
		return err
	}
	if alreadySaved {
		monitoring.StopEventsDeduplicated.WithLabelValues(curr.Agency).Inc()
		return nil
	}

	staticHash, err := d.schedule.ActiveHash(ctx, curr.Agency)
	if err != nil {
		return err
	}

	inserted, err := d.events.Insert(ctx, eventstore.StopEvent{
		Agency:       curr.Agency,
		LineNumber:   route.ShortName,
		StopName:     stop.Name,
		StopSequence: sequence,
		DirectionID:  trip.DirectionID,
		PlannedTime:  plannedTime,
		EventTime:    curr.Timestamp.UTC(),
		DelaySeconds: delaySeconds,
		VehicleLabel: curr.LicensePlate,
		IsEstimated:  isEstimated,
		Headsign:     trip.Headsign,
		ServiceDate:  serviceDay,
		TripID:       curr.TripID,
		StopID:       stopTime.StopID,
		StaticHash:   staticHash,
	})
	if err != nil {
		return err
	}

	if inserted {
		monitoring.StopEventsEmitted.WithLabelValues(curr.Agency).Inc()
		log.Info().
			Str("agency", curr.Agency).
			Str("line", route.ShortName).
			Str("trip", curr.TripID).
			Int("sequence", sequence).
			Int("delay", delaySeconds).
			Bool("estimated", isEstimated).
			Msg("Stop event persisted")
	} else {
		monitoring.StopEventsDeduplicated.WithLabelValues(curr.Agency).Inc()
	}

	// Mark after the row is durable either way; the cache write is best
	// effort
	if err := d.saved.MarkSaved(ctx, curr.Agency, curr.TripID, serviceDate, sequence); err != nil {
		log.Warn().Err(err).Str("trip", curr.TripID).Msg("Failed to mark saved sequence")
	}

	return nil
}

func (d *Detector) inferServiceDate(ctx context.Context, curr VehiclePosition) (string, error) {
	firstArrival, err := d.schedule.FirstArrivalSeconds(ctx, curr.TripID)
	if err != nil {
		return "", err
	}

	serviceDate := gtfs.ServiceDate(curr.Timestamp, firstArrival, d.location(curr.Agency))

	return serviceDate.Format(serviceDateFormat), nil
}

func (d *Detector) saveState(ctx context.Context, curr VehiclePosition, serviceDate string) {
	state := VehicleState{
		Agency:       curr.Agency,
		LicensePlate: curr.LicensePlate,
		TripID:       curr.TripID,
		StopSequence: curr.StopSequence,
		Status:       curr.Status,
		Timestamp:    curr.Timestamp,
		ServiceDate:  serviceDate,
	}

	if err := d.states.Save(ctx, state); err != nil {
		log.Warn().Err(err).
			Str("agency", curr.Agency).
			Str("plate", curr.LicensePlate).
			Msg("Failed to cache vehicle state")
	}
}
