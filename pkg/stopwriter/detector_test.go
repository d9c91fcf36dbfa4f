package stopwriter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stoptrack/stoptrack/pkg/eventstore"
	"github.com/stoptrack/stoptrack/pkg/schedule"
)

func newTestDetector(t *testing.T) (*Detector, *eventstore.MemoryStore) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	scheduleStore := schedule.NewMemoryStore()
	scheduleStore.Replace(
		[]schedule.Route{
			{ID: "R1", Agency: "krk", ShortName: "139"},
		},
		[]schedule.Stop{
			{ID: "S4", Name: "Bronowice"},
			{ID: "S5", Name: "Rondo Ofiar Katynia"},
			{ID: "S6", Name: "Armii Krajowej"},
			{ID: "S7", Name: "Bronowice Male"},
			{ID: "N1", Name: "Dworzec Glowny"},
		},
		[]schedule.Trip{
			{ID: "T1", RouteID: "R1", ServiceID: "SV1", Headsign: "Mydlniki"},
			{ID: "N25", RouteID: "R1", ServiceID: "SV2", Headsign: "Nocny"},
		},
		[]schedule.StopTime{
			{TripID: "T1", StopSequence: 4, StopID: "S4", ArrivalSeconds: 35940},
			{TripID: "T1", StopSequence: 5, StopID: "S5", ArrivalSeconds: 36000},
			{TripID: "T1", StopSequence: 6, StopID: "S6", ArrivalSeconds: 36060},
			{TripID: "T1", StopSequence: 7, StopID: "S7", ArrivalSeconds: 36120},
			// 25:00:00, an after-midnight service
			{TripID: "N25", StopSequence: 1, StopID: "N1", ArrivalSeconds: 90000},
		},
		map[string]string{"krk": "statichash1"},
	)

	events := eventstore.NewMemoryStore()

	detector := NewDetector(
		scheduleStore,
		events,
		NewVehicleStateRepository(client),
		NewSavedSequencesRepository(client),
		map[string]*time.Location{"krk": time.UTC},
	)

	return detector, events
}

func sample(tripID string, plate string, sequence int, status VehicleStatus, timestamp string) VehiclePosition {
	parsed, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		panic(err)
	}

	return VehiclePosition{
		Agency:       "krk",
		TripID:       tripID,
		VehicleID:    "v-" + plate,
		LicensePlate: plate,
		StopSequence: sequence,
		Status:       status,
		Timestamp:    parsed,
	}
}

func TestSimpleArrival(t *testing.T) {
	detector, events := newTestDetector(t)
	ctx := context.Background()

	require.NoError(t, detector.HandlePosition(ctx, sample("T1", "KR123", 4, StatusInTransitTo, "2026-03-10T10:00:05Z")))
	require.NoError(t, detector.HandlePosition(ctx, sample("T1", "KR123", 5, StatusStoppedAt, "2026-03-10T10:00:30Z")))

	persisted := events.Events()
	require.Len(t, persisted, 1)

	event := persisted[0]
	assert.Equal(t, "139", event.LineNumber)
	assert.Equal(t, "Rondo Ofiar Katynia", event.StopName)
	assert.Equal(t, 5, event.StopSequence)
	assert.Equal(t, time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC), event.PlannedTime)
	assert.Equal(t, time.Date(2026, 3, 10, 10, 0, 30, 0, time.UTC), event.EventTime)
	assert.Equal(t, 30, event.DelaySeconds)
	assert.False(t, event.IsEstimated)
	assert.Equal(t, "KR123", event.VehicleLabel)
	assert.Equal(t, "statichash1", event.StaticHash)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), event.ServiceDate)
}

func TestSkippedStopsAreEstimated(t *testing.T) {
	detector, events := newTestDetector(t)
	ctx := context.Background()

	require.NoError(t, detector.HandlePosition(ctx, sample("T1", "KR123", 4, StatusInTransitTo, "2026-03-10T10:00:05Z")))
	require.NoError(t, detector.HandlePosition(ctx, sample("T1", "KR123", 5, StatusStoppedAt, "2026-03-10T10:00:30Z")))
	require.NoError(t, detector.HandlePosition(ctx, sample("T1", "KR123", 7, StatusStoppedAt, "2026-03-10T10:02:00Z")))

	persisted := events.Events()
	require.Len(t, persisted, 3)

	skipped := persisted[1]
	assert.Equal(t, 6, skipped.StopSequence)
	assert.True(t, skipped.IsEstimated)
	assert.Equal(t, time.Date(2026, 3, 10, 10, 2, 0, 0, time.UTC), skipped.EventTime)

	reached := persisted[2]
	assert.Equal(t, 7, reached.StopSequence)
	assert.False(t, reached.IsEstimated)
	assert.Equal(t, time.Date(2026, 3, 10, 10, 2, 0, 0, time.UTC), reached.EventTime)
}

func TestDuplicateDeliveryPersistsOnce(t *testing.T) {
	detector, events := newTestDetector(t)
	ctx := context.Background()

	require.NoError(t, detector.HandlePosition(ctx, sample("T1", "KR123", 4, StatusInTransitTo, "2026-03-10T10:00:05Z")))

	arrival := sample("T1", "KR123", 5, StatusStoppedAt, "2026-03-10T10:00:30Z")
	for i := 0; i < 3; i++ {
		require.NoError(t, detector.HandlePosition(ctx, arrival))
	}

	assert.Len(t, events.Events(), 1)
}

func TestAfterMidnightTrip(t *testing.T) {
	detector, events := newTestDetector(t)
	ctx := context.Background()

	require.NoError(t, detector.HandlePosition(ctx, sample("N25", "KR900", 0, StatusInTransitTo, "2026-03-11T01:02:00Z")))
	require.NoError(t, detector.HandlePosition(ctx, sample("N25", "KR900", 1, StatusStoppedAt, "2026-03-11T01:05:00Z")))

	persisted := events.Events()
	require.Len(t, persisted, 1)

	event := persisted[0]
	assert.Equal(t, time.Date(2026, 3, 11, 1, 0, 0, 0, time.UTC), event.PlannedTime)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), event.ServiceDate)
	assert.Equal(t, 300, event.DelaySeconds)
}

func TestUnknownTripDropsSilently(t *testing.T) {
	detector, events := newTestDetector(t)
	ctx := context.Background()

	require.NoError(t, detector.HandlePosition(ctx, sample("ghost", "KR123", 4, StatusInTransitTo, "2026-03-10T10:00:05Z")))
	require.NoError(t, detector.HandlePosition(ctx, sample("ghost", "KR123", 5, StatusStoppedAt, "2026-03-10T10:00:30Z")))

	assert.Empty(t, events.Events())
}

func TestIncomingAtCountsAsEstimatedArrival(t *testing.T) {
	detector, events := newTestDetector(t)
	ctx := context.Background()

	require.NoError(t, detector.HandlePosition(ctx, sample("T1", "KR123", 5, StatusInTransitTo, "2026-03-10T10:00:05Z")))
	require.NoError(t, detector.HandlePosition(ctx, sample("T1", "KR123", 5, StatusIncomingAt, "2026-03-10T10:00:20Z")))

	persisted := events.Events()
	require.Len(t, persisted, 1)
	assert.Equal(t, 5, persisted[0].StopSequence)
	assert.True(t, persisted[0].IsEstimated)
}

func TestStaleSampleDiscarded(t *testing.T) {
	detector, events := newTestDetector(t)
	ctx := context.Background()

	require.NoError(t, detector.HandlePosition(ctx, sample("T1", "KR123", 4, StatusInTransitTo, "2026-03-10T10:00:05Z")))
	require.NoError(t, detector.HandlePosition(ctx, sample("T1", "KR123", 5, StatusStoppedAt, "2026-03-10T09:59:00Z")))

	assert.Empty(t, events.Events())
}

func TestTripChangeResetsState(t *testing.T) {
	detector, events := newTestDetector(t)
	ctx := context.Background()

	require.NoError(t, detector.HandlePosition(ctx, sample("N25", "KR123", 3, StatusInTransitTo, "2026-03-10T09:00:00Z")))
	// Vehicle rolls onto a different trip; no transition can be measured
	require.NoError(t, detector.HandlePosition(ctx, sample("T1", "KR123", 5, StatusStoppedAt, "2026-03-10T10:00:30Z")))

	assert.Empty(t, events.Events())
}

func TestEmittedSequencesStrictlyIncrease(t *testing.T) {
	detector, events := newTestDetector(t)
	ctx := context.Background()

	samples := []VehiclePosition{
		sample("T1", "KR123", 4, StatusInTransitTo, "2026-03-10T10:00:05Z"),
		sample("T1", "KR123", 5, StatusStoppedAt, "2026-03-10T10:00:30Z"),
		sample("T1", "KR123", 5, StatusStoppedAt, "2026-03-10T10:00:35Z"),
		sample("T1", "KR123", 4, StatusInTransitTo, "2026-03-10T10:00:40Z"), // bogus regression
		sample("T1", "KR123", 7, StatusStoppedAt, "2026-03-10T10:02:00Z"),
	}

	for _, position := range samples {
		require.NoError(t, detector.HandlePosition(ctx, position))
	}

	persisted := events.Events()
	require.NotEmpty(t, persisted)

	previous := 0
	for _, event := range persisted {
		assert.Greater(t, event.StopSequence, previous)
		previous = event.StopSequence
	}
}
