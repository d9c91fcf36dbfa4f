package positionfeed

import (
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stoptrack/stoptrack/pkg/stopwriter"
	"google.golang.org/protobuf/proto"
)

func vehicleEntity(timestamp time.Time) *gtfs.FeedEntity {
	return &gtfs.FeedEntity{
		Id: proto.String("entity-1"),
		Vehicle: &gtfs.VehiclePosition{
			Trip: &gtfs.TripDescriptor{
				TripId: proto.String("T1"),
			},
			Vehicle: &gtfs.VehicleDescriptor{
				Id:           proto.String("bus-42"),
				LicensePlate: proto.String("KR123"),
			},
			Position: &gtfs.Position{
				Latitude:  proto.Float32(50.0614),
				Longitude: proto.Float32(19.9366),
				Bearing:   proto.Float32(270),
			},
			CurrentStopSequence: proto.Uint32(5),
			StopId:              proto.String("S5"),
			CurrentStatus:       gtfs.VehiclePosition_STOPPED_AT.Enum(),
			Timestamp:           proto.Uint64(uint64(timestamp.Unix())),
		},
	}
}

func TestNormalizeEntity(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 30, 0, time.UTC)

	position, reason := NormalizeEntity("krk", vehicleEntity(now), now)
	require.NotNil(t, position)
	assert.Empty(t, reason)

	assert.Equal(t, "krk", position.Agency)
	assert.Equal(t, "T1", position.TripID)
	assert.Equal(t, "bus-42", position.VehicleID)
	assert.Equal(t, "KR123", position.LicensePlate)
	assert.Equal(t, "S5", position.StopID)
	assert.Equal(t, 5, position.StopSequence)
	assert.Equal(t, stopwriter.StatusStoppedAt, position.Status)
	assert.Equal(t, now, position.Timestamp)
	assert.InDelta(t, 50.0614, position.Latitude, 0.001)
	assert.InDelta(t, 19.9366, position.Longitude, 0.001)
	assert.InDelta(t, 270.0, position.Bearing, 0.001)
}

func TestNormalizeEntityDrops(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 30, 0, time.UTC)

	withoutPlate := vehicleEntity(now)
	withoutPlate.Vehicle.Vehicle.LicensePlate = nil

	withoutPosition := vehicleEntity(now)
	withoutPosition.Vehicle.Position = nil

	withoutTrip := vehicleEntity(now)
	withoutTrip.Vehicle.Trip = nil

	stale := vehicleEntity(now.Add(-25 * time.Minute))

	testCases := []struct {
		name   string
		entity *gtfs.FeedEntity
		reason string
	}{
		{"missing plate", withoutPlate, "no_plate"},
		{"missing position", withoutPosition, "no_position"},
		{"missing trip", withoutTrip, "no_trip"},
		{"stale record", stale, "stale"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			position, reason := NormalizeEntity("krk", testCase.entity, now)
			assert.Nil(t, position)
			assert.Equal(t, testCase.reason, reason)
		})
	}
}

func TestNormalizeEntityIgnoresNonVehicleEntities(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 30, 0, time.UTC)

	alert := &gtfs.FeedEntity{
		Id:    proto.String("alert-1"),
		Alert: &gtfs.Alert{},
	}

	position, reason := NormalizeEntity("krk", alert, now)
	assert.Nil(t, position)
	assert.Empty(t, reason)
}

func TestNormalizeStatusDefaultsToInTransit(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 30, 0, time.UTC)

	entity := vehicleEntity(now)
	entity.Vehicle.CurrentStatus = nil

	position, _ := NormalizeEntity("krk", entity, now)
	require.NotNil(t, position)
	assert.Equal(t, stopwriter.StatusInTransitTo, position.Status)
}
