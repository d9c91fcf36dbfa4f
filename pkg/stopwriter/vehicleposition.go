package stopwriter

import "time"

const QueueName = "vehicle-positions"

type VehicleStatus string

const (
	StatusInTransitTo VehicleStatus = "IN_TRANSIT_TO"
	StatusStoppedAt   VehicleStatus = "STOPPED_AT"
	StatusIncomingAt  VehicleStatus = "INCOMING_AT"
)

// VehiclePosition is one normalized realtime sample as published by the
// position feed. Status is empty when the feed did not report one.
type VehiclePosition struct {
	Agency       string        `json:"agency"`
	TripID       string        `json:"trip_id"`
	VehicleID    string        `json:"vehicle_id"`
	LicensePlate string        `json:"license_plate"`
	Latitude     float64       `json:"lat"`
	Longitude    float64       `json:"lon"`
	Bearing      float64       `json:"bearing"`
	StopID       string        `json:"stop_id"`
	StopSequence int           `json:"stop_sequence"`
	Status       VehicleStatus `json:"status"`
	Timestamp    time.Time     `json:"timestamp"`
}
