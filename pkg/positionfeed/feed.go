package positionfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/stoptrack/stoptrack/pkg/feeds"
	"github.com/stoptrack/stoptrack/pkg/monitoring"
	"github.com/stoptrack/stoptrack/pkg/redis_client"
	"github.com/stoptrack/stoptrack/pkg/stopwriter"
	"google.golang.org/protobuf/proto"
)

const (
	defaultPollInterval = 3 * time.Second

	// Records older than this are considered stuck transponders and skipped
	maxRecordAge = 20 * time.Minute

	// Stop publishing when the queue backs up this far; the stop-writer will
	// drain it and the next poll starts fresh anyway
	maxQueueBacklog = 40000
)

// Poller fetches one agency's GTFS-RT vehicle positions feed and publishes
// normalised samples onto the vehicle-positions queue.
type Poller struct {
	feed       feeds.Feed
	queue      rmq.Queue
	httpClient *http.Client
	interval   time.Duration
}

func NewPoller(feed feeds.Feed, queue rmq.Queue, interval time.Duration) *Poller {
	if interval == 0 {
		interval = defaultPollInterval
	}

	return &Poller{
		feed:  feed,
		queue: queue,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		interval: interval,
	}
}

// Run polls until the context is cancelled. Individual poll failures are
// logged and retried at the next tick; a realtime feed being flaky for a
// few cycles is normal.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.pollOnce(ctx); err != nil {
			log.Error().Err(err).Str("agency", p.feed.Agency).Msg("Realtime poll failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) error {
	if backlogTooLong() {
		log.Warn().Str("agency", p.feed.Agency).Msg("Queue backlog too long, skipping poll cycle")
		return nil
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, p.feed.RealtimeURL, nil)
	if err != nil {
		return err
	}
	request.Header.Set("User-Agent", "stoptrack-positionfeed/1.0")

	response, err := p.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("realtime feed returned %s", response.Status)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}

	feed := gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, &feed); err != nil {
		return fmt.Errorf("failed parsing GTFS-RT protobuf: %w", err)
	}

	published := 0
	dropped := 0

	for _, entity := range feed.Entity {
		position, reason := NormalizeEntity(p.feed.Agency, entity, time.Now().UTC())
		if position == nil {
			if reason != "" {
				monitoring.PositionsDropped.WithLabelValues(p.feed.Agency, reason).Inc()
				dropped += 1
			}
			continue
		}

		payload, err := json.Marshal(position)
		if err != nil {
			continue
		}

		if err := p.queue.PublishBytes(payload); err != nil {
			return fmt.Errorf("failed publishing to queue: %w", err)
		}

		monitoring.PositionsPublished.WithLabelValues(p.feed.Agency).Inc()
		published += 1
	}

	log.Debug().
		Str("agency", p.feed.Agency).
		Int("published", published).
		Int("dropped", dropped).
		Int("total", len(feed.Entity)).
		Msg("Submitted vehicle positions")

	return nil
}

// NormalizeEntity converts one GTFS-RT feed entity into a queue sample.
// Returns nil with a drop reason for entities the detector cannot use;
// reason is empty for entity types we never care about (alerts, trip
// updates without a vehicle).
func NormalizeEntity(agency string, entity *gtfs.FeedEntity, now time.Time) (*stopwriter.VehiclePosition, string) {
	vehicle := entity.GetVehicle()
	if vehicle == nil {
		return nil, ""
	}

	if vehicle.Position == nil {
		return nil, "no_position"
	}

	licensePlate := vehicle.GetVehicle().GetLicensePlate()
	if licensePlate == "" {
		return nil, "no_plate"
	}

	tripID := vehicle.GetTrip().GetTripId()
	if tripID == "" {
		return nil, "no_trip"
	}

	recordedAt := time.Unix(int64(vehicle.GetTimestamp()), 0).UTC()
	if vehicle.Timestamp == nil {
		recordedAt = now
	}

	if now.Sub(recordedAt) > maxRecordAge {
		return nil, "stale"
	}

	return &stopwriter.VehiclePosition{
		Agency:       agency,
		TripID:       tripID,
		VehicleID:    vehicle.GetVehicle().GetId(),
		LicensePlate: licensePlate,
		Latitude:     float64(vehicle.Position.GetLatitude()),
		Longitude:    float64(vehicle.Position.GetLongitude()),
		Bearing:      float64(vehicle.Position.GetBearing()),
		StopID:       vehicle.GetStopId(),
		StopSequence: int(vehicle.GetCurrentStopSequence()),
		Status:       normalizeStatus(vehicle.GetCurrentStatus()),
		Timestamp:    recordedAt,
	}, ""
}

func normalizeStatus(status gtfs.VehiclePosition_VehicleStopStatus) stopwriter.VehicleStatus {
	switch status {
	case gtfs.VehiclePosition_STOPPED_AT:
		return stopwriter.StatusStoppedAt
	case gtfs.VehiclePosition_INCOMING_AT:
		return stopwriter.StatusIncomingAt
	default:
		return stopwriter.StatusInTransitTo
	}
}

func backlogTooLong() bool {
	stats, err := redis_client.QueueConnection.CollectStats([]string{stopwriter.QueueName})
	if err != nil {
		return false
	}

	return stats.QueueStats[stopwriter.QueueName].ReadyCount >= maxQueueBacklog
}
