package stopwriter

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/stoptrack/stoptrack/pkg/redis_client"
)

const numWorkers = 4
const prefetchLimit = 200
const pollDuration = 1 * time.Second

type deliveryJob struct {
	delivery rmq.Delivery
	position VehiclePosition
}

// Consumer pulls deliveries off the vehicle-positions queue and dispatches
// them to partition workers. Samples for one (agency, license plate) always
// hash to the same worker, keeping the per-vehicle state machine serial.
// A delivery is only acknowledged after its database write committed.
type Consumer struct {
	detector   *Detector
	partitions []chan deliveryJob
	workers    conc.WaitGroup
}

func NewConsumer(detector *Detector) *Consumer {
	consumer := &Consumer{detector: detector}

	for i := 0; i < numWorkers; i++ {
		partition := make(chan deliveryJob, prefetchLimit)
		consumer.partitions = append(consumer.partitions, partition)

		consumer.workers.Go(func() {
			consumer.runWorker(partition)
		})
	}

	return consumer
}

// StartConsumer wires the consumer into the shared rmq connection.
func StartConsumer(detector *Detector) (*Consumer, error) {
	queue, err := redis_client.QueueConnection.OpenQueue(QueueName)
	if err != nil {
		return nil, err
	}

	if err := queue.StartConsuming(prefetchLimit, pollDuration); err != nil {
		return nil, err
	}

	consumer := NewConsumer(detector)
	if _, err := queue.AddConsumer("stop-writer", consumer); err != nil {
		return nil, err
	}

	log.Info().Int("workers", numWorkers).Msg("Stop writer consuming vehicle positions")

	return consumer, nil
}

func (c *Consumer) Consume(delivery rmq.Delivery) {
	var position VehiclePosition
	if err := json.Unmarshal([]byte(delivery.Payload()), &position); err != nil {
		log.Error().Err(err).Msg("Failed to parse vehicle position message")
		if err := delivery.Ack(); err != nil {
			log.Error().Err(err).Msg("Failed to ack malformed message")
		}
		return
	}

	c.partitions[c.partition(position)] <- deliveryJob{delivery: delivery, position: position}
}

func (c *Consumer) partition(position VehiclePosition) int {
	hasher := fnv.New32a()
	hasher.Write([]byte(position.Agency))
	hasher.Write([]byte{':'})
	hasher.Write([]byte(position.LicensePlate))

	return int(hasher.Sum32() % uint32(numWorkers))
}

func (c *Consumer) runWorker(partition <-chan deliveryJob) {
	for job := range partition {
		err := c.detector.HandlePosition(context.Background(), job.position)
		if err != nil {
			log.Error().Err(err).
				Str("agency", job.position.Agency).
				Str("plate", job.position.LicensePlate).
				Msg("Failed to process vehicle position, rejecting for retry")

			if err := job.delivery.Reject(); err != nil {
				log.Error().Err(err).Msg("Failed to reject delivery")
			}
			continue
		}

		if err := job.delivery.Ack(); err != nil {
			log.Error().Err(err).Msg("Failed to ack delivery")
		}
	}
}

// Stop drains the partition workers. Call after rmq has stopped consuming
// so no new deliveries arrive.
func (c *Consumer) Stop() {
	for _, partition := range c.partitions {
		close(partition)
	}

	c.workers.Wait()
}
