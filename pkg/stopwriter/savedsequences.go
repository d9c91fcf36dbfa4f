package stopwriter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Covers trips that cross a service date boundary
const savedSequencesTTL = 48 * time.Hour

// SavedSequencesRepository tracks which stop sequences already produced an
// event for a (agency, trip, service date). It is an optimization in front
// of the stop_events unique constraint: a lost write means at worst one
// duplicate INSERT that the constraint rejects.
type SavedSequencesRepository struct {
	client redis.UniversalClient
}

func NewSavedSequencesRepository(client redis.UniversalClient) *SavedSequencesRepository {
	return &SavedSequencesRepository{client: client}
}

func savedSequencesKey(agency string, tripID string, serviceDate string) string {
	return fmt.Sprintf("saved:%s:%s:%s", agency, tripID, serviceDate)
}

func (r *SavedSequencesRepository) IsSaved(ctx context.Context, agency string, tripID string, serviceDate string, stopSequence int) (bool, error) {
	return r.client.SIsMember(ctx, savedSequencesKey(agency, tripID, serviceDate), strconv.Itoa(stopSequence)).Result()
}

func (r *SavedSequencesRepository) MarkSaved(ctx context.Context, agency string, tripID string, serviceDate string, stopSequence int) error {
	key := savedSequencesKey(agency, tripID, serviceDate)

	if err := r.client.SAdd(ctx, key, strconv.Itoa(stopSequence)).Err(); err != nil {
		return err
	}

	return r.client.Expire(ctx, key, savedSequencesTTL).Err()
}
