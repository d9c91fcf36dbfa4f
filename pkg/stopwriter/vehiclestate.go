package stopwriter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
)

const vehicleStateTTL = 30 * time.Minute

// VehicleState is the last observation the detector made for one
// (agency, license plate), cached between samples.
type VehicleState struct {
	Agency       string
	LicensePlate string
	TripID       string
	StopSequence int
	Status       VehicleStatus
	Timestamp    time.Time
	ServiceDate  string // YYYY-MM-DD in the agency timezone
}

func (s VehicleState) MarshalBinary() ([]byte, error) {
	return json.Marshal(s)
}

type VehicleStateRepository struct {
	cache *cache.Cache[string]
}

func NewVehicleStateRepository(client redis.UniversalClient) *VehicleStateRepository {
	redisStore := redisstore.NewRedis(client, store.WithExpiration(vehicleStateTTL))

	return &VehicleStateRepository{cache: cache.New[string](redisStore)}
}

func vehicleStateKey(agency string, licensePlate string) string {
	return fmt.Sprintf("vs:%s:%s", agency, licensePlate)
}

// Get returns the cached state, or nil when absent or unreadable. A lost
// state only costs one unmeasured transition; the durable unique constraint
// keeps correctness.
func (r *VehicleStateRepository) Get(ctx context.Context, agency string, licensePlate string) *VehicleState {
	cached, err := r.cache.Get(ctx, vehicleStateKey(agency, licensePlate))
	if err != nil || cached == "" {
		return nil
	}

	var state VehicleState
	if err := json.Unmarshal([]byte(cached), &state); err != nil {
		return nil
	}

	return &state
}

func (r *VehicleStateRepository) Save(ctx context.Context, state VehicleState) error {
	encoded, err := json.Marshal(state)
	if err != nil {
		return err
	}

	return r.cache.Set(ctx, vehicleStateKey(state.Agency, state.LicensePlate), string(encoded))
}

func (r *VehicleStateRepository) Delete(ctx context.Context, agency string, licensePlate string) error {
	return r.cache.Delete(ctx, vehicleStateKey(agency, licensePlate))
}
