// Package redis shares parsed replays and flight plans between hosts.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/saviobatista/vatsim-replay/internal/tracing"
	"github.com/saviobatista/vatsim-replay/internal/types"
)

// Expirations
const (
	ReplayTTL     = 24 * time.Hour
	FlightPlanTTL = 1 * time.Hour
)

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Client manages Redis connections and operations
type Client struct {
	client RedisClientInterface
}

// New creates a new Redis client
func New(addr string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client}, nil
}

// NewWithClient creates a new Redis client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface) *Client {
	return &Client{client: client}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func replayKey(key string) string {
	return fmt.Sprintf("replay:%s", key)
}

func flightPlanKey(callsign string) string {
	return fmt.Sprintf("flightplan:%s", callsign)
}

// StoreReplay stores a parsed replay under its content key
func (c *Client) StoreReplay(ctx context.Context, key string, replay *types.ParsedReplay) error {
	ctx, span := tracing.Start(ctx, "redis.store_replay", attribute.String("key", key))

	data, err := json.Marshal(replay)
	if err != nil {
		err = fmt.Errorf("failed to marshal replay: %w", err)
		tracing.End(span, err)
		return err
	}

	err = c.client.Set(ctx, replayKey(key), data, ReplayTTL).Err()
	tracing.End(span, err)
	return err
}

// getData retrieves data from Redis and unmarshals it into the target.
// It reports false when the key does not exist.
func (c *Client) getData(ctx context.Context, key string, target interface{}, dataType string) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil // Data not found
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s data: %w", dataType, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s data: %w", dataType, err)
	}

	return true, nil
}

// GetReplay retrieves a parsed replay; a missing key returns nil, nil
func (c *Client) GetReplay(ctx context.Context, key string) (*types.ParsedReplay, error) {
	ctx, span := tracing.Start(ctx, "redis.get_replay", attribute.String("key", key))

	replay := types.NewParsedReplay()
	found, err := c.getData(ctx, replayKey(key), replay, "replay")
	span.SetAttributes(attribute.Bool("found", found))
	tracing.End(span, err)
	if err != nil || !found {
		return nil, err
	}
	return replay, nil
}

// DeleteReplay removes a parsed replay
func (c *Client) DeleteReplay(ctx context.Context, key string) error {
	return c.client.Del(ctx, replayKey(key)).Err()
}

// StoreFlightPlan stores the latest flight plan filed for a callsign
func (c *Client) StoreFlightPlan(ctx context.Context, fp *types.FlightPlan) error {
	data, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("failed to marshal flight plan: %w", err)
	}

	return c.client.Set(ctx, flightPlanKey(fp.Callsign), data, FlightPlanTTL).Err()
}

// StoreFlightPlans stores every flight plan of a replay
func (c *Client) StoreFlightPlans(ctx context.Context, replay *types.ParsedReplay) error {
	for _, fp := range replay.FlightPlans {
		if err := c.StoreFlightPlan(ctx, &fp); err != nil {
			return fmt.Errorf("failed to store flight plan %s: %w", fp.Callsign, err)
		}
	}
	return nil
}

// GetFlightPlan retrieves a flight plan; a missing key returns nil, nil
func (c *Client) GetFlightPlan(ctx context.Context, callsign string) (*types.FlightPlan, error) {
	var fp types.FlightPlan
	found, err := c.getData(ctx, flightPlanKey(callsign), &fp, "flight plan")
	if err != nil || !found {
		return nil, err
	}
	return &fp, nil
}

// DeleteFlightPlan removes a flight plan
func (c *Client) DeleteFlightPlan(ctx context.Context, callsign string) error {
	return c.client.Del(ctx, flightPlanKey(callsign)).Err()
}
