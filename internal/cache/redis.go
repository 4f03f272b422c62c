package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/erazemk/kovnica/internal/model"
)

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// Redis is a Sales cache shared between processes. A TTL of zero keeps
// entries until overwritten.
type Redis struct {
	Client *redis.Client
	TTL    time.Duration
}

func saleKey(itemID int64) string {
	return fmt.Sprintf("kovnica:sale:%d", itemID)
}

// Get returns the cached record for itemID, or nil if there is none.
func (r *Redis) Get(ctx context.Context, itemID int64) (*model.OnchainSale, error) {
	val, err := r.Client.Get(ctx, saleKey(itemID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting cached sale: %w", err)
	}

	var s model.OnchainSale
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, fmt.Errorf("decoding cached sale: %w", err)
	}
	return &s, nil
}

// Put stores sale as JSON under its item key.
func (r *Redis) Put(ctx context.Context, sale *model.OnchainSale) error {
	data, err := json.Marshal(sale)
	if err != nil {
		return fmt.Errorf("encoding sale: %w", err)
	}
	if err := r.Client.Set(ctx, saleKey(sale.ItemID), data, r.TTL).Err(); err != nil {
		return fmt.Errorf("caching sale: %w", err)
	}
	return nil
}
