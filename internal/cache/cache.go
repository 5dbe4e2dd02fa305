// Package cache keeps each item's latest status in Redis so status polls do
// not hit the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/erazemk/sledilnik/internal/model"
)

// KeyItemStatus is item_status:{item_id} -> CachedStatus JSON.
const KeyItemStatus = "item_status:%s"

var (
	TTLStatus    = 5 * time.Minute
	writeTimeout = 500 * time.Millisecond
)

// New returns a Redis client for addr.
func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// CachedStatus is the cached view of an item's latest event.
type CachedStatus struct {
	ItemID        string       `json:"item_id"`
	Status        model.Status `json:"status"`
	UpdatedAt     time.Time    `json:"updated_at"`
	SettlementRef string       `json:"transaction_id,omitempty"`
}

// StatusOf returns the cached view of ev.
func StatusOf(ev model.Event) CachedStatus {
	return CachedStatus{
		ItemID:        ev.ItemID,
		Status:        ev.Status,
		UpdatedAt:     ev.Timestamp,
		SettlementRef: ev.SettlementRef,
	}
}

// StatusCache reads and writes cached statuses.
type StatusCache struct {
	rdb *redis.Client
}

func NewStatusCache(rdb *redis.Client) *StatusCache {
	return &StatusCache{rdb: rdb}
}

func statusKey(itemID string) string {
	return fmt.Sprintf(KeyItemStatus, itemID)
}

// Get returns the cached status of an item, or nil if nothing is cached.
func (c *StatusCache) Get(ctx context.Context, itemID string) (*CachedStatus, error) {
	raw, err := c.rdb.Get(ctx, statusKey(itemID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached status: %w", err)
	}

	var s CachedStatus
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decoding cached status: %w", err)
	}
	return &s, nil
}

// Set caches ev as the item's latest status.
func (c *StatusCache) Set(ctx context.Context, ev model.Event) error {
	raw, err := json.Marshal(StatusOf(ev))
	if err != nil {
		return fmt.Errorf("encoding cached status: %w", err)
	}
	if err := c.rdb.Set(ctx, statusKey(ev.ItemID), raw, TTLStatus).Err(); err != nil {
		return fmt.Errorf("caching status: %w", err)
	}
	return nil
}

// Fill caches ev unless a status is already cached. Read paths use it so a
// lookup that raced a commit cannot replace the newer status the commit
// wrote. It reports whether ev was stored.
func (c *StatusCache) Fill(ctx context.Context, ev model.Event) (bool, error) {
	raw, err := json.Marshal(StatusOf(ev))
	if err != nil {
		return false, fmt.Errorf("encoding cached status: %w", err)
	}
	stored, err := c.rdb.SetNX(ctx, statusKey(ev.ItemID), raw, TTLStatus).Result()
	if err != nil {
		return false, fmt.Errorf("filling status cache: %w", err)
	}
	return stored, nil
}

// ItemChanged refreshes the cached status after a commit. Failures are
// logged; a stale entry expires on its own.
func (c *StatusCache) ItemChanged(ctx context.Context, item model.Item, ev model.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := c.Set(ctx, ev); err != nil {
		slog.Warn("status cache update failed", "item", item.ID, "error", err)
	}
}

// Ping checks that Redis is reachable.
func (c *StatusCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
