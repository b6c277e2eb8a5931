package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/quick-commerce/internal/core/domain"
	"github.com/rl1809/quick-commerce/internal/port"
)

const (
	stockKeyPrefix        = "stock:"
	idempotencyKeyTTL     = 24 * time.Hour
	discrepancyHashKey    = "reconcile:discrepancies"
	discrepancyPendingKey = "reconcile:pending"
)

var decrementStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return 0
end

current = tonumber(current)
if current >= quantity then
	redis.call('DECRBY', key, quantity)
	return 1
end

return 0
`)

// every key is checked before any is decremented
var reserveLinesScript = redis.NewScript(`
for i, key in ipairs(KEYS) do
	local current = redis.call('GET', key)
	if not current or tonumber(current) < tonumber(ARGV[i]) then
		return 0
	end
end

for i, key in ipairs(KEYS) do
	redis.call('DECRBY', key, tonumber(ARGV[i]))
end

return 1
`)

type RedisAdapter struct {
	client         *redis.Client
	idempotencyTTL time.Duration
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client, idempotencyTTL: idempotencyKeyTTL}
}

func (r *RedisAdapter) WithIdempotencyTTL(ttl time.Duration) *RedisAdapter {
	if ttl > 0 {
		r.idempotencyTTL = ttl
	}
	return r
}

// stockKey wraps the store id in a hash tag so that all keys of one store
// land in the same cluster slot and can share a script.
func stockKey(storeID, productID string) string {
	return stockKeyPrefix + "{" + storeID + "}:" + productID
}

func (r *RedisAdapter) CheckAvailability(ctx context.Context, storeID, productID string) (int, error) {
	n, err := r.client.Get(ctx, stockKey(storeID, productID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *RedisAdapter) ReserveAndDecrement(ctx context.Context, storeID, productID string, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, ErrInvalidQuantity
	}

	result, err := decrementStockScript.Run(ctx, r.client, []string{stockKey(storeID, productID)}, quantity).Int()
	if err != nil {
		return false, err
	}

	return result == 1, nil
}

func (r *RedisAdapter) ReserveLines(ctx context.Context, storeID string, lines []domain.LineItem) (bool, error) {
	lines = domain.MergeLines(lines)
	if len(lines) == 0 {
		return true, nil
	}

	keys := make([]string, 0, len(lines))
	args := make([]interface{}, 0, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return false, ErrInvalidQuantity
		}
		keys = append(keys, stockKey(storeID, l.ProductID))
		args = append(args, l.Quantity)
	}

	result, err := reserveLinesScript.Run(ctx, r.client, keys, args...).Int()
	if err != nil {
		return false, err
	}

	return result == 1, nil
}

func (r *RedisAdapter) Restock(ctx context.Context, storeID, productID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return r.client.IncrBy(ctx, stockKey(storeID, productID), int64(quantity)).Err()
}

func (r *RedisAdapter) SetStock(ctx context.Context, storeID, productID string, quantity int) error {
	return r.client.Set(ctx, stockKey(storeID, productID), quantity, 0).Err()
}

// LoadStock seeds Redis from the snapshot. Keys that already exist are
// skipped: once loaded, Redis holds the live count and a restart must not
// put sold units back.
func (r *RedisAdapter) LoadStock(ctx context.Context, snapshot port.InventorySnapshot) (loaded, skipped int, err error) {
	records, err := snapshot.ListInventory(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list inventory: %w", err)
	}

	cmds := make([]*redis.BoolCmd, 0, len(records))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range records {
			cmds = append(cmds, pipe.SetNX(ctx, stockKey(rec.StoreID, rec.ProductID), rec.Quantity, 0))
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("load stock: %w", err)
	}

	for _, cmd := range cmds {
		if cmd.Val() {
			loaded++
		} else {
			skipped++
		}
	}
	return loaded, skipped, nil
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, r.idempotencyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisAdapter) RecordDiscrepancy(ctx context.Context, d domain.Discrepancy) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, discrepancyHashKey, d.ID, data)
		pipe.SAdd(ctx, discrepancyPendingKey, d.ID)
		return nil
	})
	return err
}

func (r *RedisAdapter) ListPending(ctx context.Context) ([]domain.Discrepancy, error) {
	ids, err := r.client.SMembers(ctx, discrepancyPendingKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.Discrepancy{}, nil
	}

	values, err := r.client.HMGet(ctx, discrepancyHashKey, ids...).Result()
	if err != nil {
		return nil, err
	}

	pending := make([]domain.Discrepancy, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var d domain.Discrepancy
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("decode discrepancy %s: %w", ids[i], err)
		}
		pending = append(pending, d)
	}
	sortDiscrepancies(pending)
	return pending, nil
}

// MarkResolved claims a pending discrepancy. Only the caller whose SREM
// removes the id gets it back; everyone else sees nil.
func (r *RedisAdapter) MarkResolved(ctx context.Context, id string) (*domain.Discrepancy, error) {
	removed, err := r.client.SRem(ctx, discrepancyPendingKey, id).Result()
	if err != nil {
		return nil, err
	}
	if removed == 0 {
		return nil, nil
	}

	raw, err := r.client.HGet(ctx, discrepancyHashKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var d domain.Discrepancy
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("decode discrepancy %s: %w", id, err)
	}
	now := time.Now().UTC()
	d.ResolvedAt = &now

	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	if err := r.client.HSet(ctx, discrepancyHashKey, id, data).Err(); err != nil {
		return nil, err
	}
	return &d, nil
}
