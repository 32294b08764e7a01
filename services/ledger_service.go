package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"boleteria/config"
	"boleteria/internal/status"
	"boleteria/models"
	"boleteria/monitoring"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	tierRemainingPrefix = "tier:remaining:"
	reservationPrefix   = "resv:"
	reservationExpiry   = "resv:expiry"

	// committedResvTTL keeps a committed reservation hash around long enough
	// for repeated commit calls to stay idempotent.
	committedResvTTL = 24 * 60 * 60
)

// reserveScript is the compare-and-decrement at the core of the ledger. It
// runs as one atomic unit per tier: no two concurrent reservations can both
// pass the remaining check.
//
// KEYS[1] tier counter, KEYS[2] reservation hash, KEYS[3] expiry index
// ARGV[1] quantity, ARGV[2] token, ARGV[3] tier id, ARGV[4] expiry unix
// Returns {code, remaining}: 0 ok, -1 insufficient, -2 unknown tier.
const reserveScript = `
local remaining = redis.call('GET', KEYS[1])
if remaining == false then
  return {-2, -1}
end
remaining = tonumber(remaining)
local qty = tonumber(ARGV[1])
if remaining < qty then
  return {-1, remaining}
end
redis.call('DECRBY', KEYS[1], qty)
redis.call('HSET', KEYS[2], 'tier_id', ARGV[3], 'quantity', ARGV[1], 'committed', '0', 'expires_at', ARGV[4])
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[2])
return {0, remaining - qty}
`

// releaseScript restores capacity for an uncommitted reservation and removes
// it. Unknown tokens only drop their expiry entry (if any) so release stays
// idempotent and the sweep always drains.
//
// KEYS[1] reservation hash, KEYS[2] expiry index
// ARGV[1] tier counter prefix, ARGV[2] token
// Returns {code}: 0 released, 1 unknown token, 2 already committed.
const releaseScript = `
local vals = redis.call('HMGET', KEYS[1], 'tier_id', 'quantity', 'committed')
if not vals[1] then
  redis.call('ZREM', KEYS[2], ARGV[2])
  return {1}
end
if vals[3] == '1' then
  redis.call('ZREM', KEYS[2], ARGV[2])
  return {2}
end
redis.call('INCRBY', ARGV[1] .. vals[1], tonumber(vals[2]))
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[2])
return {0}
`

// commitScript finalizes a reservation: no capacity change, only lifecycle
// bookkeeping. Re-committing is a no-op; a missing token means the sweep
// already reclaimed it.
//
// KEYS[1] reservation hash, KEYS[2] expiry index
// ARGV[1] token, ARGV[2] committed hash TTL seconds
// Returns {code}: 0 committed, 1 already committed, -1 unknown/expired.
const commitScript = `
local committed = redis.call('HGET', KEYS[1], 'committed')
if committed == false then
  return {-1}
end
if committed == '1' then
  return {1}
end
redis.call('HSET', KEYS[1], 'committed', '1')
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return {0}
`

// adjustScript applies a relative capacity change without disturbing holds
// in flight. Fails when the shrink would cut below what is already reserved
// or sold.
//
// KEYS[1] tier counter
// ARGV[1] delta (may be negative)
// Returns {code, remaining}: 0 ok, -1 would go negative, -2 unknown tier.
const adjustScript = `
local remaining = redis.call('GET', KEYS[1])
if remaining == false then
  return {-2, -1}
end
remaining = tonumber(remaining)
local delta = tonumber(ARGV[1])
if remaining + delta < 0 then
  return {-1, remaining}
end
redis.call('INCRBY', KEYS[1], delta)
return {0, remaining + delta}
`

// LedgerService is the per-tier capacity ledger. Remaining counters live in
// Redis and move only through the scripts above.
type LedgerService struct {
	Redis    *redis.Client
	Config   *config.Config
	monitor  *monitoring.Monitor
	stopChan chan struct{}
	wg       sync.WaitGroup

	now      func() time.Time
	newToken func() string
}

func NewLedgerService(redisClient *redis.Client, cfg *config.Config, monitor *monitoring.Monitor) *LedgerService {
	return &LedgerService{
		Redis:    redisClient,
		Config:   cfg,
		monitor:  monitor,
		stopChan: make(chan struct{}),
		now:      time.Now,
		newToken: uuid.NewString,
	}
}

// SeedTier sets the live counter for a tier. Called when a tier is created
// and when its capacity is reconciled after a change.
func (s *LedgerService) SeedTier(ctx context.Context, tierID string, remaining int) error {
	return s.Redis.Set(ctx, tierRemainingPrefix+tierID, remaining, 0).Err()
}

// AdjustCapacity applies a relative change to the live counter, refusing
// shrinks that would cut under outstanding reservations.
func (s *LedgerService) AdjustCapacity(ctx context.Context, tierID string, delta int) error {
	result, err := s.Redis.Eval(ctx, adjustScript,
		[]string{tierRemainingPrefix + tierID},
		delta,
	).Result()
	if err != nil {
		return fmt.Errorf("ledger: adjust script: %w", err)
	}

	code, remaining := scriptPair(result)
	switch code {
	case -2:
		return status.ErrNotFound
	case -1:
		return &status.CapacityError{TierID: tierID, Requested: -delta, Remaining: int(remaining)}
	}
	return nil
}

// RestoreCapacity returns voided units to the live counter (merchant-policy
// refunds).
func (s *LedgerService) RestoreCapacity(ctx context.Context, tierID string, qty int) error {
	return s.Redis.IncrBy(ctx, tierRemainingPrefix+tierID, int64(qty)).Err()
}

// Remaining reads the live counter for a tier.
func (s *LedgerService) Remaining(ctx context.Context, tierID string) (int, error) {
	remaining, err := s.Redis.Get(ctx, tierRemainingPrefix+tierID).Int()
	if err == redis.Nil {
		return 0, status.ErrNotFound
	}
	return remaining, err
}

// Reserve atomically holds qty units of a tier. On success the returned
// reservation carries the token the caller must later commit or release.
func (s *LedgerService) Reserve(ctx context.Context, tierID string, qty int) (*models.Reservation, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("ledger: quantity must be positive, got %d", qty)
	}

	token := s.newToken()
	expiresAt := s.now().Add(s.Config.ReservationTTL)

	result, err := s.Redis.Eval(ctx, reserveScript,
		[]string{tierRemainingPrefix + tierID, reservationPrefix + token, reservationExpiry},
		qty, token, tierID, expiresAt.Unix(),
	).Result()
	if err != nil {
		s.track("reserve", "error")
		return nil, fmt.Errorf("ledger: reserve script: %w", err)
	}

	code, remaining := scriptPair(result)
	switch code {
	case -2:
		s.track("reserve", "unknown_tier")
		return nil, status.ErrNotFound
	case -1:
		s.track("reserve", "insufficient")
		return nil, &status.CapacityError{TierID: tierID, Requested: qty, Remaining: int(remaining)}
	}

	s.track("reserve", "success")
	return &models.Reservation{
		Token:     token,
		TierID:    tierID,
		Quantity:  qty,
		ExpiresAt: expiresAt,
	}, nil
}

// Release returns a reservation's units to the tier. Idempotent: releasing
// an unknown or already-released token is a no-op.
func (s *LedgerService) Release(ctx context.Context, token string) error {
	result, err := s.Redis.Eval(ctx, releaseScript,
		[]string{reservationPrefix + token, reservationExpiry},
		tierRemainingPrefix, token,
	).Result()
	if err != nil {
		s.track("release", "error")
		return fmt.Errorf("ledger: release script: %w", err)
	}

	code, _ := scriptPair(result)
	if code == 0 {
		s.track("release", "success")
	} else {
		s.track("release", "noop")
	}
	return nil
}

// Commit finalizes a reservation so the sweep can no longer reclaim it.
// Idempotent; a token the sweep already reclaimed reports expiry.
func (s *LedgerService) Commit(ctx context.Context, token string) error {
	result, err := s.Redis.Eval(ctx, commitScript,
		[]string{reservationPrefix + token, reservationExpiry},
		token, committedResvTTL,
	).Result()
	if err != nil {
		s.track("commit", "error")
		return fmt.Errorf("ledger: commit script: %w", err)
	}

	code, _ := scriptPair(result)
	if code == -1 {
		s.track("commit", "expired")
		return status.ErrReservationExpired
	}

	s.track("commit", "success")
	return nil
}

// StartSweeper runs the background loop that reclaims expired uncommitted
// reservations. One goroutine covers all tiers.
func (s *LedgerService) StartSweeper(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.Config.SweepInterval)
		defer ticker.Stop()

		slog.Info("reservation sweeper started", "interval", s.Config.SweepInterval)

		for {
			select {
			case <-ticker.C:
				s.sweepExpired(ctx)
			case <-s.stopChan:
				slog.Info("reservation sweeper stopping")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *LedgerService) sweepExpired(ctx context.Context) {
	start := time.Now()
	released := 0

	for {
		tokens, err := s.Redis.ZRangeByScore(ctx, reservationExpiry, &redis.ZRangeBy{
			Min:   "-inf",
			Max:   fmt.Sprintf("%d", s.now().Unix()),
			Count: 100,
		}).Result()
		if err != nil {
			slog.Error("sweep: reading expiry index", "error", err)
			break
		}
		if len(tokens) == 0 {
			break
		}

		for _, token := range tokens {
			if err := s.Release(ctx, token); err != nil {
				slog.Error("sweep: releasing reservation", "token", token, "error", err)
				continue
			}
			released++
		}
	}

	if s.monitor != nil {
		s.monitor.TrackSweep(time.Since(start))
	}
	if released > 0 {
		slog.Info("sweep reclaimed expired reservations", "count", released)
	}
}

// Shutdown stops the sweeper and waits for it to finish.
func (s *LedgerService) Shutdown() {
	close(s.stopChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		slog.Warn("timeout waiting for sweeper to stop")
	}
}

func (s *LedgerService) track(operation, outcome string) {
	if s.monitor != nil {
		s.monitor.TrackReservation(operation, outcome)
	}
}

// scriptPair unpacks the {code, value} tables the ledger scripts return.
func scriptPair(result interface{}) (int64, int64) {
	values, ok := result.([]interface{})
	if !ok || len(values) == 0 {
		return 0, 0
	}
	code, _ := values[0].(int64)
	var value int64
	if len(values) > 1 {
		value, _ = values[1].(int64)
	}
	return code, value
}
