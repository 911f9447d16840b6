// Package redisstore keeps the achievement ledger in Redis for deployments
// running several engine instances against one shared store.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"goalpace/internal/domain"
)

const defaultPrefix = "goalpace"

// claimScript marks the period and bumps the level atomically on the server.
// KEYS: claims hash, level counter, claimed-at hash. ARGV: period key, timestamp.
var claimScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
  return {0, tonumber(redis.call('GET', KEYS[2]) or '0')}
end
local level = redis.call('INCR', KEYS[2])
redis.call('HSET', KEYS[1], ARGV[1], level)
redis.call('HSET', KEYS[3], ARGV[1], ARGV[2])
return {1, level}
`)

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type Store struct {
	Client redis.UniversalClient
	Prefix string
	Now    func() time.Time
}

func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{Client: client, Prefix: prefix, Now: time.Now}
}

// keys share a hash tag per pool so the script stays single-slot on a cluster.
func (s *Store) keys(pool string) (claims, level, claimedAt string) {
	base := fmt.Sprintf("%s:{%s}", s.Prefix, pool)
	return base + ":claims", base + ":level", base + ":claimed_at"
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) Claim(ctx context.Context, pool, periodKey string) (domain.ClaimResult, error) {
	claims, level, claimedAt := s.keys(pool)
	ts := s.now().UTC().Format(time.RFC3339)
	vals, err := claimScript.Run(ctx, s.Client, []string{claims, level, claimedAt}, periodKey, ts).Int64Slice()
	if err != nil {
		return domain.ClaimResult{}, fmt.Errorf("redis claim: %w", err)
	}
	if len(vals) != 2 {
		return domain.ClaimResult{}, fmt.Errorf("redis claim: unexpected reply %v", vals)
	}
	return domain.ClaimResult{Claimed: vals[0] == 1, Level: int(vals[1])}, nil
}

func (s *Store) Get(ctx context.Context, pool, periodKey string) (domain.LedgerEntry, error) {
	claims, _, claimedAt := s.keys(pool)
	raw, err := s.Client.HGet(ctx, claims, periodKey).Result()
	if errors.Is(err, redis.Nil) {
		return domain.LedgerEntry{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	level, err := strconv.Atoi(raw)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("redis ledger level %q: %w", raw, err)
	}
	at, err := s.Client.HGet(ctx, claimedAt, periodKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.LedgerEntry{}, err
	}
	return domain.LedgerEntry{
		Pool:      pool,
		PeriodKey: periodKey,
		Claimed:   true,
		Level:     level,
		ClaimedAt: at,
	}, nil
}

func (s *Store) Level(ctx context.Context, pool string) (int, error) {
	_, level, _ := s.keys(pool)
	n, err := s.Client.Get(ctx, level).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
