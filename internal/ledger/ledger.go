// Package ledger awards pool achievements at most once per period.
//
// The cumulative level of a pool lives in the backing Store, never in process
// memory, because several stateless engine instances may claim concurrently.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"goalpace/internal/domain"
)

// Store is the atomic backing store for ledger entries.
//
// Claim must mark (pool, periodKey) claimed and increment the pool level in a
// single atomic step, so exactly one concurrent caller observes Claimed=true.
type Store interface {
	Get(ctx context.Context, pool, periodKey string) (domain.LedgerEntry, error)
	Claim(ctx context.Context, pool, periodKey string) (domain.ClaimResult, error)
	Level(ctx context.Context, pool string) (int, error)
}

type Ledger struct {
	Store  Store
	Logger *log.Logger
}

func New(store Store, logger *log.Logger) Ledger {
	return Ledger{Store: store, Logger: logger}
}

func (l Ledger) logger() *log.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return log.Default()
}

// Claim returns Claimed=true only for the caller that should announce the
// reward. Claimed=false means someone already did; it is not an error.
func (l Ledger) Claim(ctx context.Context, pool, periodKey string) (domain.ClaimResult, error) {
	pool, periodKey, err := normalize(pool, periodKey)
	if err != nil {
		return domain.ClaimResult{}, err
	}
	res, err := l.Store.Claim(ctx, pool, periodKey)
	if err != nil {
		return domain.ClaimResult{}, fmt.Errorf("claim %s/%s: %w", pool, periodKey, err)
	}
	if res.Claimed {
		l.logger().Info("achievement claimed", "pool", pool, "period", periodKey, "level", res.Level)
	} else {
		l.logger().Debug("achievement already claimed", "pool", pool, "period", periodKey, "level", res.Level)
	}
	return res, nil
}

// Entry returns the ledger entry for (pool, periodKey), or an unclaimed entry
// carrying the pool's current level when none exists yet.
func (l Ledger) Entry(ctx context.Context, pool, periodKey string) (domain.LedgerEntry, error) {
	pool, periodKey, err := normalize(pool, periodKey)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	entry, err := l.Store.Get(ctx, pool, periodKey)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.LedgerEntry{}, err
	}
	level, err := l.Store.Level(ctx, pool)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	return domain.LedgerEntry{Pool: pool, PeriodKey: periodKey, Level: level}, nil
}

func (l Ledger) Level(ctx context.Context, pool string) (int, error) {
	pool = strings.TrimSpace(pool)
	if pool == "" {
		return 0, domain.ErrInvalidPool
	}
	return l.Store.Level(ctx, pool)
}

func normalize(pool, periodKey string) (string, string, error) {
	pool = strings.TrimSpace(pool)
	periodKey = strings.TrimSpace(periodKey)
	if pool == "" {
		return "", "", domain.ErrInvalidPool
	}
	if periodKey == "" {
		return "", "", domain.ErrInvalidPeriodKey
	}
	return pool, periodKey, nil
}
