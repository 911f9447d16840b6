package repo_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"goalpace/internal/db"
	"goalpace/internal/events"
	"goalpace/internal/migrate"
	"goalpace/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.New(conn)
	r.Now = func() time.Time { return time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestClaimOncePerPeriod(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	first, err := r.Claim(ctx, "routines", "2024-W05")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !first.Claimed || first.Level != 1 {
		t.Fatalf("unexpected first claim %+v", first)
	}
	again, err := r.Claim(ctx, "routines", "2024-W05")
	if err != nil {
		t.Fatalf("claim again: %v", err)
	}
	if again.Claimed || again.Level != 1 {
		t.Fatalf("second claim must not reward: %+v", again)
	}
	next, err := r.Claim(ctx, "routines", "2024-W06")
	if err != nil {
		t.Fatal(err)
	}
	if !next.Claimed || next.Level != 2 {
		t.Fatalf("level must be cumulative across periods: %+v", next)
	}
	other, err := r.Claim(ctx, "workouts", "2024-W05")
	if err != nil {
		t.Fatal(err)
	}
	if !other.Claimed || other.Level != 1 {
		t.Fatalf("pools must not share levels: %+v", other)
	}

	entry, err := r.Get(ctx, "routines", "2024-W05")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !entry.Claimed || entry.Level != 1 || entry.ClaimedAt != "2024-01-31T12:00:00Z" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if _, err := r.Get(ctx, "routines", "2024-W07"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	claims, err := r.ListClaims(ctx, "routines", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(claims) != 2 || claims[0].PeriodKey != "2024-W06" {
		t.Fatalf("unexpected claim history %+v", claims)
	}
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	const callers = 100

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		errs    []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := r.Claim(ctx, "routines", "2024-W05")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if res.Claimed {
				winners++
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("claims failed: %v", errs[0])
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	level, err := r.Level(ctx, "routines")
	if err != nil {
		t.Fatal(err)
	}
	if level != 1 {
		t.Fatalf("level must increase by exactly one, got %d", level)
	}
	evts, err := r.EventsAfter(ctx, 200, 0, events.TypeAchievementClaimed)
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected one claim event, got %d", len(evts))
	}
}

func TestClaimEventsCursor(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	for _, period := range []string{"2024-W01", "2024-W02", "2024-W03"} {
		if _, err := r.Claim(ctx, "workouts", period); err != nil {
			t.Fatal(err)
		}
	}
	latest, err := r.LatestEventID(ctx, events.TypeAchievementClaimed)
	if err != nil {
		t.Fatal(err)
	}
	if latest == 0 {
		t.Fatal("expected events to be recorded")
	}
	all, err := r.EventsAfter(ctx, 10, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	rest, err := r.EventsAfter(ctx, 10, all[0].ID, events.TypeAchievementClaimed)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 2 {
		t.Fatalf("expected 2 events after cursor, got %d", len(rest))
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(rest[1].Payload), &payload); err != nil {
		t.Fatal(err)
	}
	if payload["period_key"] != "2024-W03" || payload["level"].(float64) != 3 {
		t.Fatalf("unexpected payload %v", payload)
	}
	if lvl, _ := r.Level(ctx, "never-claimed"); lvl != 0 {
		t.Fatalf("unknown pool level should be 0, got %d", lvl)
	}
}
