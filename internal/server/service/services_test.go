package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rescrv/brief-measure/internal/server/config"
	"github.com/rescrv/brief-measure/internal/server/repository/sqlite"
	"github.com/rescrv/brief-measure/internal/shared/apperr"
	"github.com/rescrv/brief-measure/internal/shared/models"
)

func testConfig() config.Config {
	return config.Config{
		ObservationWindow:    24 * time.Hour,
		ObservationWindowCap: 2,
		DefaultLimit:         90,
		MaxLimit:             90,
	}
}

func newTestServices(t *testing.T, cfg config.Config) *Services {
	t.Helper()
	repo, err := sqlite.New("file:"+t.Name()+"?mode=memory&cache=shared", 5*time.Second)
	if err != nil {
		t.Fatalf("repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return NewServices(repo, cfg)
}

func issueKey(t *testing.T, svcs *Services) models.APIKey {
	t.Helper()
	key, err := svcs.Keys.Issue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func v7String(t *testing.T) string {
	t.Helper()
	id, err := uuid.NewV7()
	if err != nil {
		t.Fatal(err)
	}
	return id.String()
}

func TestIssueAndEnsure(t *testing.T) {
	svcs := newTestServices(t, testConfig())
	ctx := context.Background()

	key := issueKey(t, svcs)
	if err := svcs.Keys.Ensure(ctx, key); err != nil {
		t.Fatalf("issued key should pass Ensure: %v", err)
	}

	unknown, err := models.GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	if err := svcs.Keys.Ensure(ctx, unknown); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("unknown key: want ErrUnauthorized, got %v", err)
	}
}

func TestIngestEchoesStoredRecord(t *testing.T) {
	svcs := newTestServices(t, testConfig())
	ctx := context.Background()
	key := issueKey(t, svcs)

	id := v7String(t)
	stored, err := svcs.Observations.Ingest(ctx, key, models.Observation{UUIDv7: id, Observation: "1234123412"})
	if err != nil {
		t.Fatal(err)
	}
	if stored.UUIDv7 != id || stored.Observation != "1234123412" {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestIngestValidationShortCircuits(t *testing.T) {
	svcs := newTestServices(t, testConfig())
	ctx := context.Background()
	key := issueKey(t, svcs)

	v4 := uuid.New().String()
	_, err := svcs.Observations.Ingest(ctx, key, models.Observation{UUIDv7: v4, Observation: "1234123412"})
	if !errors.Is(err, apperr.ErrInvalidUUID) {
		t.Fatalf("v4 uuid: want ErrInvalidUUID, got %v", err)
	}

	_, err = svcs.Observations.Ingest(ctx, key, models.Observation{UUIDv7: v7String(t), Observation: "12345"})
	if !errors.Is(err, apperr.ErrInvalidObservation) {
		t.Fatalf("short obs: want ErrInvalidObservation, got %v", err)
	}

	// Nothing reached the store.
	got, err := svcs.Observations.Recent(ctx, key, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("store should be empty, got %v", got)
	}
}

func TestIngestWindowCap(t *testing.T) {
	svcs := newTestServices(t, testConfig())
	ctx := context.Background()
	key := issueKey(t, svcs)

	base := time.Now()
	svcs.Observations.now = func() time.Time { return base }

	for i := 0; i < 2; i++ {
		_, err := svcs.Observations.Ingest(ctx, key, models.Observation{UUIDv7: v7String(t), Observation: "1234123412"})
		if err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}

	_, err := svcs.Observations.Ingest(ctx, key, models.Observation{UUIDv7: v7String(t), Observation: "1234123412"})
	if !errors.Is(err, apperr.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}

	// Once the window has elapsed, ingest succeeds again.
	svcs.Observations.now = func() time.Time { return base.Add(25 * time.Hour) }
	_, err = svcs.Observations.Ingest(ctx, key, models.Observation{UUIDv7: v7String(t), Observation: "1234123412"})
	if err != nil {
		t.Fatalf("post-window ingest: %v", err)
	}
}

// TestConcurrentIngest exercises the check-then-act admission boundary. The
// cap is best-effort: concurrent requests that all read a below-cap count may
// each insert, so the admitted total can land anywhere between the cap and
// cap+workers-1. Every rejection must be a rate-limit error.
func TestConcurrentIngest(t *testing.T) {
	cfg := testConfig()
	cfg.ObservationWindowCap = 3
	svcs := newTestServices(t, cfg)
	ctx := context.Background()
	key := issueKey(t, svcs)

	const workers = 8
	// UUIDs are generated up front: worker goroutines must not call t.Fatal.
	ids := make([]string, workers)
	for i := range ids {
		ids[i] = v7String(t)
	}
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svcs.Observations.Ingest(ctx, key, models.Observation{UUIDv7: id, Observation: "1234123412"})
			errCh <- err
		}(ids[i])
	}
	wg.Wait()
	close(errCh)

	var admitted, limited int64
	for err := range errCh {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, apperr.ErrRateLimited):
			limited++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if admitted < cfg.ObservationWindowCap || admitted > cfg.ObservationWindowCap+workers-1 {
		t.Fatalf("admitted = %d, want within [%d, %d]", admitted, cfg.ObservationWindowCap, cfg.ObservationWindowCap+workers-1)
	}
	if admitted+limited != workers {
		t.Fatalf("admitted %d + limited %d != %d", admitted, limited, workers)
	}
}

func TestRecentOrderingAndLimit(t *testing.T) {
	svcs := newTestServices(t, testConfig())
	ctx := context.Background()
	key := issueKey(t, svcs)

	var ids []string
	for i := 0; i < 2; i++ {
		id := v7String(t)
		ids = append(ids, id)
		if _, err := svcs.Observations.Ingest(ctx, key, models.Observation{UUIDv7: id, Observation: "1234123412"}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	got, err := svcs.Observations.Recent(ctx, key, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].UUIDv7 != ids[1] || got[1].UUIDv7 != ids[0] {
		t.Fatalf("order wrong: %v", got)
	}

	one := int64(1)
	got, err = svcs.Observations.Recent(ctx, key, &one)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].UUIDv7 != ids[1] {
		t.Fatalf("limit 1: %v", got)
	}

	for _, bad := range []int64{0, -1, 91} {
		b := bad
		if _, err := svcs.Observations.Recent(ctx, key, &b); !errors.Is(err, apperr.ErrInvalidLimit) {
			t.Fatalf("limit %d: want ErrInvalidLimit, got %v", bad, err)
		}
	}
}

func TestForgetRevokesAndPurges(t *testing.T) {
	svcs := newTestServices(t, testConfig())
	ctx := context.Background()
	key := issueKey(t, svcs)

	if _, err := svcs.Observations.Ingest(ctx, key, models.Observation{UUIDv7: v7String(t), Observation: "1234123412"}); err != nil {
		t.Fatal(err)
	}
	if err := svcs.Keys.Forget(ctx, key); err != nil {
		t.Fatal(err)
	}
	if err := svcs.Keys.Ensure(ctx, key); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("forgotten key: want ErrUnauthorized, got %v", err)
	}
	// Forgetting again is a no-op.
	if err := svcs.Keys.Forget(ctx, key); err != nil {
		t.Fatalf("second forget: %v", err)
	}

	// The store stays usable after the cascade, and the old records are gone
	// even for the original key value.
	if _, err := svcs.Keys.Issue(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := svcs.Observations.Recent(ctx, key, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("records survived revocation: %v", got)
	}
}

func TestCrossKeyIsolation(t *testing.T) {
	svcs := newTestServices(t, testConfig())
	ctx := context.Background()
	a := issueKey(t, svcs)
	b := issueKey(t, svcs)

	if _, err := svcs.Observations.Ingest(ctx, a, models.Observation{UUIDv7: v7String(t), Observation: "1234123412"}); err != nil {
		t.Fatal(err)
	}
	got, err := svcs.Observations.Recent(ctx, b, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("key B sees key A's records: %v", got)
	}
}
