// Package service implements the request flows on top of a Repository:
// key issuance and revocation, and the rate-limited observation
// ingest/retrieve pair.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rescrv/brief-measure/internal/server/config"
	"github.com/rescrv/brief-measure/internal/shared/apperr"
	"github.com/rescrv/brief-measure/internal/shared/models"
)

// Repository is the durable store behind the service layer. Implementations
// live in repository/postgres and repository/sqlite.
type Repository interface {
	StoreAPIKey(ctx context.Context, key models.APIKey) error
	APIKeyExists(ctx context.Context, key models.APIKey) (bool, error)
	DeleteAPIKey(ctx context.Context, key models.APIKey) error

	CountRecentObservations(ctx context.Context, key models.APIKey, since time.Time) (int64, error)
	InsertObservation(ctx context.Context, key models.APIKey, id uuid.UUID, obs [models.ObservationLength]byte) error
	FetchObservations(ctx context.Context, key models.APIKey, limit int64) ([]models.Observation, error)
}

type Services struct {
	Keys         *KeysService
	Observations *ObservationsService
}

func NewServices(repo Repository, cfg config.Config) *Services {
	return &Services{
		Keys: &KeysService{repo: repo},
		Observations: &ObservationsService{
			repo:         repo,
			window:       cfg.ObservationWindow,
			windowCap:    cfg.ObservationWindowCap,
			defaultLimit: cfg.DefaultLimit,
			maxLimit:     cfg.MaxLimit,
			now:          time.Now,
		},
	}
}

// KeysService is the credential directory: issuance, the existence check
// every authenticated request goes through, and revoke-with-cascade.
type KeysService struct {
	repo Repository
}

func (s *KeysService) Issue(ctx context.Context) (models.APIKey, error) {
	key, err := models.GenerateAPIKey()
	if err != nil {
		return models.APIKey{}, err
	}
	if err := s.repo.StoreAPIKey(ctx, key); err != nil {
		return models.APIKey{}, apperr.Storage(err)
	}
	return key, nil
}

// Ensure fails with ErrUnauthorized unless key has been issued and not
// revoked. Unknown and malformed keys are indistinguishable to callers.
func (s *KeysService) Ensure(ctx context.Context, key models.APIKey) error {
	exists, err := s.repo.APIKeyExists(ctx, key)
	if err != nil {
		return apperr.Storage(err)
	}
	if !exists {
		return apperr.ErrUnauthorized
	}
	return nil
}

// Forget deletes the key; the store cascades deletion of every observation
// it owns. Forgetting an unknown key is a no-op.
func (s *KeysService) Forget(ctx context.Context, key models.APIKey) error {
	if err := s.repo.DeleteAPIKey(ctx, key); err != nil {
		return apperr.Storage(err)
	}
	return nil
}

// ObservationsService handles ingest and retrieval under the sliding-window
// admission cap. The admission check is check-then-act: two concurrent
// ingests can both pass the count and momentarily exceed the cap by up to
// the number of in-flight requests minus one. The cap is best-effort.
type ObservationsService struct {
	repo         Repository
	window       time.Duration
	windowCap    int64
	defaultLimit int64
	maxLimit     int64
	now          func() time.Time
}

// Ingest validates the submitted record, applies the admission window, and
// appends. Validation short-circuits before any store access.
func (s *ObservationsService) Ingest(ctx context.Context, key models.APIKey, in models.Observation) (models.Observation, error) {
	id, err := models.ParseUUIDv7(in.UUIDv7)
	if err != nil {
		return models.Observation{}, err
	}
	obs, err := models.ParseObservation(in.Observation)
	if err != nil {
		return models.Observation{}, err
	}

	since := s.now().Add(-s.window)
	recent, err := s.repo.CountRecentObservations(ctx, key, since)
	if err != nil {
		return models.Observation{}, apperr.Storage(err)
	}
	if recent >= s.windowCap {
		return models.Observation{}, apperr.ErrRateLimited
	}

	if err := s.repo.InsertObservation(ctx, key, id, obs); err != nil {
		return models.Observation{}, apperr.Storage(err)
	}
	return models.Observation{UUIDv7: id.String(), Observation: string(obs[:])}, nil
}

// Recent returns up to the normalized limit of records, newest first. A nil
// requested limit means the configured default.
func (s *ObservationsService) Recent(ctx context.Context, key models.APIKey, requested *int64) ([]models.Observation, error) {
	limit, err := models.ApplyLimit(requested, s.defaultLimit, s.maxLimit)
	if err != nil {
		return nil, err
	}
	out, err := s.repo.FetchObservations(ctx, key, limit)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if out == nil {
		out = []models.Observation{}
	}
	return out, nil
}
