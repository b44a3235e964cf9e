// Package catalog serves the resale service list. Reads go through a
// redis cache with a short TTL; cache trouble degrades to the database.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"brandotp/internal/app/apperr"
	"brandotp/internal/app/logger"
	"brandotp/internal/app/model"
	"brandotp/internal/app/storage"
)

const cacheTTL = 5 * time.Minute

type Service struct {
	services storage.ServiceRepository
	cache    *redis.Client
}

func (s *Service) LoggerComponent() string {
	return "Catalog.Service"
}

func New(services storage.ServiceRepository, cache *redis.Client) *Service {
	return &Service{
		services: services,
		cache:    cache,
	}
}

func cacheKey(id uuid.UUID) string {
	return "service:" + id.String()
}

// GetActive returns the service if it exists and is active. An inactive
// service is indistinguishable from an absent one, both fail with
// apperr.ErrNotFound.
func (s *Service) GetActive(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	m, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !m.Active() {
		return nil, fmt.Errorf("%w: service is not active", apperr.ErrNotFound)
	}

	return m, nil
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	l := logger.Get(ctx, s)

	if s.cache != nil {
		raw, err := s.cache.Get(ctx, cacheKey(id)).Bytes()
		if err == nil {
			m := &model.Service{}
			if err := json.Unmarshal(raw, m); err == nil {
				return m, nil
			}
		} else if err != redis.Nil {
			l.Debug().Err(err).Msg("Cache read failed")
		}
	}

	m, err := s.services.Read(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cachePut(ctx, m)

	return m, nil
}

func (s *Service) cachePut(ctx context.Context, m *model.Service) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return
	}

	if err := s.cache.Set(ctx, cacheKey(m.ID), raw, cacheTTL).Err(); err != nil {
		l := logger.Get(ctx, s)
		l.Debug().Err(err).Msg("Cache write failed")
	}
}

func (s *Service) cacheDrop(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Del(ctx, cacheKey(id)).Err(); err != nil {
		l := logger.Get(ctx, s)
		l.Debug().Err(err).Msg("Cache invalidation failed")
	}
}

// ListActive returns all active services.
func (s *Service) ListActive(ctx context.Context) ([]*model.Service, error) {
	return s.services.All(ctx, true)
}

// ListAll returns every service, including inactive ones. Admin use.
func (s *Service) ListAll(ctx context.Context) ([]*model.Service, error) {
	return s.services.All(ctx, false)
}

// Create a catalog entry. Admin use.
func (s *Service) Create(ctx context.Context, m *model.Service) (*model.Service, error) {
	if m.Name == "" || !m.Price.IsPositive() {
		return nil, fmt.Errorf("%w: name and positive price required", apperr.ErrInvalidInput)
	}

	return s.services.Create(ctx, m)
}

// Update a catalog entry and drop its cached copy. Admin use.
func (s *Service) Update(ctx context.Context, m *model.Service) (*model.Service, error) {
	if m.Name == "" || !m.Price.IsPositive() {
		return nil, fmt.Errorf("%w: name and positive price required", apperr.ErrInvalidInput)
	}

	res, err := s.services.Update(ctx, m)
	if err != nil {
		return nil, err
	}

	s.cacheDrop(ctx, m.ID)

	return res, nil
}

// Delete a catalog entry and drop its cached copy. Admin use.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.services.Delete(ctx, id); err != nil {
		return err
	}

	s.cacheDrop(ctx, id)

	return nil
}
