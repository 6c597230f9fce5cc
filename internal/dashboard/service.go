package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/frahmantamala/clinic-management/internal/cache"
)

type RepositoryAPI interface {
	CountPatients(ctx context.Context) (int64, error)
	CountUsers(ctx context.Context) (int64, error)
	CountPatientsCreatedBetween(ctx context.Context, from, to time.Time) (int64, error)
	RecentPatients(ctx context.Context, limit int) ([]PatientRow, error)
}

type Service struct {
	repo   RepositoryAPI
	cache  cache.Store
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

type ServiceOption func(*Service)

func WithTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(repo RepositoryAPI, store cache.Store, logger *slog.Logger, opts ...ServiceOption) *Service {
	if store == nil {
		store = cache.Nop{}
	}
	s := &Service{
		repo:   repo,
		cache:  store,
		ttl:    defaultTTL,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns the cached summary when present, otherwise recomputes and caches it.
// Cache failures are logged and never fail the request.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	if raw, ok, err := s.cache.Get(ctx, StatsKey); err != nil {
		s.logger.Warn("failed to read dashboard cache", "error", err)
	} else if ok {
		var cached Stats
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return &cached, nil
		}
		s.logger.Warn("discarding malformed dashboard cache entry")
	}

	stats, err := s.compute(ctx)
	if err != nil {
		s.logger.Error("failed to compute dashboard stats", "error", err)
		return nil, err
	}

	if payload, err := json.Marshal(stats); err == nil {
		if err := s.cache.Set(ctx, StatsKey, string(payload), s.ttl); err != nil {
			s.logger.Warn("failed to cache dashboard stats", "error", err)
		}
	}
	return stats, nil
}

// InvalidateStats drops the cached summary.
func (s *Service) InvalidateStats(ctx context.Context) {
	if err := s.cache.Delete(ctx, StatsKey); err != nil {
		s.logger.Warn("failed to invalidate dashboard stats", "error", err)
	}
}

func (s *Service) compute(ctx context.Context) (*Stats, error) {
	patients, err := s.repo.CountPatients(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	from, to := MonthRange(s.now())
	fresh, err := s.repo.CountPatientsCreatedBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.RecentPatients(ctx, recentLimit)
	if err != nil {
		return nil, err
	}

	recent := make([]RecentPatient, 0, len(rows))
	for _, r := range rows {
		recent = append(recent, r.toRecent())
	}
	return &Stats{
		TotalPatients:        patients,
		TotalUsers:           users,
		NewPatientsThisMonth: fresh,
		RecentPatients:       recent,
	}, nil
}
