package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	crmjobs "github.com/kirim-crm/kirim-crm/internal/crm/jobs"
	"github.com/kirim-crm/kirim-crm/internal/crm/customers"
)

// Stats summarizes the operation for the landing page.
type Stats struct {
	TotalCustomers int `json:"total_customers"`
	TotalJobs      int `json:"total_jobs"`
	NewJobs        int `json:"new_jobs"`
	InProgressJobs int `json:"in_progress_jobs"`
	DoneJobs       int `json:"done_jobs"`
}

const statsCacheKey = "dashboard:stats"

// Service computes dashboard statistics with a short Redis cache in front,
// so the landing page does not hit Postgres on every navigation.
type Service struct {
	customers *customers.Repository
	jobs      *crmjobs.Repository
	cache     *redis.Client
	ttl       time.Duration
	logger    *slog.Logger
}

// NewService constructs a Service.
func NewService(customerRepo *customers.Repository, jobRepo *crmjobs.Repository, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{
		customers: customerRepo,
		jobs:      jobRepo,
		cache:     cache,
		ttl:       ttl,
		logger:    logger,
	}
}

// Stats returns the current statistics, serving from cache when fresh.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, statsCacheKey).Bytes(); err == nil {
			var cached Stats
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		}
	}

	stats, err := s.compute(ctx)
	if err != nil {
		return Stats{}, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, statsCacheKey, raw, s.ttl).Err(); err != nil && s.logger != nil {
				s.logger.Warn("cache dashboard stats", slog.Any("error", err))
			}
		}
	}
	return stats, nil
}

// Invalidate drops the cached statistics.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statsCacheKey).Err(); err != nil && s.logger != nil {
		s.logger.Warn("invalidate dashboard cache", slog.Any("error", err))
	}
}

func (s *Service) compute(ctx context.Context) (Stats, error) {
	total, err := s.customers.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	counts, err := s.jobs.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalCustomers: total,
		TotalJobs:      counts[crmjobs.StatusNew] + counts[crmjobs.StatusInProgress] + counts[crmjobs.StatusDone],
		NewJobs:        counts[crmjobs.StatusNew],
		InProgressJobs: counts[crmjobs.StatusInProgress],
		DoneJobs:       counts[crmjobs.StatusDone],
	}, nil
}
