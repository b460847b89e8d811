package job

import (
	"context"
	"fmt"
	"time"

	rds "reviewforge/internal/platform/redis"
	"reviewforge/internal/types"
)

type Service struct{ redis *rds.Service }

func NewService(redis *rds.Service) *Service { return &Service{redis: redis} }

func (s *Service) GetStatus(ctx context.Context, jobID string) (*Job, error) {
	var j Job
	if err := s.redis.CacheGet(ctx, key(jobID), &j); err != nil {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	return &j, nil
}

func (s *Service) InitPending(ctx context.Context, jobID string) error {
	return s.store(ctx, jobID, StatusPending, JobResult{})
}

func (s *Service) SetProcessing(ctx context.Context, jobID string) error {
	return s.store(ctx, jobID, StatusProcessing, JobResult{})
}

func (s *Service) Complete(ctx context.Context, jobID string, review *types.ComposedReview) error {
	return s.store(ctx, jobID, StatusCompleted, JobResult{Review: review})
}

func (s *Service) Fail(ctx context.Context, jobID string, errMsg string) error {
	return s.store(ctx, jobID, StatusFailed, JobResult{Error: errMsg})
}

func (s *Service) store(ctx context.Context, jobID string, status Status, result JobResult) error {
	j := Job{JobID: jobID, Type: TypeCompose, Status: status, Results: result}
	return s.redis.CacheSet(ctx, key(jobID), j, ttl(status))
}

func key(id string) string { return "reviewjob:" + id }

func ttl(s Status) time.Duration {
	if s == StatusCompleted || s == StatusFailed {
		return time.Hour
	}
	return 10 * time.Minute
}
