package service

import (
	"context"
	"time"

	appErr "coderunner/pkg/errors"
)

func (s *Service) acquireSlot(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return appErr.Wrapf(ctx.Err(), appErr.Timeout, "waiting for a free worker was cancelled")
	case <-time.After(s.queueTimeout):
		return appErr.New(appErr.ServiceUnavailable).WithMessage("worker pool is full")
	}
}

func (s *Service) releaseSlot() {
	select {
	case <-s.sem:
	default:
	}
}
