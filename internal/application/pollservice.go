package application

import (
	"context"
	"log/slog"
	"time"
)

// refresher is the subset of CampaignService the poll loop drives.
type refresher interface {
	Refresh(ctx context.Context) (RefreshSummary, error)
}

// refreshResult carries the outcome of a manual refresh back to the caller.
type refreshResult struct {
	summary RefreshSummary
	err     error
}

// refreshRequest represents a manual refresh trigger.
type refreshRequest struct {
	done chan refreshResult
}

// PollService runs campaign refreshes on a fixed interval and serves manual
// refresh requests from the same goroutine, so cycles never overlap.
type PollService struct {
	campaigns refresher
	interval  time.Duration
	refreshCh chan refreshRequest
}

// NewPollService creates a PollService that refreshes every interval.
func NewPollService(campaigns refresher, interval time.Duration) *PollService {
	return &PollService{
		campaigns: campaigns,
		interval:  interval,
		refreshCh: make(chan refreshRequest),
	}
}

// Start runs an immediate refresh, then refreshes on the configured interval.
// It also listens for manual refresh requests. Start blocks until the context
// is canceled.
func (s *PollService) Start(ctx context.Context) {
	if _, err := s.campaigns.Refresh(ctx); err != nil {
		slog.Error("initial refresh failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poll service stopped")
			return
		case <-ticker.C:
			if _, err := s.campaigns.Refresh(ctx); err != nil {
				slog.Error("refresh cycle failed", "error", err)
			}
		case req := <-s.refreshCh:
			summary, err := s.campaigns.Refresh(ctx)
			req.done <- refreshResult{summary: summary, err: err}
		}
	}
}

// RefreshNow triggers a refresh outside the polling interval. It blocks until
// the refresh completes or the context is canceled.
func (s *PollService) RefreshNow(ctx context.Context) (RefreshSummary, error) {
	req := refreshRequest{done: make(chan refreshResult, 1)}

	select {
	case s.refreshCh <- req:
	case <-ctx.Done():
		return RefreshSummary{}, ctx.Err()
	}

	select {
	case res := <-req.done:
		return res.summary, res.err
	case <-ctx.Done():
		return RefreshSummary{}, ctx.Err()
	}
}
