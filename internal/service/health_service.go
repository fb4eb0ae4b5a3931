package service

import (
	"context"
	"sync"
	"time"

	"planwise/internal/llm"
)

// HealthStatus aggregates scheduler liveness and provider reachability.
// Provider unreachability is informational only.
type HealthStatus struct {
	LastTick          time.Time `json:"last_tick"`
	SchedulerHealthy  bool      `json:"scheduler_healthy"`
	ProviderReachable bool      `json:"provider_reachable"`
	ProviderError     string    `json:"provider_error,omitempty"`
}

// HealthService tracks the last successful evaluator tick and checks the
// completion provider on demand.
type HealthService struct {
	mu           sync.RWMutex
	lastTick     time.Time
	tickInterval time.Duration
	provider     llm.Provider
}

func NewHealthService(tickInterval time.Duration, provider llm.Provider) *HealthService {
	return &HealthService{tickInterval: tickInterval, provider: provider}
}

// MarkTick records a successful evaluator pass.
func (s *HealthService) MarkTick(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTick = at
}

// Status reports current health. The scheduler counts as healthy when the
// last tick is within three intervals of now.
func (s *HealthService) Status(ctx context.Context) HealthStatus {
	s.mu.RLock()
	lastTick := s.lastTick
	s.mu.RUnlock()

	status := HealthStatus{
		LastTick:         lastTick,
		SchedulerHealthy: !lastTick.IsZero() && time.Since(lastTick) < 3*s.tickInterval,
	}

	if s.provider != nil {
		if err := s.provider.Ping(ctx); err != nil {
			status.ProviderError = err.Error()
		} else {
			status.ProviderReachable = true
		}
	}
	return status
}
