package health

import (
	"context"
	"time"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/types"
)

// CheckType names the protocol a checker speaks
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
)

// Result is the outcome of a single probe
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

func observed(start time.Time, healthy bool, message string) Result {
	return Result{Healthy: healthy, Message: message, CheckedAt: start, Duration: time.Since(start)}
}

// Checker probes one aspect of the public endpoint
type Checker interface {
	Check(ctx context.Context) Result
	Type() CheckType
	Target() string
}

// Config holds the timing and thresholds applied to every checker
type Config struct {
	Interval           time.Duration
	Timeout            time.Duration
	HealthyThreshold   int
	UnhealthyThreshold int
}

// ConfigFromPolicy applies the target group's health check policy, so a
// verification reaches the same verdict the load balancer would
func ConfigFromPolicy(p types.HealthCheckPolicy) Config {
	return Config{
		Interval:           p.Interval,
		Timeout:            p.Timeout,
		HealthyThreshold:   p.HealthyThreshold,
		UnhealthyThreshold: p.UnhealthyThreshold,
	}
}

// State is the verdict of a run of probes
type State string

const (
	StateInitial   State = "initial"
	StateHealthy   State = "healthy"
	StateUnhealthy State = "unhealthy"
)

// Status counts the streak of one checker. It stays initial until a streak
// reaches the matching threshold; a result of the other kind resets it.
type Status struct {
	State      State
	Attempts   int
	Streak     int
	LastResult Result
}

// NewStatus returns a Status in the initial state
func NewStatus() *Status {
	return &Status{State: StateInitial}
}

// Update records a result against the thresholds of cfg
func (s *Status) Update(result Result, cfg Config) {
	passing := s.Attempts > 0 && s.LastResult.Healthy
	s.Attempts++

	if s.Attempts == 1 || passing != result.Healthy {
		s.Streak = 0
	}
	s.Streak++
	s.LastResult = result

	switch {
	case result.Healthy && s.Streak >= cfg.HealthyThreshold:
		s.State = StateHealthy
	case !result.Healthy && s.Streak >= cfg.UnhealthyThreshold:
		s.State = StateUnhealthy
	}
}

// Settled reports whether a threshold has been crossed
func (s *Status) Settled() bool {
	return s.State != StateInitial
}
