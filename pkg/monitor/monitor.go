// Package monitor reads the run history of the synthetic canary probing the
// deployed service.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/metrics"
)

// ErrCanaryNotFound is returned when the named canary does not exist
var ErrCanaryNotFound = errors.New("canary not found")

// RunState is the outcome of a single canary run
type RunState string

const (
	RunRunning RunState = "RUNNING"
	RunPassed  RunState = "PASSED"
	RunFailed  RunState = "FAILED"
)

// Run is one execution of the canary script
type Run struct {
	ID        string
	State     RunState
	Reason    string
	Started   time.Time
	Completed time.Time
}

// Duration returns how long a finished run took
func (r Run) Duration() time.Duration {
	if r.Started.IsZero() || r.Completed.IsZero() {
		return 0
	}
	return r.Completed.Sub(r.Started)
}

// Runtime reads canary state from the synthetic monitoring service. It is
// read-only: scheduling runs is the service's job.
type Runtime interface {
	// State returns the canary's lifecycle state, e.g. RUNNING or STOPPED
	State(ctx context.Context, name string) (string, error)

	// Runs returns up to limit runs, newest first
	Runs(ctx context.Context, name string, limit int) ([]Run, error)
}

// Summary counts run outcomes
type Summary struct {
	Total      int
	Passed     int
	Failed     int
	Running    int
	LastFailed *Run
}

// SuccessRate returns the share of finished runs that passed, in percent
func (s Summary) SuccessRate() float64 {
	finished := s.Passed + s.Failed
	if finished == 0 {
		return 0
	}
	return float64(s.Passed) * 100 / float64(finished)
}

// Summarize counts runs. A failed run is counted once, however many steps
// of its script failed.
func Summarize(runs []Run) Summary {
	var s Summary
	seen := make(map[string]bool, len(runs))
	for i := range runs {
		r := runs[i]
		if r.ID != "" {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
		}

		s.Total++
		switch r.State {
		case RunPassed:
			s.Passed++
		case RunFailed:
			s.Failed++
			if s.LastFailed == nil {
				s.LastFailed = &runs[i]
			}
		default:
			s.Running++
		}
	}
	return s
}

// Record adds the finished runs of s to the canary run counters
func Record(s Summary) {
	metrics.CanaryRunsTotal.WithLabelValues("passed").Add(float64(s.Passed))
	metrics.CanaryRunsTotal.WithLabelValues("failed").Add(float64(s.Failed))
}
