package health

import (
	"context"
	"fmt"
	"time"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/events"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/log"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/metrics"
)

// CheckReport is the settled status of one checker
type CheckReport struct {
	Type   CheckType
	Target string
	Status *Status
}

// Report collects the outcome of a verification
type Report struct {
	Checks []CheckReport
}

// Healthy reports whether every check settled healthy
func (r Report) Healthy() bool {
	if len(r.Checks) == 0 {
		return false
	}
	for _, c := range r.Checks {
		if c.Status.State != StateHealthy {
			return false
		}
	}
	return true
}

// Verifier runs checkers in order until each crosses a threshold. A later
// checker only runs once the earlier ones settled healthy: there is no
// point probing HTTP on a listener that refuses connections.
type Verifier struct {
	Checkers  []Checker
	Config    Config
	Publisher events.Publisher
}

// NewVerifier creates a verifier with the given thresholds
func NewVerifier(config Config, checkers ...Checker) *Verifier {
	return &Verifier{
		Checkers:  checkers,
		Config:    config,
		Publisher: events.Discard,
	}
}

// Run performs the verification. An error is returned only when the
// context ends before a checker settles.
func (v *Verifier) Run(ctx context.Context) (Report, error) {
	logger := log.WithComponent("verify")
	var report Report

	for _, checker := range v.Checkers {
		status, err := v.settle(ctx, checker)
		report.Checks = append(report.Checks, CheckReport{
			Type:   checker.Type(),
			Target: checker.Target(),
			Status: status,
		})
		if err != nil {
			return report, err
		}

		logger.Info().
			Str("type", string(checker.Type())).
			Str("target", checker.Target()).
			Str("state", string(status.State)).
			Int("attempts", status.Attempts).
			Msg("check settled")

		if status.State != StateHealthy {
			break
		}
	}
	return report, nil
}

func (v *Verifier) settle(ctx context.Context, checker Checker) (*Status, error) {
	status := NewStatus()

	for {
		checkCtx, cancel := context.WithTimeout(ctx, v.Config.Timeout)
		result := checker.Check(checkCtx)
		cancel()

		status.Update(result, v.Config)
		metrics.HealthChecksTotal.WithLabelValues(string(checker.Type()), resultLabel(result)).Inc()
		v.Publisher.Publish(events.New(events.EventVerifyCheck, result.Message, map[string]string{
			"type":   string(checker.Type()),
			"target": checker.Target(),
			"state":  string(status.State),
		}))

		if status.Settled() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, fmt.Errorf("verification of %s interrupted after %d attempts: %w",
				checker.Target(), status.Attempts, ctx.Err())
		case <-time.After(v.Config.Interval):
		}
	}
}

func resultLabel(r Result) string {
	if r.Healthy {
		return "pass"
	}
	return "fail"
}
