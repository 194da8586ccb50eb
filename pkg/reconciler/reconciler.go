package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/engine"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/events"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/log"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/metrics"
)

// DefaultInterval is the time between status polls
const DefaultInterval = 10 * time.Second

// Reconciler follows a stack operation until the engine reports a terminal status
type Reconciler struct {
	engine    engine.Engine
	publisher events.Publisher
	interval  time.Duration
}

// NewReconciler creates a new reconciler
func NewReconciler(eng engine.Engine, publisher events.Publisher, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if publisher == nil {
		publisher = events.Discard
	}
	return &Reconciler{
		engine:    eng,
		publisher: publisher,
		interval:  interval,
	}
}

// Wait polls the stack until its status is terminal. For a delete the stack
// disappearing is the terminal state and a nil state is returned.
func (r *Reconciler) Wait(ctx context.Context, stackName string, action engine.Action) (*engine.StackState, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.StackOperationDuration, string(action))

	logger := log.WithStack(stackName)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	lastStatus := ""
	for {
		state, done, err := r.poll(ctx, stackName, action)
		if err != nil {
			return nil, err
		}
		if done {
			return state, nil
		}

		if state.Status != lastStatus {
			logger.Debug().Str("status", state.Status).Msg("stack status changed")
			r.publisher.Publish(events.New(events.EventStackStatus, state.Status, map[string]string{
				"stack":  stackName,
				"reason": state.Reason,
			}))
			lastStatus = state.Status
		}

		if state.Terminal() {
			return state, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return state, fmt.Errorf("stopped waiting for %s in %s: %w", stackName, state.Status, ctx.Err())
		}
	}
}

// poll performs one status check
func (r *Reconciler) poll(ctx context.Context, stackName string, action engine.Action) (*engine.StackState, bool, error) {
	metrics.StackStatusPolls.Inc()

	state, err := r.engine.Describe(ctx, stackName)
	if errors.Is(err, engine.ErrStackNotFound) && action == engine.ActionDelete {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to poll stack status: %w", err)
	}
	return state, false, nil
}
