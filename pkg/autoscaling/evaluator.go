package autoscaling

import (
	"math"
	"time"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/types"
)

// Action is the outcome of one evaluation
type Action string

const (
	ActionNone     Action = "none"
	ActionScaleOut Action = "scale-out"
	ActionScaleIn  Action = "scale-in"
)

// Decision describes what the evaluator did with one sample
type Decision struct {
	At       time.Time
	CPU      float64
	Action   Action
	From     int
	To       int
	Cooldown bool // a change was wanted but suppressed by a cooldown
}

// Evaluator models target tracking on average CPU so a policy can be
// exercised offline. The capacity it proposes is proportional to the ratio
// of observed to target utilization, clamped to the capacity range.
type Evaluator struct {
	policy     types.ScalingPolicy
	capacity   int
	lastAction time.Time
	acted      bool
}

// NewEvaluator starts an evaluator at the given capacity, clamped to the range
func NewEvaluator(policy types.ScalingPolicy, capacity int) *Evaluator {
	return &Evaluator{policy: policy, capacity: clamp(capacity, policy.MinCapacity, policy.MaxCapacity)}
}

// Capacity returns the current task count
func (e *Evaluator) Capacity() int {
	return e.capacity
}

// Desired returns the capacity the policy would ask for at the given utilization
func (e *Evaluator) Desired(cpu float64) int {
	if cpu < 0 {
		cpu = 0
	}
	// An empty service still reports load against one task
	running := max(e.capacity, 1)
	want := int(math.Ceil(float64(running) * cpu / e.policy.TargetCPUPercent))
	return clamp(want, e.policy.MinCapacity, e.policy.MaxCapacity)
}

// Evaluate feeds one utilization sample taken at the given time. No action is
// taken while the cooldown of the wanted direction, counted from the
// previous action, has not elapsed.
func (e *Evaluator) Evaluate(at time.Time, cpu float64) Decision {
	d := Decision{At: at, CPU: cpu, Action: ActionNone, From: e.capacity, To: e.capacity}

	want := e.Desired(cpu)
	if want == e.capacity {
		return d
	}

	action, cooldown := ActionScaleOut, e.policy.ScaleOutCooldown
	if want < e.capacity {
		action, cooldown = ActionScaleIn, e.policy.ScaleInCooldown
	}

	if e.acted && at.Sub(e.lastAction) < cooldown {
		d.Cooldown = true
		return d
	}

	e.capacity = want
	e.lastAction = at
	e.acted = true

	d.Action = action
	d.To = want
	return d
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
