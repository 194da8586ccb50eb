// Package enginetest provides an in-memory engine for tests
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/engine"
)

// Fake is an engine.Engine whose stack walks through scripted statuses.
// Each Describe returns the next status of the script; the last one repeats.
type Fake struct {
	mu sync.Mutex

	// Statuses scripted per action; Describe consumes them in order
	Script map[engine.Action][]string

	// Outputs reported once the stack exists
	Outputs map[string]string

	// Errors injected per method name: "Deploy", "Describe", "Delete"
	Errors map[string]error

	// Requests records every deploy request
	Requests []engine.DeployRequest

	// Deleted records stack names passed to Delete
	Deleted []string

	exists   bool
	action   engine.Action
	step     int
	describe int
}

// NewFake creates a fake engine with no stack
func NewFake() *Fake {
	return &Fake{
		Script: map[engine.Action][]string{
			engine.ActionCreate: {"CREATE_IN_PROGRESS", "CREATE_COMPLETE"},
			engine.ActionUpdate: {"UPDATE_IN_PROGRESS", "UPDATE_COMPLETE"},
			engine.ActionDelete: {"DELETE_IN_PROGRESS"},
		},
		Outputs: map[string]string{},
		Errors:  map[string]error{},
	}
}

// WithExistingStack makes the stack exist in its last scripted create state
func (f *Fake) WithExistingStack() *Fake {
	f.exists = true
	f.action = engine.ActionCreate
	f.step = len(f.Script[engine.ActionCreate]) - 1
	return f
}

// DescribeCalls returns how many times Describe was called
func (f *Fake) DescribeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.describe
}

func (f *Fake) Deploy(ctx context.Context, req engine.DeployRequest) (engine.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.Errors["Deploy"]; err != nil {
		return "", err
	}
	f.Requests = append(f.Requests, req)

	action := engine.ActionCreate
	if f.exists {
		action = engine.ActionUpdate
	}
	f.exists = true
	f.action = action
	f.step = 0
	return action, nil
}

func (f *Fake) Describe(ctx context.Context, stackName string) (*engine.StackState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.describe++
	if err := f.Errors["Describe"]; err != nil {
		return nil, err
	}
	if !f.exists {
		return nil, fmt.Errorf("%w: %s", engine.ErrStackNotFound, stackName)
	}

	script := f.Script[f.action]
	if f.step >= len(script) {
		// A delete script that runs out means the stack is gone
		if f.action == engine.ActionDelete {
			f.exists = false
			return nil, fmt.Errorf("%w: %s", engine.ErrStackNotFound, stackName)
		}
		f.step = len(script) - 1
	}
	status := script[f.step]
	f.step++

	outputs := make(map[string]string, len(f.Outputs))
	for k, v := range f.Outputs {
		outputs[k] = v
	}
	return &engine.StackState{
		ID:      "arn:aws:cloudformation:ap-northeast-1:123456789012:stack/" + stackName + "/fake",
		Name:    stackName,
		Status:  status,
		Outputs: outputs,
	}, nil
}

func (f *Fake) Delete(ctx context.Context, stackName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.Errors["Delete"]; err != nil {
		return err
	}
	f.Deleted = append(f.Deleted, stackName)
	f.action = engine.ActionDelete
	f.step = 0
	return nil
}
