package monitor

import (
	"context"
	"fmt"
)

// Fake is an in-memory Runtime
type Fake struct {
	States  map[string]string
	History map[string][]Run
	Err     error
}

// NewFake creates an empty fake runtime
func NewFake() *Fake {
	return &Fake{States: map[string]string{}, History: map[string][]Run{}}
}

func (f *Fake) State(ctx context.Context, name string) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	state, ok := f.States[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrCanaryNotFound, name)
	}
	return state, nil
}

func (f *Fake) Runs(ctx context.Context, name string, limit int) ([]Run, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if _, ok := f.States[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrCanaryNotFound, name)
	}
	runs := f.History[name]
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
