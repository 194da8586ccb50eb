package engine

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrStackNotFound is returned when the named stack does not exist
	ErrStackNotFound = errors.New("stack not found")

	// ErrNoChanges is returned when an update would not change the stack
	ErrNoChanges = errors.New("no changes to deploy")
)

// Action is the kind of operation the engine started
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// DeployRequest carries a rendered template to the engine. Exactly one of
// TemplateBody and TemplateURL is set.
type DeployRequest struct {
	StackName    string
	TemplateBody string
	TemplateURL  string
	Tags         map[string]string
}

// StackState is the engine's view of a stack
type StackState struct {
	ID          string
	Name        string
	Status      string
	Reason      string
	Outputs     map[string]string
	LastUpdated time.Time
}

// Engine materializes templates. Diffing and ordering of resource
// operations are the engine's business; callers only submit and observe.
type Engine interface {
	// Deploy creates the stack if it does not exist and updates it otherwise
	Deploy(ctx context.Context, req DeployRequest) (Action, error)

	// Describe returns the current state, or ErrStackNotFound
	Describe(ctx context.Context, stackName string) (*StackState, error)

	// Delete starts deleting the stack
	Delete(ctx context.Context, stackName string) error
}

// Terminal reports whether no further transition will happen without a new operation
func (s *StackState) Terminal() bool {
	return IsTerminal(s.Status)
}

// Failed reports whether the last operation did not reach its goal
func (s *StackState) Failed() bool {
	return IsFailure(s.Status)
}

// IsTerminal reports whether a stack status is final
func IsTerminal(status string) bool {
	return strings.HasSuffix(status, "_COMPLETE") || strings.HasSuffix(status, "_FAILED")
}

// IsFailure reports whether a terminal status means the operation failed.
// A completed rollback is a failure of the operation that triggered it.
func IsFailure(status string) bool {
	return strings.HasSuffix(status, "_FAILED") || strings.Contains(status, "ROLLBACK")
}
