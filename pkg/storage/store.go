package storage

import (
	"errors"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/types"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// Store defines the interface for local deployment state
type Store interface {
	// Deployments
	CreateDeployment(d *types.Deployment) error
	GetDeployment(id string) (*types.Deployment, error)
	ListDeployments(stackName string) ([]*types.Deployment, error)
	LatestDeployment(stackName string) (*types.Deployment, error)
	UpdateDeployment(d *types.Deployment) error
	DeleteDeployment(id string) error

	// Templates, keyed by content hash
	PutTemplate(hash string, body []byte) error
	GetTemplate(hash string) ([]byte, error)

	// Utility
	Close() error
}
