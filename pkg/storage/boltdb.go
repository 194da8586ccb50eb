package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketDeployments = []byte("deployments")
	bucketTemplates   = []byte("templates")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the state database under dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "appsignals.db")

	// A second process holding the lock fails fast instead of hanging
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketDeployments, bucketTemplates} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Deployment operations
func (s *BoltStore) CreateDeployment(d *types.Deployment) error {
	if d.ID == "" {
		return fmt.Errorf("deployment has no ID")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(d)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDeployments).Put([]byte(d.ID), data)
	})
}

func (s *BoltStore) GetDeployment(id string) (*types.Deployment, error) {
	var d types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDeployments).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("deployment %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDeployments returns the records of a stack, newest first. An empty
// stack name lists every record.
func (s *BoltStore) ListDeployments(stackName string) ([]*types.Deployment, error) {
	var deployments []*types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDeployments).ForEach(func(k, v []byte) error {
			var d types.Deployment
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			if stackName == "" || d.StackName == stackName {
				deployments = append(deployments, &d)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(deployments, func(i, j int) bool {
		return deployments[i].StartedAt.After(deployments[j].StartedAt)
	})
	return deployments, nil
}

func (s *BoltStore) LatestDeployment(stackName string) (*types.Deployment, error) {
	deployments, err := s.ListDeployments(stackName)
	if err != nil {
		return nil, err
	}
	if len(deployments) == 0 {
		return nil, fmt.Errorf("deployments of %s: %w", stackName, ErrNotFound)
	}
	return deployments[0], nil
}

func (s *BoltStore) UpdateDeployment(d *types.Deployment) error {
	return s.CreateDeployment(d) // Same as create (upsert)
}

func (s *BoltStore) DeleteDeployment(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDeployments).Delete([]byte(id))
	})
}

// Template operations
func (s *BoltStore) PutTemplate(hash string, body []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTemplates).Put([]byte(hash), body)
	})
}

func (s *BoltStore) GetTemplate(hash string) ([]byte, error) {
	var body []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTemplates).Get([]byte(hash))
		if data == nil {
			return fmt.Errorf("template %s: %w", hash, ErrNotFound)
		}
		// Values are only valid inside the transaction
		body = append([]byte(nil), data...)
		return nil
	})
	return body, err
}
