// Package runs keeps a history of training runs in a BoltDB file.
package runs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	runsBucket = "runs"
	keyLayout  = "2006-01-02T15:04:05.000000000Z"
)

// Run is the outcome of one training run.
type Run struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"startedAt"`
	Dataset       string    `json:"dataset"`
	Rows          int       `json:"rows"`
	BestFeature   string    `json:"bestFeature"`
	DefaultClass  int       `json:"defaultClass"`
	TrainErrors   int       `json:"trainErrors"`
	TrainAccuracy float64   `json:"trainAccuracy"`
	TestAccuracy  float64   `json:"testAccuracy"`
	Imbalanced    bool      `json:"imbalanced"`
}

// NewRun returns a run with a fresh ID and start time.
func NewRun(dataset string) Run {
	return Run{ID: uuid.NewString(), StartedAt: time.Now().UTC(), Dataset: dataset}
}

type Registry struct {
	db *bbolt.DB
}

func Open(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(runsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs bucket: %w", err)
	}
	return &Registry{db: db}, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

// Record stores run. Keys start with the start time so runs list in order.
func (r *Registry) Record(run Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	key := run.StartedAt.UTC().Format(keyLayout) + "_" + run.ID
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).Put([]byte(key), data)
	})
}

// List returns all runs, oldest first.
func (r *Registry) List() ([]Run, error) {
	var runs []Run
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).ForEach(func(_, v []byte) error {
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return fmt.Errorf("failed to unmarshal run: %w", err)
			}
			runs = append(runs, run)
			return nil
		})
	})
	return runs, err
}
