package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/orchestrate/jarvis/internal/tasks"
	bolt "go.etcd.io/bbolt"
)

var taskBucket = []byte("tasks")

// BoltQueue stores the queue in a bbolt database, one JSON value per task.
// bbolt's single writer transaction is the exclusive scope, and the database
// file lock keeps other processes out while it is open.
type BoltQueue struct {
	db *bolt.DB
}

var _ QueueStore = (*BoltQueue)(nil)

// NewBoltQueue opens (or creates) the database at path
func NewBoltQueue(path string, lockTimeout time.Duration) (*BoltQueue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("%s: %w", path, ErrLockTimeout)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(taskBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltQueue{db: db}, nil
}

func (q *BoltQueue) View(ctx context.Context, fn func(map[string]tasks.Task) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return q.db.View(func(tx *bolt.Tx) error {
		all, _, err := loadBucket(tx.Bucket(taskBucket))
		if err != nil {
			return err
		}
		return fn(all)
	})
}

func (q *BoltQueue) Update(ctx context.Context, fn func(map[string]tasks.Task) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(taskBucket)
		all, raw, err := loadBucket(b)
		if err != nil {
			return err
		}

		if err := fn(all); err != nil {
			return err
		}

		for id := range raw {
			if _, ok := all[id]; !ok {
				if err := b.Delete([]byte(id)); err != nil {
					return err
				}
			}
		}
		for id, task := range all {
			data, err := json.Marshal(task)
			if err != nil {
				return fmt.Errorf("failed to marshal task %s: %w", id, err)
			}
			if bytes.Equal(raw[id], data) {
				continue
			}
			if err := b.Put([]byte(id), data); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	return err
}

// Close releases the database and its file lock
func (q *BoltQueue) Close() error {
	return q.db.Close()
}

func loadBucket(b *bolt.Bucket) (map[string]tasks.Task, map[string][]byte, error) {
	all := map[string]tasks.Task{}
	raw := map[string][]byte{}

	err := b.ForEach(func(k, v []byte) error {
		var task tasks.Task
		if err := json.Unmarshal(v, &task); err != nil {
			return fmt.Errorf("failed to parse task %s: %w", k, err)
		}
		id := string(k)
		all[id] = task
		// values are only valid for the life of the transaction
		raw[id] = append([]byte(nil), v...)
		return nil
	})
	return all, raw, err
}
