package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// ErrNoChange may be returned from an Update callback to release the lock
// without rewriting the file.
var ErrNoChange = errors.New("no change")

// ErrLockTimeout is returned when the file lock is not acquired in time.
var ErrLockTimeout = errors.New("timed out waiting for store lock")

const lockRetryDelay = 25 * time.Millisecond

// normalizer replaces null collections decoded from disk with empty ones
type normalizer interface {
	normalize()
}

// JSONFile guards one JSON document on disk. Every Update runs read, modify
// and atomic write while holding an in-process mutex and an exclusive flock
// on "<path>.lock". A missing file reads as the value returned by newDoc.
type JSONFile[T any] struct {
	path        string
	newDoc      func() T
	lockTimeout time.Duration

	mu   sync.Mutex
	lock *flock.Flock
}

// NewJSONFile creates a store handle; nothing is touched on disk until the
// first Update.
func NewJSONFile[T any](path string, newDoc func() T, lockTimeout time.Duration) *JSONFile[T] {
	return &JSONFile[T]{
		path:        path,
		newDoc:      newDoc,
		lockTimeout: lockTimeout,
		lock:        flock.New(path + ".lock"),
	}
}

// Path returns the document path
func (f *JSONFile[T]) Path() string {
	return f.path
}

// Read loads the document without taking the lock.
func (f *JSONFile[T]) Read() (T, error) {
	return f.load()
}

// View loads the document under a shared lock and passes it to fn. A
// missing document is passed as the default without creating its directory
// or lock file, so viewing never writes to disk.
func (f *JSONFile[T]) View(ctx context.Context, fn func(T) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(f.path); os.IsNotExist(err) {
		return fn(f.newDoc())
	}

	if err := f.acquire(ctx, false); err != nil {
		return err
	}
	defer f.lock.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	return fn(doc)
}

// Update loads the document under the exclusive lock, lets fn modify it and
// writes it back atomically. Returning ErrNoChange from fn skips the write
// and makes Update return nil.
func (f *JSONFile[T]) Update(ctx context.Context, fn func(*T) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.acquire(ctx, true); err != nil {
		return err
	}
	defer f.lock.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}

	if err := fn(&doc); err != nil {
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return err
	}

	return WriteJSON(f.path, doc)
}

func (f *JSONFile[T]) acquire(ctx context.Context, exclusive bool) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	if f.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.lockTimeout)
		defer cancel()
	}

	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = f.lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = f.lock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", f.path, ErrLockTimeout)
		}
		return fmt.Errorf("failed to lock %s: %w", f.path, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", f.path, ErrLockTimeout)
	}
	return nil
}

func (f *JSONFile[T]) load() (T, error) {
	doc := f.newDoc()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	if len(data) == 0 {
		return doc, nil
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	if n, ok := any(&doc).(normalizer); ok {
		n.normalize()
	}
	return doc, nil
}

// WriteJSON marshals v with two-space indentation and replaces path
// atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	return WriteFileAtomic(path, append(data, '\n'))
}

// WriteFileAtomic writes data to a temp file in the target directory, syncs
// it and renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod %s: %w", filepath.Base(path), err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
