// Package bolt implements the bbolt storage engine for the diary.
// All keys live in a single bucket; each batch is one bbolt transaction.
package bolt

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/mesh-intelligence/fooddiary/pkg/types"
)

const (
	// DBFileName is the database file created inside the data directory.
	DBFileName = "diary.bolt"

	bucketName = "diary" // key: storage key -> JSON value
)

var _ types.Engine = (*Engine)(nil)

// Engine implements types.Engine on a bbolt file.
type Engine struct {
	mu     sync.RWMutex
	db     *bbolt.DB
	closed bool
}

// Open creates dataDir if needed and opens the bolt file. Opening fails
// after one second if another process holds the file lock.
func Open(dataDir string) (*Engine, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dataDir, DBFileName), 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		_ = db.Close()

		return nil, err
	}

	return &Engine{db: db}, nil
}

// Path returns the database file path.
func (e *Engine) Path() string { return e.db.Path() }

func (e *Engine) Get(key string) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, types.ErrEngineClosed
	}

	var out []byte
	err := e.db.View(func(tx *bbolt.Tx) error {
		// Values are only valid inside the transaction.
		if v := tx.Bucket([]byte(bucketName)).Get([]byte(key)); v != nil {
			out = append([]byte(nil), v...)
		}

		return nil
	})

	return out, err
}

func (e *Engine) GetMulti(keys []string) (map[string][]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, types.ErrEngineClosed
	}

	out := make(map[string][]byte, len(keys))
	err := e.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		for _, k := range keys {
			if v := b.Get([]byte(k)); v != nil {
				out[k] = append([]byte(nil), v...)
			}
		}

		return nil
	})

	return out, err
}

func (e *Engine) PutMulti(values map[string][]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return types.ErrEngineClosed
	}

	return e.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		for k, v := range values {
			if err := b.Put([]byte(k), v); err != nil {
				return fmt.Errorf("writing %s: %w", k, err)
			}
		}

		return nil
	})
}

func (e *Engine) DeleteMulti(keys []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return types.ErrEngineClosed
	}

	return e.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return fmt.Errorf("deleting %s: %w", k, err)
			}
		}

		return nil
	})
}

// Clear drops and recreates the bucket.
func (e *Engine) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return types.ErrEngineClosed
	}

	return e.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucketName))

		return err
	})
}

func (e *Engine) Keys() ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, types.ErrEngineClosed
	}

	keys := []string{}
	err := e.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))

			return nil
		})
	})

	return keys, err
}

// Close closes the bolt file. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	return e.db.Close()
}
