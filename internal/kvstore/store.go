// Package kvstore is the diary's key/value store: JSON encoding over a
// types.Engine. Corrupt values read as missing; every other engine failure
// is logged and returned as a *types.PersistenceError.
package kvstore

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/fooddiary/internal/logger"
	"github.com/mesh-intelligence/fooddiary/pkg/types"
)

// Store is the JSON key/value store. It owns the only handle to the engine.
type Store struct {
	engine types.Engine
	log    *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New wraps engine.
func New(engine types.Engine, opts ...Option) *Store {
	s := &Store{engine: engine}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrNop(s.log).Named("kvstore")
	return s
}

// Get decodes the value stored under key into dst. found is false when the
// key is missing or its value cannot be decoded.
func (s *Store) Get(key string, dst any) (bool, error) {
	raw, err := s.engine.Get(key)
	if err != nil {
		return false, s.ioError("get", []string{key}, err)
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.log.Warn("discarding undecodable value", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

// GetOr returns the decoded value of key, or def when it is missing or
// corrupt.
func GetOr[T any](s *Store, key string, def T) (T, error) {
	var v T
	found, err := s.Get(key, &v)
	if err != nil {
		return def, err
	}
	if !found {
		return def, nil
	}
	return v, nil
}

// GetRaw returns the stored bytes of key without decoding them.
func (s *Store) GetRaw(key string) ([]byte, error) {
	raw, err := s.engine.Get(key)
	if err != nil {
		return nil, s.ioError("get", []string{key}, err)
	}
	return raw, nil
}

// Set encodes value and writes it at once.
func (s *Store) Set(key string, value any) error {
	return s.SetMultiple(map[string]any{key: value})
}

// SetMultiple encodes and writes every value in one engine call.
func (s *Store) SetMultiple(values map[string]any) error {
	encoded := make(map[string][]byte, len(values))
	for k, v := range values {
		raw, err := Encode(v)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", k, err)
		}
		encoded[k] = raw
	}
	return s.SetRaw(encoded)
}

// SetRaw writes already-encoded values in one engine call.
func (s *Store) SetRaw(values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}
	if err := s.engine.PutMulti(values); err != nil {
		return s.ioError("set", sortedKeys(values), err)
	}
	return nil
}

// GetMultiple returns the raw values of the keys that exist. Values that
// are not valid JSON are dropped and logged.
func (s *Store) GetMultiple(keys []string) (map[string]json.RawMessage, error) {
	raw, err := s.engine.GetMulti(keys)
	if err != nil {
		return nil, s.ioError("get", keys, err)
	}
	out := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		if !json.Valid(v) {
			s.log.Warn("discarding undecodable value", zap.String("key", k))
			continue
		}
		out[k] = v
	}
	return out, nil
}

// Remove deletes key.
func (s *Store) Remove(key string) error {
	return s.RemoveMultiple([]string{key})
}

// RemoveMultiple deletes the keys in one engine call.
func (s *Store) RemoveMultiple(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.engine.DeleteMulti(keys); err != nil {
		return s.ioError("remove", keys, err)
	}
	return nil
}

// Clear deletes every key in the engine.
func (s *Store) Clear() error {
	if err := s.engine.Clear(); err != nil {
		return s.ioError("clear", nil, err)
	}
	return nil
}

// AllKeys lists every key in the engine.
func (s *Store) AllKeys() ([]string, error) {
	keys, err := s.engine.Keys()
	if err != nil {
		return nil, s.ioError("keys", nil, err)
	}
	return keys, nil
}

// StorageInfo counts every key in the engine and estimates its size as the
// sum of key and value lengths.
func (s *Store) StorageInfo() (types.StorageInfo, error) {
	keys, err := s.AllKeys()
	if err != nil {
		return types.StorageInfo{}, err
	}
	raw, err := s.engine.GetMulti(keys)
	if err != nil {
		return types.StorageInfo{}, s.ioError("get", keys, err)
	}

	info := types.StorageInfo{Keys: len(keys)}
	for _, k := range keys {
		info.Bytes += int64(len(k) + len(raw[k]))
	}
	return info, nil
}

// Encode is the store's value encoding.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (s *Store) ioError(op string, keys []string, err error) error {
	s.log.Error("storage failure", zap.String("op", op), zap.Strings("keys", keys), zap.Error(err))
	return &types.PersistenceError{Op: op, Keys: keys, Err: err}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
