// Package settings persists plugin preferences. Every key is scoped by the
// owning plugin's id so plugins cannot see each other's values.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/woxQAQ/sourcehost/internal/value"
)

// ErrUnsupportedValue is returned for values that cannot be persisted.
var ErrUnsupportedValue = errors.New("setting values must be null, int, float, string, bool, or arrays and objects of those")

// Store is a plugin-scoped key-value store.
type Store interface {
	// Get returns the value stored for (pluginID, key). The bool is false
	// when nothing is stored.
	Get(ctx context.Context, pluginID, key string) (value.Value, bool, error)
	Set(ctx context.Context, pluginID, key string, v value.Value) error
	Delete(ctx context.Context, pluginID, key string) error
	Close() error
}

// Open creates the store for driver: "sqlite" opens path, "memory" ignores it.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(path)
	}
	return nil, fmt.Errorf("unknown settings driver %q (must be one of: sqlite, memory)", driver)
}

func encode(v value.Value) ([]byte, error) {
	if err := storable(v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func decode(data []byte) (value.Value, error) {
	var v value.Value
	if err := json.Unmarshal(data, &v); err != nil {
		return value.Value{}, err
	}
	return v, nil
}

func storable(v value.Value) error {
	switch v.Kind() {
	case value.KindNull, value.KindInt, value.KindFloat, value.KindString, value.KindBool:
		return nil
	case value.KindArray:
		list, _ := v.List()
		for _, item := range list.Items() {
			if err := storable(item); err != nil {
				return err
			}
		}
		return nil
	case value.KindObject:
		m, _ := v.Map()
		for _, item := range m.Values() {
			if err := storable(item); err != nil {
				return err
			}
		}
		return nil
	}
	return ErrUnsupportedValue
}

type scopedKey struct {
	plugin string
	key    string
}

// MemoryStore keeps settings in process memory. Values are stored encoded,
// so later mutation of a Value passed to Set does not leak into the store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[scopedKey][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[scopedKey][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, pluginID, key string) (value.Value, bool, error) {
	s.mu.RLock()
	raw, ok := s.data[scopedKey{pluginID, key}]
	s.mu.RUnlock()

	if !ok {
		return value.Value{}, false, nil
	}
	v, err := decode(raw)
	if err != nil {
		return value.Value{}, false, err
	}
	return v, true, nil
}

func (s *MemoryStore) Set(_ context.Context, pluginID, key string, v value.Value) error {
	raw, err := encode(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.data[scopedKey{pluginID, key}] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, pluginID, key string) error {
	s.mu.Lock()
	delete(s.data, scopedKey{pluginID, key})
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
