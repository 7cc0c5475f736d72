// Package attribute implements a type-erased key/value bag for per-request
// state shared between hooks.
//
// Each value is tagged with the static type it was stored under. A lookup
// succeeds only when the requested type is exactly that type; asking for
// any other type (including an interface the value implements) reports the
// key as absent. A type mismatch is never an error.
//
// Values are copied into the store by ordinary Go assignment. Storing a
// pointer, slice or map shares the referenced data with whoever else holds
// it.
package attribute

import (
	"reflect"
	"sort"
	"sync"
)

type entry struct {
	typ   reflect.Type
	value any
}

// Store is a concurrency-safe map from string keys to typed values.
//
// The zero value is ready to use.
type Store struct {
	mu     sync.RWMutex
	values map[string]entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// Set stores value under key, replacing any previous value regardless of
// its type.
func Set[T any](s *Store, key string, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.values == nil {
		s.values = make(map[string]entry)
	}
	s.values[key] = entry{typ: reflect.TypeFor[T](), value: value}
}

// Get returns the value stored under key if it was stored as type T.
// A missing key or a different stored type returns the zero T and false.
func Get[T any](s *Store, key string) (T, bool) {
	var zero T

	s.mu.RLock()
	e, ok := s.values[key]
	s.mu.RUnlock()

	if !ok || e.typ != reflect.TypeFor[T]() {
		return zero, false
	}

	// Stored nil interface values carry no dynamic type.
	if e.value == nil {
		return zero, true
	}
	return e.value.(T), true
}

// Has reports whether key is present, whatever its type.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[key]
	return ok
}

// Remove deletes key. Removing an absent key is a no-op.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Clear deletes every key.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.values)
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys
}
