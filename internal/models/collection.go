package models

import (
	"sync"

	"github.com/desertthunder/tunedl/internal/shared"
)

// Collection is an ordered, lock-protected list shared between the caller and the workers of a run.
//
// While frozen, structural edits ([Collection.Append], [Collection.Replace], [Collection.Clear]) fail with
// [shared.ErrCollectionFrozen]; in-place [Collection.Set] stays legal so workers can publish results at
// stable indices.
type Collection[T any] struct {
	mu     sync.RWMutex
	items  []T
	frozen bool
}

// NewCollection creates a collection holding a copy of items.
func NewCollection[T any](items ...T) *Collection[T] {
	return &Collection[T]{items: append([]T(nil), items...)}
}

// Append adds items to the end.
func (c *Collection[T]) Append(items ...T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return shared.ErrCollectionFrozen
	}
	c.items = append(c.items, items...)
	return nil
}

// Replace clears the collection then fills it with items.
func (c *Collection[T]) Replace(items ...T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return shared.ErrCollectionFrozen
	}
	c.items = append(c.items[:0:0], items...)
	return nil
}

// Clear removes everything.
func (c *Collection[T]) Clear() error {
	return c.Replace()
}

// Set replaces the item at index i.
func (c *Collection[T]) Set(i int, v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.items) {
		return shared.ErrInvalidArgument
	}
	c.items[i] = v
	return nil
}

// Get returns the item at index i.
func (c *Collection[T]) Get(i int) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.items) {
		var zero T
		return zero, false
	}
	return c.items[i], true
}

// Len returns the number of items.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Snapshot returns a copy of the items.
func (c *Collection[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]T(nil), c.items...)
}

// Freeze disables structural edits. It returns false if the collection was already frozen, which means
// another run owns it.
func (c *Collection[T]) Freeze() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return false
	}
	c.frozen = true
	return true
}

// Thaw re-enables structural edits.
func (c *Collection[T]) Thaw() {
	c.mu.Lock()
	c.frozen = false
	c.mu.Unlock()
}

// Frozen reports whether a run currently owns the collection.
func (c *Collection[T]) Frozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frozen
}
