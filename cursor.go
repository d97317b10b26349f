package main

import (
	"fmt"
	"sync"

	"offchaind/oc"
)

// Cursors holds the per method progress markers in the local tier.
// The producer side owns top, the dispatch loop owns bottom.
type Cursors struct {
	local LocalTier
	mu    sync.Mutex
}

// LocalTier is the subset of the local store the consumer side needs.
type LocalTier interface {
	Get(key []byte) ([]byte, bool, error)
	Set(key, value []byte) error
	Delete(key []byte) error
}

func NewCursors(local LocalTier) *Cursors {
	return &Cursors{local: local}
}

// marker reads a marker, writing 0 on the first read of an absent key.
// Callers hold mu.
func (c *Cursors) marker(key []byte) (uint64, error) {
	d, ok, err := c.local.Get(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		if err := c.local.Set(key, encodeMarker(0)); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return decodeMarker(d)
}

func (c *Cursors) get(key []byte) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.marker(key)
}

func (c *Cursors) set(key []byte, n uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local.Set(key, encodeMarker(n))
}

func (c *Cursors) Bottom(method string) (uint64, error) {
	return c.get(bottomKey(method))
}

func (c *Cursors) Top(method string) (uint64, error) {
	return c.get(topKey(method))
}

func (c *Cursors) SetBottom(method string, n uint64) error {
	return c.set(bottomKey(method), n)
}

func (c *Cursors) SetTop(method string, n uint64) error {
	return c.set(topKey(method), n)
}

// RaiseTop moves top to n if n is above the stored value.
// Post-commit hooks of concurrent producers may finish out of order,
// so top must never be lowered here.
func (c *Cursors) RaiseTop(method string, n uint64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := topKey(method)
	top, err := c.marker(key)
	if err != nil {
		return false, err
	}
	if n <= top {
		return false, nil
	}
	return true, c.local.Set(key, encodeMarker(n))
}

// AdvanceBottom moves bottom from -> to, failing with ErrCursorMoved if
// somebody else moved it since it was read.
func (c *Cursors) AdvanceBottom(method string, from, to uint64) error {
	if to <= from {
		return fmt.Errorf("advance %s bottom %d -> %d: %w", method, from, to, oc.ErrCursorMoved)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := bottomKey(method)
	cur, err := c.marker(key)
	if err != nil {
		return err
	}
	if cur != from {
		return fmt.Errorf("advance %s bottom %d -> %d, found %d: %w", method, from, to, cur, oc.ErrCursorMoved)
	}
	return c.local.Set(key, encodeMarker(to))
}

// Floor is the highest slot already removed by compaction.
func (c *Cursors) Floor(method string) (uint64, error) {
	return c.get(floorKey(method))
}

func (c *Cursors) SetFloor(method string, n uint64) error {
	return c.set(floorKey(method), n)
}
