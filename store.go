// This is an implementation of a two tier store on top of a single pebble DB.
//
// Transactional tier: Transact runs a function against an indexed batch and
// commits it only if the function succeeds. Callers touching the same key are
// serialized, and Transact returns only after the batch was flushed to disk.
//
// '|_' - Start,  U- Update Logic   '_|' - End,  '_' - waiting,  '^' - data is flushed
// Request #1 ------|U_____________________|-------
// Request #1 --------------|U_____________|-------
// Request #2 --------------|_U____________|-------
// Request #3 --------------|__U___________|-------
// Flush Loop -----------------------------^-------
//
// We keep a global mutex by ID in RAM that makes sure that all updates
// happen in sequential manner. Each update commits its batch without sync and
// waits for the flush loop. As soon as the WAL was synced after the last
// update - all updates consider operation as being successful and their
// post-commit hooks run.
//
// Local tier: direct synced writes that don't wait for anything and are
// never rolled back. Both tiers share one key space.
package main

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"offchaind/oc"
)

const mutexBuckets = 100

type Store struct {
	db      *pebble.DB
	kmu     []*kmutex
	mu      sync.Mutex
	done    chan struct{}
	count   int  // number of requests processed from last WAL write
	stopped bool // graceful shudown
	pending int  // number of requests inflight (track for graceful shutdown)
}

func NewStore(db *pebble.DB) *Store {
	s := &Store{
		db:   db,
		done: make(chan struct{}),
	}
	for i := 0; i < mutexBuckets; i++ {
		s.kmu = append(s.kmu, newLocker())
	}
	return s
}

func (p *Store) Flush() int {
	p.mu.Lock()
	count := p.count
	p.count = 0
	done := p.done // all previous updates are waiting on this chan
	pending := p.pending
	p.done = make(chan struct{}) // create new chan for future updates to wait on
	p.mu.Unlock()

	if count > 0 {
		// just make a write to WAL and wait for it to complete.
		// since we have only 1 WAL and writes are sequential -
		// if this operation finish - it means all previous updates are flushed too
		err := p.db.LogData([]byte("f"), pebble.Sync)
		if err != nil {
			panic(err)
		}
	}
	close(done)
	return pending
}

func (p *Store) FlushLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.stopped = true // make sure all new requests are failing
			p.mu.Unlock()
			for {
				pending := p.Flush() // flush all pending requests
				if pending == 0 {
					return nil
				}
			}
		default:
			n := p.Flush()
			if n == 0 {
				// avoid infinite loops if no data needs to be flushed
				time.Sleep(time.Millisecond * 5)
			}
		}
	}
}

// Tx is a unit of work of the transactional tier.
type Tx struct {
	b     *pebble.Batch
	hooks []func()
}

// Get returns the value visible to the transaction, including its own
// uncommitted writes. A missing key is (nil, nil).
func (t *Tx) Get(key []byte) ([]byte, error) {
	return getCopy(key, t.b)
}

func (t *Tx) Set(key, value []byte) error {
	return t.b.Set(key, value, pebble.NoSync)
}

func (t *Tx) Delete(key []byte) error {
	return t.b.Delete(key, pebble.NoSync)
}

// OnCommit registers f to run after the transaction is durable.
// Hooks never run if the transaction is rolled back.
func (t *Tx) OnCommit(f func()) {
	t.hooks = append(t.hooks, f)
}

// TxFunc should update only data relevant to the key
type TxFunc func(tx *Tx) error

func (p *Store) singletonUpdate(key []byte, f func() error) error {
	// make sure all updates are done one after the other
	// there are possible collisions for unrelated keys, but it's not a problem
	// since it just means 2 updates for different keys occasionally will wait for each
	// other
	h := fnv.New64a()
	h.Write(key)
	kid := h.Sum64()
	p.kmu[kid%mutexBuckets].Lock(kid)
	defer p.kmu[kid%mutexBuckets].Unlock(kid)

	return f()
}

// Transact runs f inside a transaction serialized by key.
// If f returns an error nothing it wrote is applied.
func (p *Store) Transact(key []byte, f TxFunc) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return oc.ErrStopped
	}
	p.pending++
	p.count++
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.pending--
		p.mu.Unlock()
	}()

	tx := &Tx{b: p.db.NewIndexedBatch()}
	err := p.singletonUpdate(key, func() error {
		defer tx.b.Close()
		if err := f(tx); err != nil {
			return err
		}
		return tx.b.Commit(pebble.NoSync)
	})
	if err != nil {
		return err
	}

	// wait till our update is flushed to disk
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	<-done

	for _, h := range tx.hooks {
		h()
	}
	return nil
}

// Get reads the committed value of key. A missing key is (nil, nil).
func (p *Store) Get(key []byte) ([]byte, error) {
	return getCopy(key, p.db)
}

// Local returns the local tier view of the store.
func (p *Store) Local() *Local {
	return &Local{db: p.db}
}

// Local is the immediately durable tier. It is meant to be written by a
// single role per key, so it does no locking.
type Local struct {
	db *pebble.DB
}

func (l *Local) Get(key []byte) ([]byte, bool, error) {
	d, err := getCopy(key, l.db)
	if err != nil {
		return nil, false, err
	}
	return d, d != nil, nil
}

func (l *Local) Set(key, value []byte) error {
	return l.db.Set(key, value, pebble.Sync)
}

func (l *Local) Delete(key []byte) error {
	return l.db.Delete(key, pebble.Sync)
}

type getter interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

// pebble values are only valid until the closer is closed, so copy them out
func getCopy(key []byte, g getter) ([]byte, error) {
	d, closer, err := g.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(d))
	copy(out, d)
	return out, nil
}

// copied this implementation from someone on the web
type kmutex struct {
	c *sync.Cond
	l sync.Locker
	s map[uint64]struct{}
}

func newLocker() *kmutex {
	l := sync.Mutex{}
	return &kmutex{c: sync.NewCond(&l), l: &l, s: make(map[uint64]struct{})}
}

func (km *kmutex) locked(key uint64) (ok bool) {
	_, ok = km.s[key]
	return
}

func (km *kmutex) Unlock(key uint64) {
	km.l.Lock()
	defer km.l.Unlock()
	delete(km.s, key)
	km.c.Broadcast()
}

func (km *kmutex) Lock(key uint64) {
	km.l.Lock()
	defer km.l.Unlock()
	for km.locked(key) {
		km.c.Wait()
	}
	km.s[key] = struct{}{}
}
