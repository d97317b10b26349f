package main

import (
	"context"
	"sync"
)

func newNotifier() *notifier {
	return &notifier{
		s:    make(map[string]*NotifierRecord),
		kick: make(chan struct{}, 1),
	}
}

type NotifierRecord struct {
	Version uint64
	// closed and replaced on every version change
	changed chan struct{}
}

// notifier tracks the last published top per method. Long-poll readers wait
// on a per key channel, the scheduler waits on kick.
type notifier struct {
	mu   sync.Mutex
	s    map[string]*NotifierRecord
	kick chan struct{}
}

func (km *notifier) record(key string) *NotifierRecord {
	v, ok := km.s[key]
	if !ok {
		v = &NotifierRecord{changed: make(chan struct{})}
		km.s[key] = v
	}
	return v
}

func (km *notifier) NotifyVersion(key string, ver uint64) {
	km.mu.Lock()
	v := km.record(key)
	if v.Version != ver {
		v.Version = ver
		close(v.changed)
		v.changed = make(chan struct{})
	}
	km.mu.Unlock()

	select {
	case km.kick <- struct{}{}:
	default: // scheduler already has a pending wakeup
	}
}

// Listen blocks until a version other than ver was published for key or ctx
// is done, and returns the last published version (0 if none yet).
func (km *notifier) Listen(ctx context.Context, key string, ver uint64) uint64 {
	for {
		km.mu.Lock()
		v := km.record(key)
		cur, changed := v.Version, v.changed
		km.mu.Unlock()
		if cur != 0 && cur != ver { // changed!
			return cur
		}
		select {
		case <-ctx.Done():
			return cur
		case <-changed:
		}
	}
}

// Kicks receives a value after one or more NotifyVersion calls.
func (km *notifier) Kicks() <-chan struct{} {
	return km.kick
}
