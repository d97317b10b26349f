package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"offchaind/oc"
)

// every ledger transaction locks the same key, which gives producer calls
// a single total order like blocks do
var ledgerKey = []byte(oc.LedgerPrefix)

// Call is one queued work item submitted by a producer.
type Call struct {
	Method  string `json:"method"`
	Payload []byte `json:"payload"`
}

// IndexUpdate sets the secondary index entry for an article id.
type IndexUpdate struct {
	ID   string `json:"id"`
	Hash string `json:"hash"`
}

// Batch is applied as a single unit of work: all calls and index updates
// land together or not at all.
type Batch struct {
	Calls []Call        `json:"calls,omitempty"`
	Index []IndexUpdate `json:"index,omitempty"`
}

type SlotRef struct {
	Method string `json:"method"`
	Seq    uint64 `json:"seq"`
}

type Receipt struct {
	Slots []SlotRef `json:"slots,omitempty"`
}

type methodSet interface {
	Has(method string) bool
	Methods() []string
}

// Ledger is the transactional write path: call counters, queue slots and
// the article index.
type Ledger struct {
	store   *Store
	cursors *Cursors
	methods methodSet
	auth    Authenticator
	notify  *notifier
	metrics *Metrics
	log     *slog.Logger
}

func NewLedger(store *Store, cursors *Cursors, methods methodSet, auth Authenticator, notify *notifier, metrics *Metrics, log *slog.Logger) *Ledger {
	return &Ledger{
		store:   store,
		cursors: cursors,
		methods: methods,
		auth:    auth,
		notify:  notify,
		metrics: metrics,
		log:     log,
	}
}

func (l *Ledger) Authenticate(account, token string) (Caller, error) {
	return l.auth.Authenticate(account, token)
}

// Counter returns the committed number of accepted calls for method.
func (l *Ledger) Counter(method string) (uint64, error) {
	return GetUint64(counterKey(method), l.store)
}

func incrementCounter(tx *Tx, method string) (uint64, error) {
	key := counterKey(method)
	n, err := GetUint64(key, tx)
	if err != nil {
		return 0, err
	}
	if n == math.MaxUint64 {
		return 0, fmt.Errorf("counter %s overflow", method)
	}
	n++
	return n, SetUint64(key, n, tx)
}

// Enqueue appends payload to the queue of method.
func (l *Ledger) Enqueue(caller Caller, method string, payload []byte) (uint64, error) {
	r, err := l.Submit(caller, Batch{Calls: []Call{{Method: method, Payload: payload}}})
	if err != nil {
		return 0, err
	}
	return r.Slots[0].Seq, nil
}

// UpdateIndex sets the content hash of an article id. Last write wins.
func (l *Ledger) UpdateIndex(caller Caller, id, hash string) error {
	_, err := l.Submit(caller, Batch{Index: []IndexUpdate{{ID: id, Hash: hash}}})
	return err
}

// Submit applies b as one transaction.
func (l *Ledger) Submit(caller Caller, b Batch) (Receipt, error) {
	if caller == "" {
		l.metrics.Rejected.Inc()
		return Receipt{}, oc.ErrUnauthenticated
	}
	var r Receipt
	err := l.store.Transact(ledgerKey, func(tx *Tx) error {
		r = Receipt{}
		for _, c := range b.Calls {
			n, err := l.enqueue(tx, c)
			if err != nil {
				return err
			}
			r.Slots = append(r.Slots, SlotRef{Method: c.Method, Seq: n})
		}
		for _, u := range b.Index {
			if err := l.updateIndex(tx, caller, u); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		l.metrics.Rejected.Inc()
		return Receipt{}, err
	}
	for _, s := range r.Slots {
		l.metrics.Enqueued.WithLabelValues(s.Method).Inc()
	}
	return r, nil
}

func (l *Ledger) enqueue(tx *Tx, c Call) (uint64, error) {
	if !l.methods.Has(c.Method) {
		return 0, fmt.Errorf("enqueue %q: %w", c.Method, oc.ErrUnknownMethod)
	}
	n, err := incrementCounter(tx, c.Method)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", oc.ErrCounterIncrement, c.Method, err)
	}
	if err := tx.Set(slotKey(c.Method, n), c.Payload); err != nil {
		return 0, err
	}
	method := c.Method
	// top is only published from the committed counter, never from n
	tx.OnCommit(func() { l.publishTop(method) })
	return n, nil
}

func (l *Ledger) updateIndex(tx *Tx, caller Caller, u IndexUpdate) error {
	if err := checkName("article id", u.ID); err != nil {
		return err
	}
	if u.Hash == "" {
		return fmt.Errorf("article %q: empty hash", u.ID)
	}
	key := indexKey([]byte(u.ID))
	var e oc.IndexEntry
	d, err := tx.Get(key)
	if err != nil {
		return err
	}
	if d != nil {
		if _, err := e.UnmarshalMsg(d); err != nil {
			return fmt.Errorf("index entry %q: %w", u.ID, err)
		}
	}
	e.Hash = []byte(u.Hash)
	e.Version++
	e.Sender = string(caller)
	nd, err := e.MarshalMsg(nil)
	if err != nil {
		return err
	}
	if err := tx.Set(key, nd); err != nil {
		return err
	}
	tx.OnCommit(func() {
		l.log.Info("ArticleIndexUpdated", "sender", string(caller), "id", u.ID, "hash", u.Hash)
	})
	return nil
}

// IndexEntry returns the committed secondary index entry for id.
func (l *Ledger) IndexEntry(id string) (oc.IndexEntry, bool, error) {
	var e oc.IndexEntry
	d, err := l.store.Get(indexKey([]byte(id)))
	if err != nil || d == nil {
		return e, false, err
	}
	if _, err := e.UnmarshalMsg(d); err != nil {
		return e, false, err
	}
	return e, true, nil
}

func (l *Ledger) publishTop(method string) {
	n, err := l.Counter(method)
	if err != nil {
		l.log.Error("read committed counter", "method", method, "err", err)
		return
	}
	raised, err := l.cursors.RaiseTop(method, n)
	if err != nil {
		l.log.Error("publish top", "method", method, "top", n, "err", err)
		return
	}
	if raised {
		l.metrics.Top.WithLabelValues(method).Set(float64(n))
		l.notify.NotifyVersion(method, n)
	}
}

// Reconcile republishes top for every method from the committed counters.
// A crash between commit and post-commit hook leaves top behind; this
// brings it back in line on startup.
func (l *Ledger) Reconcile(ctx context.Context) error {
	for _, m := range l.methods.Methods() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := l.Counter(m)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", m, err)
		}
		raised, err := l.cursors.RaiseTop(m, n)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", m, err)
		}
		l.metrics.Top.WithLabelValues(m).Set(float64(n))
		if raised {
			l.log.Warn("top marker was behind committed counter", "method", m, "top", n)
			l.notify.NotifyVersion(m, n)
		}
	}
	return nil
}
