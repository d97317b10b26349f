package main

import (
	"log/slog"

	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

// Node wires one pebble database into the ledger (producer side) and the
// dispatcher (consumer side).
type Node struct {
	Store      *Store
	Local      *Local
	Cursors    *Cursors
	Ledger     *Ledger
	Articles   *Articles
	Registry   *Registry
	Dispatcher *Dispatcher
	Metrics    *Metrics
	Journal    *Journal

	notify *notifier
	log    *slog.Logger
}

func NewNode(db *pebble.DB, cfg Config, reg prometheus.Registerer, log *slog.Logger) (*Node, error) {
	n := &Node{
		Store:   NewStore(db),
		Metrics: NewMetrics(reg),
		notify:  newNotifier(),
		log:     log,
	}
	n.Local = n.Store.Local()
	n.Cursors = NewCursors(n.Local)
	n.Articles = NewArticles(n.Local, log.With("component", "articles"))
	n.Registry = NewRegistry(n.Articles)
	n.Ledger = NewLedger(n.Store, n.Cursors, n.Registry, StaticAuth(cfg.Callers), n.notify, n.Metrics, log.With("component", "ledger"))

	recorders := Recorders{logRecorder{log: log.With("component", "dispatch")}}
	if cfg.Journal.Driver != "" {
		j, err := OpenJournal(cfg.Journal.Driver, cfg.Journal.DSN, log.With("component", "journal"))
		if err != nil {
			return nil, err
		}
		n.Journal = j
		recorders = append(recorders, j)
	}
	n.Dispatcher = NewDispatcher(n.Local, n.Cursors, n.Registry, recorders, n.Metrics, cfg.dispatchOptions(), log.With("component", "dispatch"))
	return n, nil
}

// Scheduler returns a scheduler driving this node's dispatcher.
func (n *Node) Scheduler(cfg Config) *Scheduler {
	return NewScheduler(n.Dispatcher, cfg.Dispatch.Interval, n.notify.Kicks(), n.log.With("component", "scheduler"))
}

func (n *Node) Close() error {
	if n.Journal != nil {
		return n.Journal.Close()
	}
	return nil
}

// QueueState is a snapshot of one method's queue.
type QueueState struct {
	Method  string `json:"method"`
	Counter uint64 `json:"counter"`
	Top     uint64 `json:"top"`
	Bottom  uint64 `json:"bottom"`
	Floor   uint64 `json:"floor"`
}

func (n *Node) QueueState(method string) (QueueState, error) {
	s := QueueState{Method: method}
	var err error
	if s.Counter, err = n.Ledger.Counter(method); err != nil {
		return s, err
	}
	if s.Top, err = n.Cursors.Top(method); err != nil {
		return s, err
	}
	if s.Bottom, err = n.Cursors.Bottom(method); err != nil {
		return s, err
	}
	s.Floor, err = n.Cursors.Floor(method)
	return s, err
}
