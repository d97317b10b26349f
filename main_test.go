package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"offchaind/oc"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *pebble.DB {
	t.Helper()
	db, err := pebble.Open(filepath.Join(t.TempDir(), "test.db"), &pebble.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

// runFlushLoop keeps s flushing until the test ends
func runFlushLoop(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.FlushLoop(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(openTestDB(t))
	runFlushLoop(t, s)
	return s
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Callers = map[string]string{
		"alice": "secret",
		"bob":   "hunter2",
	}
	return cfg
}

func newTestNodeReg(t *testing.T, mutate func(*Config)) (*Node, *prometheus.Registry) {
	t.Helper()
	cfg := testConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "node.db")
	if mutate != nil {
		mutate(&cfg)
	}
	db := openTestDB(t)
	reg := prometheus.NewRegistry()
	n, err := NewNode(db, cfg, reg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, n.Close()) })
	runFlushLoop(t, n.Store)
	return n, reg
}

func newTestNode(t *testing.T, mutate func(*Config)) *Node {
	t.Helper()
	n, _ := newTestNodeReg(t, mutate)
	return n
}

func articlePayload(t *testing.T, a oc.Article) []byte {
	t.Helper()
	d, err := a.MarshalMsg(nil)
	require.NoError(t, err)
	return d
}

func patchPayload(t *testing.T, p oc.ArticlePatch) []byte {
	t.Helper()
	d, err := p.MarshalMsg(nil)
	require.NoError(t, err)
	return d
}

func u16(v uint16) *uint16 { return &v }

func refPayload(t *testing.T, r oc.ArticleRef) []byte {
	t.Helper()
	d, err := r.MarshalMsg(nil)
	require.NoError(t, err)
	return d
}

// memRecorder keeps every failure for assertions
type memRecorder struct {
	mu sync.Mutex
	fs []Failure
}

func (r *memRecorder) Record(ctx context.Context, f Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fs = append(r.fs, f)
}

func (r *memRecorder) failures() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Failure(nil), r.fs...)
}

func progressFor(t *testing.T, ps []Progress, method string) Progress {
	t.Helper()
	for _, p := range ps {
		if p.Method == method {
			return p
		}
	}
	t.Fatalf("no progress for %s in %v", method, ps)
	return Progress{}
}
