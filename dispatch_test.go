package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offchaind/oc"
)

// fakeRouter records handled payloads and answers with fn
type fakeRouter struct {
	methods []string
	fn      func(method string, payload []byte) error

	mu   sync.Mutex
	seen map[string][]string
}

func (r *fakeRouter) Methods() []string { return r.methods }

func (r *fakeRouter) Handle(ctx context.Context, method string, payload []byte) error {
	r.mu.Lock()
	if r.seen == nil {
		r.seen = map[string][]string{}
	}
	r.seen[method] = append(r.seen[method], string(payload))
	r.mu.Unlock()
	if r.fn == nil {
		return nil
	}
	return r.fn(method, payload)
}

func (r *fakeRouter) handled(method string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen[method]...)
}

type dispatchHarness struct {
	local   *Local
	cursors *Cursors
	router  *fakeRouter
	rec     *memRecorder
	d       *Dispatcher
}

func newDispatchHarness(t *testing.T, opts DispatchOptions, methods ...string) *dispatchHarness {
	if len(methods) == 0 {
		methods = []string{"m"}
	}
	h := &dispatchHarness{
		local:  newTestStore(t).Local(),
		router: &fakeRouter{methods: methods},
		rec:    &memRecorder{},
	}
	h.cursors = NewCursors(h.local)
	h.d = NewDispatcher(h.local, h.cursors, h.router, h.rec, NewMetrics(prometheus.NewRegistry()), opts, testLogger())
	return h
}

// put writes slots with payloads "1".."n" and publishes top n
func (h *dispatchHarness) put(t *testing.T, method string, from, to uint64) {
	for s := from; s <= to; s++ {
		require.NoError(t, h.local.Set(slotKey(method, s), []byte(strconv.FormatUint(s, 10))))
	}
	_, err := h.cursors.RaiseTop(method, to)
	require.NoError(t, err)
}

func (h *dispatchHarness) bottom(t *testing.T, method string) uint64 {
	b, err := h.cursors.Bottom(method)
	require.NoError(t, err)
	return b
}

func TestDispatchArticlePost(t *testing.T) {
	n := newTestNode(t, nil)
	ctx := context.Background()
	_, err := n.Ledger.Enqueue("alice", "article_post", articlePayload(t, oc.Article{ID: []byte("a1"), Title: []byte("hello")}))
	require.NoError(t, err)

	p := progressFor(t, n.Dispatcher.RunCycle(ctx), "article_post")
	assert.Equal(t, Progress{Method: "article_post", From: 0, To: 1, Top: 1, Dispatched: 1, Stop: stopDrained}, p)

	a, ok, err := n.Articles.Get([]byte("a1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), a.Title)

	// nothing new, nothing happens
	p = progressFor(t, n.Dispatcher.RunCycle(ctx), "article_post")
	assert.Equal(t, stopIdle, p.Stop)
	assert.Equal(t, uint64(1), p.To)
	again, _, err := n.Articles.Get([]byte("a1"))
	require.NoError(t, err)
	assert.Equal(t, a, again)
}

func TestDispatchSkipsUndecodableSlot(t *testing.T) {
	j := filepath.Join(t.TempDir(), "journal.db")
	n := newTestNode(t, func(c *Config) {
		c.Journal = JournalConfig{Driver: "sqlite3", DSN: j}
	})
	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		_, err := n.Ledger.Enqueue("alice", "article_post", articlePayload(t, oc.Article{ID: []byte(fmt.Sprintf("a%d", i))}))
		require.NoError(t, err)
	}
	p := progressFor(t, n.Dispatcher.RunCycle(ctx), "article_post")
	require.Equal(t, uint64(4), p.To)

	_, err := n.Ledger.Enqueue("alice", "article_post", []byte("not msgpack"))
	require.NoError(t, err)
	_, err = n.Ledger.Enqueue("alice", "article_post", articlePayload(t, oc.Article{ID: []byte("a6")}))
	require.NoError(t, err)

	p = progressFor(t, n.Dispatcher.RunCycle(ctx), "article_post")
	assert.Equal(t, uint64(4), p.From)
	assert.Equal(t, uint64(6), p.To)
	assert.Equal(t, 1, p.Dispatched)
	assert.Equal(t, 1, p.Skipped)
	_, ok, err := n.Articles.Get([]byte("a6"))
	require.NoError(t, err)
	assert.True(t, ok)

	fs, err := n.Journal.Recent(ctx, "article_post", 0)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, uint64(5), fs[0].Seq)
	assert.Equal(t, outcomeDecode, fs[0].Kind)
}

func TestDispatchStopsAtGap(t *testing.T) {
	h := newDispatchHarness(t, DispatchOptions{})
	ctx := context.Background()
	require.NoError(t, h.local.Set(slotKey("m", 1), []byte("1")))
	require.NoError(t, h.local.Set(slotKey("m", 3), []byte("3")))
	_, err := h.cursors.RaiseTop("m", 3)
	require.NoError(t, err)

	p := progressFor(t, h.d.RunCycle(ctx), "m")
	assert.Equal(t, stopGap, p.Stop)
	assert.Equal(t, uint64(1), p.To)
	assert.Equal(t, []string{"1"}, h.router.handled("m"))
	assert.Empty(t, h.rec.failures())

	// the missing slot became visible
	require.NoError(t, h.local.Set(slotKey("m", 2), []byte("2")))
	p = progressFor(t, h.d.RunCycle(ctx), "m")
	assert.Equal(t, stopDrained, p.Stop)
	assert.Equal(t, uint64(3), p.To)
	assert.Equal(t, []string{"1", "2", "3"}, h.router.handled("m"))
}

func TestDispatchRetriesInOrder(t *testing.T) {
	h := newDispatchHarness(t, DispatchOptions{})
	ctx := context.Background()
	fails := 2
	h.router.fn = func(method string, payload []byte) error {
		if string(payload) == "2" && fails > 0 {
			fails--
			return retryable(errors.New("not yet"))
		}
		return nil
	}
	h.put(t, "m", 1, 3)

	p := progressFor(t, h.d.RunCycle(ctx), "m")
	assert.Equal(t, stopRetry, p.Stop)
	assert.Equal(t, uint64(1), p.To)
	rs, ok, err := h.d.RetryState("m")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, oc.RetryState{Seq: 2, Attempts: 1}, rs)

	progressFor(t, h.d.RunCycle(ctx), "m")
	rs, _, err = h.d.RetryState("m")
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Attempts)

	p = progressFor(t, h.d.RunCycle(ctx), "m")
	assert.Equal(t, stopDrained, p.Stop)
	assert.Equal(t, uint64(3), p.To)
	assert.Equal(t, []string{"1", "2", "2", "2", "3"}, h.router.handled("m"))
	_, ok, err = h.d.RetryState("m")
	require.NoError(t, err)
	assert.False(t, ok)

	fs := h.rec.failures()
	require.Len(t, fs, 2)
	for _, f := range fs {
		assert.Equal(t, outcomeRetryable, f.Kind)
		assert.Equal(t, uint64(2), f.Seq)
	}
}

func TestDispatchGivesUpAfterMaxAttempts(t *testing.T) {
	h := newDispatchHarness(t, DispatchOptions{MaxAttempts: 3})
	ctx := context.Background()
	h.router.fn = func(method string, payload []byte) error {
		if string(payload) == "1" {
			return retryable(errors.New("remote down"))
		}
		return nil
	}
	h.put(t, "m", 1, 2)

	for i := 0; i < 2; i++ {
		p := progressFor(t, h.d.RunCycle(ctx), "m")
		assert.Equal(t, stopRetry, p.Stop)
		assert.Zero(t, h.bottom(t, "m"))
	}
	p := progressFor(t, h.d.RunCycle(ctx), "m")
	assert.Equal(t, stopDrained, p.Stop)
	assert.Equal(t, 1, p.Skipped)
	assert.Equal(t, uint64(2), h.bottom(t, "m"))

	fs := h.rec.failures()
	require.Len(t, fs, 3)
	last := fs[2]
	assert.Equal(t, outcomeExhausted, last.Kind)
	assert.Equal(t, 3, last.Attempts)
	assert.Equal(t, uint64(1), last.Seq)
}

func TestDispatchPermanentFailureAdvances(t *testing.T) {
	h := newDispatchHarness(t, DispatchOptions{})
	h.router.fn = func(method string, payload []byte) error {
		if string(payload) == "2" {
			return permanent(errors.New("bad record"))
		}
		return nil
	}
	h.put(t, "m", 1, 3)

	p := progressFor(t, h.d.RunCycle(context.Background()), "m")
	assert.Equal(t, uint64(3), p.To)
	assert.Equal(t, 2, p.Dispatched)
	assert.Equal(t, 1, p.Skipped)
	fs := h.rec.failures()
	require.Len(t, fs, 1)
	assert.Equal(t, outcomePermanent, fs[0].Kind)
	assert.Equal(t, uint64(2), fs[0].Seq)
	assert.Contains(t, fs[0].Err, "bad record")
	assert.NotEmpty(t, fs[0].ID)
}

func TestDispatchUntypedErrorIsPermanent(t *testing.T) {
	h := newDispatchHarness(t, DispatchOptions{})
	h.router.fn = func(method string, payload []byte) error { return errors.New("plain") }
	h.put(t, "m", 1, 1)

	p := progressFor(t, h.d.RunCycle(context.Background()), "m")
	assert.Equal(t, uint64(1), p.To)
	assert.Equal(t, outcomePermanent, h.rec.failures()[0].Kind)
}

func TestDispatchHandlerPanic(t *testing.T) {
	h := newDispatchHarness(t, DispatchOptions{})
	h.router.fn = func(method string, payload []byte) error {
		if string(payload) == "1" {
			panic("kaboom")
		}
		return nil
	}
	h.put(t, "m", 1, 2)

	p := progressFor(t, h.d.RunCycle(context.Background()), "m")
	assert.Equal(t, uint64(2), p.To)
	fs := h.rec.failures()
	require.Len(t, fs, 1)
	assert.Equal(t, outcomePermanent, fs[0].Kind)
	assert.Contains(t, fs[0].Err, "kaboom")
}

func TestDispatchCompaction(t *testing.T) {
	h := newDispatchHarness(t, DispatchOptions{RetainSlots: 2})
	ctx := context.Background()
	h.put(t, "m", 1, 5)
	progressFor(t, h.d.RunCycle(ctx), "m")

	for s := uint64(1); s <= 5; s++ {
		_, ok, err := h.local.Get(slotKey("m", s))
		require.NoError(t, err)
		assert.Equal(t, s > 3, ok, "slot %d", s)
	}
	f, err := h.cursors.Floor("m")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), f)

	h.put(t, "m", 6, 6)
	progressFor(t, h.d.RunCycle(ctx), "m")
	f, err = h.cursors.Floor("m")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), f)
	_, ok, err := h.local.Get(slotKey("m", 4))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDispatchKeepsSlotsByDefault(t *testing.T) {
	h := newDispatchHarness(t, DispatchOptions{})
	h.put(t, "m", 1, 3)
	progressFor(t, h.d.RunCycle(context.Background()), "m")
	for s := uint64(1); s <= 3; s++ {
		_, ok, err := h.local.Get(slotKey("m", s))
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestDispatchMethodsAreIndependent(t *testing.T) {
	h := newDispatchHarness(t, DispatchOptions{Workers: 1}, "a", "b")
	h.router.fn = func(method string, payload []byte) error {
		if method == "a" {
			return retryable(errors.New("stuck"))
		}
		return nil
	}
	h.put(t, "a", 1, 2)
	h.put(t, "b", 1, 2)

	ps := h.d.RunCycle(context.Background())
	require.Len(t, ps, 2)
	assert.Equal(t, stopRetry, progressFor(t, ps, "a").Stop)
	assert.Equal(t, uint64(2), progressFor(t, ps, "b").To)
}

func TestDispatchCanceled(t *testing.T) {
	h := newDispatchHarness(t, DispatchOptions{})
	h.put(t, "m", 1, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := progressFor(t, h.d.RunCycle(ctx), "m")
	assert.Equal(t, stopCanceled, p.Stop)
	assert.Zero(t, p.To)
	assert.Empty(t, h.router.handled("m"))
}

func TestDispatchJournalsFailureDuringShutdown(t *testing.T) {
	local := newTestStore(t).Local()
	j := openTestJournal(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	router := &fakeRouter{methods: []string{"m"}, fn: func(method string, payload []byte) error {
		cancel()
		return permanent(errors.New("bad record"))
	}}
	cursors := NewCursors(local)
	d := NewDispatcher(local, cursors, router, j, NewMetrics(prometheus.NewRegistry()), DispatchOptions{}, testLogger())
	require.NoError(t, local.Set(slotKey("m", 1), []byte("1")))
	_, err := cursors.RaiseTop("m", 1)
	require.NoError(t, err)

	p := progressFor(t, d.RunCycle(ctx), "m")
	assert.Equal(t, uint64(1), p.To)
	fs, err := j.Recent(context.Background(), "m", 0)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, outcomePermanent, fs[0].Kind)
}

func TestDispatchBottomAboveTop(t *testing.T) {
	h := newDispatchHarness(t, DispatchOptions{})
	require.NoError(t, h.cursors.SetBottom("m", 5))
	require.NoError(t, h.cursors.SetTop("m", 3))

	p := progressFor(t, h.d.RunCycle(context.Background()), "m")
	assert.Equal(t, stopIdle, p.Stop)
	assert.Equal(t, uint64(5), h.bottom(t, "m"))
}

func TestDispatchCycleGuard(t *testing.T) {
	h := newDispatchHarness(t, DispatchOptions{})
	entered := make(chan struct{})
	release := make(chan struct{})
	h.router.fn = func(method string, payload []byte) error {
		close(entered)
		<-release
		return nil
	}
	h.put(t, "m", 1, 1)

	done := make(chan []Progress)
	go func() { done <- h.d.RunCycle(context.Background()) }()
	<-entered
	assert.Nil(t, h.d.RunCycle(context.Background()))
	close(release)
	p := progressFor(t, <-done, "m")
	assert.Equal(t, uint64(1), p.To)
}
