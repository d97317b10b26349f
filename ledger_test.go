package main

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offchaind/oc"
)

func TestEnqueueAssignsSequentialSlots(t *testing.T) {
	n := newTestNode(t, nil)
	for i := uint64(1); i <= 5; i++ {
		seq, err := n.Ledger.Enqueue("alice", "article_post", []byte{byte(i)})
		require.NoError(t, err)
		assert.Equal(t, i, seq)
	}

	c, err := n.Ledger.Counter("article_post")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), c)
	top, err := n.Cursors.Top("article_post")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), top)

	for i := uint64(1); i <= 5; i++ {
		d, ok, err := n.Local.Get(slotKey("article_post", i))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte{byte(i)}, d)
	}

	// other methods have their own sequence
	seq, err := n.Ledger.Enqueue("alice", "article_delete", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
}

func TestEnqueueConcurrent(t *testing.T) {
	n := newTestNode(t, nil)
	const calls = 50
	seqs := make([]uint64, calls)
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seq, err := n.Ledger.Enqueue("bob", "article_update", []byte("x"))
			assert.NoError(t, err)
			seqs[i] = seq
		}(i)
	}
	wg.Wait()

	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for i, s := range seqs {
		assert.Equal(t, uint64(i+1), s)
	}
	top, err := n.Cursors.Top("article_update")
	require.NoError(t, err)
	assert.Equal(t, uint64(calls), top)
}

func TestEnqueueUnknownMethod(t *testing.T) {
	n := newTestNode(t, nil)
	_, err := n.Ledger.Enqueue("alice", "article_vote", []byte("x"))
	require.ErrorIs(t, err, oc.ErrUnknownMethod)

	c, err := n.Ledger.Counter("article_vote")
	require.NoError(t, err)
	assert.Zero(t, c)
	_, ok, err := n.Local.Get(slotKey("article_vote", 1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnqueueUnauthenticated(t *testing.T) {
	n := newTestNode(t, nil)
	_, err := n.Ledger.Enqueue("", "article_post", []byte("x"))
	require.ErrorIs(t, err, oc.ErrUnauthenticated)

	_, err = n.Ledger.Authenticate("alice", "wrong")
	assert.ErrorIs(t, err, oc.ErrUnauthenticated)
	_, err = n.Ledger.Authenticate("mallory", "")
	assert.ErrorIs(t, err, oc.ErrUnauthenticated)
	c, err := n.Ledger.Authenticate("alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, Caller("alice"), c)

	top, err := n.Cursors.Top("article_post")
	require.NoError(t, err)
	assert.Zero(t, top)
}

func TestSubmitIsAtomic(t *testing.T) {
	n := newTestNode(t, nil)
	_, err := n.Ledger.Submit("alice", Batch{
		Calls: []Call{
			{Method: "article_post", Payload: []byte("a")},
			{Method: "article_post", Payload: []byte("b")},
			{Method: "nope", Payload: []byte("c")},
		},
		Index: []IndexUpdate{{ID: "a1", Hash: "h"}},
	})
	require.ErrorIs(t, err, oc.ErrUnknownMethod)

	// rolled back, and top was never published
	c, err := n.Ledger.Counter("article_post")
	require.NoError(t, err)
	assert.Zero(t, c)
	top, err := n.Cursors.Top("article_post")
	require.NoError(t, err)
	assert.Zero(t, top)
	_, ok, err := n.Local.Get(slotKey("article_post", 1))
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = n.Ledger.IndexEntry("a1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSubmitReceipt(t *testing.T) {
	n := newTestNode(t, nil)
	_, err := n.Ledger.Enqueue("alice", "article_post", []byte("first"))
	require.NoError(t, err)

	r, err := n.Ledger.Submit("alice", Batch{Calls: []Call{
		{Method: "article_post", Payload: []byte("a")},
		{Method: "article_delete", Payload: []byte("b")},
		{Method: "article_post", Payload: []byte("c")},
	}})
	require.NoError(t, err)
	assert.Equal(t, []SlotRef{
		{Method: "article_post", Seq: 2},
		{Method: "article_delete", Seq: 1},
		{Method: "article_post", Seq: 3},
	}, r.Slots)

	top, err := n.Cursors.Top("article_post")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), top)
}

func TestUpdateIndexLastWriteWins(t *testing.T) {
	n := newTestNode(t, nil)
	require.NoError(t, n.Ledger.UpdateIndex("alice", "a1", "h1"))
	require.NoError(t, n.Ledger.UpdateIndex("bob", "a1", "h2"))

	e, ok, err := n.Ledger.IndexEntry("a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("h2"), e.Hash)
	assert.Equal(t, int64(2), e.Version)
	assert.Equal(t, "bob", e.Sender)

	_, ok, err = n.Ledger.IndexEntry("a2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateIndexValidates(t *testing.T) {
	n := newTestNode(t, nil)
	assert.Error(t, n.Ledger.UpdateIndex("alice", "a1", ""))
	assert.Error(t, n.Ledger.UpdateIndex("alice", "", "h"))
	assert.ErrorIs(t, n.Ledger.UpdateIndex("", "a1", "h"), oc.ErrUnauthenticated)
}

func TestReconcileRestoresTop(t *testing.T) {
	n := newTestNode(t, nil)
	for i := 0; i < 3; i++ {
		_, err := n.Ledger.Enqueue("alice", "article_post", []byte("x"))
		require.NoError(t, err)
	}
	// as if the node crashed before the post-commit hook ran
	require.NoError(t, n.Cursors.SetTop("article_post", 1))

	require.NoError(t, n.Ledger.Reconcile(context.Background()))
	top, err := n.Cursors.Top("article_post")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), top)

	top, err = n.Cursors.Top("article_update")
	require.NoError(t, err)
	assert.Zero(t, top)
}

func TestReconcileCanceled(t *testing.T) {
	n := newTestNode(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Ledger.Reconcile(ctx), context.Canceled)
}
