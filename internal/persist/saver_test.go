package persist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/proxyharvest/internal/harvest"
	"github.com/JakeFAU/proxyharvest/internal/hash/md5"
	"github.com/JakeFAU/proxyharvest/internal/storage/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type stubValidator struct {
	dead  map[string]bool
	calls []string
}

func (v *stubValidator) IsAlive(_ context.Context, link string) bool {
	v.calls = append(v.calls, link)
	return !v.dead[link]
}

func newSaver(store harvest.NodeStore, v harvest.Validator) *Saver {
	clock := fixedClock{t: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	return New(store, v, md5.New(), clock, zap.NewNop())
}

func TestSaveIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewNodeStore()
	validator := &stubValidator{}
	saver := newSaver(store, validator)

	first, err := saver.Save(ctx, []string{"vmess://abc"}, "owner/repo")
	require.NoError(t, err)
	assert.Equal(t, harvest.SaveSummary{Source: "owner/repo", Total: 1, Saved: 1}, first)

	second, err := saver.Save(ctx, []string{"vmess://abc"}, "owner/repo")
	require.NoError(t, err)
	assert.Equal(t, harvest.SaveSummary{Source: "owner/repo", Total: 1, SkippedExisting: 1}, second)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, []string{"vmess://abc"}, validator.calls, "existing links are not re-validated")
}

func TestSaveCountsInBatchDuplicatesAsExisting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewNodeStore()
	saver := newSaver(store, &stubValidator{})

	summary, err := saver.Save(ctx, []string{"ss://x", "ss://x", "vmess://y"}, "platform:http://1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Saved)
	assert.Equal(t, 1, summary.SkippedExisting)

	nodes, err := store.ListNodes(ctx, 0)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	for _, n := range nodes {
		assert.Equal(t, "platform:http://1.2.3.4", n.Source)
		assert.Equal(t, md5.HashString(n.Link), n.UniqueHash)
		assert.Equal(t, harvest.ProtocolOf(n.Link), n.Protocol)
		assert.Equal(t, time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), n.CreatedAt)
	}
}

func TestSaveSkipsDeadLinks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewNodeStore()
	saver := newSaver(store, &stubValidator{dead: map[string]bool{"trojan://dead": true}})

	summary, err := saver.Save(ctx, []string{"trojan://dead", "trojan://live"}, "owner/repo")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Saved)
	assert.Equal(t, 1, summary.SkippedInvalid)
	assert.Equal(t, 1, store.Len())
}

func TestSaveEmptyBatch(t *testing.T) {
	t.Parallel()

	summary, err := newSaver(memory.NewNodeStore(), nil).Save(context.Background(), nil, "owner/repo")
	require.NoError(t, err)
	assert.Equal(t, harvest.SaveSummary{Source: "owner/repo"}, summary)
}

func TestSaveRollsBackOnCommitError(t *testing.T) {
	t.Parallel()

	tx := &failingTx{commitErr: errors.New("disk full")}
	saver := newSaver(&failingStore{tx: tx}, nil)

	summary, err := saver.Save(context.Background(), []string{"ss://a", "ss://b"}, "owner/repo")
	require.ErrorContains(t, err, "commit batch: disk full")
	assert.Zero(t, summary.Saved)
	assert.True(t, tx.rolledBack)
	assert.Len(t, tx.inserted, 2)
}

func TestSaveRollsBackOnLookupError(t *testing.T) {
	t.Parallel()

	tx := &failingTx{existsErr: errors.New("connection reset")}
	saver := newSaver(&failingStore{tx: tx}, nil)

	_, err := saver.Save(context.Background(), []string{"ss://a"}, "owner/repo")
	require.ErrorContains(t, err, "connection reset")
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestSaveBeginError(t *testing.T) {
	t.Parallel()

	saver := newSaver(&failingStore{beginErr: errors.New("no connection")}, nil)
	_, err := saver.Save(context.Background(), []string{"ss://a"}, "owner/repo")
	require.ErrorContains(t, err, "begin batch")
}

type failingStore struct {
	tx       *failingTx
	beginErr error
}

func (s *failingStore) Begin(context.Context) (harvest.NodeTx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return s.tx, nil
}

func (s *failingStore) ListNodes(context.Context, int) ([]harvest.ProxyNode, error) {
	return nil, nil
}

func (s *failingStore) Close() {}

type failingTx struct {
	existsErr  error
	commitErr  error
	inserted   []*harvest.ProxyNode
	committed  bool
	rolledBack bool
}

func (tx *failingTx) Exists(context.Context, string) (bool, error) {
	return false, tx.existsErr
}

func (tx *failingTx) Insert(_ context.Context, node *harvest.ProxyNode) error {
	tx.inserted = append(tx.inserted, node)
	return nil
}

func (tx *failingTx) Commit(context.Context) error {
	if tx.commitErr != nil {
		return tx.commitErr
	}
	tx.committed = true
	return nil
}

func (tx *failingTx) Rollback(context.Context) error {
	tx.rolledBack = true
	return nil
}
