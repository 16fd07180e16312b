package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/JakeFAU/proxyharvest/internal/harvest"
)

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("transaction already finished")

// NodeStore keeps proxy nodes in process memory. Committed rows are unique by
// hash; a conflicting insert is silently dropped.
type NodeStore struct {
	mu     sync.RWMutex
	nodes  []harvest.ProxyNode
	byHash map[string]int
	nextID int64
}

// NewNodeStore constructs an empty NodeStore.
func NewNodeStore() *NodeStore {
	return &NodeStore{
		byHash: make(map[string]int),
		nextID: 1,
	}
}

// Begin opens a staging transaction.
func (s *NodeStore) Begin(_ context.Context) (harvest.NodeTx, error) {
	return &nodeTx{store: s}, nil
}

// ListNodes returns stored nodes newest first.
func (s *NodeStore) ListNodes(_ context.Context, limit int) ([]harvest.ProxyNode, error) {
	s.mu.RLock()
	out := make([]harvest.ProxyNode, len(s.nodes))
	copy(out, s.nodes)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len reports how many nodes are stored.
func (s *NodeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Close is a no-op.
func (s *NodeStore) Close() {}

func (s *NodeStore) exists(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byHash[hash]
	return ok
}

func (s *NodeStore) apply(staged []*harvest.ProxyNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range staged {
		if _, ok := s.byHash[n.UniqueHash]; ok {
			continue
		}
		n.ID = s.nextID
		s.nextID++
		s.byHash[n.UniqueHash] = len(s.nodes)
		s.nodes = append(s.nodes, *n)
	}
}

type nodeTx struct {
	store  *NodeStore
	staged []*harvest.ProxyNode
	done   bool
}

func (tx *nodeTx) Exists(_ context.Context, hash string) (bool, error) {
	if tx.done {
		return false, ErrTxDone
	}
	if tx.store.exists(hash) {
		return true, nil
	}
	for _, n := range tx.staged {
		if n.UniqueHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (tx *nodeTx) Insert(_ context.Context, node *harvest.ProxyNode) error {
	if tx.done {
		return ErrTxDone
	}
	if node == nil {
		return errors.New("node is required")
	}
	tx.staged = append(tx.staged, node)
	return nil
}

func (tx *nodeTx) Commit(_ context.Context) error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	tx.store.apply(tx.staged)
	tx.staged = nil
	return nil
}

func (tx *nodeTx) Rollback(_ context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.staged = nil
	return nil
}
