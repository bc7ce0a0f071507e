package vlog

import (
	"context"
	"fmt"
	"sync"
)

// ForkRegistry tracks the family tree of logical databases sharing one
// physical log. A fork copies only its key index and keeps referencing the
// shared records, so GC may reclaim an entry only when every member of the
// owning family subtree reports it dead.
type ForkRegistry struct {
	mu       sync.RWMutex
	root     uint64
	parent   map[uint64]uint64
	children map[uint64][]uint64
	views    map[uint64]Liveness
}

func NewForkRegistry(root uint64) *ForkRegistry {
	return &ForkRegistry{
		root:     root,
		parent:   make(map[uint64]uint64),
		children: make(map[uint64][]uint64),
		views:    make(map[uint64]Liveness),
	}
}

// Register adds a fork under parentID with its own liveness view. The
// parent must be the root database or an already registered fork.
func (r *ForkRegistry) Register(dbID, parentID uint64, view Liveness) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dbID == r.root {
		return fmt.Errorf("valog: database %d is the root, not a fork", dbID)
	}
	if _, dup := r.parent[dbID]; dup {
		return fmt.Errorf("valog: fork %d already registered", dbID)
	}
	if parentID != r.root {
		if _, ok := r.parent[parentID]; !ok {
			return fmt.Errorf("valog: unknown parent database %d", parentID)
		}
	}
	r.parent[dbID] = parentID
	r.children[parentID] = append(r.children[parentID], dbID)
	r.views[dbID] = view
	return nil
}

// Drop removes a fork and its whole descendant subtree, typically when the
// forked database is destroyed.
func (r *ForkRegistry) Drop(dbID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.subtreeLocked(dbID) {
		if id == r.root {
			continue
		}
		p := r.parent[id]
		kids := r.children[p]
		for i, k := range kids {
			if k == id {
				r.children[p] = append(kids[:i], kids[i+1:]...)
				break
			}
		}
		delete(r.parent, id)
		delete(r.children, id)
		delete(r.views, id)
	}
}

// Subtree returns rootID and every registered descendant of it.
func (r *ForkRegistry) Subtree(rootID uint64) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subtreeLocked(rootID)
}

func (r *ForkRegistry) subtreeLocked(rootID uint64) []uint64 {
	out := []uint64{rootID}
	for i := 0; i < len(out); i++ {
		out = append(out, r.children[out[i]]...)
	}
	return out
}

// Size returns the number of registered databases, the root included.
func (r *ForkRegistry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return 1 + len(r.parent)
}

// anyLive reports whether key is live in base's view or in any registered
// view of the subtree rooted at ownerID. This is the logical OR the GC
// reclaim decision is gated on.
func (r *ForkRegistry) anyLive(ctx context.Context, ownerID uint64, key []byte, base Liveness) (bool, error) {
	if base != nil {
		live, err := base.IsLive(ctx, key)
		if err != nil {
			return false, err
		}
		if live {
			return true, nil
		}
	}
	for _, id := range r.Subtree(ownerID) {
		r.mu.RLock()
		view := r.views[id]
		r.mu.RUnlock()
		if view == nil {
			continue
		}
		live, err := view.IsLive(ctx, key)
		if err != nil {
			return false, err
		}
		if live {
			return true, nil
		}
	}
	return false, nil
}
