// Package committee is the client's cached view of the current storage
// committee: the active epoch's system state and node set, refreshed
// lazily and shared across concurrent callers so an epoch change doesn't
// trigger one redundant chain fetch per in-flight request.
package committee

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"walrus/internal/chain"
	"walrus/internal/logger"
	"walrus/internal/types"
	"walrus/walruserrors"
)

// promise is a one-shot future: the first caller to miss the cache
// creates one and resolves it; everyone else who arrives while it's
// in flight waits on done instead of issuing a second fetch.
type promise struct {
	done      chan struct{}
	committee *types.Committee
	err       error
}

// View is the client's committee cache. The common path — a cache hit —
// never takes the mutex; only a miss or a past-epoch lookup does.
type View struct {
	reader chain.Reader

	active atomic.Pointer[types.Committee]

	mu        sync.Mutex
	pending   *promise
	byEpoch   map[uint64]*types.Committee
	resolving map[uint64]*promise
}

// New creates a committee view over a chain reader.
func New(reader chain.Reader) *View {
	return &View{
		reader:    reader,
		byEpoch:   make(map[uint64]*types.Committee),
		resolving: make(map[uint64]*promise),
	}
}

// ActiveCommittee returns the current epoch's committee, fetching and
// caching it on first use or after Invalidate.
func (v *View) ActiveCommittee(ctx context.Context) (*types.Committee, error) {
	if c := v.active.Load(); c != nil {
		return c, nil
	}

	v.mu.Lock()
	if c := v.active.Load(); c != nil {
		v.mu.Unlock()
		return c, nil
	}
	if v.pending != nil {
		p := v.pending
		v.mu.Unlock()
		return waitOn(ctx, p)
	}

	p := &promise{done: make(chan struct{})}
	v.pending = p
	v.mu.Unlock()

	committee, err := v.fetchActive(ctx)

	v.mu.Lock()
	v.pending = nil
	if err == nil {
		v.active.Store(committee)
		v.byEpoch[committee.Epoch] = committee
	}
	v.mu.Unlock()

	p.committee, p.err = committee, err
	close(p.done)

	return committee, err
}

func (v *View) fetchActive(ctx context.Context) (*types.Committee, error) {
	state, err := v.reader.SystemState(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch system state:\n%w", err)
	}

	committee, err := v.reader.Committee(ctx, state.Epoch)
	if err != nil {
		return nil, fmt.Errorf("fetch committee for epoch %d:\n%w", state.Epoch, err)
	}

	logger.Info("committee refreshed", "epoch", committee.Epoch, "nodes", len(committee.Nodes), "nShards", committee.NShards())

	return committee, nil
}

// CommitteeAtEpoch returns the committee that was active at a specific
// past epoch, used by the read path when a blob's status reports the
// epoch it was certified at. The shard permutation a blob's slivers were
// written under depends on that committee, not necessarily the current
// one.
func (v *View) CommitteeAtEpoch(ctx context.Context, epoch uint64) (*types.Committee, error) {
	if active := v.active.Load(); active != nil && active.Epoch == epoch {
		return active, nil
	}

	v.mu.Lock()
	if c, ok := v.byEpoch[epoch]; ok {
		v.mu.Unlock()
		return c, nil
	}
	if p, ok := v.resolving[epoch]; ok {
		v.mu.Unlock()
		return waitOn(ctx, p)
	}

	p := &promise{done: make(chan struct{})}
	v.resolving[epoch] = p
	v.mu.Unlock()

	committee, err := v.reader.Committee(ctx, epoch)

	v.mu.Lock()
	delete(v.resolving, epoch)
	if err == nil {
		v.byEpoch[epoch] = committee
	}
	v.mu.Unlock()

	p.committee, p.err = committee, err
	close(p.done)

	return committee, err
}

// ReadCommittee picks the committee a read should target: during
// EpochChangeSync, a blob certified before the current epoch is still
// authoritatively held by the previous committee until shard migration
// finishes; otherwise the active committee is used.
func (v *View) ReadCommittee(ctx context.Context, state *types.SystemState, initialCertifiedEpoch *uint64) (*types.Committee, error) {
	if state.EpochState == types.EpochStateEpochChangeSync && initialCertifiedEpoch != nil && *initialCertifiedEpoch < state.Epoch && state.Epoch > 0 {
		return v.CommitteeAtEpoch(ctx, state.Epoch-1)
	}
	return v.ActiveCommittee(ctx)
}

// Invalidate drops the active-committee cache entry, forcing the next
// ActiveCommittee call to refetch. Called by the client's reset after a
// retryable read failure.
func (v *View) Invalidate() {
	v.active.Store(nil)
}

// CheckEpoch compares the client's cached active epoch against a newer
// epoch seen elsewhere (the read path passes the chain's current epoch),
// returning BehindCurrentEpoch, with that epoch as BlobEpoch, if it is
// ahead.
func (v *View) CheckEpoch(nodeEpoch uint64) error {
	active := v.active.Load()
	if active == nil {
		return nil
	}
	if nodeEpoch > active.Epoch {
		return &walruserrors.BehindCurrentEpoch{ClientEpoch: active.Epoch, BlobEpoch: nodeEpoch}
	}
	return nil
}

func waitOn(ctx context.Context, p *promise) (*types.Committee, error) {
	select {
	case <-p.done:
		return p.committee, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
