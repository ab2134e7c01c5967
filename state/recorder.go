package state

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Recorder forwards reads to a live accessor and keeps every successful
// answer. Once the precomputation run is done, Snapshot hands the captured
// reads to the verified context.
type Recorder struct {
	source Accessor

	mu       sync.Mutex
	snapshot *Snapshot
}

var _ Accessor = (*Recorder)(nil)

func NewRecorder(source Accessor, header Header) *Recorder {
	return &Recorder{
		source:   source,
		snapshot: NewSnapshot(header),
	}
}

// Snapshot returns a copy of the reads captured so far.
func (r *Recorder) Snapshot() (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := r.snapshot.Encode()
	if err != nil {
		return nil, err
	}
	return DecodeSnapshot(data)
}

func (r *Recorder) Balance(ctx context.Context, asset, account common.Address, block uint64) (*uint256.Int, error) {
	v, err := r.source.Balance(ctx, asset, account, block)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.snapshot.SetBalance(asset, account, v)
	r.mu.Unlock()
	return v, nil
}

func (r *Recorder) PastVotes(ctx context.Context, asset, account common.Address, block uint64) (*uint256.Int, error) {
	v, err := r.source.PastVotes(ctx, asset, account, block)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.snapshot.SetPastVotes(asset, account, v)
	r.mu.Unlock()
	return v, nil
}

func (r *Recorder) TotalSupply(ctx context.Context, asset common.Address, block uint64) (*uint256.Int, error) {
	v, err := r.source.TotalSupply(ctx, asset, block)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.snapshot.SetTotalSupply(asset, v)
	r.mu.Unlock()
	return v, nil
}

func (r *Recorder) PastTotalSupply(ctx context.Context, asset common.Address, block uint64) (*uint256.Int, error) {
	v, err := r.source.PastTotalSupply(ctx, asset, block)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.snapshot.SetPastTotalSupply(asset, v)
	r.mu.Unlock()
	return v, nil
}

func (r *Recorder) Delegations(ctx context.Context, registry common.Address, registryContext string, account common.Address, block uint64) (*Delegations, error) {
	d, err := r.source.Delegations(ctx, registry, registryContext, account, block)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.snapshot.SetDelegations(registry, registryContext, account, d)
	r.mu.Unlock()
	return d, nil
}

func (r *Recorder) Config(ctx context.Context, contract common.Address, block uint64) (string, error) {
	doc, err := r.source.Config(ctx, contract, block)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.snapshot.SetConfig(contract, doc)
	r.mu.Unlock()
	return doc, nil
}
