package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

var (
	ErrMissingState  = errors.New("state not present in snapshot")
	ErrBlockMismatch = errors.New("read at a block other than the snapshot block")
)

// Header pins a snapshot to one block of one chain.
type Header struct {
	ChainID     uint64      `json:"chainId"`
	BlockNumber uint64      `json:"blockNumber"`
	BlockHash   common.Hash `json:"blockHash"`
}

type registryEntry struct {
	Delegate common.Hash  `json:"delegate"`
	Ratio    *hexutil.Big `json:"ratio"`
}

type registryRecord struct {
	Entries    []registryEntry `json:"entries"`
	Expiration *hexutil.Big    `json:"expiration"`
}

// Snapshot is a fixed set of state reads taken at one block. It serves the
// verified context: every lookup is local and a read that was never recorded
// fails with ErrMissingState instead of reaching out to a network.
//
// A Snapshot is not safe for concurrent writes; Recorder serialises them.
type Snapshot struct {
	Header   Header                     `json:"header"`
	Values   map[string]*hexutil.Big    `json:"values"`
	Registry map[string]*registryRecord `json:"registry"`
	Configs  map[string]string          `json:"configs"`
}

var _ Accessor = (*Snapshot)(nil)

func NewSnapshot(header Header) *Snapshot {
	return &Snapshot{
		Header:   header,
		Values:   make(map[string]*hexutil.Big),
		Registry: make(map[string]*registryRecord),
		Configs:  make(map[string]string),
	}
}

func DecodeSnapshot(data []byte) (*Snapshot, error) {
	s := NewSnapshot(Header{})
	if err := json.Unmarshal(data, s); err != nil {
		return nil, errors.Wrap(err, "decode snapshot")
	}
	return s, nil
}

// Encode serialises the snapshot. encoding/json sorts map keys, so equal
// snapshots encode to equal bytes.
func (s *Snapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// Keys lists every recorded read, sorted.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.Values)+len(s.Registry)+len(s.Configs))
	for k := range s.Values {
		keys = append(keys, k)
	}
	for k := range s.Registry {
		keys = append(keys, k)
	}
	for k := range s.Configs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge copies every read recorded in o into s. Both must be pinned to the
// same block of the same chain.
func (s *Snapshot) Merge(o *Snapshot) error {
	if s.Header != o.Header {
		return errors.Wrapf(ErrBlockMismatch, "merge block %d into block %d", o.Header.BlockNumber, s.Header.BlockNumber)
	}
	for k, v := range o.Values {
		s.Values[k] = v
	}
	for k, v := range o.Registry {
		s.Registry[k] = v
	}
	for k, v := range o.Configs {
		s.Configs[k] = v
	}
	return nil
}

func balanceKey(asset, account common.Address) string {
	return fmt.Sprintf("balanceOf/%s/%s", asset.Hex(), account.Hex())
}

func pastVotesKey(asset, account common.Address) string {
	return fmt.Sprintf("getPastVotes/%s/%s", asset.Hex(), account.Hex())
}

func totalSupplyKey(asset common.Address) string {
	return fmt.Sprintf("totalSupply/%s", asset.Hex())
}

func pastTotalSupplyKey(asset common.Address) string {
	return fmt.Sprintf("getPastTotalSupply/%s", asset.Hex())
}

func delegationsKey(registry common.Address, registryContext string, account common.Address) string {
	return fmt.Sprintf("getDelegation/%s/%s/%s", registry.Hex(), registryContext, account.Hex())
}

func configKey(contract common.Address) string {
	return fmt.Sprintf("getVotingProtocolConfig/%s", contract.Hex())
}

func toHex(v *uint256.Int) *hexutil.Big {
	if v == nil {
		return (*hexutil.Big)(new(uint256.Int).ToBig())
	}
	return (*hexutil.Big)(v.ToBig())
}

func fromHex(key string, v *hexutil.Big) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	u, overflow := uint256.FromBig(v.ToInt())
	if overflow || v.ToInt().Sign() < 0 {
		return nil, errors.Errorf("snapshot value %s is not a uint256", key)
	}
	return u, nil
}

func (s *Snapshot) SetBalance(asset, account common.Address, v *uint256.Int) {
	s.Values[balanceKey(asset, account)] = toHex(v)
}

func (s *Snapshot) SetPastVotes(asset, account common.Address, v *uint256.Int) {
	s.Values[pastVotesKey(asset, account)] = toHex(v)
}

func (s *Snapshot) SetTotalSupply(asset common.Address, v *uint256.Int) {
	s.Values[totalSupplyKey(asset)] = toHex(v)
}

func (s *Snapshot) SetPastTotalSupply(asset common.Address, v *uint256.Int) {
	s.Values[pastTotalSupplyKey(asset)] = toHex(v)
}

func (s *Snapshot) SetDelegations(registry common.Address, registryContext string, account common.Address, d *Delegations) {
	rec := &registryRecord{Expiration: toHex(d.Expiration)}
	for _, e := range d.Entries {
		rec.Entries = append(rec.Entries, registryEntry{Delegate: e.Delegate, Ratio: toHex(e.Ratio)})
	}
	s.Registry[delegationsKey(registry, registryContext, account)] = rec
}

func (s *Snapshot) SetConfig(contract common.Address, doc string) {
	s.Configs[configKey(contract)] = doc
}

func (s *Snapshot) checkBlock(block uint64) error {
	if block != s.Header.BlockNumber {
		return errors.Wrapf(ErrBlockMismatch, "want %d, got %d", s.Header.BlockNumber, block)
	}
	return nil
}

func (s *Snapshot) value(key string, block uint64) (*uint256.Int, error) {
	if err := s.checkBlock(block); err != nil {
		return nil, err
	}
	v, ok := s.Values[key]
	if !ok {
		return nil, errors.Wrap(ErrMissingState, key)
	}
	return fromHex(key, v)
}

func (s *Snapshot) Balance(_ context.Context, asset, account common.Address, block uint64) (*uint256.Int, error) {
	return s.value(balanceKey(asset, account), block)
}

func (s *Snapshot) PastVotes(_ context.Context, asset, account common.Address, block uint64) (*uint256.Int, error) {
	return s.value(pastVotesKey(asset, account), block)
}

func (s *Snapshot) TotalSupply(_ context.Context, asset common.Address, block uint64) (*uint256.Int, error) {
	return s.value(totalSupplyKey(asset), block)
}

func (s *Snapshot) PastTotalSupply(_ context.Context, asset common.Address, block uint64) (*uint256.Int, error) {
	return s.value(pastTotalSupplyKey(asset), block)
}

func (s *Snapshot) Delegations(_ context.Context, registry common.Address, registryContext string, account common.Address, block uint64) (*Delegations, error) {
	if err := s.checkBlock(block); err != nil {
		return nil, err
	}
	key := delegationsKey(registry, registryContext, account)
	rec, ok := s.Registry[key]
	if !ok {
		return nil, errors.Wrap(ErrMissingState, key)
	}

	expiration, err := fromHex(key, rec.Expiration)
	if err != nil {
		return nil, err
	}
	d := &Delegations{Expiration: expiration}
	for _, e := range rec.Entries {
		ratio, err := fromHex(key, e.Ratio)
		if err != nil {
			return nil, err
		}
		d.Entries = append(d.Entries, DelegationEntry{Delegate: e.Delegate, Ratio: ratio})
	}
	return d, nil
}

func (s *Snapshot) Config(_ context.Context, contract common.Address, block uint64) (string, error) {
	if err := s.checkBlock(block); err != nil {
		return "", err
	}
	key := configKey(contract)
	doc, ok := s.Configs[key]
	if !ok {
		return "", errors.Wrap(ErrMissingState, key)
	}
	return doc, nil
}
