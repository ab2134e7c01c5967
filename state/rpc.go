package state

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const DefaultCacheSize = 4096

// Caller is the subset of ethclient.Client the RPC accessor needs.
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// RPC reads contract state from a live node. Every call is made at an
// explicit block height, so answers are immutable and safe to cache.
type RPC struct {
	caller Caller
	logger logrus.FieldLogger
	cache  *lru.Cache[string, []byte]
}

var _ Accessor = (*RPC)(nil)

func NewRPC(caller Caller, cacheSize int, logger logrus.FieldLogger) (*RPC, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, err
	}
	return &RPC{
		caller: caller,
		logger: logger,
		cache:  cache,
	}, nil
}

// Header resolves the block the evaluation is pinned to. Block 0 means the
// latest block.
func (r *RPC) Header(ctx context.Context, block uint64) (Header, error) {
	var number *big.Int
	if block != 0 {
		number = new(big.Int).SetUint64(block)
	}
	header, err := r.caller.HeaderByNumber(ctx, number)
	if err != nil {
		return Header{}, errors.Wrap(err, "fetch block header")
	}
	chainID, err := r.caller.ChainID(ctx)
	if err != nil {
		return Header{}, errors.Wrap(err, "fetch chain id")
	}
	return Header{
		ChainID:     chainID.Uint64(),
		BlockNumber: header.Number.Uint64(),
		BlockHash:   header.Hash(),
	}, nil
}

func (r *RPC) call(ctx context.Context, contract abi.ABI, to common.Address, block uint64, method string, args ...any) ([]any, error) {
	input, err := contract.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}

	key := fmt.Sprintf("%s/%d/%s", to.Hex(), block, hex.EncodeToString(input))
	output, ok := r.cache.Get(key)
	if !ok {
		output, err = r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, new(big.Int).SetUint64(block))
		if err != nil {
			return nil, errors.Wrapf(err, "call %s on %s at block %d", method, to, block)
		}
		r.cache.Add(key, output)
	}

	r.logger.WithFields(logrus.Fields{
		"contract": to.Hex(),
		"method":   method,
		"block":    block,
		"cached":   ok,
	}).Debug("state read")

	res, err := contract.Unpack(method, output)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s", method)
	}
	return res, nil
}

func (r *RPC) uint256Call(ctx context.Context, contract abi.ABI, to common.Address, block uint64, method string, args ...any) (*uint256.Int, error) {
	res, err := r.call(ctx, contract, to, block, method, args...)
	if err != nil {
		return nil, err
	}
	v := *abi.ConvertType(res[0], new(*big.Int)).(**big.Int)
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, errors.Errorf("%s returned a value wider than 256 bits", method)
	}
	return u, nil
}

func (r *RPC) Balance(ctx context.Context, asset, account common.Address, block uint64) (*uint256.Int, error) {
	return r.uint256Call(ctx, ERC20ABI, asset, block, "balanceOf", account)
}

func (r *RPC) TotalSupply(ctx context.Context, asset common.Address, block uint64) (*uint256.Int, error) {
	return r.uint256Call(ctx, ERC20ABI, asset, block, "totalSupply")
}

func (r *RPC) PastVotes(ctx context.Context, asset, account common.Address, block uint64) (*uint256.Int, error) {
	return r.uint256Call(ctx, VotesABI, asset, block, "getPastVotes", account, new(big.Int).SetUint64(block))
}

func (r *RPC) PastTotalSupply(ctx context.Context, asset common.Address, block uint64) (*uint256.Int, error) {
	return r.uint256Call(ctx, VotesABI, asset, block, "getPastTotalSupply", new(big.Int).SetUint64(block))
}

type delegationTuple struct {
	Delegate [32]byte
	Ratio    *big.Int
}

type getDelegationOutput struct {
	Delegations         []delegationTuple
	ExpirationTimestamp *big.Int
}

func (r *RPC) Delegations(ctx context.Context, registry common.Address, registryContext string, account common.Address, block uint64) (*Delegations, error) {
	res, err := r.call(ctx, DelegateRegistryABI, registry, block, "getDelegation", registryContext, account)
	if err != nil {
		return nil, err
	}

	var out getDelegationOutput
	if err := DelegateRegistryABI.Methods["getDelegation"].Outputs.Copy(&out, res); err != nil {
		return nil, errors.Wrap(err, "decode getDelegation")
	}

	expiration, overflow := uint256.FromBig(out.ExpirationTimestamp)
	if overflow {
		return nil, errors.New("getDelegation expiration wider than 256 bits")
	}
	d := &Delegations{Expiration: expiration}
	for _, t := range out.Delegations {
		ratio, overflow := uint256.FromBig(t.Ratio)
		if overflow {
			return nil, errors.New("getDelegation ratio wider than 256 bits")
		}
		d.Entries = append(d.Entries, DelegationEntry{Delegate: common.Hash(t.Delegate), Ratio: ratio})
	}
	return d, nil
}

func (r *RPC) Config(ctx context.Context, contract common.Address, block uint64) (string, error) {
	res, err := r.call(ctx, ConfigContractABI, contract, block, "getVotingProtocolConfig")
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(res[0], new(string)).(*string), nil
}
