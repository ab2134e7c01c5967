package strategies

import (
	"github.com/axiomesh/govproof/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const testBlock = 6_500_000

var (
	tokenAddr    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	votesAddr    = common.HexToAddress("0x1000000000000000000000000000000000000002")
	registryAddr = common.HexToAddress("0x2000000000000000000000000000000000000001")

	voter = common.HexToAddress("0xa000000000000000000000000000000000000001")
	alice = common.HexToAddress("0xa000000000000000000000000000000000000002")
	bob   = common.HexToAddress("0xa000000000000000000000000000000000000003")
	carol = common.HexToAddress("0xa000000000000000000000000000000000000004")
)

func newSnapshot() *state.Snapshot {
	return state.NewSnapshot(state.Header{ChainID: 11155111, BlockNumber: testBlock})
}

func testEnv(s *state.Snapshot) Env {
	return Env{State: s, BlockNumber: testBlock}
}

func u(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

func balanceAsset() Asset {
	return Asset{
		Contract:            tokenAddr,
		ChainID:             11155111,
		VotingPowerStrategy: BalanceOfName,
	}
}

func delegatedAsset() Asset {
	return Asset{
		Contract:            tokenAddr,
		ChainID:             11155111,
		VotingPowerStrategy: BalanceOfName,
		Delegation: DelegationObject{
			Contract: registryAddr,
			Strategy: SplitDelegationName,
		},
	}
}

func entry(delegate common.Address, ratio uint64) state.DelegationEntry {
	return state.DelegationEntry{Delegate: common.BytesToHash(delegate.Bytes()), Ratio: u(ratio)}
}

func setDelegations(s *state.Snapshot, delegator common.Address, entries ...state.DelegationEntry) {
	a := delegatedAsset()
	s.SetDelegations(registryAddr, a.RegistryContext(), delegator, &state.Delegations{Entries: entries, Expiration: u(0)})
}

func concat(addrs ...common.Address) []byte {
	var out []byte
	for _, a := range addrs {
		out = append(out, a.Bytes()...)
	}
	return out
}
