package state

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	erc20ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

	votesABI = `[
	{"type":"function","name":"getPastVotes","stateMutability":"view","inputs":[{"name":"account","type":"address"},{"name":"blockNumber","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getPastTotalSupply","stateMutability":"view","inputs":[{"name":"timepoint","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

	delegateRegistryABI = `[
	{"type":"function","name":"getDelegation","stateMutability":"view",
	 "inputs":[{"name":"context","type":"string"},{"name":"account","type":"address"}],
	 "outputs":[
	   {"name":"delegations","type":"tuple[]","components":[{"name":"delegate","type":"bytes32"},{"name":"ratio","type":"uint256"}]},
	   {"name":"expirationTimestamp","type":"uint256"}
	 ]}
]`

	configContractABI = `[
	{"type":"function","name":"getVotingProtocolConfig","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`
)

var (
	ERC20ABI            = mustParseABI(erc20ABI)
	VotesABI            = mustParseABI(votesABI)
	DelegateRegistryABI = mustParseABI(delegateRegistryABI)
	ConfigContractABI   = mustParseABI(configContractABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
