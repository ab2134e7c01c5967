package attestation

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// MessageLength is the size of the canonical vote message:
// chain id (8) + dao (20) + proposal id (32) + direction (1) + balance (32).
const MessageLength = 8 + common.AddressLength + 32 + 1 + 32

// Direction of a vote as cast on the DAO contract.
const (
	DirectionNo uint8 = iota
	DirectionYes
	DirectionAbstain
)

// Vote holds the parameters a voter signs off-chain.
type Vote struct {
	ChainID    uint64
	DAO        common.Address
	ProposalID *uint256.Int
	Direction  uint8
	Balance    *uint256.Int
}

// Message returns the canonical big-endian encoding of the vote.
func (v *Vote) Message() []byte {
	msg := make([]byte, 0, MessageLength)
	msg = binary.BigEndian.AppendUint64(msg, v.ChainID)
	msg = append(msg, v.DAO.Bytes()...)
	proposal := word(v.ProposalID)
	msg = append(msg, proposal[:]...)
	msg = append(msg, v.Direction)
	balance := word(v.Balance)
	msg = append(msg, balance[:]...)
	return msg
}

// Digest is the hash the voter's wallet signs: keccak256 of the message,
// wrapped in the "\x19Ethereum Signed Message:\n32" prefix and hashed again.
func (v *Vote) Digest() common.Hash {
	inner := crypto.Keccak256(v.Message())
	return common.BytesToHash(accounts.TextHash(inner))
}

func word(x *uint256.Int) [32]byte {
	if x == nil {
		return [32]byte{}
	}
	return x.Bytes32()
}
