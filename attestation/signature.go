package attestation

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const SignatureLength = crypto.SignatureLength

var (
	ErrInvalidSignatureLength = errors.New("invalid signature length")
	ErrInvalidV               = errors.New("invalid v")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrVoterMismatch          = errors.New("signature was not produced by the voter")
)

// ParseSignature decodes a hex r||s||v signature, with or without 0x prefix.
func ParseSignature(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	sig, err := hexutil.Decode(s)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidSignature, "decode hex: %s", err)
	}
	if len(sig) != SignatureLength {
		return nil, errors.Wrapf(ErrInvalidSignatureLength, "got %d bytes", len(sig))
	}
	return sig, nil
}

// NormalizeV maps the recovery byte to a recovery id of 0 or 1. It accepts
// raw ids (0, 1), legacy Ethereum values (27, 28) and EIP-155 values (35+).
func NormalizeV(v byte) (byte, error) {
	switch {
	case v == 0 || v == 1:
		return v, nil
	case v == 27 || v == 28:
		return v - 27, nil
	case v >= 35:
		return (v - 1) % 2, nil
	default:
		return 0, errors.Wrapf(ErrInvalidV, "%d", v)
	}
}

// RecoverSigner returns the account whose key produced sig over digest.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, errors.Wrapf(ErrInvalidSignatureLength, "got %d bytes", len(sig))
	}
	recID, err := NormalizeV(sig[64])
	if err != nil {
		return common.Address{}, err
	}

	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	normalized[64] = recID

	pub, err := crypto.Ecrecover(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, errors.Wrap(ErrInvalidSignature, err.Error())
	}
	if len(pub) != 65 || pub[0] != 0x04 {
		return common.Address{}, ErrInvalidSignature
	}
	return common.BytesToAddress(crypto.Keccak256(pub[1:])[12:]), nil
}

// Verify recovers the signer of vote and requires it to be voter.
func Verify(vote *Vote, sig []byte, voter common.Address) (common.Address, error) {
	signer, err := RecoverSigner(vote.Digest(), sig)
	if err != nil {
		return common.Address{}, err
	}
	if signer != voter {
		return signer, errors.Wrapf(ErrVoterMismatch, "recovered %s, claimed %s", signer, voter)
	}
	return signer, nil
}

// Sign produces the 65-byte signature a wallet would return for vote, with
// v in {27, 28}.
func Sign(vote *Vote, key *ecdsa.PrivateKey) ([]byte, error) {
	digest := vote.Digest()
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, errors.Wrap(err, "sign vote")
	}
	sig[64] += 27
	return sig, nil
}
