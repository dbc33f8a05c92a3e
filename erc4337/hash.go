package erc4337

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserOpHash returns the identifier of the operation for a given EntryPoint and
// chain: keccak256(abi.encode(keccak256(Encode(op, true)), entryPoint, chainID)).
func UserOpHash(op *UserOperation, entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed, err := op.Pack()
	if err != nil {
		return common.Hash{}, err
	}
	return packed.Hash(entryPoint, chainID)
}

// Hash is UserOpHash for an already packed operation.
func (p *PackedUserOp) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	if err := checkUint256("chainId", chainID); err != nil {
		return common.Hash{}, err
	}

	encoded, err := p.Encode(true)
	if err != nil {
		return common.Hash{}, err
	}

	finalEncoded, err := domainArgs.Pack(keccak(encoded), entryPoint, chainID)
	if err != nil {
		return common.Hash{}, &EncodingError{Field: "userOpHash", Err: err}
	}
	return crypto.Keccak256Hash(finalEncoded), nil
}
