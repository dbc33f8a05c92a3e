package erc4337

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	addressType = mustType("address")
	uint256Type = mustType("uint256")
	bytes32Type = mustType("bytes32")
	bytesType   = mustType("bytes")

	// (sender, nonce, keccak(initCode), keccak(callData), accountGasLimits,
	// preVerificationGas, gasFees, keccak(paymasterAndData))
	hashModeArgs = abi.Arguments{
		{Type: addressType},
		{Type: uint256Type},
		{Type: bytes32Type},
		{Type: bytes32Type},
		{Type: bytes32Type},
		{Type: uint256Type},
		{Type: bytes32Type},
		{Type: bytes32Type},
	}

	// (sender, nonce, initCode, callData, accountGasLimits, preVerificationGas,
	// gasFees, paymasterAndData, signature)
	estimationModeArgs = abi.Arguments{
		{Type: addressType},
		{Type: uint256Type},
		{Type: bytesType},
		{Type: bytesType},
		{Type: bytes32Type},
		{Type: uint256Type},
		{Type: bytes32Type},
		{Type: bytesType},
		{Type: bytesType},
	}

	// (userOpHash, entryPoint, chainId)
	domainArgs = abi.Arguments{
		{Type: bytes32Type},
		{Type: addressType},
		{Type: uint256Type},
	}
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// Encode returns the ABI encoding of the packed operation. With forSignature the
// dynamic fields are replaced by their keccak256 digest and the signature is left
// out, which is the preimage of the operation hash. Without it every field is kept
// raw, signature included; that form is only used to size calldata for gas estimates.
func Encode(op *UserOperation, forSignature bool) ([]byte, error) {
	packed, err := op.Pack()
	if err != nil {
		return nil, err
	}
	return packed.Encode(forSignature)
}

// Encode is Encode for an already packed operation.
func (p *PackedUserOp) Encode(forSignature bool) ([]byte, error) {
	var (
		encoded []byte
		err     error
	)
	if forSignature {
		encoded, err = hashModeArgs.Pack(
			p.Sender,
			p.Nonce,
			keccak(p.InitCode),
			keccak(p.CallData),
			p.AccountGasLimits,
			p.PreVerificationGas,
			p.GasFees,
			keccak(p.PaymasterAndData),
		)
	} else {
		encoded, err = estimationModeArgs.Pack(
			p.Sender,
			p.Nonce,
			nonNil(p.InitCode),
			nonNil(p.CallData),
			p.AccountGasLimits,
			p.PreVerificationGas,
			p.GasFees,
			nonNil(p.PaymasterAndData),
			nonNil(p.Signature),
		)
	}
	if err != nil {
		return nil, &EncodingError{Field: "userOp", Err: err}
	}
	return encoded, nil
}

func keccak(b []byte) [32]byte {
	return [32]byte(crypto.Keccak256Hash(b))
}
