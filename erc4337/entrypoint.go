package erc4337

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const entryPointABIJSON = `[
{"type":"function","name":"handleOps","stateMutability":"nonpayable","inputs":[{"name":"ops","type":"tuple[]","components":[{"name":"sender","type":"address"},{"name":"nonce","type":"uint256"},{"name":"initCode","type":"bytes"},{"name":"callData","type":"bytes"},{"name":"accountGasLimits","type":"bytes32"},{"name":"preVerificationGas","type":"uint256"},{"name":"gasFees","type":"bytes32"},{"name":"paymasterAndData","type":"bytes"},{"name":"signature","type":"bytes"}]},{"name":"beneficiary","type":"address"}],"outputs":[]},
{"type":"function","name":"getNonce","stateMutability":"view","inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"outputs":[{"name":"nonce","type":"uint256"}]}
]`

var entryPointABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(entryPointABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// EncodeHandleOps builds EntryPoint.handleOps calldata for a batch of packed
// operations.
func EncodeHandleOps(ops []*PackedUserOp, beneficiary common.Address) ([]byte, error) {
	tuples := make([]PackedUserOp, 0, len(ops))
	for i, op := range ops {
		if op == nil {
			return nil, &EncodingError{Field: fmt.Sprintf("ops[%d]", i), Err: ErrNilValue}
		}
		t := *op
		t.InitCode = nonNil(op.InitCode)
		t.CallData = nonNil(op.CallData)
		t.PaymasterAndData = nonNil(op.PaymasterAndData)
		t.Signature = nonNil(op.Signature)
		tuples = append(tuples, t)
	}

	data, err := entryPointABI.Pack("handleOps", tuples, beneficiary)
	if err != nil {
		return nil, &EncodingError{Field: "handleOps", Err: err}
	}
	return data, nil
}

// EncodeGetNonce builds EntryPoint.getNonce calldata for a sender and nonce key.
func EncodeGetNonce(sender common.Address, key *big.Int) ([]byte, error) {
	if key == nil {
		key = new(big.Int)
	}
	if key.Sign() < 0 {
		return nil, &EncodingError{Field: "key", Err: ErrNegativeValue}
	}
	if key.BitLen() > 192 {
		return nil, &EncodingError{Field: "key", Err: ErrValueOverflow}
	}
	data, err := entryPointABI.Pack("getNonce", sender, key)
	if err != nil {
		return nil, &EncodingError{Field: "getNonce", Err: err}
	}
	return data, nil
}

// DecodeGetNonce unpacks the getNonce return value.
func DecodeGetNonce(output []byte) (*big.Int, error) {
	values, err := entryPointABI.Unpack("getNonce", output)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("getNonce: unexpected %d return values", len(values))
	}
	nonce, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getNonce: unexpected return type %T", values[0])
	}
	return nonce, nil
}

// NonceKey returns the 192-bit key of a 2D nonce.
func NonceKey(nonce *big.Int) *big.Int {
	if nonce == nil {
		return new(big.Int)
	}
	return new(big.Int).Rsh(nonce, 64)
}
