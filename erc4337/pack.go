package erc4337

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// uint128Size is the width in bytes of every packed gas sub-field.
	uint128Size = 16

	// paymasterFixedSize is address(20) + verificationGasLimit(16) + postOpGasLimit(16).
	paymasterFixedSize = common.AddressLength + 2*uint128Size
)

// fillUint128 writes v big-endian, zero-padded, into a 16-byte slot.
func fillUint128(field string, v *big.Int, dst []byte) error {
	if v == nil {
		return &EncodingError{Field: field, Err: ErrNilValue}
	}
	if v.Sign() < 0 {
		return &EncodingError{Field: field, Err: ErrNegativeValue}
	}
	if v.BitLen() > 8*uint128Size {
		return &EncodingError{Field: field, Err: ErrValueOverflow}
	}
	v.FillBytes(dst[:uint128Size])
	return nil
}

// checkUint256 guards values encoded as ABI uint256. The ABI packer wraps
// out-of-range big.Ints silently, so the width is checked before encoding.
func checkUint256(field string, v *big.Int) error {
	if v == nil {
		return &EncodingError{Field: field, Err: ErrNilValue}
	}
	if v.Sign() < 0 {
		return &EncodingError{Field: field, Err: ErrNegativeValue}
	}
	if v.BitLen() > 256 {
		return &EncodingError{Field: field, Err: ErrValueOverflow}
	}
	return nil
}

// PackUint128Pair packs two values of at most 128 bits into one 32-byte word:
// hi occupies bytes [0,16) and lo bytes [16,32), both big-endian.
func PackUint128Pair(hi, lo *big.Int) ([32]byte, error) {
	var word [32]byte
	if err := fillUint128("high half", hi, word[:uint128Size]); err != nil {
		return [32]byte{}, err
	}
	if err := fillUint128("low half", lo, word[uint128Size:]); err != nil {
		return [32]byte{}, err
	}
	return word, nil
}

// UnpackUint128Pair splits a packed word back into its two halves.
func UnpackUint128Pair(word [32]byte) (hi, lo *big.Int) {
	hi = new(big.Int).SetBytes(word[:uint128Size])
	lo = new(big.Int).SetBytes(word[uint128Size:])
	return hi, lo
}

// PackAccountGasLimits packs verificationGasLimit ‖ callGasLimit.
func PackAccountGasLimits(verificationGasLimit, callGasLimit *big.Int) ([32]byte, error) {
	word, err := PackUint128Pair(verificationGasLimit, callGasLimit)
	if err != nil {
		return word, renameField(err, "verificationGasLimit", "callGasLimit")
	}
	return word, nil
}

// PackGasFees packs maxPriorityFeePerGas ‖ maxFeePerGas.
func PackGasFees(maxPriorityFeePerGas, maxFeePerGas *big.Int) ([32]byte, error) {
	word, err := PackUint128Pair(maxPriorityFeePerGas, maxFeePerGas)
	if err != nil {
		return word, renameField(err, "maxPriorityFeePerGas", "maxFeePerGas")
	}
	return word, nil
}

// renameField replaces the generic half name of a pair error with the name of
// the operation field so callers see which input overflowed.
func renameField(err error, hiName, loName string) error {
	encErr, ok := err.(*EncodingError)
	if !ok {
		return err
	}
	switch encErr.Field {
	case "high half":
		return &EncodingError{Field: hiName, Err: encErr.Err}
	case "low half":
		return &EncodingError{Field: loName, Err: encErr.Err}
	}
	return err
}

// PackPaymasterData builds the paymasterAndData blob. A nil or zero paymaster
// means no sponsor: the result is empty and the remaining arguments are ignored.
func PackPaymasterData(paymaster *common.Address, verificationGasLimit, postOpGasLimit *big.Int, data []byte) ([]byte, error) {
	if paymaster == nil || *paymaster == (common.Address{}) {
		return []byte{}, nil
	}

	out := make([]byte, paymasterFixedSize, paymasterFixedSize+len(data))
	copy(out[:common.AddressLength], paymaster.Bytes())
	if err := fillUint128("paymasterVerificationGasLimit", verificationGasLimit, out[common.AddressLength:]); err != nil {
		return nil, err
	}
	if err := fillUint128("paymasterPostOpGasLimit", postOpGasLimit, out[common.AddressLength+uint128Size:]); err != nil {
		return nil, err
	}
	return append(out, data...), nil
}
