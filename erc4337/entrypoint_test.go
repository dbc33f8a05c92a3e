package erc4337

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeHandleOps(t *testing.T) {
	beneficiary := common.HexToAddress("0x00000000000000000000000000000000000000be")

	sponsored := testUserOp()
	sponsored.Paymaster = testSponsor()
	sponsored.Signature = bytes.Repeat([]byte{0xcd}, 65)

	p1, err := testUserOp().Pack()
	require.NoError(t, err)
	p2, err := sponsored.Pack()
	require.NoError(t, err)

	data, err := EncodeHandleOps([]*PackedUserOp{p1, p2}, beneficiary)
	require.NoError(t, err)

	assert.Equal(t, "0x765e827f", hexutil.Encode(data[:4]))
	// head: offset of ops, beneficiary
	assert.Equal(t, common.LeftPadBytes(beneficiary.Bytes(), 32), data[4+32:4+64])
	assert.Equal(t, big.NewInt(2), new(big.Int).SetBytes(data[4+64:4+96]), "array length")
	assert.True(t, bytes.Contains(data, p2.PaymasterAndData))
	assert.True(t, bytes.Contains(data, p2.Signature))
	assert.True(t, bytes.Contains(data, p1.AccountGasLimits[:]))
}

func TestEncodeHandleOps_Empty(t *testing.T) {
	data, err := EncodeHandleOps(nil, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, "0x765e827f", hexutil.Encode(data[:4]))
	assert.Len(t, data, 4+3*32)
}

func TestEncodeHandleOps_NilOp(t *testing.T) {
	_, err := EncodeHandleOps([]*PackedUserOp{nil}, common.Address{})
	var encErr *EncodingError
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, "ops[0]", encErr.Field)
}

func TestGetNonce(t *testing.T) {
	sender := common.HexToAddress("0x47D6a8A65cBa9b61B194daC740AA192A7A1e91e1")
	nonce, ok := new(big.Int).SetString("0100000000002b0ecfbd0496ee71e01257da0e37de00000000000000000000", 16)
	require.True(t, ok)

	key := NonceKey(nonce)
	assert.Equal(t, new(big.Int).Rsh(nonce, 64), key)

	data, err := EncodeGetNonce(sender, key)
	require.NoError(t, err)
	assert.Equal(t, "0x35567e1a", hexutil.Encode(data[:4]))
	assert.Len(t, data, 4+2*32)

	decoded, err := DecodeGetNonce(common.LeftPadBytes(nonce.Bytes(), 32))
	require.NoError(t, err)
	assert.Equal(t, 0, nonce.Cmp(decoded))

	_, err = EncodeGetNonce(sender, new(big.Int).Lsh(big.NewInt(1), 192))
	assert.ErrorIs(t, err, ErrValueOverflow)
}
