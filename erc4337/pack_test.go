package erc4337

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUint128Pair(t *testing.T) {
	maxUint128 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

	tests := []struct {
		name    string
		hi, lo  *big.Int
		want    string
		wantErr error
	}{
		{
			name: "65000 in both halves",
			hi:   big.NewInt(65000),
			lo:   big.NewInt(65000),
			want: "0x0000000000000000000000000000fde80000000000000000000000000000fde8",
		},
		{
			name: "zeros",
			hi:   big.NewInt(0),
			lo:   big.NewInt(0),
			want: "0x0000000000000000000000000000000000000000000000000000000000000000",
		},
		{
			name: "max uint128 in both halves",
			hi:   maxUint128,
			lo:   maxUint128,
			want: "0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff",
		},
		{
			name: "halves are not swapped",
			hi:   big.NewInt(1),
			lo:   big.NewInt(2),
			want: "0x0000000000000000000000000000000100000000000000000000000000000002",
		},
		{
			name:    "high half overflows",
			hi:      new(big.Int).Lsh(big.NewInt(1), 128),
			lo:      big.NewInt(0),
			wantErr: ErrValueOverflow,
		},
		{
			name:    "low half overflows",
			hi:      big.NewInt(0),
			lo:      new(big.Int).Lsh(big.NewInt(1), 128),
			wantErr: ErrValueOverflow,
		},
		{
			name:    "negative value",
			hi:      big.NewInt(-1),
			lo:      big.NewInt(0),
			wantErr: ErrNegativeValue,
		},
		{
			name:    "nil value",
			hi:      big.NewInt(0),
			lo:      nil,
			wantErr: ErrNilValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			word, err := PackUint128Pair(tt.hi, tt.lo)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				var encErr *EncodingError
				assert.True(t, errors.As(err, &encErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, hexutil.Encode(word[:]))

			hi, lo := UnpackUint128Pair(word)
			assert.Equal(t, 0, tt.hi.Cmp(hi))
			assert.Equal(t, 0, tt.lo.Cmp(lo))
		})
	}
}

func TestPackAccountGasLimits_ReportsFieldName(t *testing.T) {
	_, err := PackAccountGasLimits(big.NewInt(1), new(big.Int).Lsh(big.NewInt(1), 130))
	require.Error(t, err)

	var encErr *EncodingError
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, "callGasLimit", encErr.Field)

	_, err = PackGasFees(big.NewInt(-5), big.NewInt(1))
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, "maxPriorityFeePerGas", encErr.Field)
	assert.ErrorIs(t, err, ErrNegativeValue)
}

func TestPackPaymasterData(t *testing.T) {
	paymaster := common.HexToAddress("0xfedcbafedcbafedcbafedcbafedcbafedcbafeda")

	t.Run("sponsored", func(t *testing.T) {
		out, err := PackPaymasterData(&paymaster, big.NewInt(500000), big.NewInt(100000), hexutil.MustDecode("0x9abc"))
		require.NoError(t, err)
		assert.Equal(t,
			"0xfedcbafedcbafedcbafedcbafedcbafedcbafeda0000000000000000000000000007a120000000000000000000000000000186a09abc",
			hexutil.Encode(out))
		assert.Len(t, out, paymasterFixedSize+2)
	})

	t.Run("nil paymaster is empty", func(t *testing.T) {
		out, err := PackPaymasterData(nil, big.NewInt(500000), big.NewInt(100000), hexutil.MustDecode("0x9abc"))
		require.NoError(t, err)
		assert.NotNil(t, out)
		assert.Empty(t, out)
	})

	t.Run("zero paymaster ignores the other fields", func(t *testing.T) {
		out, err := PackPaymasterData(&common.Address{}, nil, big.NewInt(-1), []byte{1, 2, 3})
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("empty data", func(t *testing.T) {
		out, err := PackPaymasterData(&paymaster, big.NewInt(1), big.NewInt(2), nil)
		require.NoError(t, err)
		assert.Len(t, out, paymasterFixedSize)
	})

	t.Run("overflowing sub-field", func(t *testing.T) {
		_, err := PackPaymasterData(&paymaster, new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(0), nil)
		var encErr *EncodingError
		require.True(t, errors.As(err, &encErr))
		assert.Equal(t, "paymasterVerificationGasLimit", encErr.Field)
	})
}

func TestUserOperation_Pack(t *testing.T) {
	t.Run("byte ordering", func(t *testing.T) {
		op := testUserOp()
		op.VerificationGasLimit = big.NewInt(0x123456)
		op.CallGasLimit = big.NewInt(0x789abc)
		op.MaxPriorityFeePerGas = big.NewInt(0x345678)
		op.MaxFeePerGas = big.NewInt(0x9abcde)

		packed, err := op.Pack()
		require.NoError(t, err)

		expectedGasLimits := make([]byte, 32)
		copy(expectedGasLimits[13:16], []byte{0x12, 0x34, 0x56})
		copy(expectedGasLimits[29:32], []byte{0x78, 0x9a, 0xbc})
		assert.Equal(t, expectedGasLimits, packed.AccountGasLimits[:])

		expectedGasFees := make([]byte, 32)
		copy(expectedGasFees[13:16], []byte{0x34, 0x56, 0x78})
		copy(expectedGasFees[29:32], []byte{0x9a, 0xbc, 0xde})
		assert.Equal(t, expectedGasFees, packed.GasFees[:])
	})

	t.Run("no sponsor packs empty paymasterAndData", func(t *testing.T) {
		packed, err := testUserOp().Pack()
		require.NoError(t, err)
		assert.Empty(t, packed.PaymasterAndData)
	})

	t.Run("zero address sponsor packs empty paymasterAndData", func(t *testing.T) {
		op := testUserOp()
		op.Paymaster = &Sponsor{VerificationGasLimit: big.NewInt(1), PostOpGasLimit: big.NewInt(1)}
		packed, err := op.Pack()
		require.NoError(t, err)
		assert.Empty(t, packed.PaymasterAndData)
	})

	t.Run("nonce wider than 256 bits", func(t *testing.T) {
		op := testUserOp()
		op.Nonce = new(big.Int).Lsh(big.NewInt(1), 256)
		_, err := op.Pack()
		var encErr *EncodingError
		require.True(t, errors.As(err, &encErr))
		assert.Equal(t, "nonce", encErr.Field)
		assert.ErrorIs(t, err, ErrValueOverflow)
	})

	t.Run("missing preVerificationGas", func(t *testing.T) {
		op := testUserOp()
		op.PreVerificationGas = nil
		_, err := op.Pack()
		assert.ErrorIs(t, err, ErrNilValue)
	})

	t.Run("pack does not alias the operation", func(t *testing.T) {
		op := testUserOp()
		packed, err := op.Pack()
		require.NoError(t, err)
		packed.CallData[0] = 0xff
		packed.Nonce.SetInt64(99)
		assert.Equal(t, byte(0x12), op.CallData[0])
		assert.Equal(t, int64(1), op.Nonce.Int64())
	})
}

// testUserOp returns a fresh unsponsored operation used across the package tests.
func testUserOp() *UserOperation {
	return &UserOperation{
		Sender:               common.HexToAddress("0x1234567890123456789012345678901234567890"),
		Nonce:                big.NewInt(1),
		InitCode:             []byte{},
		CallData:             hexutil.MustDecode("0x1234"),
		VerificationGasLimit: big.NewInt(200000),
		CallGasLimit:         big.NewInt(100000),
		PreVerificationGas:   big.NewInt(50000),
		MaxFeePerGas:         big.NewInt(2000000),
		MaxPriorityFeePerGas: big.NewInt(1000000),
		Signature:            hexutil.MustDecode("0x5678"),
	}
}

func testSponsor() *Sponsor {
	return &Sponsor{
		Address:              common.HexToAddress("0xfedcbafedcbafedcbafedcbafedcbafedcbafeda"),
		VerificationGasLimit: big.NewInt(500000),
		PostOpGasLimit:       big.NewInt(100000),
		Data:                 hexutil.MustDecode("0x9abc"),
	}
}
