package app

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethaccount/sponsorop/erc4337"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillJSON(t *testing.T, partial *erc4337.PartialUserOperation, defaults erc4337.Defaults) string {
	t.Helper()
	op, err := erc4337.FillDefaults(partial, defaults)
	require.NoError(t, err)
	data, err := json.Marshal(op)
	require.NoError(t, err)
	return string(data)
}

func TestLoadDefaults_Builtin(t *testing.T) {
	defaults, err := LoadDefaults("")
	require.NoError(t, err)

	sender := common.HexToAddress("0x1234567890123456789012345678901234567890")
	paymaster := common.HexToAddress("0xfedcbafedcbafedcbafedcbafedcbafedcbafeda")

	partials := []*erc4337.PartialUserOperation{
		{Sender: &sender},
		{Sender: &sender, Paymaster: &paymaster},
	}
	for _, partial := range partials {
		assert.JSONEq(t,
			fillJSON(t, partial, erc4337.DefaultsForUserOp()),
			fillJSON(t, partial, defaults),
		)
	}

	values := defaults.Values()
	assert.Nil(t, values.Sender)
	assert.Equal(t, "150000", values.VerificationGasLimit.String())
}

func TestLoadDefaults_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
verificationGasLimit: "0x30d40"
maxFeePerGas: "2000000000"
`), 0o600))

	defaults, err := LoadDefaults(path)
	require.NoError(t, err)

	values := defaults.Values()
	assert.Equal(t, "200000", values.VerificationGasLimit.String())
	assert.Equal(t, "2000000000", values.MaxFeePerGas.String())
	assert.Nil(t, values.Nonce)

	sender := common.HexToAddress("0x1234567890123456789012345678901234567890")
	_, err = erc4337.FillDefaults(&erc4337.PartialUserOperation{Sender: &sender}, defaults)
	var missing *erc4337.MissingFieldError
	require.ErrorAs(t, err, &missing)
}

func TestLoadDefaults_Errors(t *testing.T) {
	_, err := LoadDefaults(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseDefaults([]byte(`callGasLimit: "-5"`))
	assert.Error(t, err)

	_, err = ParseDefaults([]byte(`[not, a, table]`))
	assert.Error(t, err)
}

func TestParseDefaults_UnknownKey(t *testing.T) {
	_, err := ParseDefaults([]byte(`
verificationGaslimit: "200000"
maxFeePerGas: "2000000000"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verificationGaslimit")
}

func TestParseDefaults_Empty(t *testing.T) {
	defaults, err := ParseDefaults([]byte(""))
	require.NoError(t, err)

	values := defaults.Values()
	assert.Nil(t, values.Nonce)
	assert.Nil(t, values.VerificationGasLimit)
}
