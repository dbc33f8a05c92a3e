package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethaccount/sponsorop/erc4337"
	"github.com/ethaccount/sponsorop/src/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReceipt(t *testing.T, userOpHash, txHash common.Hash, success bool, reason string) *erc4337.UserOperationReceipt {
	t.Helper()
	raw := fmt.Sprintf(`{
		"userOpHash": %q,
		"sender": %q,
		"nonce": "0x1",
		"success": %t,
		"reason": %q,
		"actualGasCost": "0x1",
		"actualGasUsed": "0x1",
		"receipt": {"transactionHash": %q}
	}`, userOpHash.Hex(), testSender.Hex(), success, reason, txHash.Hex())

	var receipt erc4337.UserOperationReceipt
	require.NoError(t, json.Unmarshal([]byte(raw), &receipt))
	return &receipt
}

func storeSubmitted(t *testing.T, store *fakeStore, op *erc4337.UserOperation, chainID int64) common.Hash {
	t.Helper()
	hash, err := erc4337.UserOpHash(op, erc4337.EntryPointV07, big.NewInt(chainID))
	require.NoError(t, err)
	_, err = store.Create(context.Background(), op, hash, erc4337.EntryPointV07, big.NewInt(chainID), nil, domain.OperationStatusSubmitted)
	require.NoError(t, err)
	return hash
}

func TestReceiptPoller_Poll(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	bundler := &fakeBundler{receipts: make(map[common.Hash]*erc4337.UserOperationReceipt)}
	poller := NewReceiptPoller(store, &fakeChains{bundler: bundler}, PollingConfig{})

	included := storeSubmitted(t, store, testOp(t), ChainIDSepolia)

	reverted := testOp(t)
	reverted.Nonce = big.NewInt(2)
	revertedHash := storeSubmitted(t, store, reverted, ChainIDSepolia)

	pending := testOp(t)
	pending.Nonce = big.NewInt(3)
	pendingHash := storeSubmitted(t, store, pending, ChainIDSepolia)

	unsupported := testOp(t)
	unsupported.Nonce = big.NewInt(4)
	unsupportedHash := storeSubmitted(t, store, unsupported, 5)

	includedTx := common.HexToHash("0x01")
	revertedTx := common.HexToHash("0x02")
	bundler.receipts[included] = testReceipt(t, included, includedTx, true, "")
	bundler.receipts[revertedHash] = testReceipt(t, revertedHash, revertedTx, false, "")

	require.NoError(t, poller.poll(ctx))

	record, err := store.FindByHash(ctx, included)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationStatusIncluded, record.Status)
	require.NotNil(t, record.TxHash)
	assert.Equal(t, includedTx.Hex(), *record.TxHash)
	assert.Nil(t, record.ErrMsg)

	record, err = store.FindByHash(ctx, revertedHash)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationStatusFailed, record.Status)
	require.NotNil(t, record.ErrMsg)
	assert.Equal(t, "execution reverted", *record.ErrMsg)

	assert.Equal(t, domain.OperationStatusSubmitted, store.status(t, pendingHash))
	assert.Equal(t, domain.OperationStatusSubmitted, store.status(t, unsupportedHash))

	// settled operations are not polled again
	delete(bundler.receipts, included)
	require.NoError(t, poller.poll(ctx))
	assert.Equal(t, domain.OperationStatusIncluded, store.status(t, included))
}

func TestReceiptPoller_StartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	poller := NewReceiptPoller(newFakeStore(), &fakeChains{}, PollingConfig{PollingInterval: 5 * time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- poller.Start(ctx) }()
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
}
