package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethaccount/sponsorop/erc4337"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newEthCallServer answers eth_call with a single uint256 word and records the
// call data it received.
func newEthCallServer(t *testing.T, word *big.Int) (*httptest.Server, func() []byte) {
	t.Helper()
	var mu sync.Mutex
	var lastInput []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if req.Method != "eth_call" {
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"method not found"}}`, req.ID)
			return
		}

		var msg struct {
			Data  hexutil.Bytes `json:"data"`
			Input hexutil.Bytes `json:"input"`
		}
		_ = json.Unmarshal(req.Params[0], &msg)
		mu.Lock()
		lastInput = msg.Input
		if len(lastInput) == 0 {
			lastInput = msg.Data
		}
		mu.Unlock()

		result := hexutil.Encode(common.LeftPadBytes(word.Bytes(), 32))
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%q}`, req.ID, result)
	}))
	t.Cleanup(server.Close)

	return server, func() []byte {
		mu.Lock()
		defer mu.Unlock()
		return lastInput
	}
}

func TestBlockchainConfig_RPCURLs(t *testing.T) {
	urls := BlockchainConfig{
		SepoliaRPCURL:     "https://sepolia.example",
		BaseSepoliaRPCURL: "https://base-sepolia.example",
	}.RPCURLs()

	assert.Equal(t, map[int64]string{
		ChainIDSepolia:     "https://sepolia.example",
		ChainIDBaseSepolia: "https://base-sepolia.example",
	}, urls)
}

func TestBlockchainService_UnsupportedChain(t *testing.T) {
	b := NewBlockchainService(BlockchainConfig{SepoliaRPCURL: "http://localhost:0"})

	assert.True(t, b.SupportsChain(ChainIDSepolia))
	assert.False(t, b.SupportsChain(1))

	_, err := b.GetClient(1)
	assert.ErrorIs(t, err, ErrUnsupportedChain)

	_, err = b.GetBundlerClient(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUnsupportedChain)

	_, err = b.GetNonce(context.Background(), 1, erc4337.EntryPointV07, testSender, nil)
	assert.ErrorIs(t, err, ErrUnsupportedChain)
}

func TestBlockchainService_GetBundlerClientCaches(t *testing.T) {
	b := NewBlockchainServiceWithURLs(map[int64]string{ChainIDSepolia: "http://bundler.example"})

	dials := 0
	b.dialBundler = func(_ context.Context, url string) (erc4337.Bundler, error) {
		dials++
		assert.Equal(t, "http://bundler.example", url)
		return &fakeBundler{}, nil
	}

	first, err := b.GetBundlerClient(context.Background(), ChainIDSepolia)
	require.NoError(t, err)
	second, err := b.GetBundlerClient(context.Background(), ChainIDSepolia)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, dials)

	b.Close()
}

func TestBlockchainService_GetNonce(t *testing.T) {
	nonce := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(5), 64), big.NewInt(9))
	server, lastInput := newEthCallServer(t, nonce)

	b := NewBlockchainServiceWithURLs(map[int64]string{ChainIDSepolia: server.URL})
	defer b.Close()

	got, err := b.GetNonce(context.Background(), ChainIDSepolia, erc4337.EntryPointV07, testSender, big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, 0, nonce.Cmp(got))
	assert.Equal(t, int64(5), erc4337.NonceKey(got).Int64())

	expected, err := erc4337.EncodeGetNonce(testSender, big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, expected, lastInput())
}
