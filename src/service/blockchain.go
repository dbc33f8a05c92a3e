package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethaccount/sponsorop/erc4337"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

const (
	ChainIDSepolia         int64 = 11155111
	ChainIDArbitrumSepolia int64 = 421614
	ChainIDBaseSepolia     int64 = 84532
	ChainIDOptimismSepolia int64 = 11155420
	ChainIDPolygonAmoy     int64 = 80002
)

type BlockchainConfig struct {
	SepoliaRPCURL         string
	ArbitrumSepoliaRPCURL string
	BaseSepoliaRPCURL     string
	OptimismSepoliaRPCURL string
	PolygonAmoyRPCURL     string
}

// RPCURLs returns the configured endpoint per chain id. Chains without a URL are
// left out.
func (c BlockchainConfig) RPCURLs() map[int64]string {
	urls := make(map[int64]string)
	for chainID, url := range map[int64]string{
		ChainIDSepolia:         c.SepoliaRPCURL,
		ChainIDArbitrumSepolia: c.ArbitrumSepoliaRPCURL,
		ChainIDBaseSepolia:     c.BaseSepoliaRPCURL,
		ChainIDOptimismSepolia: c.OptimismSepoliaRPCURL,
		ChainIDPolygonAmoy:     c.PolygonAmoyRPCURL,
	} {
		if url != "" {
			urls[chainID] = url
		}
	}
	return urls
}

// BlockchainService keeps one node client and one bundler client per chain. Both
// talk to the same endpoint, which must serve the eth_ and bundler namespaces.
type BlockchainService struct {
	rpcURLs     map[int64]string
	clientPool  map[int64]*ethclient.Client
	bundlerPool map[int64]erc4337.Bundler
	dialBundler func(ctx context.Context, url string) (erc4337.Bundler, error)
	mu          sync.RWMutex
}

func NewBlockchainService(config BlockchainConfig) *BlockchainService {
	return NewBlockchainServiceWithURLs(config.RPCURLs())
}

func NewBlockchainServiceWithURLs(rpcURLs map[int64]string) *BlockchainService {
	urls := make(map[int64]string, len(rpcURLs))
	for k, v := range rpcURLs {
		urls[k] = v
	}
	return &BlockchainService{
		rpcURLs:     urls,
		clientPool:  make(map[int64]*ethclient.Client),
		bundlerPool: make(map[int64]erc4337.Bundler),
		dialBundler: func(ctx context.Context, url string) (erc4337.Bundler, error) {
			return erc4337.DialContext(ctx, url)
		},
	}
}

// logger wraps the execution context with component info
func (b *BlockchainService) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "blockchain").Logger()
	return &l
}

// SupportsChain reports whether an endpoint is configured for the chain
func (b *BlockchainService) SupportsChain(chainId int64) bool {
	_, ok := b.rpcURLs[chainId]
	return ok
}

func (b *BlockchainService) rpcURL(chainId int64) (string, error) {
	url, ok := b.rpcURLs[chainId]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnsupportedChain, chainId)
	}
	return url, nil
}

func (b *BlockchainService) GetClient(chainId int64) (*ethclient.Client, error) {
	b.mu.RLock()
	if client, exists := b.clientPool[chainId]; exists {
		b.mu.RUnlock()
		return client, nil
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	// Double-check pattern
	if client, exists := b.clientPool[chainId]; exists {
		return client, nil
	}

	rpcUrl, err := b.rpcURL(chainId)
	if err != nil {
		return nil, err
	}

	client, err := ethclient.Dial(rpcUrl)
	if err != nil {
		return nil, err
	}

	if b.clientPool == nil {
		b.clientPool = make(map[int64]*ethclient.Client)
	}
	b.clientPool[chainId] = client

	return client, nil
}

// GetBundlerClient returns the cached bundler client for a given chain ID
func (b *BlockchainService) GetBundlerClient(ctx context.Context, chainId int64) (erc4337.Bundler, error) {
	b.mu.RLock()
	if bundler, exists := b.bundlerPool[chainId]; exists {
		b.mu.RUnlock()
		return bundler, nil
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	if bundler, exists := b.bundlerPool[chainId]; exists {
		return bundler, nil
	}

	bundlerURL, err := b.rpcURL(chainId)
	if err != nil {
		b.logger(ctx).Error().Err(err).
			Int64("chain_id", chainId).
			Msg("failed to get bundler URL")
		return nil, err
	}

	bundler, err := b.dialBundler(ctx, bundlerURL)
	if err != nil {
		b.logger(ctx).Error().Err(err).
			Int64("chain_id", chainId).
			Msg("failed to create bundler client")
		return nil, fmt.Errorf("failed to create bundler client for chain %d: %w", chainId, err)
	}

	if b.bundlerPool == nil {
		b.bundlerPool = make(map[int64]erc4337.Bundler)
	}
	b.bundlerPool[chainId] = bundler

	b.logger(ctx).Debug().
		Int64("chain_id", chainId).
		Msg("created bundler client")

	return bundler, nil
}

// GetNonce reads the next nonce of sender under key from the EntryPoint
func (b *BlockchainService) GetNonce(ctx context.Context, chainId int64, entryPoint, sender common.Address, key *big.Int) (*big.Int, error) {
	client, err := b.GetClient(chainId)
	if err != nil {
		b.logger(ctx).Error().Err(err).
			Int64("chain_id", chainId).
			Msg("failed to get blockchain client")
		return nil, err
	}

	calldata, err := erc4337.EncodeGetNonce(sender, key)
	if err != nil {
		return nil, err
	}

	result, err := client.CallContract(ctx, ethereum.CallMsg{
		To:   &entryPoint,
		Data: calldata,
	}, nil)
	if err != nil {
		b.logger(ctx).Error().Err(err).
			Str("entry_point", entryPoint.Hex()).
			Str("sender", sender.Hex()).
			Int64("chain_id", chainId).
			Msg("failed to call getNonce")
		return nil, fmt.Errorf("failed to call getNonce: %w", err)
	}

	nonce, err := erc4337.DecodeGetNonce(result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode getNonce result: %w", err)
	}

	b.logger(ctx).Debug().
		Str("sender", sender.Hex()).
		Str("nonce", nonce.String()).
		Int64("chain_id", chainId).
		Msg("read nonce from entry point")

	return nonce, nil
}

// Close closes all client connections and cleans up the connection pools
func (b *BlockchainService) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, client := range b.clientPool {
		client.Close()
	}
	for _, bundler := range b.bundlerPool {
		bundler.Close()
	}
	b.clientPool = nil
	b.bundlerPool = nil
}
