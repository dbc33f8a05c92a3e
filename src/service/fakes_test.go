package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethaccount/sponsorop/erc4337"
	"github.com/ethaccount/sponsorop/src/domain"
	"github.com/ethaccount/sponsorop/src/repository"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	// Private key 1 and 2, addresses 0x7E5F...5Bdf and 0x2B5A...D6cF.
	testPrivateKey  = "0x0000000000000000000000000000000000000000000000000000000000000001"
	otherPrivateKey = "0000000000000000000000000000000000000000000000000000000000000002"
)

var (
	testSignerAddress = common.HexToAddress("0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf")
	testSender        = common.HexToAddress("0x1234567890123456789012345678901234567890")
)

type fakeStore struct {
	mu      sync.Mutex
	records map[common.Hash]*domain.SignedOperation
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[common.Hash]*domain.SignedOperation)}
}

func (f *fakeStore) Create(_ context.Context, userOp *erc4337.UserOperation, userOpHash common.Hash, entryPoint common.Address, chainID *big.Int, signer *common.Address, status domain.OperationStatus) (*domain.SignedOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.records[userOpHash]; exists {
		return nil, repository.ErrOperationExists
	}
	userOpJSON, err := json.Marshal(userOp)
	if err != nil {
		return nil, err
	}
	record := &domain.SignedOperation{
		ID:                uuid.New(),
		UserOpHash:        userOpHash.Hex(),
		Sender:            userOp.Sender.Hex(),
		Nonce:             userOp.Nonce.String(),
		ChainID:           chainID.Int64(),
		EntryPointAddress: entryPoint.Hex(),
		UserOperation:     userOpJSON,
		Status:            status,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	if signer != nil {
		s := signer.Hex()
		record.Signer = &s
	}
	f.records[userOpHash] = record
	cp := *record
	return &cp, nil
}

func (f *fakeStore) FindByHash(_ context.Context, userOpHash common.Hash) (*domain.SignedOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.records[userOpHash]
	if !ok {
		return nil, repository.ErrOperationNotFound
	}
	cp := *record
	return &cp, nil
}

func (f *fakeStore) FindByStatus(_ context.Context, status domain.OperationStatus) ([]*domain.SignedOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*domain.SignedOperation
	for _, record := range f.records {
		if record.Status == status {
			cp := *record
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, userOpHash common.Hash, status domain.OperationStatus, update domain.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.records[userOpHash]
	if !ok {
		return repository.ErrOperationNotFound
	}
	record.Status = status
	if update.BundlerHash != nil {
		record.BundlerHash = update.BundlerHash
	}
	if update.TxHash != nil {
		record.TxHash = update.TxHash
	}
	if update.ErrMsg != nil {
		record.ErrMsg = update.ErrMsg
	}
	record.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) status(t *testing.T, userOpHash common.Hash) domain.OperationStatus {
	t.Helper()
	record, err := f.FindByHash(context.Background(), userOpHash)
	require.NoError(t, err)
	return record.Status
}

type fakeQueue struct {
	mu       sync.Mutex
	jobs     chan domain.RelayJob
	enqueued []domain.RelayJob
	statuses map[string]domain.RelayResult
	failWith error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		jobs:     make(chan domain.RelayJob, 64),
		statuses: make(map[string]domain.RelayResult),
	}
}

func (f *fakeQueue) Enqueue(_ context.Context, job domain.RelayJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return f.failWith
	}
	f.enqueued = append(f.enqueued, job)
	f.jobs <- job
	return nil
}

func (f *fakeQueue) Dequeue(ctx context.Context, timeout time.Duration) (*domain.RelayJob, error) {
	select {
	case job := <-f.jobs:
		return &job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, repository.ErrQueueEmpty
	}
}

func (f *fakeQueue) SetStatus(_ context.Context, result domain.RelayResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	result.UpdatedAt = time.Now()
	f.statuses[result.UserOpHash] = result
	return nil
}

func (f *fakeQueue) GetStatus(_ context.Context, userOpHash string) (*domain.RelayResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	result, ok := f.statuses[userOpHash]
	if !ok {
		return nil, nil
	}
	return &result, nil
}

func (f *fakeQueue) statusOf(userOpHash common.Hash) (domain.RelayResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	result, ok := f.statuses[userOpHash.Hex()]
	return result, ok
}

func (f *fakeQueue) enqueuedJobs() []domain.RelayJob {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]domain.RelayJob(nil), f.enqueued...)
}

type fakeBundler struct {
	mu        sync.Mutex
	sendHash  common.Hash
	sendErr   error
	sent      []*erc4337.UserOperation
	estimates *erc4337.GasEstimates
	receipts  map[common.Hash]*erc4337.UserOperationReceipt
}

func (f *fakeBundler) ChainId(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeBundler) SupportedEntryPoints(context.Context) ([]common.Address, error) {
	return []common.Address{erc4337.EntryPointV07}, nil
}

func (f *fakeBundler) EstimateUserOperationGas(context.Context, *erc4337.UserOperation, common.Address) (*erc4337.GasEstimates, error) {
	if f.estimates == nil {
		return nil, errors.New("estimation failed")
	}
	return f.estimates, nil
}

func (f *fakeBundler) SendUserOperation(_ context.Context, op *erc4337.UserOperation, _ common.Address) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, op)
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	return f.sendHash, nil
}

func (f *fakeBundler) GetUserOperationReceipt(_ context.Context, userOpHash common.Hash) (*erc4337.UserOperationReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.receipts[userOpHash], nil
}

func (f *fakeBundler) Close() {}

func (f *fakeBundler) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeChains struct {
	bundler *fakeBundler
	nonce   *big.Int
	err     error
}

func (f *fakeChains) supported(chainId int64) bool {
	return chainId == 1 || chainId == ChainIDSepolia
}

func (f *fakeChains) GetBundlerClient(_ context.Context, chainId int64) (erc4337.Bundler, error) {
	if !f.supported(chainId) {
		return nil, ErrUnsupportedChain
	}
	return f.bundler, nil
}

func (f *fakeChains) GetNonce(_ context.Context, chainId int64, _, _ common.Address, _ *big.Int) (*big.Int, error) {
	if !f.supported(chainId) {
		return nil, ErrUnsupportedChain
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.nonce, nil
}

func requireDomainError(t *testing.T, err error, code domain.ErrorCode) domain.DomainError {
	t.Helper()
	var domainErr domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, code.Name, domainErr.Name())
	return domainErr
}
