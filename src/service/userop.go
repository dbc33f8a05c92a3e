package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethaccount/sponsorop/erc4337"
	"github.com/ethaccount/sponsorop/src/domain"
	"github.com/ethaccount/sponsorop/src/repository"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

// OperationStore persists hashed operations.
type OperationStore interface {
	Create(ctx context.Context, userOp *erc4337.UserOperation, userOpHash common.Hash, entryPoint common.Address, chainID *big.Int, signer *common.Address, status domain.OperationStatus) (*domain.SignedOperation, error)
	FindByHash(ctx context.Context, userOpHash common.Hash) (*domain.SignedOperation, error)
	FindByStatus(ctx context.Context, status domain.OperationStatus) ([]*domain.SignedOperation, error)
	UpdateStatus(ctx context.Context, userOpHash common.Hash, status domain.OperationStatus, update domain.StatusUpdate) error
}

// RelayQueue carries relay jobs to the worker and caches their progress.
type RelayQueue interface {
	Enqueue(ctx context.Context, job domain.RelayJob) error
	Dequeue(ctx context.Context, timeout time.Duration) (*domain.RelayJob, error)
	SetStatus(ctx context.Context, result domain.RelayResult) error
	GetStatus(ctx context.Context, userOpHash string) (*domain.RelayResult, error)
}

// ChainBackend gives access to the bundler and the EntryPoint of a chain.
type ChainBackend interface {
	GetBundlerClient(ctx context.Context, chainId int64) (erc4337.Bundler, error)
	GetNonce(ctx context.Context, chainId int64, entryPoint, sender common.Address, key *big.Int) (*big.Int, error)
}

var (
	_ OperationStore = (*repository.SignedOperationRepository)(nil)
	_ RelayQueue     = (*repository.RelayQueueRepository)(nil)
	_ ChainBackend   = (*BlockchainService)(nil)
)

type UserOpConfig struct {
	EntryPoint common.Address
	ChainID    int64
	// PrivateKey is the hex encoded signing key, with or without 0x prefix.
	PrivateKey string
	Defaults   erc4337.Defaults
}

// Target selects the EntryPoint and chain an operation is bound to. Nil fields
// fall back to the service configuration.
type Target struct {
	EntryPoint *common.Address
	ChainID    *int64
}

type SignResult struct {
	UserOp     *erc4337.UserOperation `json:"userOp"`
	UserOpHash common.Hash            `json:"userOpHash"`
	Signer     common.Address         `json:"signer"`
	EntryPoint common.Address         `json:"entryPoint"`
	ChainID    int64                  `json:"chainId"`
}

type VerifyResult struct {
	UserOpHash common.Hash    `json:"userOpHash"`
	Signer     common.Address `json:"signer"`
	// Valid reports whether the recovered signer is the service key.
	Valid bool `json:"valid"`
}

type OperationView struct {
	Operation *domain.SignedOperation `json:"operation"`
	Relay     *domain.RelayResult     `json:"relay,omitempty"`
}

// UserOpService fills, hashes and signs operations for the configured sponsor key
// and hands signed operations to the relay queue.
type UserOpService struct {
	store      OperationStore
	queue      RelayQueue
	chains     ChainBackend
	entryPoint common.Address
	chainID    int64
	privateKey string
	signer     common.Address
	defaults   erc4337.Defaults
}

func NewUserOpService(store OperationStore, queue RelayQueue, chains ChainBackend, config UserOpConfig) (*UserOpService, error) {
	privateKey := strings.TrimPrefix(config.PrivateKey, "0x")

	key, err := crypto.HexToECDSA(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	signer := crypto.PubkeyToAddress(key.PublicKey)
	clear(key.D.Bits())

	if config.ChainID <= 0 {
		return nil, fmt.Errorf("invalid chain id: %d", config.ChainID)
	}

	return &UserOpService{
		store:      store,
		queue:      queue,
		chains:     chains,
		entryPoint: config.EntryPoint,
		chainID:    config.ChainID,
		privateKey: privateKey,
		signer:     signer,
		defaults:   config.Defaults,
	}, nil
}

// logger wraps the execution context with component info
func (s *UserOpService) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "userop").Logger()
	return &l
}

// Signer returns the address of the service signing key
func (s *UserOpService) Signer() common.Address {
	return s.signer
}

func (s *UserOpService) resolve(target Target) (common.Address, int64) {
	entryPoint := s.entryPoint
	if target.EntryPoint != nil {
		entryPoint = *target.EntryPoint
	}
	chainID := s.chainID
	if target.ChainID != nil {
		chainID = *target.ChainID
	}
	return entryPoint, chainID
}

// Fill completes a partial operation from the defaults table
func (s *UserOpService) Fill(ctx context.Context, partial *erc4337.PartialUserOperation) (*erc4337.UserOperation, error) {
	op, err := erc4337.FillDefaults(partial, s.defaults)
	if err != nil {
		s.logger(ctx).Debug().Err(err).Msg("failed to fill user operation")
		return nil, toDomainError(err)
	}
	return op, nil
}

func (s *UserOpService) Pack(ctx context.Context, op *erc4337.UserOperation) (*erc4337.PackedUserOp, error) {
	packed, err := op.Pack()
	if err != nil {
		s.logger(ctx).Debug().Err(err).Msg("failed to pack user operation")
		return nil, toDomainError(err)
	}
	return packed, nil
}

func (s *UserOpService) Hash(ctx context.Context, op *erc4337.UserOperation, target Target) (common.Hash, error) {
	entryPoint, chainID := s.resolve(target)
	hash, err := erc4337.UserOpHash(op, entryPoint, big.NewInt(chainID))
	if err != nil {
		s.logger(ctx).Debug().Err(err).Msg("failed to hash user operation")
		return common.Hash{}, toDomainError(err)
	}
	return hash, nil
}

// Sign fills the partial operation, signs it with the service key and records it
// with status signed
func (s *UserOpService) Sign(ctx context.Context, partial *erc4337.PartialUserOperation, target Target) (*SignResult, error) {
	entryPoint, chainID := s.resolve(target)

	op, err := erc4337.FillDefaults(partial, s.defaults)
	if err != nil {
		return nil, toDomainError(err)
	}

	key, err := hexutil.Decode("0x" + s.privateKey)
	if err != nil {
		return nil, toDomainError(&erc4337.SigningError{Err: errors.New("invalid private key encoding")})
	}

	signed, err := erc4337.Sign(op, key, entryPoint, big.NewInt(chainID))
	if err != nil {
		s.logger(ctx).Error().Err(err).Msg("failed to sign user operation")
		return nil, toDomainError(err)
	}

	hash, err := erc4337.UserOpHash(signed, entryPoint, big.NewInt(chainID))
	if err != nil {
		return nil, toDomainError(err)
	}

	signer := s.signer
	if _, err := s.store.Create(ctx, signed, hash, entryPoint, big.NewInt(chainID), &signer, domain.OperationStatusSigned); err != nil {
		if !errors.Is(err, repository.ErrOperationExists) {
			s.logger(ctx).Error().Err(err).Str("user_op_hash", hash.Hex()).Msg("failed to store signed operation")
			return nil, toDomainError(err)
		}
		// ECDSA signatures are deterministic, so the stored record already
		// carries this exact signature.
		s.logger(ctx).Debug().Str("user_op_hash", hash.Hex()).Msg("operation already signed")
	}

	s.logger(ctx).Info().
		Str("user_op_hash", hash.Hex()).
		Str("sender", signed.Sender.Hex()).
		Int64("chain_id", chainID).
		Bool("sponsored", signed.HasPaymaster()).
		Msg("user operation signed")

	return &SignResult{
		UserOp:     signed,
		UserOpHash: hash,
		Signer:     signer,
		EntryPoint: entryPoint,
		ChainID:    chainID,
	}, nil
}

// Verify recovers the signer of a signed operation
func (s *UserOpService) Verify(ctx context.Context, op *erc4337.UserOperation, target Target) (*VerifyResult, error) {
	entryPoint, chainID := s.resolve(target)

	hash, err := erc4337.UserOpHash(op, entryPoint, big.NewInt(chainID))
	if err != nil {
		return nil, toDomainError(err)
	}

	signer, err := erc4337.RecoverSigner(op, entryPoint, big.NewInt(chainID))
	if err != nil {
		s.logger(ctx).Debug().Err(err).Str("user_op_hash", hash.Hex()).Msg("failed to recover signer")
		return nil, domain.NewError(domain.ErrorCodeParameterInvalid, err, domain.WithMsg("Invalid signature"))
	}

	return &VerifyResult{
		UserOpHash: hash,
		Signer:     signer,
		Valid:      signer == s.signer,
	}, nil
}

// Estimate asks the chain's bundler for gas limits and returns a copy of op with
// them applied
func (s *UserOpService) Estimate(ctx context.Context, op *erc4337.UserOperation, target Target) (*erc4337.UserOperation, error) {
	entryPoint, chainID := s.resolve(target)

	bundler, err := s.chains.GetBundlerClient(ctx, chainID)
	if err != nil {
		return nil, toDomainError(err)
	}

	estimates, err := bundler.EstimateUserOperationGas(ctx, op, entryPoint)
	if err != nil {
		s.logger(ctx).Error().Err(err).Int64("chain_id", chainID).Msg("failed to estimate user operation gas")
		return nil, domain.NewError(domain.ErrorCodeRemoteProcessError, err, domain.WithMsg("Bundler gas estimation failed"))
	}

	return estimates.Apply(op), nil
}

// GetNonce reads the next nonce for sender under key from the EntryPoint
func (s *UserOpService) GetNonce(ctx context.Context, sender common.Address, key *big.Int, target Target) (*big.Int, error) {
	entryPoint, chainID := s.resolve(target)

	if _, err := erc4337.EncodeGetNonce(sender, key); err != nil {
		return nil, toDomainError(err)
	}

	nonce, err := s.chains.GetNonce(ctx, chainID, entryPoint, sender, key)
	if err != nil {
		if errors.Is(err, ErrUnsupportedChain) {
			return nil, toDomainError(err)
		}
		return nil, domain.NewError(domain.ErrorCodeRemoteProcessError, err, domain.WithMsg("Failed to read nonce"))
	}
	return nonce, nil
}

// Submit queues a signed operation for relay to the bundler. An operation
// previously signed by this service moves from signed to queued.
func (s *UserOpService) Submit(ctx context.Context, op *erc4337.UserOperation, target Target) (*domain.SignedOperation, error) {
	entryPoint, chainID := s.resolve(target)

	if len(op.Signature) == 0 {
		return nil, toDomainError(ErrNotSigned)
	}

	hash, err := erc4337.UserOpHash(op, entryPoint, big.NewInt(chainID))
	if err != nil {
		return nil, toDomainError(err)
	}

	record, err := s.store.FindByHash(ctx, hash)
	switch {
	case err == nil:
		if record.Status != domain.OperationStatusSigned {
			return nil, toDomainError(ErrAlreadySubmitted)
		}
		stored, err := record.GetUserOperation()
		if err != nil {
			return nil, toDomainError(err)
		}
		if !bytes.Equal(stored.Signature, op.Signature) {
			return nil, toDomainError(fmt.Errorf("%w with a different signature", repository.ErrOperationExists))
		}
		if err := s.store.UpdateStatus(ctx, hash, domain.OperationStatusQueued, domain.StatusUpdate{}); err != nil {
			return nil, toDomainError(err)
		}
		record.Status = domain.OperationStatusQueued

	case errors.Is(err, repository.ErrOperationNotFound):
		var signer *common.Address
		if recovered, err := erc4337.RecoverSigner(op, entryPoint, big.NewInt(chainID)); err == nil {
			signer = &recovered
		}
		record, err = s.store.Create(ctx, op, hash, entryPoint, big.NewInt(chainID), signer, domain.OperationStatusQueued)
		if err != nil {
			return nil, toDomainError(err)
		}

	default:
		return nil, toDomainError(err)
	}

	job := domain.NewRelayJob(hash.Hex(), chainID)
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger(ctx).Error().Err(err).Str("user_op_hash", hash.Hex()).Msg("failed to enqueue relay job")
		// back to signed so the same operation can be submitted again
		if err := s.store.UpdateStatus(ctx, hash, domain.OperationStatusSigned, domain.StatusUpdate{}); err != nil {
			s.logger(ctx).Error().Err(err).Str("user_op_hash", hash.Hex()).Msg("failed to reset operation status")
		}
		return nil, toDomainError(fmt.Errorf("failed to enqueue relay job: %w", err))
	}

	if err := s.queue.SetStatus(ctx, domain.RelayResult{
		JobID:      job.ID,
		UserOpHash: job.UserOpHash,
		ChainID:    chainID,
		Status:     domain.RelayStatusPending,
	}); err != nil {
		s.logger(ctx).Warn().Err(err).Str("user_op_hash", hash.Hex()).Msg("failed to cache relay status")
	}

	s.logger(ctx).Info().
		Str("user_op_hash", hash.Hex()).
		Str("job_id", job.ID.String()).
		Int64("chain_id", chainID).
		Msg("user operation queued for relay")

	return record, nil
}

// GetOperation returns the stored operation and its cached relay progress
func (s *UserOpService) GetOperation(ctx context.Context, userOpHash common.Hash) (*OperationView, error) {
	record, err := s.store.FindByHash(ctx, userOpHash)
	if err != nil {
		return nil, toDomainError(err)
	}

	relay, err := s.queue.GetStatus(ctx, userOpHash.Hex())
	if err != nil {
		s.logger(ctx).Warn().Err(err).Str("user_op_hash", userOpHash.Hex()).Msg("failed to read relay status")
		relay = nil
	}

	return &OperationView{Operation: record, Relay: relay}, nil
}
