package service

import (
	"context"
	"time"

	"github.com/ethaccount/sponsorop/src/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

const defaultPollingInterval = 15 * time.Second

// ReceiptPoller moves submitted operations to included or failed once their
// bundler reports a receipt
type ReceiptPoller struct {
	store           OperationStore
	chains          ChainBackend
	pollingInterval time.Duration
}

type PollingConfig struct {
	PollingInterval time.Duration
}

func NewReceiptPoller(store OperationStore, chains ChainBackend, config PollingConfig) *ReceiptPoller {
	if config.PollingInterval <= 0 {
		config.PollingInterval = defaultPollingInterval
	}
	return &ReceiptPoller{
		store:           store,
		chains:          chains,
		pollingInterval: config.PollingInterval,
	}
}

// logger wraps the execution context with component info
func (s *ReceiptPoller) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("component", "receipt-poller").Logger()
	return &l
}

// Start runs the polling loop until ctx is cancelled
func (s *ReceiptPoller) Start(ctx context.Context) error {
	s.logger(ctx).Info().
		Dur("polling_interval", s.pollingInterval).
		Msg("starting receipt poller")

	ticker := time.NewTicker(s.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger(ctx).Info().Msg("receipt poller stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.poll(ctx); err != nil {
				s.logger(ctx).Error().Err(err).Msg("polling cycle failed")
			}
		}
	}
}

// poll performs a single polling cycle
func (s *ReceiptPoller) poll(ctx context.Context) error {
	ops, err := s.store.FindByStatus(ctx, domain.OperationStatusSubmitted)
	if err != nil {
		return err
	}

	if len(ops) == 0 {
		s.logger(ctx).Debug().Msg("no submitted operations")
		return nil
	}

	settled := 0
	for _, op := range ops {
		logger := s.logger(ctx).With().
			Str("user_op_hash", op.UserOpHash).
			Int64("chain_id", op.ChainID).
			Logger()

		bundler, err := s.chains.GetBundlerClient(ctx, op.ChainID)
		if err != nil {
			logger.Error().Err(err).Msg("failed to get bundler client")
			continue
		}

		userOpHash := common.HexToHash(op.UserOpHash)
		receipt, err := bundler.GetUserOperationReceipt(ctx, userOpHash)
		if err != nil {
			logger.Error().Err(err).Msg("failed to get user operation receipt")
			continue
		}
		if receipt == nil {
			continue
		}

		txHash := receipt.TransactionHash().Hex()
		update := domain.StatusUpdate{TxHash: &txHash}
		status := domain.OperationStatusIncluded
		if !receipt.Success {
			status = domain.OperationStatusFailed
			reason := receipt.Reason
			if reason == "" {
				reason = "execution reverted"
			}
			update.ErrMsg = &reason
		}

		if err := s.store.UpdateStatus(ctx, userOpHash, status, update); err != nil {
			logger.Error().Err(err).Msg("failed to update operation status")
			continue
		}
		settled++

		logger.Info().
			Str("status", string(status)).
			Str("tx_hash", txHash).
			Msg("operation settled")
	}

	s.logger(ctx).Debug().
		Int("submitted", len(ops)).
		Int("settled", settled).
		Msg("polling cycle completed")

	return nil
}
