package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethaccount/sponsorop/src/domain"
	"github.com/ethaccount/sponsorop/src/repository"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

const (
	defaultDequeueTimeout = 1 * time.Second
	defaultMaxAttempts    = 3
)

type RelayWorkerConfig struct {
	DequeueTimeout time.Duration
	MaxAttempts    int
}

// RelayWorker forwards queued operations to the bundler of their chain
type RelayWorker struct {
	store          OperationStore
	queue          RelayQueue
	chains         ChainBackend
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	dequeueTimeout time.Duration
	maxAttempts    int
}

func NewRelayWorker(ctx context.Context, store OperationStore, queue RelayQueue, chains ChainBackend, config RelayWorkerConfig) *RelayWorker {
	ctx, cancel := context.WithCancel(ctx)

	if config.DequeueTimeout <= 0 {
		config.DequeueTimeout = defaultDequeueTimeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}

	return &RelayWorker{
		store:          store,
		queue:          queue,
		chains:         chains,
		ctx:            ctx,
		cancel:         cancel,
		dequeueTimeout: config.DequeueTimeout,
		maxAttempts:    config.MaxAttempts,
	}
}

// logger wraps the execution context with component info
func (w *RelayWorker) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("component", "relay-worker").Logger()
	return &l
}

// Start begins consuming the relay queue
func (w *RelayWorker) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop gracefully shuts down the worker
func (w *RelayWorker) Stop() {
	w.cancel()
	w.wg.Wait()
}

// run continuously processes jobs from the queue
func (w *RelayWorker) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(w.ctx, w.dequeueTimeout)
			if err != nil {
				if errors.Is(err, repository.ErrQueueEmpty) {
					continue
				}
				// if context was cancelled (during shutdown), ignore error
				if w.ctx.Err() != nil {
					return
				}
				w.logger(w.ctx).Error().Err(err).Msg("error popping from relay queue")
				continue
			}

			w.processJob(w.ctx, *job)
		}
	}
}

// processJob sends one queued operation to its bundler and records the outcome
func (w *RelayWorker) processJob(ctx context.Context, job domain.RelayJob) {
	logger := w.logger(ctx).With().
		Str("job_id", job.ID.String()).
		Str("user_op_hash", job.UserOpHash).
		Int64("chain_id", job.ChainID).
		Int("attempt", job.Attempt).
		Logger()

	userOpHash := common.HexToHash(job.UserOpHash)

	record, err := w.store.FindByHash(ctx, userOpHash)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load queued operation")
		w.setStatus(ctx, job, domain.RelayStatusFailed, "", err.Error())
		return
	}
	if record.Status != domain.OperationStatusQueued {
		logger.Info().Str("status", string(record.Status)).Msg("skipping operation that is no longer queued")
		return
	}

	userOp, err := record.GetUserOperation()
	if err != nil {
		w.fail(ctx, job, err)
		return
	}

	bundler, err := w.chains.GetBundlerClient(ctx, record.ChainID)
	if err != nil {
		w.fail(ctx, job, err)
		return
	}

	bundlerHash, err := bundler.SendUserOperation(ctx, userOp, common.HexToAddress(record.EntryPointAddress))
	if err != nil {
		if job.Attempt+1 < w.maxAttempts {
			logger.Warn().Err(err).Msg("bundler rejected operation, retrying")
			retry := job
			retry.Attempt++
			retry.EnqueuedAt = time.Now()
			if err := w.queue.Enqueue(ctx, retry); err != nil {
				w.fail(ctx, job, err)
				return
			}
			w.setStatus(ctx, retry, domain.RelayStatusPending, "", err.Error())
			return
		}
		w.fail(ctx, job, err)
		return
	}

	hashHex := bundlerHash.Hex()
	if err := w.store.UpdateStatus(ctx, userOpHash, domain.OperationStatusSubmitted, domain.StatusUpdate{BundlerHash: &hashHex}); err != nil {
		logger.Error().Err(err).Msg("failed to mark operation submitted")
	}
	w.setStatus(ctx, job, domain.RelayStatusCompleted, hashHex, "")

	logger.Info().Str("bundler_hash", hashHex).Msg("operation sent to bundler")
}

func (w *RelayWorker) fail(ctx context.Context, job domain.RelayJob, cause error) {
	w.logger(ctx).Error().Err(cause).
		Str("job_id", job.ID.String()).
		Str("user_op_hash", job.UserOpHash).
		Msg("relay job failed")

	msg := cause.Error()
	if err := w.store.UpdateStatus(ctx, common.HexToHash(job.UserOpHash), domain.OperationStatusFailed, domain.StatusUpdate{ErrMsg: &msg}); err != nil {
		w.logger(ctx).Error().Err(err).Str("user_op_hash", job.UserOpHash).Msg("failed to mark operation failed")
	}
	w.setStatus(ctx, job, domain.RelayStatusFailed, "", msg)
}

// setStatus updates the relay status cache
func (w *RelayWorker) setStatus(ctx context.Context, job domain.RelayJob, status domain.RelayStatus, bundlerHash, message string) {
	err := w.queue.SetStatus(ctx, domain.RelayResult{
		JobID:       job.ID,
		UserOpHash:  job.UserOpHash,
		ChainID:     job.ChainID,
		BundlerHash: bundlerHash,
		Status:      status,
		Error:       message,
	})
	if err != nil {
		w.logger(ctx).Error().Err(err).Str("user_op_hash", job.UserOpHash).Msg("error setting relay status")
	}
}
