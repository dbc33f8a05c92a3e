package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethaccount/sponsorop/src/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBundlerHash = common.HexToHash("0xabababababababababababababababababababababababababababababababab")

// queueSigned signs and submits the test operation and takes its job off the queue.
func queueSigned(t *testing.T, env *testEnv) domain.RelayJob {
	t.Helper()
	ctx := context.Background()

	signed, err := env.service.Sign(ctx, testPartial(), Target{})
	require.NoError(t, err)
	_, err = env.service.Submit(ctx, signed.UserOp, Target{})
	require.NoError(t, err)

	select {
	case job := <-env.queue.jobs:
		return job
	default:
		t.Fatal("no job queued")
		return domain.RelayJob{}
	}
}

func newTestWorker(env *testEnv) *RelayWorker {
	return NewRelayWorker(context.Background(), env.store, env.queue, env.chains, RelayWorkerConfig{
		DequeueTimeout: 10 * time.Millisecond,
		MaxAttempts:    3,
	})
}

func TestRelayWorker_ProcessJob(t *testing.T) {
	ctx := context.Background()

	t.Run("sends to bundler", func(t *testing.T) {
		env := newTestEnv(t)
		env.bundler.sendHash = testBundlerHash
		job := queueSigned(t, env)

		newTestWorker(env).processJob(ctx, job)

		require.Equal(t, 1, env.bundler.sentCount())
		assert.Len(t, env.bundler.sent[0].Signature, 65)

		record, err := env.store.FindByHash(ctx, hashOnSepolia)
		require.NoError(t, err)
		assert.Equal(t, domain.OperationStatusSubmitted, record.Status)
		require.NotNil(t, record.BundlerHash)
		assert.Equal(t, testBundlerHash.Hex(), *record.BundlerHash)

		relay, ok := env.queue.statusOf(hashOnSepolia)
		require.True(t, ok)
		assert.Equal(t, domain.RelayStatusCompleted, relay.Status)
		assert.Equal(t, testBundlerHash.Hex(), relay.BundlerHash)
	})

	t.Run("retries rejected operation", func(t *testing.T) {
		env := newTestEnv(t)
		env.bundler.sendErr = errors.New("AA21 didn't pay prefund")
		job := queueSigned(t, env)

		newTestWorker(env).processJob(ctx, job)

		assert.Equal(t, domain.OperationStatusQueued, env.store.status(t, hashOnSepolia))
		jobs := env.queue.enqueuedJobs()
		require.Len(t, jobs, 2)
		assert.Equal(t, job.ID, jobs[1].ID)
		assert.Equal(t, 1, jobs[1].Attempt)

		relay, ok := env.queue.statusOf(hashOnSepolia)
		require.True(t, ok)
		assert.Equal(t, domain.RelayStatusPending, relay.Status)
		assert.Contains(t, relay.Error, "AA21")
	})

	t.Run("fails after last attempt", func(t *testing.T) {
		env := newTestEnv(t)
		env.bundler.sendErr = errors.New("AA21 didn't pay prefund")
		job := queueSigned(t, env)
		job.Attempt = 2

		newTestWorker(env).processJob(ctx, job)

		record, err := env.store.FindByHash(ctx, hashOnSepolia)
		require.NoError(t, err)
		assert.Equal(t, domain.OperationStatusFailed, record.Status)
		require.NotNil(t, record.ErrMsg)
		assert.Contains(t, *record.ErrMsg, "AA21")
		assert.Len(t, env.queue.enqueuedJobs(), 1)

		relay, ok := env.queue.statusOf(hashOnSepolia)
		require.True(t, ok)
		assert.Equal(t, domain.RelayStatusFailed, relay.Status)
	})

	t.Run("skips operation no longer queued", func(t *testing.T) {
		env := newTestEnv(t)
		job := queueSigned(t, env)
		require.NoError(t, env.store.UpdateStatus(ctx, hashOnSepolia, domain.OperationStatusIncluded, domain.StatusUpdate{}))

		newTestWorker(env).processJob(ctx, job)

		assert.Equal(t, 0, env.bundler.sentCount())
		assert.Equal(t, domain.OperationStatusIncluded, env.store.status(t, hashOnSepolia))
	})

	t.Run("unknown operation", func(t *testing.T) {
		env := newTestEnv(t)
		job := domain.NewRelayJob(hashOnMainnet.Hex(), 1)

		newTestWorker(env).processJob(ctx, job)

		assert.Equal(t, 0, env.bundler.sentCount())
		relay, ok := env.queue.statusOf(hashOnMainnet)
		require.True(t, ok)
		assert.Equal(t, domain.RelayStatusFailed, relay.Status)
	})
}

func TestRelayWorker_StartStop(t *testing.T) {
	env := newTestEnv(t)
	env.bundler.sendHash = testBundlerHash

	worker := newTestWorker(env)
	worker.Start()
	defer worker.Stop()

	signed, err := env.service.Sign(context.Background(), testPartial(), Target{})
	require.NoError(t, err)
	_, err = env.service.Submit(context.Background(), signed.UserOp, Target{})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		record, err := env.store.FindByHash(context.Background(), hashOnSepolia)
		return err == nil && record.Status == domain.OperationStatusSubmitted
	}, 2*time.Second, 10*time.Millisecond)
}
