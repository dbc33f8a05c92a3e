package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethaccount/sponsorop/src/domain"
	"github.com/go-redis/redis/v8"
)

const relayStatusTTL = 24 * time.Hour

// ErrQueueEmpty is returned by Dequeue when the timeout elapses without a job.
var ErrQueueEmpty = errors.New("relay queue is empty")

// RelayQueueRepository handles Redis operations for the relay queue and the
// relay status cache
type RelayQueueRepository struct {
	redis       *redis.Client
	queueName   string
	statusCache string
}

func NewRelayQueueRepository(redis *redis.Client, queueName string) *RelayQueueRepository {
	return &RelayQueueRepository{
		redis:       redis,
		queueName:   queueName,
		statusCache: queueName + ":status",
	}
}

// Enqueue adds a job to the Redis queue
func (r *RelayQueueRepository) Enqueue(ctx context.Context, job domain.RelayJob) error {
	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal relay job: %w", err)
	}

	return r.redis.LPush(ctx, r.queueName, jobData).Err()
}

// Dequeue blocks up to timeout for the oldest job
func (r *RelayQueueRepository) Dequeue(ctx context.Context, timeout time.Duration) (*domain.RelayJob, error) {
	result, err := r.redis.BRPop(ctx, timeout, r.queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrQueueEmpty
		}
		return nil, err
	}

	var job domain.RelayJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal relay job: %w", err)
	}

	return &job, nil
}

// Len returns the number of queued jobs
func (r *RelayQueueRepository) Len(ctx context.Context) (int64, error) {
	return r.redis.LLen(ctx, r.queueName).Result()
}

func (r *RelayQueueRepository) statusKey(userOpHash string) string {
	return fmt.Sprintf("%s:%s", r.statusCache, userOpHash)
}

// SetStatus stores the relay result with a 24-hour expiration
func (r *RelayQueueRepository) SetStatus(ctx context.Context, result domain.RelayResult) error {
	result.UpdatedAt = time.Now()

	resultData, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal relay result: %w", err)
	}

	return r.redis.Set(ctx, r.statusKey(result.UserOpHash), resultData, relayStatusTTL).Err()
}

// GetStatus retrieves the cached relay result. It returns nil without error when
// nothing is cached.
func (r *RelayQueueRepository) GetStatus(ctx context.Context, userOpHash string) (*domain.RelayResult, error) {
	statusData, err := r.redis.Get(ctx, r.statusKey(userOpHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var result domain.RelayResult
	if err := json.Unmarshal([]byte(statusData), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal relay result: %w", err)
	}

	return &result, nil
}

// DeleteStatus removes the cached relay result
func (r *RelayQueueRepository) DeleteStatus(ctx context.Context, userOpHash string) error {
	return r.redis.Del(ctx, r.statusKey(userOpHash)).Err()
}

// RelayStatistics represents the current state of the relay status cache
type RelayStatistics struct {
	Queued         int64 `json:"queued"`
	PendingCount   int   `json:"pendingCount"`
	FailedCount    int   `json:"failedCount"`
	CompletedCount int   `json:"completedCount"`
}

// Statistics counts cached relay results by status.
func (r *RelayQueueRepository) Statistics(ctx context.Context) (*RelayStatistics, error) {
	queued, err := r.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue length: %w", err)
	}
	stats := &RelayStatistics{Queued: queued}

	iter := r.redis.Scan(ctx, 0, r.statusCache+":*", 100).Iterator()
	for iter.Next(ctx) {
		statusData, err := r.redis.Get(ctx, iter.Val()).Result()
		if err != nil {
			// Skip keys that expired between SCAN and GET
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("failed to get relay result for key %s: %w", iter.Val(), err)
		}

		var result domain.RelayResult
		if err := json.Unmarshal([]byte(statusData), &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal relay result for key %s: %w", iter.Val(), err)
		}

		switch result.Status {
		case domain.RelayStatusPending:
			stats.PendingCount++
		case domain.RelayStatusFailed:
			stats.FailedCount++
		case domain.RelayStatusCompleted:
			stats.CompletedCount++
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan relay status keys: %w", err)
	}

	return stats, nil
}
