package domain

import (
	"time"

	"github.com/google/uuid"
)

// RelayJob is the queue message asking the relay worker to forward a stored
// operation to its chain's bundler.
type RelayJob struct {
	ID         uuid.UUID `json:"id"`
	UserOpHash string    `json:"userOpHash"`
	ChainID    int64     `json:"chainId"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

func NewRelayJob(userOpHash string, chainID int64) RelayJob {
	return RelayJob{
		ID:         uuid.New(),
		UserOpHash: userOpHash,
		ChainID:    chainID,
		EnqueuedAt: time.Now(),
	}
}

// RelayStatus is the short-lived relay progress cached next to the queue.
type RelayStatus string

const (
	RelayStatusPending   RelayStatus = "pending"
	RelayStatusFailed    RelayStatus = "failed"
	RelayStatusCompleted RelayStatus = "completed"
)

// RelayResult contains the outcome of one relay attempt.
type RelayResult struct {
	JobID       uuid.UUID   `json:"jobId"`
	UserOpHash  string      `json:"userOpHash"`
	ChainID     int64       `json:"chainId"`
	BundlerHash string      `json:"bundlerHash,omitempty"`
	Status      RelayStatus `json:"status"`
	Error       string      `json:"error,omitempty"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}
