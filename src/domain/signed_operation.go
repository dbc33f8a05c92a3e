package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethaccount/sponsorop/erc4337"
	"github.com/google/uuid"
)

// OperationStatus tracks a signed operation through the relay pipeline.
type OperationStatus string

const (
	OperationStatusSigned    OperationStatus = "signed"
	OperationStatusQueued    OperationStatus = "queued"
	OperationStatusSubmitted OperationStatus = "submitted"
	OperationStatusIncluded  OperationStatus = "included"
	OperationStatusFailed    OperationStatus = "failed"
)

// IsFinal reports whether no further transition is expected.
func (s OperationStatus) IsFinal() bool {
	return s == OperationStatusIncluded || s == OperationStatusFailed
}

// SignedOperation is a persisted, hashed user operation. UserOpHash is unique
// per entry point and chain by construction.
type SignedOperation struct {
	ID                uuid.UUID       `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserOpHash        string          `gorm:"type:varchar(66);not null;uniqueIndex" json:"userOpHash"`
	Sender            string          `gorm:"type:varchar(42);not null;index" json:"sender"`
	Nonce             string          `gorm:"type:varchar(80);not null" json:"nonce"`
	ChainID           int64           `gorm:"not null" json:"chainId"`
	EntryPointAddress string          `gorm:"type:varchar(42);not null" json:"entryPoint"`
	Signer            *string         `gorm:"type:varchar(42)" json:"signer,omitempty"`
	Paymaster         *string         `gorm:"type:varchar(42)" json:"paymaster,omitempty"`
	UserOperation     json.RawMessage `gorm:"type:jsonb;not null" json:"userOperation"`
	Status            OperationStatus `gorm:"type:varchar(16);not null" json:"status"`
	BundlerHash       *string         `gorm:"type:varchar(66)" json:"bundlerHash,omitempty"`
	TxHash            *string         `gorm:"type:varchar(66)" json:"txHash,omitempty"`
	ErrMsg            *string         `gorm:"type:text" json:"error,omitempty"`
	CreatedAt         time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt         time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (SignedOperation) TableName() string {
	return "signed_operations"
}

// GetUserOperation returns the stored operation as a typed struct
func (s *SignedOperation) GetUserOperation() (*erc4337.UserOperation, error) {
	var userOp erc4337.UserOperation
	if err := json.Unmarshal(s.UserOperation, &userOp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user operation: %w", err)
	}
	return &userOp, nil
}

// StatusUpdate carries the optional fields written alongside a status change.
type StatusUpdate struct {
	BundlerHash *string
	TxHash      *string
	ErrMsg      *string
}
