package repository

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethaccount/sponsorop/erc4337"
	"github.com/ethaccount/sponsorop/src/domain"
	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
)

var (
	ErrOperationNotFound = errors.New("signed operation not found")
	// ErrOperationExists requires a gorm.DB opened with TranslateError.
	ErrOperationExists = errors.New("signed operation already exists")
)

type SignedOperationRepository struct {
	db *gorm.DB
}

func NewSignedOperationRepository(db *gorm.DB) *SignedOperationRepository {
	return &SignedOperationRepository{db: db}
}

// Create persists a hashed operation with the given initial status. signer is nil
// for operations that were submitted already signed by a third party and not verified.
func (r *SignedOperationRepository) Create(
	ctx context.Context,
	userOp *erc4337.UserOperation,
	userOpHash common.Hash,
	entryPoint common.Address,
	chainID *big.Int,
	signer *common.Address,
	status domain.OperationStatus,
) (*domain.SignedOperation, error) {
	userOpJSON, err := json.Marshal(userOp)
	if err != nil {
		return nil, err
	}

	record := &domain.SignedOperation{
		UserOpHash:        userOpHash.Hex(),
		Sender:            userOp.Sender.Hex(),
		Nonce:             userOp.Nonce.String(),
		ChainID:           chainID.Int64(),
		EntryPointAddress: entryPoint.Hex(),
		UserOperation:     userOpJSON,
		Status:            status,
	}
	if signer != nil {
		s := signer.Hex()
		record.Signer = &s
	}
	if userOp.HasPaymaster() {
		p := userOp.Paymaster.Address.Hex()
		record.Paymaster = &p
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrOperationExists
		}
		return nil, err
	}

	return record, nil
}

// FindByHash retrieves a stored operation by its userOpHash
func (r *SignedOperationRepository) FindByHash(ctx context.Context, userOpHash common.Hash) (*domain.SignedOperation, error) {
	var record domain.SignedOperation
	err := r.db.WithContext(ctx).Where("user_op_hash = ?", userOpHash.Hex()).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOperationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindBySender lists the most recent operations of a sender, newest first
func (r *SignedOperationRepository) FindBySender(ctx context.Context, sender common.Address, limit int) ([]*domain.SignedOperation, error) {
	var records []*domain.SignedOperation
	if err := r.db.WithContext(ctx).
		Where("sender = ?", sender.Hex()).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// FindByStatus retrieves all operations currently in the given status
func (r *SignedOperationRepository) FindByStatus(ctx context.Context, status domain.OperationStatus) ([]*domain.SignedOperation, error) {
	var records []*domain.SignedOperation
	if err := r.db.WithContext(ctx).Where("status = ?", status).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// UpdateStatus updates the status of an operation by its hash. Only the non-nil
// fields of update are written.
func (r *SignedOperationRepository) UpdateStatus(ctx context.Context, userOpHash common.Hash, status domain.OperationStatus, update domain.StatusUpdate) error {
	updates := map[string]interface{}{
		"status": status,
	}
	if update.BundlerHash != nil {
		updates["bundler_hash"] = *update.BundlerHash
	}
	if update.TxHash != nil {
		updates["tx_hash"] = *update.TxHash
	}
	if update.ErrMsg != nil {
		updates["err_msg"] = *update.ErrMsg
	}

	result := r.db.WithContext(ctx).
		Model(&domain.SignedOperation{}).
		Where("user_op_hash = ?", userOpHash.Hex()).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOperationNotFound
	}
	return nil
}
