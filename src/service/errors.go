package service

import (
	"errors"

	"github.com/ethaccount/sponsorop/erc4337"
	"github.com/ethaccount/sponsorop/src/domain"
	"github.com/ethaccount/sponsorop/src/repository"
)

var (
	ErrUnsupportedChain = errors.New("unsupported chain id")
	ErrNotSigned        = errors.New("user operation is not signed")
	ErrAlreadySubmitted = errors.New("user operation was already submitted")
)

// toDomainError classifies errors from the encoding core and the stores.
// Errors that are already domain errors pass through.
func toDomainError(err error) error {
	if err == nil {
		return nil
	}

	var domainErr domain.DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	var encodingErr *erc4337.EncodingError
	var missingErr *erc4337.MissingFieldError
	var signingErr *erc4337.SigningError

	switch {
	case errors.As(err, &missingErr):
		return domain.NewError(domain.ErrorCodeParameterInvalid, err,
			domain.WithMsg(missingErr.Error()),
			domain.WithDetail(map[string]interface{}{"field": missingErr.Field}))
	case errors.As(err, &encodingErr):
		return domain.NewError(domain.ErrorCodeParameterInvalid, err,
			domain.WithMsg(encodingErr.Error()),
			domain.WithDetail(map[string]interface{}{"field": encodingErr.Field}))
	case errors.As(err, &signingErr):
		return domain.NewError(domain.ErrorCodeInternalProcess, err, domain.WithMsg("Failed to sign user operation"))
	case errors.Is(err, repository.ErrOperationNotFound):
		return domain.NewError(domain.ErrorCodeResourceNotFound, err, domain.WithMsg("User operation not found"))
	case errors.Is(err, repository.ErrOperationExists), errors.Is(err, ErrAlreadySubmitted):
		return domain.NewError(domain.ErrorCodeResourceConflict, err, domain.WithMsg(err.Error()))
	case errors.Is(err, ErrUnsupportedChain), errors.Is(err, ErrNotSigned):
		return domain.NewError(domain.ErrorCodeParameterInvalid, err, domain.WithMsg(err.Error()))
	default:
		return domain.NewError(domain.ErrorCodeInternalProcess, err)
	}
}
