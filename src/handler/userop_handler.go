package handler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethaccount/sponsorop/erc4337"
	"github.com/ethaccount/sponsorop/src/domain"
	"github.com/ethaccount/sponsorop/src/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// UserOpService is the part of service.UserOpService the API exposes
type UserOpService interface {
	Fill(ctx context.Context, partial *erc4337.PartialUserOperation) (*erc4337.UserOperation, error)
	Pack(ctx context.Context, op *erc4337.UserOperation) (*erc4337.PackedUserOp, error)
	Hash(ctx context.Context, op *erc4337.UserOperation, target service.Target) (common.Hash, error)
	Sign(ctx context.Context, partial *erc4337.PartialUserOperation, target service.Target) (*service.SignResult, error)
	Verify(ctx context.Context, op *erc4337.UserOperation, target service.Target) (*service.VerifyResult, error)
	Estimate(ctx context.Context, op *erc4337.UserOperation, target service.Target) (*erc4337.UserOperation, error)
	GetNonce(ctx context.Context, sender common.Address, key *big.Int, target service.Target) (*big.Int, error)
	Submit(ctx context.Context, op *erc4337.UserOperation, target service.Target) (*domain.SignedOperation, error)
	GetOperation(ctx context.Context, userOpHash common.Hash) (*service.OperationView, error)
}

var _ UserOpService = (*service.UserOpService)(nil)

const gweiDecimals = 9

type UserOpHandler struct {
	userOpService UserOpService
}

func NewUserOpHandler(userOpService UserOpService) *UserOpHandler {
	return &UserOpHandler{
		userOpService: userOpService,
	}
}

func (h *UserOpHandler) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("handler", "userop").Logger()
	return &l
}

// TargetRequest selects the EntryPoint and chain. Omitted fields use the server
// configuration.
type TargetRequest struct {
	EntryPoint *common.Address `json:"entryPoint,omitempty" swaggertype:"string" example:"0x0000000071727De22E5E9d8BAf0edAc6f37da032"`
	ChainID    *int64          `json:"chainId,omitempty" binding:"omitempty,gt=0" example:"11155111"`
}

func (r TargetRequest) target() service.Target {
	return service.Target{EntryPoint: r.EntryPoint, ChainID: r.ChainID}
}

// FeeRequest overrides the operation fee fields with gwei amounts
type FeeRequest struct {
	MaxFeePerGasGwei         *decimal.Decimal `json:"maxFeePerGasGwei,omitempty" binding:"omitempty,numeric" swaggertype:"string" example:"1.5"`
	MaxPriorityFeePerGasGwei *decimal.Decimal `json:"maxPriorityFeePerGasGwei,omitempty" binding:"omitempty,numeric" swaggertype:"string" example:"0.1"`
}

func (r FeeRequest) apply(partial *erc4337.PartialUserOperation) error {
	if r.MaxFeePerGasGwei != nil {
		wei, err := gweiToWei(*r.MaxFeePerGasGwei)
		if err != nil {
			return fmt.Errorf("maxFeePerGasGwei: %w", err)
		}
		partial.MaxFeePerGas = wei
	}
	if r.MaxPriorityFeePerGasGwei != nil {
		wei, err := gweiToWei(*r.MaxPriorityFeePerGasGwei)
		if err != nil {
			return fmt.Errorf("maxPriorityFeePerGasGwei: %w", err)
		}
		partial.MaxPriorityFeePerGas = wei
	}
	return nil
}

func gweiToWei(gwei decimal.Decimal) (*big.Int, error) {
	if gwei.IsNegative() {
		return nil, errors.New("must not be negative")
	}
	wei := gwei.Shift(gweiDecimals)
	if !wei.IsInteger() {
		return nil, errors.New("more than 9 decimal places")
	}
	return wei.BigInt(), nil
}

// PartialOperationRequest carries an operation in which any field may be omitted
type PartialOperationRequest struct {
	UserOp *erc4337.PartialUserOperation `json:"userOp" binding:"required" swaggertype:"object"`
	FeeRequest
	TargetRequest
}

// OperationRequest carries a complete operation
type OperationRequest struct {
	UserOp *erc4337.UserOperation `json:"userOp" binding:"required" swaggertype:"object"`
	TargetRequest
}

type UserOpResponse struct {
	UserOp *erc4337.UserOperation `json:"userOp" swaggertype:"object"`
}

type PackResponse struct {
	Packed *erc4337.PackedUserOp `json:"packed" swaggertype:"object"`
}

type HashResponse struct {
	UserOpHash common.Hash `json:"userOpHash" swaggertype:"string"`
}

type NonceResponse struct {
	Sender common.Address `json:"sender" swaggertype:"string"`
	Key    *hexutil.Big   `json:"key" swaggertype:"string"`
	Nonce  *hexutil.Big   `json:"nonce" swaggertype:"string"`
}

func (h *UserOpHandler) bindPartial(c *gin.Context) (*PartialOperationRequest, bool) {
	var req PartialOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, domain.NewError(domain.ErrorCodeParameterInvalid, err, domain.WithMsg("Invalid request payload")))
		return nil, false
	}
	if err := req.FeeRequest.apply(req.UserOp); err != nil {
		respondWithError(c, domain.NewError(domain.ErrorCodeParameterInvalid, err, domain.WithMsg(err.Error())))
		return nil, false
	}
	return &req, true
}

func (h *UserOpHandler) bindOperation(c *gin.Context) (*OperationRequest, bool) {
	var req OperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, domain.NewError(domain.ErrorCodeParameterInvalid, err, domain.WithMsg("Invalid request payload")))
		return nil, false
	}
	return &req, true
}

// Fill godoc
// @Summary Fill a partial user operation
// @Description Complete omitted fields from the defaults table. Explicit values, zero included, are kept.
// @Tags userops
// @Accept json
// @Produce json
// @Param request body PartialOperationRequest true "Partial user operation"
// @Success 200 {object} StandardResponse{data=UserOpResponse}
// @Failure 400 {object} StandardResponse
// @Router /userops/fill [post]
func (h *UserOpHandler) Fill(c *gin.Context) {
	req, ok := h.bindPartial(c)
	if !ok {
		return
	}

	op, err := h.userOpService.Fill(c.Request.Context(), req.UserOp)
	if err != nil {
		respondWithError(c, err)
		return
	}

	respondWithSuccess(c, UserOpResponse{UserOp: op})
}

// Pack godoc
// @Summary Pack a user operation
// @Description Return the on-chain PackedUserOperation form
// @Tags userops
// @Accept json
// @Produce json
// @Param request body OperationRequest true "User operation"
// @Success 200 {object} StandardResponse{data=PackResponse}
// @Failure 400 {object} StandardResponse
// @Router /userops/pack [post]
func (h *UserOpHandler) Pack(c *gin.Context) {
	req, ok := h.bindOperation(c)
	if !ok {
		return
	}

	packed, err := h.userOpService.Pack(c.Request.Context(), req.UserOp)
	if err != nil {
		respondWithError(c, err)
		return
	}

	respondWithSuccess(c, PackResponse{Packed: packed})
}

// Hash godoc
// @Summary Compute the user operation hash
// @Tags userops
// @Accept json
// @Produce json
// @Param request body OperationRequest true "User operation"
// @Success 200 {object} StandardResponse{data=HashResponse}
// @Failure 400 {object} StandardResponse
// @Router /userops/hash [post]
func (h *UserOpHandler) Hash(c *gin.Context) {
	req, ok := h.bindOperation(c)
	if !ok {
		return
	}

	hash, err := h.userOpService.Hash(c.Request.Context(), req.UserOp, req.target())
	if err != nil {
		respondWithError(c, err)
		return
	}

	respondWithSuccess(c, HashResponse{UserOpHash: hash})
}

// Sign godoc
// @Summary Fill and sign a user operation
// @Description Fill defaults, sign with the sponsor key and record the operation
// @Tags userops
// @Accept json
// @Produce json
// @Param X-API-Secret header string true "API secret"
// @Param request body PartialOperationRequest true "Partial user operation"
// @Success 200 {object} StandardResponse{data=service.SignResult}
// @Failure 400 {object} StandardResponse
// @Failure 401 {object} StandardResponse
// @Router /userops/sign [post]
func (h *UserOpHandler) Sign(c *gin.Context) {
	logger := h.logger(c.Request.Context()).With().Str("func", "Sign").Logger()

	req, ok := h.bindPartial(c)
	if !ok {
		return
	}

	result, err := h.userOpService.Sign(c.Request.Context(), req.UserOp, req.target())
	if err != nil {
		logger.Error().Err(err).Msg("failed to sign user operation")
		respondWithError(c, err)
		return
	}

	respondWithSuccess(c, result)
}

// Verify godoc
// @Summary Recover the signer of a user operation
// @Tags userops
// @Accept json
// @Produce json
// @Param request body OperationRequest true "Signed user operation"
// @Success 200 {object} StandardResponse{data=service.VerifyResult}
// @Failure 400 {object} StandardResponse
// @Router /userops/verify [post]
func (h *UserOpHandler) Verify(c *gin.Context) {
	req, ok := h.bindOperation(c)
	if !ok {
		return
	}

	result, err := h.userOpService.Verify(c.Request.Context(), req.UserOp, req.target())
	if err != nil {
		respondWithError(c, err)
		return
	}

	respondWithSuccess(c, result)
}

// Estimate godoc
// @Summary Estimate gas limits with the bundler
// @Tags userops
// @Accept json
// @Produce json
// @Param request body OperationRequest true "User operation"
// @Success 200 {object} StandardResponse{data=UserOpResponse}
// @Failure 400 {object} StandardResponse
// @Failure 502 {object} StandardResponse
// @Router /userops/estimate [post]
func (h *UserOpHandler) Estimate(c *gin.Context) {
	req, ok := h.bindOperation(c)
	if !ok {
		return
	}

	op, err := h.userOpService.Estimate(c.Request.Context(), req.UserOp, req.target())
	if err != nil {
		respondWithError(c, err)
		return
	}

	respondWithSuccess(c, UserOpResponse{UserOp: op})
}

// Submit godoc
// @Summary Queue a signed user operation for the bundler
// @Tags userops
// @Accept json
// @Produce json
// @Param X-API-Secret header string true "API secret"
// @Param request body OperationRequest true "Signed user operation"
// @Success 202 {object} StandardResponse{data=domain.SignedOperation}
// @Failure 400 {object} StandardResponse
// @Failure 409 {object} StandardResponse
// @Router /userops/submit [post]
func (h *UserOpHandler) Submit(c *gin.Context) {
	logger := h.logger(c.Request.Context()).With().Str("func", "Submit").Logger()

	req, ok := h.bindOperation(c)
	if !ok {
		return
	}

	record, err := h.userOpService.Submit(c.Request.Context(), req.UserOp, req.target())
	if err != nil {
		logger.Error().Err(err).Msg("failed to submit user operation")
		respondWithError(c, err)
		return
	}

	logger.Info().
		Str("user_op_hash", record.UserOpHash).
		Int64("chain_id", record.ChainID).
		Msg("user operation submitted")

	respondWithSuccessAndStatus(c, http.StatusAccepted, record, "Queued")
}

// GetOperation godoc
// @Summary Get a recorded user operation
// @Tags userops
// @Produce json
// @Param hash path string true "User operation hash"
// @Success 200 {object} StandardResponse{data=service.OperationView}
// @Failure 400 {object} StandardResponse
// @Failure 404 {object} StandardResponse
// @Router /userops/{hash} [get]
func (h *UserOpHandler) GetOperation() gin.HandlerFunc {
	type Params struct {
		Hash string `uri:"hash" binding:"required"`
	}

	return func(c *gin.Context) {
		var params Params
		if err := c.ShouldBindUri(&params); err != nil {
			respondWithError(c, domain.NewError(domain.ErrorCodeParameterInvalid, err, domain.WithMsg("invalid parameter")))
			return
		}

		userOpHash, err := parseHash(params.Hash)
		if err != nil {
			respondWithError(c, domain.NewError(domain.ErrorCodeParameterInvalid, err, domain.WithMsg("invalid user operation hash")))
			return
		}

		view, err := h.userOpService.GetOperation(c.Request.Context(), userOpHash)
		if err != nil {
			respondWithError(c, err)
			return
		}

		respondWithSuccess(c, view)
	}
}

// GetNonce godoc
// @Summary Read the next EntryPoint nonce of an account
// @Tags accounts
// @Produce json
// @Param address path string true "Account address"
// @Param key query string false "Nonce key, decimal or 0x hex"
// @Param chainId query int false "Chain id"
// @Param entryPoint query string false "EntryPoint address"
// @Success 200 {object} StandardResponse{data=NonceResponse}
// @Failure 400 {object} StandardResponse
// @Failure 502 {object} StandardResponse
// @Router /accounts/{address}/nonce [get]
func (h *UserOpHandler) GetNonce() gin.HandlerFunc {
	type Query struct {
		Key        string `form:"key"`
		ChainID    *int64 `form:"chainId" binding:"omitempty,gt=0"`
		EntryPoint string `form:"entryPoint"`
	}

	return func(c *gin.Context) {
		address := c.Param("address")
		if !common.IsHexAddress(address) {
			respondWithError(c, domain.NewError(domain.ErrorCodeParameterInvalid, fmt.Errorf("invalid address %q", address), domain.WithMsg("invalid account address")))
			return
		}

		var query Query
		if err := c.ShouldBindQuery(&query); err != nil {
			respondWithError(c, domain.NewError(domain.ErrorCodeParameterInvalid, err, domain.WithMsg("invalid parameter")))
			return
		}

		key := new(big.Int)
		if query.Key != "" {
			if _, ok := key.SetString(query.Key, 0); !ok {
				respondWithError(c, domain.NewError(domain.ErrorCodeParameterInvalid, fmt.Errorf("invalid key %q", query.Key), domain.WithMsg("invalid nonce key")))
				return
			}
		}

		target := service.Target{ChainID: query.ChainID}
		if query.EntryPoint != "" {
			if !common.IsHexAddress(query.EntryPoint) {
				respondWithError(c, domain.NewError(domain.ErrorCodeParameterInvalid, fmt.Errorf("invalid entry point %q", query.EntryPoint), domain.WithMsg("invalid entry point address")))
				return
			}
			entryPoint := common.HexToAddress(query.EntryPoint)
			target.EntryPoint = &entryPoint
		}

		sender := common.HexToAddress(address)
		nonce, err := h.userOpService.GetNonce(c.Request.Context(), sender, key, target)
		if err != nil {
			respondWithError(c, err)
			return
		}

		respondWithSuccess(c, NonceResponse{
			Sender: sender,
			Key:    (*hexutil.Big)(key),
			Nonce:  (*hexutil.Big)(nonce),
		})
	}
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("hash must be %d bytes, got %d", common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}
