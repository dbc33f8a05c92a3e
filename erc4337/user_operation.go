package erc4337

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EntryPointV07 is the canonical v0.7 EntryPoint deployment. It is only a
// configuration default; hashing always takes the entry point as an argument.
var EntryPointV07 = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

// Sponsor is the fee payer of an operation. A UserOperation without a sponsor
// has a nil Paymaster.
type Sponsor struct {
	Address              common.Address
	VerificationGasLimit *big.Int
	PostOpGasLimit       *big.Int
	Data                 []byte
}

// Pack returns the paymasterAndData blob for the sponsor.
func (s *Sponsor) Pack() ([]byte, error) {
	if s == nil {
		return []byte{}, nil
	}
	return PackPaymasterData(&s.Address, s.VerificationGasLimit, s.PostOpGasLimit, s.Data)
}

// UserOperation is the complete, unpacked ERC-4337 v0.7 user operation.
type UserOperation struct {
	Sender               common.Address
	Nonce                *big.Int
	InitCode             []byte
	CallData             []byte
	VerificationGasLimit *big.Int
	CallGasLimit         *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Paymaster            *Sponsor
	Signature            []byte
}

// HasPaymaster reports whether the operation is sponsored by a non-zero paymaster.
func (op *UserOperation) HasPaymaster() bool {
	return op.Paymaster != nil && op.Paymaster.Address != (common.Address{})
}

// Copy returns a deep copy of the operation.
func (op *UserOperation) Copy() *UserOperation {
	cp := &UserOperation{
		Sender:               op.Sender,
		Nonce:                copyBig(op.Nonce),
		InitCode:             bytes.Clone(op.InitCode),
		CallData:             bytes.Clone(op.CallData),
		VerificationGasLimit: copyBig(op.VerificationGasLimit),
		CallGasLimit:         copyBig(op.CallGasLimit),
		PreVerificationGas:   copyBig(op.PreVerificationGas),
		MaxFeePerGas:         copyBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: copyBig(op.MaxPriorityFeePerGas),
		Signature:            bytes.Clone(op.Signature),
	}
	if op.Paymaster != nil {
		cp.Paymaster = &Sponsor{
			Address:              op.Paymaster.Address,
			VerificationGasLimit: copyBig(op.Paymaster.VerificationGasLimit),
			PostOpGasLimit:       copyBig(op.Paymaster.PostOpGasLimit),
			Data:                 bytes.Clone(op.Paymaster.Data),
		}
	}
	return cp
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// PackedUserOp is the on-chain PackedUserOperation. It is always derived from a
// UserOperation through Pack and never edited on its own.
type PackedUserOp struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte
	PreVerificationGas *big.Int
	GasFees            [32]byte
	PaymasterAndData   []byte
	Signature          []byte
}

// Pack projects the operation into its wire form. Every fixed-width field is
// range checked here, so a returned PackedUserOp always encodes.
func (op *UserOperation) Pack() (*PackedUserOp, error) {
	if err := checkUint256("nonce", op.Nonce); err != nil {
		return nil, err
	}
	if err := checkUint256("preVerificationGas", op.PreVerificationGas); err != nil {
		return nil, err
	}

	accountGasLimits, err := PackAccountGasLimits(op.VerificationGasLimit, op.CallGasLimit)
	if err != nil {
		return nil, err
	}
	gasFees, err := PackGasFees(op.MaxPriorityFeePerGas, op.MaxFeePerGas)
	if err != nil {
		return nil, err
	}
	paymasterAndData, err := op.Paymaster.Pack()
	if err != nil {
		return nil, err
	}

	return &PackedUserOp{
		Sender:             op.Sender,
		Nonce:              new(big.Int).Set(op.Nonce),
		InitCode:           nonNil(op.InitCode),
		CallData:           nonNil(op.CallData),
		AccountGasLimits:   accountGasLimits,
		PreVerificationGas: new(big.Int).Set(op.PreVerificationGas),
		GasFees:            gasFees,
		PaymasterAndData:   paymasterAndData,
		Signature:          nonNil(op.Signature),
	}, nil
}

// nonNil copies b, turning nil into an empty slice so ABI and JSON output
// never distinguish the two.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return bytes.Clone(b)
}

// MarshalJSON renders the packed form with hex quantities and byte strings.
func (p PackedUserOp) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Sender             common.Address `json:"sender"`
		Nonce              *hexutil.Big   `json:"nonce"`
		InitCode           hexutil.Bytes  `json:"initCode"`
		CallData           hexutil.Bytes  `json:"callData"`
		AccountGasLimits   hexutil.Bytes  `json:"accountGasLimits"`
		PreVerificationGas *hexutil.Big   `json:"preVerificationGas"`
		GasFees            hexutil.Bytes  `json:"gasFees"`
		PaymasterAndData   hexutil.Bytes  `json:"paymasterAndData"`
		Signature          hexutil.Bytes  `json:"signature"`
	}{
		Sender:             p.Sender,
		Nonce:              (*hexutil.Big)(p.Nonce),
		InitCode:           nonNil(p.InitCode),
		CallData:           nonNil(p.CallData),
		AccountGasLimits:   p.AccountGasLimits[:],
		PreVerificationGas: (*hexutil.Big)(p.PreVerificationGas),
		GasFees:            p.GasFees[:],
		PaymasterAndData:   nonNil(p.PaymasterAndData),
		Signature:          nonNil(p.Signature),
	})
}

// rpcUserOperation is the unpacked v0.7 JSON-RPC shape accepted by bundlers:
// initCode is split into factory and factoryData and the paymaster fields are flat.
type rpcUserOperation struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         json.RawMessage `json:"nonce"`
	Factory                       *common.Address `json:"factory,omitempty"`
	FactoryData                   hexutil.Bytes   `json:"factoryData,omitempty"`
	CallData                      hexutil.Bytes   `json:"callData"`
	CallGasLimit                  json.RawMessage `json:"callGasLimit"`
	VerificationGasLimit          json.RawMessage `json:"verificationGasLimit"`
	PreVerificationGas            json.RawMessage `json:"preVerificationGas"`
	MaxFeePerGas                  json.RawMessage `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          json.RawMessage `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit json.RawMessage `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       json.RawMessage `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData,omitempty"`
	Signature                     hexutil.Bytes   `json:"signature"`
}

// MarshalJSON implements custom JSON marshaling for UserOperation. The nonce is
// padded to 32 bytes, other quantities are minimal hex.
func (op *UserOperation) MarshalJSON() ([]byte, error) {
	aux := rpcUserOperation{
		Sender:               op.Sender,
		Nonce:                quoteHex(paddedNonce(op.Nonce)),
		CallData:             nonNil(op.CallData),
		CallGasLimit:         quoteHex(hexQuantity(op.CallGasLimit)),
		VerificationGasLimit: quoteHex(hexQuantity(op.VerificationGasLimit)),
		PreVerificationGas:   quoteHex(hexQuantity(op.PreVerificationGas)),
		MaxFeePerGas:         quoteHex(hexQuantity(op.MaxFeePerGas)),
		MaxPriorityFeePerGas: quoteHex(hexQuantity(op.MaxPriorityFeePerGas)),
		Signature:            nonNil(op.Signature),
	}

	// Split initCode into factory address and factory calldata
	if len(op.InitCode) > 0 {
		if len(op.InitCode) < common.AddressLength {
			return nil, fmt.Errorf("initCode shorter than a factory address: %d bytes", len(op.InitCode))
		}
		factory := common.BytesToAddress(op.InitCode[:common.AddressLength])
		aux.Factory = &factory
		aux.FactoryData = nonNil(op.InitCode[common.AddressLength:])
	}

	if op.HasPaymaster() {
		paymaster := op.Paymaster.Address
		aux.Paymaster = &paymaster
		aux.PaymasterVerificationGasLimit = quoteHex(hexQuantity(op.Paymaster.VerificationGasLimit))
		aux.PaymasterPostOpGasLimit = quoteHex(hexQuantity(op.Paymaster.PostOpGasLimit))
		aux.PaymasterData = nonNil(op.Paymaster.Data)
	}

	return json.Marshal(aux)
}

// UnmarshalJSON implements custom JSON unmarshaling for UserOperation. Quantities
// may be hex ("0x00" with leading zeros is accepted), decimal strings or JSON
// numbers. Absent quantities stay nil and fail later at packing time.
func (op *UserOperation) UnmarshalJSON(data []byte) error {
	var aux rpcUserOperation
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	quantities := []struct {
		name string
		raw  json.RawMessage
		dst  **big.Int
	}{
		{"nonce", aux.Nonce, &op.Nonce},
		{"callGasLimit", aux.CallGasLimit, &op.CallGasLimit},
		{"verificationGasLimit", aux.VerificationGasLimit, &op.VerificationGasLimit},
		{"preVerificationGas", aux.PreVerificationGas, &op.PreVerificationGas},
		{"maxFeePerGas", aux.MaxFeePerGas, &op.MaxFeePerGas},
		{"maxPriorityFeePerGas", aux.MaxPriorityFeePerGas, &op.MaxPriorityFeePerGas},
	}
	for _, q := range quantities {
		v, err := parseQuantity(q.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", q.name, err)
		}
		*q.dst = v
	}

	op.Sender = aux.Sender
	op.CallData = nonNil(aux.CallData)
	op.Signature = nonNil(aux.Signature)

	op.InitCode = []byte{}
	if aux.Factory != nil && *aux.Factory != (common.Address{}) {
		op.InitCode = append(aux.Factory.Bytes(), aux.FactoryData...)
	}

	op.Paymaster = nil
	if aux.Paymaster != nil && *aux.Paymaster != (common.Address{}) {
		verificationGasLimit, err := parseQuantity(aux.PaymasterVerificationGasLimit)
		if err != nil {
			return fmt.Errorf("invalid paymasterVerificationGasLimit: %w", err)
		}
		postOpGasLimit, err := parseQuantity(aux.PaymasterPostOpGasLimit)
		if err != nil {
			return fmt.Errorf("invalid paymasterPostOpGasLimit: %w", err)
		}
		op.Paymaster = &Sponsor{
			Address:              *aux.Paymaster,
			VerificationGasLimit: verificationGasLimit,
			PostOpGasLimit:       postOpGasLimit,
			Data:                 nonNil(aux.PaymasterData),
		}
	}

	return nil
}

// parseQuantity decodes a JSON quantity. It returns nil for an absent or null value.
func parseQuantity(raw json.RawMessage) (*big.Int, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	// JSON number
	if !strings.HasPrefix(trimmed, `"`) {
		v, ok := new(big.Int).SetString(trimmed, 10)
		if !ok || v.Sign() < 0 {
			return nil, fmt.Errorf("invalid number: %s", trimmed)
		}
		return v, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return parseHexBig(s)
}

// parseHexBig parses "0x"-prefixed hex or plain decimal into a non-negative big.Int.
func parseHexBig(s string) (*big.Int, error) {
	if s == "" || s == "0x" || s == "0X" {
		return big.NewInt(0), nil
	}

	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}

	v, ok := new(big.Int).SetString(digits, base)
	if !ok || v.Sign() < 0 {
		return nil, errors.New("invalid hex string: " + s)
	}
	return v, nil
}

func hexQuantity(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return fmt.Sprintf("0x%x", v)
}

func paddedNonce(v *big.Int) string {
	if v == nil {
		return fmt.Sprintf("0x%064x", 0)
	}
	return fmt.Sprintf("0x%064x", v)
}

func quoteHex(s string) json.RawMessage {
	return json.RawMessage(`"` + s + `"`)
}
