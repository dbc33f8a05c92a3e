package erc4337

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Ptr returns a pointer to v. It is a convenience for building partial operations.
func Ptr[T any](v T) *T {
	return &v
}

// PartialUserOperation is a user operation in which any field may be unset. A nil
// field is unset and takes its value from the defaults table; a non-nil field is
// kept as is, including zero values and empty byte strings.
type PartialUserOperation struct {
	Sender                        *common.Address
	Nonce                         *big.Int
	InitCode                      *[]byte
	CallData                      *[]byte
	CallGasLimit                  *big.Int
	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
	MaxFeePerGas                  *big.Int
	MaxPriorityFeePerGas          *big.Int
	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 *[]byte
	Signature                     *[]byte
}

// Copy returns a deep copy of the partial operation.
func (p *PartialUserOperation) Copy() *PartialUserOperation {
	return &PartialUserOperation{
		Sender:                        copyAddress(p.Sender),
		Nonce:                         copyBig(p.Nonce),
		InitCode:                      copyBytesPtr(p.InitCode),
		CallData:                      copyBytesPtr(p.CallData),
		CallGasLimit:                  copyBig(p.CallGasLimit),
		VerificationGasLimit:          copyBig(p.VerificationGasLimit),
		PreVerificationGas:            copyBig(p.PreVerificationGas),
		MaxFeePerGas:                  copyBig(p.MaxFeePerGas),
		MaxPriorityFeePerGas:          copyBig(p.MaxPriorityFeePerGas),
		Paymaster:                     copyAddress(p.Paymaster),
		PaymasterVerificationGasLimit: copyBig(p.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       copyBig(p.PaymasterPostOpGasLimit),
		PaymasterData:                 copyBytesPtr(p.PaymasterData),
		Signature:                     copyBytesPtr(p.Signature),
	}
}

func copyAddress(a *common.Address) *common.Address {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

func copyBytesPtr(b *[]byte) *[]byte {
	if b == nil {
		return nil
	}
	cp := nonNil(*b)
	return &cp
}

// UnmarshalJSON decodes a partial operation. Absent keys and JSON null are unset.
func (p *PartialUserOperation) UnmarshalJSON(data []byte) error {
	var aux struct {
		Sender                        *common.Address `json:"sender"`
		Nonce                         json.RawMessage `json:"nonce"`
		InitCode                      *hexutil.Bytes  `json:"initCode"`
		CallData                      *hexutil.Bytes  `json:"callData"`
		CallGasLimit                  json.RawMessage `json:"callGasLimit"`
		VerificationGasLimit          json.RawMessage `json:"verificationGasLimit"`
		PreVerificationGas            json.RawMessage `json:"preVerificationGas"`
		MaxFeePerGas                  json.RawMessage `json:"maxFeePerGas"`
		MaxPriorityFeePerGas          json.RawMessage `json:"maxPriorityFeePerGas"`
		Paymaster                     *common.Address `json:"paymaster"`
		PaymasterVerificationGasLimit json.RawMessage `json:"paymasterVerificationGasLimit"`
		PaymasterPostOpGasLimit       json.RawMessage `json:"paymasterPostOpGasLimit"`
		PaymasterData                 *hexutil.Bytes  `json:"paymasterData"`
		Signature                     *hexutil.Bytes  `json:"signature"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	out := PartialUserOperation{
		Sender:        aux.Sender,
		Paymaster:     aux.Paymaster,
		InitCode:      hexBytesPtr(aux.InitCode),
		CallData:      hexBytesPtr(aux.CallData),
		PaymasterData: hexBytesPtr(aux.PaymasterData),
		Signature:     hexBytesPtr(aux.Signature),
	}

	quantities := []struct {
		name string
		raw  json.RawMessage
		dst  **big.Int
	}{
		{"nonce", aux.Nonce, &out.Nonce},
		{"callGasLimit", aux.CallGasLimit, &out.CallGasLimit},
		{"verificationGasLimit", aux.VerificationGasLimit, &out.VerificationGasLimit},
		{"preVerificationGas", aux.PreVerificationGas, &out.PreVerificationGas},
		{"maxFeePerGas", aux.MaxFeePerGas, &out.MaxFeePerGas},
		{"maxPriorityFeePerGas", aux.MaxPriorityFeePerGas, &out.MaxPriorityFeePerGas},
		{"paymasterVerificationGasLimit", aux.PaymasterVerificationGasLimit, &out.PaymasterVerificationGasLimit},
		{"paymasterPostOpGasLimit", aux.PaymasterPostOpGasLimit, &out.PaymasterPostOpGasLimit},
	}
	for _, q := range quantities {
		v, err := parseQuantity(q.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", q.name, err)
		}
		*q.dst = v
	}

	*p = out
	return nil
}

func hexBytesPtr(b *hexutil.Bytes) *[]byte {
	if b == nil {
		return nil
	}
	v := nonNil(*b)
	return &v
}

// Defaults is an immutable table of fallback values consumed by FillDefaults.
type Defaults struct {
	values PartialUserOperation
}

// NewDefaults builds a defaults table from a partial operation. Fields left unset
// have no default.
func NewDefaults(values PartialUserOperation) Defaults {
	return Defaults{values: *values.Copy()}
}

// Values returns a copy of the table contents.
func (d Defaults) Values() PartialUserOperation {
	return *d.values.Copy()
}

// DefaultsForUserOp returns the standard defaults table. The verification gas
// default does not account for account deployment through initCode. Sender has
// no default.
func DefaultsForUserOp() Defaults {
	return NewDefaults(PartialUserOperation{
		Nonce:                         big.NewInt(0),
		InitCode:                      Ptr([]byte{}),
		CallData:                      Ptr([]byte{}),
		CallGasLimit:                  big.NewInt(0),
		VerificationGasLimit:          big.NewInt(150000),
		PreVerificationGas:            big.NewInt(21000),
		MaxFeePerGas:                  big.NewInt(0),
		MaxPriorityFeePerGas:          big.NewInt(1000000000),
		Paymaster:                     &common.Address{},
		PaymasterVerificationGasLimit: big.NewInt(300000),
		PaymasterPostOpGasLimit:       big.NewInt(0),
		PaymasterData:                 Ptr([]byte{}),
		Signature:                     Ptr([]byte{}),
	})
}

// FillDefaults completes a partial operation from the defaults table. Every unset
// field takes the default; an explicit value, zero included, is preserved. A
// required field unset on both sides yields a MissingFieldError. An unset or zero
// paymaster means no sponsor, in which case the paymaster sub-fields are not
// required.
func FillDefaults(partial *PartialUserOperation, defaults Defaults) (*UserOperation, error) {
	if partial == nil {
		partial = &PartialUserOperation{}
	}
	d := &defaults.values

	sender := pickAddress(partial.Sender, d.Sender)
	if sender == nil {
		return nil, &MissingFieldError{Field: "sender"}
	}

	op := &UserOperation{Sender: *sender}

	bigFields := []struct {
		name     string
		val, def *big.Int
		dst      **big.Int
	}{
		{"nonce", partial.Nonce, d.Nonce, &op.Nonce},
		{"callGasLimit", partial.CallGasLimit, d.CallGasLimit, &op.CallGasLimit},
		{"verificationGasLimit", partial.VerificationGasLimit, d.VerificationGasLimit, &op.VerificationGasLimit},
		{"preVerificationGas", partial.PreVerificationGas, d.PreVerificationGas, &op.PreVerificationGas},
		{"maxFeePerGas", partial.MaxFeePerGas, d.MaxFeePerGas, &op.MaxFeePerGas},
		{"maxPriorityFeePerGas", partial.MaxPriorityFeePerGas, d.MaxPriorityFeePerGas, &op.MaxPriorityFeePerGas},
	}
	for _, f := range bigFields {
		v, err := pickBig(f.name, f.val, f.def)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	byteFields := []struct {
		name     string
		val, def *[]byte
		dst      *[]byte
	}{
		{"initCode", partial.InitCode, d.InitCode, &op.InitCode},
		{"callData", partial.CallData, d.CallData, &op.CallData},
		{"signature", partial.Signature, d.Signature, &op.Signature},
	}
	for _, f := range byteFields {
		v, err := pickBytes(f.name, f.val, f.def)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	paymaster := pickAddress(partial.Paymaster, d.Paymaster)
	if paymaster == nil || *paymaster == (common.Address{}) {
		return op, nil
	}

	verificationGasLimit, err := pickBig("paymasterVerificationGasLimit", partial.PaymasterVerificationGasLimit, d.PaymasterVerificationGasLimit)
	if err != nil {
		return nil, err
	}
	postOpGasLimit, err := pickBig("paymasterPostOpGasLimit", partial.PaymasterPostOpGasLimit, d.PaymasterPostOpGasLimit)
	if err != nil {
		return nil, err
	}
	data, err := pickBytes("paymasterData", partial.PaymasterData, d.PaymasterData)
	if err != nil {
		return nil, err
	}
	op.Paymaster = &Sponsor{
		Address:              *paymaster,
		VerificationGasLimit: verificationGasLimit,
		PostOpGasLimit:       postOpGasLimit,
		Data:                 data,
	}
	return op, nil
}

func pickAddress(val, def *common.Address) *common.Address {
	if val != nil {
		return copyAddress(val)
	}
	return copyAddress(def)
}

func pickBig(name string, val, def *big.Int) (*big.Int, error) {
	switch {
	case val != nil:
		return new(big.Int).Set(val), nil
	case def != nil:
		return new(big.Int).Set(def), nil
	}
	return nil, &MissingFieldError{Field: name}
}

func pickBytes(name string, val, def *[]byte) ([]byte, error) {
	switch {
	case val != nil:
		return bytes.Clone(nonNil(*val)), nil
	case def != nil:
		return bytes.Clone(nonNil(*def)), nil
	}
	return nil, &MissingFieldError{Field: name}
}

// Partial returns the operation with every field explicitly set. An operation
// without a sponsor gets an explicit zero paymaster so that filling it again
// cannot pick up a sponsor from the defaults.
func (op *UserOperation) Partial() *PartialUserOperation {
	p := &PartialUserOperation{
		Sender:               Ptr(op.Sender),
		Nonce:                copyBig(op.Nonce),
		InitCode:             Ptr(nonNil(op.InitCode)),
		CallData:             Ptr(nonNil(op.CallData)),
		CallGasLimit:         copyBig(op.CallGasLimit),
		VerificationGasLimit: copyBig(op.VerificationGasLimit),
		PreVerificationGas:   copyBig(op.PreVerificationGas),
		MaxFeePerGas:         copyBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: copyBig(op.MaxPriorityFeePerGas),
		Signature:            Ptr(nonNil(op.Signature)),
	}
	if op.HasPaymaster() {
		p.Paymaster = Ptr(op.Paymaster.Address)
		p.PaymasterVerificationGasLimit = copyBig(op.Paymaster.VerificationGasLimit)
		p.PaymasterPostOpGasLimit = copyBig(op.Paymaster.PostOpGasLimit)
		p.PaymasterData = Ptr(nonNil(op.Paymaster.Data))
	} else {
		p.Paymaster = &common.Address{}
	}
	return p
}
