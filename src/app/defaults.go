package app

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethaccount/sponsorop/erc4337"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var builtinDefaults []byte

// LoadDefaults reads the defaults table from a YAML file. An empty path selects
// the built-in table.
func LoadDefaults(path string) (erc4337.Defaults, error) {
	data := builtinDefaults
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return erc4337.Defaults{}, fmt.Errorf("failed to read defaults file: %w", err)
		}
	}
	return ParseDefaults(data)
}

// defaultsFile mirrors the JSON field names of a user operation. Unknown keys are
// rejected when decoding.
type defaultsFile struct {
	Sender                        *string `yaml:"sender" json:"sender,omitempty"`
	Nonce                         *string `yaml:"nonce" json:"nonce,omitempty"`
	InitCode                      *string `yaml:"initCode" json:"initCode,omitempty"`
	CallData                      *string `yaml:"callData" json:"callData,omitempty"`
	CallGasLimit                  *string `yaml:"callGasLimit" json:"callGasLimit,omitempty"`
	VerificationGasLimit          *string `yaml:"verificationGasLimit" json:"verificationGasLimit,omitempty"`
	PreVerificationGas            *string `yaml:"preVerificationGas" json:"preVerificationGas,omitempty"`
	MaxFeePerGas                  *string `yaml:"maxFeePerGas" json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas          *string `yaml:"maxPriorityFeePerGas" json:"maxPriorityFeePerGas,omitempty"`
	Paymaster                     *string `yaml:"paymaster" json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *string `yaml:"paymasterVerificationGasLimit" json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *string `yaml:"paymasterPostOpGasLimit" json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 *string `yaml:"paymasterData" json:"paymasterData,omitempty"`
	Signature                     *string `yaml:"signature" json:"signature,omitempty"`
}

// ParseDefaults decodes a YAML defaults table keyed by the JSON field names of a
// user operation. An unknown key is an error.
func ParseDefaults(data []byte) (erc4337.Defaults, error) {
	var values defaultsFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&values); err != nil && !errors.Is(err, io.EOF) {
		return erc4337.Defaults{}, fmt.Errorf("failed to parse defaults: %w", err)
	}

	// Route through the partial operation decoder so quantities and byte
	// strings follow the request rules.
	raw, err := json.Marshal(values)
	if err != nil {
		return erc4337.Defaults{}, err
	}
	var partial erc4337.PartialUserOperation
	if err := json.Unmarshal(raw, &partial); err != nil {
		return erc4337.Defaults{}, fmt.Errorf("invalid defaults: %w", err)
	}

	return erc4337.NewDefaults(partial), nil
}
