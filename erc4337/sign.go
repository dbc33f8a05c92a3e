package erc4337

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of an r ‖ s ‖ v signature.
const SignatureLength = crypto.SignatureLength

// SignedMessageHash applies the personal-sign envelope to an operation hash:
// keccak256("\x19Ethereum Signed Message:\n32" ‖ hash).
func SignedMessageHash(hash common.Hash) common.Hash {
	prefix := []byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(hash)))
	return crypto.Keccak256Hash(prefix, hash.Bytes())
}

// Sign returns a copy of op carrying a 65-byte signature over the personal-sign
// envelope of its hash. The recovery byte is 27 or 28. The input operation is not
// modified.
//
// Sign takes ownership of privateKey: the caller's key slice is zeroed before
// Sign returns, on error paths too. Use SignWithKey to keep a key across calls.
func Sign(op *UserOperation, privateKey []byte, entryPoint common.Address, chainID *big.Int) (*UserOperation, error) {
	defer clear(privateKey)

	if len(privateKey) != 32 {
		return nil, &SigningError{Err: fmt.Errorf("private key must be 32 bytes, got %d", len(privateKey))}
	}
	key, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return nil, &SigningError{Err: errors.New("invalid private key")}
	}
	defer zeroKey(key)

	return SignWithKey(op, key, entryPoint, chainID)
}

// SignWithKey is Sign for a parsed key. The key is left untouched.
func SignWithKey(op *UserOperation, key *ecdsa.PrivateKey, entryPoint common.Address, chainID *big.Int) (*UserOperation, error) {
	if key == nil {
		return nil, &SigningError{Err: errors.New("nil private key")}
	}

	hash, err := UserOpHash(op, entryPoint, chainID)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(SignedMessageHash(hash).Bytes(), key)
	if err != nil {
		return nil, &SigningError{Err: err}
	}
	sig[crypto.RecoveryIDOffset] += 27

	signed := op.Copy()
	signed.Signature = sig
	return signed, nil
}

// RecoverSigner returns the address whose key produced the operation's signature.
// Recovery bytes 0, 1, 27 and 28 are accepted.
func RecoverSigner(op *UserOperation, entryPoint common.Address, chainID *big.Int) (common.Address, error) {
	if len(op.Signature) != SignatureLength {
		return common.Address{}, &SigningError{Err: fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(op.Signature))}
	}

	hash, err := UserOpHash(op, entryPoint, chainID)
	if err != nil {
		return common.Address{}, err
	}

	sig := make([]byte, SignatureLength)
	copy(sig, op.Signature)
	switch v := sig[crypto.RecoveryIDOffset]; v {
	case 0, 1:
	case 27, 28:
		sig[crypto.RecoveryIDOffset] = v - 27
	default:
		return common.Address{}, &SigningError{Err: fmt.Errorf("invalid recovery id %d", v)}
	}

	pub, err := crypto.SigToPub(SignedMessageHash(hash).Bytes(), sig)
	if err != nil {
		return common.Address{}, &SigningError{Err: err}
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func zeroKey(key *ecdsa.PrivateKey) {
	if key == nil || key.D == nil {
		return
	}
	clear(key.D.Bits())
	key.D.SetInt64(0)
}
