package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Signer holds the bot's own trading key. The discovery engine only uses
// the derived address, to keep its own wallet out of leader reports; the
// signing surface exists for the downstream order submitter.
type Signer struct {
	logger *zap.Logger
	key    *ecdsa.PrivateKey
	addr   common.Address
}

// New creates a Signer from a hex-encoded private key. An empty key yields
// a disabled signer with a zero address.
func New(logger *zap.Logger, privateKeyHex string) (*Signer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if privateKeyHex == "" {
		logger.Info("signer key not set, self-exclusion disabled")
		return &Signer{logger: logger}, nil
	}

	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}

	addr := crypto.PubkeyToAddress(key.PublicKey)
	logger.Info("signer initialized", zap.String("address", addr.Hex()))

	return &Signer{logger: logger, key: key, addr: addr}, nil
}

// Enabled reports whether a key is loaded.
func (s *Signer) Enabled() bool {
	return s.key != nil
}

// Address returns the derived address, lower-cased hex. Empty when the
// signer is disabled.
func (s *Signer) Address() string {
	if s.key == nil {
		return ""
	}
	return strings.ToLower(s.addr.Hex())
}

// SignDigest signs a 32-byte digest and returns the 65-byte [R || S || V]
// signature, with V adjusted to 27/28 as Ethereum tooling expects.
func (s *Signer) SignDigest(digest []byte) ([]byte, error) {
	if s.key == nil {
		return nil, fmt.Errorf("signer not configured")
	}
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}

	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}
	sig[64] += 27
	return sig, nil
}
