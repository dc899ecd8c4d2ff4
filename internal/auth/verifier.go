package auth

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/immochain/immochain/internal/model"
)

// DefaultMaxSkew bounds how far a request timestamp may drift from server
// time before the signature is rejected.
const DefaultMaxSkew = 30 * time.Second

// Verifier checks request signatures against registered account keys.
type Verifier struct {
	mu      sync.RWMutex
	keys    map[model.Address]*rsa.PublicKey
	maxSkew time.Duration
	now     func() time.Time
}

// NewVerifier creates an empty account key table.
func NewVerifier(maxSkew time.Duration) *Verifier {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	return &Verifier{
		keys:    make(map[model.Address]*rsa.PublicKey),
		maxSkew: maxSkew,
		now:     time.Now,
	}
}

// Register stores a public key and returns its derived address. Registering
// the same key again is a no-op returning the same address.
func (v *Verifier) Register(pub *rsa.PublicKey) model.Address {
	addr := DeriveAddress(pub)
	v.mu.Lock()
	v.keys[addr] = pub
	v.mu.Unlock()
	return addr
}

// RegisterPEM parses a PEM-encoded PKIX public key and registers it.
func (v *Verifier) RegisterPEM(pemBytes []byte) (model.Address, error) {
	pub, err := ParsePublicKeyPEM(pemBytes)
	if err != nil {
		return model.ZeroAddress, err
	}
	return v.Register(pub), nil
}

// Known reports whether an address has a registered key.
func (v *Verifier) Known(addr model.Address) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.keys[addr]
	return ok
}

// Verify checks the signature headers of a request and returns the verified
// caller address.
func (v *Verifier) Verify(addr model.Address, timestampMs, signature, method, path string) (model.Address, error) {
	v.mu.RLock()
	pub, ok := v.keys[addr]
	v.mu.RUnlock()
	if !ok {
		return model.ZeroAddress, fmt.Errorf("auth: unknown account %s: %w", addr, model.ErrNotAuthorized)
	}

	ts, err := strconv.ParseInt(timestampMs, 10, 64)
	if err != nil {
		return model.ZeroAddress, fmt.Errorf("auth: bad timestamp: %w", model.ErrNotAuthorized)
	}
	skew := v.now().Sub(time.UnixMilli(ts))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return model.ZeroAddress, fmt.Errorf("auth: request timestamp outside allowed skew: %w", model.ErrNotAuthorized)
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return model.ZeroAddress, fmt.Errorf("auth: bad signature encoding: %w", model.ErrNotAuthorized)
	}

	message := fmt.Sprintf("%s%s%s", timestampMs, method, path)
	hashed := sha256.Sum256([]byte(message))
	err = rsa.VerifyPSS(pub, crypto.SHA256, hashed[:], sig,
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	if err != nil {
		return model.ZeroAddress, fmt.Errorf("auth: signature verification failed: %w", model.ErrNotAuthorized)
	}
	return addr, nil
}

// ParsePublicKeyPEM decodes a PEM PKIX RSA public key.
func ParsePublicKeyPEM(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA public key")
	}
	return pub, nil
}

// EncodePublicKeyPEM renders a public key as PEM, the format accepted by
// account registration.
func EncodePublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
