// Package auth implements caller authentication with RSA-PSS signatures.
//
// Accounts register an RSA public key; their address is derived from the key
// fingerprint. Mutating API requests are signed over timestamp+method+path
// and verified server-side against the registered key.
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/immochain/immochain/internal/model"
)

// Header names carried by signed requests.
const (
	HeaderKey       = "IMMO-ACCESS-KEY"
	HeaderTimestamp = "IMMO-ACCESS-TIMESTAMP"
	HeaderSignature = "IMMO-ACCESS-SIGNATURE"
)

// Credentials holds a private key used to sign requests as one account.
type Credentials struct {
	Address    model.Address
	PrivateKey *rsa.PrivateKey
}

// LoadCredentials loads a PEM private key from disk and derives its address.
func LoadCredentials(privateKeyPath string) (*Credentials, error) {
	if privateKeyPath == "" {
		return nil, fmt.Errorf("private key path is required")
	}
	key, err := LoadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}
	return NewCredentials(key), nil
}

// NewCredentials wraps an in-memory private key.
func NewCredentials(key *rsa.PrivateKey) *Credentials {
	return &Credentials{
		Address:    DeriveAddress(&key.PublicKey),
		PrivateKey: key,
	}
}

// LoadPrivateKey loads an RSA private key from a PEM file. PKCS#8 is tried
// first, PKCS#1 as a fallback.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key is not an RSA private key")
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return rsaKey, nil
}

// DeriveAddress computes an account address from a public key: the first 20
// bytes of the SHA-256 fingerprint of the PKIX encoding, hex encoded.
func DeriveAddress(pub *rsa.PublicKey) model.Address {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		// MarshalPKIXPublicKey cannot fail for a well-formed RSA key.
		panic(fmt.Sprintf("auth: marshal public key: %v", err))
	}
	sum := sha256.Sum256(der)
	return model.Address(hex.EncodeToString(sum[:20]))
}

// SignRequest generates authentication headers for a request.
func (c *Credentials) SignRequest(method, path string) (map[string]string, error) {
	timestampMs := time.Now().UnixMilli()

	signature, err := c.sign(timestampMs, method, path)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		HeaderKey:       string(c.Address),
		HeaderTimestamp: fmt.Sprintf("%d", timestampMs),
		HeaderSignature: signature,
	}, nil
}

// sign creates an RSA-PSS signature over timestamp_ms + method + path.
func (c *Credentials) sign(timestampMs int64, method, path string) (string, error) {
	message := fmt.Sprintf("%d%s%s", timestampMs, method, path)
	hashed := sha256.Sum256([]byte(message))

	signature, err := rsa.SignPSS(
		rand.Reader,
		c.PrivateKey,
		crypto.SHA256,
		hashed[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash},
	)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}
