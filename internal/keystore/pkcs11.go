//go:build pkcs11

package keystore

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"sync"

	"github.com/ThalesGroup/crypto11"

	"github.com/sirosfoundation/go-nfe/pkg/security"
)

// PKCS11Capability signs through a hardware token (A3). Tokens
// typically serialize poorly across sessions, so SignDigest holds a
// mutex for the duration of each operation.
type PKCS11Capability struct {
	ctx    *crypto11.Context
	signer crypto11.Signer
	cert   *x509.Certificate
	mu     sync.Mutex
}

var _ security.SigningCapability = (*PKCS11Capability)(nil)

// PKCS11Config holds configuration for the PKCS#11 capability.
type PKCS11Config struct {
	// ModulePath is the path to the PKCS#11 library (.so/.dylib/.dll).
	ModulePath string

	// SlotLabel is the token label to open (optional if SlotID set).
	SlotLabel string

	// SlotID is the slot number to use (optional if SlotLabel set).
	SlotID *int

	// PIN is the user PIN.
	PIN string

	// KeyLabel locates the signing key and certificate on the token.
	KeyLabel string
}

// NewPKCS11Capability opens the token and locates the key pair and
// certificate by label.
func NewPKCS11Capability(cfg *PKCS11Config) (*PKCS11Capability, error) {
	config := &crypto11.Config{
		Path: cfg.ModulePath,
		Pin:  cfg.PIN,
	}
	if cfg.SlotID != nil {
		config.SlotNumber = cfg.SlotID
	}
	if cfg.SlotLabel != "" {
		config.TokenLabel = cfg.SlotLabel
	}

	ctx, err := crypto11.Configure(config)
	if err != nil {
		return nil, fmt.Errorf("configuring PKCS#11: %w", err)
	}

	signer, err := ctx.FindKeyPair(nil, []byte(cfg.KeyLabel))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("finding key pair %q: %w", cfg.KeyLabel, err)
	}
	if signer == nil {
		ctx.Close()
		return nil, ErrKeyNotFound
	}
	if _, ok := signer.Public().(*rsa.PublicKey); !ok {
		ctx.Close()
		return nil, fmt.Errorf("%w: token key %q", ErrNotRSA, cfg.KeyLabel)
	}

	cert, err := ctx.FindCertificate(nil, []byte(cfg.KeyLabel), nil)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("finding certificate %q: %w", cfg.KeyLabel, err)
	}
	if cert == nil {
		ctx.Close()
		return nil, fmt.Errorf("no certificate with label %q on token", cfg.KeyLabel)
	}

	return &PKCS11Capability{ctx: ctx, signer: signer, cert: cert}, nil
}

// SignDigest signs on the token. Token errors surface as
// security.ErrKeyUnavailable so the pipeline can tell a pulled card
// from a bad document.
func (c *PKCS11Capability) SignDigest(digest []byte, hash crypto.Hash) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sig, err := c.signer.Sign(rand.Reader, digest, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", security.ErrKeyUnavailable, err)
	}
	return sig, nil
}

// Certificate returns the token certificate.
func (c *PKCS11Capability) Certificate() *x509.Certificate { return c.cert }

// Close closes the token session.
func (c *PKCS11Capability) Close() error { return c.ctx.Close() }
