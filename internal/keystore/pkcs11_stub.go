//go:build !pkcs11

package keystore

import (
	"crypto"
	"crypto/x509"
	"errors"
)

// ErrPKCS11NotSupported is returned when PKCS#11 operations are
// attempted but the binary was not compiled with PKCS#11 support.
var ErrPKCS11NotSupported = errors.New("PKCS#11 support not compiled in (build with -tags pkcs11)")

// PKCS11Capability is a stub without the pkcs11 build tag.
type PKCS11Capability struct{}

// PKCS11Config holds configuration for the PKCS#11 capability.
type PKCS11Config struct {
	ModulePath string
	SlotLabel  string
	SlotID     *int
	PIN        string
	KeyLabel   string
}

// NewPKCS11Capability returns an error because PKCS#11 is not
// compiled in.
func NewPKCS11Capability(cfg *PKCS11Config) (*PKCS11Capability, error) {
	return nil, ErrPKCS11NotSupported
}

// SignDigest returns an error because PKCS#11 is not compiled in.
func (c *PKCS11Capability) SignDigest(digest []byte, hash crypto.Hash) ([]byte, error) {
	return nil, ErrPKCS11NotSupported
}

// Certificate returns nil because PKCS#11 is not compiled in.
func (c *PKCS11Capability) Certificate() *x509.Certificate { return nil }

// Close is a no-op.
func (c *PKCS11Capability) Close() error { return nil }
