// Package keystore loads the emitter's certificate and private key
// and exposes them as a security.SigningCapability.
//
// Two storage forms are supported:
//
//   - A1: software certificates, as a PEM key/cert pair or a PFX
//     (PKCS#12) bundle
//   - A3: hardware tokens and smart cards through PKCS#11, compiled
//     in with the pkcs11 build tag
//
// The emitter signs every document and event with the same
// certificate, so providers hold exactly one capability.
package keystore

import (
	"crypto/x509"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrKeyNotFound = errors.New("signing key not found")
	ErrNotRSA      = errors.New("certificate key is not RSA")
)

// requireRSA asserts the certificate carries an RSA key, the only
// algorithm the authority accepts.
func requireRSA(cert *x509.Certificate) error {
	if cert.PublicKeyAlgorithm != x509.RSA {
		return fmt.Errorf("%w: %s", ErrNotRSA, cert.PublicKeyAlgorithm)
	}
	return nil
}
