package security

import (
	"crypto"
	"crypto/x509"
	"errors"
)

// ErrKeyUnavailable is returned by a SigningCapability whose backing
// key material cannot be reached, such as a removed hardware token.
var ErrKeyUnavailable = errors.New("signing key unavailable")

// SigningCapability produces raw signatures over precomputed digests.
// Implementations hold the private key; the engine never sees it, so
// hardware-backed keys that cannot export material still work.
type SigningCapability interface {
	// SignDigest signs the given digest, already hashed with hash.
	// Implementations must be safe for concurrent use.
	SignDigest(digest []byte, hash crypto.Hash) ([]byte, error)

	// Certificate returns the X.509 certificate bound to the key. It
	// is embedded in the KeyInfo of every signature produced.
	Certificate() *x509.Certificate
}
