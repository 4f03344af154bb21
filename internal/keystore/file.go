package keystore

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"

	"github.com/sirosfoundation/go-nfe/pkg/security"
)

// FileCapability is a software (A1) signing capability loaded from
// disk. RSA PKCS#1 v1.5 signing is stateless, so it is safe for
// concurrent use without serialization.
type FileCapability struct {
	key  *rsa.PrivateKey
	cert *x509.Certificate
}

var _ security.SigningCapability = (*FileCapability)(nil)

// LoadPEM loads a capability from a PEM private key and certificate
// pair.
func LoadPEM(keyPath, certPath string) (*FileCapability, error) {
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	key, err := parseRSAPrivateKey(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	cert, err := loadCertificate(certPath)
	if err != nil {
		return nil, err
	}
	if err := requireRSA(cert); err != nil {
		return nil, err
	}
	return &FileCapability{key: key, cert: cert}, nil
}

// LoadPFX loads a capability from a PKCS#12 bundle, the common
// distribution form of A1 certificates.
func LoadPFX(path, password string) (*FileCapability, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("reading PFX file: %w", err)
	}

	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("decoding PFX: %w", err)
	}
	key, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotRSA, priv)
	}
	if err := requireRSA(cert); err != nil {
		return nil, err
	}
	return &FileCapability{key: key, cert: cert}, nil
}

// SignDigest signs a precomputed digest with RSA PKCS#1 v1.5.
func (c *FileCapability) SignDigest(digest []byte, hash crypto.Hash) ([]byte, error) {
	return rsa.SignPKCS1v15(rand.Reader, c.key, hash, digest)
}

// Certificate returns the loaded certificate.
func (c *FileCapability) Certificate() *x509.Certificate { return c.cert }

// Close releases nothing for file capabilities; it exists so all
// providers close uniformly.
func (c *FileCapability) Close() error { return nil }

func parseRSAPrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrNotRSA, key)
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported key type: %s", block.Type)
	}
}

func loadCertificate(path string) (*x509.Certificate, error) {
	certPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading certificate file: %w", err)
	}
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no certificate PEM block in %s", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate: %w", err)
	}
	return cert, nil
}
