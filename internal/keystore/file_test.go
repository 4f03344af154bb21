package keystore

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPEMPair(t *testing.T, notBefore, notAfter time.Time) (keyPath, certPath string, key *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "ACME Comercio Ltda:14200166000187"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	dir := t.TempDir()
	keyPath = filepath.Join(dir, "emitter.key")
	certPath = filepath.Join(dir, "emitter.crt")

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	require.NoError(t, os.WriteFile(keyPath, keyPEM, 0o600))
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	require.NoError(t, os.WriteFile(certPath, certPEM, 0o644))

	return keyPath, certPath, key
}

func TestLoadPEMAndSign(t *testing.T) {
	keyPath, certPath, key := writeTestPEMPair(t, time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour))

	capability, err := LoadPEM(keyPath, certPath)
	require.NoError(t, err)
	defer capability.Close()

	digest := sha256.Sum256([]byte("payload"))
	sig, err := capability.SignDigest(digest[:], crypto.SHA256)
	require.NoError(t, err)

	require.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig))
	assert.Equal(t, "ACME Comercio Ltda:14200166000187", capability.Certificate().Subject.CommonName)
}

func TestLoadPEMMissingKey(t *testing.T) {
	_, certPath, _ := writeTestPEMPair(t, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	_, err := LoadPEM(filepath.Join(t.TempDir(), "absent.key"), certPath)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestLoadPEMPKCS8(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	_, certPath, _ := writeTestPEMPair(t, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	keyPath := filepath.Join(t.TempDir(), "pkcs8.key")
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	require.NoError(t, os.WriteFile(keyPath, keyPEM, 0o600))

	capability, err := LoadPEM(keyPath, certPath)
	require.NoError(t, err)
	capability.Close()
}

func TestCheckCertificateWindow(t *testing.T) {
	keyPath, certPath, _ := writeTestPEMPair(t, time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))

	capability, err := LoadPEM(keyPath, certPath)
	require.NoError(t, err, "loading an expired certificate succeeds; checking it does not")

	err = CheckCertificate(capability.Certificate(), time.Now())
	var cee *CertificateExpiredError
	require.ErrorAs(t, err, &cee)
	assert.True(t, time.Now().After(cee.NotAfter))
}

func TestCheckCertificateValid(t *testing.T) {
	keyPath, certPath, _ := writeTestPEMPair(t, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	capability, err := LoadPEM(keyPath, certPath)
	require.NoError(t, err)
	assert.NoError(t, CheckCertificate(capability.Certificate(), time.Now()))
}
