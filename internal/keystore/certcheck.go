package keystore

import (
	"bytes"
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/ocsp"
)

// CertificateExpiredError reports a certificate outside its validity
// window.
type CertificateExpiredError struct {
	NotBefore time.Time
	NotAfter  time.Time
	At        time.Time
}

func (e *CertificateExpiredError) Error() string {
	return fmt.Sprintf("certificate not valid at %s (valid %s to %s)",
		e.At.Format(time.RFC3339), e.NotBefore.Format(time.RFC3339), e.NotAfter.Format(time.RFC3339))
}

// CheckCertificate validates that the certificate is inside its
// validity window and allows digital signatures. It is called at
// startup and before each signing batch; an expired certificate
// produces documents the authority rejects wholesale.
func CheckCertificate(cert *x509.Certificate, at time.Time) error {
	if at.Before(cert.NotBefore) || at.After(cert.NotAfter) {
		return &CertificateExpiredError{NotBefore: cert.NotBefore, NotAfter: cert.NotAfter, At: at}
	}
	if cert.KeyUsage != 0 && cert.KeyUsage&x509.KeyUsageDigitalSignature == 0 {
		return fmt.Errorf("certificate does not allow digital signatures")
	}
	return requireRSA(cert)
}

// CheckRevocation asks the certificate's OCSP responder whether it
// has been revoked. Absence of an OCSP server in the certificate is
// not an error; revocation then simply cannot be checked.
func CheckRevocation(ctx context.Context, client *http.Client, cert, issuer *x509.Certificate) error {
	if len(cert.OCSPServer) == 0 {
		return nil
	}
	if client == nil {
		client = http.DefaultClient
	}

	reqBytes, err := ocsp.CreateRequest(cert, issuer, nil)
	if err != nil {
		return fmt.Errorf("building OCSP request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cert.OCSPServer[0], bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("building OCSP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/ocsp-request")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("querying OCSP responder: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading OCSP response: %w", err)
	}
	parsed, err := ocsp.ParseResponseForCert(body, cert, issuer)
	if err != nil {
		return fmt.Errorf("parsing OCSP response: %w", err)
	}
	if parsed.Status == ocsp.Revoked {
		return fmt.Errorf("certificate revoked at %s", parsed.RevokedAt.Format(time.RFC3339))
	}
	return nil
}
