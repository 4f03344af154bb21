package emitter

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"log/slog"
	"math/big"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-nfe/internal/storage"
	"github.com/sirosfoundation/go-nfe/pkg/accesskey"
	"github.com/sirosfoundation/go-nfe/pkg/contingency"
	"github.com/sirosfoundation/go-nfe/pkg/document"
	"github.com/sirosfoundation/go-nfe/pkg/security"
	"github.com/sirosfoundation/go-nfe/pkg/soap"
)

type testCapability struct {
	key  *rsa.PrivateKey
	cert *x509.Certificate
}

func (c *testCapability) SignDigest(digest []byte, hash crypto.Hash) ([]byte, error) {
	return rsa.SignPKCS1v15(rand.Reader, c.key, hash, digest)
}

func (c *testCapability) Certificate() *x509.Certificate { return c.cert }

func newTestCapability(t *testing.T, notAfter time.Time) *testCapability {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "ACME Comercio Ltda:14200166000187"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return &testCapability{key: key, cert: cert}
}

type scriptedAuthority struct {
	mu         sync.Mutex
	submitResp *soap.AuthorityResponse
	submitErr  error
	lastSigned []byte
	eventResp  *soap.AuthorityResponse
	lastEvent  []byte
}

func (a *scriptedAuthority) SubmitBatch(_ context.Context, _, _ string, signedXML []byte) (*soap.AuthorityResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastSigned = signedXML
	return a.submitResp, a.submitErr
}

func (a *scriptedAuthority) PollReceipt(context.Context, string, string) (*soap.AuthorityResponse, error) {
	return nil, nil
}

func (a *scriptedAuthority) QuerySituation(context.Context, string, string) (*soap.AuthorityResponse, error) {
	return nil, nil
}

func (a *scriptedAuthority) CheckStatus(context.Context, string) (*soap.AuthorityResponse, error) {
	return &soap.AuthorityResponse{Code: 107}, nil
}

func (a *scriptedAuthority) SubmitEvent(_ context.Context, _, _ string, signedEventXML []byte) (*soap.AuthorityResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastEvent = signedEventXML
	if a.eventResp != nil {
		return a.eventResp, nil
	}
	return &soap.AuthorityResponse{Code: 135}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEmitter(t *testing.T, auth *scriptedAuthority) (*Emitter, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	orch := contingency.NewOrchestrator(auth, store, store, nil, testLogger())
	capability := newTestCapability(t, time.Now().Add(24*time.Hour))
	return New(capability, orch, document.Homologation, testLogger()), store
}

func draftDocument() *document.FiscalDocument {
	return &document.FiscalDocument{
		Header: document.Header{
			StateCode:    "33",
			CityCode:     "3304557",
			Model:        "55",
			Series:       "1",
			Number:       "42",
			EmissionType: "1",
			Purpose:      "1",
			NatureOfOp:   "VENDA",
		},
		Issuer: document.Party{
			TaxID:    "14200166000187",
			Name:     "ACME Comercio Ltda",
			StateTax: "123456789",
		},
		Recipient: document.Party{
			TaxID: "12345678909",
			Name:  "Fulano de Tal",
		},
		Items: []document.Item{
			{
				Code:        "SKU-1",
				Description: "Widget",
				Unit:        "UN",
				Quantity:    decimal.NewFromInt(1),
				UnitValue:   decimal.NewFromInt(10),
				Total:       decimal.NewFromInt(10),
				ICMSBase:    decimal.NewFromInt(10),
				ICMSValue:   decimal.NewFromInt(1),
			},
		},
		Totals: document.Totals{
			ICMSBase:   decimal.NewFromInt(10),
			ICMSValue:  decimal.NewFromInt(1),
			ProductSum: decimal.NewFromInt(10),
			Total:      decimal.NewFromInt(10),
		},
	}
}

func TestEmitAuthorizedEndToEnd(t *testing.T) {
	auth := &scriptedAuthority{
		submitResp: &soap.AuthorityResponse{Code: 100, Protocol: "133250000000123"},
	}
	e, _ := newTestEmitter(t, auth)

	doc := draftDocument()
	resp, err := e.Emit(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, 100, resp.Code)
	assert.Equal(t, document.Authorized, doc.Status)
	assert.Equal(t, "133250000000123", doc.Protocol)

	// The stamped key is well formed and consistent with the header.
	key, err := accesskey.Parse(doc.Key.String())
	require.NoError(t, err)
	assert.Equal(t, "33", string(key)[:2])
	assert.Regexp(t, regexp.MustCompile(`^\d{8}$`), doc.Header.ControlCode)

	// What went on the wire is the signed document, verifiable as-is.
	engine := security.NewEngine(nil)
	_, err = engine.Verify(auth.lastSigned)
	assert.NoError(t, err)
	assert.Contains(t, string(auth.lastSigned), `Id="NFe`+doc.Key.String()+`"`)
}

func TestEmitOutageParksInContingency(t *testing.T) {
	auth := &scriptedAuthority{
		submitErr: &soap.UnavailableError{Endpoint: "https://nfe.example", Err: context.DeadlineExceeded},
	}
	e, store := newTestEmitter(t, auth)

	doc := draftDocument()
	_, err := e.Emit(context.Background(), doc)

	var ue *soap.UnavailableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, document.Contingency, doc.Status)

	rec, err := store.Get(context.Background(), doc.Key.String())
	require.NoError(t, err)
	assert.NotEmpty(t, rec.SignedXML)
	assert.True(t, rec.EventSent)

	// The EPEC event is itself a verifiable signed document naming
	// the parked access key.
	engine := security.NewEngine(nil)
	_, verr := engine.Verify(rec.EventXML)
	assert.NoError(t, verr)
	assert.Contains(t, string(rec.EventXML), "<chNFe>"+doc.Key.String()+"</chNFe>")
	assert.Contains(t, string(rec.EventXML), "<tpEvento>110140</tpEvento>")
	assert.Contains(t, string(rec.EventXML), "<CNPJ>14200166000187</CNPJ>")
}

func TestEmitRejectsNonDraft(t *testing.T) {
	e, _ := newTestEmitter(t, &scriptedAuthority{})

	doc := draftDocument()
	doc.Status = document.Signed
	_, err := e.Emit(context.Background(), doc)

	var te *document.TransitionError
	require.ErrorAs(t, err, &te)
}

func TestEmitRefusesExpiredCertificate(t *testing.T) {
	auth := &scriptedAuthority{submitResp: &soap.AuthorityResponse{Code: 100}}
	store := storage.NewMemory()
	orch := contingency.NewOrchestrator(auth, store, store, nil, testLogger())
	capability := newTestCapability(t, time.Now().Add(-time.Minute))
	e := New(capability, orch, document.Homologation, testLogger())

	_, err := e.Emit(context.Background(), draftDocument())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "certificate")
}

func TestEmitKeyDeterminedByHeader(t *testing.T) {
	auth := &scriptedAuthority{submitResp: &soap.AuthorityResponse{Code: 100}}
	e, _ := newTestEmitter(t, auth)

	doc := draftDocument()
	doc.Header.EmittedAt = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	doc.Header.ControlCode = "10000000"

	_, err := e.Emit(context.Background(), doc)
	require.NoError(t, err)

	want, err := accesskey.Generate(doc.KeyFields())
	require.NoError(t, err)
	assert.Equal(t, want, doc.Key)
}
