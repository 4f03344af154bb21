// Package emitter runs the full emission pipeline: it stamps the
// access key, assembles the canonical XML, signs it, and hands the
// document to the contingency orchestrator for submission.
package emitter

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/sirosfoundation/go-nfe/internal/keystore"
	"github.com/sirosfoundation/go-nfe/pkg/accesskey"
	"github.com/sirosfoundation/go-nfe/pkg/assembler"
	"github.com/sirosfoundation/go-nfe/pkg/contingency"
	"github.com/sirosfoundation/go-nfe/pkg/document"
	"github.com/sirosfoundation/go-nfe/pkg/security"
	"github.com/sirosfoundation/go-nfe/pkg/soap"
)

// Emitter drives a draft document through key stamping, assembly,
// signing and submission.
type Emitter struct {
	capability   security.SigningCapability
	engine       *security.Engine
	orchestrator *contingency.Orchestrator
	environment  document.Environment
	logger       *slog.Logger
	now          func() time.Time
}

// New wires an emitter. It also installs itself as the
// orchestrator's EPEC event builder, so contingency entries get a
// signed pre-authorization event without further setup.
func New(capability security.SigningCapability, orchestrator *contingency.Orchestrator, environment document.Environment, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Emitter{
		capability:   capability,
		engine:       security.NewEngine(capability),
		orchestrator: orchestrator,
		environment:  environment,
		logger:       logger,
		now:          time.Now,
	}
	orchestrator.SetEventBuilder(e.buildEPECEvent)
	return e
}

// Emit processes a draft document end to end. The document's access
// key, status and protocol are updated in place; the returned
// response is the authority's synchronous answer when there was one.
//
// On an authority outage Emit returns the transport error with the
// document parked in contingency; the orchestrator's reconcile loop
// finishes the submission later.
func (e *Emitter) Emit(ctx context.Context, doc *document.FiscalDocument) (*soap.AuthorityResponse, error) {
	if doc.Status != document.Draft {
		return nil, &document.TransitionError{From: doc.Status, To: document.Signed}
	}

	if err := keystore.CheckCertificate(e.capability.Certificate(), e.now()); err != nil {
		return nil, fmt.Errorf("signing certificate unusable: %w", err)
	}

	if doc.Header.EmittedAt.IsZero() {
		doc.Header.EmittedAt = e.now()
	}
	if doc.Header.Environment == 0 {
		doc.Header.Environment = e.environment
	}
	if doc.Header.ControlCode == "" {
		code, err := randomControlCode(doc.Header.Number)
		if err != nil {
			return nil, fmt.Errorf("generating control code: %w", err)
		}
		doc.Header.ControlCode = code
	}

	key, err := accesskey.Generate(doc.KeyFields())
	if err != nil {
		return nil, fmt.Errorf("generating access key: %w", err)
	}
	doc.Key = key

	xml, err := assembler.Assemble(doc)
	if err != nil {
		return nil, fmt.Errorf("assembling document: %w", err)
	}

	signed, err := e.engine.Sign(xml, "NFe"+key.String())
	if err != nil {
		return nil, fmt.Errorf("signing document: %w", err)
	}
	if err := doc.Transition(document.Signed); err != nil {
		return nil, err
	}

	e.logger.Info("document signed",
		"access_key", key.String(), "series", doc.Header.Series, "number", doc.Header.Number)

	return e.orchestrator.Submit(ctx, doc, signed)
}

// buildEPECEvent assembles and signs the contingency pre-authorization
// event for a parked record.
func (e *Emitter) buildEPECEvent(rec *contingency.Record) ([]byte, error) {
	key, err := accesskey.Parse(rec.AccessKey)
	if err != nil {
		return nil, fmt.Errorf("record access key: %w", err)
	}

	ev := assembler.Event{
		Type:        assembler.EventEPEC,
		AccessKey:   key.String(),
		IssuerTaxID: string(key)[6:20],
		OrgCode:     rec.StateCode,
		Environment: e.environment,
		Sequence:    1,
		OccurredAt:  e.now(),
		Description: "EPEC",
	}
	xml, err := assembler.AssembleEvent(ev)
	if err != nil {
		return nil, fmt.Errorf("assembling event: %w", err)
	}

	signed, err := e.engine.Sign(xml, assembler.EventID(ev.Type, ev.AccessKey, ev.Sequence))
	if err != nil {
		return nil, fmt.Errorf("signing event: %w", err)
	}
	return signed, nil
}

// randomControlCode draws the 8-digit random code. It must differ
// from the document number so the key is not guessable from the
// sequential alone.
func randomControlCode(number string) (string, error) {
	padded := number
	for len(padded) < 8 {
		padded = "0" + padded
	}
	for {
		n, err := rand.Int(rand.Reader, big.NewInt(100_000_000))
		if err != nil {
			return "", err
		}
		if code := fmt.Sprintf("%08d", n); code != padded {
			return code, nil
		}
	}
}
