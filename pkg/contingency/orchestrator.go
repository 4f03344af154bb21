package contingency

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sirosfoundation/go-nfe/pkg/document"
	"github.com/sirosfoundation/go-nfe/pkg/response"
	"github.com/sirosfoundation/go-nfe/pkg/soap"
)

// Authority is the slice of the transport the orchestrator uses.
// *soap.Client satisfies it.
type Authority interface {
	SubmitBatch(ctx context.Context, stateCode, batchID string, signedXML []byte) (*soap.AuthorityResponse, error)
	PollReceipt(ctx context.Context, stateCode, receipt string) (*soap.AuthorityResponse, error)
	QuerySituation(ctx context.Context, stateCode, accessKey string) (*soap.AuthorityResponse, error)
	CheckStatus(ctx context.Context, stateCode string) (*soap.AuthorityResponse, error)
	SubmitEvent(ctx context.Context, stateCode, batchID string, signedEventXML []byte) (*soap.AuthorityResponse, error)
}

// ErrSubmissionInFlight means another goroutine is currently
// submitting or reconciling the same access key.
var ErrSubmissionInFlight = errors.New("submission already in flight for this access key")

// ErrAuthorityDown is the cause carried by the unavailability error
// when the cached heartbeat already reports the state authority
// offline and the submission goes straight to contingency.
var ErrAuthorityDown = errors.New("authority heartbeat reports outage")

// Config holds orchestrator tuning.
type Config struct {
	// Mode is the contingency mode entered on outages.
	Mode Mode

	// ReconcileInterval is the background loop period.
	ReconcileInterval time.Duration

	// RetryCeiling caps resubmission attempts per record; past it the
	// orchestrator queries the document's situation directly and, if
	// that settles nothing, escalates.
	RetryCeiling int

	// AvailabilityTTL bounds how long a heartbeat result is reused.
	AvailabilityTTL time.Duration

	// RecoverableCodes marks extra status codes as recoverable
	// rejections, see response.NewInterpreter. They settle the
	// document as rejected; resubmission stays a caller decision.
	RecoverableCodes []int
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		Mode:              ModeEPEC,
		ReconcileInterval: 5 * time.Minute,
		RetryCeiling:      5,
		AvailabilityTTL:   5 * time.Minute,
	}
}

// Orchestrator submits documents and owns the contingency lifecycle.
type Orchestrator struct {
	authority    Authority
	records      RecordStore
	responses    ResponseLog
	interp       *response.Interpreter
	availability *AvailabilityCache
	logger       *slog.Logger

	mode              Mode
	reconcileInterval time.Duration
	retryCeiling      int

	// eventBuilder produces the signed pre-authorization event for a
	// record entering EPEC contingency. Optional.
	eventBuilder func(rec *Record) ([]byte, error)
	onResolved   func(rec *Record, resp *soap.AuthorityResponse)
	onEscalated  func(rec *Record)

	now   func() time.Time
	newID func() string

	mu       sync.Mutex
	inflight map[string]struct{}

	// docs holds documents whose submission is still open, so an
	// asynchronous settlement can be carried back onto them.
	docs map[string]*document.FiscalDocument

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator wires an orchestrator over its collaborators.
func NewOrchestrator(authority Authority, records RecordStore, responses ResponseLog, cfg *Config, logger *slog.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	interp := response.NewInterpreter(cfg.RecoverableCodes...)

	o := &Orchestrator{
		authority:         authority,
		records:           records,
		responses:         responses,
		interp:            interp,
		availability:      NewAvailabilityCache(authority, interp, cfg.AvailabilityTTL),
		logger:            logger,
		mode:              cfg.Mode,
		reconcileInterval: cfg.ReconcileInterval,
		retryCeiling:      cfg.RetryCeiling,
		now:               time.Now,
		newID:             uuid.NewString,
		inflight:          make(map[string]struct{}),
		docs:              make(map[string]*document.FiscalDocument),
	}
	if o.mode == 0 {
		o.mode = ModeEPEC
	}
	if o.reconcileInterval <= 0 {
		o.reconcileInterval = 5 * time.Minute
	}
	if o.retryCeiling <= 0 {
		o.retryCeiling = 5
	}
	return o
}

// SetEventBuilder installs the builder for signed EPEC events. Must
// be called before Start.
func (o *Orchestrator) SetEventBuilder(fn func(rec *Record) ([]byte, error)) { o.eventBuilder = fn }

// OnResolved installs a callback invoked after a record settles.
// Must be called before Start.
func (o *Orchestrator) OnResolved(fn func(rec *Record, resp *soap.AuthorityResponse)) {
	o.onResolved = fn
}

// OnEscalated installs a callback invoked when a record exhausts its
// retry ceiling. Must be called before Start.
func (o *Orchestrator) OnEscalated(fn func(rec *Record)) { o.onEscalated = fn }

// Submit sends a signed document to its state authority and applies
// the outcome to the document's status. The document must be Signed,
// or in Contingency for a deferred resubmission. On an authority
// outage the document enters contingency and the transport error is
// returned.
func (o *Orchestrator) Submit(ctx context.Context, doc *document.FiscalDocument, signedXML []byte) (*soap.AuthorityResponse, error) {
	if doc.Status != document.Signed && doc.Status != document.Contingency {
		return nil, &document.TransitionError{From: doc.Status, To: document.Submitted}
	}
	key := doc.Key.String()
	if !o.acquire(key) {
		return nil, ErrSubmissionInFlight
	}
	defer o.release(key)

	// Consult the cached heartbeat before burning a transport timeout
	// on an authority already known to be down.
	if !o.availability.Available(ctx, doc.Header.StateCode) {
		if cerr := o.enterContingency(ctx, doc, signedXML, ErrAuthorityDown.Error()); cerr != nil {
			return nil, cerr
		}
		return nil, &soap.UnavailableError{Endpoint: "state " + doc.Header.StateCode, Err: ErrAuthorityDown}
	}

	resp, err := o.authority.SubmitBatch(ctx, doc.Header.StateCode, o.batchID(), signedXML)
	if err != nil {
		var ue *soap.UnavailableError
		if errors.As(err, &ue) {
			o.availability.Invalidate(doc.Header.StateCode)
			if cerr := o.enterContingency(ctx, doc, signedXML, ue.Error()); cerr != nil {
				return nil, cerr
			}
		}
		return nil, err
	}
	o.logResponse(ctx, key, resp)

	outcome := o.interp.Classify(resp.Code)
	if outcome == response.Unavailable {
		if cerr := o.enterContingency(ctx, doc, signedXML, resp.Description); cerr != nil {
			return resp, cerr
		}
		return resp, nil
	}
	if err := doc.Transition(document.Submitted); err != nil {
		return resp, err
	}
	switch outcome {
	case response.Accepted:
		doc.Protocol = resp.Protocol
		if err := doc.Transition(document.Authorized); err != nil {
			return resp, err
		}
		o.settleByKey(ctx, key, resp)
	case response.Rejected, response.Recoverable:
		if err := doc.Transition(document.Rejected); err != nil {
			return resp, err
		}
		o.settleByKey(ctx, key, resp)
	case response.Pending:
		if err := o.track(ctx, doc, signedXML, resp.Receipt); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// Start runs the reconciliation loop until Stop.
func (o *Orchestrator) Start(ctx context.Context) {
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.wg.Add(1)
	go o.run()
	o.logger.Info("contingency orchestrator started",
		"mode", o.mode.String(), "reconcile_interval", o.reconcileInterval)
}

// Stop halts the loop and waits for an in-progress pass to finish.
func (o *Orchestrator) Stop() {
	o.cancel()
	o.wg.Wait()
	o.logger.Info("contingency orchestrator stopped")
}

func (o *Orchestrator) run() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			if err := o.ReconcileOnce(o.ctx); err != nil {
				o.logger.Error("reconciliation pass failed", "error", err)
			}
		}
	}
}

// ReconcileOnce walks all unresolved records once: polls outstanding
// receipts, resends stored submissions to recovered authorities, and
// escalates records past the retry ceiling. Records another goroutine
// holds are skipped, never waited on.
func (o *Orchestrator) ReconcileOnce(ctx context.Context) error {
	recs, err := o.records.Unresolved(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !o.acquire(rec.AccessKey) {
			continue
		}
		o.reconcileRecord(ctx, rec)
		o.release(rec.AccessKey)
	}
	return nil
}

func (o *Orchestrator) reconcileRecord(ctx context.Context, rec *Record) {
	log := o.logger.With("access_key", rec.AccessKey, "state", rec.StateCode)

	if rec.Receipt != "" {
		resp, err := o.authority.PollReceipt(ctx, rec.StateCode, rec.Receipt)
		if err != nil {
			log.Warn("receipt poll failed", "receipt", rec.Receipt, "error", err)
			return
		}
		o.logResponse(ctx, rec.AccessKey, resp)
		if o.interp.Classify(resp.Code).Settles() {
			o.settle(ctx, rec, resp)
		}
		return
	}

	o.sendEventIfNeeded(ctx, rec)

	if !o.availability.Available(ctx, rec.StateCode) {
		log.Debug("authority still unavailable")
		return
	}

	if rec.Attempts >= o.retryCeiling {
		// The submission may have landed even though its answer was
		// lost; the situation query is authoritative either way.
		if resp, err := o.authority.QuerySituation(ctx, rec.StateCode, rec.AccessKey); err == nil {
			o.logResponse(ctx, rec.AccessKey, resp)
			if o.interp.Classify(resp.Code).Settles() {
				o.settle(ctx, rec, resp)
				return
			}
		}
		o.escalate(ctx, rec)
		return
	}

	rec.Attempts++
	rec.LastAttempt = o.now()
	if err := o.records.Save(ctx, rec); err != nil {
		log.Error("record save failed before resend", "error", err)
		return
	}

	resp, err := o.authority.SubmitBatch(ctx, rec.StateCode, o.batchID(), rec.SignedXML)
	if err != nil {
		var ue *soap.UnavailableError
		if errors.As(err, &ue) {
			o.availability.Invalidate(rec.StateCode)
		}
		log.Warn("resend failed", "attempt", rec.Attempts, "error", err)
		return
	}
	o.logResponse(ctx, rec.AccessKey, resp)

	switch outcome := o.interp.Classify(resp.Code); {
	case outcome.Settles():
		o.settle(ctx, rec, resp)
	case outcome == response.Pending:
		rec.Receipt = resp.Receipt
		if err := o.records.Save(ctx, rec); err != nil {
			log.Error("record save failed after batch acceptance", "error", err)
		}
	default:
		log.Info("resend not settled", "code", resp.Code, "attempt", rec.Attempts)
	}
}

func (o *Orchestrator) enterContingency(ctx context.Context, doc *document.FiscalDocument, signedXML []byte, reason string) error {
	if doc.Status == document.Signed {
		if err := doc.Transition(document.Contingency); err != nil {
			return err
		}
	}
	o.adopt(doc)

	rec, err := o.records.Get(ctx, doc.Key.String())
	if errors.Is(err, ErrRecordNotFound) {
		rec = &Record{
			ID:        o.newID(),
			AccessKey: doc.Key.String(),
			StateCode: doc.Header.StateCode,
			Mode:      o.mode,
			EnteredAt: o.now(),
			SignedXML: signedXML,
		}
	} else if err != nil {
		return err
	}
	rec.Reason = reason

	if rec.Mode == ModeEPEC && len(rec.EventXML) == 0 && o.eventBuilder != nil {
		event, berr := o.eventBuilder(rec)
		if berr != nil {
			o.logger.Error("event build failed", "access_key", rec.AccessKey, "error", berr)
		} else {
			rec.EventXML = event
		}
	}
	if err := o.records.Save(ctx, rec); err != nil {
		return err
	}

	o.logger.Warn("document entered contingency",
		"access_key", rec.AccessKey, "state", rec.StateCode, "mode", rec.Mode.String(), "reason", reason)

	// The event environment is separate from the state authority and
	// usually reachable during the outage.
	o.sendEventIfNeeded(ctx, rec)
	return nil
}

func (o *Orchestrator) sendEventIfNeeded(ctx context.Context, rec *Record) {
	if rec.Mode != ModeEPEC || rec.EventSent || len(rec.EventXML) == 0 {
		return
	}
	resp, err := o.authority.SubmitEvent(ctx, rec.StateCode, o.batchID(), rec.EventXML)
	if err != nil {
		o.logger.Warn("event submission failed", "access_key", rec.AccessKey, "error", err)
		return
	}
	o.logResponse(ctx, rec.AccessKey, resp)
	if o.interp.Classify(resp.Code) == response.Accepted {
		rec.EventSent = true
		if err := o.records.Save(ctx, rec); err != nil {
			o.logger.Error("record save failed after event", "access_key", rec.AccessKey, "error", err)
		}
	}
}

// track persists an unresolved record for a document the authority
// holds under a polling receipt.
func (o *Orchestrator) track(ctx context.Context, doc *document.FiscalDocument, signedXML []byte, receipt string) error {
	o.adopt(doc)
	rec, err := o.records.Get(ctx, doc.Key.String())
	if errors.Is(err, ErrRecordNotFound) {
		rec = &Record{
			ID:        o.newID(),
			AccessKey: doc.Key.String(),
			StateCode: doc.Header.StateCode,
			Mode:      o.mode,
			EnteredAt: o.now(),
			SignedXML: signedXML,
		}
	} else if err != nil {
		return err
	}
	rec.Receipt = receipt
	rec.Attempts++
	rec.LastAttempt = o.now()
	return o.records.Save(ctx, rec)
}

func (o *Orchestrator) settle(ctx context.Context, rec *Record, resp *soap.AuthorityResponse) {
	rec.Resolved = true
	rec.ResolvedAt = o.now()
	rec.FinalCode = resp.Code
	rec.Protocol = resp.Protocol
	rec.Receipt = ""
	if err := o.records.Save(ctx, rec); err != nil {
		o.logger.Error("record save failed on settlement", "access_key", rec.AccessKey, "error", err)
		return
	}
	o.applyOutcome(rec.AccessKey, resp)
	o.logger.Info("submission settled",
		"access_key", rec.AccessKey, "code", resp.Code, "protocol", resp.Protocol)
	if o.onResolved != nil {
		o.onResolved(rec, resp)
	}
}

// adopt retains the document so a settlement reached asynchronously,
// via receipt poll, resend or situation query, still lands on it.
func (o *Orchestrator) adopt(doc *document.FiscalDocument) {
	o.mu.Lock()
	o.docs[doc.Key.String()] = doc
	o.mu.Unlock()
}

func (o *Orchestrator) takeDocument(accessKey string) *document.FiscalDocument {
	o.mu.Lock()
	doc := o.docs[accessKey]
	delete(o.docs, accessKey)
	o.mu.Unlock()
	return doc
}

// applyOutcome moves an adopted document to its terminal status once
// its record settles.
func (o *Orchestrator) applyOutcome(accessKey string, resp *soap.AuthorityResponse) {
	doc := o.takeDocument(accessKey)
	if doc == nil {
		return
	}
	if doc.Status == document.Contingency {
		if err := doc.Transition(document.Submitted); err != nil {
			o.logger.Error("document transition failed on settlement", "access_key", accessKey, "error", err)
			return
		}
	}
	if doc.Status != document.Submitted {
		return
	}
	target := document.Rejected
	if o.interp.Classify(resp.Code) == response.Accepted {
		doc.Protocol = resp.Protocol
		target = document.Authorized
	}
	if err := doc.Transition(target); err != nil {
		o.logger.Error("document transition failed on settlement", "access_key", accessKey, "error", err)
	}
}

// settleByKey settles the record for an access key if one is being
// tracked; live submissions that never entered contingency have none.
func (o *Orchestrator) settleByKey(ctx context.Context, accessKey string, resp *soap.AuthorityResponse) {
	rec, err := o.records.Get(ctx, accessKey)
	if errors.Is(err, ErrRecordNotFound) {
		return
	}
	if err != nil {
		o.logger.Error("record lookup failed on settlement", "access_key", accessKey, "error", err)
		return
	}
	if !rec.Resolved {
		o.settle(ctx, rec, resp)
	}
}

func (o *Orchestrator) escalate(ctx context.Context, rec *Record) {
	if rec.Escalated {
		return
	}
	rec.Escalated = true
	if err := o.records.Save(ctx, rec); err != nil {
		o.logger.Error("record save failed on escalation", "access_key", rec.AccessKey, "error", err)
		return
	}
	o.logger.Error("submission escalated after retry ceiling",
		"access_key", rec.AccessKey, "attempts", rec.Attempts)
	if o.onEscalated != nil {
		o.onEscalated(rec)
	}
}

func (o *Orchestrator) logResponse(ctx context.Context, accessKey string, resp *soap.AuthorityResponse) {
	if err := o.responses.Append(ctx, accessKey, resp); err != nil {
		o.logger.Error("response log append failed", "access_key", accessKey, "error", err)
	}
}

func (o *Orchestrator) acquire(accessKey string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, held := o.inflight[accessKey]; held {
		return false
	}
	o.inflight[accessKey] = struct{}{}
	return true
}

func (o *Orchestrator) release(accessKey string) {
	o.mu.Lock()
	delete(o.inflight, accessKey)
	o.mu.Unlock()
}

// batchID yields a numeric batch identifier unique per attempt.
func (o *Orchestrator) batchID() string {
	return strconv.FormatInt(o.now().UnixNano()%1_000_000_000_000_000, 10)
}
