package contingency

import (
	"context"
	"errors"
	"time"

	"github.com/sirosfoundation/go-nfe/pkg/soap"
)

// Mode selects how a document rides out an authority outage.
type Mode int

const (
	// ModeEPEC files a signed pre-authorization event with the
	// national environment while the state authority is down.
	ModeEPEC Mode = iota + 1

	// ModeOffline emits locally with no prior event; the document is
	// only valid once the deferred submission is authorized.
	ModeOffline
)

func (m Mode) String() string {
	switch m {
	case ModeEPEC:
		return "epec"
	case ModeOffline:
		return "offline"
	}
	return "unknown"
}

// Record is the durable state of one document's submission while it
// is unresolved: in contingency or awaiting a receipt poll.
type Record struct {
	ID        string // opaque record id
	AccessKey string // 44-digit key, unique per record
	StateCode string
	Mode      Mode
	Reason    string // why contingency was entered, empty outside it
	EnteredAt time.Time

	// SignedXML holds the exact signed bytes to resend. The document
	// is never re-keyed or re-signed once in contingency.
	SignedXML []byte

	// EventXML holds the signed EPEC event, set only in ModeEPEC.
	EventXML  []byte
	EventSent bool

	Receipt     string // outstanding batch receipt, poll until settled
	Attempts    int
	LastAttempt time.Time

	Escalated  bool
	Resolved   bool
	ResolvedAt time.Time
	FinalCode  int    // settling cStat, valid once Resolved
	Protocol   string // authorization protocol, if accepted
}

// ErrRecordNotFound is returned by stores when no record exists for
// an access key.
var ErrRecordNotFound = errors.New("contingency record not found")

// RecordStore persists submission records.
type RecordStore interface {
	// Save inserts or replaces the record keyed by its access key.
	Save(ctx context.Context, rec *Record) error

	// Get returns the record for an access key, or ErrRecordNotFound.
	Get(ctx context.Context, accessKey string) (*Record, error)

	// Unresolved lists records still awaiting a settling outcome, in
	// the order they were entered.
	Unresolved(ctx context.Context) ([]*Record, error)
}

// ResponseLog retains every authority response per access key. The
// full exchange history is evidence in fiscal disputes, so responses
// are appended, never overwritten.
type ResponseLog interface {
	Append(ctx context.Context, accessKey string, resp *soap.AuthorityResponse) error
	History(ctx context.Context, accessKey string) ([]*soap.AuthorityResponse, error)
}
