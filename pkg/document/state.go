package document

import "fmt"

// Status is the emission lifecycle state of a document.
type Status int

const (
	Draft       Status = iota // built, untouched by the engine
	Signed                    // signature envelope produced
	Contingency               // routed to contingency, awaiting reconciliation
	Submitted                 // handed to the authority, awaiting final outcome
	Authorized                // authority issued an authorization protocol
	Rejected                  // authority rejected the document
)

func (s Status) String() string {
	switch s {
	case Draft:
		return "draft"
	case Signed:
		return "signed"
	case Contingency:
		return "contingency"
	case Submitted:
		return "submitted"
	case Authorized:
		return "authorized"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// TransitionError reports an attempt to move a document along an edge
// the lifecycle does not have.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid document state transition: %s -> %s", e.From, e.To)
}

// transitions enumerates the legal lifecycle edges. Terminal states
// have no outgoing edges; a document never regresses.
var transitions = map[Status][]Status{
	Draft:       {Signed},
	Signed:      {Submitted, Contingency},
	Contingency: {Submitted},
	Submitted:   {Authorized, Rejected},
}

// CanTransition reports whether the edge from -> to is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the document to the given state, or fails with a
// *TransitionError leaving the document untouched.
func (d *FiscalDocument) Transition(to Status) error {
	if !CanTransition(d.Status, to) {
		return &TransitionError{From: d.Status, To: to}
	}
	d.Status = to
	return nil
}
