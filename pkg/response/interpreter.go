package response

import "fmt"

// Outcome is the pipeline's reading of an authority status code.
type Outcome int

const (
	// Accepted covers codes that settle the document favorably:
	// authorization and registered events.
	Accepted Outcome = iota

	// Pending means the authority holds the submission but has not
	// decided yet; poll again later.
	Pending

	// Unavailable means the authority itself declared an outage.
	// The document was not judged; contingency applies.
	Unavailable

	// Recoverable is a transient rejection, such as rate limiting.
	// The document settles as rejected; the same bytes may succeed if
	// the caller chooses to resubmit, but the pipeline never retries
	// on its own.
	Recoverable

	// Rejected is a definitive refusal of this document. The
	// document must be fixed, never blindly resubmitted.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Pending:
		return "pending"
	case Unavailable:
		return "unavailable"
	case Recoverable:
		return "recoverable"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Authority status codes with fixed meaning across services.
const (
	CodeAuthorized       = 100 // document authorized
	CodeBatchReceived    = 103 // batch accepted for asynchronous processing
	CodeBatchProcessing  = 105 // batch still in processing
	CodeServiceOperating = 107 // status service heartbeat: operating
	CodeServicePaused    = 108 // status service: paused, short outage
	CodeServiceDown      = 109 // status service: down, no forecast
	CodeEventRegistered  = 135 // event registered and linked
	CodeEventRegisteredN = 136 // event registered, document not found
	CodeAlreadyProcessed = 150 // authorized outside the regular deadline
	CodeDuplicate        = 204 // duplicate of an already processed document, rejected
	CodeRateLimited      = 656 // improper consumption, back off before resubmitting
)

var baseOutcomes = map[int]Outcome{
	CodeAuthorized:       Accepted,
	CodeServiceOperating: Accepted,
	CodeEventRegistered:  Accepted,
	CodeEventRegisteredN: Accepted,
	CodeAlreadyProcessed: Accepted,
	CodeBatchReceived:    Pending,
	CodeBatchProcessing:  Pending,
	CodeServicePaused:    Unavailable,
	CodeServiceDown:      Unavailable,
	CodeRateLimited:      Recoverable,
}

// Interpreter classifies status codes. The zero value uses the
// built-in table; deployments can mark additional codes as
// recoverable when a regional authority is known to emit transient
// rejections outside the standard set.
type Interpreter struct {
	recoverable map[int]bool
}

// NewInterpreter returns an interpreter that additionally classifies
// the given codes as Recoverable.
func NewInterpreter(recoverable ...int) *Interpreter {
	set := make(map[int]bool, len(recoverable))
	for _, code := range recoverable {
		set[code] = true
	}
	return &Interpreter{recoverable: set}
}

// Classify maps a status code to its outcome. Codes outside the
// known table are definitive rejections.
func (i *Interpreter) Classify(code int) Outcome {
	if i != nil && i.recoverable[code] {
		return Recoverable
	}
	if outcome, ok := baseOutcomes[code]; ok {
		return outcome
	}
	return Rejected
}

// Settles reports whether the outcome ends the document's submission
// lifecycle, successfully or not. Recoverable rejections settle too:
// any resubmission is the caller's decision, not the pipeline's.
func (o Outcome) Settles() bool {
	return o == Accepted || o == Recoverable || o == Rejected
}
