package assembler

import (
	"fmt"
	"time"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-nfe/pkg/document"
)

// Event codes registered with the authority.
const (
	EventEPEC = "110140" // contingency pre-authorization event
)

// Event is the input for an authority event document, such as the
// EPEC contingency pre-authorization.
type Event struct {
	Type        string // tpEvento
	AccessKey   string // the 44-digit key of the referenced document
	IssuerTaxID string
	OrgCode     string // cOrgao: authority organ, usually the state code
	Environment document.Environment
	Sequence    int // nSeqEvento, starts at 1
	OccurredAt  time.Time
	Description string // descEvento, fixed per event type
}

// AssembleEvent serializes an authority event into its canonical
// signing form. The signed element is infEvento, whose Id is
// "ID" + tpEvento + accessKey + zero-padded sequence.
func AssembleEvent(ev Event) ([]byte, error) {
	checks := []struct{ value, field string }{
		{ev.Type, "Type"},
		{ev.AccessKey, "AccessKey"},
		{ev.IssuerTaxID, "IssuerTaxID"},
		{ev.OrgCode, "OrgCode"},
		{ev.Description, "Description"},
	}
	for _, c := range checks {
		if err := requireField(c.value, c.field); err != nil {
			return nil, err
		}
	}
	if ev.Sequence < 1 {
		return nil, &MissingFieldError{Field: "Sequence"}
	}
	if ev.OccurredAt.IsZero() {
		return nil, &MissingFieldError{Field: "OccurredAt"}
	}

	doc := etree.NewDocument()
	evento := doc.CreateElement("evento")
	evento.CreateAttr("xmlns", Namespace)
	evento.CreateAttr("versao", "1.00")

	inf := evento.CreateElement("infEvento")
	inf.CreateAttr("Id", EventID(ev.Type, ev.AccessKey, ev.Sequence))
	text(inf, "cOrgao", ev.OrgCode)
	text(inf, "tpAmb", fmt.Sprintf("%d", ev.Environment))
	text(inf, "CNPJ", ev.IssuerTaxID)
	text(inf, "chNFe", ev.AccessKey)
	text(inf, "dhEvento", timestamp(ev.OccurredAt))
	text(inf, "tpEvento", ev.Type)
	text(inf, "nSeqEvento", fmt.Sprintf("%d", ev.Sequence))
	text(inf, "verEvento", "1.00")

	det := inf.CreateElement("detEvento")
	det.CreateAttr("versao", "1.00")
	text(det, "descEvento", ev.Description)

	return doc.WriteToBytes()
}

// EventID builds the Id attribute of an event's signed element.
func EventID(eventType, accessKey string, sequence int) string {
	return fmt.Sprintf("ID%s%s%02d", eventType, accessKey, sequence)
}
