package soap

import (
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-nfe/pkg/document"
)

const (
	soapNamespace    = "http://www.w3.org/2003/05/soap-envelope"
	payloadNamespace = "http://www.portalfiscal.inf.br/nfe/wsdl/"

	documentNamespace = "http://www.portalfiscal.inf.br/nfe"
	schemaVersion     = "4.00"
)

// AuthorityResponse is the decoded answer of any authority service.
// When the answer carries a document protocol (infProt), Code and
// Description come from it and BatchCode holds the outer batch
// status; otherwise Code is the outer status itself.
type AuthorityResponse struct {
	Code        int    // cStat governing the document's fate
	BatchCode   int    // outer cStat of the batch answer, 0 if absent
	Description string // xMotivo
	Protocol    string // nProt, set on authorization
	Receipt     string // nRec, set on asynchronous batch acceptance
	AccessKey   string // chNFe echoed in the protocol
	Environment document.Environment
	ProcessedAt time.Time // dhRecbto
	Raw         []byte    // full authority payload, retained verbatim
}

// MalformedResponseError reports an authority answer that could not
// be decoded as a SOAP envelope with a status payload.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed authority response: %s", e.Reason)
}

// wrapEnvelope builds the SOAP 1.2 request envelope for a service.
// The payload element is reparented into nfeDadosMsg unchanged, so
// signed content keeps its canonical form.
func wrapEnvelope(service string, payload []byte) ([]byte, error) {
	payloadDoc := etree.NewDocument()
	if err := payloadDoc.ReadFromBytes(payload); err != nil {
		return nil, fmt.Errorf("parse request payload: %w", err)
	}
	root := payloadDoc.Root()
	if root == nil {
		return nil, fmt.Errorf("request payload has no root element")
	}

	doc := etree.NewDocument()
	env := doc.CreateElement("soap12:Envelope")
	env.CreateAttr("xmlns:soap12", soapNamespace)
	body := env.CreateElement("soap12:Body")
	dados := body.CreateElement("nfeDadosMsg")
	dados.CreateAttr("xmlns", payloadNamespace+service)
	dados.AddChild(root.Copy())

	return doc.WriteToBytes()
}

// parseResponse decodes an authority SOAP answer into an
// AuthorityResponse. Authority payloads differ per service but share
// the cStat/xMotivo status pair; protocol answers additionally carry
// an infProt group.
func parseResponse(raw []byte) (*AuthorityResponse, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, &MalformedResponseError{Reason: err.Error()}
	}
	root := doc.Root()
	if root == nil {
		return nil, &MalformedResponseError{Reason: "empty document"}
	}

	resp := &AuthorityResponse{Raw: raw}

	outer := root.FindElement(".//*[local-name()='cStat']")
	if outer == nil {
		return nil, &MalformedResponseError{Reason: "no cStat element"}
	}
	code, err := strconv.Atoi(outer.Text())
	if err != nil {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("cStat %q is not numeric", outer.Text())}
	}
	resp.Code = code
	if motivo := root.FindElement(".//*[local-name()='xMotivo']"); motivo != nil {
		resp.Description = motivo.Text()
	}

	if amb := root.FindElement(".//*[local-name()='tpAmb']"); amb != nil {
		if v, err := strconv.Atoi(amb.Text()); err == nil {
			resp.Environment = document.Environment(v)
		}
	}
	if rec := root.FindElement(".//*[local-name()='nRec']"); rec != nil {
		resp.Receipt = rec.Text()
	}

	// A protocol group supersedes the outer batch status.
	if prot := root.FindElement(".//*[local-name()='infProt']"); prot != nil {
		resp.BatchCode = resp.Code
		if st := prot.FindElement("./*[local-name()='cStat']"); st != nil {
			if v, err := strconv.Atoi(st.Text()); err == nil {
				resp.Code = v
			}
		}
		if motivo := prot.FindElement("./*[local-name()='xMotivo']"); motivo != nil {
			resp.Description = motivo.Text()
		}
		if nProt := prot.FindElement("./*[local-name()='nProt']"); nProt != nil {
			resp.Protocol = nProt.Text()
		}
		if ch := prot.FindElement("./*[local-name()='chNFe']"); ch != nil {
			resp.AccessKey = ch.Text()
		}
		if ts := prot.FindElement("./*[local-name()='dhRecbto']"); ts != nil {
			if t, err := time.Parse(time.RFC3339, ts.Text()); err == nil {
				resp.ProcessedAt = t
			}
		}
	} else if ts := root.FindElement(".//*[local-name()='dhRecbto']"); ts != nil {
		if t, err := time.Parse(time.RFC3339, ts.Text()); err == nil {
			resp.ProcessedAt = t
		}
	}

	return resp, nil
}
