package soap

import (
	"fmt"
	"strings"

	"github.com/sirosfoundation/go-nfe/pkg/document"
)

// Authority web service names. The name selects both the URL path
// and the SOAP action namespace.
const (
	ServiceAuthorization = "NFeAutorizacao4"
	ServiceReceiptQuery  = "NFeRetAutorizacao4"
	ServiceSituation     = "NFeConsultaProtocolo4"
	ServiceStatus        = "NFeStatusServico4"
	ServiceEvent         = "NFeRecepcaoEvento4"
)

// Directory resolves service URLs per state code and environment.
// States without an entry of their own are served by the shared
// national virtual authority.
type Directory struct {
	entries map[dirKey]string
}

type dirKey struct {
	stateCode   string
	environment document.Environment
	service     string
}

// UnknownEndpointError reports a state/service pair the directory
// cannot resolve.
type UnknownEndpointError struct {
	StateCode string
	Service   string
}

func (e *UnknownEndpointError) Error() string {
	return fmt.Sprintf("no endpoint for state %s service %s", e.StateCode, e.Service)
}

// hosts of states that run their own authority; everyone else is
// routed to SVRS, the shared virtual authority.
var authorityHosts = map[string]struct {
	production   string
	homologation string
}{
	"35": {"nfe.fazenda.sp.gov.br/ws", "homologacao.nfe.fazenda.sp.gov.br/ws"},            // SP
	"31": {"nfe.fazenda.mg.gov.br/nfe2/services", "hnfe.fazenda.mg.gov.br/nfe2/services"}, // MG
	"41": {"nfe.sefa.pr.gov.br/nfe", "homologacao.nfe.sefa.pr.gov.br/nfe"},                // PR
	"43": {"nfe.sefazrs.rs.gov.br/ws", "nfe-homologacao.sefazrs.rs.gov.br/ws"},            // RS
	"50": {"nfe.sefaz.ms.gov.br/ws", "homologacao.nfe.sefaz.ms.gov.br/ws"},                // MS
}

const (
	svrsProduction   = "nfe.svrs.rs.gov.br/ws"
	svrsHomologation = "nfe-homologacao.svrs.rs.gov.br/ws"
)

// NewDirectory builds a directory with the built-in authority table.
// Overrides map "stateCode/service" to a full URL and take precedence
// over the built-ins; they are how tests and region-specific
// deployments reroute traffic.
func NewDirectory(environment document.Environment, overrides map[string]string) *Directory {
	d := &Directory{entries: make(map[dirKey]string)}
	for state, service := range splitOverrides(overrides) {
		d.entries[dirKey{state.stateCode, environment, state.service}] = service
	}
	return d
}

type overrideKey struct {
	stateCode string
	service   string
}

func splitOverrides(overrides map[string]string) map[overrideKey]string {
	out := make(map[overrideKey]string, len(overrides))
	for k, url := range overrides {
		state, service, ok := strings.Cut(k, "/")
		if !ok {
			continue
		}
		out[overrideKey{state, service}] = url
	}
	return out
}

// Resolve returns the URL for a state's service in the given
// environment.
func (d *Directory) Resolve(stateCode string, environment document.Environment, service string) (string, error) {
	if stateCode == "" || service == "" {
		return "", &UnknownEndpointError{StateCode: stateCode, Service: service}
	}
	if url, ok := d.entries[dirKey{stateCode, environment, service}]; ok {
		return url, nil
	}

	host := svrsProduction
	if environment == document.Homologation {
		host = svrsHomologation
	}
	if entry, ok := authorityHosts[stateCode]; ok {
		host = entry.production
		if environment == document.Homologation {
			host = entry.homologation
		}
	}
	return fmt.Sprintf("https://%s/%s.asmx", host, service), nil
}
