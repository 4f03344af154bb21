package soap

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-nfe/pkg/document"
)

const signedDocument = `<NFe xmlns="http://www.portalfiscal.inf.br/nfe"><infNFe Id="NFe33250114200166000187550010000000011000000017" versao="4.00"><ide><cUF>33</cUF></ide></infNFe><Signature xmlns="http://www.w3.org/2000/09/xmldsig#"><SignatureValue>Zm9v</SignatureValue></Signature></NFe>`

func newTestClient(t *testing.T, service string, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	return NewClient(&ClientConfig{
		Environment: document.Homologation,
		Timeout:     5 * time.Second,
		EndpointOverrides: map[string]string{
			"33/" + service: ts.URL,
		},
	})
}

func TestSubmitBatch(t *testing.T) {
	var gotBody string
	client := newTestClient(t, ServiceAuthorization, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		assert.Equal(t, "application/soap+xml; charset=utf-8", r.Header.Get("Content-Type"))
		w.Write([]byte(`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body><retEnviNFe><tpAmb>2</tpAmb><cStat>103</cStat><xMotivo>Lote recebido com sucesso</xMotivo><infRec><nRec>331000012345678</nRec></infRec></retEnviNFe></soap:Body></soap:Envelope>`))
	})

	resp, err := client.SubmitBatch(context.Background(), "33", "42", []byte(signedDocument))
	require.NoError(t, err)

	assert.Equal(t, 103, resp.Code)
	assert.Equal(t, "Lote recebido com sucesso", resp.Description)
	assert.Equal(t, "331000012345678", resp.Receipt)
	assert.Equal(t, document.Homologation, resp.Environment)
	assert.NotEmpty(t, resp.Raw)

	// The request wraps the untouched signed document in a batch.
	assert.Contains(t, gotBody, `xmlns="http://www.portalfiscal.inf.br/nfe/wsdl/NFeAutorizacao4"`)
	assert.Contains(t, gotBody, "<idLote>42</idLote>")
	assert.Contains(t, gotBody, "<indSinc>0</indSinc>")
	assert.Contains(t, gotBody, "<SignatureValue>Zm9v</SignatureValue>")
}

func TestPollReceiptWithProtocol(t *testing.T) {
	client := newTestClient(t, ServiceReceiptQuery, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<nRec>331000012345678</nRec>")
		w.Write([]byte(`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body><retConsReciNFe><tpAmb>2</tpAmb><cStat>104</cStat><xMotivo>Lote processado</xMotivo><protNFe><infProt><tpAmb>2</tpAmb><chNFe>33250114200166000187550010000000011000000017</chNFe><dhRecbto>2025-01-15T10:31:02-03:00</dhRecbto><nProt>133250000000123</nProt><cStat>100</cStat><xMotivo>Autorizado o uso da NF-e</xMotivo></infProt></protNFe></retConsReciNFe></soap:Body></soap:Envelope>`))
	})

	resp, err := client.PollReceipt(context.Background(), "33", "331000012345678")
	require.NoError(t, err)

	assert.Equal(t, 100, resp.Code, "protocol status supersedes batch status")
	assert.Equal(t, 104, resp.BatchCode)
	assert.Equal(t, "Autorizado o uso da NF-e", resp.Description)
	assert.Equal(t, "133250000000123", resp.Protocol)
	assert.Equal(t, "33250114200166000187550010000000011000000017", resp.AccessKey)
	assert.Equal(t, 2025, resp.ProcessedAt.Year())
}

func TestQuerySituation(t *testing.T) {
	client := newTestClient(t, ServiceSituation, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<xServ>CONSULTAR</xServ>")
		assert.Contains(t, string(body), "<chNFe>33250114200166000187550010000000011000000017</chNFe>")
		w.Write([]byte(`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body><retConsSitNFe><tpAmb>2</tpAmb><cStat>100</cStat><xMotivo>Autorizado o uso da NF-e</xMotivo><protNFe><infProt><chNFe>33250114200166000187550010000000011000000017</chNFe><nProt>133250000000123</nProt><cStat>100</cStat><xMotivo>Autorizado o uso da NF-e</xMotivo></infProt></protNFe></retConsSitNFe></soap:Body></soap:Envelope>`))
	})

	resp, err := client.QuerySituation(context.Background(), "33", "33250114200166000187550010000000011000000017")
	require.NoError(t, err)
	assert.Equal(t, 100, resp.Code)
	assert.Equal(t, "133250000000123", resp.Protocol)
}

func TestCheckStatus(t *testing.T) {
	client := newTestClient(t, ServiceStatus, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<xServ>STATUS</xServ>")
		w.Write([]byte(`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body><retConsStatServ><tpAmb>2</tpAmb><cStat>107</cStat><xMotivo>Servico em Operacao</xMotivo></retConsStatServ></soap:Body></soap:Envelope>`))
	})

	resp, err := client.CheckStatus(context.Background(), "33")
	require.NoError(t, err)
	assert.Equal(t, 107, resp.Code)
}

func TestSubmitEvent(t *testing.T) {
	eventID := "ID" + "110140" + "33250114200166000187550010000000011000000017" + "01"
	signedEvent := `<evento xmlns="http://www.portalfiscal.inf.br/nfe" versao="1.00"><infEvento Id="` + eventID + `"><tpEvento>110140</tpEvento></infEvento></evento>`
	client := newTestClient(t, ServiceEvent, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<envEvento")
		assert.Contains(t, string(body), "<tpEvento>110140</tpEvento>")
		w.Write([]byte(`<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body><retEnvEvento><tpAmb>2</tpAmb><cStat>135</cStat><xMotivo>Evento registrado e vinculado a NF-e</xMotivo></retEnvEvento></soap:Body></soap:Envelope>`))
	})

	resp, err := client.SubmitEvent(context.Background(), "33", "1", []byte(signedEvent))
	require.NoError(t, err)
	assert.Equal(t, 135, resp.Code)
}

func TestServerFailureIsUnavailable(t *testing.T) {
	client := newTestClient(t, ServiceAuthorization, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	})

	_, err := client.SubmitBatch(context.Background(), "33", "1", []byte(signedDocument))
	var ue *UnavailableError
	require.ErrorAs(t, err, &ue)
	assert.NotEmpty(t, ue.Endpoint)
}

func TestConnectionRefusedIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	client := NewClient(&ClientConfig{
		Environment:       document.Homologation,
		Timeout:           2 * time.Second,
		EndpointOverrides: map[string]string{"33/" + ServiceStatus: url},
	})

	_, err := client.CheckStatus(context.Background(), "33")
	var ue *UnavailableError
	require.ErrorAs(t, err, &ue)
}

func TestMalformedResponse(t *testing.T) {
	client := newTestClient(t, ServiceStatus, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway error</html>"))
	})

	_, err := client.CheckStatus(context.Background(), "33")
	var mre *MalformedResponseError
	require.ErrorAs(t, err, &mre)
}

func TestDirectoryResolution(t *testing.T) {
	d := NewDirectory(document.Production, map[string]string{
		"33/" + ServiceStatus: "https://example.test/status",
	})

	t.Run("override wins", func(t *testing.T) {
		url, err := d.Resolve("33", document.Production, ServiceStatus)
		require.NoError(t, err)
		assert.Equal(t, "https://example.test/status", url)
	})

	t.Run("own authority", func(t *testing.T) {
		url, err := d.Resolve("35", document.Production, ServiceAuthorization)
		require.NoError(t, err)
		assert.Equal(t, "https://nfe.fazenda.sp.gov.br/ws/NFeAutorizacao4.asmx", url)
	})

	t.Run("shared virtual authority fallback", func(t *testing.T) {
		url, err := d.Resolve("53", document.Homologation, ServiceAuthorization)
		require.NoError(t, err)
		assert.True(t, strings.Contains(url, "svrs"), "state 53 routes to SVRS, got %s", url)
	})

	t.Run("empty state", func(t *testing.T) {
		_, err := d.Resolve("", document.Production, ServiceStatus)
		var ue *UnknownEndpointError
		require.ErrorAs(t, err, &ue)
	})
}
