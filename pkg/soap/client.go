package soap

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-nfe/pkg/document"
)

// UnavailableError reports that an authority endpoint could not be
// reached or answered with a server failure. It marks the outage
// class of errors that trigger contingency, as opposed to rejections.
type UnavailableError struct {
	Endpoint string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("authority unavailable at %s: %v", e.Endpoint, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// ClientConfig carries the transport settings of a Client.
type ClientConfig struct {
	Environment document.Environment
	Timeout     time.Duration
	// Certificate is the emitter's TLS client certificate. The
	// authority requires mutual TLS on every service.
	Certificate *tls.Certificate
	// EndpointOverrides reroute "stateCode/service" pairs, see
	// NewDirectory.
	EndpointOverrides map[string]string
	MinTLSVersion     uint16
}

// DefaultClientConfig returns a configuration suitable for the
// homologation environment without a client certificate.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Environment:   document.Homologation,
		Timeout:       30 * time.Second,
		MinTLSVersion: tls.VersionTLS12,
	}
}

// Client talks to the authority web services.
type Client struct {
	http      *http.Client
	directory *Directory
	env       document.Environment
}

// NewClient builds a client from the configuration.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	tlsConfig := &tls.Config{MinVersion: config.MinTLSVersion}
	if tlsConfig.MinVersion == 0 {
		tlsConfig.MinVersion = tls.VersionTLS12
	}
	if config.Certificate != nil {
		tlsConfig.Certificates = []tls.Certificate{*config.Certificate}
	}

	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig:     tlsConfig,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: timeout,
		},
		directory: NewDirectory(config.Environment, config.EndpointOverrides),
		env:       config.Environment,
	}
}

// SubmitBatch sends a signed document to the state's authorization
// service in a single-document batch. The batch id must be unique
// per submission attempt.
func (c *Client) SubmitBatch(ctx context.Context, stateCode, batchID string, signedXML []byte) (*AuthorityResponse, error) {
	payload, err := c.batchPayload(batchID, signedXML)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, stateCode, ServiceAuthorization, payload)
}

// PollReceipt queries the processing result of a previously accepted
// batch by its receipt number.
func (c *Client) PollReceipt(ctx context.Context, stateCode, receipt string) (*AuthorityResponse, error) {
	doc := etree.NewDocument()
	cons := doc.CreateElement("consReciNFe")
	cons.CreateAttr("xmlns", documentNamespace)
	cons.CreateAttr("versao", schemaVersion)
	setText(cons, "tpAmb", strconv.Itoa(int(c.env)))
	setText(cons, "nRec", receipt)
	payload, err := doc.WriteToBytes()
	if err != nil {
		return nil, err
	}
	return c.call(ctx, stateCode, ServiceReceiptQuery, payload)
}

// QuerySituation asks the authority for the current situation of a
// document by its access key. It answers authoritatively even when
// the original submission's outcome was lost.
func (c *Client) QuerySituation(ctx context.Context, stateCode, accessKey string) (*AuthorityResponse, error) {
	doc := etree.NewDocument()
	cons := doc.CreateElement("consSitNFe")
	cons.CreateAttr("xmlns", documentNamespace)
	cons.CreateAttr("versao", schemaVersion)
	setText(cons, "tpAmb", strconv.Itoa(int(c.env)))
	setText(cons, "xServ", "CONSULTAR")
	setText(cons, "chNFe", accessKey)
	payload, err := doc.WriteToBytes()
	if err != nil {
		return nil, err
	}
	return c.call(ctx, stateCode, ServiceSituation, payload)
}

// CheckStatus probes the state authority's service status. A nil
// error with code 107 means the service is operating.
func (c *Client) CheckStatus(ctx context.Context, stateCode string) (*AuthorityResponse, error) {
	doc := etree.NewDocument()
	cons := doc.CreateElement("consStatServ")
	cons.CreateAttr("xmlns", documentNamespace)
	cons.CreateAttr("versao", schemaVersion)
	setText(cons, "tpAmb", strconv.Itoa(int(c.env)))
	setText(cons, "cUF", stateCode)
	setText(cons, "xServ", "STATUS")
	payload, err := doc.WriteToBytes()
	if err != nil {
		return nil, err
	}
	return c.call(ctx, stateCode, ServiceStatus, payload)
}

// SubmitEvent sends a signed event, such as the EPEC contingency
// pre-authorization, to the state's event service.
func (c *Client) SubmitEvent(ctx context.Context, stateCode, batchID string, signedEventXML []byte) (*AuthorityResponse, error) {
	eventDoc := etree.NewDocument()
	if err := eventDoc.ReadFromBytes(signedEventXML); err != nil {
		return nil, fmt.Errorf("parse signed event: %w", err)
	}
	root := eventDoc.Root()
	if root == nil {
		return nil, fmt.Errorf("signed event has no root element")
	}

	doc := etree.NewDocument()
	env := doc.CreateElement("envEvento")
	env.CreateAttr("xmlns", documentNamespace)
	env.CreateAttr("versao", "1.00")
	setText(env, "idLote", batchID)
	env.AddChild(root.Copy())
	payload, err := doc.WriteToBytes()
	if err != nil {
		return nil, err
	}
	return c.call(ctx, stateCode, ServiceEvent, payload)
}

func (c *Client) batchPayload(batchID string, signedXML []byte) ([]byte, error) {
	signedDoc := etree.NewDocument()
	if err := signedDoc.ReadFromBytes(signedXML); err != nil {
		return nil, fmt.Errorf("parse signed document: %w", err)
	}
	root := signedDoc.Root()
	if root == nil {
		return nil, fmt.Errorf("signed document has no root element")
	}

	doc := etree.NewDocument()
	envi := doc.CreateElement("enviNFe")
	envi.CreateAttr("xmlns", documentNamespace)
	envi.CreateAttr("versao", schemaVersion)
	setText(envi, "idLote", batchID)
	setText(envi, "indSinc", "0")
	envi.AddChild(root.Copy())
	return doc.WriteToBytes()
}

func (c *Client) call(ctx context.Context, stateCode, service string, payload []byte) (*AuthorityResponse, error) {
	endpoint, err := c.directory.Resolve(stateCode, c.env, service)
	if err != nil {
		return nil, err
	}

	envelope, err := wrapEnvelope(service, payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	req.Header.Set("User-Agent", "go-nfe/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UnavailableError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{Endpoint: endpoint, Err: err}
	}
	if resp.StatusCode >= 500 {
		return nil, &UnavailableError{Endpoint: endpoint, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, endpoint, body)
	}

	return parseResponse(body)
}

func setText(parent *etree.Element, tag, value string) {
	parent.CreateElement(tag).SetText(value)
}
