package security

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml"
)

// XML-DSig algorithm identifiers for the authority's fixed profile.
const (
	algC14N      = "http://www.w3.org/2001/10/xml-exc-c14n#"
	algEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
	algRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	algSHA256    = "http://www.w3.org/2001/04/xmlenc#sha256"

	dsigNamespace = "http://www.w3.org/2000/09/xmldsig#"
)

// ErrVerificationFailed is returned when a signature is structurally
// valid but the digest or signature value does not match the content.
var ErrVerificationFailed = errors.New("signature verification failed")

// ErrSignatureNotFound is returned by Verify when the document
// carries no ds:Signature element.
var ErrSignatureNotFound = errors.New("no signature element found")

// ElementNotFoundError reports that the element addressed by a
// signature reference does not exist in the document.
type ElementNotFoundError struct {
	ID string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("signed element with Id %q not found", e.ID)
}

// Engine signs and verifies fiscal XML documents.
type Engine struct {
	capability SigningCapability
}

// NewEngine returns an engine that signs with the given capability.
// Verification does not need a capability; use the zero value or any
// engine.
func NewEngine(capability SigningCapability) *Engine {
	return &Engine{capability: capability}
}

// Sign computes an enveloped signature over the element carrying the
// given Id attribute and returns the document with the ds:Signature
// appended as the last child of that element's parent.
//
// The input must be in its canonical compact serialization; Sign
// preserves it byte for byte outside the appended signature.
func (e *Engine) Sign(xmlData []byte, elementID string) ([]byte, error) {
	if e.capability == nil {
		return nil, ErrKeyUnavailable
	}
	cert := e.capability.Certificate()
	if cert == nil {
		return nil, fmt.Errorf("capability has no certificate: %w", ErrKeyUnavailable)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlData); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	target := findByID(doc.Root(), elementID)
	if target == nil {
		return nil, &ElementNotFoundError{ID: elementID}
	}
	parent := target.Parent()
	if parent == nil {
		return nil, fmt.Errorf("signed element %q has no parent to hold the signature", elementID)
	}

	digest, err := digestElement(target)
	if err != nil {
		return nil, err
	}

	sig, err := e.buildSignature(elementID, digest, cert)
	if err != nil {
		return nil, err
	}
	parent.AddChild(sig)

	// Compact serialization: indentation would invalidate the digest
	// the authority recomputes.
	return doc.WriteToBytes()
}

// Verify checks the enveloped signature of a signed document: it
// recomputes the reference digest over the addressed element and
// verifies the signature value against the embedded certificate.
// The certificate of the signer is returned on success.
func (e *Engine) Verify(signedXML []byte) (*x509.Certificate, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	sig := doc.Root().FindElement(".//*[local-name()='Signature']")
	if sig == nil {
		return nil, ErrSignatureNotFound
	}
	signedInfo := sig.FindElement("./*[local-name()='SignedInfo']")
	if signedInfo == nil {
		return nil, fmt.Errorf("%w: SignedInfo missing", ErrVerificationFailed)
	}

	ref := signedInfo.FindElement("./*[local-name()='Reference']")
	if ref == nil {
		return nil, fmt.Errorf("%w: Reference missing", ErrVerificationFailed)
	}
	uri := ref.SelectAttrValue("URI", "")
	if len(uri) < 2 || uri[0] != '#' {
		return nil, fmt.Errorf("%w: unsupported reference URI %q", ErrVerificationFailed, uri)
	}
	elementID := uri[1:]

	target := findByID(doc.Root(), elementID)
	if target == nil {
		return nil, &ElementNotFoundError{ID: elementID}
	}

	// Enveloped transform: digest the referenced subtree without any
	// signature it may contain. In the fiscal layout the signature
	// lives beside the subtree, so this is usually a no-op.
	targetCopy := target.Copy()
	for _, nested := range targetCopy.FindElements(".//*[local-name()='Signature']") {
		if p := nested.Parent(); p != nil {
			p.RemoveChild(nested)
		}
	}
	digest, err := digestElement(targetCopy)
	if err != nil {
		return nil, err
	}

	wantDigest := elementText(ref, "DigestValue")
	if base64.StdEncoding.EncodeToString(digest) != wantDigest {
		return nil, fmt.Errorf("%w: digest mismatch for element %q", ErrVerificationFailed, elementID)
	}

	cert, err := embeddedCertificate(sig)
	if err != nil {
		return nil, err
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: certificate key is %T, want RSA", ErrVerificationFailed, cert.PublicKey)
	}

	canonical, err := canonicalize(signedInfo)
	if err != nil {
		return nil, err
	}
	signedInfoDigest := sha256.Sum256(canonical)

	sigValue, err := base64.StdEncoding.DecodeString(elementText(sig, "SignatureValue"))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed SignatureValue: %v", ErrVerificationFailed, err)
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, signedInfoDigest[:], sigValue); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	return cert, nil
}

func (e *Engine) buildSignature(elementID string, digest []byte, cert *x509.Certificate) (*etree.Element, error) {
	sig := etree.NewElement("Signature")
	sig.CreateAttr("xmlns", dsigNamespace)

	signedInfo := sig.CreateElement("SignedInfo")
	c14n := signedInfo.CreateElement("CanonicalizationMethod")
	c14n.CreateAttr("Algorithm", algC14N)
	sigMethod := signedInfo.CreateElement("SignatureMethod")
	sigMethod.CreateAttr("Algorithm", algRSASHA256)

	ref := signedInfo.CreateElement("Reference")
	ref.CreateAttr("URI", "#"+elementID)
	transforms := ref.CreateElement("Transforms")
	transforms.CreateElement("Transform").CreateAttr("Algorithm", algEnveloped)
	transforms.CreateElement("Transform").CreateAttr("Algorithm", algC14N)
	ref.CreateElement("DigestMethod").CreateAttr("Algorithm", algSHA256)
	ref.CreateElement("DigestValue").SetText(base64.StdEncoding.EncodeToString(digest))

	canonical, err := canonicalize(signedInfo)
	if err != nil {
		return nil, err
	}
	signedInfoDigest := sha256.Sum256(canonical)

	sigValue, err := e.capability.SignDigest(signedInfoDigest[:], crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}
	sig.CreateElement("SignatureValue").SetText(base64.StdEncoding.EncodeToString(sigValue))

	keyInfo := sig.CreateElement("KeyInfo")
	x509Data := keyInfo.CreateElement("X509Data")
	x509Data.CreateElement("X509Certificate").SetText(base64.StdEncoding.EncodeToString(cert.Raw))

	return sig, nil
}

// digestElement canonicalizes an element with exclusive C14N and
// returns its SHA-256 digest.
func digestElement(elem *etree.Element) ([]byte, error) {
	canonical, err := canonicalize(elem)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(canonical)
	return sum[:], nil
}

func canonicalize(elem *etree.Element) ([]byte, error) {
	c := signedxml.ExclusiveCanonicalization{WithComments: false}
	out, err := c.ProcessElement(elem, "")
	if err != nil {
		return nil, fmt.Errorf("canonicalize %s: %w", elem.Tag, err)
	}
	return []byte(out), nil
}

func embeddedCertificate(sig *etree.Element) (*x509.Certificate, error) {
	certText := elementText(sig, "X509Certificate")
	if certText == "" {
		return nil, fmt.Errorf("%w: no X509Certificate in KeyInfo", ErrVerificationFailed)
	}
	der, err := base64.StdEncoding.DecodeString(certText)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed X509Certificate: %v", ErrVerificationFailed, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse certificate: %v", ErrVerificationFailed, err)
	}
	return cert, nil
}

// findByID walks the tree for an element whose Id attribute matches.
// The fiscal schemas use a plain Id attribute, never xml:id.
func findByID(root *etree.Element, id string) *etree.Element {
	if root == nil {
		return nil
	}
	if root.SelectAttrValue("Id", "") == id {
		return root
	}
	for _, child := range root.ChildElements() {
		if found := findByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

func elementText(scope *etree.Element, localName string) string {
	el := scope.FindElement(".//*[local-name()='" + localName + "']")
	if el == nil {
		return ""
	}
	return el.Text()
}
