package document

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sirosfoundation/go-nfe/pkg/accesskey"
)

// Environment selects the authority environment a document is emitted
// against.
type Environment int

const (
	Production   Environment = 1
	Homologation Environment = 2
)

// FiscalDocument is one invoice as handed to the emission engine:
// header, ordered line items with already-computed tax sub-totals,
// aggregate totals and optional transport/payment blocks.
//
// The access key is assigned exactly once, before signing, and is
// immutable thereafter.
type FiscalDocument struct {
	Key    accesskey.Key
	Status Status

	Header    Header
	Issuer    Party
	Recipient Party
	Items     []Item
	Totals    Totals

	// Optional blocks, emitted only when present.
	Transport *Transport
	Payments  []Payment
	Remarks   string

	// Protocol is the authorization protocol number, set when the
	// document reaches Authorized.
	Protocol string
}

// Header carries the identification group (ide) of the document.
type Header struct {
	StateCode    string // cUF, 2 digits
	CityCode     string // cMunFG, 7 digits
	Model        string // mod: 55 or 65
	Series       string // serie, up to 3 digits
	Number       string // nNF, up to 9 digits
	EmittedAt    time.Time
	EmissionType string // tpEmis: 1 normal, 4 EPEC, 5 FS-DA, ...
	Purpose      string // finNFe: 1 normal, 2 complementary, 3 adjustment, 4 return
	ControlCode  string // cNF, 8 digits
	Environment  Environment
	NatureOfOp   string // natOp
}

// Party identifies the issuer or recipient of the document.
type Party struct {
	TaxID    string // CNPJ (14) or CPF (11)
	Name     string
	StateTax string // IE
	Street   string
	District string
	CityCode string
	CityName string
	State    string // UF, two letters
	ZipCode  string
	IndFinal bool // recipient is a final consumer
}

// Item is one document line with its already-computed tax sub-totals.
// Tax calculation happens upstream; amounts arrive here as values.
type Item struct {
	Code        string
	EAN         string
	Description string
	NCM         string
	CFOP        string
	Unit        string
	Quantity    decimal.Decimal
	UnitValue   decimal.Decimal
	Total       decimal.Decimal

	// Pre-computed tax sub-totals; zero-valued groups are still
	// emitted when the flag is set so totals reconcile.
	ICMSBase  decimal.Decimal
	ICMSValue decimal.Decimal
	PISValue  decimal.Decimal
	COFINS    decimal.Decimal
}

// Totals aggregates the document amounts.
type Totals struct {
	ICMSBase   decimal.Decimal
	ICMSValue  decimal.Decimal
	ProductSum decimal.Decimal
	Freight    decimal.Decimal
	Insurance  decimal.Decimal
	Discount   decimal.Decimal
	PISValue   decimal.Decimal
	COFINS     decimal.Decimal
	Other      decimal.Decimal
	Total      decimal.Decimal
}

// Transport is the optional freight block.
type Transport struct {
	Mode        string // modFrete
	CarrierTax  string
	CarrierName string
	Plate       string
	PlateState  string
}

// Payment is one entry of the optional payment block.
type Payment struct {
	Method string // tPag
	Amount decimal.Decimal
}

// KeyFields derives the access key input fields from the document
// header and issuer. Series and number are zero-padded to the fixed
// key widths.
func (d *FiscalDocument) KeyFields() accesskey.Fields {
	return accesskey.Fields{
		StateCode:    d.Header.StateCode,
		YearMonth:    d.Header.EmittedAt.Format("0601"),
		IssuerTaxID:  d.Issuer.TaxID,
		Model:        d.Header.Model,
		Series:       zeroPad(d.Header.Series, 3),
		Number:       zeroPad(d.Header.Number, 9),
		EmissionType: d.Header.EmissionType,
		ControlCode:  d.Header.ControlCode,
	}
}

func zeroPad(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}
