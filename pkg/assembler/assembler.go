package assembler

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-nfe/pkg/document"
)

// Namespace is the authority schema namespace for fiscal documents.
const Namespace = "http://www.portalfiscal.inf.br/nfe"

// SchemaVersion is the document layout version emitted.
const SchemaVersion = "4.00"

// Assemble serializes the document into the canonical signing form:
//
//	<NFe xmlns="..."><infNFe Id="NFe{key}" versao="4.00">...</infNFe></NFe>
//
// Element order and numeric formatting follow the authority schema;
// conditional blocks are emitted only when the corresponding data is
// present. The access key must already be stamped on the document.
func Assemble(d *document.FiscalDocument) ([]byte, error) {
	if err := validate(d); err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	nfe := doc.CreateElement("NFe")
	nfe.CreateAttr("xmlns", Namespace)

	inf := nfe.CreateElement("infNFe")
	inf.CreateAttr("Id", "NFe"+d.Key.String())
	inf.CreateAttr("versao", SchemaVersion)

	buildIde(inf, d)
	buildParty(inf, "emit", "enderEmit", d.Issuer, true)
	buildParty(inf, "dest", "enderDest", d.Recipient, false)
	for i, item := range d.Items {
		buildItem(inf, i+1, item)
	}
	buildTotals(inf, d.Totals)
	buildTransport(inf, d.Transport)
	buildPayments(inf, d.Payments)
	if d.Remarks != "" {
		infAdic := inf.CreateElement("infAdic")
		text(infAdic, "infCpl", d.Remarks)
	}

	// Compact output: indentation would add whitespace text nodes and
	// change the canonical form the signature is computed over.
	return doc.WriteToBytes()
}

func validate(d *document.FiscalDocument) error {
	if err := requireField(d.Key.String(), "Key"); err != nil {
		return err
	}
	checks := []struct{ value, field string }{
		{d.Header.StateCode, "Header.StateCode"},
		{d.Header.CityCode, "Header.CityCode"},
		{d.Header.Model, "Header.Model"},
		{d.Header.Series, "Header.Series"},
		{d.Header.Number, "Header.Number"},
		{d.Header.EmissionType, "Header.EmissionType"},
		{d.Header.Purpose, "Header.Purpose"},
		{d.Header.NatureOfOp, "Header.NatureOfOp"},
		{d.Issuer.TaxID, "Issuer.TaxID"},
		{d.Issuer.Name, "Issuer.Name"},
		{d.Recipient.TaxID, "Recipient.TaxID"},
		{d.Recipient.Name, "Recipient.Name"},
	}
	for _, c := range checks {
		if err := requireField(c.value, c.field); err != nil {
			return err
		}
	}
	if d.Header.EmittedAt.IsZero() {
		return &MissingFieldError{Field: "Header.EmittedAt"}
	}
	if len(d.Items) == 0 {
		return &MissingFieldError{Field: "Items"}
	}
	for i, item := range d.Items {
		if item.Description == "" {
			return &MissingFieldError{Field: fmt.Sprintf("Items[%d].Description", i)}
		}
		if item.Code == "" {
			return &MissingFieldError{Field: fmt.Sprintf("Items[%d].Code", i)}
		}
	}
	return nil
}

func buildIde(parent *etree.Element, d *document.FiscalDocument) {
	ide := parent.CreateElement("ide")
	text(ide, "cUF", d.Header.StateCode)
	text(ide, "cNF", d.Header.ControlCode)
	text(ide, "natOp", d.Header.NatureOfOp)
	text(ide, "mod", d.Header.Model)
	text(ide, "serie", d.Header.Series)
	text(ide, "nNF", d.Header.Number)
	text(ide, "dhEmi", timestamp(d.Header.EmittedAt))
	text(ide, "tpNF", "1")
	text(ide, "cMunFG", d.Header.CityCode)
	text(ide, "tpEmis", d.Header.EmissionType)
	text(ide, "cDV", string(d.Key.CheckDigit()))
	text(ide, "tpAmb", fmt.Sprintf("%d", d.Header.Environment))
	text(ide, "finNFe", d.Header.Purpose)
	if d.Recipient.IndFinal {
		text(ide, "indFinal", "1")
	} else {
		text(ide, "indFinal", "0")
	}
}

func buildParty(parent *etree.Element, tag, addrTag string, p document.Party, issuer bool) {
	el := parent.CreateElement(tag)
	if len(p.TaxID) == 14 {
		text(el, "CNPJ", p.TaxID)
	} else {
		text(el, "CPF", p.TaxID)
	}
	text(el, "xNome", p.Name)

	if p.Street != "" {
		addr := el.CreateElement(addrTag)
		text(addr, "xLgr", p.Street)
		if p.District != "" {
			text(addr, "xBairro", p.District)
		}
		if p.CityCode != "" {
			text(addr, "cMun", p.CityCode)
		}
		if p.CityName != "" {
			text(addr, "xMun", p.CityName)
		}
		if p.State != "" {
			text(addr, "UF", p.State)
		}
		if p.ZipCode != "" {
			text(addr, "CEP", p.ZipCode)
		}
	}

	// IE comes after the address group in the schema order.
	if issuer || p.StateTax != "" {
		text(el, "IE", p.StateTax)
	}
}

func buildItem(parent *etree.Element, n int, item document.Item) {
	det := parent.CreateElement("det")
	det.CreateAttr("nItem", fmt.Sprintf("%d", n))

	prod := det.CreateElement("prod")
	text(prod, "cProd", item.Code)
	if item.EAN != "" {
		text(prod, "cEAN", item.EAN)
	}
	text(prod, "xProd", item.Description)
	if item.NCM != "" {
		text(prod, "NCM", item.NCM)
	}
	if item.CFOP != "" {
		text(prod, "CFOP", item.CFOP)
	}
	text(prod, "uCom", item.Unit)
	text(prod, "qCom", quantity(item.Quantity))
	text(prod, "vUnCom", unit(item.UnitValue))
	text(prod, "vProd", amount(item.Total))

	imposto := det.CreateElement("imposto")
	icms := imposto.CreateElement("ICMS")
	icms00 := icms.CreateElement("ICMS00")
	text(icms00, "vBC", amount(item.ICMSBase))
	text(icms00, "vICMS", amount(item.ICMSValue))
	if !item.PISValue.IsZero() {
		pis := imposto.CreateElement("PIS")
		text(pis, "vPIS", amount(item.PISValue))
	}
	if !item.COFINS.IsZero() {
		cofins := imposto.CreateElement("COFINS")
		text(cofins, "vCOFINS", amount(item.COFINS))
	}
}

func buildTotals(parent *etree.Element, t document.Totals) {
	total := parent.CreateElement("total")
	icmsTot := total.CreateElement("ICMSTot")
	text(icmsTot, "vBC", amount(t.ICMSBase))
	text(icmsTot, "vICMS", amount(t.ICMSValue))
	text(icmsTot, "vProd", amount(t.ProductSum))
	text(icmsTot, "vFrete", amount(t.Freight))
	text(icmsTot, "vSeg", amount(t.Insurance))
	text(icmsTot, "vDesc", amount(t.Discount))
	text(icmsTot, "vPIS", amount(t.PISValue))
	text(icmsTot, "vCOFINS", amount(t.COFINS))
	text(icmsTot, "vOutro", amount(t.Other))
	text(icmsTot, "vNF", amount(t.Total))
}

func buildTransport(parent *etree.Element, tr *document.Transport) {
	transp := parent.CreateElement("transp")
	if tr == nil {
		// modFrete 9 = no transport occurs; the group itself is
		// mandatory in the schema.
		text(transp, "modFrete", "9")
		return
	}
	text(transp, "modFrete", tr.Mode)
	if tr.CarrierTax != "" || tr.CarrierName != "" {
		transporta := transp.CreateElement("transporta")
		if tr.CarrierTax != "" {
			text(transporta, "CNPJ", tr.CarrierTax)
		}
		if tr.CarrierName != "" {
			text(transporta, "xNome", tr.CarrierName)
		}
	}
	if tr.Plate != "" {
		veic := transp.CreateElement("veicTransp")
		text(veic, "placa", tr.Plate)
		if tr.PlateState != "" {
			text(veic, "UF", tr.PlateState)
		}
	}
}

func buildPayments(parent *etree.Element, payments []document.Payment) {
	if len(payments) == 0 {
		return
	}
	pag := parent.CreateElement("pag")
	for _, p := range payments {
		detPag := pag.CreateElement("detPag")
		text(detPag, "tPag", p.Method)
		text(detPag, "vPag", amount(p.Amount))
	}
}

func text(parent *etree.Element, tag, value string) {
	parent.CreateElement(tag).SetText(value)
}
