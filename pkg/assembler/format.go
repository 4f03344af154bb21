package assembler

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Fixed decimal places per the authority schema. Separators are
// always '.' regardless of locale.
const (
	amountPlaces   = 2  // monetary amounts (vProd, vNF, ...)
	quantityPlaces = 4  // commercial quantities (qCom)
	unitPlaces     = 10 // unit values (vUnCom)
)

func amount(d decimal.Decimal) string   { return d.StringFixed(amountPlaces) }
func quantity(d decimal.Decimal) string { return d.StringFixed(quantityPlaces) }
func unit(d decimal.Decimal) string     { return d.StringFixed(unitPlaces) }

// timestamp renders an emission timestamp in the schema's RFC 3339
// profile with a numeric UTC offset.
func timestamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05-07:00")
}

// MissingFieldError reports a required document field that is absent
// or empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("required document field missing: %s", e.Field)
}

func requireField(value, field string) error {
	if value == "" {
		return &MissingFieldError{Field: field}
	}
	return nil
}
