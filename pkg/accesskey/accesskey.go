package accesskey

import (
	"fmt"
)

// Key is a validated 44-digit access key.
type Key string

// String returns the key as a plain digit string.
func (k Key) String() string { return string(k) }

// CheckDigit returns the final verification digit of the key.
func (k Key) CheckDigit() byte { return k[43] }

// Fields holds the 43 non-check digits of an access key, split into
// the header fields they are derived from. All values are digit
// strings of the exact width noted on each field.
type Fields struct {
	StateCode    string // cUF, 2 digits (IBGE state code)
	YearMonth    string // AAMM, 4 digits of the emission timestamp
	IssuerTaxID  string // CNPJ, 14 digits
	Model        string // mod, 2 digits (55 NF-e, 65 NFC-e)
	Series       string // serie, 3 digits
	Number       string // nNF, 9 digits
	EmissionType string // tpEmis, 1 digit
	ControlCode  string // cNF, 8 digits (random control code)
}

// FieldError reports a field that is not a digit string of its
// required fixed width.
type FieldError struct {
	Field string
	Value string
	Width int
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("access key field %s: %q is not %d digits", e.Field, e.Value, e.Width)
}

// Generate derives the full 44-digit access key from the header
// fields. Identical inputs always produce an identical key.
func Generate(f Fields) (Key, error) {
	parts := []struct {
		name  string
		value string
		width int
	}{
		{"cUF", f.StateCode, 2},
		{"AAMM", f.YearMonth, 4},
		{"CNPJ", f.IssuerTaxID, 14},
		{"mod", f.Model, 2},
		{"serie", f.Series, 3},
		{"nNF", f.Number, 9},
		{"tpEmis", f.EmissionType, 1},
		{"cNF", f.ControlCode, 8},
	}

	buf := make([]byte, 0, 44)
	for _, p := range parts {
		if len(p.value) != p.width || !allDigits(p.value) {
			return "", &FieldError{Field: p.name, Value: p.value, Width: p.width}
		}
		buf = append(buf, p.value...)
	}

	buf = append(buf, '0'+CheckDigit(string(buf)))
	return Key(buf), nil
}

// Parse validates an externally supplied key: 44 digits whose check
// digit matches the recomputation over the first 43.
func Parse(s string) (Key, error) {
	if len(s) != 44 || !allDigits(s) {
		return "", &FieldError{Field: "key", Value: s, Width: 44}
	}
	if CheckDigit(s[:43]) != s[43]-'0' {
		return "", fmt.Errorf("access key %s: check digit mismatch (want %d)", s, CheckDigit(s[:43]))
	}
	return Key(s), nil
}

// CheckDigit computes the modulo-11 verification digit over a digit
// string. Weights cycle 2..9 starting from the rightmost digit; a
// result of 10 or 11 collapses to 0. The input must already be
// validated as digits.
func CheckDigit(digits string) byte {
	sum := 0
	weight := 2
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	dv := 11 - sum%11
	if dv >= 10 {
		dv = 0
	}
	return byte(dv)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
