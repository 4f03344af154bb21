package accesskey

import (
	"errors"
	"testing"
)

func referenceFields() Fields {
	return Fields{
		StateCode:    "33",
		YearMonth:    "2501",
		IssuerTaxID:  "14200166000187",
		Model:        "55",
		Series:       "001",
		Number:       "000000001",
		EmissionType: "1",
		ControlCode:  "00000001",
	}
}

func TestGenerate_ReferenceVector(t *testing.T) {
	// Hand-computed: weighted sum 378, 378 mod 11 = 4, 11-4 = 7.
	key, err := Generate(referenceFields())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "33250114200166000187550010000000011000000017"
	if key.String() != want {
		t.Errorf("expected key %s, got %s", want, key)
	}
	if key.CheckDigit() != '7' {
		t.Errorf("expected check digit '7', got %q", key.CheckDigit())
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	first, err := Generate(referenceFields())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 100; i++ {
		again, err := Generate(referenceFields())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again != first {
			t.Fatalf("generation not deterministic: %s != %s", again, first)
		}
	}
}

func TestCheckDigit_KnownVectors(t *testing.T) {
	cases := []struct {
		digits string
		want   byte
	}{
		{"3520075582888800016655001000000123112345678", 6},
		{"4324120123456700019565099000456789287654321", 5},
		{"3325011420016600018755001000000002100000001", 4},
	}
	for _, c := range cases {
		if got := CheckDigit(c.digits); got != c.want {
			t.Errorf("CheckDigit(%s) = %d, want %d", c.digits, got, c.want)
		}
	}
}

func TestGenerate_FieldWidthErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Fields)
		field  string
	}{
		{"short state code", func(f *Fields) { f.StateCode = "3" }, "cUF"},
		{"long series", func(f *Fields) { f.Series = "0001" }, "serie"},
		{"non-digit tax id", func(f *Fields) { f.IssuerTaxID = "1420016600018A" }, "CNPJ"},
		{"empty number", func(f *Fields) { f.Number = "" }, "nNF"},
		{"wide emission type", func(f *Fields) { f.EmissionType = "10" }, "tpEmis"},
		{"short control code", func(f *Fields) { f.ControlCode = "1234567" }, "cNF"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := referenceFields()
			c.mutate(&f)
			_, err := Generate(f)
			if err == nil {
				t.Fatal("expected error")
			}
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FieldError, got %T", err)
			}
			if fe.Field != c.field {
				t.Errorf("expected offending field %s, got %s", c.field, fe.Field)
			}
		})
	}
}

func TestParse(t *testing.T) {
	key, err := Generate(referenceFields())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed, err := Parse(key.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != key {
		t.Errorf("expected %s, got %s", key, parsed)
	}

	// Corrupt the check digit.
	bad := key.String()[:43] + "9"
	if _, err := Parse(bad); err == nil {
		t.Error("expected check digit mismatch error")
	}

	if _, err := Parse("123"); err == nil {
		t.Error("expected length error")
	}
}
