package checkout

import (
	"strings"
	"testing"
)

func TestParseAddressBlock(t *testing.T) {
	text := `Name : Alice Tan
Street Name : 1 Main Street
Unit Number : #05-12
Postal Code : 123 456
Phone Number : 9123 4567`

	addr, err := ParseAddressBlock(text)
	if err != nil {
		t.Fatalf("ParseAddressBlock: %v", err)
	}
	if addr.Name != "Alice Tan" || addr.Street != "1 Main Street" || addr.Unit != "#05-12" {
		t.Errorf("parsed: %+v", addr)
	}
	if addr.Postal != "123456" {
		t.Errorf("expected postal whitespace stripped, got %q", addr.Postal)
	}
	if addr.Phone != "91234567" {
		t.Errorf("expected phone whitespace stripped, got %q", addr.Phone)
	}
}

func TestParseAddressBlockCaseInsensitiveLabels(t *testing.T) {
	text := `name: Bob
street name: 2 Side Road
UNIT NUMBER: #01-01
postal code: 654321
phone number: 81234567`

	addr, err := ParseAddressBlock(text)
	if err != nil {
		t.Fatalf("ParseAddressBlock: %v", err)
	}
	if addr.Name != "Bob" {
		t.Errorf("expected Bob, got %q", addr.Name)
	}
}

func TestParseAddressBlockMissingField(t *testing.T) {
	text := `Name : Alice
Street Name : 1 Main Street
Unit Number : #05-12
Postal Code : 123456`

	_, err := ParseAddressBlock(text)
	if err == nil {
		t.Fatal("expected error for missing phone number")
	}
	if !strings.Contains(err.Error(), "Phone Number") {
		t.Errorf("error should name the missing field, got %v", err)
	}
}

func TestAddressTemplateRoundTrip(t *testing.T) {
	// Filling in the emitted template must parse back.
	filled := ""
	for _, line := range strings.Split(strings.TrimSpace(AddressTemplate()), "\n") {
		filled += line + " value\n"
	}

	addr, err := ParseAddressBlock(filled)
	if err != nil {
		t.Fatalf("ParseAddressBlock on filled template: %v", err)
	}
	if addr.Name != "value" {
		t.Errorf("expected value, got %q", addr.Name)
	}
}
