package validation

import "testing"

func TestIsValidLuhn(t *testing.T) {
	tests := []struct {
		name   string
		number string
		valid  bool
	}{
		{
			name:   "valid example 1",
			number: "79927398713",
			valid:  true,
		},
		{
			name:   "valid example 2",
			number: "4539578763621486",
			valid:  true,
		},
		{
			name:   "invalid checksum",
			number: "79927398710",
			valid:  false,
		},
		{
			name:   "contains letters",
			number: "1234a67890",
			valid:  false,
		},
		{
			name:   "empty string",
			number: "",
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidLuhn(tt.number)
			if got != tt.valid {
				t.Fatalf("IsValidLuhn(%q) = %v, want %v", tt.number, got, tt.valid)
			}
		})
	}
}

func TestLuhnCheckDigit(t *testing.T) {
	digit, ok := LuhnCheckDigit("7992739871")
	if !ok {
		t.Fatalf("LuhnCheckDigit returned not ok")
	}
	if digit != '3' {
		t.Fatalf("LuhnCheckDigit = %c, want 3", digit)
	}

	if _, ok := LuhnCheckDigit("12a"); ok {
		t.Fatalf("expected not ok for non-digit payload")
	}
}

func TestIsValidInvoiceNumber(t *testing.T) {
	payload := "202604000001"
	digit, ok := LuhnCheckDigit(payload)
	if !ok {
		t.Fatalf("LuhnCheckDigit returned not ok")
	}

	number := payload + string(digit)
	if !IsValidInvoiceNumber(number) {
		t.Fatalf("IsValidInvoiceNumber(%q) = false, want true", number)
	}
	if IsValidInvoiceNumber("79927398713") {
		t.Fatalf("short number must be rejected")
	}

	long := "2026041000000"
	digit, _ = LuhnCheckDigit(long)
	if !IsValidInvoiceNumber(long + string(digit)) {
		t.Fatalf("seven-digit sequence must be accepted")
	}

	badMonth := "202613000001"
	digit, _ = LuhnCheckDigit(badMonth)
	if IsValidInvoiceNumber(badMonth + string(digit)) {
		t.Fatalf("month 13 must be rejected")
	}
}

func TestIsValidID(t *testing.T) {
	if !IsValidID("5f0c6d1e-8f3a-4c2b-9a43-6d7a1b2c3d4e") {
		t.Fatalf("expected valid uuid")
	}
	if IsValidID("not-a-uuid") {
		t.Fatalf("expected invalid uuid")
	}
}
