package eligibility

import (
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
)

func rawItem(overrides map[string]any) RawItem {
	item := RawItem{
		"is_eligible":       true,
		"description":       "Office visit",
		"short_description": "Medical",
		"category":          "Medical",
		"amount":            100.0,
		"provider":          "Dr Smith",
		"service_date":      "2025-01-15",
		"payment_date":      "2025-01-16",
		"reasoning":         "Standard medical expense",
	}
	for k, v := range overrides {
		item[k] = v
	}
	return item
}

func TestNormalizeEligibleItem(t *testing.T) {
	results, err := Normalize([]RawItem{rawItem(nil)})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}

	r := results[0]
	if !r.Eligible {
		t.Error("Eligible = false, want true")
	}
	if r.Category != Medical {
		t.Errorf("Category = %s, want Medical", r.Category)
	}
	if r.Amount == nil || *r.Amount != 100.0 {
		t.Errorf("Amount = %v, want 100.0", r.Amount)
	}
	if r.Provider == nil || *r.Provider != "Dr Smith" {
		t.Errorf("Provider = %v, want Dr Smith", r.Provider)
	}
	want := civil.Date{Year: 2025, Month: 1, Day: 15}
	if r.ServiceDate == nil || *r.ServiceDate != want {
		t.Errorf("ServiceDate = %v, want %v", r.ServiceDate, want)
	}
	if strings.Contains(r.Reasoning, "required fields") {
		t.Errorf("completeness suffix should not fire: %q", r.Reasoning)
	}
}

func TestNormalizeCompletenessGate(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
	}{
		{"missing amount", map[string]any{"amount": nil}},
		{"missing provider", map[string]any{"provider": nil}},
		{"both dates missing", map[string]any{"service_date": nil, "payment_date": nil}},
		{"amount wrong type", map[string]any{"amount": "a lot"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := Normalize([]RawItem{rawItem(tt.overrides)})
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			r := results[0]
			if r.Eligible {
				t.Error("Eligible = true, want false (completeness gate)")
			}
			if !strings.Contains(r.Reasoning, "required fields (amount, provider, or date) could not be determined") {
				t.Errorf("Reasoning missing completeness suffix: %q", r.Reasoning)
			}
			// The original verdict must still be visible at the front.
			if !strings.HasPrefix(r.Reasoning, "Standard medical expense") {
				t.Errorf("Reasoning lost original text: %q", r.Reasoning)
			}
		})
	}
}

func TestNormalizeGateFiresRegardlessOfVerdict(t *testing.T) {
	// is_eligible=true with a null amount must still come out ineligible.
	results, err := Normalize([]RawItem{rawItem(map[string]any{"is_eligible": true, "amount": nil})})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if results[0].Eligible {
		t.Error("gate must override the classifier verdict")
	}
}

func TestNormalizeSingleDatePreservesVerdict(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
		eligible  bool
	}{
		{"only service date, eligible", map[string]any{"payment_date": nil, "is_eligible": true}, true},
		{"only payment date, eligible", map[string]any{"service_date": nil, "is_eligible": true}, true},
		{"only service date, ineligible", map[string]any{"payment_date": nil, "is_eligible": false}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := Normalize([]RawItem{rawItem(tt.overrides)})
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			r := results[0]
			if r.Eligible != tt.eligible {
				t.Errorf("Eligible = %v, want %v", r.Eligible, tt.eligible)
			}
			if strings.Contains(r.Reasoning, "required fields") {
				t.Errorf("gate should not fire with one date present: %q", r.Reasoning)
			}
		})
	}
}

func TestNormalizeMalformedDateIsHardError(t *testing.T) {
	_, err := Normalize([]RawItem{rawItem(map[string]any{"service_date": "01/15/2025"})})
	if err == nil {
		t.Fatal("expected error for malformed date")
	}
	var dateErr *InvalidDateError
	if !errors.As(err, &dateErr) {
		t.Fatalf("error = %v, want *InvalidDateError", err)
	}
	if dateErr.Field != "service_date" {
		t.Errorf("Field = %q, want service_date", dateErr.Field)
	}
}

func TestNormalizeDateErrorNamesOffendingItem(t *testing.T) {
	_, err := Normalize([]RawItem{
		rawItem(nil),
		rawItem(map[string]any{"payment_date": "15.01.2025"}),
	})
	if err == nil {
		t.Fatal("expected error for malformed date")
	}
	if !strings.Contains(err.Error(), "item 1:") {
		t.Errorf("error = %v, want item index prefix", err)
	}
	var dateErr *InvalidDateError
	if !errors.As(err, &dateErr) {
		t.Fatalf("error = %v, want *InvalidDateError", err)
	}
	if dateErr.Field != "payment_date" {
		t.Errorf("Field = %q, want payment_date", dateErr.Field)
	}
}

func TestNormalizeMissingRequiredField(t *testing.T) {
	for _, key := range []string{"is_eligible", "description", "short_description", "reasoning"} {
		t.Run(key, func(t *testing.T) {
			item := rawItem(nil)
			delete(item, key)
			_, err := Normalize([]RawItem{item})
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("error = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestNormalizeEmptyInput(t *testing.T) {
	results, err := Normalize(nil)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input string
		want  Category
	}{
		{"Medical", Medical},
		{"medical", Medical},
		{"  DENTAL  ", Dental},
		{"Vision", Vision},
		{"Pharmacy", Pharmacy},
		{"Other", Other},
		{"Groceries", Other},
		{"", Other},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseCategory(tt.input); got != tt.want {
				t.Errorf("ParseCategory(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}
