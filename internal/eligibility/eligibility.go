package eligibility

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
)

var (
	// ErrMalformedResponse means the classifier output was not a JSON
	// array of objects with the required fields.
	ErrMalformedResponse = errors.New("eligibility: malformed classifier response")

	// ErrEmptyResponse means the classifier returned no usable text.
	ErrEmptyResponse = errors.New("eligibility: empty classifier response")
)

// InvalidDateError is returned when the classifier emits a non-null date
// that is not strict YYYY-MM-DD. Only an explicit null is tolerated.
type InvalidDateError struct {
	Field string
	Value string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("eligibility: invalid %s %q: want YYYY-MM-DD", e.Field, e.Value)
}

// Category is the closed set of expense categories.
type Category string

const (
	Medical  Category = "Medical"
	Dental   Category = "Dental"
	Vision   Category = "Vision"
	Pharmacy Category = "Pharmacy"
	Other    Category = "Other"
)

// ParseCategory coerces a raw category string onto the closed enum.
// Absent or unrecognized values collapse to Other.
func ParseCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "medical":
		return Medical
	case "dental":
		return Dental
	case "vision":
		return Vision
	case "pharmacy":
		return Pharmacy
	}
	return Other
}

func (c Category) String() string { return string(c) }

// RawItem is one untyped transaction object as returned by the
// classifier.
type RawItem map[string]any

// Result is the normalized, policy-enforced form of a RawItem.
type Result struct {
	Eligible         bool
	Description      string
	ShortDescription string
	Category         Category
	Amount           *float64
	Provider         *string
	ServiceDate      *civil.Date
	PaymentDate      *civil.Date
	Reasoning        string
}

// completenessSuffix is appended to the reasoning whenever the
// completeness gate fires.
const completenessSuffix = "Additionally, required fields (amount, provider, or date) could not be determined."

// Normalize validates and normalizes raw classifier output. Two gates
// apply per item: the classifier's own eligibility verdict, and a
// data-completeness gate that forces ineligibility when amount or
// provider is absent, or both dates are absent. The completeness gate
// fires regardless of the verdict. Pure and deterministic.
func Normalize(items []RawItem) ([]Result, error) {
	results := make([]Result, 0, len(items))

	for i, item := range items {
		if item == nil {
			return nil, fmt.Errorf("item %d is null: %w", i, ErrMalformedResponse)
		}

		eligible, err := requiredBool(item, "is_eligible")
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		description, err := requiredString(item, "description")
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		shortDescription, err := requiredString(item, "short_description")
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		reasoning, err := requiredString(item, "reasoning")
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}

		amount := optionalNumber(item, "amount")
		provider := optionalString(item, "provider")

		serviceDate, err := optionalDate(item, "service_date")
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		paymentDate, err := optionalDate(item, "payment_date")
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}

		if amount == nil || provider == nil || (serviceDate == nil && paymentDate == nil) {
			eligible = false
			reasoning = reasoning + " " + completenessSuffix
		}

		results = append(results, Result{
			Eligible:         eligible,
			Description:      description,
			ShortDescription: shortDescription,
			Category:         ParseCategory(stringOr(item, "category", "")),
			Amount:           amount,
			Provider:         provider,
			ServiceDate:      serviceDate,
			PaymentDate:      paymentDate,
			Reasoning:        reasoning,
		})
	}

	return results, nil
}

func requiredBool(item RawItem, key string) (bool, error) {
	v, ok := item[key]
	if !ok {
		return false, fmt.Errorf("missing %q: %w", key, ErrMalformedResponse)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("field %q is %T, want bool: %w", key, v, ErrMalformedResponse)
	}
	return b, nil
}

func requiredString(item RawItem, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing %q: %w", key, ErrMalformedResponse)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, want string: %w", key, v, ErrMalformedResponse)
	}
	return s, nil
}

func stringOr(item RawItem, key, fallback string) string {
	if s, ok := item[key].(string); ok {
		return s
	}
	return fallback
}

// optionalNumber coerces the field to a number, or marks it absent.
func optionalNumber(item RawItem, key string) *float64 {
	switch v := item[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	}
	return nil
}

// optionalString coerces the field to a non-empty string, or marks it
// absent.
func optionalString(item RawItem, key string) *string {
	if s, ok := item[key].(string); ok {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			return &trimmed
		}
	}
	return nil
}

// optionalDate parses a YYYY-MM-DD field. Null or absent is tolerated; a
// malformed non-null value is a hard error.
func optionalDate(item RawItem, key string) (*civil.Date, error) {
	v, ok := item[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, &InvalidDateError{Field: key, Value: fmt.Sprintf("%v", v)}
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return nil, &InvalidDateError{Field: key, Value: s}
	}
	return &d, nil
}
