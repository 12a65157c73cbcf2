package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FieldError describes one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result is the outcome of validating one record.
type Result struct {
	Valid  bool         `json:"is_valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// ErrorMessage joins the field errors into one human-readable message.
func (r Result) ErrorMessage() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

// Rule checks one field value. A nil return means the rule passed.
type Rule func(field string, value interface{}) *FieldError

// Schema maps field names to ordered rule lists. Fields are evaluated in
// declaration order; within a field, rules run in order and stop at the
// first failure unless strict mode is on.
type Schema struct {
	order []string
	rules map[string][]Rule
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{rules: make(map[string][]Rule)}
}

// Field appends rules for a field, keeping declaration order.
func (s *Schema) Field(name string, rules ...Rule) *Schema {
	if _, ok := s.rules[name]; !ok {
		s.order = append(s.order, name)
	}
	s.rules[name] = append(s.rules[name], rules...)
	return s
}

// Extend returns a copy of the schema that additional rules can be added to
// without mutating the base.
func (s *Schema) Extend() *Schema {
	clone := NewSchema()
	clone.order = append(clone.order, s.order...)
	for name, rules := range s.rules {
		clone.rules[name] = append([]Rule(nil), rules...)
	}
	return clone
}

// Validate runs the schema, stopping at the first failing rule per field.
func (s *Schema) Validate(record map[string]interface{}) Result {
	return s.run(record, false)
}

// ValidateStrict runs every rule for every field, collecting all failures.
func (s *Schema) ValidateStrict(record map[string]interface{}) Result {
	return s.run(record, true)
}

func (s *Schema) run(record map[string]interface{}, strict bool) Result {
	result := Result{Valid: true}
	for _, field := range s.order {
		value := record[field]
		for _, rule := range s.rules[field] {
			if fieldErr := rule(field, value); fieldErr != nil {
				result.Valid = false
				result.Errors = append(result.Errors, *fieldErr)
				if !strict {
					break
				}
			}
		}
	}
	return result
}

// Sanitize returns the subset of record whose fields appear in the schema.
func (s *Schema) Sanitize(record map[string]interface{}) map[string]interface{} {
	safe := make(map[string]interface{})
	for _, field := range s.order {
		if value, ok := record[field]; ok {
			safe[field] = value
		}
	}
	return safe
}

func isEmpty(value interface{}) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// Required fails on nil or blank values.
func Required() Rule {
	return func(field string, value interface{}) *FieldError {
		if isEmpty(value) {
			return &FieldError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// MaxLen bounds string length. Empty values pass; pair with Required.
func MaxLen(n int) Rule {
	return func(field string, value interface{}) *FieldError {
		if s, ok := value.(string); ok && len(s) > n {
			return &FieldError{Field: field, Message: fmt.Sprintf("must be at most %d characters", n)}
		}
		return nil
	}
}

// MinLen requires a minimum string length for non-empty values.
func MinLen(n int) Rule {
	return func(field string, value interface{}) *FieldError {
		if s, ok := value.(string); ok && s != "" && len(s) < n {
			return &FieldError{Field: field, Message: fmt.Sprintf("must be at least %d characters", n)}
		}
		return nil
	}
}

// Numeric requires the value to parse as a number.
func Numeric() Rule {
	return func(field string, value interface{}) *FieldError {
		if isEmpty(value) {
			return nil
		}
		if _, ok := asFloat(value); !ok {
			return &FieldError{Field: field, Message: "must be a number"}
		}
		return nil
	}
}

// PositiveNumber requires a number greater than zero.
func PositiveNumber() Rule {
	return func(field string, value interface{}) *FieldError {
		if isEmpty(value) {
			return nil
		}
		f, ok := asFloat(value)
		if !ok || f <= 0 {
			return &FieldError{Field: field, Message: "must be a positive number"}
		}
		return nil
	}
}

// Pattern requires the value to match re.
func Pattern(re *regexp.Regexp, message string) Rule {
	return func(field string, value interface{}) *FieldError {
		s, ok := value.(string)
		if !ok || s == "" {
			return nil
		}
		if !re.MatchString(s) {
			return &FieldError{Field: field, Message: message}
		}
		return nil
	}
}

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Email requires a plausible email address.
func Email() Rule {
	return Pattern(emailRe, "must be a valid email address")
}

// Custom wraps an arbitrary predicate.
func Custom(fn func(value interface{}) bool, message string) Rule {
	return func(field string, value interface{}) *FieldError {
		if isEmpty(value) {
			return nil
		}
		if !fn(value) {
			return &FieldError{Field: field, Message: message}
		}
		return nil
	}
}
