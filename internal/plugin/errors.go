package plugin

import (
	"errors"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ValidationError rejects a package write. Errors maps field names to
// messages; Summary holds one readable message per field.
type ValidationError struct {
	Errors  map[string][]string
	Summary map[string]string
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, msg string) *ValidationError {
	errs := map[string][]string{field: {msg}}
	return &ValidationError{Errors: errs, Summary: ErrorSummary(errs)}
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for f := range e.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(e.Errors[f], ", "))
	}
	return "validation error: " + strings.Join(parts, "; ")
}

var titler = cases.Title(language.English, cases.NoLower)

// ErrorSummary turns field errors into readable labels, e.g.
// "default_map_extent" becomes "Default map extent". Only the first message
// of each field is kept.
func ErrorSummary(errs map[string][]string) map[string]string {
	out := make(map[string]string, len(errs))
	for field, msgs := range errs {
		if len(msgs) == 0 {
			continue
		}
		out[prettyField(field)] = msgs[0]
	}
	return out
}

func prettyField(field string) string {
	label := strings.ReplaceAll(field, "_", " ")
	if label == "" {
		return label
	}
	// Title-case the first word only.
	first, rest, _ := strings.Cut(label, " ")
	label = titler.String(first)
	if rest != "" {
		label += " " + rest
	}
	return label
}

// SearchError rejects a search request.
type SearchError struct {
	Message string
}

func (e *SearchError) Error() string { return e.Message }

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// IsSearchError reports whether err is or wraps a SearchError.
func IsSearchError(err error) (*SearchError, bool) {
	var se *SearchError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
