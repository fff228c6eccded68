package normalize

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Kind classifies why a completion could not be turned into a bundle.
type Kind string

const (
	KindEmptyResponse    Kind = "empty_response"
	KindUnparsable       Kind = "unparsable_response"
	KindMissingField     Kind = "missing_field"
	KindInvalidFieldType Kind = "invalid_field_type"
)

// Error is the failure outcome of Normalize. It is always fully populated
// for its Kind; Field is set only for field-level kinds.
type Error struct {
	Kind       Kind
	Stage      string
	Field      string
	Text       string
	Diagnostic string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindMissingField, KindInvalidFieldType:
		return fmt.Sprintf("%s: %s", e.Kind, e.Diagnostic)
	case KindEmptyResponse:
		return string(e.Kind)
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s after %s stage: %s", e.Kind, e.Stage, e.Diagnostic)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Diagnostic)
}

// IsKind reports whether err is a normalization error of the given kind.
func IsKind(err error, kind Kind) bool {
	var nerr *Error
	return errors.As(err, &nerr) && nerr.Kind == kind
}

// Preview returns at most max bytes of the offending text for log lines,
// cut on a rune boundary.
func (e *Error) Preview(max int) string {
	if len(e.Text) <= max {
		return e.Text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(e.Text[cut]) {
		cut--
	}
	return e.Text[:cut] + "..."
}
