// Package normalize turns a raw model completion into a validated code bundle.
//
// The model is asked for a bare JSON object but routinely wraps it in markdown
// fences, surrounds it with prose, or emits almost-JSON. Normalize walks a fixed
// ladder of text repairs and parses after the stages marked for it, stopping at
// the first parse that yields an object with all bundle keys. It keeps no state
// and is safe for concurrent use.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/n0madic/go-appforge/internal/types"
)

// Result is a successful normalization.
type Result struct {
	Bundle types.CodeBundle
	// Stage is the ladder stage after which the completion parsed.
	Stage string
}

// Normalize converts a completion into a bundle. Every failure is returned as
// a *Error; nothing panics past this boundary.
func Normalize(completion string) (Result, error) {
	if trimText(completion) == "" {
		return Result{}, &Error{
			Kind:       KindEmptyResponse,
			Text:       completion,
			Diagnostic: "completion is empty",
		}
	}

	var (
		text      = completion
		lastStage string
		diag      string
		parsed    string
		hasParsed bool
		missing   *Error
	)

	for _, st := range ladder {
		text = st.apply(text)
		lastStage = st.name
		if !st.attempt {
			continue
		}
		// An unchanged text would fail the same way again.
		if hasParsed && text == parsed {
			continue
		}
		parsed, hasParsed = text, true

		obj, err := parseObject(text)
		if err != nil {
			diag = err.Error()
			continue
		}
		if field := firstMissingField(obj); field != "" {
			missing = &Error{
				Kind:       KindMissingField,
				Stage:      st.name,
				Field:      field,
				Text:       text,
				Diagnostic: fmt.Sprintf("object has no %q key", field),
			}
			diag = missing.Diagnostic
			continue
		}

		bundle, verr := validate(obj, st.name, text)
		if verr != nil {
			return Result{}, verr
		}
		return Result{Bundle: bundle, Stage: st.name}, nil
	}

	if missing != nil {
		return Result{}, missing
	}
	return Result{}, &Error{
		Kind:       KindUnparsable,
		Stage:      lastStage,
		Text:       text,
		Diagnostic: diag,
	}
}

var errNullObject = errors.New("completion decoded to null, want an object")

func parseObject(text string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case nil:
		return nil, errNullObject
	default:
		return nil, fmt.Errorf("completion decoded to %s, want an object", jsonTypeName(v))
	}
}

func firstMissingField(obj map[string]any) string {
	for _, name := range types.BundleFields {
		if _, ok := obj[name]; !ok {
			return name
		}
	}
	return ""
}

// validate copies the three string fields out of obj. Extra keys are ignored.
func validate(obj map[string]any, stageName, text string) (types.CodeBundle, *Error) {
	var values [len(types.BundleFields)]string
	for i, name := range types.BundleFields {
		raw, ok := obj[name]
		if !ok {
			return types.CodeBundle{}, &Error{
				Kind:       KindMissingField,
				Stage:      stageName,
				Field:      name,
				Text:       text,
				Diagnostic: fmt.Sprintf("object has no %q key", name),
			}
		}
		s, ok := raw.(string)
		if !ok {
			return types.CodeBundle{}, &Error{
				Kind:       KindInvalidFieldType,
				Stage:      stageName,
				Field:      name,
				Text:       text,
				Diagnostic: fmt.Sprintf("field %q is %s, want string", name, jsonTypeName(raw)),
			}
		}
		values[i] = s
	}
	return types.NewCodeBundle(values[0], values[1], values[2]), nil
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "a boolean"
	case float64:
		return "a number"
	case string:
		return "a string"
	case []any:
		return "an array"
	case map[string]any:
		return "an object"
	}
	return fmt.Sprintf("%T", v)
}
