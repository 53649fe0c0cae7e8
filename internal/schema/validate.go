package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
)

// Validate checks payload against the schema and returns the typed values.
// It fails on the first problem and never returns partial results. Unknown
// keys are reported before any field check.
func (s *Schema) Validate(payload map[string]any) (Values, error) {
	if err := s.checkUnknown(payload); err != nil {
		return nil, err
	}
	out := make(Values, len(s.fields))
	for _, f := range s.fields {
		raw, present := payload[f.Name]
		if !present || isBlank(raw) {
			if f.Required {
				return nil, apperr.Validation(apperr.CodeMissingRequiredField,
					fmt.Sprintf("field %q is required", f.Name)).With("field", f.Name)
			}
			continue
		}
		v, err := validateField(f, raw)
		if err != nil {
			return nil, err
		}
		out[f.Name] = v
	}
	return out, nil
}

func (s *Schema) checkUnknown(payload map[string]any) error {
	var unknown []string
	for k := range payload {
		if _, ok := s.index[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return apperr.Validation(apperr.CodeUnknownField,
		fmt.Sprintf("field %q is not part of this form", unknown[0])).With("field", unknown[0])
}

func validateField(f Field, raw any) (Value, error) {
	switch c := f.Constraint.(type) {
	case TextConstraint:
		text, ok := coerceString(raw)
		if !ok {
			return Value{}, invalidValue(f.Name)
		}
		if c.MaxLength > 0 && utf8.RuneCountInString(text) > c.MaxLength {
			return Value{}, apperr.Validation(apperr.CodeFieldTooLong,
				fmt.Sprintf("field %q exceeds %d characters", f.Name, c.MaxLength)).
				With("field", f.Name).With("max", c.MaxLength)
		}
		return Value{Text: text}, nil
	case SelectConstraint:
		got, ok := coerceString(raw)
		if !ok {
			return Value{}, invalidValue(f.Name)
		}
		got = strings.TrimSpace(got)
		for _, o := range c.Options {
			if o == got {
				return Value{Text: got}, nil
			}
		}
		return Value{}, apperr.Validation(apperr.CodeInvalidOption,
			fmt.Sprintf("field %q does not allow %q", f.Name, got)).
			With("field", f.Name).With("got", got).With("allowed", append([]string(nil), c.Options...))
	case FileConstraint:
		ref, ok := asFileRef(raw)
		if !ok || !ref.Resolved() {
			return Value{}, apperr.Validation(apperr.CodeInvalidFileReference,
				fmt.Sprintf("field %q needs an uploaded file", f.Name)).With("field", f.Name)
		}
		if c.MaxSize > 0 && ref.Size > c.MaxSize {
			return Value{}, fileRejected(f.Name, fmt.Sprintf("file is larger than %d bytes", c.MaxSize))
		}
		if !c.accepts(ref.ContentType) {
			return Value{}, fileRejected(f.Name, fmt.Sprintf("content type %q is not accepted", ref.ContentType))
		}
		return Value{File: &ref}, nil
	default:
		return Value{}, fmt.Errorf("schema: field %q has no constraint", f.Name)
	}
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case FileRef:
		return x == FileRef{}
	case *FileRef:
		return x == nil
	}
	return false
}

// coerceString accepts scalars only; composite values are rejected.
func coerceString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	}
	return "", false
}

func asFileRef(v any) (FileRef, bool) {
	switch x := v.(type) {
	case FileRef:
		return x, true
	case *FileRef:
		if x == nil {
			return FileRef{}, false
		}
		return *x, true
	}
	return FileRef{}, false
}

func invalidValue(field string) error {
	return apperr.Validation(apperr.CodeInvalidFieldValue,
		fmt.Sprintf("field %q must be a single text value", field)).With("field", field)
}

func fileRejected(field, reason string) error {
	return apperr.Validation(apperr.CodeFileRejected, fmt.Sprintf("field %q: %s", field, reason)).
		With("field", field).With("reason", reason)
}
