package schema

import (
	"fmt"
	"mime"
	"strings"

	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
)

// Type is the closed set of field kinds a form may declare.
type Type string

const (
	ShortText    Type = "short_text"
	LongText     Type = "long_text"
	SingleSelect Type = "single_select"
	File         Type = "file"
)

// Valid reports whether t is one of the supported field types.
func (t Type) Valid() bool {
	switch t {
	case ShortText, LongText, SingleSelect, File:
		return true
	}
	return false
}

// FieldSpec is the raw, untrusted field definition an administrator submits.
// Only the constraint attributes of the declared type may be set.
type FieldSpec struct {
	Name      string   `json:"name"`
	Label     string   `json:"label,omitempty"`
	Type      Type     `json:"type"`
	Required  bool     `json:"required,omitempty"`
	MaxLength int      `json:"maxLength,omitempty"`
	Options   []string `json:"options,omitempty"`
	Accept    []string `json:"accept,omitempty"`
	MaxSize   int64    `json:"maxSize,omitempty"`
}

// Constraint is the type-specific part of a field. Each variant carries only
// its own data.
type Constraint interface {
	constraint()
}

type TextConstraint struct {
	// MaxLength is in runes; zero means unbounded.
	MaxLength int
}

type SelectConstraint struct {
	Options []string
}

type FileConstraint struct {
	// Accept holds MIME types or "type/*" patterns; empty accepts anything.
	Accept []string
	// MaxSize is in bytes; zero means unbounded.
	MaxSize int64
}

func (TextConstraint) constraint()   {}
func (SelectConstraint) constraint() {}
func (FileConstraint) constraint()   {}

// Field is a validated field definition.
type Field struct {
	Name       string
	Label      string
	Type       Type
	Required   bool
	Constraint Constraint
}

func (f Field) Spec() FieldSpec {
	s := FieldSpec{Name: f.Name, Label: f.Label, Type: f.Type, Required: f.Required}
	switch c := f.Constraint.(type) {
	case TextConstraint:
		s.MaxLength = c.MaxLength
	case SelectConstraint:
		s.Options = append([]string(nil), c.Options...)
	case FileConstraint:
		s.Accept = append([]string(nil), c.Accept...)
		s.MaxSize = c.MaxSize
	}
	return s
}

func buildField(s FieldSpec) (Field, error) {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return Field{}, invalidConstraint(s.Name, "field name is required")
	}
	if !s.Type.Valid() {
		return Field{}, apperr.Validation(apperr.CodeUnsupportedFieldType,
			fmt.Sprintf("field %q has unsupported type %q", name, s.Type)).
			With("field", name).With("type", string(s.Type))
	}
	f := Field{Name: name, Label: strings.TrimSpace(s.Label), Type: s.Type, Required: s.Required}
	if f.Label == "" {
		f.Label = name
	}
	switch s.Type {
	case ShortText, LongText:
		if len(s.Options) > 0 || len(s.Accept) > 0 || s.MaxSize != 0 {
			return Field{}, invalidConstraint(name, "text fields only accept maxLength")
		}
		if s.MaxLength < 0 {
			return Field{}, invalidConstraint(name, "maxLength must be positive")
		}
		f.Constraint = TextConstraint{MaxLength: s.MaxLength}
	case SingleSelect:
		if s.MaxLength != 0 || len(s.Accept) > 0 || s.MaxSize != 0 {
			return Field{}, invalidConstraint(name, "single select fields only accept options")
		}
		opts, err := cleanOptions(name, s.Options)
		if err != nil {
			return Field{}, err
		}
		f.Constraint = SelectConstraint{Options: opts}
	case File:
		if s.MaxLength != 0 || len(s.Options) > 0 {
			return Field{}, invalidConstraint(name, "file fields only accept accept and maxSize")
		}
		if s.MaxSize < 0 {
			return Field{}, invalidConstraint(name, "maxSize must be positive")
		}
		accept, err := cleanAccept(name, s.Accept)
		if err != nil {
			return Field{}, err
		}
		f.Constraint = FileConstraint{Accept: accept, MaxSize: s.MaxSize}
	}
	return f, nil
}

func cleanOptions(field string, raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, invalidConstraint(field, "single select requires at least one option")
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, o := range raw {
		o = strings.TrimSpace(o)
		if o == "" {
			return nil, invalidConstraint(field, "options must not be blank")
		}
		if _, dup := seen[o]; dup {
			return nil, invalidConstraint(field, fmt.Sprintf("option %q is repeated", o))
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out, nil
}

// anyType in an accept list matches every content type.
const anyType = "*/*"

func cleanAccept(field string, raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, a := range raw {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == anyType {
			out = append(out, a)
			continue
		}
		if strings.HasPrefix(a, "*/") {
			return nil, invalidConstraint(field, fmt.Sprintf("accept pattern %q needs a concrete type", a))
		}
		if strings.HasSuffix(a, "/*") && !strings.Contains(strings.TrimSuffix(a, "/*"), "/") && len(a) > 2 {
			out = append(out, a)
			continue
		}
		if _, _, err := mime.ParseMediaType(a); err != nil || !strings.Contains(a, "/") {
			return nil, invalidConstraint(field, fmt.Sprintf("accept pattern %q is not a MIME type", a))
		}
		out = append(out, a)
	}
	return out, nil
}

// accepts reports whether contentType matches one of the patterns.
func (c FileConstraint) accepts(contentType string) bool {
	if len(c.Accept) == 0 {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	for _, pattern := range c.Accept {
		if pattern == anyType {
			return true
		}
		if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
			if strings.HasPrefix(mt, prefix+"/") {
				return true
			}
			continue
		}
		if mt == pattern {
			return true
		}
	}
	return false
}

func invalidConstraint(field, msg string) error {
	return apperr.Validation(apperr.CodeInvalidConstraint, fmt.Sprintf("field %q: %s", field, msg)).
		With("field", field)
}
