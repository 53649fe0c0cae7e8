// Package schema models a form's field list and validates untyped submission
// payloads against it.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
)

// Schema is an immutable, ordered set of field definitions.
type Schema struct {
	fields []Field
	index  map[string]int
}

// Define validates specs and builds a Schema. Names must be unique and every
// type must carry its required constraints.
func Define(specs []FieldSpec) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, 0, len(specs)),
		index:  make(map[string]int, len(specs)),
	}
	for _, spec := range specs {
		f, err := buildField(spec)
		if err != nil {
			return nil, err
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, apperr.Conflict(apperr.CodeDuplicateFieldName,
				fmt.Sprintf("field name %q is used more than once", f.Name)).With("field", f.Name)
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// MustDefine is Define for static schemas; it panics on error.
func MustDefine(specs []FieldSpec) *Schema {
	s, err := Define(specs)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Len() int { return len(s.fields) }

// Fields returns a copy of the fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	for i := range out {
		out[i].Constraint = copyConstraint(out[i].Constraint)
	}
	return out
}

// Field looks a field up by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	f := s.fields[i]
	f.Constraint = copyConstraint(f.Constraint)
	return f, true
}

// Specs returns the schema in its serialisable form.
func (s *Schema) Specs() []FieldSpec {
	out := make([]FieldSpec, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Spec()
	}
	return out
}

func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Specs())
}

// UnmarshalJSON rebuilds the schema through Define so stored schemas obey the
// same rules as new ones.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var specs []FieldSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return fmt.Errorf("schema: decode: %w", err)
	}
	parsed, err := Define(specs)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}

// Change lists the incompatible differences between two schemas.
type Change struct {
	Removed []string
	Retyped []string
}

func (c Change) Breaking() bool { return len(c.Removed) > 0 || len(c.Retyped) > 0 }

// Diff compares s with next. Added fields and constraint edits are not
// reported.
func (s *Schema) Diff(next *Schema) Change {
	var c Change
	if s == nil {
		return c
	}
	for _, f := range s.fields {
		nf, ok := next.Field(f.Name)
		switch {
		case !ok:
			c.Removed = append(c.Removed, f.Name)
		case nf.Type != f.Type:
			c.Retyped = append(c.Retyped, f.Name)
		}
	}
	return c
}

func copyConstraint(c Constraint) Constraint {
	switch v := c.(type) {
	case SelectConstraint:
		return SelectConstraint{Options: append([]string(nil), v.Options...)}
	case FileConstraint:
		return FileConstraint{Accept: append([]string(nil), v.Accept...), MaxSize: v.MaxSize}
	default:
		return c
	}
}
