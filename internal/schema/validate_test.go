package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/parisxmas/OxiDB/OxiForms/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func applicationSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := Define([]FieldSpec{
		{Name: "name", Type: ShortText, Required: true, MaxLength: 10},
		{Name: "about", Type: LongText},
		{Name: "shirt", Type: SingleSelect, Required: true, Options: []string{"S", "M", "L"}},
		{Name: "resume", Type: File, Accept: []string{"application/pdf"}, MaxSize: 100},
	})
	require.NoError(t, err)
	return s
}

func pdf(size int64) FileRef {
	return FileRef{Key: "forms/f1/abc/cv.pdf", FileName: "cv.pdf", ContentType: "application/pdf", Size: size}
}

func TestValidate(t *testing.T) {
	s := applicationSchema(t)

	t.Run("Should produce typed values for a valid payload", func(t *testing.T) {
		vals, err := s.Validate(map[string]any{
			"name":   "Ada",
			"shirt":  " M ",
			"resume": pdf(10),
		})
		require.NoError(t, err)
		assert.Equal(t, Value{Text: "Ada"}, vals["name"])
		assert.Equal(t, Value{Text: "M"}, vals["shirt"])
		require.True(t, vals["resume"].IsFile())
		assert.Equal(t, "cv.pdf", vals["resume"].File.FileName)
		_, hasAbout := vals["about"]
		assert.False(t, hasAbout)
	})

	t.Run("Should name exactly the missing required field", func(t *testing.T) {
		for _, payload := range []map[string]any{
			{"shirt": "S"},
			{"name": "", "shirt": "S"},
			{"name": "   ", "shirt": "S"},
			{"name": nil, "shirt": "S"},
		} {
			_, err := s.Validate(payload)
			require.True(t, apperr.HasCode(err, apperr.CodeMissingRequiredField), "got %v", err)
			e, _ := apperr.As(err)
			assert.Equal(t, "name", e.Details["field"])
		}
	})

	t.Run("Should reject unknown keys the same way every time", func(t *testing.T) {
		payload := map[string]any{"name": "Ada", "shirt": "S", "zeta": 1, "alpha": 2}
		for i := 0; i < 5; i++ {
			_, err := s.Validate(payload)
			require.True(t, apperr.HasCode(err, apperr.CodeUnknownField))
			e, _ := apperr.As(err)
			assert.Equal(t, "alpha", e.Details["field"])
		}
	})

	t.Run("Should report unknown keys before missing ones", func(t *testing.T) {
		_, err := s.Validate(map[string]any{"nope": "x"})
		assert.True(t, apperr.HasCode(err, apperr.CodeUnknownField))
	})

	t.Run("Should coerce scalars to text", func(t *testing.T) {
		vals, err := s.Validate(map[string]any{"name": json.Number("42"), "about": true, "shirt": "L"})
		require.NoError(t, err)
		assert.Equal(t, "42", vals["name"].Text)
		assert.Equal(t, "true", vals["about"].Text)
		vals, err = s.Validate(map[string]any{"name": 3.5, "shirt": "L"})
		require.NoError(t, err)
		assert.Equal(t, "3.5", vals["name"].Text)
	})

	t.Run("Should reject composite text values", func(t *testing.T) {
		_, err := s.Validate(map[string]any{"name": []any{"a"}, "shirt": "L"})
		assert.True(t, apperr.HasCode(err, apperr.CodeInvalidFieldValue))
		_, err = s.Validate(map[string]any{"name": "Ada", "about": pdf(1), "shirt": "L"})
		assert.True(t, apperr.HasCode(err, apperr.CodeInvalidFieldValue))
	})

	t.Run("Should enforce max length in characters", func(t *testing.T) {
		_, err := s.Validate(map[string]any{"name": "ÄÖÜäöüßéèê", "shirt": "S"})
		require.NoError(t, err)
		_, err = s.Validate(map[string]any{"name": strings.Repeat("x", 11), "shirt": "S"})
		require.True(t, apperr.HasCode(err, apperr.CodeFieldTooLong))
		e, _ := apperr.As(err)
		assert.Equal(t, 10, e.Details["max"])
	})

	t.Run("Should reject options outside the allowed set", func(t *testing.T) {
		_, err := s.Validate(map[string]any{"name": "Ada", "shirt": "XL"})
		require.True(t, apperr.HasCode(err, apperr.CodeInvalidOption))
		e, _ := apperr.As(err)
		assert.Equal(t, "XL", e.Details["got"])
		assert.Equal(t, []string{"S", "M", "L"}, e.Details["allowed"])
	})

	t.Run("Should reject unresolved file references", func(t *testing.T) {
		for _, v := range []any{"forms/f1/abc/cv.pdf", map[string]any{"key": "x"}, FileRef{FileName: "cv.pdf", Size: 3}} {
			_, err := s.Validate(map[string]any{"name": "Ada", "shirt": "S", "resume": v})
			assert.True(t, apperr.HasCode(err, apperr.CodeInvalidFileReference), "value %v: got %v", v, err)
		}
	})

	t.Run("Should enforce file constraints", func(t *testing.T) {
		_, err := s.Validate(map[string]any{"name": "Ada", "shirt": "S", "resume": pdf(101)})
		assert.True(t, apperr.HasCode(err, apperr.CodeFileRejected))
		img := pdf(5)
		img.ContentType = "image/png"
		_, err = s.Validate(map[string]any{"name": "Ada", "shirt": "S", "resume": img})
		assert.True(t, apperr.HasCode(err, apperr.CodeFileRejected))
	})

	t.Run("Should accept wildcard MIME patterns", func(t *testing.T) {
		img := MustDefine([]FieldSpec{{Name: "photo", Type: File, Required: true, Accept: []string{"image/*"}}})
		ref := FileRef{Key: "k", ContentType: "image/jpeg; charset=binary", Size: 1}
		_, err := img.Validate(map[string]any{"photo": &ref})
		assert.NoError(t, err)
	})

	t.Run("Should accept any content type under */*", func(t *testing.T) {
		doc, err := Define([]FieldSpec{{Name: "doc", Type: File, Accept: []string{"*/*"}}})
		require.NoError(t, err)
		for _, ct := range []string{"application/pdf", "image/png", "text/plain; charset=utf-8"} {
			ref := FileRef{Key: "k", ContentType: ct, Size: 1}
			_, err := doc.Validate(map[string]any{"doc": &ref})
			assert.NoError(t, err, ct)
		}
	})
}

func TestValidateIsDeterministic(t *testing.T) {
	s := applicationSchema(t)
	payloads := []map[string]any{
		{"name": "Ada", "shirt": "S"},
		{"name": 12, "about": "line1\nline2", "shirt": " L", "resume": pdf(100)},
		{"name": false, "shirt": "M", "resume": &FileRef{Key: "k", ContentType: "application/pdf"}},
	}
	for _, p := range payloads {
		first, err := s.Validate(p)
		require.NoError(t, err)
		second, err := s.Validate(first.Payload())
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestValuesJSON(t *testing.T) {
	vals := Values{"name": {Text: "Ada"}, "resume": {File: &FileRef{Key: "k", FileName: "cv.pdf", Size: 3}}}
	data, err := json.Marshal(vals)
	require.NoError(t, err)
	var back Values
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, vals, back)
	assert.Equal(t, []FileRef{*vals["resume"].File}, back.Files())
}
