package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// FileRef points at bytes held in the blob store.
type FileRef struct {
	Key         string `json:"key"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum,omitempty"`
}

// Resolved reports whether the reference was produced by an upload.
func (r FileRef) Resolved() bool { return r.Key != "" }

// Value is one validated submission value: either text or a file reference.
type Value struct {
	Text string
	File *FileRef
}

func (v Value) IsFile() bool { return v.File != nil }

func (v Value) MarshalJSON() ([]byte, error) {
	if v.File != nil {
		return json.Marshal(v.File)
	}
	return json.Marshal(v.Text)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var ref FileRef
		if err := json.Unmarshal(data, &ref); err != nil {
			return fmt.Errorf("schema: decode file reference: %w", err)
		}
		*v = Value{File: &ref}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("schema: decode value: %w", err)
	}
	*v = Value{Text: s}
	return nil
}

// Values is the typed result of validating a payload.
type Values map[string]Value

// Payload converts the values back into the untyped shape Validate accepts.
func (vs Values) Payload() map[string]any {
	out := make(map[string]any, len(vs))
	for k, v := range vs {
		if v.File != nil {
			out[k] = *v.File
			continue
		}
		out[k] = v.Text
	}
	return out
}

// Files returns the file references ordered by field name.
func (vs Values) Files() []FileRef {
	names := make([]string, 0, len(vs))
	for k, v := range vs {
		if v.File != nil {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	refs := make([]FileRef, 0, len(names))
	for _, n := range names {
		refs = append(refs, *vs[n].File)
	}
	return refs
}
