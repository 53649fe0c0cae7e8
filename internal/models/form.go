package models

import "github.com/parisxmas/OxiDB/OxiForms/internal/schema"

// Form owns an immutable schema; updates swap the whole schema.
type Form struct {
	ID           string         `json:"id"`
	OwnerID      string         `json:"ownerId"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	PublicID     string         `json:"publicId"`
	ContactField string         `json:"contactField,omitempty"`
	Schema       *schema.Schema `json:"fields"`
	CreatedAt    string         `json:"createdAt"`
	UpdatedAt    string         `json:"updatedAt"`
}

// FieldCount tolerates a form loaded without a schema.
func (f *Form) FieldCount() int {
	if f.Schema == nil {
		return 0
	}
	return f.Schema.Len()
}
