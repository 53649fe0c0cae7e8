package models

import "github.com/parisxmas/OxiDB/OxiForms/internal/schema"

type Submission struct {
	ID          string        `json:"id"`
	FormID      string        `json:"formId"`
	SubmitterID string        `json:"submitterId,omitempty"`
	Data        schema.Values `json:"data"`
	CreatedAt   string        `json:"createdAt"`
}
