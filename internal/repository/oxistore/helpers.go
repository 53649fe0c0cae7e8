package oxistore

import (
	"encoding/json"
	"fmt"

	"github.com/parisxmas/OxiDB/OxiForms/internal/oxidb"
	"github.com/parisxmas/OxiDB/OxiForms/internal/repository"
)

// toDoc converts a model into a document. Records carry their own "id";
// the server-assigned numeric _id is never used as an identifier.
func toDoc(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	delete(doc, "_id")
	return doc, nil
}

func fromDoc(doc map[string]any, out any) error {
	delete(doc, "_id")
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// affected reads the modified/deleted count from a write result. Writes
// buffered inside a transaction carry no count and report ok.
func affected(result map[string]any, key string) bool {
	n, ok := result[key].(float64)
	return !ok || n > 0
}

func classify(op string, err error) error {
	if oxidb.IsDuplicate(err) {
		return fmt.Errorf("oxistore: %s: %w: %v", op, repository.ErrDuplicate, err)
	}
	return fmt.Errorf("oxistore: %s: %w", op, err)
}

func byID(id string) map[string]any { return map[string]any{"id": id} }

var newestFirst = &oxidb.FindOptions{Sort: map[string]any{"createdAt": -1}}
