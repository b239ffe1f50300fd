package annotation

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tilescope/tilescope/backend-go/internal/typeid"
)

// Document is the JSON import/export form of an annotation.
type Document struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Elements    []Element `json:"elements"`
}

// DecodeDocuments reads either a single document or an array of documents.
// Elements without an id get one; every element is validated.
func DecodeDocuments(r io.Reader) ([]Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}

	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		var doc Document
		if err2 := json.Unmarshal(raw, &doc); err2 != nil {
			return nil, fmt.Errorf("decode documents: %w", err2)
		}
		docs = []Document{doc}
	}

	for i := range docs {
		if docs[i].Name == "" {
			return nil, fmt.Errorf("document %d: name is required", i)
		}
		for j := range docs[i].Elements {
			if docs[i].Elements[j].ID == "" {
				docs[i].Elements[j].ID = typeid.NewElementID()
			}
			if err := docs[i].Elements[j].Validate(); err != nil {
				return nil, fmt.Errorf("document %q element %d: %w", docs[i].Name, j, err)
			}
		}
	}
	return docs, nil
}
