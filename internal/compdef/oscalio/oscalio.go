// Package oscalio reads and writes OSCAL component-definition documents.
package oscalio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	oscal "github.com/defenseunicorns/go-oscal/src/types/oscal-1-1-3"
)

// OSCALVersion is the OSCAL schema version written into new documents.
const OSCALVersion = "1.1.3"

// ErrNotComponentDefinition is returned when a document has no component-definition root.
var ErrNotComponentDefinition = errors.New("document is not an OSCAL component-definition")

// Decode parses a {"component-definition": {...}} JSON document.
func Decode(data []byte) (*oscal.ComponentDefinition, error) {
	var models oscal.OscalModels
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, fmt.Errorf("failed to parse OSCAL document: %w", err)
	}
	if models.ComponentDefinition == nil {
		return nil, ErrNotComponentDefinition
	}
	return models.ComponentDefinition, nil
}

// Encode serializes a component definition with two-space indentation and a
// trailing newline. Equal documents always encode to identical bytes.
func Encode(cd *oscal.ComponentDefinition) ([]byte, error) {
	models := oscal.OscalModels{ComponentDefinition: cd}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(models); err != nil {
		return nil, fmt.Errorf("failed to encode component definition: %w", err)
	}
	return buf.Bytes(), nil
}

// LoadFile reads a component definition from a local JSON file.
func LoadFile(path string) (*oscal.ComponentDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read component definition: %w", err)
	}
	return Decode(data)
}

// Clone returns a deep copy of cd.
func Clone(cd *oscal.ComponentDefinition) (*oscal.ComponentDefinition, error) {
	data, err := json.Marshal(cd)
	if err != nil {
		return nil, fmt.Errorf("failed to copy component definition: %w", err)
	}
	var out oscal.ComponentDefinition
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to copy component definition: %w", err)
	}
	return &out, nil
}
