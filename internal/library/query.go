package library

import (
	"encoding/json"
	"fmt"

	"github.com/ohler55/ojg/jp"
)

// Query evaluates a JSONPath expression against the document in its persisted shape.
func (lib *library) Query(jsonPath string) ([]interface{}, error) {
	x, err := jp.ParseString(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", jsonPath, err)
	}

	blob, err := json.Marshal(lib)
	if err != nil {
		return nil, err
	}
	var root interface{}
	if err := json.Unmarshal(blob, &root); err != nil {
		return nil, err
	}
	return x.Get(root), nil
}
