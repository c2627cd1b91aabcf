package mutation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Encode serializes the list to the persisted JSON array form.
// A nil list encodes as "[]", never "null".
func Encode(list []Mutation) (string, error) {
	if list == nil {
		list = []Mutation{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(list); err != nil {
		return "", fmt.Errorf("encode mutations: %w", err)
	}
	// Encoder adds a trailing newline
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Decode parses a persisted JSON array.
// Empty input and a JSON null decode to an empty list without error.
// Corrupt input returns an error and an empty list.
func Decode(data string) ([]Mutation, error) {
	data = strings.TrimSpace(data)
	if data == "" || data == "null" {
		return []Mutation{}, nil
	}

	var list []Mutation
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return []Mutation{}, fmt.Errorf("decode mutations: %w", err)
	}
	if list == nil {
		list = []Mutation{}
	}
	return list, nil
}
