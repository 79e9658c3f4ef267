package claims

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes the set as a JSON object. Keys appear in order of first
// occurrence; a duplicated key is written once with an array of its values.
func (s *Set) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range s.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal claim key %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')

		v, err := json.Marshal(s.Get(key))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal claim %q: %w", key, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces the set with the members of a JSON object, in
// document order. Numbers decode as json.Number so integer precision is kept.
// A member name that repeats in the document appends another claim; a JSON
// array is kept as a single []any value.
func (s *Set) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read claims: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("claims must be a JSON object, got %v", tok)
	}

	var parsed []Claim
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read claim key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected claim key %v", tok)
		}

		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("failed to decode claim %q: %w", key, err)
		}
		parsed = append(parsed, Claim{Key: key, Value: value})
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to read end of claims: %w", err)
	}

	s.claims = parsed
	return nil
}

// Equal reports whether s and o hold the same claims in the same order,
// comparing values by their JSON encoding. A claim added as int 3 is equal
// to the json.Number "3" it decodes to, and []string{"a"} to []any{"a"}.
func (s *Set) Equal(o *Set) bool {
	if s.Len() != o.Len() {
		return false
	}
	a, b := s.Claims(), o.Claims()
	for i := range a {
		if a[i].Key != b[i].Key || !jsonEqual(a[i].Value, b[i].Value) {
			return false
		}
	}
	return true
}

func jsonEqual(x, y any) bool {
	bx, err := json.Marshal(x)
	if err != nil {
		return false
	}
	by, err := json.Marshal(y)
	if err != nil {
		return false
	}
	return bytes.Equal(bx, by)
}
