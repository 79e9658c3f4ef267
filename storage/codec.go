package storage

import (
	"encoding/json"
	"fmt"
)

// MarshalRecord encodes a record for a backing store.
func MarshalRecord(r Record) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s record: %w", r.Kind(), err)
	}
	return data, nil
}

// UnmarshalRecord decodes data written by MarshalRecord into the record type for kind.
func UnmarshalRecord(kind Kind, data []byte) (Record, error) {
	var r Record
	switch kind {
	case KindAccess:
		r = &AccessToken{}
	case KindRefresh:
		r = &RefreshToken{}
	case KindCode:
		r = &AuthorizationCode{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s record: %w", kind, err)
	}
	return r, nil
}

// CloneRecord returns a deep copy of r.
func CloneRecord(r Record) Record {
	switch v := r.(type) {
	case *AccessToken:
		c := *v
		c.Scope = cloneScope(v.Scope)
		return &c
	case *RefreshToken:
		c := *v
		c.Scope = cloneScope(v.Scope)
		return &c
	case *AuthorizationCode:
		c := *v
		c.Scope = cloneScope(v.Scope)
		return &c
	default:
		return r
	}
}

func cloneScope(scope []string) []string {
	if scope == nil {
		return nil
	}
	out := make([]string, len(scope))
	copy(out, scope)
	return out
}
