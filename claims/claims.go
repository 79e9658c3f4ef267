// Package claims provides an ordered, duplicate-key tolerant claim set used for
// JWT-style headers and payloads.
//
// A Set keeps claims in insertion order and never deduplicates keys: adding the
// same key twice represents a multi-valued claim. Lookups report whether a key
// is absent, single-valued or multi-valued, and the typed accessors return an
// explicit error when a value cannot be coerced to the requested type.
//
// A Set is not safe for concurrent mutation. Callers that share a Set between
// goroutines must either treat it as read-only or Clone it first.
package claims

import (
	"iter"
	"slices"
)

// Claim is a single key/value pair.
type Claim struct {
	Key   string
	Value any
}

// Set is an ordered sequence of claims. The zero value is an empty set ready to use.
type Set struct {
	claims []Claim
}

// New returns a Set holding the given claims in order.
func New(claims ...Claim) *Set {
	return &Set{claims: slices.Clone(claims)}
}

// Add appends a claim. Existing claims with the same key are kept.
func (s *Set) Add(key string, value any) {
	s.claims = append(s.claims, Claim{Key: key, Value: value})
}

// Len returns the number of claims, counting every duplicate.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.claims)
}

// ContainsKey reports whether at least one claim has the given key.
func (s *Set) ContainsKey(key string) bool {
	if s == nil {
		return false
	}
	return slices.ContainsFunc(s.claims, func(c Claim) bool { return c.Key == key })
}

// Remove deletes the first claim with the given key and reports whether one was found.
func (s *Set) Remove(key string) bool {
	if s == nil {
		return false
	}
	i := slices.IndexFunc(s.claims, func(c Claim) bool { return c.Key == key })
	if i < 0 {
		return false
	}
	s.claims = slices.Delete(s.claims, i, i+1)
	return true
}

// Lookup returns every value stored under key.
func (s *Set) Lookup(key string) Value {
	if s == nil {
		return Value{}
	}
	var values []any
	for _, c := range s.claims {
		if c.Key == key {
			values = append(values, c.Value)
		}
	}
	return Value{values: values}
}

// Get returns the untyped value for key: the value itself when exactly one
// claim matches, a []any of all matches in insertion order when several do,
// and nil when none do.
func (s *Set) Get(key string) any {
	v := s.Lookup(key)
	switch v.Kind() {
	case Single:
		return v.values[0]
	case Multiple:
		return v.All()
	default:
		return nil
	}
}

// All iterates over every claim in insertion order.
func (s *Set) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		if s == nil {
			return
		}
		for _, c := range s.claims {
			if !yield(c.Key, c.Value) {
				return
			}
		}
	}
}

// Claims returns a copy of the underlying claims.
func (s *Set) Claims() []Claim {
	if s == nil {
		return nil
	}
	return slices.Clone(s.claims)
}

// Keys returns the distinct keys in order of first occurrence.
func (s *Set) Keys() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(s.claims))
	keys := make([]string, 0, len(s.claims))
	for _, c := range s.claims {
		if _, ok := seen[c.Key]; ok {
			continue
		}
		seen[c.Key] = struct{}{}
		keys = append(keys, c.Key)
	}
	return keys
}

// Clone returns a shallow copy of the set.
func (s *Set) Clone() *Set {
	if s == nil {
		return &Set{}
	}
	return &Set{claims: slices.Clone(s.claims)}
}

// Kind classifies the result of a lookup.
type Kind int

const (
	// Absent means no claim matched.
	Absent Kind = iota
	// Single means exactly one claim matched.
	Single
	// Multiple means more than one claim matched.
	Multiple
)

func (k Kind) String() string {
	switch k {
	case Single:
		return "single"
	case Multiple:
		return "multiple"
	default:
		return "absent"
	}
}

// Value is the tagged result of a lookup.
type Value struct {
	values []any
}

// Kind reports whether the lookup matched nothing, one claim or several.
func (v Value) Kind() Kind {
	switch len(v.values) {
	case 0:
		return Absent
	case 1:
		return Single
	default:
		return Multiple
	}
}

// One returns the value when exactly one claim matched.
func (v Value) One() (any, bool) {
	if len(v.values) != 1 {
		return nil, false
	}
	return v.values[0], true
}

// All returns every matched value in insertion order.
func (v Value) All() []any {
	return slices.Clone(v.values)
}
