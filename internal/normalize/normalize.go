// Package normalize provides type-safe string-to-enum canonicalization.
// Configuration enums (log levels, backtrace modes, output formats) accept
// arbitrary user casing and whitespace; a Normalizer folds raw input onto the
// canonical value set and keeps the valid keys around for error messages.
package normalize

import (
	"fmt"
	"sort"
	"strings"
)

// Normalizer maps raw user strings onto a canonical enum value set.
type Normalizer[T comparable] struct {
	values   map[string]T
	fallback T
	keys     []string
}

// New builds a normalizer from canonical key->value pairs. Keys are folded
// (lowercased, trimmed) once up front; fallback is returned for unknown input.
func New[T comparable](values map[string]T, fallback T) *Normalizer[T] {
	folded := make(map[string]T, len(values))
	keys := make([]string, 0, len(values))
	for k, v := range values {
		fk := fold(k)
		folded[fk] = v
		keys = append(keys, fk)
	}
	sort.Strings(keys)
	return &Normalizer[T]{values: folded, fallback: fallback, keys: keys}
}

// Normalize folds raw input and returns the canonical value, or the fallback
// when the input is not recognized.
func (n *Normalizer[T]) Normalize(raw string) T {
	if v, ok := n.values[fold(raw)]; ok {
		return v
	}
	return n.fallback
}

// NormalizeStrict folds raw input and errors on unrecognized values, listing
// the valid options.
func (n *Normalizer[T]) NormalizeStrict(raw string) (T, error) {
	if v, ok := n.values[fold(raw)]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid value %q, valid options: %v", raw, n.keys)
}

// ValidKeys returns the sorted canonical keys.
func (n *Normalizer[T]) ValidKeys() []string {
	out := make([]string, len(n.keys))
	copy(out, n.keys)
	return out
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
