// Package enums holds the closed string vocabularies persisted by the vault.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

func parse[T ~string](kind string, known []T, value string) (T, error) {
	candidate := T(strings.ToUpper(strings.TrimSpace(value)))
	if slices.Contains(known, candidate) {
		return candidate, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
