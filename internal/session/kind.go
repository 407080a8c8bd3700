package session

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindDuckDB     Kind = "DUCKDB"
	KindMotherDuck Kind = "MOTHERDUCK"
)

// ParseKind normalizes a caller-supplied database kind. Matching is
// case-insensitive and ignores surrounding whitespace.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(s))); k {
	case KindDuckDB, KindMotherDuck:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q (expected DuckDB or MotherDuck)", ErrUnsupportedKind, s)
	}
}

func (k Kind) RequiresCredential() bool {
	return k == KindMotherDuck
}
