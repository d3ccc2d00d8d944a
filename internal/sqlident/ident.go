// Package sqlident validates identifiers before they are interpolated into
// generated SQL. Identifiers cannot be passed as bound parameters, so this
// package is the sole injection defense for table and column names.
package sqlident

import (
	"errors"
	"fmt"
	"strings"
)

// MaxLength matches the Postgres identifier limit, which is also within the
// limits of every supported warehouse dialect.
const MaxLength = 63

// ErrInvalidIdentifier is returned for any name that may not be used as a
// table or column identifier in generated SQL.
var ErrInvalidIdentifier = errors.New("invalid SQL identifier")

// reservedWords are names that look like SQL keywords. Using them as bare
// identifiers is rejected outright rather than quoted.
var reservedWords = map[string]struct{}{
	"all": {}, "alter": {}, "and": {}, "any": {}, "as": {}, "asc": {},
	"between": {}, "by": {}, "case": {}, "cast": {}, "check": {},
	"column": {}, "constraint": {}, "create": {}, "cross": {},
	"current_date": {}, "current_time": {}, "current_timestamp": {},
	"default": {}, "delete": {}, "desc": {}, "distinct": {}, "drop": {},
	"else": {}, "end": {}, "except": {}, "exists": {}, "false": {},
	"from": {}, "full": {}, "grant": {}, "group": {}, "having": {},
	"in": {}, "index": {}, "inner": {}, "insert": {}, "intersect": {},
	"into": {}, "is": {}, "join": {}, "left": {}, "like": {}, "limit": {},
	"not": {}, "null": {}, "offset": {}, "on": {}, "or": {}, "order": {},
	"outer": {}, "primary": {}, "references": {}, "right": {}, "select": {},
	"set": {}, "table": {}, "then": {}, "to": {}, "true": {}, "truncate": {},
	"union": {}, "unique": {}, "update": {}, "user": {}, "using": {},
	"values": {}, "when": {}, "where": {}, "with": {},
}

// Sanitize validates and normalizes a table or column name. It accepts only
// ASCII letters, digits and underscore, starting with a letter or
// underscore, within MaxLength. Names are normalized to lower case. Any
// other input fails with ErrInvalidIdentifier.
func Sanitize(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidIdentifier)
	}
	if len(name) > MaxLength {
		return "", fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidIdentifier, truncate(name), MaxLength)
	}

	lower := strings.ToLower(name)
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return "", fmt.Errorf("%w: %q starts with a digit", ErrInvalidIdentifier, name)
			}
		default:
			return "", fmt.Errorf("%w: %q contains disallowed character %q", ErrInvalidIdentifier, name, string(c))
		}
	}

	if _, reserved := reservedWords[lower]; reserved {
		return "", fmt.Errorf("%w: %q is a reserved word", ErrInvalidIdentifier, name)
	}

	return lower, nil
}

func truncate(s string) string {
	if len(s) <= 32 {
		return s
	}
	return s[:32] + "..."
}
