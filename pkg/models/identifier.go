package models

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern is the allow-list for domain, table, and field names.
// Every identifier that ends up inside a schema-definition or data statement
// must match it; nothing model- or reviewer-supplied is interpolated raw.
var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

const maxIdentifierLen = 64

// NormalizeIdentifier lowercases the input, converts spaces and dashes to
// underscores, and verifies the result against the identifier allow-list.
func NormalizeIdentifier(name string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	if s == "" {
		return "", fmt.Errorf("identifier is empty")
	}
	if len(s) > maxIdentifierLen {
		return "", fmt.Errorf("identifier %q exceeds %d characters", s, maxIdentifierLen)
	}
	if !identifierPattern.MatchString(s) {
		return "", fmt.Errorf("identifier %q contains characters outside [a-z0-9_]", s)
	}
	return s, nil
}

// IsValidIdentifier reports whether name already satisfies the allow-list.
func IsValidIdentifier(name string) bool {
	return len(name) <= maxIdentifierLen && identifierPattern.MatchString(name)
}
