package config

import "strings"

// Error is returned by Validate when required settings are missing or
// malformed.  It is fatal at startup.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}
