// Package underlying implements the create-with-policy primitives that admit
// new directories and files into a tagged tree.
package underlying

import (
	"fmt"
	"strings"
)

// Policy says what to do when a create collides with an existing entry.
type Policy string

const (
	// None fails with EEXIST on any collision.
	None Policy = ""
	// Parents creates missing ancestors and accepts an existing directory.
	// For files it keeps the existing file.
	Parents Policy = "parents"
	// Rename picks the lowest free "<base> (<n>)" name.
	Rename Policy = "rename"
	// Replace overwrites an existing file. Not valid for directories.
	Replace Policy = "replace"
	// Skip leaves the collision alone. Only meaningful to a copy task; the
	// primitives reject it.
	Skip Policy = "skip"
)

var policies = []Policy{None, Parents, Rename, Replace, Skip}

func (p Policy) String() string {
	if p == None {
		return "none"
	}
	return string(p)
}

// ParsePolicy parses a policy name. The empty string and "none" both parse
// to None.
func ParsePolicy(s string) (Policy, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "none" {
		return None, nil
	}
	for _, p := range policies {
		if string(p) == s {
			return p, nil
		}
	}
	return None, fmt.Errorf("unknown policy %q (valid: none, parents, rename, replace, skip)", s)
}

// ValidName reports whether name can be used as a single path component.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." || len(name) > 255 {
		return false
	}
	return !strings.ContainsAny(name, "/\x00")
}
