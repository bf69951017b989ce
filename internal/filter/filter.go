// Package filter decides which source entries a copy or move admits, using
// rsync-style include and exclude rules evaluated against the entry's path
// relative to the job's source directory.
package filter

import (
	"fmt"
	"strings"

	"github.com/hxsam/appifi/internal/stats"
	"github.com/hxsam/appifi/internal/xstat"
)

// Rule is a single include or exclude rule.
type Rule struct {
	Pattern *compiledPattern
	Include bool
}

func (r Rule) String() string {
	if r.Include {
		return "+ " + r.Pattern.original
	}
	return "- " + r.Pattern.original
}

// Chain is an ordered list of rules plus file size bounds. The first rule
// that matches decides; an entry no rule matches is admitted.
type Chain struct {
	rules   []Rule
	minSize int64
	maxSize int64
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude appends an exclude rule.
func (c *Chain) AddExclude(pattern string) error {
	return c.add(pattern, false)
}

// AddInclude appends an include rule.
func (c *Chain) AddInclude(pattern string) error {
	return c.add(pattern, true)
}

func (c *Chain) add(pattern string, include bool) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, Rule{Pattern: cp, Include: include})
	return nil
}

// SetMinSize drops files smaller than n bytes. Zero disables the bound.
func (c *Chain) SetMinSize(n int64) {
	c.minSize = n
}

// SetMaxSize drops files larger than n bytes. Zero disables the bound.
func (c *Chain) SetMaxSize(n int64) {
	c.maxSize = n
}

// Empty reports whether the chain has no rules and no size bounds.
func (c *Chain) Empty() bool {
	return len(c.rules) == 0 && c.minSize == 0 && c.maxSize == 0
}

// Admit reports whether the entry x, found at rel below the job's source
// directory, should be copied. Size bounds apply to files only.
func (c *Chain) Admit(rel string, x xstat.XStat) bool {
	isDir := x.IsDir()
	if !isDir {
		if c.minSize > 0 && x.Size < c.minSize {
			return false
		}
		if c.maxSize > 0 && x.Size > c.maxSize {
			return false
		}
	}
	for _, rule := range c.rules {
		if rule.Pattern.match(rel, isDir) {
			return rule.Include
		}
	}
	return true
}

// String lists the rules in evaluation order, for logs.
func (c *Chain) String() string {
	parts := make([]string, 0, len(c.rules)+2)
	for _, r := range c.rules {
		parts = append(parts, r.String())
	}
	if c.minSize > 0 {
		parts = append(parts, fmt.Sprintf("min-size %s", stats.FormatBytes(c.minSize)))
	}
	if c.maxSize > 0 {
		parts = append(parts, fmt.Sprintf("max-size %s", stats.FormatBytes(c.maxSize)))
	}
	return strings.Join(parts, ", ")
}
