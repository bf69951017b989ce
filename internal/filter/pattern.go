package filter

import (
	"regexp"
	"strings"

	"github.com/hxsam/appifi/internal/errs"
)

// compiledPattern is a glob compiled to a regexp over slash-separated
// relative paths.
type compiledPattern struct {
	re       *regexp.Regexp
	original string
	anchored bool // matched from the source directory down
	dirOnly  bool // trailing slash: directories only
}

// compilePattern compiles an rsync-style glob. A pattern with a leading or
// inner slash is anchored at the job's source directory; otherwise it
// matches the last path components.
func compilePattern(pattern string) (*compiledPattern, error) {
	cp := &compiledPattern{original: pattern}

	if p, ok := strings.CutSuffix(pattern, "/"); ok {
		cp.dirOnly = true
		pattern = p
	}
	if p, ok := strings.CutPrefix(pattern, "/"); ok {
		cp.anchored = true
		pattern = p
	} else if strings.Contains(pattern, "/") {
		cp.anchored = true
	}
	if pattern == "" {
		return nil, errs.New(errs.EINVAL, "filter", cp.original, "empty pattern")
	}

	reStr := globToRegex(pattern)
	if cp.anchored {
		reStr = "^" + reStr + "$"
	} else {
		reStr = "(^|/)" + reStr + "$"
	}

	re, err := regexp.Compile(reStr)
	if err != nil {
		return nil, errs.Wrap(errs.EINVAL, "filter", cp.original, err)
	}
	cp.re = re
	return cp, nil
}

// match reports whether relPath matches.
func (cp *compiledPattern) match(relPath string, isDir bool) bool {
	if cp.dirOnly && !isDir {
		return false
	}
	return cp.re.MatchString(relPath)
}

// globToRegex translates * (within a component), ** (across components),
// ? and [...] classes. Everything else is literal.
func globToRegex(pattern string) string {
	var b strings.Builder
	for rest := pattern; rest != ""; {
		switch {
		case strings.HasPrefix(rest, "**/"):
			b.WriteString("(.*/)?")
			rest = rest[3:]
		case strings.HasPrefix(rest, "**"):
			b.WriteString(".*")
			rest = rest[2:]
		case rest[0] == '*':
			b.WriteString("[^/]*")
			rest = rest[1:]
		case rest[0] == '?':
			b.WriteString("[^/]")
			rest = rest[1:]
		case rest[0] == '[':
			cls, n := charClass(rest)
			if n == 0 {
				b.WriteString(`\[`)
				rest = rest[1:]
				continue
			}
			b.WriteString(cls)
			rest = rest[n:]
		default:
			b.WriteString(regexp.QuoteMeta(rest[:1]))
			rest = rest[1:]
		}
	}
	return b.String()
}

// charClass reads a bracket expression at the start of s and returns its
// regexp form and the bytes consumed, or 0 when the bracket is unclosed. A
// leading ! negates, and a ] right after the opening bracket is literal.
func charClass(s string) (string, int) {
	j := 1
	if j < len(s) && s[j] == '!' {
		j++
	}
	if j < len(s) && s[j] == ']' {
		j++
	}
	end := strings.IndexByte(s[j:], ']')
	if end < 0 {
		return "", 0
	}
	end += j
	body := s[1:end]
	if b, ok := strings.CutPrefix(body, "!"); ok {
		body = "^" + b
	}
	return "[" + body + "]", end + 1
}
