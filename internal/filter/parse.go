package filter

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/hxsam/appifi/internal/errs"
)

// LoadFile appends the rules in path to the chain. One rule per line:
//
//	- pattern   exclude
//	+ pattern   include
//	pattern     exclude
//	# comment
//
// Blank lines are ignored.
func (c *Chain) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.FromOS("open filter file", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		include, pattern := false, line
		if rest, ok := strings.CutPrefix(line, "+ "); ok {
			include, pattern = true, strings.TrimSpace(rest)
		} else if rest, ok := strings.CutPrefix(line, "- "); ok {
			pattern = strings.TrimSpace(rest)
		}

		if err := c.add(pattern, include); err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNum, err)
		}
	}
	return scanner.Err()
}
