package filter

import (
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/hxsam/appifi/internal/errs"
)

// ParseSize parses a size such as 100, 100K, 1.5G, 10MB or 4KiB into bytes.
// A bare K, M, G or T suffix is a power of 1024, as in rsync; spelled-out
// units follow their usual meaning (KB is 1000, KiB is 1024).
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errs.New(errs.EINVAL, "parse size", s, "empty size")
	}
	switch s[len(s)-1] {
	case 'K', 'k', 'M', 'm', 'G', 'g', 'T', 't':
		s += "iB"
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, errs.Wrap(errs.EINVAL, "parse size", s, err)
	}
	if n > math.MaxInt64 {
		return 0, errs.New(errs.EINVAL, "parse size", s, "size out of range")
	}
	return int64(n), nil
}
