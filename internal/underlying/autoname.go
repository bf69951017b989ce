package underlying

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var suffixRe = regexp.MustCompile(`^(.*) \((\d+)\)$`)

// Autoname returns the lowest "<base> (<n>)" name, n >= 2, that is not in
// taken. With keepExt the extension stays at the end: "a.txt" becomes
// "a (2).txt". An existing " (n)" suffix on name is stripped first.
func Autoname(name string, taken []string, keepExt bool) string {
	set := make(map[string]struct{}, len(taken))
	for _, t := range taken {
		set[t] = struct{}{}
	}

	base, ext := name, ""
	if keepExt {
		base, ext = splitExt(name)
	}
	if m := suffixRe.FindStringSubmatch(base); m != nil && m[1] != "" {
		base = m[1]
	}

	for n := 2; ; n++ {
		candidate := base + " (" + strconv.Itoa(n) + ")" + ext
		if _, ok := set[candidate]; !ok {
			return candidate
		}
	}
}

// splitExt splits name before its extension. Dot files such as ".profile"
// have no extension.
func splitExt(name string) (string, string) {
	ext := filepath.Ext(name)
	if ext == "" || ext == name || strings.TrimSuffix(name, ext) == "" {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}
