// Package templates finds numbered template directories and resolves the URL
// each one is served under.
package templates

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

var dirPattern = regexp.MustCompile(`^\d+-.+`)

// IsTemplateDir reports whether name follows the <number>-<label> convention.
func IsTemplateDir(name string) bool {
	return dirPattern.MatchString(name)
}

// Discover returns the template directories directly under root, ordered by
// their numeric prefix.
func Discover(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() && IsTemplateDir(entry.Name()) {
			dirs = append(dirs, entry.Name())
		}
	}

	sort.SliceStable(dirs, func(i, j int) bool {
		return comparePrefix(prefix(dirs[i]), prefix(dirs[j])) < 0
	})

	return dirs, nil
}

func prefix(name string) string {
	digits, _, _ := strings.Cut(name, "-")
	return digits
}

// comparePrefix compares two digit strings numerically without parsing them,
// so arbitrarily long prefixes cannot overflow.
func comparePrefix(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
