package update

import (
	"strconv"
	"strings"
)

// tagPrefixes are stripped from release tags before parsing.
var tagPrefixes = []string{"v", "cabplanner-"}

// component is one dot-separated piece of a version. Components compare
// numerically when both sides are numeric, lexicographically otherwise.
type component struct {
	num     int
	str     string
	numeric bool
}

// Version represents a parsed release identifier. Parsing never fails:
// a string that does not look like a version becomes a single string
// component, so comparisons stay total.
type Version struct {
	components []component
	raw        string
}

// NormalizeTag strips surrounding whitespace, a leading "v" and the
// product-name prefix from a release tag.
func NormalizeTag(s string) string {
	cleaned := strings.TrimSpace(s)
	for _, prefix := range tagPrefixes {
		cleaned = strings.TrimPrefix(cleaned, prefix)
	}
	return cleaned
}

// ParseVersion parses a version string into an ordered component sequence.
// A prerelease tag (after "-" or "+") is kept as a trailing string
// component; it makes the version compare older than the same numeric
// prefix without one.
func ParseVersion(s string) Version {
	cleaned := NormalizeTag(s)
	if cleaned == "" {
		return Version{components: []component{{str: s}}, raw: s}
	}

	prerelease := ""
	if idx := strings.IndexAny(cleaned, "-+"); idx >= 0 {
		prerelease = cleaned[idx+1:]
		cleaned = cleaned[:idx]
	}
	if cleaned == "" {
		return Version{components: []component{{str: s}}, raw: s}
	}

	var components []component
	for _, part := range strings.Split(cleaned, ".") {
		if n, err := strconv.Atoi(part); err == nil {
			components = append(components, component{num: n, numeric: true})
		} else {
			components = append(components, component{str: part})
		}
	}
	if prerelease != "" {
		components = append(components, component{str: prerelease})
	}

	return Version{components: components, raw: s}
}

// String returns the original unparsed version string.
func (v Version) String() string {
	return v.raw
}

// Compare returns -1, 0 or 1 as v sorts before, equal to or after other.
// A trailing string component (prerelease tag) sorts before the absence of
// a component; a trailing numeric component sorts after.
func (v Version) Compare(other Version) int {
	a, b := v.components, other.components
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		switch {
		case i >= len(a):
			return -extraComponentSign(b[i])
		case i >= len(b):
			return extraComponentSign(a[i])
		}
		if c := compareComponent(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// IsNewer reports whether candidate is a strictly newer version than current.
func IsNewer(current, candidate string) bool {
	return ParseVersion(candidate).Compare(ParseVersion(current)) > 0
}

func compareComponent(a, b component) int {
	if a.numeric && b.numeric {
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	}
	return strings.Compare(a.text(), b.text())
}

// extraComponentSign decides how a component with no counterpart compares:
// a string component (prerelease tag) makes the longer version older, a
// numeric one makes it newer.
func extraComponentSign(c component) int {
	if c.numeric {
		return 1
	}
	return -1
}

func (c component) text() string {
	if c.numeric {
		return strconv.Itoa(c.num)
	}
	return c.str
}
