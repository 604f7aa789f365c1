package hvers

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/blang/semver"
	"github.com/bmatcuk/doublestar/v4"
)

// TagMatcher decides which tags mark a prior version. A tag matches when it
// passes every configured filter and its name parses as a semantic version
// once module prefixes ("sdk/") and a leading "v" are stripped.
type TagMatcher struct {
	// Pattern is a regex over the short tag name
	Pattern *regexp.Regexp

	// Glob is a doublestar pattern over the short tag name
	Glob string

	// IncludePreRelease considers tags such as v1.2.0-rc.1
	IncludePreRelease bool

	// Filter is an arbitrary predicate over the short tag name
	Filter func(string) bool
}

// NewTagMatcher compiles a regex and validates a glob; either may be empty
func NewTagMatcher(pattern, glob string, includePreRelease bool) (*TagMatcher, error) {
	m := &TagMatcher{Glob: glob, IncludePreRelease: includePreRelease}

	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid tag pattern: %w", ErrInvalidConfig, err)
		}
		m.Pattern = re
	}

	if glob != "" && !doublestar.ValidatePattern(glob) {
		return nil, fmt.Errorf("%w: invalid tag glob %q", ErrInvalidConfig, glob)
	}

	return m, nil
}

// Match applies the name filters to a short tag name
func (m *TagMatcher) Match(tag string) bool {
	if m.Pattern != nil && !m.Pattern.MatchString(tag) {
		return false
	}
	if m.Glob != "" {
		if ok, err := doublestar.Match(m.Glob, tag); err != nil || !ok {
			return false
		}
	}
	if m.Filter != nil && !m.Filter(tag) {
		return false
	}
	return true
}

// Version returns the highest version among the commit's matching tags.
// Equal versions are broken by the lexically smallest tag name.
func (m *TagMatcher) Version(c Commit) (semver.Version, string, bool) {
	var (
		best    semver.Version
		bestTag string
		found   bool
	)

	for _, tag := range c.Tags() {
		if !m.Match(tag) {
			continue
		}

		version, err := semver.Parse(stripModuleTagPrefixes(tag))
		if err != nil {
			continue
		}
		if len(version.Pre) > 0 && !m.IncludePreRelease {
			continue
		}

		if !found || version.GT(best) || (version.EQ(best) && tag < bestTag) {
			best, bestTag, found = version, tag, true
		}
	}

	return best, bestTag, found
}

// Predicate reports whether a commit carries at least one matching tag
func (m *TagMatcher) Predicate() Predicate {
	return func(c Commit) bool {
		_, _, ok := m.Version(c)
		return ok
	}
}

func stripModuleTagPrefixes(tag string) string {
	_, versionComponent := path.Split(tag)
	return strings.TrimPrefix(versionComponent, "v")
}
