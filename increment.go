package hvers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blang/semver"
)

// HeightPlaceholder is replaced by the decimal height in pre-release labels
const HeightPlaceholder = "{height}"

// Apply folds rule into base at the given height and returns a new version.
//
// Bumps increment one component by exactly one, zero the less significant
// components and drop pre-release and build metadata. SetPreRelease keeps
// the numeric components and build metadata and replaces the pre-release.
func Apply(base semver.Version, rule HeightRule, height int) (semver.Version, error) {
	if height < 0 {
		return semver.Version{}, fmt.Errorf("%w: negative height %d", ErrInvalidRuleAction, height)
	}

	next := cloneVersion(base)

	switch rule.Action {
	case NoChange:
		return next, nil
	case BumpPatch:
		return semver.Version{Major: base.Major, Minor: base.Minor, Patch: base.Patch + 1}, nil
	case BumpMinor:
		return semver.Version{Major: base.Major, Minor: base.Minor + 1}, nil
	case BumpMajor:
		return semver.Version{Major: base.Major + 1}, nil
	case SetPreRelease:
		pre, err := expandPreRelease(rule.Label, height)
		if err != nil {
			return semver.Version{}, err
		}
		next.Pre = pre
		return next, nil
	default:
		return semver.Version{}, fmt.Errorf("%w: %s", ErrInvalidRuleAction, rule.Action)
	}
}

// WithBuildMetadata returns a copy of v with extra build identifiers appended
func WithBuildMetadata(v semver.Version, meta ...string) (semver.Version, error) {
	next := cloneVersion(v)
	for _, m := range meta {
		if m == "" {
			continue
		}
		build, err := semver.NewBuildVersion(m)
		if err != nil {
			return semver.Version{}, fmt.Errorf("build metadata %q: %w", m, err)
		}
		next.Build = append(next.Build, build)
	}
	return next, nil
}

func expandPreRelease(template string, height int) ([]semver.PRVersion, error) {
	if template == "" {
		return nil, fmt.Errorf("%w: empty pre-release label", ErrInvalidRuleAction)
	}

	label := strings.ReplaceAll(template, HeightPlaceholder, strconv.Itoa(height))

	parts := strings.Split(label, ".")
	pre := make([]semver.PRVersion, 0, len(parts))
	for _, part := range parts {
		v, err := semver.NewPRVersion(part)
		if err != nil {
			return nil, fmt.Errorf("%w: label %q expands to %q: %w", ErrInvalidRuleAction, template, label, err)
		}
		pre = append(pre, v)
	}
	return pre, nil
}

func cloneVersion(v semver.Version) semver.Version {
	next := v
	if v.Pre != nil {
		next.Pre = append([]semver.PRVersion(nil), v.Pre...)
	}
	if v.Build != nil {
		next.Build = append([]string(nil), v.Build...)
	}
	return next
}
