// Package hvers computes the next semantic version of a Git repository.
//
// This file contains code adapted from pulumictl (https://github.com/pulumi/pulumictl)
// which is licensed under the Apache License 2.0.
package hvers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blang/semver"
)

// Flavor is a language ecosystem's spelling of a version string
type Flavor string

const (
	FlavorSemVer     Flavor = "semver"
	FlavorPython     Flavor = "python"
	FlavorJavaScript Flavor = "javascript"
	FlavorDotNet     Flavor = "dotnet"
	FlavorGo         Flavor = "go"
)

// ParseFlavor accepts the flavor names and their common aliases
func ParseFlavor(s string) (Flavor, error) {
	switch strings.ToLower(s) {
	case "generic", "semver", "":
		return FlavorSemVer, nil
	case "python":
		return FlavorPython, nil
	case "javascript", "js", "node":
		return FlavorJavaScript, nil
	case "dotnet", ".net", "csharp":
		return FlavorDotNet, nil
	case "go", "golang":
		return FlavorGo, nil
	default:
		return "", fmt.Errorf("unknown language %q", s)
	}
}

// Format renders v for the given ecosystem
func Format(v semver.Version, flavor Flavor) string {
	switch flavor {
	case FlavorJavaScript, FlavorGo:
		return "v" + v.String()
	case FlavorPython:
		return pythonVersion(v)
	default:
		return v.String()
	}
}

var pythonPrePrefixes = map[string]string{
	"dev":   ".dev",
	"alpha": "a",
	"beta":  "b",
	"rc":    "rc",
}

// pythonVersion maps a semantic version onto PEP 440. Known pre-release
// labels become pre/dev segments numbered by their first numeric identifier;
// anything else, plus a dirty marker, goes into the local segment. Commit
// hashes in build metadata are dropped to avoid confusion with build numbers.
func pythonVersion(v semver.Version) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)

	var local []string
	if len(v.Pre) > 0 {
		if prefix, ok := pythonPrePrefixes[v.Pre[0].VersionStr]; ok && !v.Pre[0].IsNum {
			b.WriteString(prefix)
			b.WriteString(pythonPreNumber(v.Pre[1:]))
		} else {
			for _, pre := range v.Pre {
				local = append(local, pre.String())
			}
		}
	}

	for _, build := range v.Build {
		if build == "dirty" {
			local = append(local, build)
		}
	}

	if len(local) > 0 {
		b.WriteString("+")
		b.WriteString(strings.Join(local, "."))
	}
	return b.String()
}

func pythonPreNumber(rest []semver.PRVersion) string {
	for _, pre := range rest {
		if pre.IsNum {
			return strconv.FormatUint(pre.VersionNum, 10)
		}
	}
	// PEP 440 requires a number
	return "0"
}
