package hvers

import (
	"fmt"
	"slices"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Action is a version adjustment applied by a HeightRule
type Action int

const (
	NoChange Action = iota
	BumpPatch
	BumpMinor
	BumpMajor
	// SetPreRelease replaces the pre-release with an expanded label template
	SetPreRelease
)

var actionNames = map[Action]string{
	NoChange:      "no-change",
	BumpPatch:     "bump-patch",
	BumpMinor:     "bump-minor",
	BumpMajor:     "bump-major",
	SetPreRelease: "set-prerelease",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Valid reports whether a is one of the supported actions
func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

// ParseAction parses the text form of an action, e.g. "bump-minor"
func ParseAction(s string) (Action, error) {
	for action, name := range actionNames {
		if name == s {
			return action, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRuleAction, s)
}

func (a Action) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRuleAction, int(a))
	}
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	action, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = action
	return nil
}

// HeightRule describes how to adjust a version at a given height.
// Label is a pre-release template used by SetPreRelease; "{height}" expands
// to the height, so "alpha.{height}" at height 7 yields "alpha.7".
type HeightRule struct {
	Action Action `json:"action"`
	Label  string `json:"label,omitempty"`
}

func (r HeightRule) String() string {
	if r.Action == SetPreRelease {
		return fmt.Sprintf("%s(%s)", r.Action, r.Label)
	}
	return r.Action.String()
}

// Validate checks the action and, for SetPreRelease, that the label expands
// to valid pre-release identifiers. Other actions must not carry a label.
func (r HeightRule) Validate() error {
	if !r.Action.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidRuleAction, int(r.Action))
	}
	if r.Action != SetPreRelease {
		if r.Label != "" {
			return fmt.Errorf("%w: label %q requires %s", ErrInvalidRuleAction, r.Label, SetPreRelease)
		}
		return nil
	}
	// Probe single and multi digit heights to catch templates such as
	// "0{height}" that only break for some values.
	for _, height := range []int{0, 1, 10} {
		if _, err := expandPreRelease(r.Label, height); err != nil {
			return err
		}
	}
	return nil
}

// RuleEntry pairs a height threshold with its rule
type RuleEntry struct {
	Height int        `json:"height"`
	Rule   HeightRule `json:"rule"`
}

// RuleDictionary maps heights to rules with threshold semantics: the rule at
// the greatest configured height not above the queried height applies. It is
// immutable after construction and safe for concurrent use.
type RuleDictionary struct {
	keys     []int
	rules    map[int]HeightRule
	fallback HeightRule
}

// NewRuleDictionary validates the entries and builds a dictionary. The
// fallback applies to heights below every configured key.
func NewRuleDictionary(entries []RuleEntry, fallback HeightRule) (*RuleDictionary, error) {
	if err := fallback.Validate(); err != nil {
		return nil, fmt.Errorf("fallback rule: %w", err)
	}

	d := &RuleDictionary{
		keys:     make([]int, 0, len(entries)),
		rules:    make(map[int]HeightRule, len(entries)),
		fallback: fallback,
	}

	for _, entry := range entries {
		if entry.Height < 0 {
			return nil, fmt.Errorf("%w: %d", ErrNegativeHeightKey, entry.Height)
		}
		if _, exists := d.rules[entry.Height]; exists {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateHeightKey, entry.Height)
		}
		if err := entry.Rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule at height %d: %w", entry.Height, err)
		}
		d.rules[entry.Height] = entry.Rule
		d.keys = append(d.keys, entry.Height)
	}

	sort.Ints(d.keys)
	return d, nil
}

// Lookup returns the rule for height. It never fails: heights below every
// key, including negative ones, resolve to the fallback.
func (d *RuleDictionary) Lookup(height int) HeightRule {
	if rule, ok := d.rules[height]; ok {
		return rule
	}

	// index of the first key above height
	i := sort.Search(len(d.keys), func(i int) bool { return d.keys[i] > height })
	if i == 0 {
		return d.fallback
	}
	return d.rules[d.keys[i-1]]
}

// Entries lists the configured rules ordered by height
func (d *RuleDictionary) Entries() []RuleEntry {
	entries := make([]RuleEntry, 0, len(d.keys))
	for _, key := range d.keys {
		entries = append(entries, RuleEntry{Height: key, Rule: d.rules[key]})
	}
	return entries
}

func (d *RuleDictionary) Fallback() HeightRule {
	return d.fallback
}

func (d *RuleDictionary) Len() int {
	return len(d.keys)
}

// BranchRules overrides the default dictionary on branches matching a glob
type BranchRules struct {
	Match string
	Rules *RuleDictionary
}

// RuleSet holds the default dictionary and ordered branch overrides
type RuleSet struct {
	Default  *RuleDictionary
	Branches []BranchRules
}

func NewRuleSet(def *RuleDictionary, branches ...BranchRules) (*RuleSet, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: default rules are required", ErrInvalidConfig)
	}
	for _, b := range branches {
		if b.Rules == nil {
			return nil, fmt.Errorf("%w: branch %q has no rules", ErrInvalidConfig, b.Match)
		}
		if !doublestar.ValidatePattern(b.Match) {
			return nil, fmt.Errorf("%w: invalid branch glob %q", ErrInvalidConfig, b.Match)
		}
	}
	return &RuleSet{Default: def, Branches: slices.Clone(branches)}, nil
}

// ForBranch returns the first override matching branch, or the default.
// An empty branch (detached HEAD) always gets the default.
func (s *RuleSet) ForBranch(branch string) *RuleDictionary {
	if branch == "" {
		return s.Default
	}
	for _, b := range s.Branches {
		if ok, _ := doublestar.Match(b.Match, branch); ok {
			return b.Rules
		}
	}
	return s.Default
}
