package hvers

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration, usually .hvers.yaml
type Config struct {
	Tags          TagsConfig          `yaml:"tags"`
	Traversal     TraversalMode       `yaml:"traversal"`
	MaxDepth      int                 `yaml:"maxDepth"`
	Presentation  PresentationKind    `yaml:"presentation"`
	Timeout       time.Duration       `yaml:"timeout"`
	BuildMetadata BuildMetadataConfig `yaml:"buildMetadata"`
	Fallback      RuleConfig          `yaml:"fallback"`
	Rules         []RuleConfig        `yaml:"rules"`
	Branches      []BranchConfig      `yaml:"branches"`
}

// TagsConfig selects the tags that mark a prior version
type TagsConfig struct {
	// Pattern is a regex over the short tag name (e.g. '^sdk/')
	Pattern string `yaml:"pattern"`
	// Glob is a doublestar glob over the short tag name (e.g. 'v*')
	Glob string `yaml:"glob"`
	// PreRelease considers tags with a pre-release part
	PreRelease bool `yaml:"prerelease"`
}

// BuildMetadataConfig controls metadata appended to untagged builds
type BuildMetadataConfig struct {
	// Commit appends the short commit hash when the height is above zero
	Commit bool `yaml:"commit"`
	// Dirty appends "dirty" when the worktree has changes
	Dirty bool `yaml:"dirty"`
}

// RuleConfig is one height rule. Height is ignored for the fallback.
type RuleConfig struct {
	Height int    `yaml:"height"`
	Action string `yaml:"action"`
	Label  string `yaml:"label"`
}

// BranchConfig overrides the rules on branches matching a glob
type BranchConfig struct {
	Match    string       `yaml:"match"`
	Fallback RuleConfig   `yaml:"fallback"`
	Rules    []RuleConfig `yaml:"rules"`
}

// DefaultConfig returns a Config with sensible defaults: an exact tag keeps
// its version and any commit past it bumps the patch.
func DefaultConfig() *Config {
	return &Config{
		Traversal:    FirstParent,
		Presentation: PresentationValue,
		Timeout:      time.Minute,
		BuildMetadata: BuildMetadataConfig{
			Commit: true,
			Dirty:  true,
		},
		Fallback: RuleConfig{Action: NoChange.String()},
		Rules: []RuleConfig{
			{Height: 0, Action: NoChange.String()},
			{Height: 1, Action: BumpPatch.String()},
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of DefaultConfig
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML on top of DefaultConfig and validates the result
func ParseConfig(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing config: %w", ErrInvalidConfig, err)
	}

	config := DefaultConfig()
	if len(raw) == 0 {
		return config, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "yaml",
		ErrorUnused: true,
		ZeroFields:  true,
		Result:      config,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: decoding config: %w", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.MaxDepth < 0 {
		return fmt.Errorf("%w: maxDepth must not be negative", ErrInvalidConfig)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}
	if _, err := c.TagMatcher(); err != nil {
		return err
	}
	if _, err := c.RuleSet(); err != nil {
		return err
	}
	return nil
}

// TagMatcher builds the reference predicate from the tags section
func (c *Config) TagMatcher() (*TagMatcher, error) {
	return NewTagMatcher(c.Tags.Pattern, c.Tags.Glob, c.Tags.PreRelease)
}

// RuleSet builds the default and branch rule dictionaries
func (c *Config) RuleSet() (*RuleSet, error) {
	def, err := buildDictionary(c.Rules, c.Fallback)
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}

	branches := make([]BranchRules, 0, len(c.Branches))
	for _, b := range c.Branches {
		if b.Match == "" {
			return nil, fmt.Errorf("%w: branch rules need a match glob", ErrInvalidConfig)
		}
		fallback := b.Fallback
		if fallback == (RuleConfig{}) {
			fallback = RuleConfig{Action: NoChange.String()}
		}
		dict, err := buildDictionary(b.Rules, fallback)
		if err != nil {
			return nil, fmt.Errorf("branch %q rules: %w", b.Match, err)
		}
		branches = append(branches, BranchRules{Match: b.Match, Rules: dict})
	}

	return NewRuleSet(def, branches...)
}

func buildDictionary(rules []RuleConfig, fallback RuleConfig) (*RuleDictionary, error) {
	fallbackRule, err := fallback.rule()
	if err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}

	entries := make([]RuleEntry, 0, len(rules))
	for _, r := range rules {
		rule, err := r.rule()
		if err != nil {
			return nil, fmt.Errorf("height %d: %w", r.Height, err)
		}
		entries = append(entries, RuleEntry{Height: r.Height, Rule: rule})
	}

	return NewRuleDictionary(entries, fallbackRule)
}

func (r RuleConfig) rule() (HeightRule, error) {
	if r.Action == "" {
		return HeightRule{}, fmt.Errorf("%w: action is required", ErrInvalidRuleAction)
	}
	action, err := ParseAction(r.Action)
	if err != nil {
		return HeightRule{}, err
	}
	return HeightRule{Action: action, Label: r.Label}, nil
}
