package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/uuid"
	"github.com/jaxxstorm/hvers"
)

// Version will be set by build process
var Version = "dev"

// defaultConfigFile is read from the repository root when --config is not set
const defaultConfigFile = ".hvers.yaml"

// Exit codes
const (
	exitOK          = 0
	exitUsage       = 1
	exitCalculation = 2
	exitCancelled   = 3
)

type CLI struct {
	Commitish      string        `arg:"" optional:"" help:"Git commitish to analyze (default: HEAD)"`
	Repo           string        `short:"r" help:"Repository path (default: current directory)"`
	Config         string        `short:"c" help:"Configuration file (default: <repo>/.hvers.yaml when present)"`
	TagPattern     string        `help:"Regex pattern to filter tags (e.g., '^sdk/')"`
	TagGlob        string        `help:"Glob pattern to filter tags (e.g., 'v*')"`
	PreRelease     bool          `name:"prerelease" help:"Accept pre-release tags as references"`
	Traversal      string        `help:"Parent edges to follow: first-parent or all-parents"`
	Presentation   string        `help:"Result shape: value or complex"`
	Language       string        `short:"l" default:"generic" enum:"generic,semver,python,javascript,js,node,dotnet,.net,csharp,go,golang" help:"Output format"`
	JSON           bool          `short:"j" help:"Output as JSON"`
	Timeout        time.Duration `help:"Abort the calculation after this long (default from config: 1m)"`
	Branch         string        `help:"Branch whose rules apply (default: checked out branch)"`
	OmitCommitHash bool          `short:"o" help:"Omit commit hash from version"`
	AllowFallback  bool          `help:"Print 0.0.0-dev instead of failing when no version can be calculated"`
	ListRules      bool          `help:"Print the effective height rules and exit"`
	History        int           `help:"Print the first N ancestors of the commitish with their references and exit"`
	MetricsFile    string        `help:"Write Prometheus metrics to this textfile"`
	Verbose        bool          `short:"v" help:"Log calculation details to stderr"`
	ShowVersion    bool          `help:"Show version information" name:"version"`

	stdout io.Writer `kong:"-"`
	stderr io.Writer `kong:"-"`
}

func main() {
	var cli CLI

	kong.Parse(&cli,
		kong.Name("hvers"),
		kong.Description("Calculate the next semantic version from the height of a commit above its nearest version tag"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)

	err := cli.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

func (c *CLI) Run() error {
	if c.stdout == nil {
		c.stdout = os.Stdout
	}
	if c.stderr == nil {
		c.stderr = os.Stderr
	}

	if c.ShowVersion {
		return c.showVersion()
	}

	logger := newLogger(c.stderr, c.Verbose)

	repoPath, err := c.repoPath()
	if err != nil {
		return err
	}

	config, err := c.loadConfig(repoPath)
	if err != nil {
		return err
	}
	if err := c.applyFlags(config); err != nil {
		return err
	}

	opts, err := c.options(config)
	if err != nil {
		return err
	}

	if c.ListRules {
		return c.listRules(opts.Rules)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()

	repo, err := hvers.OpenRepository(repoPath)
	if err != nil {
		if c.AllowFallback {
			logger.Warn("using fallback version", "repo", repoPath, "error", err)
			return c.printFallback(config.Presentation)
		}
		return &hvers.StageError{Stage: hvers.StageTraversal, Height: -1, Err: err}
	}
	opts.Repository = repo

	if c.History > 0 {
		return c.printHistory(ctx, hvers.NewGitHistory(repo), opts.Commitish)
	}

	opts.Logger = logger
	if c.MetricsFile != "" {
		opts.Metrics = hvers.NewMetrics()
		defer func() {
			if err := opts.Metrics.WriteTextfile(c.MetricsFile); err != nil {
				logger.Warn("writing metrics", "path", c.MetricsFile, "error", err)
			}
		}()
	}

	result, err := hvers.Calculate(ctx, opts)
	if err != nil {
		if c.AllowFallback && hvers.IsNoReachableReference(err) {
			logger.Warn("using fallback version", "error", err)
			return c.printFallback(config.Presentation)
		}
		return err
	}

	return c.printResult(result, false)
}

func (c *CLI) showVersion() error {
	versionInfo := map[string]string{
		"version": Version,
		"name":    "hvers",
	}

	if c.JSON {
		return json.NewEncoder(c.stdout).Encode(versionInfo)
	}

	fmt.Fprintf(c.stdout, "hvers version %s\n", Version)
	return nil
}

func (c *CLI) repoPath() (string, error) {
	if c.Repo != "" {
		return c.Repo, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return wd, nil
}

func (c *CLI) loadConfig(repoPath string) (*hvers.Config, error) {
	if c.Config != "" {
		return hvers.LoadConfig(c.Config)
	}

	path := filepath.Join(repoPath, defaultConfigFile)
	if _, err := os.Stat(path); err != nil {
		return hvers.DefaultConfig(), nil
	}
	return hvers.LoadConfig(path)
}

// applyFlags overrides config values with the flags that were set
func (c *CLI) applyFlags(config *hvers.Config) error {
	if c.TagPattern != "" {
		config.Tags.Pattern = c.TagPattern
	}
	if c.TagGlob != "" {
		config.Tags.Glob = c.TagGlob
	}
	if c.PreRelease {
		config.Tags.PreRelease = true
	}
	if c.Traversal != "" {
		mode, err := hvers.ParseTraversalMode(c.Traversal)
		if err != nil {
			return err
		}
		config.Traversal = mode
	}
	if c.Presentation != "" {
		kind, err := hvers.ParsePresentationKind(c.Presentation)
		if err != nil {
			return err
		}
		config.Presentation = kind
	}
	if c.Timeout > 0 {
		config.Timeout = c.Timeout
	}
	if c.OmitCommitHash {
		config.BuildMetadata.Commit = false
	}
	if config.Timeout <= 0 {
		config.Timeout = hvers.DefaultConfig().Timeout
	}
	return config.Validate()
}

func (c *CLI) options(config *hvers.Config) (hvers.Options, error) {
	tags, err := config.TagMatcher()
	if err != nil {
		return hvers.Options{}, err
	}

	rules, err := config.RuleSet()
	if err != nil {
		return hvers.Options{}, err
	}

	commitish := "HEAD"
	if c.Commitish != "" {
		commitish = c.Commitish
	}

	return hvers.Options{
		Commitish:      plumbing.Revision(commitish),
		Tags:           tags,
		Traversal:      config.Traversal,
		MaxDepth:       config.MaxDepth,
		Rules:          rules,
		Branch:         c.Branch,
		Presentation:   config.Presentation,
		OmitCommitHash: !config.BuildMetadata.Commit,
		MarkDirty:      config.BuildMetadata.Dirty,
	}, nil
}

// report is the JSON document printed with --json
type report struct {
	Version      string             `json:"version"`
	Formatted    string             `json:"formatted"`
	Base         string             `json:"base,omitempty"`
	Tag          string             `json:"tag,omitempty"`
	Height       int                `json:"height"`
	Rule         *hvers.HeightRule  `json:"rule,omitempty"`
	Branch       string             `json:"branch,omitempty"`
	Presentation hvers.Presentation `json:"presentation"`
	Fallback     bool               `json:"fallback,omitempty"`
}

func (c *CLI) printResult(result *hvers.Result, fallback bool) error {
	flavor, err := hvers.ParseFlavor(c.Language)
	if err != nil {
		return err
	}
	formatted := hvers.Format(result.Version, flavor)

	if c.JSON {
		out := report{
			Version:      result.Version.String(),
			Formatted:    formatted,
			Height:       result.Height,
			Presentation: result.Presentation,
			Fallback:     fallback,
		}
		if !fallback {
			rule := result.Rule
			out.Base = result.Base.String()
			out.Tag = result.Tag
			out.Rule = &rule
			out.Branch = result.Branch
		}
		return json.NewEncoder(c.stdout).Encode(out)
	}

	if result.Presentation.Kind == hvers.PresentationComplex {
		return json.NewEncoder(c.stdout).Encode(result.Presentation)
	}

	fmt.Fprintln(c.stdout, formatted)
	return nil
}

func (c *CLI) printFallback(kind hvers.PresentationKind) error {
	version := hvers.FallbackVersion()
	presentation, err := hvers.Present(version, 0, kind)
	if err != nil {
		return err
	}

	return c.printResult(&hvers.Result{
		Version:      version,
		Presentation: presentation,
	}, true)
}

func (c *CLI) printHistory(ctx context.Context, history *hvers.GitHistory, rev plumbing.Revision) error {
	start, err := history.Resolve(rev)
	if err != nil {
		return &hvers.StageError{Stage: hvers.StageTraversal, Height: -1, Err: err}
	}

	printed := 0
	for commit, err := range history.Ancestors(ctx, start) {
		if err != nil {
			return &hvers.StageError{Stage: hvers.StageTraversal, Commit: start, Height: -1, Err: err}
		}

		refs := make([]string, 0, len(commit.References))
		for _, ref := range commit.References {
			refs = append(refs, ref.Short())
		}
		fmt.Fprintf(c.stdout, "%s %s\n", commit.Hash.String()[:8], strings.Join(refs, " "))

		printed++
		if printed == c.History {
			break
		}
	}
	return nil
}

func (c *CLI) listRules(rules *hvers.RuleSet) error {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("BRANCH", "HEIGHT", "RULE").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})

	addRows := func(branch string, dict *hvers.RuleDictionary) {
		for _, entry := range dict.Entries() {
			t.Row(branch, ">= "+strconv.Itoa(entry.Height), entry.Rule.String())
		}
		t.Row(branch, "fallback", dict.Fallback().String())
	}

	addRows("*", rules.Default)
	for _, b := range rules.Branches {
		addRows(b.Match, b.Rules)
	}

	fmt.Fprintln(c.stdout, t.Render())
	return nil
}

// newLogger writes text logs to w scoped to a single run. Only warnings are
// shown unless verbose is set.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	})
	return slog.New(handler).With("run_id", uuid.NewString())
}

func exitCode(err error) int {
	var stageErr *hvers.StageError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, hvers.ErrCancelled), errors.Is(err, context.DeadlineExceeded):
		return exitCancelled
	case errors.As(err, &stageErr) && stageErr.Stage != hvers.StageConfiguration:
		return exitCalculation
	default:
		return exitUsage
	}
}
