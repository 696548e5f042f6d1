package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"flowgate/internal/pattern"
)

// EnvConfigPath is the environment variable that overrides catalog discovery
// with an explicit file path.
const EnvConfigPath = "FLOWGATE_CONFIG_PATH"

// ProjectCatalogPath is the project-level catalog location relative to the
// working directory.
const ProjectCatalogPath = ".flowgate/workflows.json"

// userCatalogPath returns the user-level catalog location, or "" when the
// home directory cannot be resolved.
func userCatalogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "flowgate", "workflows.json")
}

// fileCatalog mirrors the on-disk JSON document shape for Viper unmarshaling.
// It is converted to the validated [Catalog] by build.
type fileCatalog struct {
	Settings  Settings                  `mapstructure:"settings"`
	Workflows map[string]fileDefinition `mapstructure:"workflows"`
	Commands  map[string]Command        `mapstructure:"commandMapping"`
}

type fileDefinition struct {
	Name            string   `mapstructure:"name"`
	TriggerPatterns []string `mapstructure:"triggerPatterns"`
	ExcludePatterns []string `mapstructure:"excludePatterns"`
	Sequence        []string `mapstructure:"sequence"`
	ConfirmFirst    bool     `mapstructure:"confirmFirst"`
	Priority        int      `mapstructure:"priority"`
}

// Loader loads the workflow catalog with layered fallback.
type Loader struct {
	logger *slog.Logger

	// searchPaths overrides the default discovery order. Used by tests.
	searchPaths []string
}

// NewLoader creates a catalog [Loader]. Pass nil to use the default logger.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// NewLoaderWithPaths creates a [Loader] that tries the given paths in order
// instead of the default discovery chain.
func NewLoaderWithPaths(logger *slog.Logger, paths ...string) *Loader {
	l := NewLoader(logger)
	l.searchPaths = paths
	return l
}

// Load resolves and parses the workflow catalog.
//
// Candidate paths are tried in priority order; the first successfully parsed
// file wins. A parse failure is logged and the next candidate is tried.
// When every candidate is absent or unparseable, the built-in
// [DefaultCatalog] is returned. Load never returns an error: catalog absence
// is not an error condition for callers.
func (l *Loader) Load() *Catalog {
	for _, path := range l.candidates() {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}

		cat, err := l.loadFile(path)
		if err != nil {
			l.logger.Warn("skipping unparseable catalog file",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}

		l.logger.Debug("loaded workflow catalog", slog.String("path", path))
		return cat
	}

	l.logger.Debug("no catalog file found, using built-in defaults")
	return DefaultCatalog()
}

// ResolvePath returns the first existing catalog file in the search order,
// or "" when no candidate exists and the built-in defaults apply. Used by
// serve mode to decide which file to watch for changes.
func (l *Loader) ResolvePath() string {
	for _, path := range l.candidates() {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// candidates returns the catalog paths to try, in priority order.
func (l *Loader) candidates() []string {
	if l.searchPaths != nil {
		return l.searchPaths
	}
	return []string{
		os.Getenv(EnvConfigPath),
		ProjectCatalogPath,
		userCatalogPath(),
	}
}

// loadFile parses one catalog file and converts it to a validated [Catalog].
func (l *Loader) loadFile(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("FLOWGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var fc fileCatalog
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}

	return l.build(&fc), nil
}

// applyDefaults seeds Viper with the settings defaults so a catalog file may
// omit the settings block entirely.
func applyDefaults(v *viper.Viper) {
	v.SetDefault("settings.enabled", true)
	v.SetDefault("settings.confirmHighImpact", true)
	v.SetDefault("settings.overridePrefix", DefaultOverridePrefix)
	v.SetDefault("settings.allowOverride", true)
}

// build converts the raw file document into a validated [Catalog].
//
// Workflows with an empty sequence are dropped with a warning: a workflow
// that drives no steps can never be advanced and would wedge a session.
// Sequence step identifiers without a command mapping are tolerated; they
// render with the "/" + stepID fallback.
func (l *Loader) build(fc *fileCatalog) *Catalog {
	cat := &Catalog{
		Settings:       fc.Settings,
		CommandMapping: fc.Commands,
	}
	if cat.CommandMapping == nil {
		cat.CommandMapping = map[string]Command{}
	}
	if cat.Settings.OverridePrefix == "" {
		cat.Settings.OverridePrefix = DefaultOverridePrefix
	}

	for id, fd := range fc.Workflows {
		if len(fd.Sequence) == 0 {
			l.logger.Warn("dropping workflow with empty sequence",
				slog.String("workflow", id))
			continue
		}

		name := fd.Name
		if name == "" {
			name = id
		}

		cat.Workflows = append(cat.Workflows, Definition{
			ID:           id,
			Name:         name,
			Triggers:     pattern.Compile(fd.TriggerPatterns, l.logger),
			Excludes:     pattern.Compile(fd.ExcludePatterns, l.logger),
			Sequence:     fd.Sequence,
			ConfirmFirst: fd.ConfirmFirst,
			Priority:     fd.Priority,
		})

		for _, step := range fd.Sequence {
			if _, ok := cat.CommandMapping[step]; !ok {
				l.logger.Debug("step has no command mapping, using fallback display",
					slog.String("workflow", id),
					slog.String("step", step))
			}
		}
	}

	sortWorkflows(cat.Workflows)
	return cat
}
