package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/filesdb/pkg/filesdb"
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	Root        string `json:"root"`
	MetaFile    string `json:"meta_file,omitempty"`
	Mode        string `json:"mode,omitempty"`
	TablePrefix string `json:"table_prefix,omitempty"`
	LogLevel    string `json:"log_level,omitempty"`
	Exclusive   bool   `json:"exclusive,omitempty"`
	HistoryFile string `json:"history_file,omitempty"`

	// Resolved values (computed, not serialized)
	EffectiveCwd string `json:"-"`
	RootAbs      string `json:"-"`

	// Sources tracks which config files were loaded (for diagnostics)
	Sources ConfigSources `json:"-"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".filesdb.json"

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Root:     ".filesdb",
		MetaFile: filesdb.DefaultMetaFile,
		Mode:     filesdb.ModeBlocking.String(),
		LogLevel: "warn",
	}
}

// getGlobalConfigPath returns $XDG_CONFIG_HOME/filesdb/config.json if set,
// otherwise ~/.config/filesdb/config.json. Empty if neither is known.
func getGlobalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "filesdb", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "filesdb", "config.json")
	}

	return ""
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	Overrides       Config            // non-zero fields come from command line flags
	Env             map[string]string // environment variables
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/filesdb/config.json or ~/.config/filesdb/config.json)
// 3. Project config file (.filesdb.json in the working directory, if it exists)
// 4. Explicit config file via ConfigPath (replaces 3)
// 5. Command line overrides.
func LoadConfig(input LoadConfigInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := DefaultConfig()

	globalCfg, globalPath, err := loadGlobalConfig(input.Env)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	cfg = mergeConfig(cfg, input.Overrides)

	err = validateConfig(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.Root) {
		cfg.RootAbs = filepath.Clean(cfg.Root)
	} else {
		cfg.RootAbs = filepath.Join(workDir, cfg.Root)
	}

	return cfg, nil
}

func loadGlobalConfig(env map[string]string) (Config, string, error) {
	path := getGlobalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, explicitEmpty, loaded, err := loadConfigFile(path, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["root"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, ErrRootEmpty)
	}

	return cfg, path, nil
}

// loadProjectConfig loads .filesdb.json or the explicit config file.
func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	var (
		cfgFile   string
		mustExist bool
	)

	if configPath != "" {
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		mustExist = true

		_, statErr := os.Stat(cfgFile)
		if statErr != nil {
			return Config{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
		}
	} else {
		cfgFile = filepath.Join(workDir, ConfigFileName)
	}

	cfg, explicitEmpty, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["root"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", ErrConfigInvalid, cfgFile, ErrRootEmpty)
	}

	return cfg, cfgFile, nil
}

// loadConfigFile loads a config file. If mustExist is false, missing files return zero config.
// Returns the config, a map of explicitly empty fields, whether file was loaded, and any error.
func loadConfigFile(path string, mustExist bool) (Config, map[string]bool, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, nil, false, nil
		}

		if mustExist {
			return Config{}, nil, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
		}

		return Config{}, nil, false, nil
	}

	cfg, explicitEmpty, parseErr := parseConfig(data)
	if parseErr != nil {
		return Config{}, nil, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, parseErr)
	}

	return cfg, explicitEmpty, true, nil
}

func parseConfig(data []byte) (Config, map[string]bool, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	unmarshalErr := json.Unmarshal(standardized, &cfg)
	if unmarshalErr != nil {
		return Config{}, nil, fmt.Errorf("invalid JSON: %w", unmarshalErr)
	}

	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	explicitEmpty := make(map[string]bool)

	if val, exists := raw["root"]; exists {
		if str, ok := val.(string); ok && str == "" {
			explicitEmpty["root"] = true
		}
	}

	return cfg, explicitEmpty, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.Root != "" {
		base.Root = overlay.Root
	}

	if overlay.MetaFile != "" {
		base.MetaFile = overlay.MetaFile
	}

	if overlay.Mode != "" {
		base.Mode = overlay.Mode
	}

	if overlay.TablePrefix != "" {
		base.TablePrefix = overlay.TablePrefix
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	if overlay.Exclusive {
		base.Exclusive = true
	}

	if overlay.HistoryFile != "" {
		base.HistoryFile = overlay.HistoryFile
	}

	return base
}

func validateConfig(cfg Config) error {
	if cfg.Root == "" {
		return ErrRootEmpty
	}

	if _, err := filesdb.ParseMode(cfg.Mode); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(s))
	if err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}

	return level, nil
}

// dbConfig translates the CLI config into library settings. The table prefix
// only takes effect when the meta document is created.
func (c *Config) dbConfig(logger *slog.Logger) (filesdb.Config, error) {
	mode, err := filesdb.ParseMode(c.Mode)
	if err != nil {
		return filesdb.Config{}, err
	}

	dbCfg := filesdb.Config{
		Root:      c.RootAbs,
		MetaFile:  c.MetaFile,
		Mode:      mode,
		Logger:    logger,
		Exclusive: c.Exclusive,
	}

	if c.TablePrefix != "" {
		dbCfg.Meta = map[string]any{"table_prefix": c.TablePrefix}
	}

	return dbCfg, nil
}
