// Package config provides configuration management for synapse.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (SYNAPSE_*)
// 3. Project config (.synapse/config.yaml in cwd, or $SYNAPSE_CONFIG)
// 4. Home config (~/.synapse/config.yaml)
// 5. Defaults
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all synapse configuration.
type Config struct {
	// Output controls the CLI output format (text, json).
	Output string `yaml:"output" json:"output"`

	// SynapseDir is the synapse directory holding the manifest and domain
	// files (default: .synapse). Relative paths resolve against the cwd.
	SynapseDir string `yaml:"synapse_dir" json:"synapse_dir"`

	// SquadsDir is the squads root (default: <synapse_dir>/squads).
	SquadsDir string `yaml:"squads_dir" json:"squads_dir"`

	// Devmode appends the diagnostics section to every document.
	Devmode bool `yaml:"devmode" json:"devmode"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// LogFile receives logs; empty means stderr.
	LogFile string `yaml:"log_file" json:"log_file"`

	Context     ContextConfig     `yaml:"context" json:"context"`
	Brackets    BracketsConfig    `yaml:"brackets" json:"brackets"`
	SquadCache  SquadCacheConfig  `yaml:"squad_cache" json:"squad_cache"`
	Layers      LayersConfig      `yaml:"layers" json:"layers"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" json:"diagnostics"`
}

// ContextConfig holds the context window estimate.
type ContextConfig struct {
	// MaxTokens is the context window size.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`

	// TokensPerPrompt is the average cost of one prompt.
	TokensPerPrompt int `yaml:"tokens_per_prompt" json:"tokens_per_prompt"`
}

// BracketConfig is one row of the bracket table. Zero values keep the
// built-in defaults.
type BracketConfig struct {
	MinPercent  float64 `yaml:"min_percent" json:"min_percent"`
	TokenBudget int     `yaml:"token_budget" json:"token_budget"`
}

// BracketsConfig overrides the bracket table.
type BracketsConfig struct {
	Fresh    BracketConfig `yaml:"fresh" json:"fresh"`
	Moderate BracketConfig `yaml:"moderate" json:"moderate"`
	Depleted BracketConfig `yaml:"depleted" json:"depleted"`
	// Critical has no lower bound; only its budget applies.
	Critical BracketConfig `yaml:"critical" json:"critical"`
}

// SquadCacheConfig holds squad discovery cache settings.
type SquadCacheConfig struct {
	// TTL is a duration string (default: 60s).
	TTL string `yaml:"ttl" json:"ttl"`
}

// LayersConfig holds per-layer settings.
type LayersConfig struct {
	// Timeouts maps layer names (constitution, global, agent, workflow,
	// task, squad, keyword, star-command) to duration strings.
	Timeouts map[string]string `yaml:"timeouts" json:"timeouts,omitempty"`
}

// DiagnosticsConfig tunes the diagnostics report.
type DiagnosticsConfig struct {
	// StaleAfter is a duration string (default: 10m).
	StaleAfter string `yaml:"stale_after" json:"stale_after"`

	// StaleFactor multiplies the score of stale metrics (default: 0.5).
	StaleFactor float64 `yaml:"stale_factor" json:"stale_factor"`

	// MaxTimestampGap is a duration string (default: 5m).
	MaxTimestampGap string `yaml:"max_timestamp_gap" json:"max_timestamp_gap"`

	// HistoryDB is the history database path (default:
	// <synapse_dir>/diagnostics.db).
	HistoryDB string `yaml:"history_db" json:"history_db"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput          = "text"
	defaultSynapseDir      = ".synapse"
	defaultSquadCacheTTL   = "60s"
	defaultStaleAfter      = "10m"
	defaultStaleFactor     = 0.5
	defaultMaxTimestampGap = "5m"
	defaultHistoryDB       = "diagnostics.db"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Output:     defaultOutput,
		SynapseDir: defaultSynapseDir,
		SquadCache: SquadCacheConfig{TTL: defaultSquadCacheTTL},
		Diagnostics: DiagnosticsConfig{
			StaleAfter:      defaultStaleAfter,
			StaleFactor:     defaultStaleFactor,
			MaxTimestampGap: defaultMaxTimestampGap,
		},
	}
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	homeConfig, err := loadFromPath(homeConfigPath())
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	projectConfig, err := loadFromPath(projectConfigPath())
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	cfg = applyEnv(cfg)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	return cfg, nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".synapse", "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("SYNAPSE_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".synapse", "config.yaml")
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("SYNAPSE_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("SYNAPSE_DIR"); v != "" {
		cfg.SynapseDir = v
	}
	if v := os.Getenv("SYNAPSE_SQUADS_DIR"); v != "" {
		cfg.SquadsDir = v
	}
	if v, ok := getEnvBool("SYNAPSE_VERBOSE"); ok && v {
		cfg.Verbose = true
	}
	if v, ok := getEnvBool("SYNAPSE_DEVMODE"); ok && v {
		cfg.Devmode = true
	}
	if v := os.Getenv("SYNAPSE_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("SYNAPSE_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Context.MaxTokens = n
		}
	}
	if v := os.Getenv("SYNAPSE_SQUAD_CACHE_TTL"); v != "" {
		cfg.SquadCache.TTL = v
	}
	if v := os.Getenv("SYNAPSE_HISTORY_DB"); v != "" {
		cfg.Diagnostics.HistoryDB = v
	}
	return cfg
}

// mergeStr overwrites dst with src when src is non-empty.
func mergeStr(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// mergeInt overwrites dst with src when src is non-zero.
func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

// mergeFloat overwrites dst with src when src is non-zero.
func mergeFloat(dst *float64, src float64) {
	if src != 0 {
		*dst = src
	}
}

// merge merges src into dst, with src values taking precedence. Booleans
// only turn on; a lower layer cannot be switched off by a higher one.
func merge(dst, src *Config) *Config {
	mergeStr(&dst.Output, src.Output)
	mergeStr(&dst.SynapseDir, src.SynapseDir)
	mergeStr(&dst.SquadsDir, src.SquadsDir)
	mergeStr(&dst.LogFile, src.LogFile)
	if src.Verbose {
		dst.Verbose = true
	}
	if src.Devmode {
		dst.Devmode = true
	}

	mergeInt(&dst.Context.MaxTokens, src.Context.MaxTokens)
	mergeInt(&dst.Context.TokensPerPrompt, src.Context.TokensPerPrompt)
	mergeBrackets(&dst.Brackets, &src.Brackets)
	mergeStr(&dst.SquadCache.TTL, src.SquadCache.TTL)
	mergeLayers(&dst.Layers, &src.Layers)
	mergeDiagnostics(&dst.Diagnostics, &src.Diagnostics)

	return dst
}

func mergeBracket(dst, src *BracketConfig) {
	mergeFloat(&dst.MinPercent, src.MinPercent)
	mergeInt(&dst.TokenBudget, src.TokenBudget)
}

func mergeBrackets(dst, src *BracketsConfig) {
	mergeBracket(&dst.Fresh, &src.Fresh)
	mergeBracket(&dst.Moderate, &src.Moderate)
	mergeBracket(&dst.Depleted, &src.Depleted)
	mergeBracket(&dst.Critical, &src.Critical)
}

// mergeLayers overlays timeouts key by key.
func mergeLayers(dst, src *LayersConfig) {
	if len(src.Timeouts) == 0 {
		return
	}
	if dst.Timeouts == nil {
		dst.Timeouts = make(map[string]string, len(src.Timeouts))
	}
	for name, v := range src.Timeouts {
		if v != "" {
			dst.Timeouts[name] = v
		}
	}
}

func mergeDiagnostics(dst, src *DiagnosticsConfig) {
	mergeStr(&dst.StaleAfter, src.StaleAfter)
	mergeFloat(&dst.StaleFactor, src.StaleFactor)
	mergeStr(&dst.MaxTimestampGap, src.MaxTimestampGap)
	mergeStr(&dst.HistoryDB, src.HistoryDB)
}

// parseDuration parses s, falling back to def when s is empty, malformed,
// or not positive.
func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
