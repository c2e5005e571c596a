package config

import "os"

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.synapse/config.yaml"
	SourceProject Source = ".synapse/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

// getEnvString returns the value and whether the env var was set.
func getEnvString(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

// getEnvBool returns the boolean value and whether it was truthy.
func getEnvBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "true" || v == "1" {
		return true, true
	}
	return false, false
}

// resolveStringField resolves a string through the precedence chain.
func resolveStringField(home, project, env, flag, def string) resolved {
	result := resolved{Value: def, Source: SourceDefault}
	if home != "" {
		result = resolved{Value: home, Source: SourceHome}
	}
	if project != "" {
		result = resolved{Value: project, Source: SourceProject}
	}
	if env != "" {
		result = resolved{Value: env, Source: SourceEnv}
	}
	if flag != "" {
		result = resolved{Value: flag, Source: SourceFlag}
	}
	return result
}

// resolveBoolField resolves a boolean with OR semantics through the chain:
// the highest layer that turns it on wins.
func resolveBoolField(home, project, env, flag bool) resolved {
	result := resolved{Value: false, Source: SourceDefault}
	if home {
		result = resolved{Value: true, Source: SourceHome}
	}
	if project {
		result = resolved{Value: true, Source: SourceProject}
	}
	if env {
		result = resolved{Value: true, Source: SourceEnv}
	}
	if flag {
		result = resolved{Value: true, Source: SourceFlag}
	}
	return result
}

// ResolvedConfig shows config values with their sources.
type ResolvedConfig struct {
	Output        resolved `json:"output"`
	SynapseDir    resolved `json:"synapse_dir"`
	SquadsDir     resolved `json:"squads_dir"`
	LogFile       resolved `json:"log_file"`
	Verbose       resolved `json:"verbose"`
	Devmode       resolved `json:"devmode"`
	SquadCacheTTL resolved `json:"squad_cache_ttl"`
	HistoryDB     resolved `json:"history_db"`
}

type resolved struct {
	Value  interface{} `json:"value"`
	Source Source      `json:"source"`
}

// Resolve returns configuration with source tracking. Flag values come
// from flags, which may be nil.
// Uses precedence chain: flags > env > project > home > defaults.
func Resolve(flags *Config) *ResolvedConfig {
	home, _ := loadFromPath(homeConfigPath())
	project, _ := loadFromPath(projectConfigPath())
	if home == nil {
		home = &Config{}
	}
	if project == nil {
		project = &Config{}
	}
	if flags == nil {
		flags = &Config{}
	}

	envOutput, _ := getEnvString("SYNAPSE_OUTPUT")
	envDir, _ := getEnvString("SYNAPSE_DIR")
	envSquads, _ := getEnvString("SYNAPSE_SQUADS_DIR")
	envLog, _ := getEnvString("SYNAPSE_LOG_FILE")
	envTTL, _ := getEnvString("SYNAPSE_SQUAD_CACHE_TTL")
	envHistory, _ := getEnvString("SYNAPSE_HISTORY_DB")
	envVerbose, _ := getEnvBool("SYNAPSE_VERBOSE")
	envDevmode, _ := getEnvBool("SYNAPSE_DEVMODE")

	return &ResolvedConfig{
		Output:        resolveStringField(home.Output, project.Output, envOutput, flags.Output, defaultOutput),
		SynapseDir:    resolveStringField(home.SynapseDir, project.SynapseDir, envDir, flags.SynapseDir, defaultSynapseDir),
		SquadsDir:     resolveStringField(home.SquadsDir, project.SquadsDir, envSquads, flags.SquadsDir, ""),
		LogFile:       resolveStringField(home.LogFile, project.LogFile, envLog, flags.LogFile, ""),
		Verbose:       resolveBoolField(home.Verbose, project.Verbose, envVerbose, flags.Verbose),
		Devmode:       resolveBoolField(home.Devmode, project.Devmode, envDevmode, flags.Devmode),
		SquadCacheTTL: resolveStringField(home.SquadCache.TTL, project.SquadCache.TTL, envTTL, flags.SquadCache.TTL, defaultSquadCacheTTL),
		HistoryDB:     resolveStringField(home.Diagnostics.HistoryDB, project.Diagnostics.HistoryDB, envHistory, flags.Diagnostics.HistoryDB, ""),
	}
}
