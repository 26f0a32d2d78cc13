// Package config provides edda's layered configuration: flag > environment
// variable > project file > user file > built-in default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/untoldecay/edda/internal/debug"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton. Should be called
// once at application startup, before any Get* call.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("json")

	configFileSet := false

	// 1. Walk up from CWD to find .edda/config.json so commands work from
	// subdirectories of the workspace.
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".edda", "config.json")
			if _, statErr := os.Stat(configPath); statErr == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	// Environment variable binding: EDDA_* overrides everything below it.
	v.SetEnvPrefix("EDDA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config: reading %s: %w", v.ConfigFileUsed(), err)
		}
		debug.Logf("config: loaded project config from %s\n", v.ConfigFileUsed())
	} else {
		debug.Logf("config: no .edda/config.json found; using defaults and environment\n")
	}

	// User-level file: lower precedence than the project file, so only
	// fill in keys the project file and env didn't already set.
	loadUserConfig(v)

	// Declarative bridge overlay (bridge.toml), lowest precedence of all
	// the file-backed layers.
	loadBridgeOverlay(v)

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("peer.stale-secs", 120)
	v.SetDefault("pack.peers-budget-chars", 600)
	v.SetDefault("pack.turns", 12)
	v.SetDefault("pack.budget-chars", 6000)
	v.SetDefault("pack.workspace-budget-chars", 2500)
	v.SetDefault("pack.pattern-budget-chars", 1000)
	v.SetDefault("pack.last-assistant-max-chars", 500)
	v.SetDefault("pack.max-context-chars", 16000)
	v.SetDefault("patterns.enabled", true)
	v.SetDefault("skill-guide", false)
	v.SetDefault("claude.auto-approve", false)
	v.SetDefault("bridge.auto-digest", true)
	v.SetDefault("bridge.lock-timeout-ms", 2000)
	v.SetDefault("bridge.digest-failed-cmds", false)
	v.SetDefault("gc.keep-days", 14)
	v.SetDefault("gc.archive-keep-days", 90)
	v.SetDefault("gc.quota-mb", 0)
	v.SetDefault("gc.coordination-compact-lines", 1000)
}

func loadUserConfig(v *viper.Viper) {
	var candidates []string
	if configDir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(configDir, "edda", "config.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".edda", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		uv := viper.New()
		uv.SetConfigFile(path)
		if err := uv.ReadInConfig(); err != nil {
			debug.Logf("config: failed to read user config %s: %v\n", path, err)
			continue
		}
		for _, key := range uv.AllKeys() {
			if !v.IsSet(key) {
				v.Set(key, uv.Get(key))
			}
		}
		debug.Logf("config: loaded user config from %s\n", path)
		return
	}
}

// bridgeOverlay mirrors the subset of config that operators may prefer to
// express in a typed, commented TOML file instead of the JSON project
// config.
type bridgeOverlay struct {
	AutoDigest       *bool `toml:"auto_digest"`
	LockTimeoutMs    *int  `toml:"lock_timeout_ms"`
	DigestFailedCmds *bool `toml:"digest_failed_cmds"`
}

func loadBridgeOverlay(v *viper.Viper) {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	path := filepath.Join(cwd, ".edda", "bridge.toml")
	if _, err := os.Stat(path); err != nil {
		return
	}

	var overlay bridgeOverlay
	if _, err := toml.DecodeFile(path, &overlay); err != nil {
		debug.Logf("config: failed to parse %s: %v\n", path, err)
		return
	}

	if overlay.AutoDigest != nil && !v.IsSet("bridge.auto-digest") {
		v.Set("bridge.auto-digest", *overlay.AutoDigest)
	}
	if overlay.LockTimeoutMs != nil && !v.IsSet("bridge.lock-timeout-ms") {
		v.Set("bridge.lock-timeout-ms", *overlay.LockTimeoutMs)
	}
	if overlay.DigestFailedCmds != nil && !v.IsSet("bridge.digest-failed-cmds") {
		v.Set("bridge.digest-failed-cmds", *overlay.DigestFailedCmds)
	}
}

// Source identifies which configuration layer produced an effective value.
type Source string

const (
	SourceDefault    Source = "default"
	SourceConfigFile Source = "config_file"
	SourceEnvVar     Source = "env_var"
	SourceFlag       Source = "flag"
)

// GetValueSource reports which layer is currently winning for key.
// Flag overrides are layered on top by the CLI, which knows about cobra
// flags that viper does not.
func GetValueSource(key string) Source {
	if v == nil {
		return SourceDefault
	}

	envKey := "EDDA_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
	if os.Getenv(envKey) != "" {
		return SourceEnvVar
	}
	if v.InConfig(key) {
		return SourceConfigFile
	}
	return SourceDefault
}

// GetString, GetBool, GetInt, GetDuration read effective configuration
// values; they return the zero value if Initialize was never called.

func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set overrides a configuration value at runtime, e.g. from a parsed CLI
// flag in a command's PersistentPreRun.
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns every effective configuration value, used by
// `edda config show`.
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}
