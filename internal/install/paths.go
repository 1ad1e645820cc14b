// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package install

import (
	"os"
	"path/filepath"

	"grimm.is/synguard/internal/brand"
)

var (
	DefaultConfigDir string
	DefaultStateDir  string
	DefaultLogDir    string
	DefaultRunDir    string

	// Build-time path overrides (set via -ldflags).
	BuildDefaultConfigDir = ""
	BuildDefaultStateDir  = ""
	BuildDefaultLogDir    = ""
	BuildDefaultRunDir    = ""
)

func init() {
	b := brand.Get()
	DefaultConfigDir = pick(BuildDefaultConfigDir, b.DefaultConfigDir)
	DefaultStateDir = pick(BuildDefaultStateDir, b.DefaultStateDir)
	DefaultLogDir = pick(BuildDefaultLogDir, b.DefaultLogDir)
	DefaultRunDir = pick(BuildDefaultRunDir, b.DefaultRunDir)
}

func pick(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}

// lookup resolves a directory from <PREFIX>_<kind>_DIR, then <PREFIX>_PREFIX/<sub>,
// then the compiled default.
func lookup(kind, sub, def string) string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_" + kind + "_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, sub)
	}
	return def
}

// GetStateDir returns the state directory.
// Priority: SYNGUARD_STATE_DIR > SYNGUARD_PREFIX/state > DefaultStateDir
func GetStateDir() string {
	return lookup("STATE", "state", DefaultStateDir)
}

// GetLogDir returns the log directory.
// Priority: SYNGUARD_LOG_DIR > SYNGUARD_PREFIX/log > DefaultLogDir
func GetLogDir() string {
	return lookup("LOG", "log", DefaultLogDir)
}

// GetConfigDir returns the config directory.
// Priority: SYNGUARD_CONFIG_DIR > SYNGUARD_PREFIX/config > DefaultConfigDir
func GetConfigDir() string {
	return lookup("CONFIG", "config", DefaultConfigDir)
}

// GetRunDir returns the runtime directory for the PID file.
// Priority: SYNGUARD_RUN_DIR > SYNGUARD_PREFIX/run > DefaultRunDir
func GetRunDir() string {
	return lookup("RUN", "run", DefaultRunDir)
}

// PIDFile returns the full path of the daemon PID file.
func PIDFile() string {
	return filepath.Join(GetRunDir(), brand.PIDFileName)
}

// StateFile returns the default path of the persisted ledger state.
func StateFile() string {
	return filepath.Join(GetStateDir(), brand.StateFileName)
}

// LogFile returns the default path of the daemon log when detached.
func LogFile() string {
	return filepath.Join(GetLogDir(), brand.LogFileName)
}

// ConfigFile returns the default configuration file path.
func ConfigFile() string {
	return filepath.Join(GetConfigDir(), brand.ConfigFileName)
}
