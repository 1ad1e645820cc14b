// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package brand holds the product naming used for binaries, files and
// environment variables.
package brand

const (
	Name            = "Synguard"
	LowerName       = "synguard"
	BinaryName      = "synguard"
	ConfigEnvPrefix = "SYNGUARD"
	ConfigFileName  = "synguard.hcl"
	StateFileName   = "synguard.state"
	PIDFileName     = "synguard.pid"
	LogFileName     = "synguard.log"
	MetricsPrefix   = "synguard"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Defaults describes the filesystem layout for a standard install.
type Defaults struct {
	DefaultConfigDir string
	DefaultStateDir  string
	DefaultLogDir    string
	DefaultRunDir    string
}

// Get returns the default filesystem layout.
func Get() Defaults {
	return Defaults{
		DefaultConfigDir: "/etc/" + LowerName,
		DefaultStateDir:  "/var/lib/" + LowerName,
		DefaultLogDir:    "/var/log/" + LowerName,
		DefaultRunDir:    "/run",
	}
}
