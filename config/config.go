// Package config loads shell runtime configuration from INI files.
//
// A config file has a default section with shell settings, an optional
// [mounts] section declaring the workspace mount table, an optional
// [backend] section with provider-specific executor settings, and any
// number of [profile-NAME] sections whose keys override the defaults
// when that profile is selected.
//
// Example:
//
//	workspace      = default
//	backend        = local
//	timeout        = 60s
//	output_limit   = 1048576
//	policy_file    = /etc/jido-shell/policy.jsonc
//
//	[mounts]
//	/     = mem
//	/data = bolt path=/var/lib/jido-shell/data.db managed
//
//	[profile-ssh]
//	backend = ssh
//
//	[backend]
//	addr = sandbox.internal:22
//	user = agent
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/agentjido/jido-shell/pathutil"
)

// MountSpec declares one workspace mount.
type MountSpec struct {
	Path    string
	Adapter string
	Managed bool
	Options map[string]string
}

// Config holds all shell runtime configuration.
type Config struct {
	// Session settings
	Workspace     string
	Backend       string
	Timeout       time.Duration
	OutputLimit   int64
	HistoryLimit  int
	TranscriptDir string
	PolicyFile    string
	Debug         bool

	// Workspace mount table
	Mounts []MountSpec

	// Provider-specific backend settings ([backend] section)
	BackendSettings map[string]string

	// Selected profile name ("" for defaults only)
	Profile string
}

// Defaults returns the built-in configuration: a single in-memory
// mount at the root, local backend, 60 second timeout.
func Defaults() *Config {
	return &Config{
		Workspace:       "default",
		Backend:         "local",
		Timeout:         60 * time.Second,
		HistoryLimit:    1000,
		Mounts:          []MountSpec{{Path: "/", Adapter: "mem"}},
		BackendSettings: make(map[string]string),
	}
}

// Load reads configuration from path, applying the named profile's
// overrides on top of the defaults. A missing file (or empty path)
// yields Defaults() without checking the profile; a profile that an
// existing file does not define is an error.
func Load(path, profile string) (*Config, error) {
	cfg := Defaults()
	cfg.Profile = profile

	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.applySection(file.Section(ini.DefaultSection)); err != nil {
		return nil, err
	}

	if profile != "" {
		name := "profile-" + profile
		if !file.HasSection(name) {
			return nil, fmt.Errorf("unknown profile: %s", profile)
		}
		if err := cfg.applySection(file.Section(name)); err != nil {
			return nil, err
		}
	}

	if file.HasSection("mounts") {
		mounts, err := parseMounts(file.Section("mounts"))
		if err != nil {
			return nil, err
		}
		cfg.Mounts = mounts
	}

	if file.HasSection("backend") {
		for _, key := range file.Section("backend").Keys() {
			cfg.BackendSettings[key.Name()] = key.String()
		}
	}

	return cfg, nil
}

// applySection copies recognised keys from an INI section onto cfg.
func (cfg *Config) applySection(sec *ini.Section) error {
	for _, key := range sec.Keys() {
		value := key.String()
		switch key.Name() {
		case "workspace":
			cfg.Workspace = value
		case "backend":
			cfg.Backend = value
		case "timeout":
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid timeout %q: %w", value, err)
			}
			cfg.Timeout = d
		case "output_limit":
			n, err := key.Int64()
			if err != nil {
				return fmt.Errorf("invalid output_limit %q: %w", value, err)
			}
			cfg.OutputLimit = n
		case "history_limit":
			n, err := key.Int()
			if err != nil {
				return fmt.Errorf("invalid history_limit %q: %w", value, err)
			}
			cfg.HistoryLimit = n
		case "transcript_dir":
			cfg.TranscriptDir = value
		case "policy_file":
			cfg.PolicyFile = value
		case "debug":
			cfg.Debug = key.MustBool(false)
		default:
			return fmt.Errorf("unknown config key: %s", key.Name())
		}
	}
	return nil
}

// parseMounts reads the [mounts] section. Each key is an absolute
// path; the value is the adapter name optionally followed by
// key=value options and the bare flag "managed".
func parseMounts(sec *ini.Section) ([]MountSpec, error) {
	var mounts []MountSpec
	for _, key := range sec.Keys() {
		path := key.Name()
		if !pathutil.IsAbs(path) {
			return nil, fmt.Errorf("mount path must be absolute: %s", path)
		}

		fields := strings.Fields(key.String())
		if len(fields) == 0 {
			return nil, fmt.Errorf("mount %s: missing adapter", path)
		}

		spec := MountSpec{
			Path:    pathutil.Normalize(path),
			Adapter: fields[0],
			Options: make(map[string]string),
		}
		for _, field := range fields[1:] {
			if field == "managed" {
				spec.Managed = true
				continue
			}
			name, value, ok := strings.Cut(field, "=")
			if !ok {
				return nil, fmt.Errorf("mount %s: invalid option %q", path, field)
			}
			spec.Options[name] = value
		}
		mounts = append(mounts, spec)
	}
	return mounts, nil
}
