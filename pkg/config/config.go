/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the config file, the environment, nor CLI
// flags provide a value.
const (
	DefaultOutDir   = "/tmp/fleet-probe"
	DefaultTimeout  = 15
	DefaultParallel = 100
	DefaultPrefix   = "nice -n 19 ionice -c 3"

	// TimestampLayout is the suffix appended to output directories and
	// artifact names when run timestamps are enabled.
	TimestampLayout = "_2006-01-02_15-04-05"
)

// DefaultSSHOpts keeps remote calls non-interactive and quiet.
var DefaultSSHOpts = []string{
	"-oBatchMode=yes",
	"-oConnectTimeout=2",
	"-oStrictHostKeyChecking=no",
	"-oUserKnownHostsFile=/dev/null",
	"-oLogLevel=error",
}

// Config holds the full run configuration: execution options applied to
// every host, the host filter, and the declarative action document.
type Config struct {
	// OutDir is the root of the per-cluster/per-host artifact tree.
	OutDir string `yaml:"outdir"`
	// ActionsDir is the root for bundled scripts referenced by bare name.
	// Must exist when any script action resolves against it.
	ActionsDir string `yaml:"actions_dir"`
	// ActionsFile optionally supplies an action-first document that is
	// normalized into Actions before resolution.
	ActionsFile string `yaml:"actions_file"`

	// Timeout bounds each individual remote call, in seconds.
	Timeout int `yaml:"timeout"`
	// Parallel bounds the fan-out worker pool.
	Parallel int `yaml:"parallel"`
	// Prefix is prepended to every remote command (niceness control).
	Prefix string `yaml:"prefix"`
	// SSHOpts are passed through to the transport for every call.
	SSHOpts []string `yaml:"ssh_opts"`
	// EnvVars are exported on the remote side for every call.
	EnvVars map[string]string `yaml:"env_vars"`
	// OKCodes lists remote exit codes that do not warrant a warning.
	OKCodes []int `yaml:"ok_codes"`
	// RateLimit caps transport calls per second across all hosts.
	// Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// ControlPlaneAddr is the address of the cluster control-plane host.
	// Required when the filter requests control-plane inclusion.
	ControlPlaneAddr string `yaml:"control_plane_addr"`
	// ClusterID identifies the cluster for inventory sources that do not
	// report one themselves.
	ClusterID int `yaml:"cluster_id"`
	// Kubeconfig overrides kubeconfig discovery for the Kubernetes
	// inventory source.
	Kubeconfig string `yaml:"kubeconfig"`

	// OutputsTimestamp appends the run timestamp to artifact filenames.
	OutputsTimestamp bool `yaml:"outputs_timestamp"`
	// DirTimestamp appends the run timestamp to OutDir.
	DirTimestamp bool `yaml:"dir_timestamp"`
	// Clean removes OutDir at the start of the run.
	Clean bool `yaml:"clean"`

	// ResetAttrs overrides which list attributes are cleared before a
	// reset resolution pass. Empty means the built-in default set
	// (commands, scripts, files, filelists).
	ResetAttrs []string `yaml:"reset_attrs"`

	// Filters narrows the inventory; see node.ParseFilterSpec.
	Filters map[string]any `yaml:"filters"`
	// Actions is the declarative document resolved per host.
	Actions map[string]any `yaml:"actions"`
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		OutDir:   DefaultOutDir,
		Timeout:  DefaultTimeout,
		Parallel: DefaultParallel,
		Prefix:   DefaultPrefix,
		SSHOpts:  append([]string(nil), DefaultSSHOpts...),
	}
}

// Load reads the YAML config at path on top of the defaults, then applies
// FLEETPROBE_* environment overrides. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.OutDir = envStr("FLEETPROBE_OUTDIR", cfg.OutDir)
	cfg.ActionsDir = envStr("FLEETPROBE_ACTIONS_DIR", cfg.ActionsDir)
	cfg.ControlPlaneAddr = envStr("FLEETPROBE_CONTROL_PLANE_ADDR", cfg.ControlPlaneAddr)
	cfg.Kubeconfig = envStr("FLEETPROBE_KUBECONFIG", cfg.Kubeconfig)
	cfg.Timeout = envInt("FLEETPROBE_TIMEOUT", cfg.Timeout)
	cfg.Parallel = envInt("FLEETPROBE_PARALLEL", cfg.Parallel)

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = DefaultParallel
	}
	return cfg, nil
}

// LoadActions merges the optional action-first document file into
// cfg.Actions and returns the parsed document plus once-rules.
func (c *Config) LoadActions() (*Document, []OnceRule, error) {
	if c.Actions == nil {
		c.Actions = map[string]any{}
	}
	if c.ActionsFile != "" {
		data, err := os.ReadFile(c.ActionsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("reading actions file %s: %w", c.ActionsFile, err)
		}
		src := map[string]any{}
		if err := yaml.Unmarshal(data, &src); err != nil {
			return nil, nil, fmt.Errorf("parsing actions file %s: %w", c.ActionsFile, err)
		}
		NormalizeActions(src, c.Actions)
	}
	return ParseDocument(c.Actions)
}

// Resettable returns the configured resettable-attribute set, falling back
// to the built-in default.
func (c *Config) Resettable() map[string]bool {
	if len(c.ResetAttrs) == 0 {
		return DefaultResettableAttrs
	}
	set := make(map[string]bool, len(c.ResetAttrs))
	for _, a := range c.ResetAttrs {
		set[a] = true
	}
	return set
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
