package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk configuration (~/.sysup/config.yaml).
// All fields are optional; zero values fall back to built-in defaults.
type File struct {
	// Policy tunes the retry loop for every operation.
	Policy PolicyConfig `yaml:"policy"`

	// Signatures prepends custom fault signatures to the built-in table.
	// Custom entries are matched first, so they can override defaults.
	Signatures []SignatureConfig `yaml:"signatures"`

	// Components maps a component tag to the filesystem paths captured
	// in its snapshots. Patterns use doublestar globs.
	Components map[string]ComponentConfig `yaml:"components"`

	// Remedies replaces the built-in remediation strategy for a fault
	// kind with user-supplied commands. Commands are vetted before
	// entering the catalog; dangerous ones are dropped.
	Remedies map[string][]RemedyConfig `yaml:"remedies"`

	// Ecosystems enables/disables update ecosystems by name.
	Ecosystems EcosystemConfig `yaml:"ecosystems"`
}

// PolicyConfig mirrors the RetryPolicy fields exposed to users.
type PolicyConfig struct {
	MaxAttempts    int    `yaml:"max_attempts"`
	BackoffSeconds int    `yaml:"backoff_seconds"`
	AutoRemediate  *bool  `yaml:"auto_remediate"`
	OnFail         string `yaml:"on_fail"` // "skip" or "abort"
	Rollback       *bool  `yaml:"rollback"`
}

// SignatureConfig is one user-supplied fault signature.
type SignatureConfig struct {
	Pattern string `yaml:"pattern"`
	Regex   bool   `yaml:"regex"`
	Kind    string `yaml:"kind"`
}

// RemedyConfig is one user-supplied remediation step.
type RemedyConfig struct {
	Label   string   `yaml:"label"`
	Command []string `yaml:"command"`

	// Tolerate lists output fragments that downgrade a non-zero exit
	// to success.
	Tolerate []string `yaml:"tolerate"`
}

// ComponentConfig describes snapshot coverage for one component.
type ComponentConfig struct {
	Paths []string `yaml:"paths"`
}

// EcosystemConfig enables or disables ecosystems by name.
type EcosystemConfig struct {
	Skip []string `yaml:"skip"`
	Only []string `yaml:"only"`
}

// Load reads the config file at path. A missing file is not an error:
// it returns an empty File so defaults apply.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &f, nil
}

// LoadDefault loads the config from SYSUP_CONFIG or ~/.sysup/config.yaml.
func LoadDefault() (*File, error) {
	path := Env().ConfigFile
	if path == "" {
		path = GetPaths().ConfigFile
	}
	return Load(path)
}
