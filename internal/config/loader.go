package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a pipeline configuration from the given YAML file
// path, then fills in defaults for unset fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches standard locations and loads the first config found.
// Search order: ./quorumpipe.yaml, ~/.quorumpipe/config.yaml. A completely
// absent config is not an error: the built-in defaults apply.
func LoadDefault() (*Config, error) {
	candidates := []string{"quorumpipe.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".quorumpipe", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	cfg := &Config{}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	p := &cfg.Pipeline

	if p.Name == "" {
		p.Name = "quorumpipe"
	}
	if p.Tier == "" {
		p.Tier = "standard"
	}
	if p.Checkpoints == nil {
		p.Checkpoints = []string{"before-specify", "after-specify", "after-tasks"}
	}
	for i := range p.Stages {
		s := &p.Stages[i]
		if s.Pattern == "" && p.Defaults.Pattern != "" {
			s.Pattern = p.Defaults.Pattern
		}
		if s.Agents == 0 && p.Defaults.Agents > 0 {
			s.Agents = p.Defaults.Agents
		}
	}
}
