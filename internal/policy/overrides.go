package policy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// duration accepts Go duration strings ("500ms") in YAML.
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = duration(parsed)
	return nil
}

// override tunes one known operation. Zero values leave the default alone.
type override struct {
	Timeout     duration `yaml:"timeout"`
	MaxAttempts int      `yaml:"max_attempts"`
	RetryDelay  duration `yaml:"retry_delay"`
}

type overrideFile struct {
	Operations map[string]override `yaml:"operations"`
}

// Load returns the default table with per-operation overrides applied from
// the given YAML file. An empty path returns the defaults unchanged. An
// override naming an unknown operation, or producing an invalid policy,
// fails loudly so a bad deploy is caught at startup.
func Load(path string) (*Table, error) {
	table := Default()
	if path == "" {
		return table, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var file overrideFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	for name, ov := range file.Operations {
		p, ok := table.policies[name]
		if !ok {
			return nil, fmt.Errorf("policy file names unknown operation %q", name)
		}
		if ov.Timeout != 0 {
			p.Timeout = time.Duration(ov.Timeout)
		}
		if ov.MaxAttempts != 0 {
			p.MaxAttempts = ov.MaxAttempts
		}
		if ov.RetryDelay != 0 {
			p.RetryDelay = time.Duration(ov.RetryDelay)
		}
		if err := validate(p); err != nil {
			return nil, fmt.Errorf("policy override for %q: %w", name, err)
		}
		table.policies[name] = p
	}

	return table, nil
}

func validate(p Policy) error {
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", p.Timeout)
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must not be negative, got %s", p.RetryDelay)
	}
	return nil
}
