package dlp

import (
	"fmt"
	"regexp"
	"slices"
)

// Config configures an Engine.
type Config struct {
	// Enabled controls whether detection runs (default: true).
	Enabled bool `koanf:"enabled"`

	// Rules are API key rules checked in addition to DefaultRules.
	Rules []Rule `koanf:"rules"`

	// AllowList contains patterns; a finding whose text matches one is ignored.
	AllowList []string `koanf:"allow_list"`

	// AllowlistFile is an optional TOML allow-list merged into AllowList.
	AllowlistFile string `koanf:"allowlist_file"`

	// ExtendedSecretScan adds the gitleaks default ruleset as an api_key detector.
	ExtendedSecretScan bool `koanf:"extended_secret_scan"`

	// compiled patterns (populated by Validate)
	compiledRules     []detector
	compiledAllowList []*regexp.Regexp
}

// DefaultConfig returns a configuration with the built-in detectors.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		AllowList: []string{},
	}
}

// Validate loads the allow-list file and compiles rules and patterns.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	allow := slices.Clone(c.AllowList)
	if c.AllowlistFile != "" {
		extra, err := LoadAllowlist(c.AllowlistFile)
		if err != nil {
			return err
		}
		allow = append(allow, extra...)
	}

	rules := append(DefaultRules(), c.Rules...)
	c.compiledRules = make([]detector, 0, len(rules))
	for i, rule := range rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: ID is required", i)
		}
		if rule.Pattern == "" {
			return fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: %w: %v", rule.ID, ErrInvalidRegex, err)
		}
		c.compiledRules = append(c.compiledRules, detector{
			kind:     KindAPIKey,
			rule:     rule.ID,
			pattern:  pattern,
			validate: accept,
		})
	}

	c.compiledAllowList = make([]*regexp.Regexp, 0, len(allow))
	for i, pattern := range allow {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("allow_list %d: %w: %v", i, ErrInvalidRegex, err)
		}
		c.compiledAllowList = append(c.compiledAllowList, compiled)
	}
	return nil
}
