package reach

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kestrelsec/reach/internal/entrypoint"
)

// Config is the optional reach.yaml project configuration. Every field maps
// onto a Scanner option; command-line flags win over the file.
type Config struct {
	Strict         bool     `yaml:"strict"`
	PackageTimeout string   `yaml:"package_timeout"`
	CachePath      string   `yaml:"cache_path"`
	Languages      []string `yaml:"languages"`
	VendorDirs     []string `yaml:"vendor_dirs"`
	CacheDirs      []string `yaml:"cache_dirs"`
	RuleScripts    []string `yaml:"rule_scripts"`
}

// ConfigFileName is the default configuration file looked up in the
// project root.
const ConfigFileName = "reach.yaml"

// LoadConfig reads a YAML configuration file. A missing file is not an
// error; it yields an empty Config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Options converts the configuration into Scanner options. Rule script paths
// are resolved relative to baseDir and loaded eagerly so a broken script
// fails the scan up front rather than mid-detection.
func (c *Config) Options(baseDir string) ([]Option, error) {
	var opts []Option
	if c.Strict {
		opts = append(opts, WithStrictConfidence())
	}
	if c.PackageTimeout != "" {
		d, err := time.ParseDuration(c.PackageTimeout)
		if err != nil {
			return nil, fmt.Errorf("config package_timeout: %w", err)
		}
		opts = append(opts, WithPackageTimeout(d))
	}
	if c.CachePath != "" {
		opts = append(opts, WithCachePath(c.CachePath))
	}
	if len(c.Languages) > 0 {
		opts = append(opts, WithLanguages(c.Languages...))
	}
	if len(c.VendorDirs) > 0 {
		opts = append(opts, WithVendorDirs(c.VendorDirs...))
	}
	if len(c.CacheDirs) > 0 {
		opts = append(opts, WithCacheDirs(c.CacheDirs...))
	}
	for _, script := range c.RuleScripts {
		path := script
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		rule, err := entrypoint.LoadScriptRule(path)
		if err != nil {
			return nil, fmt.Errorf("config rule script: %w", err)
		}
		opts = append(opts, WithEntrypointRules(rule))
	}
	return opts, nil
}
