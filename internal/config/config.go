// Package config loads stevedore settings from flags, STEVEDORE_* environment
// variables and an optional config file, in that order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/railwayapp/stevedore/internal/plan"
	"github.com/railwayapp/stevedore/internal/schema"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. STEVEDORE_PORT_ENV
const EnvPrefix = "STEVEDORE"

type Config struct {
	// Port overrides detected port hints; 0 keeps them, falling back to 8000
	Port          int    `mapstructure:"port"`
	PortEnv       string `mapstructure:"port_env"`
	Host          string `mapstructure:"host"`
	WorkDir       string `mapstructure:"workdir"`
	BaseImage     string `mapstructure:"base_image"`
	Style         string `mapstructure:"style"`
	LauncherImage string `mapstructure:"launcher_image"`
	LauncherPath  string `mapstructure:"launcher_path"`
	DockerHost    string `mapstructure:"docker_host"`
	Verbose       bool   `mapstructure:"verbose"`
}

// SetDefaults registers every key so environment overrides are seen by Unmarshal
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", 0)
	v.SetDefault("port_env", schema.DefaultPortEnv)
	v.SetDefault("host", schema.DefaultHost)
	v.SetDefault("workdir", schema.DefaultWorkDir)
	v.SetDefault("base_image", "")
	v.SetDefault("style", string(schema.StyleLauncher))
	v.SetDefault("launcher_image", schema.DefaultLauncherImage)
	v.SetDefault("launcher_path", schema.DefaultLauncherPath)
	v.SetDefault("docker_host", "")
	v.SetDefault("verbose", false)
}

// BindEnv makes STEVEDORE_<KEY> override any key; dashes in flag names map to underscores
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port != 0 {
		if err := schema.ValidatePort(c.Port); err != nil {
			return fmt.Errorf("port: %w", err)
		}
	}
	switch schema.EntrypointStyle(c.Style) {
	case schema.StyleLauncher, schema.StyleShell, schema.StyleLiteral:
	default:
		return fmt.Errorf("style must be one of launcher, shell, literal; got %q", c.Style)
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// PlanOptions maps the settings onto plan overrides
func (c *Config) PlanOptions() plan.Options {
	return plan.Options{
		BaseImage:     c.BaseImage,
		WorkDir:       c.WorkDir,
		Port:          c.Port,
		PortEnv:       c.PortEnv,
		Host:          c.Host,
		Style:         schema.EntrypointStyle(c.Style),
		LauncherImage: c.LauncherImage,
		LauncherPath:  c.LauncherPath,
	}
}
