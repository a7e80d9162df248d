package launch

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/railwayapp/stevedore/internal/environment"
	"github.com/railwayapp/stevedore/internal/schema"
)

var (
	// ErrInvalidPort is returned when the port variable is set to something that is not a port
	ErrInvalidPort = schema.ErrInvalidPort
	// ErrNoPort is returned when the variable is missing and there is no default to fall back to
	ErrNoPort = errors.New("no port configured")
)

// Config controls how the listening port is resolved.
// An empty PortEnv means the port is hardcoded to DefaultPort.
type Config struct {
	PortEnv     string
	DefaultPort int
	Host        string
}

func DefaultConfig() Config {
	return Config{
		PortEnv:     schema.DefaultPortEnv,
		DefaultPort: schema.DefaultPort,
		Host:        schema.DefaultHost,
	}
}

// ConfigFromSpec extracts the resolver settings of a launch spec
func ConfigFromSpec(spec schema.LaunchSpec) Config {
	cfg := Config{
		PortEnv:     spec.PortEnv,
		DefaultPort: spec.DefaultPort,
		Host:        spec.Host,
	}
	if spec.Style == schema.StyleLiteral {
		cfg.PortEnv = ""
	}
	return cfg
}

// Source says where a resolved port came from
type Source string

const (
	SourceEnv     Source = "env"
	SourceDefault Source = "default"
)

// Resolve picks the listening port: the PortEnv variable when present and
// non-empty, else DefaultPort. A malformed variable is an error, never a
// reason to fall back.
func Resolve(env environment.Snapshot, cfg Config) (int, error) {
	port, _, err := resolve(env, cfg)
	return port, err
}

func resolve(env environment.Snapshot, cfg Config) (int, Source, error) {
	if cfg.PortEnv != "" {
		if raw, ok := env.Lookup(cfg.PortEnv); ok && raw != "" {
			if !isDecimal(raw) {
				return 0, SourceEnv, fmt.Errorf("%w: %s=%q is not a plain decimal number", ErrInvalidPort, cfg.PortEnv, raw)
			}
			port, err := strconv.Atoi(raw)
			if err != nil {
				return 0, SourceEnv, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidPort, cfg.PortEnv, raw)
			}
			if err := schema.ValidatePort(port); err != nil {
				return 0, SourceEnv, fmt.Errorf("%s=%q: %w", cfg.PortEnv, raw, err)
			}
			return port, SourceEnv, nil
		}
	}

	if cfg.DefaultPort == 0 {
		if cfg.PortEnv == "" {
			return 0, SourceDefault, ErrNoPort
		}
		return 0, SourceDefault, fmt.Errorf("%w: %s is unset and there is no default", ErrNoPort, cfg.PortEnv)
	}
	if err := schema.ValidatePort(cfg.DefaultPort); err != nil {
		return 0, SourceDefault, fmt.Errorf("default port: %w", err)
	}
	return cfg.DefaultPort, SourceDefault, nil
}

var placeholder = regexp.MustCompile(`\$(?:\{(HOST|PORT)\}|(HOST|PORT)\b)`)

// Command substitutes ${HOST}/$HOST and ${PORT}/$PORT in args.
// Any other text, including other variable references and $$, is left as is.
func Command(args []string, host string, port int) []string {
	values := map[string]string{
		"HOST": host,
		"PORT": strconv.Itoa(port),
	}

	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = placeholder.ReplaceAllStringFunc(arg, func(ref string) string {
			m := placeholder.FindStringSubmatch(ref)
			return values[m[1]+m[2]]
		})
	}
	return out
}

// isDecimal rejects signs, whitespace and leading zeros that strconv.Atoi accepts
func isDecimal(s string) bool {
	if s == "" || (s[0] == '0' && len(s) > 1) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
