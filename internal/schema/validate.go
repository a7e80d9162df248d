package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/distribution/reference"
	"github.com/docker/go-connections/nat"
)

var (
	ErrMissingBase   = errors.New("image has no base layer")
	ErrUnpinnedBase  = errors.New("base image is not pinned to a version")
	ErrNoWorkdir     = errors.New("files are copied before a working directory is set")
	ErrLayerOrder    = errors.New("dependency layers must precede the source copy")
	ErrNoSource      = errors.New("image never copies the application source")
	ErrInvalidPort   = errors.New("invalid port")
	ErrInvalidLaunch = errors.New("invalid launch configuration")
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Violation is one broken layer-layout rule
type Violation struct {
	Rule     string   `json:"rule" yaml:"rule"`
	Severity Severity `json:"severity" yaml:"severity"`
	Layer    int      `json:"layer" yaml:"layer"` // index into ImageSpec.Layers, -1 for the whole image
	Line     int      `json:"line,omitempty" yaml:"line,omitempty"`
	Message  string   `json:"message" yaml:"message"`
	Err      error    `json:"-" yaml:"-"`
}

func (v Violation) Error() string {
	if v.Line > 0 {
		return fmt.Sprintf("line %d: %s", v.Line, v.Message)
	}
	return v.Message
}

func (v Violation) Unwrap() error {
	return v.Err
}

// ValidatePort checks that n is a usable TCP port
func ValidatePort(n int) error {
	if n < 1 || n > 65535 {
		return fmt.Errorf("%w: %d is outside 1-65535", ErrInvalidPort, n)
	}
	return nil
}

// ParsePort parses an EXPOSE-style port ("8000" or "8000/tcp")
func ParsePort(raw string) (int, error) {
	proto, port := nat.SplitProtoPort(raw)
	if proto != "tcp" && proto != "udp" && proto != "sctp" {
		return 0, fmt.Errorf("%w: unknown protocol %q", ErrInvalidPort, proto)
	}
	n, err := nat.ParsePort(port)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, raw)
	}
	if err := ValidatePort(n); err != nil {
		return 0, err
	}
	return n, nil
}

// CheckBaseImage reports whether ref names a reproducible base image.
// pinnedByDigest is false for tag-only references.
func CheckBaseImage(ref string) (pinnedByDigest bool, err error) {
	if ref == "scratch" {
		return true, nil
	}

	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return false, fmt.Errorf("%w: %q: %v", ErrUnpinnedBase, ref, err)
	}

	if _, ok := named.(reference.Digested); ok {
		return true, nil
	}

	tagged, ok := named.(reference.Tagged)
	if !ok {
		return false, fmt.Errorf("%w: %q has no tag", ErrUnpinnedBase, ref)
	}
	if tagged.Tag() == "latest" {
		return false, fmt.Errorf("%w: %q uses the floating latest tag", ErrUnpinnedBase, ref)
	}
	return false, nil
}

// CheckImage runs every layout rule over spec and returns all violations in layer order
func CheckImage(spec ImageSpec) []Violation {
	var violations []Violation
	add := func(rule string, severity Severity, idx int, err error, format string, args ...any) {
		v := Violation{Rule: rule, Severity: severity, Layer: idx, Message: fmt.Sprintf(format, args...), Err: err}
		if idx >= 0 {
			v.Line = spec.Layers[idx].Line
		}
		violations = append(violations, v)
	}

	if len(spec.Layers) == 0 || spec.Layers[0].Instruction != InstructionFrom {
		add("base-first", SeverityError, -1, ErrMissingBase, "the first instruction must be FROM")
		return violations
	}

	base := spec.Layers[0]
	if len(base.Args) == 0 {
		add("base-pinned", SeverityError, 0, ErrUnpinnedBase, "FROM has no image reference")
	} else if digested, err := CheckBaseImage(base.Args[0]); err != nil {
		add("base-pinned", SeverityError, 0, ErrUnpinnedBase, "%s", err.Error())
	} else if !digested {
		add("base-digest", SeverityWarning, 0, nil, "base image %s is pinned by tag only; a digest makes rebuilds byte-identical", base.Args[0])
	}

	workdirSet := false
	sourceAt, manifestAt, installAt := -1, -1, -1
	exposed, hasCommand := false, false

	for i, layer := range spec.Layers {
		switch layer.Instruction {
		case InstructionWorkdir:
			workdirSet = true
		case InstructionCopy:
			if layer.From == "" && !workdirSet {
				add("workdir-before-copy", SeverityError, i, ErrNoWorkdir, "COPY %s runs before any WORKDIR", strings.Join(layer.Args, " "))
				workdirSet = true // report once
			}
		case InstructionExpose:
			exposed = true
			for _, arg := range layer.Args {
				if _, err := ParsePort(arg); err != nil {
					add("expose-port", SeverityError, i, ErrInvalidPort, "EXPOSE %s is not a valid port", arg)
				}
			}
		case InstructionEntrypoint, InstructionCmd:
			hasCommand = true
			if !layer.Exec && len(layer.Args) > 0 && !execsService(layer.Args[0]) {
				add("exec-handoff", SeverityWarning, i, nil, "shell-form %s keeps /bin/sh as PID 1; prefix the command with exec so signals reach the service", layer.Instruction)
			}
		}

		switch layer.Role {
		case RoleManifest:
			if sourceAt >= 0 {
				add("manifest-before-source", SeverityError, i, ErrLayerOrder, "dependency manifest is copied after the application source (line %d)", spec.Layers[sourceAt].Line)
			} else if manifestAt < 0 {
				manifestAt = i
			}
		case RoleInstall:
			if sourceAt >= 0 {
				add("install-before-source", SeverityError, i, ErrLayerOrder, "dependencies are installed after the application source is copied, so any source edit reinstalls them")
			} else if installAt < 0 {
				installAt = i
			}
		case RoleSource:
			if sourceAt < 0 {
				sourceAt = i
			}
		}
	}

	if sourceAt < 0 {
		add("source-copy", SeverityError, -1, ErrNoSource, "no COPY brings in the application source")
	}
	if manifestAt >= 0 && installAt < 0 {
		add("install-step", SeverityWarning, manifestAt, nil, "dependency manifest is copied but never installed before the source copy")
	}
	if installAt >= 0 && manifestAt < 0 {
		add("manifest-copy", SeverityWarning, installAt, nil, "dependency install runs without a dedicated manifest copy")
	}
	if !exposed {
		add("expose", SeverityWarning, -1, nil, "no EXPOSE documents the listening port")
	}
	if !hasCommand {
		add("command", SeverityWarning, -1, nil, "no ENTRYPOINT or CMD; the base image command will run")
	}

	return violations
}

// execsService reports whether a shell-form command ends by exec-ing the service
func execsService(cmd string) bool {
	cmd = strings.TrimSpace(cmd)
	return strings.HasPrefix(cmd, "exec ") || strings.Contains(cmd, "; exec ") || strings.Contains(cmd, "&& exec ")
}

// ValidateImage returns the error-severity violations of spec joined into one error
func ValidateImage(spec ImageSpec) error {
	var errs []error
	for _, v := range CheckImage(spec) {
		if v.Severity == SeverityError {
			errs = append(errs, v)
		}
	}
	return errors.Join(errs...)
}

// ValidateLaunch checks that a launch spec can produce a bound service
func ValidateLaunch(l LaunchSpec) error {
	if len(l.Command) == 0 {
		return fmt.Errorf("%w: empty command", ErrInvalidLaunch)
	}
	if l.Host == "" {
		return fmt.Errorf("%w: empty bind address", ErrInvalidLaunch)
	}

	switch l.Style {
	case StyleLauncher:
		if l.DefaultPort == 0 && l.PortEnv == "" {
			return fmt.Errorf("%w: no port variable and no default port", ErrInvalidLaunch)
		}
		if l.DefaultPort != 0 {
			if err := ValidatePort(l.DefaultPort); err != nil {
				return fmt.Errorf("%w: default port: %w", ErrInvalidLaunch, err)
			}
		}
	case StyleShell:
		if l.PortEnv == "" {
			return fmt.Errorf("%w: shell style needs a port variable", ErrInvalidLaunch)
		}
		if err := ValidatePort(l.DefaultPort); err != nil {
			return fmt.Errorf("%w: default port: %w", ErrInvalidLaunch, err)
		}
	case StyleLiteral:
		if err := ValidatePort(l.DefaultPort); err != nil {
			return fmt.Errorf("%w: port: %w", ErrInvalidLaunch, err)
		}
	default:
		return fmt.Errorf("%w: unknown style %q", ErrInvalidLaunch, l.Style)
	}
	return nil
}

// Validate checks both halves of a plan
func (p *Plan) Validate() error {
	return errors.Join(ValidateImage(p.Image), ValidateLaunch(p.Launch))
}
