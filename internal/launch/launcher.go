package launch

import (
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/railwayapp/stevedore/internal/environment"
	"go.uber.org/zap"
)

var ErrEmptyCommand = errors.New("no service command given")

// Invocation is a fully resolved service process
type Invocation struct {
	Path       string   `json:"path"`
	Args       []string `json:"args"`
	Env        []string `json:"-"`
	Host       string   `json:"host"`
	Port       int      `json:"port"`
	PortSource Source   `json:"portSource"`
}

// Addr is the host:port the service will bind
func (i Invocation) Addr() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

// ExecFunc replaces the current process image; it only returns on failure
type ExecFunc func(argv0 string, argv []string, envv []string) error

type LookPathFunc func(file string) (string, error)

type Launcher struct {
	logger   *zap.Logger
	exec     ExecFunc
	lookPath LookPathFunc
}

type Option func(*Launcher)

// WithExec replaces syscall.Exec, for tests
func WithExec(fn ExecFunc) Option {
	return func(l *Launcher) { l.exec = fn }
}

func WithLookPath(fn LookPathFunc) Option {
	return func(l *Launcher) { l.lookPath = fn }
}

func New(logger *zap.Logger, opts ...Option) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Launcher{
		logger:   logger,
		exec:     syscall.Exec,
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Plan resolves the port and the service argv without starting anything
func (l *Launcher) Plan(env environment.Snapshot, cfg Config, args []string) (Invocation, error) {
	if len(args) == 0 {
		return Invocation{}, ErrEmptyCommand
	}

	port, source, err := resolve(env, cfg)
	if err != nil {
		return Invocation{}, err
	}

	host := cfg.Host
	if host == "" {
		host = DefaultConfig().Host
	}

	argv := Command(args, host, port)
	path, err := l.lookPath(argv[0])
	if err != nil {
		return Invocation{}, fmt.Errorf("failed to find %s: %w", argv[0], err)
	}

	childEnv := env
	if cfg.PortEnv != "" {
		childEnv = env.With(cfg.PortEnv, strconv.Itoa(port))
	}

	return Invocation{
		Path:       path,
		Args:       argv,
		Env:        childEnv.Pairs(),
		Host:       host,
		Port:       port,
		PortSource: source,
	}, nil
}

// Run resolves the invocation and replaces the current process with it.
// No wrapper process remains, so signals go straight to the service.
// It returns only if resolution or the exec itself fails.
func (l *Launcher) Run(env environment.Snapshot, cfg Config, args []string) error {
	inv, err := l.Plan(env, cfg, args)
	if err != nil {
		return err
	}

	l.logger.Info("starting service",
		zap.String("path", inv.Path),
		zap.Strings("args", inv.Args),
		zap.String("addr", inv.Addr()),
		zap.String("port_source", string(inv.PortSource)),
	)
	_ = l.logger.Sync()

	if err := l.exec(inv.Path, inv.Args, inv.Env); err != nil {
		return fmt.Errorf("failed to exec %s: %w", inv.Path, err)
	}
	return nil
}
