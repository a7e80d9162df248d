package launch

import (
	"errors"
	"testing"

	"github.com/railwayapp/stevedore/internal/environment"
	"github.com/railwayapp/stevedore/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var uvicorn = []string{"uvicorn", "src.main:app", "--host", "${HOST}", "--port", "${PORT}"}

func fakeLookPath(file string) (string, error) {
	return "/usr/local/bin/" + file, nil
}

func TestResolve_MissingVariableUsesDefault(t *testing.T) {
	port, err := Resolve(environment.FromPairs(nil), DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 8000, port)
}

func TestResolve_EmptyVariableUsesDefault(t *testing.T) {
	port, err := Resolve(environment.FromPairs([]string{"PORT="}), DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 8000, port)
}

func TestResolve_VariableOverridesDefault(t *testing.T) {
	port, err := Resolve(environment.FromPairs([]string{"PORT=3000"}), DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 3000, port)
}

func TestResolve_InvalidValuesFail(t *testing.T) {
	for _, raw := range []string{"abc", "999999", "0", "-1", "65536", "80.5", " 3000", "+3000", "0080"} {
		t.Run(raw, func(t *testing.T) {
			_, err := Resolve(environment.FromPairs([]string{"PORT=" + raw}), DefaultConfig())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPort), "got %v", err)
		})
	}
}

func TestResolve_NoDefaultAndNoVariable(t *testing.T) {
	_, err := Resolve(environment.FromPairs(nil), Config{PortEnv: "PORT"})
	assert.ErrorIs(t, err, ErrNoPort)
}

func TestResolve_LiteralIgnoresEnvironment(t *testing.T) {
	cfg := Config{DefaultPort: 8000, Host: "0.0.0.0"}
	port, err := Resolve(environment.FromPairs([]string{"PORT=5050"}), cfg)
	require.NoError(t, err)
	assert.Equal(t, 8000, port)
}

func TestResolve_CustomVariableName(t *testing.T) {
	cfg := Config{PortEnv: "HTTP_PORT", DefaultPort: 8000}
	port, err := Resolve(environment.FromPairs([]string{"PORT=1", "HTTP_PORT=9090"}), cfg)
	require.NoError(t, err)
	assert.Equal(t, 9090, port)
}

func TestConfigFromSpec_LiteralDropsVariable(t *testing.T) {
	cfg := ConfigFromSpec(schema.LaunchSpec{Style: schema.StyleLiteral, PortEnv: "PORT", DefaultPort: 8000, Host: "0.0.0.0"})
	assert.Empty(t, cfg.PortEnv)
	assert.Equal(t, 8000, cfg.DefaultPort)
}

func TestCommand_ExpandsOnlyHostAndPort(t *testing.T) {
	got := Command([]string{"serve", "--bind=$HOST:${PORT}", "--name=${APP_NAME}"}, "0.0.0.0", 8000)
	assert.Equal(t, []string{"serve", "--bind=0.0.0.0:8000", "--name=${APP_NAME}"}, got)
}

func TestCommand_LeavesOtherReferencesVerbatim(t *testing.T) {
	args := []string{"sh", "-c", `echo $FOO $1 $$ ${BAR:-x} $HOSTNAME $PORT_FILE`, "--port", "$PORT"}
	got := Command(args, "127.0.0.1", 9000)
	assert.Equal(t, []string{"sh", "-c", `echo $FOO $1 $$ ${BAR:-x} $HOSTNAME $PORT_FILE`, "--port", "9000"}, got)
}

func TestRun_ScenarioA_DefaultPort(t *testing.T) {
	var gotPath string
	var gotArgs, gotEnv []string
	l := New(nil, WithLookPath(fakeLookPath), WithExec(func(argv0 string, argv, envv []string) error {
		gotPath, gotArgs, gotEnv = argv0, argv, envv
		return nil
	}))

	err := l.Run(environment.FromPairs([]string{"HOME=/root"}), DefaultConfig(), uvicorn)
	require.NoError(t, err)

	assert.Equal(t, "/usr/local/bin/uvicorn", gotPath)
	assert.Equal(t, []string{"uvicorn", "src.main:app", "--host", "0.0.0.0", "--port", "8000"}, gotArgs)
	assert.Contains(t, gotEnv, "PORT=8000")
	assert.Contains(t, gotEnv, "HOME=/root")
}

func TestRun_ScenarioB_PortFromEnvironment(t *testing.T) {
	var gotArgs []string
	l := New(nil, WithLookPath(fakeLookPath), WithExec(func(_ string, argv, _ []string) error {
		gotArgs = argv
		return nil
	}))

	err := l.Run(environment.FromPairs([]string{"PORT=5050"}), DefaultConfig(), uvicorn)
	require.NoError(t, err)
	assert.Equal(t, []string{"uvicorn", "src.main:app", "--host", "0.0.0.0", "--port", "5050"}, gotArgs)
}

func TestRun_InvalidPortNeverExecs(t *testing.T) {
	called := false
	l := New(nil, WithLookPath(fakeLookPath), WithExec(func(string, []string, []string) error {
		called = true
		return nil
	}))

	err := l.Run(environment.FromPairs([]string{"PORT=abc"}), DefaultConfig(), uvicorn)
	assert.ErrorIs(t, err, ErrInvalidPort)
	assert.False(t, called, "service must not start with a malformed port")
}

func TestRun_ExecFailureIsReported(t *testing.T) {
	boom := errors.New("exec format error")
	l := New(nil, WithLookPath(fakeLookPath), WithExec(func(string, []string, []string) error {
		return boom
	}))

	err := l.Run(environment.FromPairs(nil), DefaultConfig(), uvicorn)
	assert.ErrorIs(t, err, boom)
}

func TestPlan_MissingBinary(t *testing.T) {
	l := New(nil, WithLookPath(func(file string) (string, error) {
		return "", errors.New("executable file not found in $PATH")
	}))

	_, err := l.Plan(environment.FromPairs(nil), DefaultConfig(), uvicorn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uvicorn")
}

func TestPlan_EmptyCommand(t *testing.T) {
	_, err := New(nil).Plan(environment.FromPairs(nil), DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestInvocation_Addr(t *testing.T) {
	inv, err := New(nil, WithLookPath(fakeLookPath)).Plan(environment.FromPairs([]string{"PORT=5050"}), DefaultConfig(), uvicorn)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:5050", inv.Addr())
	assert.Equal(t, SourceEnv, inv.PortSource)
}
