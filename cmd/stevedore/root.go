package stevedore

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/railwayapp/stevedore/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var cfgFile string

// logger is replaced once flags are parsed
var logger = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:   "stevedore",
	Short: "Build container images for web services and start them on the port they are given",
	Long: `Stevedore takes a service's source tree and produces a container image for it:
1. Detect - Find the runtime, dependency manifests and start command
2. Plan   - Lay out the image so dependency installs are cached apart from the source
3. Build  - Render a Dockerfile (or BuildKit LLB) and build it with the Docker engine

Inside the image, "stevedore launch" starts the service on the port named by
$PORT, or on the declared default when the variable is absent.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(viper.GetBool("verbose"))
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.stevedore.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log debug output in a human-readable format")
	cobra.CheckErr(viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")))

	config.SetDefaults(viper.GetViper())
	config.BindEnv(viper.GetViper())

	rootCmd.AddCommand(detectCmd, planCmd, buildCmd, auditCmd, launchCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".stevedore")
	}

	if err := viper.ReadInConfig(); err != nil {
		if cfgFile != "" {
			cobra.CheckErr(fmt.Errorf("failed to read config file %s: %w", cfgFile, err))
		}
		return
	}
	fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
}

// newLogger writes to stderr so stdout stays parseable
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// loadConfig binds the command's flags to their config keys, then decodes
// flags, STEVEDORE_* variables and the config file into one Config.
func loadConfig(cmd *cobra.Command, keys map[string]string) (*config.Config, error) {
	for flag, key := range keys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return nil, fmt.Errorf("failed to bind --%s: %w", flag, err)
		}
	}
	return config.Load(viper.GetViper())
}

// planFlags are the image overrides shared by plan and build
var planFlags = map[string]string{
	"port":           "port",
	"port-env":       "port_env",
	"host":           "host",
	"workdir":        "workdir",
	"base-image":     "base_image",
	"style":          "style",
	"launcher-image": "launcher_image",
}

func addPlanFlags(flags *pflag.FlagSet) {
	flags.Int("port", 0, "port the service listens on when $PORT is unset (default: detected, else 8000)")
	flags.String("port-env", "PORT", "environment variable that carries the port")
	flags.String("host", "0.0.0.0", "address the service binds")
	flags.String("workdir", "/app", "working directory inside the image")
	flags.String("base-image", "", "base image (default: detected)")
	flags.String("style", "launcher", "entrypoint style: launcher, shell or literal")
	flags.String("launcher-image", "", "image the launcher binary is copied from")
}

// sourcePath resolves the source argument; a file path means its directory
func sourcePath(args []string) string {
	source := "."
	if len(args) > 0 {
		source = args[0]
		if stat, err := os.Stat(source); err == nil && !stat.IsDir() {
			source = filepath.Dir(source)
		}
	}
	return source
}
