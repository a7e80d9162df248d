package stevedore

import (
	"encoding/json"

	"github.com/railwayapp/stevedore/internal/environment"
	"github.com/railwayapp/stevedore/internal/launch"
	"github.com/railwayapp/stevedore/internal/schema"
	"github.com/spf13/cobra"
)

var launchCmd = &cobra.Command{
	Use:   "launch [flags] -- command [args...]",
	Short: "Start a service on the port given by the environment",
	Long: `Launch resolves the listening port from --port-env, falling back to
--default-port only when the variable is unset or empty. A value that is not
a port is an error and the service is never started. ${HOST} and ${PORT} in
the command are expanded, the port variable is exported to the service, and
the service replaces this process.

This is the image ENTRYPOINT; it is configured by flags only.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		portEnv, _ := cmd.Flags().GetString("port-env")
		defaultPort, _ := cmd.Flags().GetInt("default-port")
		host, _ := cmd.Flags().GetString("host")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		envFiles, _ := cmd.Flags().GetStringSlice("env-file")

		env := environment.FromOS()
		if len(envFiles) > 0 {
			loaded, err := environment.Load(envFiles...)
			if err != nil {
				return err
			}
			// variables already set win over env files
			env = loaded.Merge(env)
		}

		cfg := launch.Config{PortEnv: portEnv, DefaultPort: defaultPort, Host: host}
		launcher := launch.New(logger)

		if dryRun {
			inv, err := launcher.Plan(env, cfg, args)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				launch.Invocation
				Addr string   `json:"addr"`
				Env  []string `json:"env"`
			}{inv, inv.Addr(), environment.Redact(inv.Env)})
		}

		return launcher.Run(env, cfg, args)
	},
}

func init() {
	launchCmd.Flags().SetInterspersed(false)
	launchCmd.Flags().String("port-env", schema.DefaultPortEnv, "environment variable that carries the port; empty hardcodes --default-port")
	launchCmd.Flags().Int("default-port", schema.DefaultPort, "port used when the variable is unset or empty; 0 makes the variable required")
	launchCmd.Flags().String("host", schema.DefaultHost, "address substituted for ${HOST}")
	launchCmd.Flags().Bool("dry-run", false, "print the resolved invocation instead of starting it")
	launchCmd.Flags().StringSlice("env-file", nil, "dotenv files read before the process environment")
}
