package stevedore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var detectCmd = &cobra.Command{
	Use:   "detect [source-path]",
	Short: "Show what stevedore detects in a project without planning an image",
	Long: `Detect scans the source tree for runtime signals (dependency manifests,
Procfile, docker compose files, an existing Dockerfile) and the environment
variables the code reads. Values of variables that look like credentials are
never printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		source := sourcePath(args)

		src, result, err := detectProject(cmd.Context(), source)
		if err != nil {
			return err
		}
		defer src.Close()

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		fmt.Fprintf(out, "Detected %s project %q in %s\n", result.Runtime, result.Name, source)
		fmt.Fprintf(out, "  Base image: %s\n", result.BaseImage)
		if len(result.Manifests) > 0 {
			fmt.Fprintf(out, "  Manifests:  %s\n", strings.Join(result.Manifests, ", "))
		}
		if result.Install != "" {
			fmt.Fprintf(out, "  Install:    %s\n", result.Install)
		}
		if result.Build != "" {
			fmt.Fprintf(out, "  Build:      %s\n", result.Build)
		}
		if len(result.Command) > 0 {
			fmt.Fprintf(out, "  Command:    %s\n", strings.Join(result.Command, " "))
		}
		if result.Port != 0 {
			fmt.Fprintf(out, "  Port hint:  %d\n", result.Port)
		}
		if result.Dockerfile != "" {
			fmt.Fprintf(out, "  Dockerfile: %s\n", result.Dockerfile)
		}

		fmt.Fprintf(out, "  Config sources (%d):\n", len(result.Configs))
		for _, config := range result.Configs {
			fmt.Fprintf(out, "    - %s: %s\n", config.Type, config.Path)
		}

		fmt.Fprintf(out, "  Environment variables (%d):\n", len(result.Env))
		for _, v := range result.Env {
			line := fmt.Sprintf("    - %s (%s)", v.Name, v.Type)
			switch {
			case v.Sensitive:
				line += " [sensitive]"
			case v.Default != "":
				line += fmt.Sprintf(" default=%q", v.Default)
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

func init() {
	detectCmd.Flags().Bool("json", false, "print the detection result as JSON")
}
