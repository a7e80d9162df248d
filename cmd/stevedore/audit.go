package stevedore

import (
	"fmt"
	"io"
	"os"

	"github.com/railwayapp/stevedore/internal/dockerfile"
	"github.com/railwayapp/stevedore/internal/schema"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit [Dockerfile]",
	Short: "Check a Dockerfile's layer layout",
	Long: `Audit parses a Dockerfile and reports layout problems: an unpinned base image,
dependency installs that follow the source copy, a service that is not
exec'd, and a missing EXPOSE. Use "-" to read from stdin. Exits non-zero
when any error is found; warnings alone pass.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "Dockerfile"
		if len(args) > 0 {
			path = args[0]
		}

		var content []byte
		var err error
		if path == "-" {
			content, err = io.ReadAll(cmd.InOrStdin())
		} else {
			content, err = os.ReadFile(path)
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		violations, err := dockerfile.Audit(content)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		errorCount := 0
		for _, v := range violations {
			if v.Severity == schema.SeverityError {
				errorCount++
			}
			fmt.Fprintf(out, "%s:%d: %s: %s [%s]\n", path, v.Line, v.Severity, v.Message, v.Rule)
		}

		if errorCount > 0 {
			return fmt.Errorf("%s: %d error(s), %d warning(s)", path, errorCount, len(violations)-errorCount)
		}
		if len(violations) == 0 {
			fmt.Fprintf(out, "%s: ok\n", path)
		}
		return nil
	},
}
