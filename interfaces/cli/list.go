package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	api "github.com/felixgeelhaar/clitool-registry/interfaces/api"
)

// listOptions holds options for the list command.
type listOptions struct {
	outputJSON   bool
	noDetect     bool
	noStrategies bool
}

// newListCmd creates the list command.
func (a *App) newListCmd() *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List declared tools with their versions and available updates",
		Long: `List every tool declared in the configuration.

Each binary is detected (managed directory first, then PATH) and every
declared update strategy is resolved, which may query GitHub releases.

Examples:
  clitools list
  clitools list --json
  clitools list --no-strategies`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.list(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.outputJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&opts.noDetect, "no-detect", false, "Skip binary detection")
	cmd.Flags().BoolVar(&opts.noStrategies, "no-strategies", false, "Skip resolving update strategies")

	return cmd
}

func (a *App) list(cmd *cobra.Command, opts *listOptions) error {
	ctx := cmd.Context()
	host, err := a.openHost(ctx, api.DeclareOptions{
		Detect:     !opts.noDetect,
		Strategies: !opts.noStrategies,
	})
	if err != nil {
		return err
	}
	defer func() { _ = host.Close() }()

	infos := host.Registry().ListToolInfos()

	if opts.outputJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	if len(infos) == 0 {
		fmt.Fprintln(a.stdout, "No tools declared.")
		return nil
	}

	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tVERSION\tNEW VERSION\tUPDATABLE\tPATH")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			info.ID,
			info.State,
			orDash(info.Version),
			orDash(info.NewVersion),
			yesNo(info.CanUpdate),
			orDash(info.Path),
		)
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
