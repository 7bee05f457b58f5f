package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	infraconfig "github.com/felixgeelhaar/clitool-registry/infrastructure/config"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/updater"
	api "github.com/felixgeelhaar/clitool-registry/interfaces/api"
)

// updateOptions holds options for the update and select-version commands.
type updateOptions struct {
	version string
}

// hostOptions picks the release a selectable strategy will install.
func (o *updateOptions) hostOptions() []api.HostOption {
	if o.version == "" {
		return nil
	}
	return []api.HostOption{
		api.WithBuilderOptions(infraconfig.WithChooser(updater.VersionChooser(o.version))),
	}
}

// newUpdateCmd creates the update command.
func (a *App) newUpdateCmd() *cobra.Command {
	opts := &updateOptions{}

	cmd := &cobra.Command{
		Use:   "update <tool-id>",
		Short: "Run the update strategy of a tool",
		Long: `Run the update strategy declared for a tool.

Tools without a strategy are left untouched. For selectable strategies
--version picks the release to install; without it the newest release
is installed.

Examples:
  clitools update ext.k8s.kubectl
  clitools update ext.k8s.kubectl --version 1.29.2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.update(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.version, "version", "", "Release to install (selectable strategies only)")

	return cmd
}

func (a *App) update(cmd *cobra.Command, id string, opts *updateOptions) error {
	ctx := cmd.Context()
	host, err := a.openHost(ctx, api.DeclareOptions{Detect: true, Strategies: true}, opts.hostOptions()...)
	if err != nil {
		return err
	}
	defer func() { _ = host.Close() }()

	if opts.version != "" {
		if _, err := host.SelectVersion(ctx, id); err != nil {
			return err
		}
	}

	if err := host.Update(ctx, id); err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}

	info, _ := host.Registry().GetToolInfo(id)
	fmt.Fprintf(a.stdout, "%s: %s\n", id, orDash(info.Version))
	return nil
}

// newSelectVersionCmd creates the select-version command.
func (a *App) newSelectVersionCmd() *cobra.Command {
	opts := &updateOptions{}

	cmd := &cobra.Command{
		Use:   "select-version <tool-id>",
		Short: "Show which release a selectable strategy would install",
		Long: `Ask the selectable strategy of a tool for the version it would install.

Tools without a selectable strategy fail with "no updater registered".

Examples:
  clitools select-version ext.k8s.kubectl
  clitools select-version ext.k8s.kubectl --version 1.29.2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.selectVersion(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.version, "version", "", "Release to select")

	return cmd
}

func (a *App) selectVersion(cmd *cobra.Command, id string, opts *updateOptions) error {
	ctx := cmd.Context()
	host, err := a.openHost(ctx, api.DeclareOptions{Strategies: true}, opts.hostOptions()...)
	if err != nil {
		return err
	}
	defer func() { _ = host.Close() }()

	version, err := host.SelectVersion(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, version)
	return nil
}
