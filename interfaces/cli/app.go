// Package cli provides the clitools command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	clitoolregistry "github.com/felixgeelhaar/clitool-registry"
	api "github.com/felixgeelhaar/clitool-registry/interfaces/api"
)

// Version information, overridable at build time.
var (
	Version   = clitoolregistry.Version
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// DefaultConfigPath is used when neither --config nor CLITOOLS_CONFIG is set.
const DefaultConfigPath = "clitools.yaml"

// App represents the CLI application.
type App struct {
	root       *cobra.Command
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	hostOpts   []api.HostOption
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "clitools",
		Short: "Track and update the command-line tools your extensions depend on",
		Long: `clitools keeps a registry of the command-line tools contributed by
extensions: where each binary lives, which version is installed, and how
it can be updated.

Tools and their update strategies are declared in a YAML or JSON
configuration file (see "clitools export-schema").`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultPath := os.Getenv("CLITOOLS_CONFIG")
	if defaultPath == "" {
		defaultPath = DefaultConfigPath
	}
	app.root.PersistentFlags().StringVarP(&app.configPath, "config", "c", defaultPath, "Path to configuration file (env CLITOOLS_CONFIG)")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newValidateCmd(),
		app.newExportSchemaCmd(),
		app.newListCmd(),
		app.newUpdateCmd(),
		app.newSelectVersionCmd(),
		app.newHistoryCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// WithHostOptions passes options to every host the CLI opens.
func (a *App) WithHostOptions(opts ...api.HostOption) *App {
	a.hostOpts = append(a.hostOpts, opts...)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

// openHost loads the configuration and declares its tools.
func (a *App) openHost(ctx context.Context, declare api.DeclareOptions, extra ...api.HostOption) (*api.Host, error) {
	cfg, err := api.LoadConfig(a.configPath)
	if err != nil {
		return nil, err
	}

	opts := append([]api.HostOption{api.WithLogOutput(a.stderr)}, a.hostOpts...)
	opts = append(opts, extra...)
	host, err := api.NewHost(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}

	if err := host.Declare(ctx, declare); err != nil {
		_ = host.Close()
		return nil, err
	}
	return host, nil
}

// newVersionCmd creates the version command.
func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "clitools version %s\n", Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}
