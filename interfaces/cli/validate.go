package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	domainconfig "github.com/felixgeelhaar/clitool-registry/domain/config"
	infraconfig "github.com/felixgeelhaar/clitool-registry/infrastructure/config"
)

// validateOptions holds options for the validate command.
type validateOptions struct {
	strict bool
}

// newValidateCmd creates the validate command.
func (a *App) newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate a clitools configuration file.

This command checks:
  - File format (YAML or JSON)
  - Required fields and allowed values
  - Tool identity (extension id and name, no duplicates)
  - Update strategy declarations
  - Environment variable references (in strict mode)

Examples:
  clitools validate -c clitools.yaml

  # Fail on unset environment variables and unknown keys
  clitools validate -c clitools.yaml --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validateConfig(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail on missing env vars and unknown keys")

	return cmd
}

// validateConfig validates the configuration file.
func (a *App) validateConfig(opts *validateOptions) error {
	loader := infraconfig.NewLoaderWithOptions(
		infraconfig.WithValidation(true),
		infraconfig.WithStrictEnv(opts.strict),
		infraconfig.WithStrictFields(opts.strict),
	)
	config, err := loader.LoadFile(a.configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	result, err := infraconfig.NewBuilder(config).Build()
	if err != nil {
		return fmt.Errorf("configuration build failed: %w", err)
	}
	if result.Webhook != nil {
		_ = result.Webhook.Close()
	}

	fmt.Fprintf(a.stdout, "✓ Configuration is valid\n")
	fmt.Fprintf(a.stdout, "  Name: %s\n", config.Name)

	fmt.Fprintf(a.stdout, "\nConfiguration summary:\n")
	if config.ManagedDir != "" {
		fmt.Fprintf(a.stdout, "  Managed directory: %s\n", config.ManagedDir)
	}
	fmt.Fprintf(a.stdout, "  Journal: %s\n", config.Journal.Backend)
	if config.Cache.Backend != domainconfig.CacheNone {
		fmt.Fprintf(a.stdout, "  Release cache: %s (ttl %s)\n", config.Cache.Backend, config.Cache.TTL.Duration())
	}

	if len(result.Tools) > 0 {
		fmt.Fprintf(a.stdout, "  Tools: %d\n", len(result.Tools))
		for _, tool := range result.Tools {
			strategy := "none"
			if tool.Update != nil {
				strategy = tool.Update.Type
				if tool.Update.Selectable {
					strategy += " (selectable)"
				}
			}
			fmt.Fprintf(a.stdout, "    - %s [update: %s]\n", tool.ID(), strategy)
		}
	}

	if result.Webhook != nil {
		fmt.Fprintf(a.stdout, "  Webhooks: %d enabled\n", len(result.Webhook.Endpoints()))
	}
	if config.Tracing.Exporter != domainconfig.TraceNone {
		fmt.Fprintf(a.stdout, "  Tracing: %s\n", config.Tracing.Exporter)
	}

	return nil
}
