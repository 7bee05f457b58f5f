package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/clitool-registry/domain/event"
	api "github.com/felixgeelhaar/clitool-registry/interfaces/api"
)

// historyOptions holds options for the history command.
type historyOptions struct {
	outputJSON bool
	types      []string
	limit      int
}

// newHistoryCmd creates the history command.
func (a *App) newHistoryCmd() *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history <tool-id>",
		Short: "Show the journal of a tool",
		Long: `Show the journaled lifecycle and update events of a tool.

History survives between runs only with the badger journal backend.

Examples:
  clitools history ext.k8s.kubectl
  clitools history ext.k8s.kubectl --type update.failed --limit 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.history(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.outputJSON, "json", false, "Output as JSON")
	cmd.Flags().StringSliceVar(&opts.types, "type", nil, "Only show these event types")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Maximum number of events (0 = all)")

	return cmd
}

func (a *App) history(cmd *cobra.Command, id string, opts *historyOptions) error {
	ctx := cmd.Context()
	host, err := a.openHost(ctx, api.DeclareOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = host.Close() }()

	query := event.QueryOptions{Limit: opts.limit}
	for _, t := range opts.types {
		query.Types = append(query.Types, event.Type(t))
	}

	events, err := host.QueryHistory(ctx, id, query)
	if err != nil {
		return err
	}

	if opts.outputJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	if len(events) == 0 {
		fmt.Fprintf(a.stdout, "No history for %s.\n", id)
		return nil
	}

	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tTIME\tTYPE\tDETAILS")
	for _, e := range events {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Sequence, e.Timestamp.Format(time.RFC3339), e.Type, string(e.Payload))
	}
	return w.Flush()
}
