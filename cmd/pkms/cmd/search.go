package cmd

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/output"
	"github.com/pkms-dev/pkms/internal/search"
)

type searchOptions struct {
	limit  int
	offset int
	format string
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Search titles and content with a full-text query.

Words are matched as prefixes and all must appear. Quote a phrase to match
it exactly. Results are ranked by relevance.`,
		Example: `  pkms search groceries
  pkms search '"tomato soup"' -n 5
  pkms search garden --offset 10 -f json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != "text" && opts.format != "json" {
				return amerrors.Newf(amerrors.ErrCodeInvalidInput, "unknown format %q", opts.format)
			}
			ws, err := g.openWorkspace()
			if err != nil {
				return err
			}
			defer func() { _ = ws.Close() }()

			query := strings.Join(args, " ")
			res, err := ws.Search(cmd.Context(), search.Arguments{
				Query:  query,
				Limit:  opts.limit,
				Offset: opts.offset,
			})
			if err != nil {
				return err
			}
			slog.Info("search_completed", slog.String("query", query), slog.Int("results", len(res.Hits)))

			out := cmd.OutOrStdout()
			if opts.format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			output.New(out, useColor(out)).Hits(res)
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Number of results to skip")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}
