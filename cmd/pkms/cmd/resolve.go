package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/location"
	"github.com/pkms-dev/pkms/internal/output"
	"github.com/pkms-dev/pkms/internal/resolver"
)

// resolved is the JSON form of the resolve command.
type resolved struct {
	*resolver.Target
	Path string `json:"path"`
}

func newResolveCmd(g *globalOptions) *cobra.Command {
	var (
		convention string
		format     string
	)

	cmd := &cobra.Command{
		Use:   "resolve <uri>",
		Short: "Resolve a pkms:// URI to a file",
		Long: `Look up a pkms:// reference in the index and print where the file is.

The reference names a file by id: pkms:///file/id:<id><ext>.`,
		Example: `  pkms resolve pkms:///file/id:20240101.md
  pkms resolve pkms:///file/id:20240101.md --convention windows -f json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return amerrors.Newf(amerrors.ErrCodeInvalidInput, "unknown format %q", format)
			}
			conv, err := location.ParseConvention(convention)
			if err != nil {
				return err
			}

			ws, err := g.openWorkspace()
			if err != nil {
				return err
			}
			defer func() { _ = ws.Close() }()

			target, err := ws.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			path, err := target.Location.ToFilesystemPath(conv)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resolved{Target: target, Path: path})
			}
			output.New(out, useColor(out)).Target(target, path)
			return nil
		},
	}

	cmd.Flags().StringVar(&convention, "convention", "native", "Path convention for the printed path: posix, windows, native")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}
