package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/logging"
)

func newLogsCmd(g *globalOptions) *cobra.Command {
	var (
		lines   int
		follow  bool
		level   string
		pattern string
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View the workspace log file",
		Example: `  pkms logs -n 100
  pkms logs -f --level warn
  pkms logs --grep file_rejected`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Logging.File == "" {
				return amerrors.New(amerrors.ErrCodeConfigInvalid, "file logging is disabled", nil).
					WithSuggestion("Set logging.file in pkms.yaml")
			}
			path, err := cfg.ResolvePath(cfg.Logging.File)
			if err != nil {
				return err
			}

			vc := logging.ViewerConfig{Level: level, NoColor: noColor || !useColor(cmd.OutOrStdout())}
			if pattern != "" {
				re, err := regexp.Compile(pattern)
				if err != nil {
					return amerrors.New(amerrors.ErrCodeInvalidInput, fmt.Sprintf("invalid --grep pattern %q", pattern), err)
				}
				vc.Pattern = re
			}
			v := logging.NewViewer(vc, cmd.OutOrStdout())

			entries, err := v.Tail(path, lines)
			if err != nil {
				return amerrors.New(amerrors.ErrCodeFileNotFound, "cannot read log file", err).
					WithDetail("path", path)
			}
			v.Print(entries)
			if !follow {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ch := make(chan logging.Entry)
			errc := make(chan error, 1)
			go func() { errc <- v.Follow(ctx, path, ch) }()
			for {
				select {
				case e := <-ch:
					v.Print([]logging.Entry{e})
				case err := <-errc:
					return err
				}
			}
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level: debug, info, warn, error")
	cmd.Flags().StringVar(&pattern, "grep", "", "Only entries whose line matches this regular expression")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colors")

	return cmd
}
