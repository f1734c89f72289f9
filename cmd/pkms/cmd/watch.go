package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pkms-dev/pkms/internal/collection"
	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/output"
	"github.com/pkms-dev/pkms/internal/watcher"
)

func newWatchCmd(g *globalOptions) *cobra.Command {
	var (
		debounce time.Duration
		polling  bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Ingest files as they change",
		Long: `Watch every collection root and ingest created or modified files
after a quiet period. Runs until interrupted.

Deleted files stay in the index.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, g, watcher.Options{DebounceWindow: debounce, ForcePolling: polling})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultOptions().DebounceWindow, "Quiet period before a batch of changes is ingested")
	cmd.Flags().BoolVar(&polling, "poll", false, "Poll for changes instead of using file system notifications")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, g *globalOptions, opts watcher.Options) error {
	ws, err := g.openWorkspace()
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	var roots []string
	for _, c := range ws.Collections() {
		p, err := c.Root().FilesystemPath()
		if err != nil {
			return err
		}
		roots = append(roots, p)
	}
	if len(roots) == 0 {
		return amerrors.New(amerrors.ErrCodeConfigInvalid, "no collections to watch", nil)
	}

	// The index and log files live in the workspace directory.
	opts.ExcludeDirs = append(opts.ExcludeDirs, ws.Config().Dir)
	w, err := watcher.New(opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	o := output.New(out, useColor(out))
	o.Statusf(">", "Watching %d collections (%s), Ctrl+C to stop", len(roots), w.Mode())

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return w.Start(ctx, roots...)
	})
	eg.Go(func() error {
		for err := range w.Errors() {
			slog.Warn("watch_error", slog.String("error", err.Error()))
		}
		return nil
	})
	eg.Go(func() error {
		defer func() { _ = w.Stop() }()
		return watcher.Run(ctx, w.Events(), ws, watcher.RunOptions{
			OnReport: func(r *collection.Report) {
				if n := r.Count(collection.StatusIndexed); n > 0 {
					o.Successf("Indexed %d files", n)
				}
				o.Items(r, false)
			},
		})
	})

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
