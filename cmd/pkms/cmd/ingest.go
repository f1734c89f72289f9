package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pkms-dev/pkms/internal/collection"
	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/location"
	"github.com/pkms-dev/pkms/internal/output"
	"github.com/pkms-dev/pkms/internal/ui"
	"github.com/pkms-dev/pkms/internal/workspace"
)

type ingestOptions struct {
	collection string
	dryRun     bool
	workers    int
	plain      bool
	verbose    bool
	format     string
}

func newIngestCmd(g *globalOptions) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest [FILE...]",
		Short: "Index collections or individual files",
		Long: `Walk every configured collection (or only --collection), screen each
file against the naming convention, extract its text and store it in the
index.

With FILE arguments only those files are ingested. Each file is routed to
the collection with the deepest root that contains it.`,
		Example: `  pkms ingest
  pkms ingest --collection notes --dry-run
  pkms ingest ~/notes/20240101\ Groceries.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIngest(ctx, cmd, g, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.collection, "collection", "c", "", "Ingest only this collection")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Glob and screen only; report what would be indexed without indexing or writing")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Concurrent screen and index workers (default from config)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain text progress instead of the interactive view")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "List every file, including indexed and skipped ones")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, g *globalOptions, files []string, opts ingestOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return amerrors.Newf(amerrors.ErrCodeInvalidInput, "unknown format %q", opts.format)
	}
	if len(files) > 0 && opts.collection != "" {
		return amerrors.New(amerrors.ErrCodeInvalidInput, "--collection cannot be combined with FILE arguments", nil)
	}

	ws, err := g.openWorkspace()
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	out := cmd.OutOrStdout()
	text := opts.format == "text"

	var renderer ui.Renderer = ui.NewPlainRenderer(ui.NewConfig(cmd.ErrOrStderr(), ui.WithNoColor(true)))
	if text {
		renderer = ui.NewRenderer(ui.NewConfig(out,
			ui.WithForcePlain(opts.plain),
			ui.WithNoColor(ui.DetectNoColor()),
			ui.WithTitle(ws.Config().Dir)))
	}
	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start progress display: %w", err)
	}

	slog.Info("ingest_started",
		slog.String("collection", opts.collection),
		slog.Int("files", len(files)),
		slog.Bool("dry_run", opts.dryRun))

	reports, runErr := ingest(ctx, ws, renderer, files, opts)

	for _, r := range reports {
		ui.ReportErrors(renderer, r)
	}
	renderer.Complete(ui.StatsFromReports(reports...))
	_ = renderer.Stop()

	if !text {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else if opts.dryRun || opts.verbose {
		w := output.New(out, useColor(out))
		for _, r := range reports {
			w.Items(r, opts.verbose)
		}
	}

	if runErr != nil {
		return runErr
	}
	failed := 0
	for _, r := range reports {
		failed += r.Failed
	}
	if failed > 0 {
		return amerrors.Newf(amerrors.ErrCodeIndexFailed, "%d files failed to ingest", failed).
			WithSuggestion("Run 'pkms logs --level error' for details")
	}
	return nil
}

// ingest runs the selected ingest and returns one report per collection,
// or a single report for explicit files.
func ingest(ctx context.Context, ws *workspace.Workspace, r ui.Renderer, files []string, opts ingestOptions) ([]*collection.Report, error) {
	copts := collection.Options{DryRun: opts.dryRun, Workers: opts.workers}

	if len(files) > 0 {
		locs := make([]location.FileLocation, 0, len(files))
		for _, f := range files {
			loc, err := location.FromFilesystemPath(f, location.Native, location.FSOptions{Absolutize: true, Clean: true})
			if err != nil {
				return nil, err
			}
			locs = append(locs, loc)
		}
		copts.Progress = ui.ProgressFunc(r, "files")
		report, err := ws.IngestFiles(ctx, locs, copts)
		if report == nil {
			return nil, err
		}
		return []*collection.Report{report}, err
	}

	if opts.collection != "" {
		copts.Progress = ui.ProgressFunc(r, opts.collection)
		report, err := ws.IngestCollection(ctx, opts.collection, copts)
		if report == nil {
			return nil, err
		}
		return []*collection.Report{report}, err
	}

	if len(ws.Collections()) == 0 {
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid, "no collections configured", nil).
			WithSuggestion("Add a collection to pkms.yaml; 'pkms config' shows the current file")
	}
	copts.Progress = ui.ProgressFunc(r, "")
	return ws.IngestWorkspace(ctx, copts)
}
