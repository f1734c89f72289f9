package watcher

import (
	"context"
	"log/slog"
	"os"

	"github.com/pkms-dev/pkms/internal/collection"
	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/location"
)

// Sink ingests a batch of changed files. *workspace.Workspace satisfies it.
type Sink interface {
	IngestFiles(ctx context.Context, locs []location.FileLocation, opts collection.Options) (*collection.Report, error)
}

// RunOptions tunes Run.
type RunOptions struct {
	Ingest collection.Options
	// OnReport, when set, receives every batch report.
	OnReport func(*collection.Report)
}

// Run ingests each batch until events closes or ctx is done. Creates and
// modifications of regular files are ingested; deletions and directories
// are skipped since removal is not tracked in the index. A failing batch
// is logged and the loop continues.
func Run(ctx context.Context, events <-chan []FileEvent, sink Sink, opts RunOptions) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			locs := Changed(batch)
			if len(locs) == 0 {
				continue
			}
			report, err := sink.IngestFiles(ctx, locs, opts.Ingest)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("watch_ingest_failed", amerrors.FormatForLog(err)...)
			}
			if report != nil {
				slog.Info("watch_batch_ingested",
					slog.Int("files", len(report.Items)),
					slog.Int("indexed", report.Count(collection.StatusIndexed)),
					slog.Int("failed", report.Failed))
				if opts.OnReport != nil {
					opts.OnReport(report)
				}
			}
		}
	}
}

// Changed returns the locations of created or modified regular files in
// batch, in batch order.
func Changed(batch []FileEvent) []location.FileLocation {
	var out []location.FileLocation
	for _, ev := range batch {
		if ev.IsDir || (ev.Operation != OpCreate && ev.Operation != OpModify) {
			continue
		}
		info, err := os.Stat(ev.Path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		loc, err := location.FromFilesystemPath(ev.Path, location.Native, location.FSOptions{Clean: true})
		if err != nil {
			slog.Debug("watch_path_skipped", slog.String("path", ev.Path), slog.String("error", err.Error()))
			continue
		}
		out = append(out, loc)
	}
	return out
}
