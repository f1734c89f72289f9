package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pkms-dev/pkms/internal/config"
	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/storage"
	"github.com/pkms-dev/pkms/internal/ui"
)

func newStatusCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configured collections and index health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			info, err := collectStatus(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), !useColor(cmd.OutOrStdout()))
			if jsonOutput {
				return renderer.RenderJSON(info)
			}
			return renderer.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func collectStatus(ctx context.Context, cfg *config.Config) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		Workspace:   cfg.Dir,
		Config:      config.Path(cfg.Dir),
		Collections: []ui.CollectionStatus{},
	}

	var paths []string
	seen := map[string]bool{}
	addIndex := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, cc := range cfg.Collections {
		root, err := cfg.ResolvePath(cc.Root)
		if err != nil {
			return info, err
		}
		sc, err := cfg.CollectionStorage(cc)
		if err != nil {
			return info, err
		}
		dbPath, err := cfg.ResolvePath(sc.Path)
		if err != nil {
			return info, err
		}
		info.Collections = append(info.Collections, ui.CollectionStatus{Name: cc.Name, Root: root, Storage: dbPath})
		addIndex(dbPath)
	}
	if sc, err := cfg.SearchStorage(); err == nil {
		if p, err := cfg.ResolvePath(sc.Path); err == nil {
			addIndex(p)
		}
	}

	for _, p := range paths {
		info.Indexes = append(info.Indexes, indexStatus(ctx, p))
	}
	return info, nil
}

func indexStatus(ctx context.Context, path string) ui.IndexStatus {
	st := ui.IndexStatus{Path: path}
	fi, err := os.Stat(path)
	if err != nil {
		return st
	}
	st.Exists = true
	st.Size = fi.Size()
	st.ModTime = fi.ModTime()

	r, err := storage.OpenReader(ctx, path)
	if err != nil {
		slog.Warn("status_index_unreadable", append([]any{slog.String("path", path)}, amerrors.FormatForLog(err)...)...)
		return st
	}
	defer func() { _ = r.Close() }()
	if n, err := r.Count(ctx); err == nil {
		st.Records = n
	}
	return st
}
