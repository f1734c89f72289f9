// Package cmd provides the CLI commands for pkms.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pkms-dev/pkms/internal/config"
	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/logging"
	"github.com/pkms-dev/pkms/internal/output"
	"github.com/pkms-dev/pkms/internal/profiling"
	"github.com/pkms-dev/pkms/internal/ui"
	"github.com/pkms-dev/pkms/internal/workspace"
	"github.com/pkms-dev/pkms/pkg/version"
)

// globalOptions holds the persistent flags.
type globalOptions struct {
	workspace string
	debug     bool
	profile   profiling.Options

	loggingCleanup func()
	profiler       *profiling.Session
}

// NewRootCmd creates the root command for the pkms CLI.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "pkms",
		Short: "Personal file indexer with full-text search",
		Long: `pkms indexes directories of personal files (notes, saved web pages)
into a local SQLite database and searches them with full-text queries.

Files are named "<id> <title><ext>", for example "20240101 Groceries.md".
Each file is addressable as pkms:///file/id:<id><ext>.

The workspace directory (default ~/.pkms) holds pkms.yaml and the index.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("pkms version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&g.workspace, "workspace", "w", "", "Workspace directory (default $PKMS_WORKSPACE_DIR or ~/.pkms)")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Log at debug level and copy logs to stderr")
	cmd.PersistentFlags().StringVar(&g.profile.CPU, "profile-cpu", "", "Write a CPU profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.Mem, "profile-mem", "", "Write a heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&g.profile.Trace, "profile-trace", "", "Write an execution trace to file")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if err := g.startLogging(); err != nil {
			return err
		}
		if g.profile.Enabled() {
			p, err := profiling.Start(g.profile)
			if err != nil {
				return err
			}
			g.profiler = p
		}
		return nil
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		err := g.profiler.Stop()
		g.stopLogging()
		return err
	}

	cmd.AddCommand(newIngestCmd(g))
	cmd.AddCommand(newSearchCmd(g))
	cmd.AddCommand(newResolveCmd(g))
	cmd.AddCommand(newWatchCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newStatusCmd(g))
	cmd.AddCommand(newLogsCmd(g))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints a failing command's error.
func Execute() error {
	root := NewRootCmd()
	err := root.ExecuteContext(context.Background())
	if err != nil {
		output.New(os.Stderr, useColor(os.Stderr)).Err(err)
	}
	return err
}

// dir resolves the workspace directory.
func (g *globalOptions) dir() (string, error) {
	return config.ResolveDir(g.workspace)
}

// loadConfig loads the workspace configuration.
func (g *globalOptions) loadConfig() (*config.Config, error) {
	dir, err := g.dir()
	if err != nil {
		return nil, err
	}
	return config.Load(dir)
}

// openWorkspace loads the configuration and composes the workspace.
func (g *globalOptions) openWorkspace() (*workspace.Workspace, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	return workspace.New(cfg)
}

// startLogging sends logs to the workspace log file. Without a workspace
// configuration only warnings reach stderr; --debug copies everything to
// stderr.
func (g *globalOptions) startLogging() error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = g.debug
	logCfg.Level = "warn"

	if cfg, err := g.loadConfig(); err == nil {
		logCfg.Level = cfg.Logging.Level
		logCfg.MaxSizeMB = cfg.Logging.MaxSizeMB
		logCfg.MaxFiles = cfg.Logging.MaxFiles
		if cfg.Logging.File != "" {
			path, err := cfg.ResolvePath(cfg.Logging.File)
			if err != nil {
				return fmt.Errorf("failed to resolve log file: %w", err)
			}
			logCfg.FilePath = path
		}
	} else if amerrors.GetCode(err) != amerrors.ErrCodeConfigNotFound {
		// Commands that need the config report this themselves.
		slog.Debug("config_unavailable", amerrors.FormatForLog(err)...)
	}
	if logCfg.FilePath == "" {
		logCfg.WriteToStderr = true
	}
	if g.debug {
		logCfg.Level = "debug"
	}

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	g.loggingCleanup = cleanup
	slog.Debug("logging_started",
		slog.String("log_file", logCfg.FilePath),
		slog.String("version", version.Short()))
	return nil
}

func (g *globalOptions) stopLogging() {
	if g.loggingCleanup != nil {
		g.loggingCleanup()
		g.loggingCleanup = nil
	}
}

// useColor reports whether output to w may be colored.
func useColor(w io.Writer) bool {
	return !ui.DetectNoColor() && ui.IsTTY(w)
}
