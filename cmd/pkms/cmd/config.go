package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pkms-dev/pkms/configs"
	"github.com/pkms-dev/pkms/internal/config"
	amerrors "github.com/pkms-dev/pkms/internal/errors"
	"github.com/pkms-dev/pkms/internal/output"
)

func newConfigCmd(g *globalOptions) *cobra.Command {
	var (
		initCfg bool
		force   bool
		format  string
		add     string
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the workspace configuration",
		Long: `Print the effective workspace configuration: pkms.yaml merged over the
defaults, with PKMS_* environment overrides applied.

With --init, write a default pkms.yaml to the workspace directory. An
existing file is kept unless --force is given, in which case it is backed
up first.

With --add-collection NAME=ROOT, append a collection using the default
components. The previous file is backed up and comments are not kept.`,
		Example: `  pkms config --init
  pkms config -f json
  pkms config --add-collection notes=~/notes
  pkms --workspace ~/work-notes config --init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := g.dir()
			if err != nil {
				return err
			}
			if initCfg {
				return runConfigInit(cmd, dir, force)
			}
			if add != "" {
				return runConfigAdd(cmd, dir, add)
			}

			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			switch format {
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(cfg); err != nil {
					return err
				}
				return enc.Close()
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			default:
				return amerrors.Newf(amerrors.ErrCodeInvalidInput, "unknown format %q", format)
			}
		},
	}

	cmd.Flags().BoolVar(&initCfg, "init", false, "Write a default configuration file")
	cmd.Flags().BoolVar(&force, "force", false, "With --init, overwrite an existing file after backing it up")
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: yaml, json")
	cmd.Flags().StringVar(&add, "add-collection", "", "Append a collection given as NAME=ROOT")
	cmd.MarkFlagsMutuallyExclusive("init", "add-collection")

	return cmd
}

func runConfigInit(cmd *cobra.Command, dir string, force bool) error {
	out := output.New(cmd.OutOrStdout(), useColor(cmd.OutOrStdout()))
	path := config.Path(dir)

	if config.Exists(dir) {
		if !force {
			return amerrors.Newf(amerrors.ErrCodeConfigInvalid, "configuration already exists at %s", path).
				WithSuggestion("Use --force to overwrite it")
		}
		backup, err := config.Backup(path)
		if err != nil {
			return fmt.Errorf("failed to back up config: %w", err)
		}
		if backup != "" {
			out.Statusf("", "Backed up existing config to %s", backup)
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.WorkspaceTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	out.Successf("Created %s", path)
	out.Status("", "Add a collection under 'collections', then run 'pkms ingest'")
	return nil
}

func runConfigAdd(cmd *cobra.Command, dir, arg string) error {
	name, root, ok := strings.Cut(arg, "=")
	name, root = strings.TrimSpace(name), strings.TrimSpace(root)
	if !ok || name == "" || root == "" {
		return amerrors.Newf(amerrors.ErrCodeInvalidInput, "collection must be NAME=ROOT, got %q", arg)
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	cfg.Collections = append(cfg.Collections, config.CollectionConfig{Name: name, Root: root})
	if err := cfg.Validate(); err != nil {
		return err
	}

	path := config.Path(dir)
	if _, err := config.Backup(path); err != nil {
		return fmt.Errorf("failed to back up config: %w", err)
	}
	if err := cfg.WriteYAML(path); err != nil {
		return err
	}
	output.New(cmd.OutOrStdout(), useColor(cmd.OutOrStdout())).Successf("Added collection %s at %s", name, root)
	return nil
}
