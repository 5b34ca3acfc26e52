package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/orchestrator"
)

// NewInstallCmd creates the install command.
func NewInstallCmd() *cobra.Command {
	var (
		dryRun  bool
		cleanup bool
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the configured extensions",
		Long: `Resolve the configured registry and local extensions, build the local
projects and install everything into the extensions directory.
An unchanged configuration is served from the dependency cache.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInstall(cmd.Context(), cmd.OutOrStdout(), dryRun, cleanup)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Resolve and print the plan without installing")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Remove package folders the installation no longer uses")

	return cmd
}

// NewResolveCmd creates the resolve command, a dry-run install.
func NewResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the configured extensions without installing",
		Long:  "Resolve the configured extensions and print the package ids that would be installed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInstall(cmd.Context(), cmd.OutOrStdout(), true, false)
		},
	}

	return cmd
}

func runInstall(ctx context.Context, out io.Writer, dryRun, cleanup bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	orch := s.orchestrator(progressHooks())

	if dryRun {
		set, err := orch.Plan(ctx, s.request)
		if err != nil {
			return err
		}
		ids := set.PackageIDs()
		if jsonOutput(cfg) {
			return json.NewEncoder(out).Encode(map[string][]string{"packages": ids})
		}
		if len(ids) == 0 {
			fmt.Fprintln(out, "Nothing to install")
			return nil
		}
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
		return nil
	}

	installed, err := orch.Install(ctx, s.request, orchestrator.InstallOptions{})
	if err != nil {
		return err
	}
	if cleanup {
		removed, err := orch.Cleanup(ctx, s.environment().ExtensionsDir, installed, orchestrator.CleanupOptions{})
		if err != nil {
			return err
		}
		if len(removed) > 0 {
			logger.Info("Removed stale package folders", logger.Fields{"count": len(removed)})
		}
	}
	logger.Success("Extensions installed", logger.Fields{"packages": len(installed.Packages)})
	return printPackages(out, installed, jsonOutput(cfg))
}

type packageView struct {
	ID            string   `json:"id"`
	Version       string   `json:"version"`
	Kind          string   `json:"kind"`
	InstallFolder string   `json:"install_folder"`
	EntryPoint    string   `json:"entry_point,omitempty"`
	Dependencies  []string `json:"dependencies,omitempty"`
	Local         bool     `json:"local,omitempty"`
}

func printPackages(out io.Writer, installed *model.InstalledPackages, asJSON bool) error {
	views := make([]packageView, 0)
	if installed != nil {
		for _, pkg := range installed.Packages {
			views = append(views, packageView{
				ID:            pkg.ID,
				Version:       pkg.Version,
				Kind:          string(pkg.Kind),
				InstallFolder: pkg.InstallFolder,
				EntryPoint:    pkg.EntryPoint,
				Dependencies:  pkg.Dependencies,
				Local:         pkg.Local != nil,
			})
		}
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}
	if len(views) == 0 {
		fmt.Fprintln(out, "No extensions installed")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PACKAGE\tVERSION\tKIND\tENTRY POINT")
	for _, v := range views {
		entry := v.EntryPoint
		if entry == "" {
			entry = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.ID, v.Version, v.Kind, entry)
	}
	return tw.Flush()
}
