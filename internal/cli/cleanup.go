package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/extly/pkg/local"
	"github.com/glorpus-work/extly/pkg/orchestrator"
	"github.com/glorpus-work/extly/pkg/resolver"
)

// NewCleanupCmd creates the cleanup command.
func NewCleanupCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove package folders the dependency cache does not reference",
		Long: `Remove registry package versions and local build copies that are not part
of the cached installation. Run install first so the cache is current.
Use --dry-run to see what would be removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			env, err := cfg.HostEnvironment()
			if err != nil {
				return err
			}
			installed, err := resolver.OpenCache(cfg, env).Load()
			if err != nil {
				return err
			}
			if installed == nil {
				return fmt.Errorf("no dependency cache in %s; run install first", env.ExtensionsDir)
			}

			removed, err := orchestrator.New(nil, progressHooks()).Cleanup(cmd.Context(), env.ExtensionsDir, installed, orchestrator.CleanupOptions{
				DryRun: dryRun,
				// The cache records registry packages only.
				Preserve: []string{local.LocalDir},
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			verb := "Removed"
			if dryRun {
				verb = "Would remove"
			}
			for _, folder := range removed {
				fmt.Fprintf(out, "%s %s\n", verb, folder)
			}
			if len(removed) == 0 {
				fmt.Fprintln(out, "Nothing to clean up")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be removed without removing anything")

	return cmd
}
