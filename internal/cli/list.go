package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/resolver"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	var nameFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed extensions",
		Long: `List the packages recorded in the dependency cache of the extensions
directory. Use --name to filter packages by id.`,
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
				return fmt.Errorf("failed to read dependency cache: %w", err)
			}
			return printPackages(cmd.OutOrStdout(), filterPackages(installed, nameFilter), jsonOutput(cfg))
		},
	}

	cmd.Flags().StringVar(&nameFilter, "name", "", "Filter packages by id (partial match)")

	return cmd
}

func filterPackages(installed *model.InstalledPackages, filter string) *model.InstalledPackages {
	if installed == nil || filter == "" {
		return installed
	}
	filter = strings.ToLower(filter)
	out := &model.InstalledPackages{}
	for _, pkg := range installed.Packages {
		if strings.Contains(strings.ToLower(pkg.ID), filter) {
			out.Packages = append(out.Packages, pkg)
		}
	}
	return out
}
