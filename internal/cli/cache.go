package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/depcache"
	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/resolver"
)

// NewCacheCmd creates the cache command with subcommands
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the dependency cache",
		Long:  "Show, verify and clear the dependency cache of the extensions directory",
	}

	cmd.AddCommand(
		newCacheShowCmd(),
		newCacheVerifyCmd(),
		newCacheClearCmd(),
	)

	return cmd
}

func newCacheShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the cached package graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cache, asJSON, err := openCache()
			if err != nil {
				return err
			}
			installed, err := cache.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !asJSON {
				fmt.Fprintf(out, "Cache file: %s\n", cache.Path())
				if installed == nil {
					fmt.Fprintln(out, "No dependency cache")
					return nil
				}
			}
			return printPackages(out, installed, asJSON)
		},
	}
}

func newCacheVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check whether the cache still serves the configuration",
		Long: `Validate the cached graph against the configured registry extensions and
check that every cached package is still present on disk. Dependencies
discovered through local builds are not considered.`,
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
			return verifyCache(cmd.OutOrStdout(), resolver.OpenCache(cfg, env), cfg.ExtensionSpecs())
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the dependency cache",
		Long:  "Remove the dependency cache so that the next install resolves from the sources again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cache, _, err := openCache()
			if err != nil {
				return err
			}
			if err := cache.Clear(cmd.Context()); err != nil {
				return err
			}
			logger.Success("Dependency cache cleared", logger.Fields{"path": cache.Path()})
			return nil
		},
	}
}

func openCache() (*depcache.Cache, bool, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, false, err
	}
	env, err := cfg.HostEnvironment()
	if err != nil {
		return nil, false, err
	}
	return resolver.OpenCache(cfg, env), jsonOutput(cfg), nil
}

func verifyCache(out io.Writer, cache *depcache.Cache, specs []model.ExtensionSpec) error {
	installed, err := cache.Load()
	if err != nil {
		return err
	}
	if installed == nil {
		return fmt.Errorf("no dependency cache at %s", cache.Path())
	}
	ok, err := depcache.Validate(specs, nil, installed)
	if err != nil {
		return errors.Fail("configure", "", err)
	}
	if !ok {
		return fmt.Errorf("dependency cache does not match the configured extensions")
	}
	if depcache.VerifyFilesPresent(installed) == nil {
		return fmt.Errorf("dependency cache references missing files")
	}
	fmt.Fprintf(out, "Dependency cache is valid (%d packages)\n", len(installed.Packages))
	return nil
}
