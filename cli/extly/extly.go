package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/extly/internal/cli"
)

var (
	configPath   string
	verbose      bool
	noColor      bool
	outputFormat string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}

	cancel()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extly",
		Short: "Resolve, install and load application extensions",
		Long: `extly manages the extensions of a host application:
- resolve and install registry packages and local builds
- keep a dependency cache so unchanged requests skip the registry
- load installed extensions and rebuild local ones as they change`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: auto-detect)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format (text, json)")

	cli.ConfigPath = &configPath
	cli.Verbose = &verbose
	cli.NoColor = &noColor
	cli.OutputFormat = &outputFormat

	cmd.AddCommand(
		cli.NewResolveCmd(),
		cli.NewInstallCmd(),
		cli.NewListCmd(),
		cli.NewLoadCmd(),
		cli.NewWatchCmd(),
		cli.NewSyncCmd(),
		cli.NewCleanupCmd(),
		cli.NewCacheCmd(),
		cli.NewConfigCmd(),
		cli.NewSourceCmd(),
		cli.NewVersionCmd(),
	)

	return cmd
}
