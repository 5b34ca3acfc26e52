package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/extly/internal/logger"
)

// NewSourceCmd creates the source command with subcommands.
func NewSourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage package sources",
		Long:  "Add, remove and list the package sources extensions are resolved from",
	}

	cmd.AddCommand(
		newSourceAddCmd(),
		newSourceRemoveCmd(),
		newSourceListCmd(),
	)

	return cmd
}

func newSourceAddCmd() *cobra.Command {
	var priority uint

	cmd := &cobra.Command{
		Use:   "add NAME URL",
		Short: "Add a package source",
		Long: `Add a package source. URL is an http(s) index URL, a file:// URL or a
path to an index file or the folder holding index.json.`,
		Args: cobra.ExactArgs(setCommandArgs),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.AddSource(args[0], args[1], priority); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.SaveConfig(getConfigPath()); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}
			logger.Success("Source added", logger.Fields{"name": args[0], "url": args[1]})
			return nil
		},
	}

	cmd.Flags().UintVar(&priority, "priority", 0, "Source priority (higher numbers are queried first)")

	return cmd
}

func newSourceRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME",
		Short: "Remove a package source",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.RemoveSource(args[0]) {
				return fmt.Errorf("source %q is not configured", args[0])
			}
			if err := cfg.SaveConfig(getConfigPath()); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}
			logger.Success("Source removed", logger.Fields{"name": args[0]})
			return nil
		},
	}
}

func newSourceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List package sources in query order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, TabWidth, ' ', 0)
			_, _ = fmt.Fprintln(tw, "NAME\tPRIORITY\tURL")
			for _, src := range cfg.EnabledSources() {
				_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", src.Name, src.Priority, src.URL)
			}
			return tw.Flush()
		},
	}
}
