package cli

import (
	"github.com/spf13/cobra"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/orchestrator"
)

// NewSyncCmd creates the sync command.
func NewSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Refresh the package source indexes",
		Long: `Download the index of every enabled package source again, regardless of
the age of the cached copy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := newSession(cfg)
			if err != nil {
				return err
			}
			logger.Debug("Synchronizing source indexes", logger.Fields{"sources": len(s.sources)})
			if err := orchestrator.New(nil, progressHooks()).Sync(cmd.Context(), s.sources); err != nil {
				return err
			}
			logger.Success("Source indexes synchronized", logger.Fields{"sources": len(s.sources)})
			return nil
		},
	}

	return cmd
}
