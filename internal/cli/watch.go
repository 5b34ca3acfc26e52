package cli

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/model"
	"github.com/glorpus-work/extly/pkg/orchestrator"
	"github.com/glorpus-work/extly/pkg/watch"
)

// DefaultSettleDelay is how long the watch command waits after a reinstall
// before re-arming, so events caused by the build itself are absorbed.
const DefaultSettleDelay = 500 * time.Millisecond

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	var settle time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Install and reinstall when local extensions change",
		Long: `Install the configured extensions, then watch the local extensions whose
watch mode is output or full and reinstall whenever one of them changes.
Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), cmd.OutOrStdout(), settle)
		},
	}

	cmd.Flags().DurationVar(&settle, "settle", DefaultSettleDelay, "Delay after a reinstall before watching again")

	return cmd
}

func runWatch(ctx context.Context, out io.Writer, settle time.Duration) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	orch := s.orchestrator(progressHooks())

	installed, err := orch.Install(ctx, s.request, orchestrator.InstallOptions{})
	if err != nil {
		return err
	}
	if err := printPackages(out, installed, jsonOutput(cfg)); err != nil {
		return err
	}

	dirty := make(chan *model.PackageMetadata, 1)
	watcher := watch.NewCollectionWatcher(func(pkg *model.PackageMetadata) {
		select {
		case dirty <- pkg:
		default:
		}
	})
	defer func() { _ = watcher.Close() }()

	if err := watcher.Sync(installed.Packages); err != nil {
		logger.Warn("Some local extensions cannot be watched", logger.Fields{"error": err.Error()})
	}
	if len(watcher.Watched()) == 0 {
		logger.Info("No local extensions to watch")
		return nil
	}
	logger.Info("Watching local extensions", logger.Fields{"packages": watcher.Watched()})
	watcher.Resume()

	for {
		select {
		case <-ctx.Done():
			return nil
		case pkg := <-dirty:
			watcher.Suspend()
			logger.Info("Reinstalling after change", logger.Fields{"package": pkg.ID})

			installed, err := orch.Install(ctx, s.request, orchestrator.InstallOptions{})
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Error("Reinstall failed", logger.Fields{"error": err.Error()})
			} else {
				if err := watcher.Sync(installed.Packages); err != nil {
					logger.Warn("Some local extensions cannot be watched", logger.Fields{"error": err.Error()})
				}
				_ = printPackages(out, installed, jsonOutput(cfg))
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(settle):
			}
			watcher.Reset()
			watcher.Resume()
		}
	}
}
