package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/glorpus-work/extly/internal/logger"
	"github.com/glorpus-work/extly/pkg/loader"
	"github.com/glorpus-work/extly/pkg/orchestrator"
	"github.com/glorpus-work/extly/pkg/sdk"
)

// NewLoadCmd creates the load command.
func NewLoadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Install and load the configured extensions",
		Long: `Install the configured extensions, open their entry point plugins in an
isolated load context, construct every extension and print its name.
The extensions are disposed and the context released before exiting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoad(cmd.Context(), cmd.OutOrStdout(), loader.PluginOpener{})
		},
	}

	return cmd
}

func runLoad(ctx context.Context, out io.Writer, opener loader.Opener) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	installed, err := s.orchestrator(progressHooks()).Install(ctx, s.request, orchestrator.InstallOptions{})
	if err != nil {
		return err
	}

	loaded, err := loader.Load[sdk.Extension](ctx, installed, opener, loader.DefaultCollaborators(s.environment()))
	if err != nil {
		return err
	}
	defer func() {
		if err := loaded.Close(); err != nil {
			logger.Warn("Failed to unload extensions", logger.Fields{"error": err.Error()})
		}
	}()

	instances := loaded.Instances()
	if jsonOutput(cfg) {
		type view struct {
			Package string `json:"package"`
			Type    string `json:"type"`
			Name    string `json:"name"`
		}
		views := make([]view, 0, len(instances))
		for _, inst := range instances {
			views = append(views, view{Package: inst.Package, Type: inst.Type, Name: inst.Value.Name()})
		}
		return json.NewEncoder(out).Encode(views)
	}
	if len(instances) == 0 {
		fmt.Fprintln(out, "No extensions loaded")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PACKAGE\tTYPE\tNAME")
	for _, inst := range instances {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", inst.Package, inst.Type, inst.Value.Name())
	}
	return tw.Flush()
}
