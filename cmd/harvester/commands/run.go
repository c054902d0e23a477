package commands

import (
	"github.com/spf13/cobra"

	"github.com/nexconsult/quote-harvester/internal/logger"
	"github.com/nexconsult/quote-harvester/internal/models"
	"github.com/nexconsult/quote-harvester/internal/services"
)

var runKinds = map[string]models.RunKind{
	"discover":  models.RunDiscover,
	"items":     models.RunItems,
	"reconcile": models.RunReconcile,
	"run":       models.RunFull,
}

func newRunCmd(a *app, use, short string) *cobra.Command {
	kind := runKinds[use]
	var tenant int64

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := services.NewContainer(a.cfg, a.logger)
			if err != nil {
				services.NotifyStartupFailure(cmd.Context(), a.cfg.Notify, logger.Component(a.logger, "startup"), err)
				return err
			}
			defer container.Close()

			var only *int64
			if cmd.Flags().Changed("tenant") {
				only = &tenant
			}

			summary, err := container.Harvest.RunExclusive(cmd.Context(), kind, only)
			if summary != nil {
				renderSummary(cmd.OutOrStdout(), summary)
			}
			return err
		},
	}

	if kind != models.RunReconcile {
		cmd.Flags().Int64Var(&tenant, "tenant", 0, "only harvest this tenant")
	}
	return cmd
}
