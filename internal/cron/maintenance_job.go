package cron

import (
	"context"
	"fmt"

	"github.com/credenza-market/credenza-backend/internal/maintenance"
	"github.com/credenza-market/credenza-backend/pkg/logger"
)

type maintenanceRunner interface {
	Run(ctx context.Context) (maintenance.Report, error)
}

type MaintenanceJobParams struct {
	Logger      *logger.Logger
	Maintenance maintenanceRunner
}

// NewMaintenanceJob builds the periodic data-repair run.
func NewMaintenanceJob(params MaintenanceJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Maintenance == nil {
		return nil, fmt.Errorf("maintenance service required")
	}
	return &maintenanceJob{logg: params.Logger, maintenance: params.Maintenance}, nil
}

type maintenanceJob struct {
	logg        *logger.Logger
	maintenance maintenanceRunner
}

func (j *maintenanceJob) Name() string { return "maintenance" }

func (j *maintenanceJob) Run(ctx context.Context) error {
	report, err := j.maintenance.Run(ctx)
	if err != nil {
		return fmt.Errorf("maintenance run: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"order_codes_backfilled":  report.OrderCodesBackfilled,
		"provider_links_repaired": report.ProviderLinksRepaired,
	})
	j.logg.Info(logCtx, "maintenance run complete")
	return nil
}
