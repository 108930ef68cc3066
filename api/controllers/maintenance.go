package controllers

import (
	"net/http"

	"github.com/credenza-market/credenza-backend/api/responses"
	maintenancesvc "github.com/credenza-market/credenza-backend/internal/maintenance"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/logger"
)

// AdminRunMaintenance triggers the idempotent ledger repairs on demand.
func AdminRunMaintenance(svc maintenancesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "maintenance service unavailable"))
			return
		}

		report, err := svc.Run(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]int{
			"order_codes_backfilled":  report.OrderCodesBackfilled,
			"provider_links_repaired": report.ProviderLinksRepaired,
		})
	}
}
