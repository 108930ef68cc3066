package maintenance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/internal/ledger"
	"github.com/credenza-market/credenza-backend/internal/stock"
	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/logger"
)

const batchSize = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Report summarizes one maintenance run.
type Report struct {
	OrderCodesBackfilled  int
	ProviderLinksRepaired int
}

// Service repairs gaps left by imported ledger data. Every repair is
// idempotent: a row fixed once no longer matches the selection query.
type Service interface {
	Run(ctx context.Context) (Report, error)
	BackfillOrderCodes(ctx context.Context) (int, error)
	RepairProviderLinks(ctx context.Context) (int, error)
}

type service struct {
	tx        txRunner
	repo      Repository
	stockRepo stock.Repository
	logg      *logger.Logger
}

// NewService wires the maintenance repairs.
func NewService(tx txRunner, repo Repository, stockRepo stock.Repository, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("maintenance repository required")
	}
	if stockRepo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{tx: tx, repo: repo, stockRepo: stockRepo, logg: logg}, nil
}

// Run executes all repairs, collecting failures instead of stopping at the
// first one.
func (s *service) Run(ctx context.Context) (Report, error) {
	var report Report
	var errs error

	codes, err := s.BackfillOrderCodes(ctx)
	report.OrderCodesBackfilled = codes
	errs = multierr.Append(errs, err)

	links, err := s.RepairProviderLinks(ctx)
	report.ProviderLinksRepaired = links
	errs = multierr.Append(errs, err)

	if report.OrderCodesBackfilled > 0 || report.ProviderLinksRepaired > 0 {
		ctx = s.logg.WithField(ctx, "order_codes", report.OrderCodesBackfilled)
		ctx = s.logg.WithField(ctx, "provider_links", report.ProviderLinksRepaired)
		s.logg.Info(ctx, "maintenance repairs applied")
	}
	return report, errs
}

// BackfillOrderCodes stamps order codes on rows that predate them. Imported
// rows get one derived from their legacy id so the code is stable across runs.
func (s *service) BackfillOrderCodes(ctx context.Context) (int, error) {
	fixed := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for {
			txns, err := repo.ListMissingOrderCodes(ctx, batchSize)
			if err != nil {
				return err
			}
			if len(txns) == 0 {
				return nil
			}
			for i := range txns {
				txns[i].OrderCode = ledger.SynthesizeOrderCode(txns[i].LegacyID)
				if err := repo.Save(ctx, &txns[i]); err != nil {
					return err
				}
				fixed++
			}
			if len(txns) < batchSize {
				return nil
			}
		}
	})
	return fixed, err
}

// RepairProviderLinks recovers a purchase row's provider reference from the
// stock records it sold, skipping rows whose records no longer exist.
func (s *service) RepairProviderLinks(ctx context.Context) (int, error) {
	fixed := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		stockRepo := s.stockRepo.WithTx(tx)

		txns, err := repo.ListMissingProviderLinks(ctx, batchSize)
		if err != nil {
			return err
		}
		var errs error
		for i := range txns {
			repaired, err := s.repairLink(ctx, repo, stockRepo, &txns[i])
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if repaired {
				fixed++
			}
		}
		return errs
	})
	return fixed, err
}

func (s *service) repairLink(ctx context.Context, repo Repository, stockRepo stock.Repository, txn *models.Transaction) (bool, error) {
	for _, raw := range txn.StockRecordIDs {
		recordID, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		record, err := stockRepo.GetByID(ctx, recordID)
		if err != nil {
			return false, err
		}
		if record == nil {
			continue
		}
		txn.ProviderID = record.ProviderID
		if txn.ProductID == uuid.Nil {
			txn.ProductID = record.ProductID
		}
		if err := repo.Save(ctx, txn); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
