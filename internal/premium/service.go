package premium

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/internal/ledger"
	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// UpgradeInput describes a premium purchase.
type UpgradeInput struct {
	UserID uuid.UUID
	Amount decimal.Decimal
	Months int
}

// Service is the premium/expiry engine: lazy demotion on reads, paid
// upgrades with expiry extension, and a bulk sweep for the cron worker.
type Service interface {
	ResolveRole(ctx context.Context, user *models.User) (enums.UserRole, error)
	Upgrade(ctx context.Context, input UpgradeInput) (*models.User, error)
	DemoteExpired(ctx context.Context) (int, error)
}

type service struct {
	tx     txRunner
	repo   Repository
	ledger ledger.Service
	outbox outboxEmitter
}

// NewService wires the premium engine.
func NewService(tx txRunner, repo Repository, ledgerSvc ledger.Service, ob outboxEmitter) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("premium repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{tx: tx, repo: repo, ledger: ledgerSvc, outbox: ob}, nil
}

// ResolveRole demotes the user in place when the premium period has lapsed
// and returns the role the caller should see. The demotion is persisted and
// the expiry cleared; non-expired users pass through untouched.
func (s *service) ResolveRole(ctx context.Context, user *models.User) (enums.UserRole, error) {
	if user == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user is required")
	}
	if user.PremiumExpiresAt == nil || user.PremiumExpiresAt.After(time.Now()) {
		return user.Role, nil
	}

	demoted := user.Role.Demoted()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).UpdateRoleAndExpiry(ctx, user.ID, string(demoted), nil)
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to persist demotion")
	}
	user.Role = demoted
	user.PremiumExpiresAt = nil
	return demoted, nil
}

// Upgrade debits the plan price and grants (or extends) the premium role.
func (s *service) Upgrade(ctx context.Context, input UpgradeInput) (*models.User, error) {
	if input.Months <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "months must be positive")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	var upgraded *models.User
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		user, err := repo.GetByID(ctx, input.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load user")
		}
		if user == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}

		target := targetRole(user.Role)
		start := time.Now()
		// Holding the target role with time left extends the running
		// period instead of restarting it.
		if user.Role == target && user.PremiumExpiresAt != nil && user.PremiumExpiresAt.After(start) {
			start = *user.PremiumExpiresAt
		}
		expiresAt := start.AddDate(0, input.Months, 0)

		details, err := json.Marshal(map[string]any{
			"months":     input.Months,
			"targetRole": target,
			"expiresAt":  expiresAt,
		})
		if err != nil {
			return err
		}

		// Debit first so InsufficientBalance aborts before the role change.
		if _, err := s.ledger.Debit(ctx, tx, ledger.EntryInput{
			UserID:  user.ID,
			Kind:    enums.TransactionKindPremiumUpgrade,
			Amount:  input.Amount,
			Details: details,
		}); err != nil {
			return err
		}

		if err := repo.UpdateRoleAndExpiry(ctx, user.ID, string(target), &expiresAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to grant premium role")
		}

		user.Role = target
		user.PremiumExpiresAt = &expiresAt
		upgraded = user

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUsersUpdated,
			AggregateType: enums.AggregateUser,
			AggregateID:   user.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return upgraded, nil
}

// DemoteExpired bulk-demotes lapsed premium accounts. The lazy path in
// ResolveRole stays authoritative; this keeps listings fresh between reads.
func (s *service) DemoteExpired(ctx context.Context) (int, error) {
	demotedCount := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		expired, err := repo.ListExpired(ctx, time.Now())
		if err != nil {
			return err
		}
		for _, user := range expired {
			if err := repo.UpdateRoleAndExpiry(ctx, user.ID, string(user.Role.Demoted()), nil); err != nil {
				return err
			}
			demotedCount++
		}
		if demotedCount == 0 {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUsersUpdated,
			AggregateType: enums.AggregateUser,
			AggregateID:   uuid.Nil,
			Data:          map[string]int{"demoted": demotedCount},
		})
	})
	if err != nil {
		return 0, err
	}
	return demotedCount, nil
}

// targetRole picks which premium tier an upgrade lands on: provider tiers go
// premium-provider, everyone else becomes a premium distributor.
func targetRole(current enums.UserRole) enums.UserRole {
	if current == enums.UserRoleProvider || current == enums.UserRoleProviderPremium {
		return enums.UserRoleProviderPremium
	}
	return enums.UserRoleDistributorPremium
}
