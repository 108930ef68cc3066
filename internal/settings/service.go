package settings

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/pkg/config"
	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/logger"
	"github.com/credenza-market/credenza-backend/pkg/outbox"
)

// Settings are keyed by name, not by row uuid; outbox events for them all
// hang off one stable aggregate id.
var settingAggregateID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("platform-settings"))

// Setting keys understood by the platform.
const (
	KeyExchangeRate  = "exchange_rate"
	KeyWithdrawalFee = "withdrawal_fee"
	KeyYapeMin       = "yape_min"
	KeyBinanceMin    = "binance_min"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service reads and updates platform settings. Absent keys fall back to the
// configured defaults rather than failing.
type Service interface {
	ExchangeRate(ctx context.Context) decimal.Decimal
	WithdrawalFeeRate(ctx context.Context) decimal.Decimal
	YapeMinWithdrawal(ctx context.Context) decimal.Decimal
	BinanceMinWithdrawal(ctx context.Context) decimal.Decimal
	List(ctx context.Context) ([]models.Setting, error)
	Update(ctx context.Context, key, value string) error
}

type service struct {
	tx       txRunner
	repo     Repository
	outbox   outboxEmitter
	logg     *logger.Logger
	defaults map[string]decimal.Decimal
}

// NewService wires a settings service with configured fallback defaults.
func NewService(tx txRunner, repo Repository, ob outboxEmitter, cfg config.PlatformConfig, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("settings repository required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}

	defaults := map[string]decimal.Decimal{}
	for key, raw := range map[string]string{
		KeyExchangeRate:  cfg.ExchangeRate,
		KeyWithdrawalFee: cfg.WithdrawalFeeRate,
		KeyYapeMin:       cfg.YapeMinWithdrawal,
		KeyBinanceMin:    cfg.BinanceMinWithdraw,
	} {
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid default for %s: %w", key, err)
		}
		defaults[key] = value
	}

	return &service{tx: tx, repo: repo, outbox: ob, logg: logg, defaults: defaults}, nil
}

func (s *service) ExchangeRate(ctx context.Context) decimal.Decimal {
	return s.decimalOrDefault(ctx, KeyExchangeRate)
}

func (s *service) WithdrawalFeeRate(ctx context.Context) decimal.Decimal {
	return s.decimalOrDefault(ctx, KeyWithdrawalFee)
}

func (s *service) YapeMinWithdrawal(ctx context.Context) decimal.Decimal {
	return s.decimalOrDefault(ctx, KeyYapeMin)
}

func (s *service) BinanceMinWithdrawal(ctx context.Context) decimal.Decimal {
	return s.decimalOrDefault(ctx, KeyBinanceMin)
}

// decimalOrDefault resolves a key to a decimal, falling back to the configured
// default when the row is absent or unparseable.
func (s *service) decimalOrDefault(ctx context.Context, key string) decimal.Decimal {
	fallback := s.defaults[key]
	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "setting_key", key), "settings lookup failed, using default")
		return fallback
	}
	if setting == nil {
		return fallback
	}
	value, err := decimal.NewFromString(setting.Value)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "setting_key", key), "settings value unparseable, using default")
		return fallback
	}
	return value
}

func (s *service) List(ctx context.Context) ([]models.Setting, error) {
	return s.repo.List(ctx)
}

func (s *service) Update(ctx context.Context, key, value string) error {
	if key == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "setting key is required")
	}
	if _, err := decimal.NewFromString(value); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "setting value must be numeric")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		setting := &models.Setting{Key: key, Value: value}
		if err := repo.Upsert(ctx, setting); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettingsUpdated,
			AggregateType: enums.AggregateSetting,
			AggregateID:   settingAggregateID,
			Data:          map[string]string{"key": key, "value": value},
		})
	})
}
