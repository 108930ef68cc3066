package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/pkg/config"
	"github.com/credenza-market/credenza-backend/pkg/db/models"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/logger"
	"github.com/credenza-market/credenza-backend/pkg/outbox"
)

type fakeRepository struct {
	settings map[string]string
	getErr   error
	upserted []models.Setting
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Get(ctx context.Context, key string) (*models.Setting, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	value, ok := f.settings[key]
	if !ok {
		return nil, nil
	}
	return &models.Setting{Key: key, Value: value}, nil
}

func (f *fakeRepository) Upsert(ctx context.Context, setting *models.Setting) error {
	f.upserted = append(f.upserted, *setting)
	return nil
}

func (f *fakeRepository) List(ctx context.Context) ([]models.Setting, error) {
	return nil, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeOutbox struct {
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

func defaultPlatformConfig() config.PlatformConfig {
	return config.PlatformConfig{
		WithdrawalFeeRate:  "0.10",
		ExchangeRate:       "3.65",
		YapeMinWithdrawal:  "10.00",
		BinanceMinWithdraw: "10.00",
	}
}

func newTestService(t *testing.T, repo Repository, ob outboxEmitter) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "settings-test"})
	svc, err := NewService(fakeTxRunner{}, repo, ob, defaultPlatformConfig(), logg)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc
}

func TestService_Defaults(t *testing.T) {
	repo := &fakeRepository{settings: map[string]string{}}
	svc := newTestService(t, repo, &fakeOutbox{})
	ctx := context.Background()

	if got := svc.ExchangeRate(ctx); !got.Equal(decimal.RequireFromString("3.65")) {
		t.Fatalf("exchange rate default mismatch: %s", got)
	}
	if got := svc.WithdrawalFeeRate(ctx); !got.Equal(decimal.RequireFromString("0.10")) {
		t.Fatalf("withdrawal fee default mismatch: %s", got)
	}
	if got := svc.YapeMinWithdrawal(ctx); !got.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("yape min default mismatch: %s", got)
	}
	if got := svc.BinanceMinWithdrawal(ctx); !got.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("binance min default mismatch: %s", got)
	}
}

func TestService_StoredValueWinsOverDefault(t *testing.T) {
	repo := &fakeRepository{settings: map[string]string{KeyWithdrawalFee: "0.15"}}
	svc := newTestService(t, repo, &fakeOutbox{})

	got := svc.WithdrawalFeeRate(context.Background())
	if !got.Equal(decimal.RequireFromString("0.15")) {
		t.Fatalf("expected stored rate 0.15, got %s", got)
	}
}

func TestService_LookupFailureFallsBack(t *testing.T) {
	repo := &fakeRepository{getErr: errors.New("db down")}
	svc := newTestService(t, repo, &fakeOutbox{})

	got := svc.ExchangeRate(context.Background())
	if !got.Equal(decimal.RequireFromString("3.65")) {
		t.Fatalf("expected fallback on lookup failure, got %s", got)
	}
}

func TestService_UpdateEmitsEvent(t *testing.T) {
	repo := &fakeRepository{settings: map[string]string{}}
	ob := &fakeOutbox{}
	svc := newTestService(t, repo, ob)

	if err := svc.Update(context.Background(), KeyExchangeRate, "3.80"); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if len(repo.upserted) != 1 || repo.upserted[0].Value != "3.80" {
		t.Fatalf("expected one upsert with new value, got %+v", repo.upserted)
	}
	if len(ob.events) != 1 || string(ob.events[0].EventType) != "settingsUpdated" {
		t.Fatalf("expected settingsUpdated event, got %+v", ob.events)
	}
}

func TestService_UpdateRejectsNonNumeric(t *testing.T) {
	svc := newTestService(t, &fakeRepository{settings: map[string]string{}}, &fakeOutbox{})

	err := svc.Update(context.Background(), KeyYapeMin, "ten")
	coded := pkgerrors.As(err)
	if coded == nil || coded.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
