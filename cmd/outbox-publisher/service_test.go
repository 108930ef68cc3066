package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/pkg/config"
	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	"github.com/credenza-market/credenza-backend/pkg/logger"
	"github.com/credenza-market/credenza-backend/pkg/outbox"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			{
				ID:            uuid.New(),
				EventType:     enums.EventTransactionsUpdated,
				AggregateType: enums.AggregateTransaction,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelopePayload(t, "event-one"),
			},
			{
				ID:            uuid.New(),
				EventType:     enums.EventTransactionsUpdated,
				AggregateType: enums.AggregateTransaction,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelopePayload(t, "event-two"),
			},
		},
	}
	bus := &fakeBus{errs: []error{errors.New("transient"), nil}}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, bus, dlqRepo, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Len(t, repo.failed, 1)
	require.Len(t, repo.published, 1)
	require.Equal(t, repo.events[0].ID, repo.failed[0])
	require.Equal(t, repo.events[1].ID, repo.published[0])
}

func TestServiceRoutesTargetedEventsToUserChannel(t *testing.T) {
	target := uuid.New()
	broadcast := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventProductsUpdated,
		AggregateType: enums.AggregateProduct,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "broadcast"),
	}
	targeted := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventApplicationResult,
		AggregateType: enums.AggregateUser,
		AggregateID:   target,
		TargetUserID:  &target,
		Payload:       mustEnvelopePayload(t, "targeted"),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{broadcast, targeted}}
	bus := &fakeBus{}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, bus, dlqRepo, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Len(t, repo.published, 2)
	require.Equal(t, []string{
		"cdz:events:productsUpdated",
		"cdz:events:applicationResult:" + target.String(),
	}, bus.channels)
}

func TestServiceProcessBatchWritesDLQOnBadPayload(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrdersUpdated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{not-json`),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	bus := &fakeBus{}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, bus, dlqRepo, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Empty(t, bus.channels)
	require.Len(t, dlqRepo.entries, 1)
	entry := dlqRepo.entries[0]
	require.Equal(t, event.ID, entry.EventID)
	require.Equal(t, enums.OutboxDLQReasonBadPayload, entry.ErrorReason)
	require.Len(t, repo.terminal, 1)
}

func TestServiceProcessBatchWritesDLQOnMaxAttempts(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventWithdrawalsUpdated,
		AggregateType: enums.AggregateWithdrawal,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "max-attempts"),
		AttemptCount:  1,
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	bus := &fakeBus{errs: []error{errors.New("transient")}}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, bus, dlqRepo, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Len(t, dlqRepo.entries, 1)
	entry := dlqRepo.entries[0]
	require.Equal(t, event.ID, entry.EventID)
	require.Equal(t, enums.OutboxDLQReasonMaxAttempts, entry.ErrorReason)
	require.Len(t, repo.terminal, 1)
	require.Empty(t, repo.failed)
}

func newTestService(t *testing.T, repo outboxRepository, bus eventBus, dlq dlqRepository, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	cfg := &config.Config{Outbox: outboxCfg}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            &fakeDB{},
		Bus:           bus,
		Repository:    repo,
		DLQRepository: dlq,
	})
	require.NoError(t, err)
	return service
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakeBus struct {
	channels []string
	errs     []error
}

func (f *fakeBus) Ping(context.Context) error { return nil }

func (f *fakeBus) Publish(_ context.Context, channel string, _ any) error {
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	if err == nil {
		f.channels = append(f.channels, channel)
	}
	return err
}

func (f *fakeBus) EventChannel(event string) string {
	return "cdz:events:" + event
}

func (f *fakeBus) UserEventChannel(event, userID string) string {
	return "cdz:events:" + event + ":" + userID
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
