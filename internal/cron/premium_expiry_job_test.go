package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/credenza-market/credenza-backend/pkg/logger"
)

type fakeDemoter struct {
	demoted int
	err     error
	calls   int
}

func (f *fakeDemoter) DemoteExpired(context.Context) (int, error) {
	f.calls++
	return f.demoted, f.err
}

func TestPremiumExpiryJob(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	demoter := &fakeDemoter{demoted: 3}
	job, err := NewPremiumExpiryJob(PremiumExpiryJobParams{Logger: logg, Premium: demoter})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if job.Name() != "premium-expiry" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if demoter.calls != 1 {
		t.Fatalf("expected one sweep, got %d", demoter.calls)
	}
}

func TestPremiumExpiryJobPropagatesError(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	demoter := &fakeDemoter{err: errors.New("db down")}
	job, err := NewPremiumExpiryJob(PremiumExpiryJobParams{Logger: logg, Premium: demoter})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
