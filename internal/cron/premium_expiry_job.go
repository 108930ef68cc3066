package cron

import (
	"context"
	"fmt"

	"github.com/credenza-market/credenza-backend/pkg/logger"
)

type premiumDemoter interface {
	DemoteExpired(ctx context.Context) (int, error)
}

type PremiumExpiryJobParams struct {
	Logger  *logger.Logger
	Premium premiumDemoter
}

// NewPremiumExpiryJob builds the sweep that demotes users whose premium tier
// lapsed. The lazy check on login remains authoritative; the sweep keeps
// role-scoped listings honest between logins.
func NewPremiumExpiryJob(params PremiumExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Premium == nil {
		return nil, fmt.Errorf("premium service required")
	}
	return &premiumExpiryJob{logg: params.Logger, premium: params.Premium}, nil
}

type premiumExpiryJob struct {
	logg    *logger.Logger
	premium premiumDemoter
}

func (j *premiumExpiryJob) Name() string { return "premium-expiry" }

func (j *premiumExpiryJob) Run(ctx context.Context) error {
	demoted, err := j.premium.DemoteExpired(ctx)
	if err != nil {
		return fmt.Errorf("premium expiry sweep: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "users_demoted", demoted), "premium expiry sweep complete")
	return nil
}
