package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/pkg/auth"
	"github.com/credenza-market/credenza-backend/pkg/config"
	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/outbox"
	"github.com/credenza-market/credenza-backend/pkg/security"
)

const referralCodeLength = 8

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// roleResolver demotes expired premium roles on read.
type roleResolver interface {
	ResolveRole(ctx context.Context, user *models.User) (enums.UserRole, error)
}

// RegisterInput is the data collected at signup. Accounts start unapproved
// with the pending role; an admin approves them into their real tier.
type RegisterInput struct {
	Email        string
	Password     string
	Name         string
	ReferralCode string
}

// Service manages accounts: registration, login, approval, bans, deletion.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, string, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.User, error)
	Approve(ctx context.Context, userID uuid.UUID, role enums.UserRole) (*models.User, error)
	Reject(ctx context.Context, userID uuid.UUID) error
	SetBanned(ctx context.Context, userID uuid.UUID, banned bool) (*models.User, error)
	Delete(ctx context.Context, userID uuid.UUID) error
	List(ctx context.Context) ([]models.User, error)
	ListPending(ctx context.Context) ([]models.User, error)
}

type service struct {
	tx     txRunner
	repo   Repository
	outbox outboxEmitter
	roles  roleResolver
	jwtCfg config.JWTConfig
	pwCfg  config.PasswordConfig
}

// NewService wires a user service.
func NewService(tx txRunner, repo Repository, ob outboxEmitter, roles roleResolver, jwtCfg config.JWTConfig, pwCfg config.PasswordConfig) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if roles == nil {
		return nil, fmt.Errorf("role resolver required")
	}
	return &service{tx: tx, repo: repo, outbox: ob, roles: roles, jwtCfg: jwtCfg, pwCfg: pwCfg}, nil
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	if len(input.Password) < 8 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 8 characters")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to check email")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
	}

	hash, err := security.HashPassword(input.Password, s.pwCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(input.Name),
		Role:         enums.UserRolePending,
		Approved:     false,
	}

	if code := strings.TrimSpace(input.ReferralCode); code != "" {
		referrer, err := s.repo.GetByReferralCode(ctx, code)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to resolve referral code")
		}
		if referrer == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown referral code")
		}
		user.ReferredBy = &referrer.ID
	}

	ownCode, err := security.GenerateReferralCode(referralCodeLength)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to generate referral code")
	}
	user.ReferralCode = &ownCode

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, user); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create user")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPendingUsersUpdated,
			AggregateType: enums.AggregateUser,
			AggregateID:   user.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *service) Authenticate(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load user")
	}
	if user == nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}
	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}
	if user.Banned {
		return nil, "", pkgerrors.New(pkgerrors.CodeForbidden, "account is banned")
	}
	if !user.Approved {
		return nil, "", pkgerrors.New(pkgerrors.CodeForbidden, "account pending approval")
	}

	// Login is a role-resolving read: expired premium demotes here.
	role, err := s.roles.ResolveRole(ctx, user)
	if err != nil {
		return nil, "", err
	}
	user.Role = role

	token, err := auth.MintAccessToken(s.jwtCfg, time.Now(), auth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
	})
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to mint token")
	}
	return user, token, nil
}

func (s *service) GetProfile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load user")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	role, err := s.roles.ResolveRole(ctx, user)
	if err != nil {
		return nil, err
	}
	user.Role = role
	return user, nil
}

func (s *service) Approve(ctx context.Context, userID uuid.UUID, role enums.UserRole) (*models.User, error) {
	if !role.IsValid() || role == enums.UserRolePending {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid approval role %q", role))
	}

	var user *models.User
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loaded, err := repo.GetByID(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load user")
		}
		if loaded == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		if loaded.Approved {
			return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "user already approved")
		}
		loaded.Approved = true
		loaded.Role = role
		if err := repo.Save(ctx, loaded); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to approve user")
		}
		user = loaded

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPendingUsersUpdated,
			AggregateType: enums.AggregateUser,
			AggregateID:   userID,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventApplicationResult,
			AggregateType: enums.AggregateUser,
			AggregateID:   userID,
			TargetUserID:  &userID,
			Data:          map[string]any{"approved": true, "role": role},
		})
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *service) Reject(ctx context.Context, userID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		user, err := repo.GetByID(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load user")
		}
		if user == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		if user.Approved {
			return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "user already approved")
		}
		if err := repo.Delete(ctx, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to delete user")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPendingUsersUpdated,
			AggregateType: enums.AggregateUser,
			AggregateID:   userID,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventApplicationResult,
			AggregateType: enums.AggregateUser,
			AggregateID:   userID,
			TargetUserID:  &userID,
			Data:          map[string]any{"approved": false},
		})
	})
}

func (s *service) SetBanned(ctx context.Context, userID uuid.UUID, banned bool) (*models.User, error) {
	var user *models.User
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loaded, err := repo.GetByID(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load user")
		}
		if loaded == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		loaded.Banned = banned
		if err := repo.Save(ctx, loaded); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update ban flag")
		}
		user = loaded

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUsersUpdated,
			AggregateType: enums.AggregateUser,
			AggregateID:   userID,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUserBanStatusUpdated,
			AggregateType: enums.AggregateUser,
			AggregateID:   userID,
			TargetUserID:  &userID,
			Data:          map[string]any{"banned": banned},
		})
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Delete removes the account and everything it owns in one transaction.
func (s *service) Delete(ctx context.Context, userID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		user, err := repo.GetByID(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load user")
		}
		if user == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		if err := repo.DeleteOwned(ctx, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to delete owned records")
		}
		if err := repo.Delete(ctx, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to delete user")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUsersUpdated,
			AggregateType: enums.AggregateUser,
			AggregateID:   userID,
		})
	})
}

func (s *service) List(ctx context.Context) ([]models.User, error) {
	return s.repo.List(ctx)
}

func (s *service) ListPending(ctx context.Context) ([]models.User, error) {
	return s.repo.ListPending(ctx)
}
