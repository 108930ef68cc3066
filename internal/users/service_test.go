package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/pkg/config"
	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/outbox"
	"github.com/credenza-market/credenza-backend/pkg/security"
)

type fakeRepository struct {
	byID       map[uuid.UUID]*models.User
	byEmail    map[string]*models.User
	byReferral map[string]*models.User
	created    []*models.User
	deleted    []uuid.UUID
	ownedWiped []uuid.UUID
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		byID:       map[uuid.UUID]*models.User{},
		byEmail:    map[string]*models.User{},
		byReferral: map[string]*models.User{},
	}
}

func (f *fakeRepository) add(user *models.User) {
	f.byID[user.ID] = user
	f.byEmail[user.Email] = user
	if user.ReferralCode != nil {
		f.byReferral[*user.ReferralCode] = user
	}
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, user *models.User) error {
	f.created = append(f.created, user)
	f.add(user)
	return nil
}

func (f *fakeRepository) Save(ctx context.Context, user *models.User) error {
	f.add(user)
	return nil
}

func (f *fakeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	delete(f.byID, id)
	return nil
}

func (f *fakeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return f.byID[id], nil
}

func (f *fakeRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return f.byEmail[email], nil
}

func (f *fakeRepository) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return f.byReferral[code], nil
}

func (f *fakeRepository) List(ctx context.Context) ([]models.User, error)        { return nil, nil }
func (f *fakeRepository) ListPending(ctx context.Context) ([]models.User, error) { return nil, nil }

func (f *fakeRepository) DeleteOwned(ctx context.Context, userID uuid.UUID) error {
	f.ownedWiped = append(f.ownedWiped, userID)
	return nil
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

func (f *fakeOutbox) byType(eventType enums.OutboxEventType) []outbox.DomainEvent {
	var matched []outbox.DomainEvent
	for _, event := range f.events {
		if event.EventType == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

type passthroughRoles struct{}

func (passthroughRoles) ResolveRole(ctx context.Context, user *models.User) (enums.UserRole, error) {
	return user.Role, nil
}

func newTestService(t *testing.T, repo Repository, ob outboxEmitter) Service {
	t.Helper()
	svc, err := NewService(fakeTxRunner{}, repo, ob, passthroughRoles{},
		config.JWTConfig{Secret: "test-secret", Issuer: "credenza-test", ExpirationMinutes: 15},
		config.PasswordConfig{})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc
}

func TestRegister_ResolvesReferralAndStartsPending(t *testing.T) {
	repo := newFakeRepository()
	referralCode := "FRIEND42"
	referrer := &models.User{ID: uuid.New(), Email: "d@example.com", ReferralCode: &referralCode}
	repo.add(referrer)

	ob := &fakeOutbox{}
	svc := newTestService(t, repo, ob)

	user, err := svc.Register(context.Background(), RegisterInput{
		Email:        "Buyer@Example.com",
		Password:     "sup3rsecret",
		Name:         "Buyer",
		ReferralCode: referralCode,
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if user.Email != "buyer@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.Role != enums.UserRolePending || user.Approved {
		t.Fatalf("expected pending unapproved account, got role=%s approved=%v", user.Role, user.Approved)
	}
	if user.ReferredBy == nil || *user.ReferredBy != referrer.ID {
		t.Fatalf("expected referral back-reference to %s", referrer.ID)
	}
	if user.ReferralCode == nil || *user.ReferralCode == "" {
		t.Fatal("expected a referral code of the user's own")
	}
	if user.PasswordHash == "sup3rsecret" {
		t.Fatal("password must be hashed")
	}
	if got := ob.byType(enums.EventPendingUsersUpdated); len(got) != 1 {
		t.Fatalf("expected one pendingUsersUpdated event, got %d", len(got))
	}
}

func TestRegister_UnknownReferralCode(t *testing.T) {
	svc := newTestService(t, newFakeRepository(), &fakeOutbox{})

	_, err := svc.Register(context.Background(), RegisterInput{
		Email:        "x@example.com",
		Password:     "sup3rsecret",
		Name:         "X",
		ReferralCode: "NOPE",
	})
	coded := pkgerrors.As(err)
	if coded == nil || coded.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	repo := newFakeRepository()
	repo.add(&models.User{ID: uuid.New(), Email: "taken@example.com"})
	svc := newTestService(t, repo, &fakeOutbox{})

	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "taken@example.com",
		Password: "sup3rsecret",
		Name:     "Dup",
	})
	coded := pkgerrors.As(err)
	if coded == nil || coded.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestApprove_EmitsTargetedResult(t *testing.T) {
	repo := newFakeRepository()
	pending := &models.User{ID: uuid.New(), Email: "p@example.com", Role: enums.UserRolePending}
	repo.add(pending)

	ob := &fakeOutbox{}
	svc := newTestService(t, repo, ob)

	user, err := svc.Approve(context.Background(), pending.ID, enums.UserRoleProvider)
	if err != nil {
		t.Fatalf("Approve error: %v", err)
	}
	if !user.Approved || user.Role != enums.UserRoleProvider {
		t.Fatalf("unexpected user state after approve: %+v", user)
	}

	results := ob.byType(enums.EventApplicationResult)
	if len(results) != 1 {
		t.Fatalf("expected one applicationResult event, got %d", len(results))
	}
	if results[0].TargetUserID == nil || *results[0].TargetUserID != pending.ID {
		t.Fatal("applicationResult must target the approved user")
	}

	// Second approval is a state-machine re-entry.
	_, err = svc.Approve(context.Background(), pending.ID, enums.UserRoleProvider)
	coded := pkgerrors.As(err)
	if coded == nil || coded.Code() != pkgerrors.CodeAlreadyProcessed {
		t.Fatalf("expected already-processed, got %v", err)
	}
}

func TestSetBanned_EmitsTargetedEvent(t *testing.T) {
	repo := newFakeRepository()
	user := &models.User{ID: uuid.New(), Email: "b@example.com", Approved: true, Role: enums.UserRoleStandard}
	repo.add(user)

	ob := &fakeOutbox{}
	svc := newTestService(t, repo, ob)

	banned, err := svc.SetBanned(context.Background(), user.ID, true)
	if err != nil {
		t.Fatalf("SetBanned error: %v", err)
	}
	if !banned.Banned {
		t.Fatal("expected banned flag set")
	}
	targeted := ob.byType(enums.EventUserBanStatusUpdated)
	if len(targeted) != 1 || targeted[0].TargetUserID == nil || *targeted[0].TargetUserID != user.ID {
		t.Fatalf("expected targeted ban event, got %+v", targeted)
	}
}

func TestAuthenticate_RejectsBannedAndUnapproved(t *testing.T) {
	hash, err := security.HashPassword("sup3rsecret", config.PasswordConfig{})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	repo := newFakeRepository()
	banned := &models.User{ID: uuid.New(), Email: "banned@example.com", PasswordHash: hash, Banned: true, Approved: true}
	pending := &models.User{ID: uuid.New(), Email: "pending@example.com", PasswordHash: hash}
	repo.add(banned)
	repo.add(pending)

	svc := newTestService(t, repo, &fakeOutbox{})
	ctx := context.Background()

	_, _, err = svc.Authenticate(ctx, "banned@example.com", "sup3rsecret")
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden for banned account, got %v", err)
	}

	_, _, err = svc.Authenticate(ctx, "pending@example.com", "sup3rsecret")
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden for unapproved account, got %v", err)
	}

	_, _, err = svc.Authenticate(ctx, "banned@example.com", "wrong")
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized for bad password, got %v", err)
	}
}

func TestDelete_WipesOwnedRecords(t *testing.T) {
	repo := newFakeRepository()
	user := &models.User{ID: uuid.New(), Email: "gone@example.com"}
	repo.add(user)

	svc := newTestService(t, repo, &fakeOutbox{})
	if err := svc.Delete(context.Background(), user.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if len(repo.ownedWiped) != 1 || repo.ownedWiped[0] != user.ID {
		t.Fatal("expected owned records wiped before user deletion")
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != user.ID {
		t.Fatal("expected user row deleted")
	}
}
