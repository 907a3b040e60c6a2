package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/models"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/entitlement"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/platform"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/processor"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/secretbox"
)

// fakeRepo emulates the pending-slot unique index and the row-lock contract
// with a single mutex, the same way the entitlement tests do.
type fakeRepo struct {
	mu      sync.Mutex
	nextID  uint
	charges map[uint]*models.Charge
	ents    *fakeEntRepo
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		nextID:  1,
		charges: make(map[uint]*models.Charge),
		ents:    &fakeEntRepo{entitlements: make(map[uint]*models.Entitlement)},
	}
}

func (f *fakeRepo) Transact(fn func(tx Repository) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(f)
}

func (f *fakeRepo) CreatePending(ch *models.Charge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.charges {
		if existing.PendingKey != nil && *existing.PendingKey == ch.TenantID {
			return ErrChargeAlreadyPending
		}
	}
	ch.ID = f.nextID
	f.nextID++
	ch.Status = models.ChargeStatusPending
	key := ch.TenantID
	ch.PendingKey = &key
	ch.CreatedAt = time.Now()
	cp := *ch
	f.charges[ch.ID] = &cp
	return nil
}

func (f *fakeRepo) GetByID(id uint) (*models.Charge, error) {
	ch, ok := f.charges[id]
	if !ok {
		return nil, ErrChargeNotFound
	}
	cp := *ch
	return &cp, nil
}

func (f *fakeRepo) GetForUpdate(id uint) (*models.Charge, error) {
	return f.GetByID(id)
}

func (f *fakeRepo) GetByExternalID(billingPath, externalID string) (*models.Charge, error) {
	for _, ch := range f.charges {
		if ch.BillingPath == billingPath && ch.ExternalChargeID == externalID {
			cp := *ch
			return &cp, nil
		}
	}
	return nil, ErrChargeNotFound
}

func (f *fakeRepo) GetPendingForUpdate(tenantID uint) (*models.Charge, error) {
	for _, ch := range f.charges {
		if ch.TenantID == tenantID && ch.Status == models.ChargeStatusPending {
			cp := *ch
			return &cp, nil
		}
	}
	return nil, ErrChargeNotFound
}

func (f *fakeRepo) Save(ch *models.Charge) error {
	cp := *ch
	f.charges[ch.ID] = &cp
	return nil
}

func (f *fakeRepo) ListStalePending(cutoff time.Time) ([]models.Charge, error) {
	var out []models.Charge
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.charges {
		if ch.Status == models.ChargeStatusPending && ch.CreatedAt.Before(cutoff) {
			out = append(out, *ch)
		}
	}
	return out, nil
}

func (f *fakeRepo) Entitlements() entitlement.Repository {
	return f.ents
}

// fakeEntRepo is lock-free: the enclosing fakeRepo transaction already
// serializes access, like a nested savepoint would.
type fakeEntRepo struct {
	entitlements map[uint]*models.Entitlement
}

func (f *fakeEntRepo) Transact(fn func(tx entitlement.Repository) error) error {
	return fn(f)
}

func (f *fakeEntRepo) Get(tenantID uint) (*models.Entitlement, error) {
	e, ok := f.entitlements[tenantID]
	if !ok {
		return nil, entitlement.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEntRepo) GetForUpdate(tenantID uint) (*models.Entitlement, error) {
	return f.Get(tenantID)
}

func (f *fakeEntRepo) Save(e *models.Entitlement) error {
	cp := *e
	f.entitlements[e.TenantID] = &cp
	return nil
}

func (f *fakeEntRepo) Create(e *models.Entitlement) error {
	return f.Save(e)
}

func (f *fakeEntRepo) DeactivateInstallation(tenantID uint, at time.Time) error {
	return nil
}

type fakeTenants struct {
	tenant models.Tenant
	inst   models.Installation
}

func (f *fakeTenants) GetByID(id uint) (*models.Tenant, error) {
	cp := f.tenant
	return &cp, nil
}

func (f *fakeTenants) GetByShopDomain(domain string) (*models.Tenant, error) {
	cp := f.tenant
	return &cp, nil
}

func (f *fakeTenants) GetByShopID(shopID int64) (*models.Tenant, error) {
	cp := f.tenant
	return &cp, nil
}

func (f *fakeTenants) GetInstallation(tenantID uint) (*models.Installation, error) {
	cp := f.inst
	return &cp, nil
}

func (f *fakeTenants) UpsertWithInstallation(t *models.Tenant, i *models.Installation) error {
	return nil
}

func (f *fakeTenants) EraseTenantData(tenantID uint) error { return nil }

type fakePlatform struct {
	charge    platform.RecurringCharge
	createErr error
	created   int
}

func (f *fakePlatform) CreateRecurringCharge(ctx context.Context, shopDomain, accessToken, name string, amountCents int64, returnURL string) (*platform.RecurringCharge, error) {
	f.created++
	if f.createErr != nil {
		return nil, f.createErr
	}
	cp := f.charge
	return &cp, nil
}

func (f *fakePlatform) GetRecurringCharge(ctx context.Context, shopDomain, accessToken string, chargeID int64) (*platform.RecurringCharge, error) {
	cp := f.charge
	return &cp, nil
}

type fakeProcessor struct {
	sub processor.Subscription
	err error
}

func (f *fakeProcessor) GetSubscription(ctx context.Context, subscriptionID string) (*processor.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	cp := f.sub
	return &cp, nil
}

func newTestManager(t *testing.T, repo *fakeRepo, pc *fakePlatform, ps *fakeProcessor) *Manager {
	t.Helper()
	box, err := secretbox.New("test-secret")
	if err != nil {
		t.Fatalf("secretbox: %v", err)
	}
	enc, err := box.Seal("shpat_token")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	tenants := &fakeTenants{
		tenant: models.Tenant{ID: 1, ShopDomain: "acme.myshopify.com"},
		inst:   models.Installation{TenantID: 1, Active: true, AccessTokenEnc: enc},
	}
	if pc == nil {
		pc = &fakePlatform{charge: platform.RecurringCharge{ID: 900, Status: "pending", ConfirmationURL: "https://acme.myshopify.com/confirm/900"}}
	}
	if ps == nil {
		ps = &fakeProcessor{}
	}
	return NewManager(repo, tenants, box, pc, ps)
}

func seedTrial(repo *fakeRepo, tenantID uint) {
	repo.ents.entitlements[tenantID] = &models.Entitlement{
		TenantID:    tenantID,
		State:       models.EntitlementTrialing,
		TrialEndsAt: time.Now().Add(7 * 24 * time.Hour),
		BillingPath: models.BillingPathNone,
		Version:     1,
	}
}

func TestCreateCharge_PendingExclusivity(t *testing.T) {
	repo := newFakeRepo()
	m := newTestManager(t, repo, nil, nil)

	first, err := m.CreateCharge(context.Background(), CreateChargeInput{
		TenantID: 1, BillingPath: models.BillingPathPlatform,
	})
	if err != nil {
		t.Fatalf("first CreateCharge: %v", err)
	}
	if first.ConfirmationURL == "" {
		t.Fatal("expected a confirmation URL")
	}
	if first.ExternalChargeID != "900" {
		t.Fatalf("external id = %q, want 900", first.ExternalChargeID)
	}

	_, err = m.CreateCharge(context.Background(), CreateChargeInput{
		TenantID: 1, BillingPath: models.BillingPathPlatform,
	})
	if !errors.Is(err, ErrChargeAlreadyPending) {
		t.Fatalf("second CreateCharge err = %v, want ErrChargeAlreadyPending", err)
	}
}

func TestCreateCharge_UpstreamFailureReleasesSlot(t *testing.T) {
	repo := newFakeRepo()
	pc := &fakePlatform{createErr: errors.New("upstream down")}
	m := newTestManager(t, repo, pc, nil)

	if _, err := m.CreateCharge(context.Background(), CreateChargeInput{
		TenantID: 1, BillingPath: models.BillingPathPlatform,
	}); err == nil {
		t.Fatal("expected an error when the upstream call fails")
	}

	// The slot must be free again.
	pc.createErr = nil
	pc.charge = platform.RecurringCharge{ID: 901, ConfirmationURL: "https://x/901"}
	if _, err := m.CreateCharge(context.Background(), CreateChargeInput{
		TenantID: 1, BillingPath: models.BillingPathPlatform,
	}); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestConfirmCharge_AcceptedActivatesEntitlement(t *testing.T) {
	repo := newFakeRepo()
	seedTrial(repo, 1)
	m := newTestManager(t, repo, nil, nil)

	ch, err := m.CreateCharge(context.Background(), CreateChargeInput{
		TenantID: 1, BillingPath: models.BillingPathPlatform,
	})
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}

	now := time.Now()
	out, err := m.ConfirmCharge(context.Background(), ch.ID, "accepted", now)
	if err != nil {
		t.Fatalf("ConfirmCharge: %v", err)
	}
	if out.Status != models.ChargeStatusAccepted {
		t.Fatalf("status = %q, want accepted", out.Status)
	}
	if out.PendingKey != nil {
		t.Fatal("pending key not cleared")
	}
	if out.ResolvedAt == nil {
		t.Fatal("resolved timestamp not set")
	}

	ent := repo.ents.entitlements[1]
	if ent.State != models.EntitlementActive {
		t.Fatalf("entitlement state = %q, want active", ent.State)
	}
	if ent.BillingPath != models.BillingPathPlatform {
		t.Fatalf("billing path = %q, want platform", ent.BillingPath)
	}
}

type fakeNotifier struct {
	resolved []models.Charge
}

func (f *fakeNotifier) ChargeResolved(tenantID uint, ch *models.Charge) {
	f.resolved = append(f.resolved, *ch)
}

func TestConfirmCharge_DuplicateIsNoOp(t *testing.T) {
	repo := newFakeRepo()
	seedTrial(repo, 1)
	m := newTestManager(t, repo, nil, nil)
	notifier := &fakeNotifier{}
	m.SetNotifier(notifier)

	ch, err := m.CreateCharge(context.Background(), CreateChargeInput{
		TenantID: 1, BillingPath: models.BillingPathPlatform,
	})
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}

	now := time.Now()
	if _, err := m.ConfirmCharge(context.Background(), ch.ID, "accepted", now); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	version := repo.ents.entitlements[1].Version

	out, err := m.ConfirmCharge(context.Background(), ch.ID, "accepted", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("duplicate confirm: %v", err)
	}
	if out.Status != models.ChargeStatusAccepted {
		t.Fatalf("status = %q, want accepted", out.Status)
	}
	if got := repo.ents.entitlements[1].Version; got != version {
		t.Fatalf("entitlement version moved on duplicate confirm: %d -> %d", version, got)
	}
	if len(notifier.resolved) != 1 {
		t.Fatalf("notifier fired %d times, want 1", len(notifier.resolved))
	}
}

func TestConfirmCharge_DeclinedLeavesTrialRunning(t *testing.T) {
	repo := newFakeRepo()
	seedTrial(repo, 1)
	m := newTestManager(t, repo, nil, nil)

	ch, err := m.CreateCharge(context.Background(), CreateChargeInput{
		TenantID: 1, BillingPath: models.BillingPathPlatform,
	})
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}

	out, err := m.ConfirmCharge(context.Background(), ch.ID, "declined", time.Now())
	if err != nil {
		t.Fatalf("ConfirmCharge: %v", err)
	}
	if out.Status != models.ChargeStatusDeclined {
		t.Fatalf("status = %q, want declined", out.Status)
	}
	if got := repo.ents.entitlements[1].State; got != models.EntitlementTrialing {
		t.Fatalf("entitlement state = %q, want trialing", got)
	}

	// The declined charge released the slot, so the merchant can retry.
	if _, err := m.CreateCharge(context.Background(), CreateChargeInput{
		TenantID: 1, BillingPath: models.BillingPathPlatform,
	}); err != nil {
		t.Fatalf("retry after decline: %v", err)
	}
}

func TestConfirmCharge_UnknownStatusStaysPending(t *testing.T) {
	repo := newFakeRepo()
	seedTrial(repo, 1)
	m := newTestManager(t, repo, nil, nil)

	ch, err := m.CreateCharge(context.Background(), CreateChargeInput{
		TenantID: 1, BillingPath: models.BillingPathPlatform,
	})
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}

	out, err := m.ConfirmCharge(context.Background(), ch.ID, "pending", time.Now())
	if err != nil {
		t.Fatalf("ConfirmCharge: %v", err)
	}
	if !out.IsPending() {
		t.Fatalf("status = %q, want pending", out.Status)
	}
}

func TestConfirmPendingForTenant_StampsExternalID(t *testing.T) {
	repo := newFakeRepo()
	seedTrial(repo, 1)
	m := newTestManager(t, repo, nil, nil)

	if _, err := m.CreateCharge(context.Background(), CreateChargeInput{
		TenantID: 1, BillingPath: models.BillingPathProcessor,
	}); err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}

	out, err := m.ConfirmPendingForTenant(context.Background(), 1, "sub_123", "active", time.Now())
	if err != nil {
		t.Fatalf("ConfirmPendingForTenant: %v", err)
	}
	if out == nil || out.Status != models.ChargeStatusAccepted {
		t.Fatalf("charge = %+v, want accepted", out)
	}
	if out.ExternalChargeID != "sub_123" {
		t.Fatalf("external id = %q, want sub_123", out.ExternalChargeID)
	}
	if got := repo.ents.entitlements[1].ExternalSubscriptionID; got != "sub_123" {
		t.Fatalf("entitlement subscription id = %q, want sub_123", got)
	}
}

func TestConfirmPendingForTenant_NoPendingIsNotAnError(t *testing.T) {
	repo := newFakeRepo()
	m := newTestManager(t, repo, nil, nil)

	out, err := m.ConfirmPendingForTenant(context.Background(), 1, "sub_999", "active", time.Now())
	if err != nil {
		t.Fatalf("ConfirmPendingForTenant: %v", err)
	}
	if out != nil {
		t.Fatalf("charge = %+v, want nil", out)
	}
}

func TestReconcileStaleCharges(t *testing.T) {
	repo := newFakeRepo()
	seedTrial(repo, 1)
	pc := &fakePlatform{charge: platform.RecurringCharge{ID: 900, Status: "active", ConfirmationURL: "https://x/900"}}
	m := newTestManager(t, repo, pc, nil)

	ch, err := m.CreateCharge(context.Background(), CreateChargeInput{
		TenantID: 1, BillingPath: models.BillingPathPlatform,
	})
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}

	// Fresh charges are left alone.
	n, err := m.ReconcileStaleCharges(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ReconcileStaleCharges: %v", err)
	}
	if n != 0 {
		t.Fatalf("resolved %d fresh charges, want 0", n)
	}

	// Age the charge past the stale cutoff.
	repo.charges[ch.ID].CreatedAt = time.Now().Add(-time.Hour)

	n, err = m.ReconcileStaleCharges(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ReconcileStaleCharges: %v", err)
	}
	if n != 1 {
		t.Fatalf("resolved %d charges, want 1", n)
	}
	got, _ := repo.GetByID(ch.ID)
	if got.Status != models.ChargeStatusAccepted {
		t.Fatalf("status = %q, want accepted", got.Status)
	}
	if repo.ents.entitlements[1].State != models.EntitlementActive {
		t.Fatalf("entitlement state = %q, want active", repo.ents.entitlements[1].State)
	}
}

func TestReconcileStaleCharges_ProcessorAbandonedCheckoutExpires(t *testing.T) {
	repo := newFakeRepo()
	seedTrial(repo, 1)
	m := newTestManager(t, repo, nil, &fakeProcessor{})

	ch, err := m.CreateCharge(context.Background(), CreateChargeInput{
		TenantID: 1, BillingPath: models.BillingPathProcessor,
	})
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}
	repo.charges[ch.ID].CreatedAt = time.Now().Add(-time.Hour)

	n, err := m.ReconcileStaleCharges(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ReconcileStaleCharges: %v", err)
	}
	if n != 1 {
		t.Fatalf("resolved %d charges, want 1", n)
	}
	got, _ := repo.GetByID(ch.ID)
	if got.Status != models.ChargeStatusDeclined {
		t.Fatalf("status = %q, want declined", got.Status)
	}
	if repo.ents.entitlements[1].State != models.EntitlementTrialing {
		t.Fatalf("entitlement state = %q, want trialing", repo.ents.entitlements[1].State)
	}
}

func TestConfirmFromReturnURL_PollsUpstreamOutcome(t *testing.T) {
	repo := newFakeRepo()
	seedTrial(repo, 1)
	pc := &fakePlatform{charge: platform.RecurringCharge{ID: 900, Status: "accepted", ConfirmationURL: "https://acme.myshopify.com/confirm/900"}}
	m := newTestManager(t, repo, pc, nil)

	ch, err := m.CreateCharge(context.Background(), CreateChargeInput{
		TenantID: 1, BillingPath: models.BillingPathPlatform,
	})
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}

	out, err := m.ConfirmFromReturnURL(context.Background(), 1, ch.ID, time.Now())
	if err != nil {
		t.Fatalf("ConfirmFromReturnURL: %v", err)
	}
	if out.Status != models.ChargeStatusAccepted {
		t.Fatalf("status = %q, want accepted", out.Status)
	}
	if repo.ents.entitlements[1].State != models.EntitlementActive {
		t.Fatalf("entitlement state = %q, want active", repo.ents.entitlements[1].State)
	}
}

func TestConfirmFromReturnURL_WrongTenantRejected(t *testing.T) {
	repo := newFakeRepo()
	seedTrial(repo, 1)
	m := newTestManager(t, repo, nil, nil)

	ch, err := m.CreateCharge(context.Background(), CreateChargeInput{
		TenantID: 1, BillingPath: models.BillingPathPlatform,
	})
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}

	if _, err := m.ConfirmFromReturnURL(context.Background(), 2, ch.ID, time.Now()); !errors.Is(err, ErrChargeNotFound) {
		t.Fatalf("err = %v, want ErrChargeNotFound", err)
	}
	got, _ := repo.GetByID(ch.ID)
	if !got.IsPending() {
		t.Fatalf("charge must stay pending, got %q", got.Status)
	}
}

func TestPendingCharge(t *testing.T) {
	repo := newFakeRepo()
	m := newTestManager(t, repo, nil, nil)

	if ch, err := m.PendingCharge(1); err != nil || ch != nil {
		t.Fatalf("empty slot: ch=%v err=%v", ch, err)
	}

	created, err := m.CreateCharge(context.Background(), CreateChargeInput{
		TenantID: 1, BillingPath: models.BillingPathPlatform,
	})
	if err != nil {
		t.Fatalf("CreateCharge: %v", err)
	}

	ch, err := m.PendingCharge(1)
	if err != nil {
		t.Fatalf("PendingCharge: %v", err)
	}
	if ch == nil || ch.ID != created.ID {
		t.Fatalf("pending charge = %+v, want id %d", ch, created.ID)
	}
}
