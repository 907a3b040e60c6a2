package authorizer

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/app/models"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/entitlement"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/platform"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/secretbox"
	"github.com/vyndigital-cloud/EmployeeSuite-Production-sub001/internal/pkg/signature"
)

const testAPISecret = "api-secret"

type fakePlatformAPI struct {
	exchangeErr error
	shopErr     error
	registered  []string
	tokens      int
}

func (f *fakePlatformAPI) AuthorizeURL(shopDomain, redirectURI, state string) (string, error) {
	u := url.URL{Scheme: "https", Host: shopDomain, Path: "/admin/oauth/authorize"}
	q := u.Query()
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *fakePlatformAPI) ExchangeCode(ctx context.Context, shopDomain, code string) (*platform.TokenResponse, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	f.tokens++
	return &platform.TokenResponse{AccessToken: "shpat_abc", Scope: platform.RequiredScopes}, nil
}

func (f *fakePlatformAPI) GetShop(ctx context.Context, shopDomain, accessToken string) (*platform.Shop, error) {
	if f.shopErr != nil {
		return nil, f.shopErr
	}
	return &platform.Shop{ID: 777, Name: "Acme Store", Domain: shopDomain}, nil
}

func (f *fakePlatformAPI) RegisterWebhook(ctx context.Context, shopDomain, accessToken, topic, address string) error {
	f.registered = append(f.registered, topic)
	return nil
}

type fakeTenants struct {
	nextID  uint
	tenants map[string]*models.Tenant
	insts   map[uint]*models.Installation
}

func newFakeTenants() *fakeTenants {
	return &fakeTenants{nextID: 1, tenants: make(map[string]*models.Tenant), insts: make(map[uint]*models.Installation)}
}

func (f *fakeTenants) GetByID(id uint) (*models.Tenant, error) {
	for _, t := range f.tenants {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeTenants) GetByShopDomain(domain string) (*models.Tenant, error) {
	if t, ok := f.tenants[domain]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeTenants) GetByShopID(shopID int64) (*models.Tenant, error) {
	return nil, errors.New("not found")
}

func (f *fakeTenants) GetInstallation(tenantID uint) (*models.Installation, error) {
	if i, ok := f.insts[tenantID]; ok {
		cp := *i
		return &cp, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeTenants) UpsertWithInstallation(t *models.Tenant, inst *models.Installation) error {
	if existing, ok := f.tenants[t.ShopDomain]; ok {
		t.ID = existing.ID
	} else {
		t.ID = f.nextID
		f.nextID++
	}
	cp := *t
	f.tenants[t.ShopDomain] = &cp
	inst.TenantID = t.ID
	ci := *inst
	f.insts[t.ID] = &ci
	return nil
}

func (f *fakeTenants) EraseTenantData(tenantID uint) error { return nil }

type fakeEntRepo struct {
	entitlements map[uint]*models.Entitlement
}

func (f *fakeEntRepo) Transact(fn func(tx entitlement.Repository) error) error { return fn(f) }

func (f *fakeEntRepo) Get(tenantID uint) (*models.Entitlement, error) {
	e, ok := f.entitlements[tenantID]
	if !ok {
		return nil, entitlement.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEntRepo) GetForUpdate(tenantID uint) (*models.Entitlement, error) { return f.Get(tenantID) }

func (f *fakeEntRepo) Save(e *models.Entitlement) error {
	cp := *e
	f.entitlements[e.TenantID] = &cp
	return nil
}

func (f *fakeEntRepo) Create(e *models.Entitlement) error { return f.Save(e) }

func (f *fakeEntRepo) DeactivateInstallation(tenantID uint, at time.Time) error { return nil }

func signQuery(q url.Values) {
	pairs := make([]string, 0, len(q))
	for key, values := range q {
		if key == "hmac" || key == "signature" {
			continue
		}
		for _, v := range values {
			pairs = append(pairs, key+"="+v)
		}
	}
	sort.Strings(pairs)
	mac := hmac.New(sha256.New, []byte(testAPISecret))
	mac.Write([]byte(strings.Join(pairs, "&")))
	q.Set("hmac", hex.EncodeToString(mac.Sum(nil)))
}

type rig struct {
	api     *fakePlatformAPI
	tenants *fakeTenants
	ents    *fakeEntRepo
	svc     *Service
}

func newRig(t *testing.T) *rig {
	t.Helper()
	box, err := secretbox.New("box-secret")
	if err != nil {
		t.Fatalf("secretbox: %v", err)
	}
	api := &fakePlatformAPI{}
	tenants := newFakeTenants()
	ents := &fakeEntRepo{entitlements: make(map[uint]*models.Entitlement)}
	svc := NewService(tenants, entitlement.NewEngine(ents), api, box, testAPISecret, "https://app.example.com")
	return &rig{api: api, tenants: tenants, ents: ents, svc: svc}
}

func callbackQuery(t *testing.T, shop string, embedded bool) url.Values {
	t.Helper()
	state, err := signature.SignState(signature.StateClaims{
		ShopDomain: shop,
		Embedded:   embedded,
		Nonce:      "n-1",
	}, StateTTL, testAPISecret)
	if err != nil {
		t.Fatalf("sign state: %v", err)
	}
	q := url.Values{}
	q.Set("shop", shop)
	q.Set("code", "authcode")
	q.Set("state", state)
	q.Set("timestamp", "1700000000")
	signQuery(q)
	return q
}

func TestValidShopDomain(t *testing.T) {
	cases := []struct {
		domain string
		want   bool
	}{
		{"acme.myshopify.com", true},
		{"a-1.myshopify.com", true},
		{"acme.example.com", false},
		{".myshopify.com", false},
		{"evil.com/.myshopify.com", false},
		{"sub.acme.myshopify.com", false},
		{"acme_x.myshopify.com", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ValidShopDomain(tc.domain); got != tc.want {
			t.Errorf("ValidShopDomain(%q) = %v, want %v", tc.domain, got, tc.want)
		}
	}
}

func TestBeginAuthorization(t *testing.T) {
	rig := newRig(t)

	redirect, err := rig.svc.BeginAuthorization("Acme.myshopify.com", true)
	if err != nil {
		t.Fatalf("BeginAuthorization: %v", err)
	}
	u, err := url.Parse(redirect)
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	if u.Host != "acme.myshopify.com" {
		t.Fatalf("redirect host = %q", u.Host)
	}

	claims, err := signature.VerifyState(u.Query().Get("state"), testAPISecret)
	if err != nil {
		t.Fatalf("verify state: %v", err)
	}
	if claims.ShopDomain != "acme.myshopify.com" || !claims.Embedded {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestBeginAuthorization_RejectsBadDomain(t *testing.T) {
	rig := newRig(t)
	if _, err := rig.svc.BeginAuthorization("evil.example.com", false); !errors.Is(err, ErrInvalidShopDomain) {
		t.Fatalf("err = %v, want ErrInvalidShopDomain", err)
	}
}

func TestCompleteAuthorization_Install(t *testing.T) {
	rig := newRig(t)
	q := callbackQuery(t, "acme.myshopify.com", true)

	out, err := rig.svc.CompleteAuthorization(context.Background(), q)
	if err != nil {
		t.Fatalf("CompleteAuthorization: %v", err)
	}
	if !out.FreshInstall || !out.Embedded {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Tenant.DisplayName != "Acme Store" {
		t.Fatalf("display name = %q", out.Tenant.DisplayName)
	}

	inst := rig.tenants.insts[out.Tenant.ID]
	if inst == nil || !inst.Active {
		t.Fatal("installation missing or inactive")
	}
	if inst.AccessTokenEnc == "" || inst.AccessTokenEnc == "shpat_abc" {
		t.Fatal("access token must be stored encrypted")
	}
	if inst.ShopID != 777 {
		t.Fatalf("shop id = %d", inst.ShopID)
	}

	ent := rig.ents.entitlements[out.Tenant.ID]
	if ent == nil || ent.State != models.EntitlementTrialing {
		t.Fatalf("entitlement = %+v, want trialing", ent)
	}

	if len(rig.api.registered) != len(webhookTopics) {
		t.Fatalf("registered %d webhook topics, want %d", len(rig.api.registered), len(webhookTopics))
	}
}

func TestCompleteAuthorization_ReauthKeepsLiveEntitlement(t *testing.T) {
	rig := newRig(t)

	q := callbackQuery(t, "acme.myshopify.com", false)
	out, err := rig.svc.CompleteAuthorization(context.Background(), q)
	if err != nil {
		t.Fatalf("install: %v", err)
	}

	// Move the tenant to active, then re-auth.
	rig.ents.entitlements[out.Tenant.ID].State = models.EntitlementActive

	q2 := callbackQuery(t, "acme.myshopify.com", false)
	out2, err := rig.svc.CompleteAuthorization(context.Background(), q2)
	if err != nil {
		t.Fatalf("re-auth: %v", err)
	}
	if out2.FreshInstall {
		t.Fatal("re-auth reported as fresh install")
	}
	if out2.Tenant.ID != out.Tenant.ID {
		t.Fatalf("tenant id changed on re-auth: %d -> %d", out.Tenant.ID, out2.Tenant.ID)
	}
	if got := rig.ents.entitlements[out.Tenant.ID].State; got != models.EntitlementActive {
		t.Fatalf("re-auth reset entitlement to %q", got)
	}
}

func TestCompleteAuthorization_RejectsBadHMAC(t *testing.T) {
	rig := newRig(t)
	q := callbackQuery(t, "acme.myshopify.com", false)
	q.Set("shop", "other.myshopify.com") // break the signature

	if _, err := rig.svc.CompleteAuthorization(context.Background(), q); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
	if rig.api.tokens != 0 {
		t.Fatal("code exchange must not run on a bad signature")
	}
}

func TestCompleteAuthorization_RejectsShopStateMismatch(t *testing.T) {
	rig := newRig(t)
	q := callbackQuery(t, "acme.myshopify.com", false)
	q.Set("shop", "other.myshopify.com")
	signQuery(q) // re-sign so only the state check can fail

	if _, err := rig.svc.CompleteAuthorization(context.Background(), q); !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("err = %v, want ErrStateMismatch", err)
	}
}

func TestCompleteAuthorization_RejectsExpiredState(t *testing.T) {
	rig := newRig(t)
	state, err := signature.SignState(signature.StateClaims{
		ShopDomain: "acme.myshopify.com",
		Nonce:      "n-2",
	}, -time.Minute, testAPISecret)
	if err != nil {
		t.Fatalf("sign state: %v", err)
	}
	q := url.Values{}
	q.Set("shop", "acme.myshopify.com")
	q.Set("code", "authcode")
	q.Set("state", state)
	signQuery(q)

	if _, err := rig.svc.CompleteAuthorization(context.Background(), q); !errors.Is(err, ErrStateExpired) {
		t.Fatalf("err = %v, want ErrStateExpired", err)
	}
}

func TestCompleteAuthorization_ExchangeFailure(t *testing.T) {
	rig := newRig(t)
	rig.api.exchangeErr = platform.ErrRejected
	q := callbackQuery(t, "acme.myshopify.com", false)

	if _, err := rig.svc.CompleteAuthorization(context.Background(), q); !errors.Is(err, ErrExchangeFailed) {
		t.Fatalf("err = %v, want ErrExchangeFailed", err)
	}
	if len(rig.tenants.tenants) != 0 {
		t.Fatal("no tenant may be persisted when the exchange fails")
	}
}
