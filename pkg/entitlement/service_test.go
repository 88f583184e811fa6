package entitlement

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"
)

// memStore is an in-memory LocalStore for exercising the service without
// touching disk.
type memStore struct {
	entitlement *CachedRecord
	license     *CachedLicense
	failSave    bool
}

func (m *memStore) SaveEntitlement(rec CachedRecord) error {
	if m.failSave {
		return errors.New("disk full")
	}
	m.entitlement = &rec
	return nil
}

func (m *memStore) LoadEntitlement() (*CachedRecord, error) { return m.entitlement, nil }

func (m *memStore) ClearEntitlement() error {
	m.entitlement = nil
	return nil
}

func (m *memStore) SaveLicense(rec CachedLicense) error {
	if m.failSave {
		return errors.New("disk full")
	}
	m.license = &rec
	return nil
}

func (m *memStore) LoadLicense() (*CachedLicense, error) { return m.license, nil }

func (m *memStore) ClearLicense() error {
	m.license = nil
	return nil
}

func newTestService(t *testing.T, store LocalStore) (*Service, *EntitlementSigner) {
	t.Helper()
	signer, pub := testKeyPair(t)
	svc, err := NewService(DefaultResolverConfig(), KeyMaterial{
		PublicKey:     base64.RawURLEncoding.EncodeToString(pub),
		LicenseSecret: testSecret,
	}, store)
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	return svc, signer
}

func TestServiceSaveAndResolveEntitlement(t *testing.T) {
	store := &memStore{}
	svc, signer := newTestService(t, store)
	now := mustTime(t, "2025-01-01T00:00:00Z")
	svc.SetClock(fixedClock(now))

	token, _, err := signer.Issue("sub_1", "solo_monthly", "user@example.com", now, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	rec, err := svc.SaveLocalEntitlement(token, SourceEntitlementToken)
	if err != nil {
		t.Fatalf("SaveLocalEntitlement() error: %v", err)
	}
	if !rec.Valid || rec.Tier != TierPro {
		t.Errorf("saved record valid=%v tier=%q, want valid pro", rec.Valid, rec.Tier)
	}
	if store.entitlement == nil {
		t.Fatal("record not persisted")
	}

	res := svc.ResolveEffective()
	if res.Tier != TierPro || res.Source != SourceEntitlementToken {
		t.Errorf("tier=%q source=%q, want pro/entitlement_token", res.Tier, res.Source)
	}
}

func TestServiceGraceAfterExpiry(t *testing.T) {
	store := &memStore{}
	svc, signer := newTestService(t, store)
	issuedAt := mustTime(t, "2025-01-01T00:00:00Z")
	svc.SetClock(fixedClock(issuedAt))

	token, claims, err := signer.Issue("sub_1", "solo_monthly", "", issuedAt, 24*time.Hour)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if _, err := svc.SaveLocalEntitlement(token, SourceEntitlementToken); err != nil {
		t.Fatalf("SaveLocalEntitlement() error: %v", err)
	}

	// A day after expiry but inside the grace window.
	svc.SetClock(fixedClock(claims.ExpiresAt.Add(24 * time.Hour)))
	res := svc.ResolveEffective()
	if res.Tier != TierPro || !res.Stale {
		t.Errorf("tier=%q stale=%v, want stale pro", res.Tier, res.Stale)
	}

	// Well past the window.
	svc.SetClock(fixedClock(claims.ExpiresAt.Add(30 * 24 * time.Hour)))
	res = svc.ResolveEffective()
	if res.Tier != TierCore || res.Source != SourceDefaultCore {
		t.Errorf("tier=%q source=%q, want core/default_core", res.Tier, res.Source)
	}
}

func TestServiceSaveExpiredEntitlement(t *testing.T) {
	store := &memStore{}
	svc, signer := newTestService(t, store)
	issuedAt := mustTime(t, "2025-01-01T00:00:00Z")

	token, claims, err := signer.Issue("sub_1", "solo_monthly", "", issuedAt, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	// Saving after expiry is allowed; grace depends on the snapshot.
	svc.SetClock(fixedClock(claims.ExpiresAt.Add(time.Minute)))
	rec, err := svc.SaveLocalEntitlement(token, SourceEntitlementToken)
	if err != nil {
		t.Fatalf("SaveLocalEntitlement() error: %v", err)
	}
	if rec.Valid {
		t.Error("record for expired token must not be marked valid")
	}
	if rec.Error != string(ErrKindExpired) {
		t.Errorf("record error = %q, want expired", rec.Error)
	}
	if rec.Tier != TierPro {
		t.Errorf("record tier = %q, want pro", rec.Tier)
	}
}

func TestServiceRejectsUncacheableToken(t *testing.T) {
	store := &memStore{}
	svc, _ := newTestService(t, store)

	if _, err := svc.SaveLocalEntitlement("not-a-token", SourceEntitlementToken); !errors.Is(err, ErrTokenNotCacheable) {
		t.Errorf("error = %v, want ErrTokenNotCacheable", err)
	}
	if store.entitlement != nil {
		t.Error("structurally invalid token must not be persisted")
	}
}

func TestServiceSaveSurfacesStoreErrors(t *testing.T) {
	store := &memStore{failSave: true}
	svc, signer := newTestService(t, store)
	now := mustTime(t, "2025-01-01T00:00:00Z")
	svc.SetClock(fixedClock(now))

	token, _, err := signer.Issue("sub_1", "solo_monthly", "", now, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if _, err := svc.SaveLocalEntitlement(token, SourceEntitlementToken); err == nil {
		t.Error("expected persistence error to surface")
	}
}

func TestServiceLicenseLifecycle(t *testing.T) {
	store := &memStore{}
	svc, _ := newTestService(t, store)
	now := mustTime(t, "2025-01-15T00:00:00Z")
	svc.SetClock(fixedClock(now))

	token := issueTestLicense(t, "pur_1", "team_yearly", mustTime(t, "2025-01-01T00:00:00Z"), 30)
	if err := svc.SaveLocalLicense(token); err != nil {
		t.Fatalf("SaveLocalLicense() error: %v", err)
	}

	res := svc.ResolveEffective()
	if res.Tier != TierPro || res.Source != SourceLocalLicense {
		t.Errorf("tier=%q source=%q, want pro/local_license", res.Tier, res.Source)
	}

	if err := svc.ClearLocalLicense(); err != nil {
		t.Fatalf("ClearLocalLicense() error: %v", err)
	}
	res = svc.ResolveEffective()
	if res.Source != SourceDefaultCore {
		t.Errorf("source = %q, want default_core after clear", res.Source)
	}

	if err := svc.SaveLocalLicense("garbage"); !errors.Is(err, ErrTokenNotCacheable) {
		t.Errorf("error = %v, want ErrTokenNotCacheable for undecodable license", err)
	}
}

func TestServiceResolveWithoutKeys(t *testing.T) {
	svc, err := NewService(DefaultResolverConfig(), KeyMaterial{}, &memStore{})
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	res := svc.ResolveEffective()
	if res.Tier != TierCore || res.Source != SourceDefaultCore {
		t.Errorf("tier=%q source=%q, want core/default_core", res.Tier, res.Source)
	}
}

func TestServiceRejectsBadPublicKey(t *testing.T) {
	_, err := NewService(DefaultResolverConfig(), KeyMaterial{PublicKey: "!!not-a-key!!"}, &memStore{})
	if err == nil {
		t.Error("expected error for unparseable public key")
	}
}
