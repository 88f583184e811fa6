package issuer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewright/entitled/pkg/entitlement"
)

func newTestService(t *testing.T) (*Service, ed25519.PublicKey) {
	t.Helper()

	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	licenses, err := entitlement.NewLicenseSigner("test-license-secret")
	require.NoError(t, err)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	entitlements, err := entitlement.NewEntitlementSigner(base64.RawURLEncoding.EncodeToString(priv.Seed()))
	require.NoError(t, err)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return New(store, licenses, entitlements, func() time.Time { return now }), pub
}

func TestIssueLicenseIdempotent(t *testing.T) {
	svc, _ := newTestService(t)

	first, err := svc.IssueLicense("pur_1", "solo_monthly", "buyer@example.com", 30)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := svc.IssueLicense("pur_1", "solo_monthly", "buyer@example.com", 30)
	require.NoError(t, err)
	assert.Equal(t, first, second, "replayed issuance must return the stored token byte for byte")

	status := entitlement.VerifyLicense(first, []byte("test-license-secret"), time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))
	require.True(t, status.Valid, "issued token must verify: %s", status.Error)
	assert.Equal(t, "pur_1", status.Claims.PurchaseID)
}

func TestIssueLicenseDistinctPurchases(t *testing.T) {
	svc, _ := newTestService(t)

	a, err := svc.IssueLicense("pur_1", "solo_monthly", "buyer@example.com", 30)
	require.NoError(t, err)
	b, err := svc.IssueLicense("pur_2", "solo_monthly", "buyer@example.com", 30)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestIssueEntitlementIdempotent(t *testing.T) {
	svc, pub := newTestService(t)

	first, err := svc.IssueEntitlement("sub_1", "team_yearly", "user@example.com", 30*24*time.Hour)
	require.NoError(t, err)

	second, err := svc.IssueEntitlement("sub_1", "team_yearly", "user@example.com", 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	status := entitlement.VerifyEntitlement(first, pub, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))
	require.True(t, status.Valid, "issued token must verify: %s", status.Error)
	assert.Equal(t, "sub_1", status.Claims.Subject)
	assert.Equal(t, entitlement.TierPro, status.Claims.Tier)
}

func TestIssueWithoutSigner(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := New(store, nil, nil, nil)
	_, err = svc.IssueLicense("pur_1", "solo_monthly", "", 30)
	assert.True(t, errors.Is(err, ErrSignerNotConfigured))
	_, err = svc.IssueEntitlement("sub_1", "solo_monthly", "", time.Hour)
	assert.True(t, errors.Is(err, ErrSignerNotConfigured))
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenStore(dir)
	require.NoError(t, err)
	licenses, err := entitlement.NewLicenseSigner("test-license-secret")
	require.NoError(t, err)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := New(store, licenses, nil, func() time.Time { return now })

	token, err := svc.IssueLicense("pur_1", "solo_monthly", "", 30)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	stored, err := reopened.LicenseFor("pur_1")
	require.NoError(t, err)
	assert.Equal(t, token, stored)
}

func TestStoreFirstInsertWins(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.PutLicense("pur_1", "solo_monthly", "", "token-a", now))
	require.NoError(t, store.PutLicense("pur_1", "solo_monthly", "", "token-b", now))

	stored, err := store.LicenseFor("pur_1")
	require.NoError(t, err)
	assert.Equal(t, "token-a", stored)
}
