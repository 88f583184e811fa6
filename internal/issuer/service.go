package issuer

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gatewright/entitled/pkg/entitlement"
)

// ErrSignerNotConfigured is returned when the signer for the requested token
// kind was not supplied (missing secret or private key).
var ErrSignerNotConfigured = errors.New("signer not configured")

// Service signs tokens and enforces check-then-insert idempotency against
// the store. Either signer may be nil; the corresponding issue operation
// then fails with ErrSignerNotConfigured.
type Service struct {
	store        *Store
	licenses     *entitlement.LicenseSigner
	entitlements *entitlement.EntitlementSigner
	now          func() time.Time
}

// New creates the issuance service. now defaults to time.Now.
func New(store *Store, licenses *entitlement.LicenseSigner, entitlements *entitlement.EntitlementSigner, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:        store,
		licenses:     licenses,
		entitlements: entitlements,
		now:          now,
	}
}

// IssueLicense returns the license token for a purchase, minting one only if
// the purchase id has never been issued before. Retries get the stored
// token back byte for byte.
func (s *Service) IssueLicense(purchaseID, planID, email string, expiryDays int) (string, error) {
	if s.licenses == nil {
		return "", fmt.Errorf("%w: license signing secret", ErrSignerNotConfigured)
	}

	if existing, err := s.store.LicenseFor(purchaseID); err != nil {
		return "", err
	} else if existing != "" {
		log.Debug().Str("purchase_id", purchaseID).Msg("license issuance replayed from store")
		return existing, nil
	}

	now := s.now()
	token, claims, err := s.licenses.Issue(purchaseID, planID, email, now, expiryDays)
	if err != nil {
		return "", fmt.Errorf("sign license: %w", err)
	}
	if err := s.store.PutLicense(purchaseID, planID, email, token, claims.IssuedAt); err != nil {
		return "", err
	}

	// A racing request may have inserted first; the stored row wins either
	// way, so re-read rather than trusting the token signed above.
	stored, err := s.store.LicenseFor(purchaseID)
	if err != nil {
		return "", err
	}
	if stored != token {
		log.Debug().Str("purchase_id", purchaseID).Msg("license issuance lost insert race; returning stored token")
		return stored, nil
	}

	log.Info().
		Str("purchase_id", purchaseID).
		Str("plan_id", planID).
		Time("expires_at", claims.ExpiresAt).
		Msg("license issued")
	return token, nil
}

// IssueEntitlement returns the entitlement token for a subject with the same
// idempotency contract as IssueLicense.
func (s *Service) IssueEntitlement(subject, planID, email string, validFor time.Duration) (string, error) {
	if s.entitlements == nil {
		return "", fmt.Errorf("%w: entitlement private key", ErrSignerNotConfigured)
	}

	if existing, err := s.store.EntitlementFor(subject); err != nil {
		return "", err
	} else if existing != "" {
		log.Debug().Str("subject", subject).Msg("entitlement issuance replayed from store")
		return existing, nil
	}

	now := s.now()
	token, claims, err := s.entitlements.Issue(subject, planID, email, now, validFor)
	if err != nil {
		return "", fmt.Errorf("sign entitlement: %w", err)
	}
	if err := s.store.PutEntitlement(subject, planID, email, token, claims.IssuedAt); err != nil {
		return "", err
	}

	stored, err := s.store.EntitlementFor(subject)
	if err != nil {
		return "", err
	}
	if stored != token {
		log.Debug().Str("subject", subject).Msg("entitlement issuance lost insert race; returning stored token")
		return stored, nil
	}

	log.Info().
		Str("subject", subject).
		Str("plan_id", planID).
		Str("tier", string(claims.Tier)).
		Time("expires_at", claims.ExpiresAt).
		Msg("entitlement issued")
	return token, nil
}
