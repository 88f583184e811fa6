package entitlement

import (
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// CachedLicense is the persisted local license: the raw token plus when it
// was saved. The token is re-verified on every resolution.
type CachedLicense struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"savedAt"`
}

// LocalStore is the byte-oriented persistence capability the service needs.
// Implementations must replace records whole (last write wins) and report a
// missing record as (nil, nil). internal/cache provides the file-backed
// implementation; tests substitute an in-memory fake.
type LocalStore interface {
	SaveEntitlement(rec CachedRecord) error
	LoadEntitlement() (*CachedRecord, error)
	ClearEntitlement() error
	SaveLicense(rec CachedLicense) error
	LoadLicense() (*CachedLicense, error)
	ClearLicense() error
}

// KeyMaterial is the verification key configuration for a client install.
// Either field may be empty; verification of that token kind then degrades
// to an invalid status instead of failing construction.
type KeyMaterial struct {
	// PublicKey verifies entitlement tokens: PEM or raw base64 Ed25519.
	PublicKey string

	// LicenseSecret verifies license tokens (shared secret).
	LicenseSecret string
}

// Service is the client-side facade over verification, the local cache, and
// the resolver. Safe for concurrent use.
type Service struct {
	mu        sync.RWMutex
	cfg       ResolverConfig
	store     LocalStore
	publicKey ed25519.PublicKey
	secret    []byte
	now       func() time.Time
}

// NewService creates the facade. An unparseable public key is an error; an
// absent one is not.
func NewService(cfg ResolverConfig, keys KeyMaterial, store LocalStore) (*Service, error) {
	var publicKey ed25519.PublicKey
	if keys.PublicKey != "" {
		key, err := LoadPublicKey(keys.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("load entitlement public key: %w", err)
		}
		publicKey = key
		log.Debug().
			Str("fingerprint", KeyFingerprint(key)).
			Msg("entitlement public key loaded")
	} else {
		log.Warn().Msg("no entitlement public key configured; entitlement tokens will not verify")
	}

	return &Service{
		cfg:       cfg.withDefaults(),
		store:     store,
		publicKey: publicKey,
		secret:    []byte(keys.LicenseSecret),
		now:       time.Now,
	}, nil
}

// SetClock overrides the service clock. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.now = now
	}
}

// VerifyLicense checks a license token at the current instant.
func (s *Service) VerifyLicense(token string) LicenseStatus {
	s.mu.RLock()
	secret, now := s.secret, s.now
	s.mu.RUnlock()
	return VerifyLicense(token, secret, now())
}

// VerifyEntitlement checks an entitlement token at the current instant.
func (s *Service) VerifyEntitlement(token string) EntitlementStatus {
	s.mu.RLock()
	publicKey, now := s.publicKey, s.now
	s.mu.RUnlock()
	return VerifyEntitlement(token, publicKey, now())
}

// SaveLocalEntitlement verifies a token and snapshots the outcome as the
// cached record. Expired tokens are saved too; the grace fallback depends on
// their last-known tier. Tokens with no decodable claims are rejected.
func (s *Service) SaveLocalEntitlement(token string, source Source) (CachedRecord, error) {
	status := s.VerifyEntitlement(token)
	rec, err := NewCachedRecord(token, source, status, s.clock()())
	if err != nil {
		return CachedRecord{}, fmt.Errorf("%w: %s", err, status.Error)
	}
	if err := s.store.SaveEntitlement(rec); err != nil {
		return CachedRecord{}, fmt.Errorf("save entitlement record: %w", err)
	}
	log.Info().
		Str("subject", rec.Subject).
		Str("tier", string(rec.Tier)).
		Bool("valid", rec.Valid).
		Msg("local entitlement saved")
	return rec, nil
}

// LoadLocalEntitlement returns the cached record, or nil when absent.
func (s *Service) LoadLocalEntitlement() (*CachedRecord, error) {
	return s.store.LoadEntitlement()
}

// ClearLocalEntitlement removes the cached record.
func (s *Service) ClearLocalEntitlement() error {
	return s.store.ClearEntitlement()
}

// SaveLocalLicense persists a license token after checking that its claims
// decode. Verification failures other than structural ones do not block the
// save; the resolver re-verifies on every use.
func (s *Service) SaveLocalLicense(token string) error {
	status := s.VerifyLicense(token)
	if status.Claims == nil && status.Error != ErrKindMissingKey {
		return fmt.Errorf("%w: %s", ErrTokenNotCacheable, status.Error)
	}
	rec := CachedLicense{Token: token, SavedAt: s.clock()().UTC().Truncate(time.Second)}
	if err := s.store.SaveLicense(rec); err != nil {
		return fmt.Errorf("save license record: %w", err)
	}
	log.Info().Msg("local license saved")
	return nil
}

// LoadLocalLicense returns the saved license, or nil when absent.
func (s *Service) LoadLocalLicense() (*CachedLicense, error) {
	return s.store.LoadLicense()
}

// ClearLocalLicense removes the saved license.
func (s *Service) ClearLocalLicense() error {
	return s.store.ClearLicense()
}

// ResolveEffective produces the single effective entitlement decision. A
// corrupt or missing cache never aborts resolution; it is treated as absent
// and the chain falls through.
func (s *Service) ResolveEffective() Resolution {
	s.mu.RLock()
	cfg, publicKey, secret, now := s.cfg, s.publicKey, s.secret, s.now
	s.mu.RUnlock()

	cached, err := s.store.LoadEntitlement()
	if err != nil {
		log.Warn().Err(err).Msg("cached entitlement unreadable; treating as absent")
		cached = nil
	}

	var licenseToken string
	if lic, err := s.store.LoadLicense(); err != nil {
		log.Warn().Err(err).Msg("local license unreadable; treating as absent")
	} else if lic != nil {
		licenseToken = lic.Token
	}

	return NewResolver(cfg, publicKey, secret, now).Resolve(cached, licenseToken)
}

func (s *Service) clock() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now
}
