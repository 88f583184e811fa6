package entitlement

import (
	"crypto/ed25519"
	"slices"
	"time"
)

// Channel is the deployment/distribution mode of an installation. A core
// channel build can be configured to refuse pro upgrades regardless of what
// a token says.
type Channel string

const (
	ChannelCore Channel = "core"
	ChannelPro  Channel = "pro"
	ChannelAuto Channel = "auto"
)

// Source identifies which input won the precedence chain.
type Source string

const (
	SourceEntitlementToken      Source = "entitlement_token"
	SourceEntitlementCacheGrace Source = "entitlement_cache_grace"
	SourceLocalLicense          Source = "local_license"
	SourceInstallChannel        Source = "install_channel"
	SourceDefaultCore           Source = "default_core"
)

// DefaultOfflineGrace is the window after token expiry during which a
// previously verified pro state is still honored offline.
const DefaultOfflineGrace = 72 * time.Hour

// ResolverConfig carries the resolution policy. Construct it once (see
// DefaultResolverConfig) and pass it in; the resolver performs no ambient
// lookups.
type ResolverConfig struct {
	InstallChannel Channel

	// AllowCoreChannelProUpgrade permits a core-channel install to honor a
	// valid pro token. When false and the channel is explicitly core, pro
	// results are clamped to core.
	AllowCoreChannelProUpgrade bool

	// OfflineGrace bounds how long an expired pro entitlement is still
	// honored after it was saved. Zero or negative disables the fallback
	// entirely; start from DefaultResolverConfig for the shipped 72h window.
	OfflineGrace time.Duration
}

// DefaultResolverConfig returns the shipped policy: auto channel, pro
// upgrades allowed, 72h offline grace.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		InstallChannel:             ChannelAuto,
		AllowCoreChannelProUpgrade: true,
		OfflineGrace:               DefaultOfflineGrace,
	}
}

func (c ResolverConfig) withDefaults() ResolverConfig {
	if c.InstallChannel == "" {
		c.InstallChannel = ChannelAuto
	}
	return c
}

// clampActive reports whether pro results must be clamped to core.
func (c ResolverConfig) clampActive() bool {
	return c.InstallChannel == ChannelCore && !c.AllowCoreChannelProUpgrade
}

// CachedRecord is the last-write-wins snapshot of the most recent local
// entitlement verification. It is only consulted when the live token check
// no longer passes.
type CachedRecord struct {
	EntitlementToken string     `json:"entitlementToken"`
	Source           Source     `json:"source"`
	SavedAt          time.Time  `json:"savedAt"`
	Valid            bool       `json:"valid"`
	Tier             Tier       `json:"tier,omitempty"`
	Capabilities     []string   `json:"capabilities,omitempty"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	IssuedAt         *time.Time `json:"issuedAt,omitempty"`
	Subject          string     `json:"sub,omitempty"`
	PlanID           string     `json:"planId,omitempty"`
	Email            string     `json:"email,omitempty"`
	Error            string     `json:"error,omitempty"`
}

// NewCachedRecord snapshots a verification outcome for persistence. The
// token must have decodable claims; structurally broken tokens are not
// worth caching.
func NewCachedRecord(token string, source Source, status EntitlementStatus, savedAt time.Time) (CachedRecord, error) {
	if status.Claims == nil {
		return CachedRecord{}, ErrTokenNotCacheable
	}
	claims := status.Claims
	expiresAt := claims.ExpiresAt
	rec := CachedRecord{
		EntitlementToken: token,
		Source:           source,
		SavedAt:          savedAt.UTC().Truncate(time.Second),
		Valid:            status.Valid,
		Tier:             claims.Tier,
		Capabilities:     slices.Clone(status.Capabilities),
		ExpiresAt:        &expiresAt,
		Subject:          claims.Subject,
		PlanID:           claims.PlanID,
		Email:            claims.Email,
		Error:            string(status.Error),
	}
	if !claims.IssuedAt.IsZero() {
		issuedAt := claims.IssuedAt
		rec.IssuedAt = &issuedAt
	}
	return rec, nil
}

// Resolution is the single effective entitlement decision consumed by the
// CLI and server layers.
type Resolution struct {
	Tier         Tier       `json:"tier"`
	Capabilities []string   `json:"capabilities"`
	Source       Source     `json:"source"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	Stale        bool       `json:"stale,omitempty"`
}

// Resolver turns the locally available state into one effective tier and
// capability decision. Resolution is read-only and safe to run concurrently;
// every ambiguous or corrupt input falls through to the next lower-privilege
// step, terminating at core.
type Resolver struct {
	cfg           ResolverConfig
	publicKey     ed25519.PublicKey
	licenseSecret []byte
	now           func() time.Time
}

// NewResolver creates a resolver. publicKey and licenseSecret may be empty;
// verification of the corresponding token kind then degrades to invalid and
// resolution falls through. now defaults to time.Now.
func NewResolver(cfg ResolverConfig, publicKey ed25519.PublicKey, licenseSecret []byte, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		cfg:           cfg.withDefaults(),
		publicKey:     publicKey,
		licenseSecret: licenseSecret,
		now:           now,
	}
}

// Resolve applies the precedence chain: live cached token, offline-grace
// fallback, local license, install-channel default.
func (r *Resolver) Resolve(cached *CachedRecord, licenseToken string) Resolution {
	now := r.now().UTC()

	if cached != nil && cached.EntitlementToken != "" {
		status := VerifyEntitlement(cached.EntitlementToken, r.publicKey, now)
		switch {
		case status.Valid:
			return r.tokenResolution(status)
		case status.Error == ErrKindExpired:
			if res, ok := r.graceResolution(cached, now); ok {
				return res
			}
		}
		// Any other failure: fall through.
	}

	if licenseToken != "" {
		if status := VerifyLicense(licenseToken, r.licenseSecret, now); status.Valid {
			tier := status.Claims.Tier()
			if tier == TierPro && r.cfg.clampActive() {
				tier = TierCore
			}
			expiresAt := status.Claims.ExpiresAt
			return Resolution{
				Tier:         tier,
				Capabilities: CapabilitiesForTier(tier),
				Source:       SourceLocalLicense,
				ExpiresAt:    &expiresAt,
			}
		}
	}

	source := SourceDefaultCore
	if r.cfg.InstallChannel == ChannelCore {
		source = SourceInstallChannel
	}
	return Resolution{
		Tier:         TierCore,
		Capabilities: CapabilitiesForTier(TierCore),
		Source:       source,
	}
}

func (r *Resolver) tokenResolution(status EntitlementStatus) Resolution {
	tier := status.Claims.Tier
	capabilities := status.Capabilities
	if tier == TierPro && r.cfg.clampActive() {
		// The explicit capability list was issued for pro; a clamped
		// result must not carry it.
		tier = TierCore
		capabilities = CapabilitiesForTier(TierCore)
	}
	if len(capabilities) == 0 {
		capabilities = CapabilitiesForTier(tier)
	}
	expiresAt := status.Claims.ExpiresAt
	return Resolution{
		Tier:         tier,
		Capabilities: slices.Clone(capabilities),
		Source:       SourceEntitlementToken,
		ExpiresAt:    &expiresAt,
	}
}

// graceResolution trusts the cache's own prior verification of a pro token
// for a bounded window after that token expired. It is the only path that
// honors a token whose live check failed, and it never survives a channel
// clamp: when pro is disallowed there is nothing worth extending.
func (r *Resolver) graceResolution(cached *CachedRecord, now time.Time) (Resolution, bool) {
	if r.cfg.OfflineGrace <= 0 {
		return Resolution{}, false
	}
	if cached.Tier != TierPro || r.cfg.clampActive() {
		return Resolution{}, false
	}
	if cached.SavedAt.IsZero() || now.Sub(cached.SavedAt) > r.cfg.OfflineGrace {
		return Resolution{}, false
	}
	capabilities := cached.Capabilities
	if len(capabilities) == 0 {
		capabilities = CapabilitiesForTier(TierPro)
	}
	return Resolution{
		Tier:         TierPro,
		Capabilities: slices.Clone(capabilities),
		Source:       SourceEntitlementCacheGrace,
		ExpiresAt:    cached.ExpiresAt,
		Stale:        true,
	}, true
}
