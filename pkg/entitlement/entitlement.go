package entitlement

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

const entitlementVersion = 1

// DefaultProduct identifies the product entitlement tokens are issued for.
const DefaultProduct = "entitled"

// EntitlementClaims is the decoded content of an entitlement token. The
// capability list embedded at issuance is authoritative; verifiers only fall
// back to the tier table for legacy tokens that omit it.
type EntitlementClaims struct {
	Version      int
	Product      string
	Subject      string
	Tier         Tier
	PlanID       string
	Email        string
	Capabilities []string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// EffectiveCapabilities returns the explicit capability list when present,
// otherwise the tier-derived set. Always sorted, always a copy.
func (c EntitlementClaims) EffectiveCapabilities() []string {
	if len(c.Capabilities) > 0 {
		out := slices.Clone(c.Capabilities)
		sort.Strings(out)
		return out
	}
	return CapabilitiesForTier(c.Tier)
}

// entitlementPayloadV1 is the version-1 wire shape. Fields are declared in
// ascending key order so encoding/json emits the canonical sorted form.
type entitlementPayloadV1 struct {
	Capabilities []string `json:"capabilities"`
	Email        string   `json:"email"`
	ExpiresAt    string   `json:"expiresAt"`
	IssuedAt     string   `json:"issuedAt"`
	PlanID       string   `json:"planId"`
	Product      string   `json:"product"`
	Subject      string   `json:"subject"`
	Tier         string   `json:"tier"`
	Version      int      `json:"version"`
}

// versionProbe reads only the payload version so decoding can dispatch on it
// before committing to a fixed shape.
type versionProbe struct {
	Version int `json:"version"`
}

// EntitlementStatus is the outcome of verifying an entitlement token.
// Capabilities holds the effective set whenever claims decoded.
type EntitlementStatus struct {
	Valid        bool               `json:"valid"`
	Error        ErrorKind          `json:"error,omitempty"`
	Claims       *EntitlementClaims `json:"claims,omitempty"`
	Capabilities []string           `json:"capabilities,omitempty"`
}

// EntitlementSigner issues entitlement tokens with an Ed25519 private key.
type EntitlementSigner struct {
	key     ed25519.PrivateKey
	product string
}

// NewEntitlementSigner creates a signer from private key material (PEM or
// raw base64, see LoadPrivateKey).
func NewEntitlementSigner(material string) (*EntitlementSigner, error) {
	key, err := LoadPrivateKey(material)
	if err != nil {
		return nil, err
	}
	return &EntitlementSigner{key: key, product: DefaultProduct}, nil
}

// Issue builds, signs, and encodes an entitlement for a subject. The tier
// and capability set are derived from the plan at issuance time and frozen
// into the token.
func (s *EntitlementSigner) Issue(subject, planID, email string, now time.Time, validFor time.Duration) (string, EntitlementClaims, error) {
	if strings.TrimSpace(subject) == "" {
		return "", EntitlementClaims{}, fmt.Errorf("%w: subject is required", ErrInvalidClaims)
	}
	if validFor <= 0 {
		return "", EntitlementClaims{}, fmt.Errorf("%w: validity must be positive", ErrInvalidClaims)
	}

	tier := PlanTier(planID)
	issuedAt := now.UTC().Truncate(time.Second)
	claims := EntitlementClaims{
		Version:      entitlementVersion,
		Product:      s.product,
		Subject:      subject,
		Tier:         tier,
		PlanID:       planID,
		Email:        email,
		Capabilities: CapabilitiesForTier(tier),
		IssuedAt:     issuedAt,
		ExpiresAt:    issuedAt.Add(validFor).Truncate(time.Second),
	}
	if !claims.ExpiresAt.After(claims.IssuedAt) {
		return "", EntitlementClaims{}, fmt.Errorf("%w: expiry must be after issuance", ErrInvalidClaims)
	}

	payload, err := json.Marshal(entitlementPayloadV1{
		Capabilities: claims.Capabilities,
		Email:        claims.Email,
		ExpiresAt:    formatWireTime(claims.ExpiresAt),
		IssuedAt:     formatWireTime(claims.IssuedAt),
		PlanID:       claims.PlanID,
		Product:      claims.Product,
		Subject:      claims.Subject,
		Tier:         string(claims.Tier),
		Version:      claims.Version,
	})
	if err != nil {
		return "", EntitlementClaims{}, fmt.Errorf("marshal entitlement payload: %w", err)
	}

	payloadB64 := base64.RawURLEncoding.EncodeToString(payload)
	return encodeSignedToken(EntitlementPrefix, payloadB64, ed25519.Sign(s.key, []byte(payloadB64))), claims, nil
}

// VerifyEntitlement checks an entitlement token against the public key at
// the given instant. A missing public key degrades to a missing_key status
// rather than an error so callers always get a decidable answer.
func VerifyEntitlement(token string, publicKey ed25519.PublicKey, now time.Time) EntitlementStatus {
	decoded, err := DecodeToken(token, EntitlementPrefix)
	if err != nil {
		return EntitlementStatus{Error: decodeErrorKind(err)}
	}

	if len(publicKey) != ed25519.PublicKeySize {
		return EntitlementStatus{Error: ErrKindMissingKey}
	}

	signature, err := base64.RawURLEncoding.DecodeString(decoded.SignatureB64)
	if err != nil {
		return EntitlementStatus{Error: ErrKindSignatureMismatch}
	}
	if !ed25519.Verify(publicKey, []byte(decoded.PayloadB64), signature) {
		return EntitlementStatus{Error: ErrKindSignatureMismatch}
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(decoded.PayloadB64)
	if err != nil {
		return EntitlementStatus{Error: ErrKindInvalidPayload}
	}

	// Dispatch on the version field before decoding the full shape. Tokens
	// from a newer issuer must not be silently trusted with v1 semantics.
	var probe versionProbe
	if err := json.Unmarshal(payloadBytes, &probe); err != nil {
		return EntitlementStatus{Error: ErrKindInvalidPayload}
	}
	if probe.Version != entitlementVersion {
		return EntitlementStatus{Error: ErrKindUnsupportedVersion}
	}

	var payload entitlementPayloadV1
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return EntitlementStatus{Error: ErrKindInvalidPayload}
	}
	if !validTier(Tier(payload.Tier)) {
		return EntitlementStatus{Error: ErrKindInvalidPayload}
	}

	if payload.ExpiresAt == "" {
		return EntitlementStatus{Error: ErrKindMissingExpiry}
	}
	expiresAt, err := parseWireTime(payload.ExpiresAt)
	if err != nil {
		return EntitlementStatus{Error: ErrKindInvalidPayload}
	}
	var issuedAt time.Time
	if payload.IssuedAt != "" {
		issuedAt, err = parseWireTime(payload.IssuedAt)
		if err != nil {
			return EntitlementStatus{Error: ErrKindInvalidPayload}
		}
	}

	claims := &EntitlementClaims{
		Version:      payload.Version,
		Product:      payload.Product,
		Subject:      payload.Subject,
		Tier:         Tier(payload.Tier),
		PlanID:       payload.PlanID,
		Email:        payload.Email,
		Capabilities: payload.Capabilities,
		IssuedAt:     issuedAt,
		ExpiresAt:    expiresAt,
	}
	capabilities := claims.EffectiveCapabilities()

	if !expiresAt.After(now) {
		return EntitlementStatus{Error: ErrKindExpired, Claims: claims, Capabilities: capabilities}
	}
	return EntitlementStatus{Valid: true, Claims: claims, Capabilities: capabilities}
}
