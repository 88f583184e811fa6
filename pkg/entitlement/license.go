package entitlement

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const licenseVersion = 1

// DefaultSKU identifies the product a license was purchased for.
const DefaultSKU = "entitled"

// LicenseClaims is the decoded content of a license token: a symmetrically
// signed record proving a specific purchase was paid. Immutable once issued.
type LicenseClaims struct {
	Version    int
	SKU        string
	PurchaseID string
	PlanID     string
	Email      string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Tier returns the tier this license's plan entitles.
func (c LicenseClaims) Tier() Tier {
	return PlanTier(c.PlanID)
}

// licensePayloadV1 is the version-1 wire shape. Fields are declared in
// ascending key order so encoding/json emits the canonical sorted form.
type licensePayloadV1 struct {
	Email      string `json:"email"`
	ExpiresAt  string `json:"expiresAt"`
	IssuedAt   string `json:"issuedAt"`
	PlanID     string `json:"planId"`
	PurchaseID string `json:"purchaseId"`
	SKU        string `json:"sku"`
	Version    int    `json:"version"`
}

// LicenseStatus is the outcome of verifying a license token. Claims are
// populated whenever the payload decoded, including for expired tokens.
type LicenseStatus struct {
	Valid  bool           `json:"valid"`
	Error  ErrorKind      `json:"error,omitempty"`
	Claims *LicenseClaims `json:"claims,omitempty"`
}

// LicenseSigner issues license tokens with a shared secret. It lives on the
// issuing side; clients only ever verify.
type LicenseSigner struct {
	secret []byte
	sku    string
}

// NewLicenseSigner creates a signer from shared-secret material.
func NewLicenseSigner(secret string) (*LicenseSigner, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrMissingKeyMaterial
	}
	return &LicenseSigner{secret: []byte(secret), sku: DefaultSKU}, nil
}

// Issue builds, signs, and encodes a license for a completed purchase.
func (s *LicenseSigner) Issue(purchaseID, planID, email string, now time.Time, expiryDays int) (string, LicenseClaims, error) {
	if strings.TrimSpace(purchaseID) == "" {
		return "", LicenseClaims{}, fmt.Errorf("%w: purchase id is required", ErrInvalidClaims)
	}
	if expiryDays <= 0 {
		return "", LicenseClaims{}, fmt.Errorf("%w: expiry must be at least one day", ErrInvalidClaims)
	}

	issuedAt := now.UTC().Truncate(time.Second)
	claims := LicenseClaims{
		Version:    licenseVersion,
		SKU:        s.sku,
		PurchaseID: purchaseID,
		PlanID:     planID,
		Email:      email,
		IssuedAt:   issuedAt,
		ExpiresAt:  issuedAt.AddDate(0, 0, expiryDays),
	}

	payload, err := json.Marshal(licensePayloadV1{
		Email:      claims.Email,
		ExpiresAt:  formatWireTime(claims.ExpiresAt),
		IssuedAt:   formatWireTime(claims.IssuedAt),
		PlanID:     claims.PlanID,
		PurchaseID: claims.PurchaseID,
		SKU:        claims.SKU,
		Version:    claims.Version,
	})
	if err != nil {
		return "", LicenseClaims{}, fmt.Errorf("marshal license payload: %w", err)
	}

	payloadB64 := base64.RawURLEncoding.EncodeToString(payload)
	return encodeSignedToken(LicensePrefix, payloadB64, signHMAC(s.secret, payloadB64)), claims, nil
}

// VerifyLicense checks a license token against the shared secret at the
// given instant. It never returns an error or panics: structural, signature,
// and time failures all surface as an ErrorKind on the status.
func VerifyLicense(token string, secret []byte, now time.Time) LicenseStatus {
	decoded, err := DecodeToken(token, LicensePrefix)
	if err != nil {
		return LicenseStatus{Error: decodeErrorKind(err)}
	}

	if len(secret) == 0 {
		return LicenseStatus{Error: ErrKindMissingKey}
	}

	// Signature covers the ASCII bytes of the encoded payload segment.
	// Check it before touching the payload so any tampering, including a
	// corrupted signature segment, reports the same kind.
	signature, err := base64.RawURLEncoding.DecodeString(decoded.SignatureB64)
	if err != nil {
		return LicenseStatus{Error: ErrKindSignatureMismatch}
	}
	expected := signHMAC(secret, decoded.PayloadB64)
	if !hmac.Equal(signature, expected) {
		return LicenseStatus{Error: ErrKindSignatureMismatch}
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(decoded.PayloadB64)
	if err != nil {
		return LicenseStatus{Error: ErrKindInvalidPayload}
	}
	var payload licensePayloadV1
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return LicenseStatus{Error: ErrKindInvalidPayload}
	}

	if payload.ExpiresAt == "" {
		return LicenseStatus{Error: ErrKindMissingExpiry}
	}
	expiresAt, err := parseWireTime(payload.ExpiresAt)
	if err != nil {
		return LicenseStatus{Error: ErrKindInvalidPayload}
	}
	var issuedAt time.Time
	if payload.IssuedAt != "" {
		issuedAt, err = parseWireTime(payload.IssuedAt)
		if err != nil {
			return LicenseStatus{Error: ErrKindInvalidPayload}
		}
	}

	claims := &LicenseClaims{
		Version:    payload.Version,
		SKU:        payload.SKU,
		PurchaseID: payload.PurchaseID,
		PlanID:     payload.PlanID,
		Email:      payload.Email,
		IssuedAt:   issuedAt,
		ExpiresAt:  expiresAt,
	}

	if !expiresAt.After(now) {
		return LicenseStatus{Error: ErrKindExpired, Claims: claims}
	}
	return LicenseStatus{Valid: true, Claims: claims}
}

func signHMAC(secret []byte, payloadB64 string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payloadB64))
	return mac.Sum(nil)
}

func decodeErrorKind(err error) ErrorKind {
	if errors.Is(err, ErrInvalidPrefix) {
		return ErrKindInvalidPrefix
	}
	return ErrKindInvalidFormat
}
