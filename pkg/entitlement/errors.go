package entitlement

import "errors"

// Errors returned from constructors and key loaders. Verification paths do
// not return these; they report an ErrorKind on the Status instead.
var (
	ErrInvalidFormat      = errors.New("token must have exactly three dot-separated segments")
	ErrInvalidPrefix      = errors.New("unexpected token prefix")
	ErrMissingKeyMaterial = errors.New("missing key material")
	ErrInvalidKeyMaterial = errors.New("invalid key material")
	ErrInvalidClaims      = errors.New("invalid claims")
	ErrTokenNotCacheable  = errors.New("token has no decodable claims")
)

// ErrorKind is the machine-readable verification failure category carried on
// LicenseStatus and EntitlementStatus. The zero value means no error.
type ErrorKind string

const (
	ErrKindInvalidFormat      ErrorKind = "invalid_format"
	ErrKindInvalidPrefix      ErrorKind = "invalid_prefix"
	ErrKindSignatureMismatch  ErrorKind = "signature_mismatch"
	ErrKindInvalidPayload     ErrorKind = "invalid_payload"
	ErrKindMissingExpiry      ErrorKind = "missing_expiry"
	ErrKindExpired            ErrorKind = "expired"
	ErrKindUnsupportedVersion ErrorKind = "unsupported_version"
	ErrKindMissingKey         ErrorKind = "missing_key"
)
