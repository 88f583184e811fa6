package entitlement

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Token prefixes. Distinct literals keep a license verifier from ever
// interpreting an entitlement token and vice versa.
const (
	LicensePrefix     = "LIC1"
	EntitlementPrefix = "ENT1"
)

// timeLayout is the wire timestamp format: ISO-8601 UTC, second precision,
// literal Z suffix. No other offset form is emitted or accepted.
const timeLayout = "2006-01-02T15:04:05"

// DecodedToken is the syntactic view of a token. The payload and signature
// segments are kept base64-encoded: signatures are computed over the ASCII
// bytes of the encoded payload segment, so verifiers need the segment text,
// not the decoded bytes.
type DecodedToken struct {
	Prefix       string
	PayloadB64   string
	SignatureB64 string
}

// EncodeToken composes the three-segment wire form
// "{prefix}.{base64url_nopad(payload)}.{base64url_nopad(signature)}".
func EncodeToken(prefix string, payload, signature []byte) string {
	return prefix + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString(signature)
}

// encodeSignedToken assembles the wire form from an already encoded payload
// segment and raw signature bytes. Issuers sign the ASCII bytes of the
// encoded segment, so they hold it in this form when the signature exists.
func encodeSignedToken(prefix, payloadB64 string, signature []byte) string {
	return prefix + "." + payloadB64 + "." + base64.RawURLEncoding.EncodeToString(signature)
}

// DecodeToken splits a token into its three segments and checks the prefix.
// It performs no signature or payload validation; that is the verifier's
// job, keeping key material out of syntax parsing.
func DecodeToken(token, wantPrefix string) (DecodedToken, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return DecodedToken{}, fmt.Errorf("%w: got %d segments", ErrInvalidFormat, len(parts))
	}
	if parts[0] != wantPrefix {
		return DecodedToken{}, fmt.Errorf("%w: got %q, want %q", ErrInvalidPrefix, parts[0], wantPrefix)
	}
	return DecodedToken{
		Prefix:       parts[0],
		PayloadB64:   parts[1],
		SignatureB64: parts[2],
	}, nil
}

// formatWireTime renders a timestamp in the wire format.
func formatWireTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(timeLayout) + "Z"
}

// parseWireTime parses a wire timestamp. Only the literal Z suffix is
// accepted; numeric offsets are rejected.
func parseWireTime(s string) (time.Time, error) {
	trimmed, ok := strings.CutSuffix(s, "Z")
	if !ok {
		return time.Time{}, fmt.Errorf("timestamp %q missing Z suffix", s)
	}
	return time.ParseInLocation(timeLayout, trimmed, time.UTC)
}
