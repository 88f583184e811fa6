package entitlement

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeToken(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		wantPrefix string
		wantErr    error
	}{
		{
			name:       "valid license shape",
			token:      "LIC1.eyJ2ZXJzaW9uIjoxfQ.c2ln",
			wantPrefix: LicensePrefix,
		},
		{
			name:       "valid entitlement shape",
			token:      "ENT1.eyJ2ZXJzaW9uIjoxfQ.c2ln",
			wantPrefix: EntitlementPrefix,
		},
		{
			name:       "surrounding whitespace tolerated",
			token:      "  LIC1.eyJ2ZXJzaW9uIjoxfQ.c2ln\n",
			wantPrefix: LicensePrefix,
		},
		{
			name:       "not a token",
			token:      "not-a-token",
			wantPrefix: LicensePrefix,
			wantErr:    ErrInvalidFormat,
		},
		{
			name:       "empty string",
			token:      "",
			wantPrefix: LicensePrefix,
			wantErr:    ErrInvalidFormat,
		},
		{
			name:       "too many segments",
			token:      "LIC1.a.b.c",
			wantPrefix: LicensePrefix,
			wantErr:    ErrInvalidFormat,
		},
		{
			name:       "two segments",
			token:      "LIC1.eyJ2ZXJzaW9uIjoxfQ",
			wantPrefix: LicensePrefix,
			wantErr:    ErrInvalidFormat,
		},
		{
			name:       "wrong prefix",
			token:      "ENT1.eyJ2ZXJzaW9uIjoxfQ.c2ln",
			wantPrefix: LicensePrefix,
			wantErr:    ErrInvalidPrefix,
		},
		{
			name:       "lowercase prefix rejected",
			token:      "lic1.eyJ2ZXJzaW9uIjoxfQ.c2ln",
			wantPrefix: LicensePrefix,
			wantErr:    ErrInvalidPrefix,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := DecodeToken(tt.token, tt.wantPrefix)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeToken() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeToken() unexpected error: %v", err)
			}
			if decoded.Prefix != tt.wantPrefix {
				t.Errorf("prefix = %q, want %q", decoded.Prefix, tt.wantPrefix)
			}
			if decoded.PayloadB64 == "" || decoded.SignatureB64 == "" {
				t.Errorf("expected non-empty segments, got %+v", decoded)
			}
		})
	}
}

func TestEncodeTokenRoundTrip(t *testing.T) {
	token := EncodeToken(EntitlementPrefix, []byte(`{"version":1}`), []byte("sig"))
	decoded, err := DecodeToken(token, EntitlementPrefix)
	if err != nil {
		t.Fatalf("DecodeToken() error: %v", err)
	}
	if decoded.Prefix != EntitlementPrefix {
		t.Errorf("prefix = %q, want %q", decoded.Prefix, EntitlementPrefix)
	}
}

func TestWireTimeFormat(t *testing.T) {
	in := time.Date(2025, 1, 1, 12, 30, 45, 999999999, time.UTC)
	got := formatWireTime(in)
	want := "2025-01-01T12:30:45Z"
	if got != want {
		t.Errorf("formatWireTime() = %q, want %q", got, want)
	}

	// Non-UTC input is normalized to UTC before formatting.
	loc := time.FixedZone("plus2", 2*3600)
	got = formatWireTime(time.Date(2025, 1, 1, 14, 30, 45, 0, loc))
	if got != want {
		t.Errorf("formatWireTime(non-UTC) = %q, want %q", got, want)
	}
}

func TestParseWireTime(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "canonical", in: "2025-01-01T12:30:45Z"},
		{name: "missing Z", in: "2025-01-01T12:30:45", wantErr: true},
		{name: "numeric offset", in: "2025-01-01T12:30:45+00:00", wantErr: true},
		{name: "fractional seconds", in: "2025-01-01T12:30:45.123Z", wantErr: true},
		{name: "garbage", in: "yesterday", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWireTime(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseWireTime(%q) expected error, got %v", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseWireTime(%q) error: %v", tt.in, err)
			}
			if got.Location() != time.UTC {
				t.Errorf("parsed time not UTC: %v", got)
			}
			if round := formatWireTime(got); round != tt.in {
				t.Errorf("round trip = %q, want %q", round, tt.in)
			}
		})
	}
}
