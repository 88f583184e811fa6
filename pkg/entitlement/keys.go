package entitlement

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"
)

// LoadPrivateKey decodes Ed25519 signing key material. Accepted forms:
// PEM-encoded PKCS#8 ("PRIVATE KEY" block), or raw key bytes base64-encoded
// (32-byte seed or 64-byte private key). Anything else is rejected with
// ErrInvalidKeyMaterial.
func LoadPrivateKey(material string) (ed25519.PrivateKey, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		return nil, ErrMissingKeyMaterial
	}

	if strings.Contains(material, "-----BEGIN") {
		block, _ := pem.Decode([]byte(material))
		if block == nil {
			return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidKeyMaterial)
		}
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
		}
		key, ok := parsed.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: PEM block is not an Ed25519 key", ErrInvalidKeyMaterial)
		}
		return key, nil
	}

	decoded, err := decodeBase64Flexible(material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	switch len(decoded) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(decoded), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(decoded), nil
	default:
		return nil, fmt.Errorf("%w: expected %d or %d bytes, got %d",
			ErrInvalidKeyMaterial, ed25519.SeedSize, ed25519.PrivateKeySize, len(decoded))
	}
}

// LoadPublicKey decodes Ed25519 verification key material. Accepted forms:
// PEM-encoded PKIX ("PUBLIC KEY" block), or a raw 32-byte key base64-encoded.
func LoadPublicKey(material string) (ed25519.PublicKey, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		return nil, ErrMissingKeyMaterial
	}

	if strings.Contains(material, "-----BEGIN") {
		block, _ := pem.Decode([]byte(material))
		if block == nil {
			return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidKeyMaterial)
		}
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
		}
		key, ok := parsed.(ed25519.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: PEM block is not an Ed25519 key", ErrInvalidKeyMaterial)
		}
		return key, nil
	}

	decoded, err := decodeBase64Flexible(material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d",
			ErrInvalidKeyMaterial, ed25519.PublicKeySize, len(decoded))
	}
	return ed25519.PublicKey(decoded), nil
}

// KeyFingerprint returns an SHA256 fingerprint for logging.
func KeyFingerprint(key ed25519.PublicKey) string {
	if len(key) == 0 {
		return ""
	}
	sum := sha256.Sum256(key)
	return "SHA256:" + base64.StdEncoding.EncodeToString(sum[:])
}

// decodeBase64Flexible accepts standard and URL-safe alphabets, padded or
// unpadded. The canonical form is unpadded URL-safe; the rest are tolerated
// because operators paste keys from many tools.
func decodeBase64Flexible(encoded string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.RawStdEncoding.DecodeString(encoded)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(encoded)
	if err == nil {
		return decoded, nil
	}
	return base64.RawURLEncoding.DecodeString(encoded)
}
