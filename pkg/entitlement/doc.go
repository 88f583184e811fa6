// Package entitlement defines the signed license and entitlement token
// contracts shared by the issuing server and installed clients.
//
// Two token kinds exist. Licenses prove a completed purchase and are
// signed with a shared secret (HMAC-SHA256); only the issuing side holds
// the secret, so licenses are verified server-side or by trusted tooling.
// Entitlement tokens carry the effective tier and capability set and are
// signed with an Ed25519 private key; any client holding the public key
// can verify them without being able to mint new ones.
//
// Verification is a pure function of the token bytes, the key material,
// and the supplied clock reading. Verify functions never return Go errors
// for attacker-controlled input: they report a Status value carrying a
// machine-readable error kind, and expired tokens still surface their
// decoded claims so callers can show who and what expired.
package entitlement
