// Package issuer is the server-authoritative side of token issuance. It
// signs license and entitlement tokens and guarantees idempotency per
// purchase/subject id: a retried issuance request returns the identical
// previously issued token instead of minting a second one.
package issuer

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const privateDirPerm = 0o700

// Store persists issued tokens in SQLite, keyed by the idempotency id.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the issued-token database in dir.
func OpenStore(dir string) (*Store, error) {
	dir = filepath.Clean(dir)
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("dir is required")
	}
	if err := os.MkdirAll(dir, privateDirPerm); err != nil {
		return nil, fmt.Errorf("create issuer store dir: %w", err)
	}

	dbPath := filepath.Join(dir, "issued_tokens.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open issuer db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, errors.Join(err, fmt.Errorf("close issuer db after schema init failure: %w", closeErr))
		}
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS issued_licenses (
		purchase_id TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		email TEXT NOT NULL,
		issued_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS issued_entitlements (
		subject TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		email TEXT NOT NULL,
		issued_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_issued_licenses_email ON issued_licenses(email);
	CREATE INDEX IF NOT EXISTS idx_issued_entitlements_email ON issued_entitlements(email);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init issuer schema: %w", err)
	}
	return nil
}

// LicenseFor returns the previously issued license token for a purchase id,
// or "" when none exists.
func (s *Store) LicenseFor(purchaseID string) (string, error) {
	var token string
	err := s.db.QueryRow(
		`SELECT token FROM issued_licenses WHERE purchase_id = ?`, purchaseID,
	).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query issued license: %w", err)
	}
	return token, nil
}

// PutLicense records an issued license token. A concurrent insert for the
// same purchase id loses: the first stored token stays authoritative.
func (s *Store) PutLicense(purchaseID, planID, email, token string, issuedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO issued_licenses (purchase_id, token, plan_id, email, issued_at)
		 VALUES (?, ?, ?, ?, ?)`,
		purchaseID, token, planID, email, issuedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert issued license: %w", err)
	}
	return nil
}

// EntitlementFor returns the previously issued entitlement token for a
// subject, or "" when none exists.
func (s *Store) EntitlementFor(subject string) (string, error) {
	var token string
	err := s.db.QueryRow(
		`SELECT token FROM issued_entitlements WHERE subject = ?`, subject,
	).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query issued entitlement: %w", err)
	}
	return token, nil
}

// PutEntitlement records an issued entitlement token, first insert wins.
func (s *Store) PutEntitlement(subject, planID, email, token string, issuedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO issued_entitlements (subject, token, plan_id, email, issued_at)
		 VALUES (?, ?, ?, ?, ?)`,
		subject, token, planID, email, issuedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert issued entitlement: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
