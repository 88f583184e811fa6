package cache

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gatewright/entitled/pkg/entitlement"
)

// Record keys within the store. One record per kind per installation.
const (
	entitlementKey = "entitlement.json"
	licenseKey     = "license.json"
)

// Cache implements entitlement.LocalStore over a byte-oriented Store.
type Cache struct {
	store Store
}

// New creates a cache over the given store.
func New(store Store) *Cache {
	return &Cache{store: store}
}

// SaveEntitlement replaces the cached entitlement record.
func (c *Cache) SaveEntitlement(rec entitlement.CachedRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal entitlement record: %w", err)
	}
	return c.store.Write(entitlementKey, data)
}

// LoadEntitlement returns the cached entitlement record. A missing, corrupt,
// or unreadable record loads as absent: the resolver must fall through, not
// abort.
func (c *Cache) LoadEntitlement() (*entitlement.CachedRecord, error) {
	data, err := c.store.Read(entitlementKey)
	if err != nil {
		log.Warn().Err(err).Msg("cached entitlement unreadable; treating as absent")
		return nil, nil
	}
	if len(data) == 0 {
		return nil, nil
	}
	var rec entitlement.CachedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Warn().Err(err).Msg("cached entitlement corrupt; treating as absent")
		return nil, nil
	}
	return &rec, nil
}

// ClearEntitlement removes the cached entitlement record.
func (c *Cache) ClearEntitlement() error {
	return c.store.Delete(entitlementKey)
}

// SaveLicense replaces the saved local license.
func (c *Cache) SaveLicense(rec entitlement.CachedLicense) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal license record: %w", err)
	}
	return c.store.Write(licenseKey, data)
}

// LoadLicense returns the saved license, treating corruption as absence.
func (c *Cache) LoadLicense() (*entitlement.CachedLicense, error) {
	data, err := c.store.Read(licenseKey)
	if err != nil {
		log.Warn().Err(err).Msg("local license unreadable; treating as absent")
		return nil, nil
	}
	if len(data) == 0 {
		return nil, nil
	}
	var rec entitlement.CachedLicense
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Warn().Err(err).Msg("local license corrupt; treating as absent")
		return nil, nil
	}
	return &rec, nil
}

// ClearLicense removes the saved license.
func (c *Cache) ClearLicense() error {
	return c.store.Delete(licenseKey)
}
