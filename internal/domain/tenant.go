package domain

import "strings"

// Tenant is the isolation key every page and chunk is partitioned by.
// Storage operations take it as a required argument; an empty tenant is
// rejected, never treated as a wildcard.
type Tenant string

// DefaultTenant is used when the caller supplies no key.
const DefaultTenant Tenant = "default"

// Validate rejects empty or whitespace-only tenant keys.
func (t Tenant) Validate() error {
	if strings.TrimSpace(string(t)) == "" {
		return ErrInvalidTenant
	}
	return nil
}

// TenantOrDefault normalizes a caller-supplied key.
func TenantOrDefault(raw string) Tenant {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultTenant
	}
	return Tenant(raw)
}
