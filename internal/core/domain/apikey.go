package domain

import (
	"time"
)

// APIKey represents a long-lived programmatic credential owned by a user.
// Only the prefix and a one-way hash of the secret remainder are ever
// persisted; the full key material exists client-side only.
type APIKey struct {
	ID          int64      `json:"key_id"`
	UserID      int64      `json:"user_id"`
	Label       string     `json:"label"`       // Human-chosen name, unique per user
	Description *string    `json:"description,omitempty"`
	KeyPrefix   string     `json:"key_prefix"`  // Fixed-length lookup token, indexed
	KeyHash     string     `json:"-"`           // SHA-256 hash of the remainder (never store raw)
	Active      bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

// APIKeyPatch carries the optional fields of an update request. A nil
// field means "leave unchanged". Empty() reports whether the patch
// would be a no-op, which callers must reject.
type APIKeyPatch struct {
	Label       *string
	Description *string
	Active      *bool
}

// Empty reports whether no field is set.
func (p APIKeyPatch) Empty() bool {
	return p.Label == nil && p.Description == nil && p.Active == nil
}

// Apply returns a copy of key with the provided fields overwritten.
// It enumerates exactly the recognized fields; unknown input never
// reaches this type.
func (p APIKeyPatch) Apply(key APIKey) APIKey {
	if p.Label != nil {
		key.Label = *p.Label
	}
	if p.Description != nil {
		key.Description = p.Description
	}
	if p.Active != nil {
		key.Active = *p.Active
	}
	return key
}
