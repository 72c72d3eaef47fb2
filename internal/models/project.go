package models

import "time"

// User owns projects. The management token authorizes project CRUD only;
// it is never accepted for log ingestion or queries.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	TokenDigest string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Project is the tenancy unit. Every log entry belongs to exactly one
// project. APIKeyDigest is the SHA-256 hex digest of the project's one
// active API key; the raw key is shown once at creation or rotation and
// never stored.
type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	OwnerID      string    `json:"owner_id"`
	APIKeyDigest string    `json:"-"`
	// RetiredKeyDigest holds the previous key's digest after a rotation,
	// so a revoked key can be told apart from one that never existed.
	RetiredKeyDigest string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}
