// internal/meta/model.go
//
// Row models for the control-plane (metadata) database.
//
// Context
// -------
// These structs mirror the tables the engine consumes.  They carry no
// behaviour beyond tiny predicates, and are scanned directly by sqlx.
//
// Schema reference: schema.sql in this directory.
//
// Notes
// -----
//   - Nullable timestamps are `*time.Time`; callers must nil-check.
//   - PasswordHash is never serialised to JSON.
//   - Oxford commas, two spaces after periods.
package meta

import (
	"regexp"
	"time"
)

// Reserved config ids.  Users bound to these do not claim a tenant.
const (
	ConfigDefault = "default"
	ConfigAdmin   = "admin"
)

// configIDPattern keeps a config id usable as a single object-store path
// segment: no separators, no dots, nothing that needs escaping.
var configIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,127}$`)

// ValidConfigID reports whether id is well-formed.  It does not check
// reservation; callers decide whether default/admin are acceptable.
func ValidConfigID(id string) bool { return configIDPattern.MatchString(id) }

// User mirrors one row in `users`.
type User struct {
	ID           int64  `db:"id"            json:"id"`
	Email        string `db:"email"         json:"email"`
	PasswordHash string `db:"password_hash" json:"-"`
	ConfigID     string `db:"config_id"     json:"configId"`
}

// IsAdmin reports whether the user administers every tenant.
func (u *User) IsAdmin() bool { return u != nil && u.ConfigID == ConfigAdmin }

// CanEdit reports whether the user may write to tenantID.
func (u *User) CanEdit(tenantID string) bool {
	if u == nil || tenantID == "" {
		return false
	}
	return u.IsAdmin() || u.ConfigID == tenantID
}

// Session mirrors one row in `sessions`.
type Session struct {
	ID        string    `db:"session_id"`
	UserID    int64     `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
}

// Live reports whether the session is still valid at now.
func (s *Session) Live(now time.Time) bool { return s != nil && now.Before(s.ExpiresAt) }

// PasswordResetToken mirrors one row in `password_reset_tokens`.  user_id is
// the primary key, so a user has at most one live token.
type PasswordResetToken struct {
	UserID    int64     `db:"user_id"`
	TokenHash string    `db:"token_hash"`
	ExpiresAt time.Time `db:"expires_at"`
}

// Domain mirrors one row in `domains`.
type Domain struct {
	Domain    string    `db:"domain"     json:"domain"`
	Email     string    `db:"email"      json:"email"`
	ConfigID  string    `db:"config_id"  json:"configId"`
	IsActive  bool      `db:"is_active"  json:"isActive"`
	IsPaid    bool      `db:"is_paid"    json:"isPaid"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Invitation mirrors one row in `invitations`.  A code is redeemable once and
// names the tenant the new user will administer.
type Invitation struct {
	Code       string     `db:"code"`
	ConfigID   string     `db:"config_id"`
	CreatedAt  time.Time  `db:"created_at"`
	RedeemedAt *time.Time `db:"redeemed_at"`
	RedeemedBy *int64     `db:"redeemed_by"`
}

// Redeemed reports whether the invitation was already used.
func (i *Invitation) Redeemed() bool { return i.RedeemedAt != nil }
