package meta

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("meta: not found")

// ErrDuplicate is returned when an insert violates a unique key.
var ErrDuplicate = errors.New("meta: duplicate")

// ErrConfigClaimed is returned when a config id already has an owner.
var ErrConfigClaimed = errors.New("meta: config id already claimed")

// Store is the MetadataStore contract.  Components receive it at
// construction; nothing reaches for a package-level handle.
type Store interface {
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByID(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	// CreateUserClaimingConfig inserts u as the sole owner of u.ConfigID.
	// Users bound to the reserved default/admin ids never count as owners.
	// The ownership check and the insert are atomic; a lost race returns
	// ErrConfigClaimed and a taken email returns ErrDuplicate.
	CreateUserClaimingConfig(ctx context.Context, u *User) error
	UpdatePasswordHash(ctx context.Context, userID int64, hash string) error

	CreateSession(ctx context.Context, s *Session) error
	// LiveSession returns the session and its user when the session exists
	// and expires after now.
	LiveSession(ctx context.Context, id string, now time.Time) (*Session, *User, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID int64) error
	PurgeSessions(ctx context.Context, now time.Time) (int64, error)

	// ReplaceResetToken stores t, dropping any earlier token for the user.
	ReplaceResetToken(ctx context.Context, t *PasswordResetToken) error
	ResetTokenByHash(ctx context.Context, hash string) (*PasswordResetToken, error)
	DeleteResetToken(ctx context.Context, userID int64) error
	PurgeResetTokens(ctx context.Context, now time.Time) (int64, error)

	DomainByName(ctx context.Context, domain string) (*Domain, error)
	CreateDomain(ctx context.Context, d *Domain) error

	InvitationByCode(ctx context.Context, code string) (*Invitation, error)
	CreateInvitation(ctx context.Context, inv *Invitation) error
	// CreateInvitedUser redeems code and inserts u in one transaction.  It
	// returns ErrNotFound when the code is unknown or already redeemed.
	CreateInvitedUser(ctx context.Context, u *User, code string, at time.Time) error
}
