// internal/auth/invitation.go
//
// Invitation policies: how a signup code turns into a tenant id.
//
// Context
// -------
// Two policies ship, selected by `auth.invitation_mode`:
//
//   - CodePolicy ("code").  The code is the tenant id, so it must be a
//     well-formed config id.  It is refused once any non-reserved user
//     already owns that config id; the check and the insert are one store
//     call.  This keeps existing deployments working without an
//     invitations table.
//
//   - TablePolicy ("table").  The code must be an unredeemed row in
//     `invitations`; the tenant id comes from the row.  Redemption and
//     user creation happen in one store transaction.
//
// Both policies create the user themselves so the table variant can keep
// its single transaction.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/yanizio/siteconf/internal/apperr"
	"github.com/yanizio/siteconf/internal/meta"
)

const msgCodeUsed = "code already used"

// InvitationPolicy redeems code for u, sets u.ConfigID, and inserts u.
type InvitationPolicy interface {
	Redeem(ctx context.Context, store meta.Store, u *meta.User, code string, now time.Time) error
}

/*──────────────────────────── code as tenant ──────────────────────────────*/

// CodePolicy treats the code itself as the tenant id.
type CodePolicy struct{}

func (CodePolicy) Redeem(ctx context.Context, store meta.Store, u *meta.User, code string, _ time.Time) error {
	const op = "auth.CodePolicy"

	// Reserved ids are never handed out through signup.
	if !meta.ValidConfigID(code) || code == meta.ConfigDefault || code == meta.ConfigAdmin {
		return apperr.Validation(op, "invalid invitation code")
	}

	u.ConfigID = code
	err := store.CreateUserClaimingConfig(ctx, u)
	if errors.Is(err, meta.ErrConfigClaimed) {
		return apperr.Conflict(op, msgCodeUsed)
	}
	return createErr(op, err)
}

/*──────────────────────────── invitations table ───────────────────────────*/

// TablePolicy looks codes up in the invitations table.
type TablePolicy struct{}

func (TablePolicy) Redeem(ctx context.Context, store meta.Store, u *meta.User, code string, now time.Time) error {
	const op = "auth.TablePolicy"

	inv, err := store.InvitationByCode(ctx, code)
	switch {
	case errors.Is(err, meta.ErrNotFound):
		return apperr.Validation(op, "invalid invitation code")
	case err != nil:
		return apperr.Upstream(op, err)
	case inv.Redeemed():
		return apperr.Conflict(op, msgCodeUsed)
	}

	u.ConfigID = inv.ConfigID
	err = store.CreateInvitedUser(ctx, u, code, now)
	if errors.Is(err, meta.ErrNotFound) {
		// Lost a race with a concurrent signup.
		return apperr.Conflict(op, msgCodeUsed)
	}
	return createErr(op, err)
}

// PolicyFor maps the configured mode to a policy.
func PolicyFor(mode string) InvitationPolicy {
	if mode == "table" {
		return TablePolicy{}
	}
	return CodePolicy{}
}

func createErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, meta.ErrDuplicate):
		return apperr.Conflict(op, "email already registered")
	}
	return apperr.Upstream(op, err)
}
