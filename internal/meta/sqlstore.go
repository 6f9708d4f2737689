// internal/meta/sqlstore.go
//
// sqlx-backed MetadataStore.
//
// Context
// -------
// SQLStore is the production implementation of Store.  It runs against the
// control-plane database opened by internal/database, which may be MySQL
// (go-sql-driver/mysql) or Postgres (pgx stdlib).  Queries are written once
// with `?` placeholders and passed through sqlx.Rebind so the same text
// serves both drivers.
//
// Workflow
// --------
//  1. Every method executes exactly one parameterised statement, except
//     ReplaceResetToken and CreateInvitedUser which use a transaction.
//  2. sql.ErrNoRows is translated to ErrNotFound; unique-key violations to
//     ErrDuplicate.  Everything else is returned verbatim so the caller can
//     wrap it as an upstream error.
//  3. Time comparisons use the caller's clock, never NOW(), so expiry logic
//     is testable and immune to DB clock skew.
//
// Notes
// -----
//   - No logging here; callers decide what to log.
//   - Oxford commas, two spaces after periods.
package meta

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

// SQLStore implements Store on a *sqlx.DB.
type SQLStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps db.  The caller owns db and closes it.
func NewSQLStore(db *sqlx.DB) *SQLStore { return &SQLStore{db: db} }

/*──────────────────────────────── users ────────────────────────────────────*/

const userCols = `id, email, password_hash, config_id`

func (s *SQLStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	q := s.db.Rebind(`SELECT ` + userCols + ` FROM users WHERE email = ? LIMIT 1`)
	if err := s.db.GetContext(ctx, &u, q, email); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *SQLStore) UserByID(ctx context.Context, id int64) (*User, error) {
	var u User
	q := s.db.Rebind(`SELECT ` + userCols + ` FROM users WHERE id = ? LIMIT 1`)
	if err := s.db.GetContext(ctx, &u, q, id); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *SQLStore) CreateUser(ctx context.Context, u *User) error {
	return s.insertUser(ctx, s.db, u)
}

// CreateUserClaimingConfig relies on the config_claims primary key: a
// concurrent claimant blocks on the insert and then sees a duplicate.  The
// users count covers owners created before config_claims existed.
func (s *SQLStore) CreateUserClaimingConfig(ctx context.Context, u *User) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.GetContext(ctx, &n, tx.Rebind(`SELECT COUNT(*) FROM users
	    WHERE config_id = ? AND config_id NOT IN (?, ?)`),
		u.ConfigID, ConfigDefault, ConfigAdmin); err != nil {
		return err
	}
	if n > 0 {
		return ErrConfigClaimed
	}
	if err := s.insertUser(ctx, tx, u); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO config_claims (config_id, user_id) VALUES (?, ?)`),
		u.ConfigID, u.ID); err != nil {
		if errors.Is(duplicate(err), ErrDuplicate) {
			return ErrConfigClaimed
		}
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) UpdatePasswordHash(ctx context.Context, userID int64, hash string) error {
	q := s.db.Rebind(`UPDATE users SET password_hash = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, q, hash, userID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// insertUser fills u.ID.  Postgres has no LastInsertId, so the pgx driver
// takes the RETURNING path.
func (s *SQLStore) insertUser(ctx context.Context, ex sqlx.ExtContext, u *User) error {
	const base = `INSERT INTO users (email, password_hash, config_id) VALUES (?, ?, ?)`
	if s.db.DriverName() == "pgx" {
		q := s.db.Rebind(base + ` RETURNING id`)
		if err := sqlx.GetContext(ctx, ex, &u.ID, q, u.Email, u.PasswordHash, u.ConfigID); err != nil {
			return duplicate(err)
		}
		return nil
	}
	res, err := ex.ExecContext(ctx, s.db.Rebind(base), u.Email, u.PasswordHash, u.ConfigID)
	if err != nil {
		return duplicate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

/*─────────────────────────────── sessions ──────────────────────────────────*/

func (s *SQLStore) CreateSession(ctx context.Context, sess *Session) error {
	q := s.db.Rebind(`INSERT INTO sessions (session_id, user_id, expires_at) VALUES (?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q, sess.ID, sess.UserID, sess.ExpiresAt)
	return duplicate(err)
}

func (s *SQLStore) LiveSession(ctx context.Context, id string, now time.Time) (*Session, *User, error) {
	var row struct {
		SessionID    string    `db:"session_id"`
		ExpiresAt    time.Time `db:"expires_at"`
		ID           int64     `db:"id"`
		Email        string    `db:"email"`
		PasswordHash string    `db:"password_hash"`
		ConfigID     string    `db:"config_id"`
	}
	q := s.db.Rebind(`
	    SELECT s.session_id, s.expires_at,
	           u.id, u.email, u.password_hash, u.config_id
	    FROM   sessions s
	    JOIN   users u ON u.id = s.user_id
	    WHERE  s.session_id = ? AND s.expires_at > ?
	    LIMIT  1`)
	if err := s.db.GetContext(ctx, &row, q, id, now); err != nil {
		return nil, nil, notFound(err)
	}
	sess := &Session{ID: row.SessionID, UserID: row.ID, ExpiresAt: row.ExpiresAt}
	u := &User{ID: row.ID, Email: row.Email, PasswordHash: row.PasswordHash, ConfigID: row.ConfigID}
	return sess, u, nil
}

func (s *SQLStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM sessions WHERE session_id = ?`), id)
	return err
}

func (s *SQLStore) DeleteUserSessions(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM sessions WHERE user_id = ?`), userID)
	return err
}

func (s *SQLStore) PurgeSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM sessions WHERE expires_at <= ?`), now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

/*──────────────────────────── reset tokens ─────────────────────────────────*/

// ReplaceResetToken deletes then inserts inside one transaction.  Upsert
// syntax differs between MySQL and Postgres; delete+insert does not.
func (s *SQLStore) ReplaceResetToken(ctx context.Context, t *PasswordResetToken) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`DELETE FROM password_reset_tokens WHERE user_id = ?`), t.UserID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO password_reset_tokens (user_id, token_hash, expires_at) VALUES (?, ?, ?)`),
		t.UserID, t.TokenHash, t.ExpiresAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) ResetTokenByHash(ctx context.Context, hash string) (*PasswordResetToken, error) {
	var t PasswordResetToken
	q := s.db.Rebind(`SELECT user_id, token_hash, expires_at
	    FROM password_reset_tokens WHERE token_hash = ? LIMIT 1`)
	if err := s.db.GetContext(ctx, &t, q, hash); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *SQLStore) DeleteResetToken(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM password_reset_tokens WHERE user_id = ?`), userID)
	return err
}

func (s *SQLStore) PurgeResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM password_reset_tokens WHERE expires_at <= ?`), now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

/*──────────────────────────────── domains ──────────────────────────────────*/

// DomainByName ignores is_active and is_paid on purpose: hostnames resolve
// regardless of billing state until product decides otherwise.
func (s *SQLStore) DomainByName(ctx context.Context, domain string) (*Domain, error) {
	var d Domain
	q := s.db.Rebind(`SELECT domain, email, config_id, is_active, is_paid, created_at
	    FROM domains WHERE domain = ? LIMIT 1`)
	if err := s.db.GetContext(ctx, &d, q, domain); err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

func (s *SQLStore) CreateDomain(ctx context.Context, d *Domain) error {
	q := s.db.Rebind(`INSERT INTO domains (domain, email, config_id, is_active, is_paid, created_at)
	    VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q, d.Domain, d.Email, d.ConfigID, d.IsActive, d.IsPaid, d.CreatedAt)
	return duplicate(err)
}

/*────────────────────────────── invitations ────────────────────────────────*/

func (s *SQLStore) InvitationByCode(ctx context.Context, code string) (*Invitation, error) {
	var inv Invitation
	q := s.db.Rebind(`SELECT code, config_id, created_at, redeemed_at, redeemed_by
	    FROM invitations WHERE code = ? LIMIT 1`)
	if err := s.db.GetContext(ctx, &inv, q, code); err != nil {
		return nil, notFound(err)
	}
	return &inv, nil
}

func (s *SQLStore) CreateInvitation(ctx context.Context, inv *Invitation) error {
	q := s.db.Rebind(`INSERT INTO invitations (code, config_id, created_at) VALUES (?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q, inv.Code, inv.ConfigID, inv.CreatedAt)
	return duplicate(err)
}

// CreateInvitedUser claims the invitation first so two concurrent signups
// with one code cannot both succeed.
func (s *SQLStore) CreateInvitedUser(ctx context.Context, u *User, code string, at time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		tx.Rebind(`UPDATE invitations SET redeemed_at = ? WHERE code = ? AND redeemed_at IS NULL`),
		at, code)
	if err != nil {
		return err
	}
	if err := expectRow(res); err != nil {
		return err
	}
	if err := s.insertUser(ctx, tx, u); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`UPDATE invitations SET redeemed_by = ? WHERE code = ?`), u.ID, code); err != nil {
		return err
	}
	return tx.Commit()
}

/*──────────────────────────────── helpers ──────────────────────────────────*/

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Unique-violation codes.
const (
	mysqlDupEntry   = 1062
	pgUniqueViolate = "23505"
)

// duplicate maps MySQL and Postgres unique violations to ErrDuplicate.
func duplicate(err error) error {
	var my *mysql.MySQLError
	if errors.As(err, &my) && my.Number == mysqlDupEntry {
		return ErrDuplicate
	}
	var pg *pgconn.PgError
	if errors.As(err, &pg) && pg.Code == pgUniqueViolate {
		return ErrDuplicate
	}
	return err
}
