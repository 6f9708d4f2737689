// internal/meta/sqlstore_test.go
//
// Unit-tests for SQLStore using sqlmock.
//
// Run: go test ./internal/meta -v

package meta

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(sqlx.NewDb(db, "mysql")), mock
}

func TestUserByEmail(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE email = ? LIMIT 1`)).
		WithArgs("owner@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "config_id"}).
			AddRow(7, "owner@example.com", "$argon2id$...", "acme"))

	u, err := s.UserByEmail(context.Background(), "owner@example.com")
	if err != nil {
		t.Fatalf("UserByEmail error: %v", err)
	}
	if u.ID != 7 || u.ConfigID != "acme" {
		t.Fatalf("unexpected user: %#v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestUserByEmail_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE email = ?`)).
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "config_id"}))

	_, err := s.UserByEmail(context.Background(), "ghost@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateUserClaimingConfig_Commits(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE config_id = ? AND config_id NOT IN (?, ?)`)).
		WithArgs("acme", ConfigDefault, ConfigAdmin).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WithArgs("owner@example.com", "hash", "acme").
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO config_claims (config_id, user_id)`)).
		WithArgs("acme", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	u := &User{Email: "owner@example.com", PasswordHash: "hash", ConfigID: "acme"}
	if err := s.CreateUserClaimingConfig(context.Background(), u); err != nil {
		t.Fatalf("CreateUserClaimingConfig error: %v", err)
	}
	if u.ID != 9 {
		t.Fatalf("ID = %d, want 9", u.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestCreateUserClaimingConfig_ExistingOwner(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE config_id = ? AND config_id NOT IN (?, ?)`)).
		WithArgs("acme", ConfigDefault, ConfigAdmin).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := s.CreateUserClaimingConfig(context.Background(), &User{Email: "b@example.com", ConfigID: "acme"})
	if !errors.Is(err, ErrConfigClaimed) {
		t.Fatalf("err = %v, want ErrConfigClaimed", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestCreateUserClaimingConfig_LostRace(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM users`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnResult(sqlmock.NewResult(10, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO config_claims`)).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'acme' for key 'PRIMARY'"})
	mock.ExpectRollback()

	err := s.CreateUserClaimingConfig(context.Background(), &User{Email: "c@example.com", ConfigID: "acme"})
	if !errors.Is(err, ErrConfigClaimed) {
		t.Fatalf("err = %v, want ErrConfigClaimed", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestCreateUser_Duplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users (email, password_hash, config_id)`)).
		WithArgs("a@example.com", "h", "acme").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := s.CreateUser(context.Background(), &User{Email: "a@example.com", PasswordHash: "h", ConfigID: "acme"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
}

func TestDuplicate_Postgres(t *testing.T) {
	if !errors.Is(duplicate(&pgconn.PgError{Code: "23505"}), ErrDuplicate) {
		t.Fatal("23505 should map to ErrDuplicate")
	}
	other := errors.New("connection reset")
	if duplicate(other) != other {
		t.Fatal("unrelated errors must pass through")
	}
	if duplicate(nil) != nil {
		t.Fatal("nil stays nil")
	}
}

func TestCreateUser_SetsID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnResult(sqlmock.NewResult(42, 1))

	u := &User{Email: "a@example.com", PasswordHash: "h", ConfigID: "acme"}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if u.ID != 42 {
		t.Fatalf("ID = %d, want 42", u.ID)
	}
}

func TestLiveSession_PassesClock(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`s.session_id = ? AND s.expires_at > ?`)).
		WithArgs("tok", now).
		WillReturnRows(sqlmock.NewRows([]string{
			"session_id", "expires_at", "id", "email", "password_hash", "config_id",
		}).AddRow("tok", now.Add(time.Hour), 3, "o@example.com", "h", "acme"))

	sess, u, err := s.LiveSession(context.Background(), "tok", now)
	if err != nil {
		t.Fatalf("LiveSession error: %v", err)
	}
	if sess.UserID != 3 || u.ConfigID != "acme" {
		t.Fatalf("unexpected session/user: %#v %#v", sess, u)
	}
}

func TestReplaceResetToken_Transaction(t *testing.T) {
	s, mock := newMockStore(t)
	exp := time.Now().Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM password_reset_tokens WHERE user_id = ?`)).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO password_reset_tokens`)).
		WithArgs(int64(9), "abc", exp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.ReplaceResetToken(context.Background(), &PasswordResetToken{UserID: 9, TokenHash: "abc", ExpiresAt: exp})
	if err != nil {
		t.Fatalf("ReplaceResetToken error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestCreateInvitedUser_AlreadyRedeemed(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE invitations SET redeemed_at = ?`)).
		WithArgs(sqlmock.AnyArg(), "INV-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.CreateInvitedUser(context.Background(), &User{Email: "a@example.com"}, "INV-1", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestDomainByName(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM domains WHERE domain = ?`)).
		WithArgs("example.com").
		WillReturnRows(sqlmock.NewRows([]string{
			"domain", "email", "config_id", "is_active", "is_paid", "created_at",
		}).AddRow("example.com", "o@example.com", "acme", false, false, time.Now()))

	d, err := s.DomainByName(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("DomainByName error: %v", err)
	}
	if d.ConfigID != "acme" || d.IsActive {
		t.Fatalf("unexpected domain: %#v", d)
	}
}
