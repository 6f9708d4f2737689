package meta

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-process Store for development and tests.  It honours the
// same contract as SQLStore, including unique keys and ErrNotFound.
type MemStore struct {
	mu          sync.Mutex
	nextID      int64
	users       map[int64]*User
	sessions    map[string]*Session
	resets      map[int64]*PasswordResetToken
	domains     map[string]*Domain
	invitations map[string]*Invitation
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		users:       make(map[int64]*User),
		sessions:    make(map[string]*Session),
		resets:      make(map[int64]*PasswordResetToken),
		domains:     make(map[string]*Domain),
		invitations: make(map[string]*Invitation),
	}
}

func (m *MemStore) UserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) UserByID(_ context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemStore) claimedLocked(configID string) bool {
	if configID == ConfigDefault || configID == ConfigAdmin {
		return false
	}
	for _, u := range m.users {
		if u.ConfigID == configID {
			return true
		}
	}
	return false
}

func (m *MemStore) CreateUserClaimingConfig(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimedLocked(u.ConfigID) {
		return ErrConfigClaimed
	}
	return m.insertUserLocked(u)
}

func (m *MemStore) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertUserLocked(u)
}

func (m *MemStore) insertUserLocked(u *User) error {
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicate
		}
	}
	m.nextID++
	u.ID = m.nextID
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemStore) UpdatePasswordHash(_ context.Context, userID int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *MemStore) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return ErrDuplicate
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemStore) LiveSession(_ context.Context, id string, now time.Time) (*Session, *User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !s.Live(now) {
		return nil, nil, ErrNotFound
	}
	u, ok := m.users[s.UserID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	sc, uc := *s, *u
	return &sc, &uc, nil
}

func (m *MemStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *MemStore) DeleteUserSessions(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *MemStore) PurgeSessions(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if !s.Live(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *MemStore) ReplaceResetToken(_ context.Context, t *PasswordResetToken) error {
	m.mu.Lock()
	cp := *t
	m.resets[t.UserID] = &cp
	m.mu.Unlock()
	return nil
}

func (m *MemStore) ResetTokenByHash(_ context.Context, hash string) (*PasswordResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.resets {
		if t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) DeleteResetToken(_ context.Context, userID int64) error {
	m.mu.Lock()
	delete(m.resets, userID)
	m.mu.Unlock()
	return nil
}

func (m *MemStore) PurgeResetTokens(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.resets {
		if !now.Before(t.ExpiresAt) {
			delete(m.resets, id)
			n++
		}
	}
	return n, nil
}

func (m *MemStore) DomainByName(_ context.Context, domain string) (*Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.domains[domain]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemStore) CreateDomain(_ context.Context, d *Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.domains[d.Domain]; ok {
		return ErrDuplicate
	}
	cp := *d
	m.domains[d.Domain] = &cp
	return nil
}

func (m *MemStore) InvitationByCode(_ context.Context, code string) (*Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *MemStore) CreateInvitation(_ context.Context, inv *Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invitations[inv.Code]; ok {
		return ErrDuplicate
	}
	cp := *inv
	m.invitations[inv.Code] = &cp
	return nil
}

func (m *MemStore) CreateInvitedUser(_ context.Context, u *User, code string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[code]
	if !ok || inv.Redeemed() {
		return ErrNotFound
	}
	if err := m.insertUserLocked(u); err != nil {
		return err
	}
	id := u.ID
	inv.RedeemedAt = &at
	inv.RedeemedBy = &id
	return nil
}
