package auth

import (
	"context"
	"sort"
	"sync"

	"ovpnadmin/internal/database"
	"ovpnadmin/internal/models"
)

// memStore is an in-memory stand-in for *database.DB.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	roles    map[string]map[string]bool
	sessions map[string]*models.Session
	attempts []models.LoginAttempt
	audit    []models.AuditEntry
	err      error
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]*models.User{},
		roles:    map[string]map[string]bool{},
		sessions: map[string]*models.Session{},
	}
}

func (s *memStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return database.ErrUserExists
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memStore) FindUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *memStore) FindUserByID(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) SetUserDisabled(_ context.Context, id string, disabled bool, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return database.ErrNotFound
	}
	u.Disabled = disabled
	return nil
}

func (s *memStore) UpdateUserPassword(_ context.Context, id, hash string, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	u, ok := s.users[id]
	if !ok {
		return database.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (s *memStore) ListUsers(context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *memStore) CountUsers(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), s.err
}

func (s *memStore) AssignRole(_ context.Context, userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles[userID] == nil {
		s.roles[userID] = map[string]bool{}
	}
	s.roles[userID][role] = true
	return nil
}

func (s *memStore) RolesForUser(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []string
	for r := range s.roles[userID] {
		out = append(out, r)
	}
	sort.Strings(out)
	return out, nil
}

func (s *memStore) CreateSession(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memStore) LoadSession(_ context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *memStore) TouchSessionStepUp(_ context.Context, id string, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.LastStepUp = ts
	}
	return nil
}

func (s *memStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *memStore) DeleteExpiredSessions(_ context.Context, now int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if sess.ExpiresAt <= now {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) RecordLoginAttempt(_ context.Context, a models.LoginAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.attempts = append(s.attempts, a)
	return nil
}

func (s *memStore) CountLoginAttempts(_ context.Context, username, ip string, since int64) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, 0, s.err
	}
	var byUserIP, byIP int
	for _, a := range s.attempts {
		if a.TS <= since || a.IP != ip {
			continue
		}
		byIP++
		if a.Username == username {
			byUserIP++
		}
	}
	return byUserIP, byIP, nil
}

func (s *memStore) AppendAudit(_ context.Context, e *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.audit = append(s.audit, *e)
	return nil
}

func (s *memStore) ListAudit(_ context.Context, limit, offset int) ([]models.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := append([]models.AuditEntry(nil), s.audit...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TS > sorted[j].TS })
	if offset >= len(sorted) {
		return nil, nil
	}
	sorted = sorted[offset:]
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

// plainHasher avoids argon2 cost in tests that are not about hashing.
type plainHasher struct {
	verifies int
}

func (h *plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }

func (h *plainHasher) Verify(password, encoded string) bool {
	h.verifies++
	return encoded == "plain:"+password
}
