// Package servicetest provides an in-memory token and identity store for tests.
// It follows the SQL store's rules: live means date_end > now, tiers are read at lookup time,
// and constraint failures carry the same error kinds.
package servicetest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pickupper/backend/internal/db"
	"github.com/pickupper/backend/internal/model"
)

type userRow struct {
	creds       model.UserCredentials
	name        string
	surname     string
	dateCreated time.Time
	roleID      string
}

type Store struct {
	mu     sync.Mutex
	roles  map[string]model.UserRole
	users  map[string]*userRow
	tokens []model.Token
	fail   error
}

// New returns a store seeded with one role per tier.
func New() *Store {
	s := &Store{
		roles: make(map[string]model.UserRole),
		users: make(map[string]*userRow),
	}
	for _, r := range []struct {
		level model.PermissionLevel
		name  string
	}{
		{model.PermissionUser, "User"},
		{model.PermissionSupervisor, "Supervisor"},
		{model.PermissionAdmin, "Admin"},
	} {
		id := uuid.NewString()
		s.roles[id] = model.UserRole{ID: id, PermissionLevel: r.level, Role: r.name}
	}
	return s
}

// FailWith makes every following call return err; nil restores normal behaviour.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// PutToken inserts tok verbatim, bypassing uniqueness, to simulate a corrupted table.
func (s *Store) PutToken(tok model.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, tok)
}

// Tokens returns a copy of every stored token.
func (s *Store) Tokens() []model.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Token(nil), s.tokens...)
}

// Password returns the stored digest of username.
func (s *Store) Password(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.creds.Username == username {
			return u.creds.Password
		}
	}
	return ""
}

// SetRawTier overwrites the stored tier of the role named role, even with out of range values.
func (s *Store) SetRawTier(role string, level int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.roles {
		if r.Role == role {
			r.PermissionLevel = model.PermissionLevel(level)
			s.roles[id] = r
		}
	}
}

func (s *Store) failure() error {
	if s.fail != nil {
		return model.Internal(s.fail)
	}
	return nil
}

func (s *Store) InsertRefresh(ctx context.Context, digest, ownerID, deviceInfo string, ttl time.Duration, now time.Time) (*model.Token, error) {
	return s.insert(model.TokenRefresh, digest, ownerID, deviceInfo, ttl, now)
}

func (s *Store) InsertAccess(ctx context.Context, digest, ownerID, deviceInfo string, now time.Time) (*model.Token, error) {
	return s.insert(model.TokenAccess, digest, ownerID, deviceInfo, model.AccessTokenTTL, now)
}

func (s *Store) insert(kind model.TokenKind, digest, ownerID, deviceInfo string, ttl time.Duration, now time.Time) (*model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return nil, err
	}
	if _, ok := s.users[ownerID]; !ok {
		return nil, model.NewError(model.CodeForeignKeyError, "User does not exist", nil)
	}
	for _, t := range s.tokens {
		if t.Kind == kind && t.Digest == digest {
			return nil, model.NewError(model.CodeUniqueViolation, "Token already exists", nil)
		}
	}
	tok := model.Token{
		ID:         uuid.NewString(),
		Digest:     digest,
		Kind:       kind,
		DeviceInfo: deviceInfo,
		DateStart:  now,
		DateEnd:    now.Add(ttl),
		OwnerID:    ownerID,
	}
	s.tokens = append(s.tokens, tok)
	return &tok, nil
}

func (s *Store) live(kind model.TokenKind, digest string, now time.Time) ([]model.Token, error) {
	if err := s.failure(); err != nil {
		return nil, err
	}
	var found []model.Token
	for _, t := range s.tokens {
		if t.Kind == kind && t.Digest == digest && t.DateEnd.After(now) {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return nil, model.ErrUnauthorized
	case 1:
		return found, nil
	default:
		return nil, model.Internal(errors.New("more than one live token matches digest"))
	}
}

func (s *Store) Lookup(ctx context.Context, kind model.TokenKind, digest string, now time.Time) (*model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found, err := s.live(kind, digest, now)
	if err != nil {
		return nil, err
	}
	return &found[0], nil
}

func (s *Store) ResolvePermission(ctx context.Context, digest string, now time.Time) (*model.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found, err := s.live(model.TokenAccess, digest, now)
	if err != nil {
		return nil, err
	}
	u, ok := s.users[found[0].OwnerID]
	if !ok {
		return nil, model.ErrUnauthorized
	}
	role := s.roles[u.roleID]
	return &model.Principal{
		UserID:       u.creds.ID,
		Username:     u.creds.Username,
		Tier:         model.ParsePermissionLevel(int16(role.PermissionLevel)),
		TierResolved: true,
		DeviceInfo:   found[0].DeviceInfo,
	}, nil
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return 0, err
	}
	kept := s.tokens[:0]
	var n int64
	for _, t := range s.tokens {
		if t.DateEnd.After(now) {
			kept = append(kept, t)
			continue
		}
		n++
	}
	s.tokens = kept
	return n, nil
}

func (s *Store) CreateUser(ctx context.Context, in db.NewUser, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return "", err
	}
	if _, ok := s.roles[in.RoleID]; !ok {
		return "", model.NewError(model.CodeForeignKeyError, "UserRole does not exist", nil)
	}
	for _, u := range s.users {
		if u.creds.Username == in.Username {
			return "", model.NewError(model.CodeUniqueViolation, "Username already exists", nil)
		}
	}
	id := uuid.NewString()
	s.users[id] = &userRow{
		creds:       model.UserCredentials{ID: id, Username: in.Username, Password: in.Password},
		name:        in.Name,
		surname:     in.Surname,
		dateCreated: now,
		roleID:      in.RoleID,
	}
	return id, nil
}

func (s *Store) GetCredentialsByUsername(ctx context.Context, username string) (*model.UserCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return nil, err
	}
	for _, u := range s.users {
		if u.creds.Username == username {
			creds := u.creds
			return &creds, nil
		}
	}
	return nil, model.NewError(model.CodeNotFound, "user not found", nil)
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return nil, err
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, model.NewError(model.CodeNotFound, "user not found", nil)
	}
	role := s.roles[u.roleID]
	role.PermissionLevel = model.ParsePermissionLevel(int16(role.PermissionLevel))
	return &model.User{
		ID:          u.creds.ID,
		Username:    u.creds.Username,
		Name:        u.name,
		Surname:     u.surname,
		DateCreated: u.dateCreated,
		Role:        role,
	}, nil
}

func (s *Store) UpdatePassword(ctx context.Context, userID, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return err
	}
	u, ok := s.users[userID]
	if !ok {
		return model.NewError(model.CodeNotFound, "user not found", nil)
	}
	u.creds.Password = digest
	return nil
}

func (s *Store) SetUserRole(ctx context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return err
	}
	if _, ok := s.roles[roleID]; !ok {
		return model.NewError(model.CodeForeignKeyError, "UserRole does not exist", nil)
	}
	u, ok := s.users[userID]
	if !ok {
		return model.NewError(model.CodeNotFound, "user not found", nil)
	}
	u.roleID = roleID
	return nil
}

func (s *Store) GetRoleByLevel(ctx context.Context, level model.PermissionLevel) (*model.UserRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return nil, err
	}
	for _, r := range s.roles {
		if r.PermissionLevel == level {
			role := r
			return &role, nil
		}
	}
	return nil, model.NewError(model.CodeNotFound, "role not found", nil)
}

func (s *Store) ListRoles(ctx context.Context) ([]model.UserRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return nil, err
	}
	roles := make([]model.UserRole, 0, len(s.roles))
	for _, r := range s.roles {
		r.PermissionLevel = model.ParsePermissionLevel(int16(r.PermissionLevel))
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].PermissionLevel < roles[j].PermissionLevel })
	return roles, nil
}
