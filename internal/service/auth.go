package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pickupper/backend/internal/config"
	"github.com/pickupper/backend/internal/credential"
	"github.com/pickupper/backend/internal/db"
	"github.com/pickupper/backend/internal/logutil"
	"github.com/pickupper/backend/internal/model"
	"github.com/pickupper/backend/internal/obs"
)

// RootUsername is the account EnsureRoot provisions.
const RootUsername = "root"

var ErrMisconfigured = errors.New("auth config invalid")

type TokenStore interface {
	InsertRefresh(ctx context.Context, digest, ownerID, deviceInfo string, ttl time.Duration, now time.Time) (*model.Token, error)
	InsertAccess(ctx context.Context, digest, ownerID, deviceInfo string, now time.Time) (*model.Token, error)
	Lookup(ctx context.Context, kind model.TokenKind, digest string, now time.Time) (*model.Token, error)
	ResolvePermission(ctx context.Context, digest string, now time.Time) (*model.Principal, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, in db.NewUser, now time.Time) (string, error)
	GetCredentialsByUsername(ctx context.Context, username string) (*model.UserCredentials, error)
	GetUserByID(ctx context.Context, userID string) (*model.User, error)
	UpdatePassword(ctx context.Context, userID, digest string) error
	SetUserRole(ctx context.Context, userID, roleID string) error
	GetRoleByLevel(ctx context.Context, level model.PermissionLevel) (*model.UserRole, error)
	ListRoles(ctx context.Context) ([]model.UserRole, error)
}

type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, encoded string) (bool, error)
	NeedsRehash(encoded string) bool
}

type AuthService struct {
	tokens        TokenStore
	users         UserStore
	hasher        PasswordHasher
	maxRefreshTTL time.Duration
	now           func() time.Time

	// digest burnt by logins for unknown usernames
	dummyDigest string
}

type Option func(*AuthService)

// WithClock replaces time.Now as the source of issue and expiry times.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

func NewAuthService(tokens TokenStore, users UserStore, hasher PasswordHasher, cfg config.AuthConfig, opts ...Option) (*AuthService, error) {
	if cfg.MaxRefreshTTL <= 0 {
		return nil, fmt.Errorf("%w: MAX_REFRESH_SECONDS must be positive", ErrMisconfigured)
	}
	s := &AuthService{
		tokens:        tokens,
		users:         users,
		hasher:        hasher,
		maxRefreshTTL: cfg.MaxRefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	dummy, err := credential.RandomString(32)
	if err != nil {
		return nil, err
	}
	if s.dummyDigest, err = hasher.Hash(context.Background(), dummy); err != nil {
		return nil, fmt.Errorf("%w: hashing the dummy credential: %v", ErrMisconfigured, err)
	}
	return s, nil
}

// Login verifies credentials and issues a refresh token living req.Active seconds.
// Unknown usernames and wrong passwords fail identically.
func (s *AuthService) Login(ctx context.Context, req model.UserLogin) (string, error) {
	maxActive := int64(s.maxRefreshTTL / time.Second)
	if req.Active < 1 || req.Active > maxActive {
		return "", model.BadRequest(fmt.Sprintf("Active must be between 1 and %d seconds", maxActive))
	}
	ttl := time.Duration(req.Active) * time.Second

	creds, err := s.users.GetCredentialsByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.burnVerify(ctx, req.Password)
			obs.LoginFailed(string(model.CodeIncorrectCredentials))
			return "", model.ErrIncorrectCredentials
		}
		return "", err
	}

	ok, err := s.hasher.Verify(ctx, req.Password, creds.Password)
	if err != nil {
		return "", err
	}
	if !ok {
		obs.LoginFailed(string(model.CodeIncorrectCredentials))
		return "", model.ErrIncorrectCredentials
	}

	if s.hasher.NeedsRehash(creds.Password) {
		s.upgradeDigest(ctx, creds.ID, req.Password)
	}

	secret, err := s.issue(ctx, model.TokenRefresh, creds.ID, req.DeviceInfo, ttl)
	if err != nil {
		return "", err
	}
	return secret, nil
}

// Refresh exchanges a live refresh secret for a new access secret. The refresh token stays valid.
func (s *AuthService) Refresh(ctx context.Context, refreshSecret string) (string, error) {
	if !credential.LooksLikeToken(refreshSecret) {
		return "", model.ErrUnauthorized
	}
	tok, err := s.tokens.Lookup(ctx, model.TokenRefresh, credential.DigestToken(refreshSecret), s.now())
	if err != nil {
		return "", err
	}
	return s.issue(ctx, model.TokenAccess, tok.OwnerID, tok.DeviceInfo, model.AccessTokenTTL)
}

// Authenticate checks that accessSecret names a live access token. The tier is not resolved.
func (s *AuthService) Authenticate(ctx context.Context, accessSecret string) (*model.Principal, error) {
	if !credential.LooksLikeToken(accessSecret) {
		return nil, model.ErrUnauthorized
	}
	tok, err := s.tokens.Lookup(ctx, model.TokenAccess, credential.DigestToken(accessSecret), s.now())
	if err != nil {
		return nil, err
	}
	return &model.Principal{UserID: tok.OwnerID, DeviceInfo: tok.DeviceInfo}, nil
}

// ResolvePermission returns the owner of a live access token with its current tier.
func (s *AuthService) ResolvePermission(ctx context.Context, accessSecret string) (*model.Principal, error) {
	if !credential.LooksLikeToken(accessSecret) {
		return nil, model.ErrUnauthorized
	}
	return s.tokens.ResolvePermission(ctx, credential.DigestToken(accessSecret), s.now())
}

func (s *AuthService) issue(ctx context.Context, kind model.TokenKind, ownerID, deviceInfo string, ttl time.Duration) (string, error) {
	gen, err := credential.GenerateToken()
	if err != nil {
		return "", model.Internal(err)
	}
	now := s.now()
	switch kind {
	case model.TokenRefresh:
		_, err = s.tokens.InsertRefresh(ctx, gen.Digest, ownerID, deviceInfo, ttl, now)
	default:
		_, err = s.tokens.InsertAccess(ctx, gen.Digest, ownerID, deviceInfo, now)
	}
	if err != nil {
		return "", err
	}
	obs.TokenIssued(kind.String())
	return gen.Secret, nil
}

func (s *AuthService) upgradeDigest(ctx context.Context, userID, password string) {
	log := logutil.GetOrDefault(ctx)
	digest, err := s.hasher.Hash(ctx, password)
	if err == nil {
		err = s.users.UpdatePassword(ctx, userID, digest)
	}
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("password digest upgrade failed")
		return
	}
	log.Info().Str("user_id", userID).Msg("password digest upgraded")
}

// burnVerify spends one verification on a throwaway digest so unknown usernames cost as much as wrong passwords.
func (s *AuthService) burnVerify(ctx context.Context, password string) {
	_, _ = s.hasher.Verify(ctx, password, s.dummyDigest)
}

// NewAccount describes an identity created outside the HTTP surface.
type NewAccount struct {
	Username string
	Name     string
	Surname  string
	Password string
	Level    model.PermissionLevel
}

func (s *AuthService) CreateUser(ctx context.Context, in NewAccount) (string, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return "", model.BadRequest("Username is required")
	}
	if in.Password == "" {
		return "", model.BadRequest("Password is required")
	}

	role, err := s.users.GetRoleByLevel(ctx, in.Level)
	if err != nil {
		return "", err
	}
	digest, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return "", err
	}
	return s.users.CreateUser(ctx, db.NewUser{
		Username: in.Username,
		Name:     in.Name,
		Surname:  in.Surname,
		Password: digest,
		RoleID:   role.ID,
	}, s.now())
}

// EnsureRoot creates the root account with the highest tier if it does not exist yet.
func (s *AuthService) EnsureRoot(ctx context.Context, password string) error {
	_, err := s.users.GetCredentialsByUsername(ctx, RootUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return err
	}

	_, err = s.CreateUser(ctx, NewAccount{Username: RootUsername, Password: password, Level: model.PermissionAdmin})
	if errors.Is(err, model.ErrUniqueViolation) {
		// created concurrently by another instance
		return nil
	}
	if err != nil {
		return err
	}
	log := logutil.GetOrDefault(ctx)
	log.Info().Str("username", RootUsername).Msg("root account created")
	return nil
}

// ChangePassword stores a fresh digest, with a new salt, for userID.
func (s *AuthService) ChangePassword(ctx context.Context, userID, password string) error {
	if password == "" {
		return model.BadRequest("Password is required")
	}
	digest, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, digest)
}

// ResetPassword is ChangePassword keyed by username, for operators without a session.
func (s *AuthService) ResetPassword(ctx context.Context, username, password string) error {
	creds, err := s.users.GetCredentialsByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return err
	}
	return s.ChangePassword(ctx, creds.ID, password)
}

// SetUserRole points userID at the role of the given tier. Tokens already issued pick it up on their next request.
func (s *AuthService) SetUserRole(ctx context.Context, userID string, level int16) error {
	if _, err := uuid.Parse(userID); err != nil {
		return model.BadRequest("invalid user id")
	}
	if model.ParsePermissionLevel(level) != model.PermissionLevel(level) {
		return model.BadRequest(fmt.Sprintf("unknown permission level %d", level))
	}
	role, err := s.users.GetRoleByLevel(ctx, model.PermissionLevel(level))
	if err != nil {
		return err
	}
	return s.users.SetUserRole(ctx, userID, role.ID)
}

func (s *AuthService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

func (s *AuthService) ListRoles(ctx context.Context) ([]model.UserRole, error) {
	return s.users.ListRoles(ctx)
}

// PruneExpired deletes tokens that are already dead. Expiry is enforced on lookup regardless.
func (s *AuthService) PruneExpired(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpiredTokens(ctx, s.now())
}
