package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/moguedu/accredit/pkg/api/store"
	"github.com/moguedu/accredit/pkg/config"
	"github.com/moguedu/accredit/pkg/credential"
)

var (
	// ErrInvalidCredentials is returned when a username/password pair does
	// not identify an active admin.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is returned for a missing, unknown or expired session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidInput is returned for missing or too-short fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAdminExists is returned when creating a duplicate username.
	ErrAdminExists = errors.New("admin already exists")
	// ErrAdminNotFound is returned when an operator command names an
	// unknown admin.
	ErrAdminNotFound = errors.New("admin not found")
)

// Identity is the authenticated admin attached to a request.
type Identity struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Admin     Identity
}

// Options configures the Service.
type Options struct {
	// SessionTTL is how long a session stays valid after login.
	SessionTTL time.Duration
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Service manages admin credentials and login sessions.
type Service interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	Logout(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (*Identity, error)
	ChangePassword(ctx context.Context, token, current, next string) error
	PurgeExpired(ctx context.Context) (int64, error)

	CreateAdmin(ctx context.Context, seed config.AdminSeed) (*store.AdminUser, error)
	SetPassword(ctx context.Context, username, password string) error
	SetActive(ctx context.Context, username string, active bool) error
	SeedAdmins(ctx context.Context, seeds []config.AdminSeed) error
}

// Compile-time interface check.
var _ Service = (*service)(nil)

type service struct {
	log    logrus.FieldLogger
	store  store.Store
	hasher *credential.Hasher
	ttl    time.Duration
	now    func() time.Time

	// dummy is verified against when no active admin matches, so a miss
	// costs one KDF run like a wrong password does.
	dummy string
}

// NewService creates a new auth Service.
func NewService(
	log logrus.FieldLogger,
	st store.Store,
	hasher *credential.Hasher,
	opts Options,
) Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = config.DefaultSessionTTL
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	svc := &service{
		log:    log.WithField("component", "auth"),
		store:  st,
		hasher: hasher,
		ttl:    opts.SessionTTL,
		now:    opts.Now,
	}

	dummy, err := credential.GenerateToken()
	if err == nil {
		dummy, err = hasher.Hash(dummy)
	}

	if err != nil {
		svc.log.WithError(err).Warn("Failed to prepare dummy digest")
	}

	svc.dummy = dummy

	return svc
}

// Login checks the password of an active admin and opens a new session.
func (s *service) Login(
	ctx context.Context, username, password string,
) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	admin, err := s.store.GetActiveAdminByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.hasher.Verify(password, s.dummy)

			return nil, ErrInvalidCredentials
		}

		return nil, fmt.Errorf("looking up admin: %w", err)
	}

	if !s.hasher.Verify(password, admin.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(admin.PasswordHash) {
		s.rehash(ctx, admin, password)
	}

	token, err := credential.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generating session token: %w", err)
	}

	now := s.now().UTC()
	session := &store.AdminSession{
		AdminID:      admin.ID,
		SessionToken: token,
		ExpiresAt:    now.Add(s.ttl),
	}

	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	if err := s.store.UpdateAdminLastLogin(ctx, admin.ID, now); err != nil {
		s.log.WithError(err).WithField("username", admin.Username).
			Warn("Failed to record last login")
	}

	s.log.WithField("username", admin.Username).Info("Admin logged in")

	return &LoginResult{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		Admin:     identityOf(admin),
	}, nil
}

// rehash upgrades a legacy or outdated digest after a successful login.
// Failures are logged and the login proceeds.
func (s *service) rehash(ctx context.Context, admin *store.AdminUser, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.log.WithError(err).Warn("Failed to rehash password")

		return
	}

	if err := s.store.UpdateAdminPassword(ctx, admin.ID, hash); err != nil {
		s.log.WithError(err).Warn("Failed to store rehashed password")

		return
	}

	s.log.WithField("username", admin.Username).Debug("Upgraded password digest")
}

// Logout deletes the session. Unknown tokens are ignored.
func (s *service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	if err := s.store.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	return nil
}

// Authenticate resolves a session token to the admin that owns it.
func (s *service) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	sess, err := s.store.GetActiveSession(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}

		return nil, fmt.Errorf("resolving session: %w", err)
	}

	return &Identity{
		ID:       sess.AdminID,
		Username: sess.Username,
		FullName: sess.FullName,
		Role:     sess.Role,
	}, nil
}

// ChangePassword replaces the password of the session's admin after checking
// the current one. Input is validated before the session is looked at.
func (s *service) ChangePassword(
	ctx context.Context, token, current, next string,
) error {
	if current == "" || next == "" {
		return fmt.Errorf("%w: current and new password are required", ErrInvalidInput)
	}

	if len(next) < config.MinPasswordLength {
		return fmt.Errorf("%w: new password must be at least %d characters",
			ErrInvalidInput, config.MinPasswordLength)
	}

	identity, err := s.Authenticate(ctx, token)
	if err != nil {
		return err
	}

	admin, err := s.store.GetAdminByID(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthorized
		}

		return fmt.Errorf("looking up admin: %w", err)
	}

	if !s.hasher.Verify(current, admin.PasswordHash) {
		return ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := s.store.UpdateAdminPassword(ctx, admin.ID, hash); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	s.log.WithField("username", admin.Username).Info("Admin changed password")

	return nil
}

// PurgeExpired deletes every session whose expiry has passed.
func (s *service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx, s.now())
}

// CreateAdmin hashes the seed's password and stores a new active admin.
func (s *service) CreateAdmin(
	ctx context.Context, seed config.AdminSeed,
) (*store.AdminUser, error) {
	if seed.Username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}

	if len(seed.Password) < config.MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters",
			ErrInvalidInput, config.MinPasswordLength)
	}

	if _, err := s.store.GetAdminByUsername(ctx, seed.Username); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAdminExists, seed.Username)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up admin: %w", err)
	}

	hash, err := s.hasher.Hash(seed.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	role := seed.Role
	if role == "" {
		role = config.DefaultAdminRole
	}

	admin := &store.AdminUser{
		Username:     seed.Username,
		PasswordHash: hash,
		FullName:     seed.FullName,
		Role:         role,
		IsActive:     true,
	}

	if err := s.store.CreateAdmin(ctx, admin); err != nil {
		return nil, fmt.Errorf("creating admin: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"username": admin.Username,
		"role":     admin.Role,
	}).Info("Created admin")

	return admin, nil
}

// SetPassword overwrites an admin's password without checking the old one.
func (s *service) SetPassword(ctx context.Context, username, password string) error {
	if len(password) < config.MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters",
			ErrInvalidInput, config.MinPasswordLength)
	}

	admin, err := s.lookup(ctx, username)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := s.store.UpdateAdminPassword(ctx, admin.ID, hash); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	s.log.WithField("username", username).Info("Reset admin password")

	return nil
}

// SetActive enables or disables an admin. Sessions of a disabled admin stop
// authenticating immediately.
func (s *service) SetActive(ctx context.Context, username string, active bool) error {
	admin, err := s.lookup(ctx, username)
	if err != nil {
		return err
	}

	if err := s.store.SetAdminActive(ctx, admin.ID, active); err != nil {
		return fmt.Errorf("updating admin: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"username": username,
		"active":   active,
	}).Info("Updated admin status")

	return nil
}

// SeedAdmins creates config-defined admins that do not exist yet. Existing
// accounts are left untouched.
func (s *service) SeedAdmins(ctx context.Context, seeds []config.AdminSeed) error {
	for _, seed := range seeds {
		_, err := s.CreateAdmin(ctx, seed)
		if errors.Is(err, ErrAdminExists) {
			s.log.WithField("username", seed.Username).
				Debug("Admin already exists, skipping seed")

			continue
		}

		if err != nil {
			return fmt.Errorf("seeding admin %q: %w", seed.Username, err)
		}
	}

	return nil
}

func (s *service) lookup(ctx context.Context, username string) (*store.AdminUser, error) {
	admin, err := s.store.GetAdminByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAdminNotFound, username)
		}

		return nil, fmt.Errorf("looking up admin: %w", err)
	}

	return admin, nil
}

func identityOf(admin *store.AdminUser) Identity {
	return Identity{
		ID:       admin.ID,
		Username: admin.Username,
		FullName: admin.FullName,
		Role:     admin.Role,
	}
}
