package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/domain"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/repository"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/validate"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/pkg/crypto"
	jwtpkg "github.com/RiddheshFirake/Lenden-SecureLoginSystem/pkg/jwt"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/pkg/logger"
)

var (
	// ErrInvalidCredentials is returned for an unknown email and for a wrong
	// password alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrDuplicateEmail is returned when the email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
)

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, stored string) (bool, error)
}

// Encrypter seals the sensitive id.
type Encrypter interface {
	Encrypt(plaintext string) (crypto.EncryptedField, error)
}

// Tokens issues and verifies session tokens.
type Tokens interface {
	Issue(subjectID, email string) (string, jwtpkg.Claims, error)
	Verify(token string) (*jwtpkg.Claims, error)
}

// Policy validates registration fields.
type Policy interface {
	Email(raw string) (string, error)
	Password(password string) error
	Name(raw string) (string, error)
	Phone(raw string) (string, error)
	SensitiveID(raw string) (string, error)
}

// Service registers users and authenticates them.
type Service struct {
	users  repository.UserRepository
	hasher Hasher
	cipher Encrypter
	tokens Tokens
	policy Policy
	logger *slog.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service.
func New(users repository.UserRepository, hasher Hasher, cipher Encrypter, tokens Tokens, policy Policy, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		users:  users,
		hasher: hasher,
		cipher: cipher,
		tokens: tokens,
		policy: policy,
		logger: log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterInput carries the raw registration fields.
type RegisterInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Phone       string
	SensitiveID string
}

// RegisterResult holds only non-sensitive identifiers.
type RegisterResult struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// Register validates, hashes and encrypts the input and persists a new user.
// Nothing is written unless every prior step succeeds.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	verr := &validate.Error{}
	email, err := s.policy.Email(in.Email)
	verr.Check("email", err)
	verr.Check("password", s.policy.Password(in.Password))
	firstName, err := s.policy.Name(in.FirstName)
	verr.Check("firstName", err)
	lastName, err := s.policy.Name(in.LastName)
	verr.Check("lastName", err)
	phone, err := s.policy.Phone(in.Phone)
	verr.Check("phone", err)
	sensitiveID, err := s.policy.SensitiveID(in.SensitiveID)
	verr.Check("sensitiveId", err)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	// Fast path only; the store's unique index is authoritative.
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		s.securityEvent("register_rejected", "reason", "duplicate_email")
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.Error("password hashing failed", "error", logger.Sanitize(err))
		return nil, fmt.Errorf("hash password: %w", err)
	}
	sealed, err := s.cipher.Encrypt(sensitiveID)
	if err != nil {
		s.logger.Error("sensitive id encryption failed", "error", logger.Sanitize(err))
		return nil, fmt.Errorf("encrypt sensitive id: %w", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Phone:        phone,
		SensitiveID:  sealed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.securityEvent("register_rejected", "reason", "duplicate_email")
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return &RegisterResult{ID: user.ID, Email: user.Email, CreatedAt: user.CreatedAt}, nil
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      domain.PublicUser
}

// Login checks the credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = validate.NormalizeEmail(email)
	verr := &validate.Error{}
	if email == "" {
		verr.Check("email", errors.New("is required"))
	}
	if password == "" {
		verr.Check("password", errors.New("is required"))
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Spend the same hashing work as a real account would.
			_, _ = s.hasher.Verify(password, s.dummy())
			s.securityEvent("login_failed", "reason", "unknown_email")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unusable", "user_id", user.ID, "error", logger.Sanitize(err))
		s.securityEvent("login_failed", "user_id", user.ID, "reason", "malformed_hash")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		s.securityEvent("login_failed", "user_id", user.ID, "reason", "wrong_password")
		return nil, ErrInvalidCredentials
	}

	token, claims, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	s.securityEvent("login_succeeded", "user_id", user.ID)
	return &LoginResult{Token: token, ExpiresAt: claims.ExpiresAt, User: user.Public()}, nil
}

// Authorize verifies a bearer token without touching the store.
func (s *Service) Authorize(_ context.Context, token string) (*jwtpkg.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, jwtpkg.ErrTokenMalformed
	}
	return s.tokens.Verify(token)
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			s.logger.Warn("dummy hash unavailable", "error", logger.Sanitize(err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *Service) securityEvent(event string, attrs ...any) {
	s.logger.Info("security_event", append([]any{"event", event}, attrs...)...)
}
