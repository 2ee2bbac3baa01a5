package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/domain"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/repository"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/validate"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/pkg/crypto"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/pkg/logger"
)

var (
	// ErrNotFound is returned when the authenticated subject has no record.
	ErrNotFound = errors.New("profile not found")
	// ErrDecryptionFailure means the stored sensitive id could not be opened.
	ErrDecryptionFailure = errors.New("profile data unavailable")
)

// Verifier checks a password against a stored hash.
type Verifier interface {
	Verify(password, stored string) (bool, error)
}

// Cipher seals and opens the sensitive id.
type Cipher interface {
	Encrypt(plaintext string) (crypto.EncryptedField, error)
	Decrypt(field crypto.EncryptedField) (string, error)
}

// Policy validates updated fields.
type Policy interface {
	Name(raw string) (string, error)
	Phone(raw string) (string, error)
	SensitiveID(raw string) (string, error)
}

// Service guards reads and writes of the encrypted profile.
type Service struct {
	users  repository.UserRepository
	hasher Verifier
	cipher Cipher
	policy Policy
	logger *slog.Logger
	now    func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides time.Now for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service.
func New(users repository.UserRepository, hasher Verifier, cipher Cipher, policy Policy, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{users: users, hasher: hasher, cipher: cipher, policy: policy, logger: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdateInput lists the fields a caller may change. Nil means unchanged.
type UpdateInput struct {
	FirstName   *string
	LastName    *string
	Phone       *string
	SensitiveID *string
}

func (in UpdateInput) empty() bool {
	return in.FirstName == nil && in.LastName == nil && in.Phone == nil && in.SensitiveID == nil
}

// Get returns the decrypted profile of userID.
func (s *Service) Get(ctx context.Context, userID string) (*domain.ProfileView, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.view(user)
}

// Update validates and applies in, replacing the whole encrypted triple when
// a new sensitive id is supplied, and writes the record once.
func (s *Service) Update(ctx context.Context, userID string, in UpdateInput) (*domain.ProfileView, error) {
	verr := &validate.Error{}
	if in.empty() {
		verr.Check("profile", errors.New("no fields to update"))
		return nil, verr.Err()
	}
	var firstName, lastName, phone, sensitiveID string
	var err error
	if in.FirstName != nil {
		firstName, err = s.policy.Name(*in.FirstName)
		verr.Check("firstName", err)
	}
	if in.LastName != nil {
		lastName, err = s.policy.Name(*in.LastName)
		verr.Check("lastName", err)
	}
	if in.Phone != nil {
		phone, err = s.policy.Phone(*in.Phone)
		verr.Check("phone", err)
	}
	if in.SensitiveID != nil {
		sensitiveID, err = s.policy.SensitiveID(*in.SensitiveID)
		verr.Check("sensitiveId", err)
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.FirstName != nil {
		user.FirstName = firstName
	}
	if in.LastName != nil {
		user.LastName = lastName
	}
	if in.Phone != nil {
		user.Phone = phone
	}
	if in.SensitiveID != nil {
		sealed, err := s.cipher.Encrypt(sensitiveID)
		if err != nil {
			s.logger.Error("sensitive id encryption failed", "user_id", userID, "error", logger.Sanitize(err))
			return nil, fmt.Errorf("encrypt sensitive id: %w", err)
		}
		user.SensitiveID = sealed
	}
	user.UpdatedAt = s.now().UTC()

	if err := s.users.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	s.logger.Info("profile updated", "user_id", userID, "sensitive_id_replaced", in.SensitiveID != nil)
	return s.view(user)
}

// VerifyPassword re-checks the caller's password for a sensitive action.
// A wrong password is (false, nil).
func (s *Service) VerifyPassword(ctx context.Context, userID, password string) (bool, error) {
	if password == "" {
		verr := &validate.Error{}
		verr.Check("password", errors.New("is required"))
		return false, verr.Err()
	}
	user, err := s.load(ctx, userID)
	if err != nil {
		return false, err
	}
	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unusable", "user_id", userID, "error", logger.Sanitize(err))
		return false, fmt.Errorf("verify password: %w", err)
	}
	outcome := "failed"
	if ok {
		outcome = "succeeded"
	}
	s.logger.Info("security_event", "event", "step_up_"+outcome, "user_id", userID)
	return ok, nil
}

func (s *Service) load(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("authenticated subject has no record", "user_id", userID)
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func (s *Service) view(user *domain.User) (*domain.ProfileView, error) {
	plain, err := s.cipher.Decrypt(user.SensitiveID)
	if err != nil {
		s.logger.Error("sensitive id decryption failed", "user_id", user.ID, "error", logger.Sanitize(err))
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailure, err)
	}
	return &domain.ProfileView{
		ID:          user.ID,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Phone:       user.Phone,
		SensitiveID: plain,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}, nil
}
