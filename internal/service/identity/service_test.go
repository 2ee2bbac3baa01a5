package identity

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/domain"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/repository"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/repository/memory"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/validate"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/pkg/crypto"
	jwtpkg "github.com/RiddheshFirake/Lenden-SecureLoginSystem/pkg/jwt"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/pkg/logger"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *Service
	store  *memory.Store
	cipher *crypto.FieldCipher
	tokens *jwtpkg.Manager
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPolicy(t *testing.T) *validate.Policy {
	t.Helper()
	p, err := validate.NewPolicy(validate.Config{
		PasswordMinLength:  8,
		PhonePattern:       `^\+?[0-9]{10,15}$`,
		SensitiveIDPattern: `^[0-9]{12}$`,
	})
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	return p
}

func newHasher(t *testing.T) *crypto.Hasher {
	t.Helper()
	h, err := crypto.NewHasher(crypto.HasherConfig{Algorithm: crypto.AlgorithmBcrypt, BcryptCost: 4})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	return h
}

func newFixture(t *testing.T, users repository.UserRepository, log *slog.Logger) fixture {
	t.Helper()
	cipher, err := crypto.NewFieldCipher("identity-test-key")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	tokens, err := jwtpkg.NewManager("identity-test-signing-secret-0123456789", time.Hour, "securelogin")
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	store, _ := users.(*memory.Store)
	if users == nil {
		store = memory.New()
		users = store
	}
	if log == nil {
		log = newLogger()
	}
	svc := New(users, newHasher(t), cipher, tokens, newPolicy(t), log, WithClock(func() time.Time { return fixedNow }))
	return fixture{svc: svc, store: store, cipher: cipher, tokens: tokens}
}

func validInput() RegisterInput {
	return RegisterInput{
		Email:       "  Ada@Example.com ",
		Password:    "Passw0rd!",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Phone:       "+919876543210",
		SensitiveID: "123456789012",
	}
}

func TestRegisterStoresEncryptedSensitiveID(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Email != "ada@example.com" {
		t.Fatalf("email not normalised: %q", res.Email)
	}
	if !res.CreatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected created at %v", res.CreatedAt)
	}

	stored, err := f.store.GetUserByID(ctx, res.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if strings.Contains(stored.SensitiveID.Ciphertext, "123456789012") {
		t.Fatalf("ciphertext leaks plaintext")
	}
	if stored.PasswordHash == "Passw0rd!" || stored.PasswordHash == "" {
		t.Fatalf("password not hashed")
	}
	plain, err := f.cipher.Decrypt(stored.SensitiveID)
	if err != nil || plain != "123456789012" {
		t.Fatalf("Decrypt = %q, %v", plain, err)
	}
}

func TestRegisterValidationWritesNothing(t *testing.T) {
	f := newFixture(t, nil, nil)
	in := validInput()
	in.Email = "not-an-email"
	in.Password = "short"
	in.SensitiveID = "12"

	_, err := f.svc.Register(context.Background(), in)
	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *validate.Error, got %v", err)
	}
	for _, field := range []string{"email", "password", "sensitiveId"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Fatalf("expected %s in %v", field, verr.Fields)
		}
	}
	if f.store.Len() != 0 {
		t.Fatalf("no user may be written on validation failure")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	first, err := f.svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	before, _ := f.store.GetUserByID(ctx, first.ID)

	second := validInput()
	second.Email = "ADA@example.com"
	second.FirstName = "Other"
	if _, err := f.svc.Register(ctx, second); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	after, _ := f.store.GetUserByID(ctx, first.ID)
	if *after != *before {
		t.Fatalf("first user modified: %+v", after)
	}
	if f.store.Len() != 1 {
		t.Fatalf("expected one user, got %d", f.store.Len())
	}
}

func TestRegisterStoreConstraintMapsToDuplicate(t *testing.T) {
	repo := userRepoMock{
		getByEmailFunc: func(context.Context, string) (*domain.User, error) { return nil, repository.ErrNotFound },
		createFunc:     func(context.Context, *domain.User) error { return repository.ErrDuplicate },
	}
	f := newFixture(t, repo, nil)
	if _, err := f.svc.Register(context.Background(), validInput()); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestRegisterEncryptionFailureWritesNothing(t *testing.T) {
	created := false
	repo := userRepoMock{
		getByEmailFunc: func(context.Context, string) (*domain.User, error) { return nil, repository.ErrNotFound },
		createFunc:     func(context.Context, *domain.User) error { created = true; return nil },
	}
	svc := New(repo, newHasher(t), encrypterFunc(func(string) (crypto.EncryptedField, error) {
		return crypto.EncryptedField{}, crypto.ErrEncryption
	}), nil, newPolicy(t), newLogger())

	_, err := svc.Register(context.Background(), validInput())
	if !errors.Is(err, crypto.ErrEncryption) {
		t.Fatalf("expected encryption error, got %v", err)
	}
	if created {
		t.Fatalf("store must not be written after encryption failure")
	}
}

func TestLoginIssuesToken(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	reg, err := f.svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	res, err := f.svc.Login(ctx, "ADA@example.com", "Passw0rd!")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.User.ID != reg.ID || res.User.FirstName != "Ada" {
		t.Fatalf("unexpected public user %+v", res.User)
	}
	claims, err := f.svc.Authorize(ctx, res.Token)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if claims.SubjectID != reg.ID || claims.Email != "ada@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if !res.ExpiresAt.Equal(claims.ExpiresAt) {
		t.Fatalf("expiry mismatch %v vs %v", res.ExpiresAt, claims.ExpiresAt)
	}
}

func TestLoginCredentialErrorsAreIdentical(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, validInput()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, unknown := f.svc.Login(ctx, "nobody@example.com", "Passw0rd!")
	_, wrong := f.svc.Login(ctx, "ada@example.com", "WrongPass1")

	if !errors.Is(unknown, ErrInvalidCredentials) || !errors.Is(wrong, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v / %v", unknown, wrong)
	}
	if unknown.Error() != wrong.Error() {
		t.Fatalf("messages differ: %q vs %q", unknown.Error(), wrong.Error())
	}
}

func TestLoginUnknownEmailStillVerifies(t *testing.T) {
	verifyCalls := 0
	svc := New(
		userRepoMock{getByEmailFunc: func(context.Context, string) (*domain.User, error) { return nil, repository.ErrNotFound }},
		hasherMock{
			hashFunc:   func(string) (string, error) { return "$2a$04$dummy", nil },
			verifyFunc: func(string, string) (bool, error) { verifyCalls++; return false, nil },
		},
		nil, nil, newPolicy(t), newLogger(),
	)
	if _, err := svc.Login(context.Background(), "nobody@example.com", "Passw0rd!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if verifyCalls != 1 {
		t.Fatalf("expected one dummy verification, got %d", verifyCalls)
	}
}

func TestLoginMalformedHashIsInvalidCredentials(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "test", slog.LevelDebug)
	repo := userRepoMock{getByEmailFunc: func(context.Context, string) (*domain.User, error) {
		return &domain.User{ID: "u1", Email: "a@x.com", PasswordHash: "corrupted"}, nil
	}}
	f := newFixture(t, repo, log)

	_, err := f.svc.Login(context.Background(), "a@x.com", "Passw0rd!")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if !strings.Contains(buf.String(), `"reason":"malformed_hash"`) {
		t.Fatalf("expected security event, got %s", buf.String())
	}
	if strings.Contains(buf.String(), "Passw0rd!") {
		t.Fatalf("password leaked into logs")
	}
}

func TestLoginRequiresFields(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.svc.Login(context.Background(), " ", "")
	var verr *validate.Error
	if !errors.As(err, &verr) || len(verr.Fields) != 2 {
		t.Fatalf("expected two field errors, got %v", err)
	}
}

func TestAuthorizePassesThroughTokenErrors(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	if _, err := f.svc.Authorize(ctx, ""); !errors.Is(err, jwtpkg.ErrTokenMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
	if _, err := f.svc.Authorize(ctx, "a.b.c"); err == nil {
		t.Fatalf("expected error for garbage token")
	}

	clock := fixedNow
	expiring, err := jwtpkg.NewManager("identity-test-signing-secret-0123456789", time.Minute, "securelogin", jwtpkg.WithClock(func() time.Time { return clock }))
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	token, _, err := expiring.Issue("u1", "a@x.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	clock = clock.Add(time.Minute)
	svc := New(memory.New(), newHasher(t), f.cipher, expiring, newPolicy(t), newLogger())
	if _, err := svc.Authorize(ctx, token); !errors.Is(err, jwtpkg.ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}

type encrypterFunc func(string) (crypto.EncryptedField, error)

func (f encrypterFunc) Encrypt(s string) (crypto.EncryptedField, error) { return f(s) }

type hasherMock struct {
	hashFunc   func(string) (string, error)
	verifyFunc func(string, string) (bool, error)
}

func (m hasherMock) Hash(p string) (string, error) {
	return m.hashFunc(p)
}

func (m hasherMock) Verify(p, stored string) (bool, error) {
	return m.verifyFunc(p, stored)
}

type userRepoMock struct {
	createFunc     func(context.Context, *domain.User) error
	getByEmailFunc func(context.Context, string) (*domain.User, error)
	getByIDFunc    func(context.Context, string) (*domain.User, error)
	updateFunc     func(context.Context, *domain.User) error
}

func (m userRepoMock) CreateUser(ctx context.Context, user *domain.User) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, user)
	}
	return nil
}

func (m userRepoMock) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.getByEmailFunc != nil {
		return m.getByEmailFunc(ctx, email)
	}
	return nil, repository.ErrNotFound
}

func (m userRepoMock) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m userRepoMock) UpdateUser(ctx context.Context, user *domain.User) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, user)
	}
	return nil
}
