package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired means the token was genuine but its lifetime has passed.
	ErrTokenExpired = errors.New("jwt: token expired")
	// ErrTokenInvalid covers bad signatures, unexpected algorithms and
	// missing or wrong claims.
	ErrTokenInvalid = errors.New("jwt: token invalid")
	// ErrTokenMalformed means the input is not a JWT at all.
	ErrTokenMalformed = errors.New("jwt: token malformed")
	// ErrNoSecret is returned by NewManager when no signing secret is set.
	ErrNoSecret = errors.New("jwt: signing secret not configured")
	// ErrWeakSecret is returned by NewManager for secrets shorter than MinSecretLength.
	ErrWeakSecret = errors.New("jwt: signing secret too short")
)

// Claims is the verified content of a session token.
type Claims struct {
	SubjectID string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type wireClaims struct {
	Email string `json:"email"`
	jwtlib.RegisteredClaims
}

// Manager issues and verifies HS256 session tokens. It is immutable after
// construction and safe for concurrent use.
type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// MinSecretLength is the shortest HS256 signing secret NewManager accepts.
const MinSecretLength = 32

// Option customises a Manager.
type Option func(*Manager)

// WithClock overrides time.Now for issuing and checking expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager returns a Manager signing with secret and issuing tokens that
// live for ttl.
func NewManager(secret string, ttl time.Duration, issuer string, opts ...Option) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrNoSecret
	}
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrWeakSecret, MinSecretLength)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("jwt: ttl must be positive, got %s", ttl)
	}
	m := &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL reports the configured token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for subjectID. The returned Claims mirror what was
// encoded, at the one second precision of the token.
func (m *Manager) Issue(subjectID, email string) (string, Claims, error) {
	if subjectID == "" {
		return "", Claims{}, fmt.Errorf("%w: empty subject", ErrTokenInvalid)
	}
	now := m.now()
	wc := wireClaims{
		Email: email,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    m.issuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, wc).SignedString(m.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("jwt: sign: %w", err)
	}
	return token, Claims{
		SubjectID: subjectID,
		Email:     email,
		IssuedAt:  wc.IssuedAt.Time,
		ExpiresAt: wc.ExpiresAt.Time,
	}, nil
}

// Verify checks signature, algorithm, issuer and expiry, in that order.
func (m *Manager) Verify(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrTokenMalformed
	}
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(m.issuer))
	}
	wc := &wireClaims{}
	parsed, err := jwtlib.ParseWithClaims(token, wc, func(*jwtlib.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, classify(err)
	}
	if !parsed.Valid || wc.Subject == "" {
		return nil, ErrTokenInvalid
	}
	claims := &Claims{
		SubjectID: wc.Subject,
		Email:     wc.Email,
		ExpiresAt: wc.ExpiresAt.Time,
	}
	if wc.IssuedAt != nil {
		claims.IssuedAt = wc.IssuedAt.Time
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwtlib.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwtlib.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}

// ExtractFromHeader pulls the token out of an Authorization header value of
// the form "Bearer <token>". The scheme is matched case-insensitively.
func ExtractFromHeader(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
