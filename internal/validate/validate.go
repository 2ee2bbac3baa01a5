package validate

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	maxEmailLength = 254
	maxNameLength  = 100
	// bcrypt ignores input past 72 bytes and x/crypto rejects it outright.
	maxPasswordBytes = 72
)

// Error reports one reason per offending input field.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "validation failed: " + strings.Join(names, ", ")
}

// Check records err against field when err is non-nil.
func (e *Error) Check(field string, err error) {
	if err == nil {
		return
	}
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = err.Error()
}

// Err returns e when any field failed and nil otherwise.
func (e *Error) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Config holds the configurable parts of the input policy.
type Config struct {
	PasswordMinLength  int
	PhonePattern       string
	SensitiveIDPattern string
}

// Policy checks and normalises user supplied fields. It is immutable and
// safe for concurrent use.
type Policy struct {
	minPassword int
	phone       *regexp.Regexp
	sensitiveID *regexp.Regexp
}

// NewPolicy compiles the configured patterns.
func NewPolicy(cfg Config) (*Policy, error) {
	if cfg.PasswordMinLength < 1 {
		return nil, fmt.Errorf("validate: password minimum length must be positive")
	}
	phone, err := regexp.Compile(cfg.PhonePattern)
	if err != nil {
		return nil, fmt.Errorf("validate: phone pattern: %w", err)
	}
	sensitiveID, err := regexp.Compile(cfg.SensitiveIDPattern)
	if err != nil {
		return nil, fmt.Errorf("validate: sensitive id pattern: %w", err)
	}
	return &Policy{minPassword: cfg.PasswordMinLength, phone: phone, sensitiveID: sensitiveID}, nil
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Email validates and normalises an address.
func (p *Policy) Email(raw string) (string, error) {
	email := NormalizeEmail(raw)
	if email == "" {
		return "", errors.New("is required")
	}
	if len(email) > maxEmailLength {
		return "", errors.New("is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", errors.New("must be a valid email address")
	}
	at := strings.LastIndex(email, "@")
	if !strings.Contains(email[at+1:], ".") {
		return "", errors.New("must be a valid email address")
	}
	return email, nil
}

// Password checks length only. The value is never trimmed.
func (p *Policy) Password(password string) error {
	if password == "" {
		return errors.New("is required")
	}
	if utf8.RuneCountInString(password) < p.minPassword {
		return fmt.Errorf("must be at least %d characters", p.minPassword)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("must be at most %d bytes", maxPasswordBytes)
	}
	return nil
}

// Name validates a first or last name.
func (p *Policy) Name(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", errors.New("is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", fmt.Errorf("must be at most %d characters", maxNameLength)
	}
	return name, nil
}

// Phone validates an optional phone number. Spaces, dashes and parentheses
// are stripped before matching; an empty value is accepted.
func (p *Policy) Phone(raw string) (string, error) {
	phone := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if phone == "" {
		return "", nil
	}
	if !p.phone.MatchString(phone) {
		return "", errors.New("has an invalid format")
	}
	return phone, nil
}

// SensitiveID validates the national id. Spaces and dashes are stripped.
func (p *Policy) SensitiveID(raw string) (string, error) {
	id := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if id == "" {
		return "", errors.New("is required")
	}
	if !p.sensitiveID.MatchString(id) {
		return "", errors.New("has an invalid format")
	}
	return id, nil
}
