package repository

import (
	"context"

	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/domain"
)

// UserRepository persists users. Implementations enforce email uniqueness
// case-insensitively and report a conflicting write as ErrDuplicate.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	// UpdateUser replaces the mutable profile fields, including the whole
	// encrypted triple, in a single write.
	UpdateUser(ctx context.Context, user *domain.User) error
}

// Pinger reports store reachability for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store is the full contract a backend provides to the API.
type Store interface {
	UserRepository
	Pinger
	Close(ctx context.Context) error
}
