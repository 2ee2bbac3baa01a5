package domain

import (
	"time"

	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/pkg/crypto"
)

// EncryptedField is the stored (ciphertext, iv, authTag) triple.
type EncryptedField = crypto.EncryptedField

// User represents a registered account. SensitiveID is only ever held in
// encrypted form.
type User struct {
	ID           string
	Email        string
	PasswordHash string `json:"-"`
	FirstName    string
	LastName     string
	Phone        string
	SensitiveID  EncryptedField
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Public returns the subset of fields safe to hand to any caller.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// PublicUser is returned alongside a login token.
type PublicUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// ProfileView is the decrypted profile served to its owner.
type ProfileView struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Phone       string    `json:"phone,omitempty"`
	SensitiveID string    `json:"sensitiveId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
