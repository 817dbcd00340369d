package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID            uuid.UUID `db:"id" json:"id"`
	FullName      string    `db:"full_name" json:"full_name"`
	Username      string    `db:"username" json:"username"`
	Email         string    `db:"email" json:"email"`
	Password      []byte    `db:"password" json:"-"`
	AvatarURL     string    `db:"avatar_url" json:"avatar_url"`
	CoverImageURL string    `db:"cover_image_url" json:"cover_image_url"`
	// RefreshToken mirrors the single active refresh token for the user.
	// Empty string means logged out.
	RefreshToken string    `db:"refresh_token" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// SanitizedUser is the only user shape ever serialized to clients or cached:
// no password hash, no refresh token.
type SanitizedUser struct {
	ID            uuid.UUID `json:"id"`
	FullName      string    `json:"full_name"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	AvatarURL     string    `json:"avatar_url"`
	CoverImageURL string    `json:"cover_image_url"`
	CreatedAt     time.Time `json:"created_at"`
}

func (u User) Sanitized() SanitizedUser {
	return SanitizedUser{
		ID:            u.ID,
		FullName:      u.FullName,
		Username:      u.Username,
		Email:         u.Email,
		AvatarURL:     u.AvatarURL,
		CoverImageURL: u.CoverImageURL,
		CreatedAt:     u.CreatedAt,
	}
}
