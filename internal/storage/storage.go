package storage

import "errors"

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrMediaNotFound      = errors.New("media not found")
	ErrTokenMismatch      = errors.New("refresh token mismatch")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

var (
	ErrFileTooLarge = errors.New("file size exceeds limit")
	ErrFileNotFound = errors.New("file not found")
)
