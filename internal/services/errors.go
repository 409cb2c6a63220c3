package services

import "errors"

var (
	// ErrInvalidCredentials is the only error Login reports. It does not say
	// whether the username or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidInput       = errors.New("invalid input")
)
