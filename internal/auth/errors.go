package auth

import "errors"

var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: token invalid")
	ErrUnknownUser  = errors.New("auth: unknown user")
	ErrInvalidInput = errors.New("auth: invalid input")
)
