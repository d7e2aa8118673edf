package auth

import "errors"

var (
	// ErrInvalidCredentials covers both unknown emails and wrong passwords
	// so login responses do not leak which one failed.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrNotWhitelisted means the email is not on the free-trial allowlist.
	ErrNotWhitelisted = errors.New("auth: email is not whitelisted for a trial")

	// ErrWeakPassword means the password does not meet the minimum length.
	ErrWeakPassword = errors.New("auth: password is too weak")

	// ErrInvalidResetToken means the password reset token failed
	// verification or was issued for another purpose.
	ErrInvalidResetToken = errors.New("auth: invalid password reset token")
)
