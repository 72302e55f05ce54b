package goMFA

import (
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials covers unknown email, wrong password and empty
	// input alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginRateLimited is returned while the email or client IP is throttled.
	ErrLoginRateLimited   = errors.New("login rate limited")

	// ErrOTPExpired is returned when the latest email code is past its expiry.
	ErrOTPExpired        = errors.New("otp expired")
	// ErrOTPInvalid is returned when no code exists or the code does not match.
	ErrOTPInvalid        = errors.New("otp invalid")
	// ErrOTPAlreadyUsed is returned when the latest email code was consumed
	// or superseded.
	ErrOTPAlreadyUsed    = errors.New("otp already used")
	ErrBackupCodeInvalid = errors.New("backup code invalid")
	ErrTOTPInvalid       = errors.New("totp code invalid")
	// ErrTOTPNotConfigured is returned when the account has no TOTP secret.
	ErrTOTPNotConfigured = errors.New("totp not configured")

	// ErrVerificationFailed is the generic failure every second-factor error
	// reports to the client.
	ErrVerificationFailed = errors.New("invalid verification code")
	// ErrVerificationLocked is returned while the per-user lockout is active.
	ErrVerificationLocked = errors.New("verification temporarily locked")

	ErrChallengeInvalid  = errors.New("challenge invalid")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrMethodUnavailable = errors.New("verification method unavailable")
	// ErrMethodNotSelected is returned when an email code is submitted before
	// one was sent for the challenge.
	ErrMethodNotSelected = errors.New("verification method not selected")
	// ErrAttemptsExceeded is returned when the challenge was destroyed after
	// too many failures.
	ErrAttemptsExceeded  = errors.New("verification attempts exceeded")

	// ErrSetupIncomplete is returned when enrollment confirmation has no
	// pending secret or the session still awaits enrollment.
	ErrSetupIncomplete = errors.New("mfa setup incomplete")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrAccountNotFound = errors.New("account not found")

	ErrDeliveryUnavailable = errors.New("email delivery unavailable")
	ErrBackendUnavailable  = errors.New("mfa backend unavailable")
	ErrEngineNotReady      = errors.New("engine not initialized")
)

// VerificationError is returned by every failed second-factor check made
// through a challenge or enrollment confirmation. Its message never varies;
// callers branch on the cause with errors.Is or on Code.
type VerificationError struct {
	Method Method
	Cause  error
	// RetryAfter is set when the failure installed or hit a lockout.
	RetryAfter time.Duration
}

func (e *VerificationError) Error() string {
	return ErrVerificationFailed.Error()
}

func (e *VerificationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrVerificationFailed}
	}
	return []error{ErrVerificationFailed, e.Cause}
}

// Code is a stable machine-readable reason for UI branching.
func (e *VerificationError) Code() string {
	switch {
	case errors.Is(e.Cause, ErrVerificationLocked):
		return "locked"
	case errors.Is(e.Cause, ErrAttemptsExceeded):
		return "attempts_exceeded"
	case errors.Is(e.Cause, ErrOTPExpired):
		return "otp_expired"
	case errors.Is(e.Cause, ErrOTPAlreadyUsed):
		return "otp_already_used"
	case errors.Is(e.Cause, ErrOTPInvalid):
		return "otp_invalid"
	case errors.Is(e.Cause, ErrTOTPInvalid):
		return "totp_invalid"
	case errors.Is(e.Cause, ErrBackupCodeInvalid):
		return "backup_code_invalid"
	case errors.Is(e.Cause, ErrMethodNotSelected):
		return "method_not_selected"
	case errors.Is(e.Cause, ErrMethodUnavailable):
		return "method_unavailable"
	default:
		return "invalid_code"
	}
}

func verificationFailure(method Method, cause error) *VerificationError {
	return &VerificationError{Method: method, Cause: cause}
}
