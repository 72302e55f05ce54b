package goMFA

import (
	"strings"
	"time"

	"github.com/MrEthical07/goMFA/session"
	"github.com/MrEthical07/goMFA/store"
)

// Account is the persisted identity row with its MFA flags.
type Account = store.Account

// Role is the coarse account role.
type Role = store.Role

const (
	RoleAdmin    = store.RoleAdmin
	RoleMerchant = store.RoleMerchant
)

// Session is the server-side session referenced by the session cookie.
//
//	Docs: session package
type Session = session.Session

// Impersonation binds an admin session to a target account.
type Impersonation = session.Impersonation

// EnrollmentState is derived from the account flags on every read. It is
// never stored.
type EnrollmentState uint8

const (
	// Unenrolled accounts have no second factor and are not required to.
	Unenrolled EnrollmentState = iota
	// SetupPending accounts must enroll before any non-setup operation.
	SetupPending
	// Enrolled accounts have at least one channel enabled.
	Enrolled
)

func (s EnrollmentState) String() string {
	switch s {
	case SetupPending:
		return "setup_pending"
	case Enrolled:
		return "enrolled"
	default:
		return "unenrolled"
	}
}

// EnrollmentStateOf derives the enrollment state of acc.
func EnrollmentStateOf(acc Account) EnrollmentState {
	switch {
	case acc.MFATOTPEnabled || acc.MFAEmailEnabled:
		return Enrolled
	case acc.MFARequired:
		return SetupPending
	default:
		return Unenrolled
	}
}

// Method names a second-factor channel.
type Method string

const (
	MethodTOTP   Method = "totp"
	MethodBackup Method = "backup"
	MethodEmail  Method = "email"
)

// ParseMethod accepts the wire names of the three methods.
func ParseMethod(s string) (Method, bool) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case MethodTOTP:
		return MethodTOTP, true
	case MethodBackup:
		return MethodBackup, true
	case MethodEmail:
		return MethodEmail, true
	default:
		return "", false
	}
}

// Methods is the set of channels a challenge may be completed with. Backup
// codes ride on the TOTP channel.
type Methods struct {
	TOTP  bool
	Email bool
}

// Allows reports whether m can be used against this set.
func (ms Methods) Allows(m Method) bool {
	switch m {
	case MethodTOTP, MethodBackup:
		return ms.TOTP
	case MethodEmail:
		return ms.Email
	default:
		return false
	}
}

func methodsOf(acc Account) Methods {
	return Methods{TOTP: acc.MFATOTPEnabled, Email: acc.MFAEmailEnabled}
}

// AuthOutcome is the result kind of a successful password check.
type AuthOutcome uint8

const (
	// OutcomeAuthenticated carries a fully verified session.
	OutcomeAuthenticated AuthOutcome = iota + 1
	// OutcomeChallengeIssued carries a challenge that must be verified.
	OutcomeChallengeIssued
	// OutcomeSetupRequired carries a setup-only session.
	OutcomeSetupRequired
)

func (o AuthOutcome) String() string {
	switch o {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeChallengeIssued:
		return "challenge_issued"
	case OutcomeSetupRequired:
		return "setup_required"
	default:
		return "unknown"
	}
}

// AuthResult is returned by Engine.Authenticate. Exactly one of Session or
// Challenge is set, depending on Outcome.
type AuthResult struct {
	Outcome   AuthOutcome
	Account   Account
	Session   *Session
	Challenge *Challenge
}

// Challenge is handed to the client after a correct password when a second
// factor is configured. Token is the only thing the client sends back.
type Challenge struct {
	Token     string
	UserID    string
	Email     string
	Methods   Methods
	ExpiresAt time.Time
}

// ChallengeState is the lifecycle of a pending login challenge.
type ChallengeState uint8

const (
	ChallengeAwaitingMethod ChallengeState = iota + 1
	ChallengeAwaitingCode
	ChallengeVerified
	ChallengeCancelled
)

func (s ChallengeState) String() string {
	switch s {
	case ChallengeAwaitingMethod:
		return "awaiting_method_selection"
	case ChallengeAwaitingCode:
		return "awaiting_code"
	case ChallengeVerified:
		return "verified"
	case ChallengeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ChallengeInfo is the client-visible view of a live challenge.
type ChallengeInfo struct {
	State             ChallengeState
	Methods           Methods
	Selected          Method
	EmailSent         bool
	RemainingAttempts int
	ExpiresAt         time.Time
}

// VerificationAttempt is one submitted second-factor code, tagged by method.
// The set of implementations is closed.
type VerificationAttempt interface {
	Method() Method
	code() string
}

// TOTPAttempt carries an authenticator app code.
type TOTPAttempt struct{ Code string }

// BackupAttempt carries a single-use recovery code.
type BackupAttempt struct{ Code string }

// EmailAttempt carries the code sent by email for this challenge.
type EmailAttempt struct{ OTP string }

func (TOTPAttempt) Method() Method   { return MethodTOTP }
func (BackupAttempt) Method() Method { return MethodBackup }
func (EmailAttempt) Method() Method  { return MethodEmail }

func (a TOTPAttempt) code() string   { return a.Code }
func (a BackupAttempt) code() string { return a.Code }
func (a EmailAttempt) code() string  { return a.OTP }

// ParseVerificationAttempt builds the attempt for a wire method name.
func ParseVerificationAttempt(method, code string) (VerificationAttempt, error) {
	m, ok := ParseMethod(method)
	if !ok {
		return nil, ErrMethodUnavailable
	}
	switch m {
	case MethodTOTP:
		return TOTPAttempt{Code: code}, nil
	case MethodBackup:
		return BackupAttempt{Code: code}, nil
	default:
		return EmailAttempt{OTP: code}, nil
	}
}

// VerifyResult is returned by a successful Engine.Verify.
type VerifyResult struct {
	Session              *Session
	Account              Account
	Method               Method
	UsedBackupCode       bool
	RemainingBackupCodes int
}

// TOTPSetup is shown to the user once while enrolling an authenticator app.
type TOTPSetup struct {
	Secret          string
	ProvisioningURI string
	ExpiresAt       time.Time
}
