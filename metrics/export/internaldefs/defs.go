package internaldefs

import (
	goMFA "github.com/MrEthical07/goMFA"
)

// CounterDef names one engine counter on the wire.
type CounterDef struct {
	ID   goMFA.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram on the wire.
type HistogramDef struct {
	ID   goMFA.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goMFA.MetricLoginSuccess, Name: "gomfa_login_success_total", Help: "Password checks that succeeded."},
	{ID: goMFA.MetricLoginFailure, Name: "gomfa_login_failure_total", Help: "Password checks that failed."},
	{ID: goMFA.MetricLoginRateLimited, Name: "gomfa_login_rate_limited_total", Help: "Login attempts rejected by the login limiter."},
	{ID: goMFA.MetricChallengeIssued, Name: "gomfa_challenge_issued_total", Help: "Second-factor challenges issued."},
	{ID: goMFA.MetricSetupRequired, Name: "gomfa_setup_required_total", Help: "Logins that produced a setup-only session."},
	{ID: goMFA.MetricMFASuccess, Name: "gomfa_mfa_success_total", Help: "Challenges completed."},
	{ID: goMFA.MetricMFAFailure, Name: "gomfa_mfa_failure_total", Help: "Failed second-factor verifications."},
	{ID: goMFA.MetricMFAAttemptsExceeded, Name: "gomfa_mfa_attempts_exceeded_total", Help: "Challenges destroyed after too many failures."},
	{ID: goMFA.MetricVerificationLocked, Name: "gomfa_verification_locked_total", Help: "Verifications rejected by an active lockout."},
	{ID: goMFA.MetricTOTPSuccess, Name: "gomfa_totp_success_total", Help: "Accepted authenticator codes."},
	{ID: goMFA.MetricTOTPFailure, Name: "gomfa_totp_failure_total", Help: "Rejected authenticator codes."},
	{ID: goMFA.MetricTOTPReplay, Name: "gomfa_totp_replay_total", Help: "Authenticator codes rejected as replays."},
	{ID: goMFA.MetricEmailOTPIssued, Name: "gomfa_email_otp_issued_total", Help: "Email codes issued."},
	{ID: goMFA.MetricEmailOTPVerified, Name: "gomfa_email_otp_verified_total", Help: "Email codes verified."},
	{ID: goMFA.MetricEmailOTPFailed, Name: "gomfa_email_otp_failed_total", Help: "Email code verifications that failed."},
	{ID: goMFA.MetricEmailDeliveryFailed, Name: "gomfa_email_delivery_failed_total", Help: "Email codes the mailer could not hand off."},
	{ID: goMFA.MetricBackupCodeUsed, Name: "gomfa_backup_code_used_total", Help: "Backup codes consumed."},
	{ID: goMFA.MetricBackupCodeFailed, Name: "gomfa_backup_code_failed_total", Help: "Backup code submissions that failed."},
	{ID: goMFA.MetricBackupCodeRegenerated, Name: "gomfa_backup_code_regenerated_total", Help: "Backup code sets generated or regenerated."},
	{ID: goMFA.MetricEnrollmentCompleted, Name: "gomfa_enrollment_completed_total", Help: "Completed second-factor enrollments."},
	{ID: goMFA.MetricSessionCreated, Name: "gomfa_session_created_total", Help: "Sessions created."},
	{ID: goMFA.MetricLogout, Name: "gomfa_logout_total", Help: "Sessions ended by logout."},
	{ID: goMFA.MetricImpersonationStarted, Name: "gomfa_impersonation_started_total", Help: "Impersonations started."},
	{ID: goMFA.MetricImpersonationStopped, Name: "gomfa_impersonation_stopped_total", Help: "Impersonations stopped."},
	{ID: goMFA.MetricImpersonationDenied, Name: "gomfa_impersonation_denied_total", Help: "Impersonation requests denied."},
}

var HistogramDefs = []HistogramDef{
	{ID: goMFA.MetricVerifyLatency, Name: "gomfa_verify_latency_seconds", Help: "Second-factor verification latency."},
}

// HistogramBounds are the upper bounds in seconds of the first seven engine
// buckets. The eighth bucket is +Inf.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets pads or truncates raw to the engine's eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
