package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	goMFA "github.com/MrEthical07/goMFA"
)

const maxBodyBytes = 1 << 16

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a bounded JSON body into dst and answers 400 itself on
// failure. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

// writeError maps engine errors onto HTTP. Every second-factor failure
// carries the same message; only the code field differs.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *goMFA.VerificationError
	if errors.As(err, &verr) {
		status := http.StatusUnauthorized
		if verr.Code() == "locked" {
			status = http.StatusTooManyRequests
		}
		setRetryAfter(w, verr.RetryAfter)
		writeJSON(w, status, errorBody{Error: verr.Error(), Code: verr.Code()})
		return
	}

	switch {
	case errors.Is(err, goMFA.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid credentials"})
	case errors.Is(err, goMFA.ErrLoginRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many attempts", Code: "rate_limited"})
	case errors.Is(err, goMFA.ErrChallengeExpired):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "challenge expired", Code: "challenge_expired"})
	case errors.Is(err, goMFA.ErrChallengeInvalid):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid challenge", Code: "challenge_invalid"})
	case errors.Is(err, goMFA.ErrMethodUnavailable):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "verification method unavailable", Code: "method_unavailable"})
	case errors.Is(err, goMFA.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
	case errors.Is(err, goMFA.ErrSetupIncomplete):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "mfa setup incomplete", Code: "setup_incomplete"})
	case errors.Is(err, goMFA.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
	case errors.Is(err, goMFA.ErrAccountNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "account not found"})
	case errors.Is(err, goMFA.ErrDeliveryUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "email delivery unavailable", Code: "delivery_unavailable"})
	case errors.Is(err, goMFA.ErrBackendUnavailable), errors.Is(err, goMFA.ErrEngineNotReady):
		h.logger.Warn("backend unavailable", requestFields(r, err)...)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "service unavailable"})
	default:
		h.logger.Error("unhandled engine error", requestFields(r, err)...)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func requestFields(r *http.Request, err error) []zap.Field {
	return []zap.Field{
		zap.String("request_id", chimw.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}
}

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	if d <= 0 {
		return
	}
	secs := int((d + time.Second - 1) / time.Second)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}

func (h *handler) setSessionCookie(w http.ResponseWriter, sess *goMFA.Session) {
	maxAge := int(time.Until(time.Unix(sess.ExpiresAt, 0)).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.CookieName,
		Value:    sess.ID,
		Path:     h.cookie.CookiePath,
		Domain:   h.cookie.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookie.SecureCookie,
		SameSite: h.cookie.SameSite,
	})
}

func (h *handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.CookieName,
		Value:    "",
		Path:     h.cookie.CookiePath,
		Domain:   h.cookie.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.SecureCookie,
		SameSite: h.cookie.SameSite,
	})
}

// userView is the public shape of an account. Secrets never leave.
type userView struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	Role            string `json:"role"`
	MFATOTPEnabled  bool   `json:"mfaTotpEnabled"`
	MFAEmailEnabled bool   `json:"mfaEmailEnabled"`
	MFARequired     bool   `json:"mfaRequired"`
	EnrollmentState string `json:"enrollmentState"`
}

func newUserView(acc goMFA.Account) userView {
	return userView{
		ID:              acc.ID,
		Email:           acc.Email,
		Role:            string(acc.Role),
		MFATOTPEnabled:  acc.MFATOTPEnabled,
		MFAEmailEnabled: acc.MFAEmailEnabled,
		MFARequired:     acc.MFARequired,
		EnrollmentState: goMFA.EnrollmentStateOf(acc).String(),
	}
}

type sessionView struct {
	MFAVerified   bool               `json:"mfaVerified"`
	SetupPending  bool               `json:"setupPending"`
	ExpiresAt     time.Time          `json:"expiresAt"`
	Impersonation *impersonationView `json:"impersonation,omitempty"`
}

type impersonationView struct {
	AdminID   string    `json:"adminId"`
	TargetID  string    `json:"targetId"`
	StartedAt time.Time `json:"startedAt"`
}

func newSessionView(sess *goMFA.Session) sessionView {
	v := sessionView{
		MFAVerified:  sess.MFAVerified,
		SetupPending: sess.SetupPending,
		ExpiresAt:    time.Unix(sess.ExpiresAt, 0).UTC(),
	}
	if sess.Impersonation != nil {
		v.Impersonation = &impersonationView{
			AdminID:   sess.Impersonation.AdminID,
			TargetID:  sess.Impersonation.TargetID,
			StartedAt: time.Unix(sess.Impersonation.StartedAt, 0).UTC(),
		}
	}
	return v
}
