package httpapi

import (
	"net/http"
	"time"

	goMFA "github.com/MrEthical07/goMFA"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type challengeResponse struct {
	MFARequired    bool      `json:"mfaRequired"`
	ChallengeToken string    `json:"challengeToken"`
	UserID         string    `json:"userId"`
	Email          string    `json:"email"`
	MFATOTP        bool      `json:"mfaTotp"`
	MFAEmail       bool      `json:"mfaEmail"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

type setupRequiredResponse struct {
	MFASetupRequired bool     `json:"mfaSetupRequired"`
	User             userView `json:"user"`
}

type userResponse struct {
	User    userView     `json:"user"`
	Session *sessionView `json:"session,omitempty"`
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.engine.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	switch res.Outcome {
	case goMFA.OutcomeChallengeIssued:
		ch := res.Challenge
		writeJSON(w, http.StatusOK, challengeResponse{
			MFARequired:    true,
			ChallengeToken: ch.Token,
			UserID:         ch.UserID,
			Email:          ch.Email,
			MFATOTP:        ch.Methods.TOTP,
			MFAEmail:       ch.Methods.Email,
			ExpiresAt:      ch.ExpiresAt.UTC(),
		})
	case goMFA.OutcomeSetupRequired:
		h.setSessionCookie(w, res.Session)
		writeJSON(w, http.StatusOK, setupRequiredResponse{
			MFASetupRequired: true,
			User:             newUserView(res.Account),
		})
	default:
		h.setSessionCookie(w, res.Session)
		writeJSON(w, http.StatusOK, userResponse{User: newUserView(res.Account)})
	}
}

type challengeRequest struct {
	ChallengeToken string `json:"challengeToken"`
	Method         string `json:"method"`
	Code           string `json:"code"`
	OTP            string `json:"otp"`
}

type verifyResponse struct {
	User                 userView `json:"user"`
	Method               string   `json:"method"`
	UsedBackupCode       bool     `json:"usedBackupCode,omitempty"`
	RemainingBackupCodes *int     `json:"remainingBackupCodes,omitempty"`
}

type challengeStatusResponse struct {
	OK                bool      `json:"ok"`
	State             string    `json:"state"`
	Selected          string    `json:"selected,omitempty"`
	EmailSent         bool      `json:"emailSent"`
	RemainingAttempts int       `json:"remainingAttempts"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

func newChallengeStatus(info *goMFA.ChallengeInfo) challengeStatusResponse {
	return challengeStatusResponse{
		OK:                true,
		State:             info.State.String(),
		Selected:          string(info.Selected),
		EmailSent:         info.EmailSent,
		RemainingAttempts: info.RemainingAttempts,
		ExpiresAt:         info.ExpiresAt.UTC(),
	}
}

func (h *handler) loginMFA(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	attempt, err := goMFA.ParseVerificationAttempt(req.Method, req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.completeChallenge(w, r, req.ChallengeToken, attempt)
}

func (h *handler) verifyLoginOTP(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.completeChallenge(w, r, req.ChallengeToken, goMFA.EmailAttempt{OTP: req.OTP})
}

func (h *handler) completeChallenge(w http.ResponseWriter, r *http.Request, token string, attempt goMFA.VerificationAttempt) {
	res, err := h.engine.Verify(r.Context(), token, attempt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.setSessionCookie(w, res.Session)
	out := verifyResponse{
		User:   newUserView(res.Account),
		Method: string(res.Method),
	}
	if res.UsedBackupCode {
		remaining := res.RemainingBackupCodes
		out.UsedBackupCode = true
		out.RemainingBackupCodes = &remaining
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) loginMethod(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	method, ok := goMFA.ParseMethod(req.Method)
	if !ok {
		h.writeError(w, r, goMFA.ErrMethodUnavailable)
		return
	}
	info, err := h.engine.SelectMethod(r.Context(), req.ChallengeToken, method)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newChallengeStatus(info))
}

func (h *handler) loginStatus(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	info, err := h.engine.ChallengeStatus(r.Context(), req.ChallengeToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newChallengeStatus(info))
}

func (h *handler) loginCancel(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.engine.Cancel(r.Context(), req.ChallengeToken); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// sendLoginOTP never returns the code.
func (h *handler) sendLoginOTP(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.engine.ResendEmailOTP(r.Context(), req.ChallengeToken); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
