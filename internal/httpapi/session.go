package httpapi

import (
	"net/http"

	goMFA "github.com/MrEthical07/goMFA"
	"github.com/MrEthical07/goMFA/middleware"
)

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	h.respondSession(w, r, sess, sess.SubjectID())
	h.engine.RecordAccess(r.Context(), sess, "account")
}

type impersonateRequest struct {
	UserID string `json:"userId"`
}

func (h *handler) impersonate(w http.ResponseWriter, r *http.Request) {
	var req impersonateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, _ := middleware.SessionFromContext(r.Context())
	updated, err := h.engine.Impersonate(r.Context(), sess.ID, req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondSession(w, r, updated, updated.SubjectID())
}

func (h *handler) stopImpersonate(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	updated, err := h.engine.StopImpersonation(r.Context(), sess.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respondSession(w, r, updated, updated.AccountID)
}

func (h *handler) respondSession(w http.ResponseWriter, r *http.Request, sess *goMFA.Session, userID string) {
	acc, err := h.engine.Account(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view := newSessionView(sess)
	writeJSON(w, http.StatusOK, userResponse{User: newUserView(acc), Session: &view})
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.cookie.CookieName); err == nil && cookie.Value != "" {
		if err := h.engine.Logout(r.Context(), cookie.Value); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type healthResponse struct {
	Status         string  `json:"status"`
	RedisAvailable bool    `json:"redisAvailable"`
	RedisLatencyMS float64 `json:"redisLatencyMs"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Health(r.Context())
	out := healthResponse{
		Status:         "ok",
		RedisAvailable: st.RedisAvailable,
		RedisLatencyMS: float64(st.RedisLatency.Microseconds()) / 1000,
	}
	status := http.StatusOK
	if !st.RedisAvailable {
		out.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, out)
}
