package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/goMFA/middleware"
)

type codeRequest struct {
	Code string `json:"code"`
}

type totpSetupResponse struct {
	Secret          string    `json:"secret"`
	ProvisioningURI string    `json:"provisioningUri"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

type backupCodesResponse struct {
	BackupCodes []string `json:"backupCodes"`
}

func (h *handler) setupTOTP(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	setup, err := h.engine.SetupTOTP(r.Context(), sess)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totpSetupResponse{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
		ExpiresAt:       setup.ExpiresAt.UTC(),
	})
}

func (h *handler) confirmTOTP(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, _ := middleware.SessionFromContext(r.Context())
	codes, err := h.engine.ConfirmTOTP(r.Context(), sess, req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, backupCodesResponse{BackupCodes: codes})
}

func (h *handler) setupEmail(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	if err := h.engine.SetupEmail(r.Context(), sess); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *handler) regenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, _ := middleware.SessionFromContext(r.Context())
	codes, err := h.engine.RegenerateBackupCodes(r.Context(), sess, req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, backupCodesResponse{BackupCodes: codes})
}
