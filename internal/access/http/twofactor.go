package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/handihub/trustgate/internal/access/service"
	"github.com/handihub/trustgate/pkg/httpx"
	"github.com/handihub/trustgate/pkg/slogx"
)

// StepupHeader carries the verification code for step-up-gated routes.
const StepupHeader = "X-Stepup-Code"

// TwoFactorHandler handles the /v1/2fa endpoints. All routes require an
// authenticated principal; the account being changed is always the caller's
// own.
type TwoFactorHandler struct {
	TwoFactor *service.TwoFactorService
}

type codeRequest struct {
	Code string `json:"code"`
}

type backupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

type verifyResponse struct {
	Verified bool   `json:"verified"`
	Method   string `json:"method,omitempty"` // "otp" or "bkp"
}

// HandleEnroll handles POST /v1/2fa/enroll. Returns the secret, provisioning
// URI and QR image; shown once and never retrievable again.
func (h *TwoFactorHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	principal, ok := httpx.PrincipalFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_token", "Authentication required.")
		return
	}

	resp, err := h.TwoFactor.StartEnrollment(ctx, principal.AccountID)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyEnabled) {
			httpx.WriteError(w, http.StatusBadRequest,
				"already_enabled", "Two-factor is already enabled.")
			return
		}
		log.Error("failed to start enrollment", "account_id", principal.AccountID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError,
			"server_error", "Something went wrong.")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleConfirm handles POST /v1/2fa/confirm. A valid first code flips the
// account to enabled and returns the one-time backup code set.
func (h *TwoFactorHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	principal, ok := httpx.PrincipalFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_token", "Authentication required.")
		return
	}

	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "Invalid JSON body.")
		return
	}

	codes, err := h.TwoFactor.ConfirmEnrollment(ctx, principal.AccountID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCode):
			httpx.WriteError(w, http.StatusBadRequest,
				"invalid_code", "Verification code is incorrect.")
		case errors.Is(err, service.ErrNotEnrolled):
			httpx.WriteError(w, http.StatusBadRequest,
				"not_enrolled", "Start enrollment before confirming.")
		case errors.Is(err, service.ErrAlreadyEnabled):
			httpx.WriteError(w, http.StatusBadRequest,
				"already_enabled", "Two-factor is already enabled.")
		default:
			log.Error("failed to confirm enrollment", "account_id", principal.AccountID, "err", err)
			httpx.WriteError(w, http.StatusInternalServerError,
				"server_error", "Something went wrong.")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, backupCodesResponse{BackupCodes: codes})
}

// HandleVerify handles POST /v1/2fa/verify, the step-up check other services
// call before allowing a sensitive action. Failures are deliberately uniform.
func (h *TwoFactorHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	principal, ok := httpx.PrincipalFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_token", "Authentication required.")
		return
	}

	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "Invalid JSON body.")
		return
	}

	method, err := h.TwoFactor.VerifyStepUp(ctx, principal.AccountID, req.Code)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCode) || errors.Is(err, service.ErrNotEnabled) {
			// one message for both; don't reveal enrollment state to a
			// stolen session
			httpx.WriteError(w, http.StatusForbidden,
				"verification_failed", "Verification failed.")
			return
		}
		log.Error("step-up verification failed", "account_id", principal.AccountID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError,
			"server_error", "Something went wrong.")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, verifyResponse{Verified: true, Method: method})
}

// HandleRegenerate handles POST /v1/2fa/backup-codes. Step-up gated via the
// X-Stepup-Code header; replaces the whole backup code set.
func (h *TwoFactorHandler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	principal, ok := httpx.PrincipalFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_token", "Authentication required.")
		return
	}

	code := r.Header.Get(StepupHeader)
	if code == "" {
		httpx.WriteError(w, http.StatusForbidden,
			"stepup_required", "This action requires a verification code.")
		return
	}

	codes, err := h.TwoFactor.RegenerateBackupCodes(ctx, principal.AccountID, code)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCode) || errors.Is(err, service.ErrNotEnabled) {
			httpx.WriteError(w, http.StatusForbidden,
				"verification_failed", "Verification failed.")
			return
		}
		log.Error("failed to regenerate backup codes", "account_id", principal.AccountID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError,
			"server_error", "Something went wrong.")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, backupCodesResponse{BackupCodes: codes})
}

// HandleDisable handles DELETE /v1/2fa. Step-up gated; disabling an account
// that was never enabled succeeds without a code, since there is nothing to
// protect.
func (h *TwoFactorHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	principal, ok := httpx.PrincipalFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_token", "Authentication required.")
		return
	}

	code := r.Header.Get(StepupHeader)
	_, err := h.TwoFactor.VerifyStepUp(ctx, principal.AccountID, code)
	switch {
	case err == nil:
		// verified, proceed
	case errors.Is(err, service.ErrNotEnabled):
		// nothing enabled; disable stays an idempotent no-op
	case errors.Is(err, service.ErrInvalidCode):
		httpx.WriteError(w, http.StatusForbidden,
			"verification_failed", "Verification failed.")
		return
	default:
		log.Error("step-up verification failed", "account_id", principal.AccountID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError,
			"server_error", "Something went wrong.")
		return
	}

	if err := h.TwoFactor.Disable(ctx, principal.AccountID); err != nil {
		log.Error("failed to disable two-factor", "account_id", principal.AccountID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError,
			"server_error", "Something went wrong.")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
