package http

import (
	"net/http"

	"github.com/handihub/trustgate/internal/access/store"
	"github.com/handihub/trustgate/pkg/httpx"
	"github.com/handihub/trustgate/pkg/slogx"
)

// UserInfoHandler handles GET /v1/userinfo, the authenticated principal view.
type UserInfoHandler struct {
	Store store.Store
}

type userInfoResponse struct {
	AccountID            string   `json:"account_id"`
	Email                string   `json:"email"`
	Role                 string   `json:"role"`
	AMR                  []string `json:"amr"`
	TwoFactor            string   `json:"two_factor"` // disabled, pending or enabled
	BackupCodesRemaining int      `json:"backup_codes_remaining"`
}

func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	principal, ok := httpx.PrincipalFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_token", "Authentication required.")
		return
	}

	account, err := h.Store.Accounts().GetAccountByID(ctx, principal.AccountID)
	if err != nil {
		log.Warn("failed to load account", "account_id", principal.AccountID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError,
			"server_error", "Something went wrong.")
		return
	}

	remaining, err := h.Store.BackupCodes().CountBackupCodes(ctx, account.ID)
	if err != nil {
		log.Warn("failed to count backup codes", "account_id", account.ID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError,
			"server_error", "Something went wrong.")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, userInfoResponse{
		AccountID:            account.ID,
		Email:                account.Email,
		Role:                 account.Role.String(),
		AMR:                  principal.AMR,
		TwoFactor:            string(account.TwoFactorState()),
		BackupCodesRemaining: remaining,
	})
}
