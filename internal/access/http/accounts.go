package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/handihub/trustgate/internal/access/domain"
	"github.com/handihub/trustgate/internal/access/service"
	"github.com/handihub/trustgate/pkg/httpx"
	"github.com/handihub/trustgate/pkg/slogx"
)

// RegisterHandler handles POST /v1/accounts and, behind the admin gate,
// POST /v1/admin/accounts.
type RegisterHandler struct {
	Accounts *service.AccountService

	// AllowAdmin permits creating admin accounts. Only the admin-gated route
	// sets this; self-registration is limited to customer and provider.
	AllowAdmin bool
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"` // defaults to customer
}

type registerResponse struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

// weakPasswordResponse extends the standard error envelope with the policy
// verdict so clients can render per-rule feedback.
type weakPasswordResponse struct {
	Error            string                `json:"error"`
	ErrorDescription string                `json:"error_description"`
	Password         service.PasswordCheck `json:"password"`
}

func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "Invalid JSON body.")
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "email and password are required.")
		return
	}

	if req.Role == "" {
		req.Role = domain.RoleCustomer.String()
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_role", "Unknown account role.")
		return
	}
	if role == domain.RoleAdmin && !h.AllowAdmin {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_role", "This role cannot be self-registered.")
		return
	}

	account, err := h.Accounts.Register(ctx, req.Email, req.Password, role)
	if err != nil {
		var weak *service.WeakPasswordError
		switch {
		case errors.As(err, &weak):
			httpx.WriteJSON(w, http.StatusBadRequest, weakPasswordResponse{
				Error:            "weak_password",
				ErrorDescription: "Password does not meet the policy.",
				Password:         weak.Check,
			})
		case errors.Is(err, service.ErrEmailTaken):
			httpx.WriteError(w, http.StatusConflict,
				"email_taken", "An account with this email already exists.")
		default:
			log.Error("failed to register account", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError,
				"server_error", "Something went wrong.")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, registerResponse{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role.String(),
	})
}
