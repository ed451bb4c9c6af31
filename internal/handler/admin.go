package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/garment-booking/internal/api"
	"github.com/iliyamo/garment-booking/internal/model"
	"github.com/iliyamo/garment-booking/internal/repository"
)

// AdminHandler lets admins approve and suspend accounts.
type AdminHandler struct {
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
}

func NewAdminHandler(u *repository.UserRepo, t *repository.TokenRepo) *AdminHandler {
	return &AdminHandler{Users: u, Tokens: t}
}

// ListUsers handles GET /v1/admin/users?status=.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	st := model.AccountStatus(c.QueryParam("status"))
	if st != "" && !st.Valid() {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "unknown status")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	users, err := h.Users.List(ctx, st)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

// SetUserStatus handles PATCH /v1/admin/users/:id/status. Suspending an
// account also revokes its refresh tokens; access tokens lapse on expiry.
func (h *AdminHandler) SetUserStatus(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "invalid user id")
	}
	var req struct {
		Status model.AccountStatus `json:"status"`
	}
	if err := c.Bind(&req); err != nil || !req.Status.Valid() {
		return errorJSON(c, http.StatusBadRequest, api.CodeInvalid, "status must be active, pending or suspended")
	}
	if self, err := getUserID(c); err == nil && self == id {
		return errorJSON(c, http.StatusConflict, api.CodeConflict, "admins cannot change their own status")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Users.SetStatus(ctx, id, req.Status); err != nil {
		return fail(c, err)
	}
	if req.Status == model.StatusSuspended {
		if err := h.Tokens.RevokeAllForUser(ctx, id); err != nil {
			log.Printf("[admin] revoke tokens for user %d: %v", id, err)
		}
	}
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, u)
}
