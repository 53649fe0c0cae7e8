package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parisxmas/OxiDB/OxiForms/internal/auth"
	"github.com/parisxmas/OxiDB/OxiForms/internal/service"
)

// AdminHandler serves the super admin's approval endpoints.
type AdminHandler struct {
	svc *service.AdminService
}

func NewAdminHandler(svc *service.AdminService) *AdminHandler {
	return &AdminHandler{svc: svc}
}

func (h *AdminHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListPending(r.Context(), auth.Principal(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, responses(users))
}

func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Approve(r.Context(), auth.Principal(r.Context()), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user.ToResponse())
}

func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Reject(r.Context(), auth.Principal(r.Context()), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user.ToResponse())
}
