package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parisxmas/OxiDB/OxiForms/internal/auth"
	"github.com/parisxmas/OxiDB/OxiForms/internal/service"
)

type FormHandler struct {
	svc *service.FormService
}

func NewFormHandler(svc *service.FormService) *FormHandler {
	return &FormHandler{svc: svc}
}

func (h *FormHandler) List(w http.ResponseWriter, r *http.Request) {
	forms, err := h.svc.List(r.Context(), auth.Principal(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forms)
}

func (h *FormHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.FormInput
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	form, err := h.svc.Create(r.Context(), auth.Principal(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, form)
}

func (h *FormHandler) Get(w http.ResponseWriter, r *http.Request) {
	form, err := h.svc.Get(r.Context(), auth.Principal(r.Context()), chi.URLParam(r, "formId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (h *FormHandler) Public(w http.ResponseWriter, r *http.Request) {
	form, err := h.svc.GetPublic(r.Context(), chi.URLParam(r, "publicId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"publicId":    form.PublicID,
		"title":       form.Title,
		"description": form.Description,
		"fields":      form.Schema,
	})
}

func (h *FormHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.FormInput
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	form, err := h.svc.Update(r.Context(), auth.Principal(r.Context()), chi.URLParam(r, "formId"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (h *FormHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "formId")
	if err := h.svc.Delete(r.Context(), auth.Principal(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
