package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-auth-service/internal/model"
	"go-auth-service/internal/service"
	"go-auth-service/pkg/apierror"
)

// UserHandler exposes the administrative account endpoints.
type UserHandler struct {
	credentials *service.CredentialService
	auth        *service.AuthService
}

func NewUserHandler(credentials *service.CredentialService, auth *service.AuthService) *UserHandler {
	return &UserHandler{credentials: credentials, auth: auth}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.credentials.ListUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	profiles := make([]model.Profile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, u.Profile())
	}

	writeSuccess(w, http.StatusOK, profiles, nil)
}

func (h *UserHandler) AssignRoles(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.AssignRolesRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	user, err := h.credentials.AssignRoles(r.Context(), chi.URLParam(r, "user_id"), payload.Roles, requestMeta(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user.Profile(), nil)
}

func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Deactivate(r.Context(), chi.URLParam(r, "user_id"), requestMeta(r)); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"deactivated": true}, nil)
}

func (h *UserHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	if err := h.credentials.Unlock(r.Context(), chi.URLParam(r, "user_id"), requestMeta(r)); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"unlocked": true}, nil)
}
