package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"portico.dev/internal/auth"
	"portico.dev/internal/store"
)

var canManageUsers = auth.RequireRole(auth.RoleAdmin)

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *store.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		principal, ok := requireRole(w, r, canManageUsers)
		if !ok {
			return
		}
		users, err := a.portfolio.ListUsers(r.Context(), principal)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		out := make([]userResponse, 0, len(users))
		for _, u := range users {
			out = append(out, toUserResponse(u))
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": out})

	case http.MethodPost:
		principal, ok := requireRole(w, r, canManageUsers)
		if !ok {
			return
		}
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.portfolio.CreateUser(r.Context(), principal, req.Email, req.Password, req.Role)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
		writeJSON(w, http.StatusCreated, toUserResponse(user))

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}
