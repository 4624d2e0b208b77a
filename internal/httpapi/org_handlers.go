package httpapi

import (
	"net/http"
	"time"
)

type organizationResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type activityResponse struct {
	ID          string    `json:"id"`
	ActorUserID string    `json:"actor_user_id"`
	Action      string    `json:"action"`
	Entity      string    `json:"entity"`
	EntityID    string    `json:"entity_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func (a *API) handleMyOrganization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	org, err := a.portfolio.MyOrganization(r.Context(), principal)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, organizationResponse{
		ID:        org.ID,
		Name:      org.Name,
		CreatedAt: org.CreatedAt,
	})
}

func (a *API) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := requireRole(w, r, canManageUsers)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, err := intQuery(q.Get("limit"))
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "limit must be an integer")
		return
	}
	offset, err := intQuery(q.Get("offset"))
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "offset must be an integer")
		return
	}
	entries, err := a.portfolio.ListActivity(r.Context(), principal, limit, offset)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	out := make([]activityResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, activityResponse{
			ID:          e.ID,
			ActorUserID: e.ActorUserID,
			Action:      e.Action,
			Entity:      e.Entity,
			EntityID:    e.EntityID,
			CreatedAt:   e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": out})
}
