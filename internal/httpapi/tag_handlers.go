package httpapi

import (
	"fmt"
	"net/http"
)

type createTagRequest struct {
	Name string `json:"name"`
}

func (a *API) handleTags(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		principal, ok := requirePrincipal(w, r)
		if !ok {
			return
		}
		tags, err := a.portfolio.ListTags(r.Context(), principal)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		out := make([]tagResponse, 0, len(tags))
		for _, t := range tags {
			out = append(out, tagResponse{ID: t.ID, Name: t.Name})
		}
		writeJSON(w, http.StatusOK, map[string]any{"tags": out})

	case http.MethodPost:
		principal, ok := requireRole(w, r, canWriteProjects)
		if !ok {
			return
		}
		var req createTagRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		tag, err := a.portfolio.CreateTag(r.Context(), principal, req.Name)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/tags/%s", tag.ID))
		writeJSON(w, http.StatusCreated, tagResponse{ID: tag.ID, Name: tag.Name})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}
