package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"portico.dev/internal/auth"
	"portico.dev/internal/portfolio"
	"portico.dev/internal/store"
)

var canWriteProjects = auth.RequireRole(auth.RoleAdmin, auth.RoleEditor)

type createProjectRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	GithubURL   string   `json:"github_url"`
	IsPublic    bool     `json:"is_public"`
	Tags        []string `json:"tags"`
}

type updateProjectRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	GithubURL   *string   `json:"github_url"`
	IsPublic    *bool     `json:"is_public"`
	Tags        *[]string `json:"tags"`
}

type tagResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type projectResponse struct {
	ID          string        `json:"id"`
	OwnerID     string        `json:"owner_id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	GithubURL   string        `json:"github_url,omitempty"`
	IsPublic    bool          `json:"is_public"`
	Tags        []tagResponse `json:"tags"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func toProjectResponse(p *store.Project) projectResponse {
	tags := make([]tagResponse, 0, len(p.Tags))
	for _, t := range p.Tags {
		tags = append(tags, tagResponse{ID: t.ID, Name: t.Name})
	}
	return projectResponse{
		ID:          p.ID,
		OwnerID:     p.OwnerID,
		Title:       p.Title,
		Description: p.Description,
		GithubURL:   p.GithubURL,
		IsPublic:    p.IsPublic,
		Tags:        tags,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (a *API) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listProjects(w, r)
	case http.MethodPost:
		a.createProject(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createProject(w http.ResponseWriter, r *http.Request) {
	principal, ok := requireRole(w, r, canWriteProjects)
	if !ok {
		return
	}
	var req createProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	project, err := a.portfolio.CreateProject(r.Context(), principal, portfolio.ProjectInput{
		Title:       req.Title,
		Description: req.Description,
		GithubURL:   req.GithubURL,
		IsPublic:    req.IsPublic,
		TagNames:    req.Tags,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/projects/%s", project.ID))
	writeJSON(w, http.StatusCreated, toProjectResponse(project))
}

func (a *API) listProjects(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	filter, err := projectFilterFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}
	projects, err := a.portfolio.ListProjects(r.Context(), principal, filter)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	out := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, toProjectResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": out})
}

func (a *API) handleProjectResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/projects/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		project, err := a.portfolio.GetProject(r.Context(), principal, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toProjectResponse(project))

	case http.MethodPatch:
		var req updateProjectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		project, err := a.portfolio.UpdateProject(r.Context(), principal, id, portfolio.ProjectPatch{
			Title:       req.Title,
			Description: req.Description,
			GithubURL:   req.GithubURL,
			IsPublic:    req.IsPublic,
			TagNames:    req.Tags,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toProjectResponse(project))

	case http.MethodDelete:
		if err := a.portfolio.DeleteProject(r.Context(), principal, id); err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func projectFilterFromQuery(r *http.Request) (store.ProjectFilter, error) {
	q := r.URL.Query()
	filter := store.ProjectFilter{
		Query: strings.TrimSpace(q.Get("q")),
		Tag:   strings.TrimSpace(q.Get("tag")),
		Sort:  strings.TrimSpace(q.Get("sort")),
	}
	if v := q.Get("public_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return store.ProjectFilter{}, fmt.Errorf("public_only must be a boolean")
		}
		filter.PublicOnly = b
	}
	var err error
	if filter.Limit, err = intQuery(q.Get("limit")); err != nil {
		return store.ProjectFilter{}, fmt.Errorf("limit must be an integer")
	}
	if filter.Offset, err = intQuery(q.Get("offset")); err != nil {
		return store.ProjectFilter{}, fmt.Errorf("offset must be an integer")
	}
	return filter, nil
}

func intQuery(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
