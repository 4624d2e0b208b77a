// Package portfolio implements the org-scoped business operations: projects,
// tags, members and the activity feed. Role gating happens at the HTTP layer
// via declarative guards; the resource-level rules that depend on the fetched
// row (org scoping, owner-or-admin deletion) live here.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"portico.dev/internal/activity"
	"portico.dev/internal/auth"
	"portico.dev/internal/ids"
	"portico.dev/internal/store"
)

const (
	minTitleLength     = 2
	maxTitleLength     = 200
	maxGithubURLLength = 500
	maxTagNameLength   = 50
)

// ProjectInput carries the fields for project creation.
type ProjectInput struct {
	Title       string
	Description string
	GithubURL   string
	IsPublic    bool
	TagNames    []string
}

// ProjectPatch carries a partial update; nil fields stay untouched.
type ProjectPatch struct {
	Title       *string
	Description *string
	GithubURL   *string
	IsPublic    *bool
	TagNames    *[]string
}

// Service executes portfolio operations on behalf of an authenticated actor.
type Service struct {
	store    store.Store
	recorder *activity.Recorder
}

// NewService constructs the portfolio service.
func NewService(st store.Store, recorder *activity.Recorder) (*Service, error) {
	if st == nil {
		return nil, errors.New("portfolio: store is required")
	}
	return &Service{store: st, recorder: recorder}, nil
}

// CreateProject validates input, resolves tags and writes the project owned by
// the actor.
func (s *Service) CreateProject(ctx context.Context, actor auth.Principal, in ProjectInput) (*store.Project, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", store.ErrInvalidInput)
	}
	if len(in.GithubURL) > maxGithubURLLength {
		return nil, fmt.Errorf("%w: github_url must be at most %d characters", store.ErrInvalidInput, maxGithubURLLength)
	}
	tags, err := s.resolveTags(ctx, actor.OrgID, in.TagNames)
	if err != nil {
		return nil, err
	}

	project := &store.Project{
		ID:          ids.New(),
		OrgID:       actor.OrgID,
		OwnerID:     actor.UserID,
		Title:       title,
		Description: description,
		GithubURL:   in.GithubURL,
		IsPublic:    in.IsPublic,
		Tags:        tags,
	}
	if err := s.store.Projects().Create(ctx, project); err != nil {
		return nil, err
	}
	s.record(ctx, actor, "project.create", "project", project.ID)
	return project, nil
}

// ListProjects returns the actor's organization's projects after clamping the
// filter to valid bounds.
func (s *Service) ListProjects(ctx context.Context, actor auth.Principal, f store.ProjectFilter) ([]*store.Project, error) {
	if f.Limit <= 0 {
		f.Limit = 10
	}
	if f.Limit > 50 {
		return nil, fmt.Errorf("%w: limit must be between 1 and 50", store.ErrInvalidInput)
	}
	if f.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must be non-negative", store.ErrInvalidInput)
	}
	switch f.Sort {
	case "":
		f.Sort = store.SortNewest
	case store.SortNewest, store.SortOldest, store.SortTitleAsc, store.SortTitleDesc:
	default:
		return nil, fmt.Errorf("%w: unsupported sort %q", store.ErrInvalidInput, f.Sort)
	}
	if f.Tag != "" {
		f.Tag = strings.ToLower(strings.TrimSpace(f.Tag))
	}
	return s.store.Projects().List(ctx, actor.OrgID, f)
}

// GetProject fetches one project in the actor's organization.
func (s *Service) GetProject(ctx context.Context, actor auth.Principal, id string) (*store.Project, error) {
	return s.store.Projects().Find(ctx, actor.OrgID, id)
}

// UpdateProject applies a partial update. The org-scoped fetch runs first so a
// cross-org id is NotFound before any role consideration; viewers are then
// rejected with Forbidden.
func (s *Service) UpdateProject(ctx context.Context, actor auth.Principal, id string, patch ProjectPatch) (*store.Project, error) {
	project, err := s.store.Projects().Find(ctx, actor.OrgID, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == auth.RoleViewer {
		return nil, auth.ErrForbidden
	}

	if patch.Title != nil {
		title, err := validateTitle(*patch.Title)
		if err != nil {
			return nil, err
		}
		project.Title = title
	}
	if patch.Description != nil {
		project.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.GithubURL != nil {
		if len(*patch.GithubURL) > maxGithubURLLength {
			return nil, fmt.Errorf("%w: github_url must be at most %d characters", store.ErrInvalidInput, maxGithubURLLength)
		}
		project.GithubURL = *patch.GithubURL
	}
	if patch.IsPublic != nil {
		project.IsPublic = *patch.IsPublic
	}
	if patch.TagNames != nil {
		tags, err := s.resolveTags(ctx, actor.OrgID, *patch.TagNames)
		if err != nil {
			return nil, err
		}
		project.Tags = tags
	}

	if err := s.store.Projects().Update(ctx, project); err != nil {
		return nil, err
	}
	s.record(ctx, actor, "project.update", "project", project.ID)
	return project, nil
}

// DeleteProject removes a project. Admins may delete any project in their
// organization; editors only their own.
func (s *Service) DeleteProject(ctx context.Context, actor auth.Principal, id string) error {
	project, err := s.store.Projects().Find(ctx, actor.OrgID, id)
	if err != nil {
		return err
	}
	if actor.Role != auth.RoleAdmin && project.OwnerID != actor.UserID {
		return auth.ErrForbidden
	}
	if err := s.store.Projects().Delete(ctx, actor.OrgID, id); err != nil {
		return err
	}
	s.record(ctx, actor, "project.delete", "project", id)
	return nil
}

// CreateTag creates an org-scoped tag with a normalized name.
func (s *Service) CreateTag(ctx context.Context, actor auth.Principal, name string) (*store.Tag, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || len(name) > maxTagNameLength {
		return nil, fmt.Errorf("%w: tag name must be 1-%d characters", store.ErrInvalidInput, maxTagNameLength)
	}
	tag := &store.Tag{ID: ids.New(), OrgID: actor.OrgID, Name: name}
	if err := s.store.Tags().Create(ctx, tag); err != nil {
		return nil, err
	}
	s.record(ctx, actor, "tag.create", "tag", tag.ID)
	return tag, nil
}

// ListTags returns the organization's tags sorted by name.
func (s *Service) ListTags(ctx context.Context, actor auth.Principal) ([]*store.Tag, error) {
	return s.store.Tags().ListByOrg(ctx, actor.OrgID)
}

// CreateUser adds a member to the actor's organization. Email uniqueness is
// global: an address used anywhere, in any organization, is taken.
func (s *Service) CreateUser(ctx context.Context, actor auth.Principal, email, password, role string) (*store.User, error) {
	normalized, err := auth.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, err
	}
	parsedRole, err := auth.ParseRole(role)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &store.User{
		ID:           ids.New(),
		OrgID:        actor.OrgID,
		Email:        normalized,
		PasswordHash: hash,
		Role:         string(parsedRole),
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, err
	}
	s.record(ctx, actor, "user.create", "user", user.ID)
	return user, nil
}

// ListUsers returns the members of the actor's organization.
func (s *Service) ListUsers(ctx context.Context, actor auth.Principal) ([]*store.User, error) {
	return s.store.Users().ListByOrg(ctx, actor.OrgID)
}

// MyOrganization returns the actor's organization row.
func (s *Service) MyOrganization(ctx context.Context, actor auth.Principal) (*store.Organization, error) {
	return s.store.Organizations().Find(ctx, actor.OrgID)
}

// ListActivity returns the newest-first audit trail for the actor's
// organization.
func (s *Service) ListActivity(ctx context.Context, actor auth.Principal, limit, offset int) ([]*store.ActivityEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		return nil, fmt.Errorf("%w: limit must be between 1 and 100", store.ErrInvalidInput)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must be non-negative", store.ErrInvalidInput)
	}
	return s.store.Activity().ListByOrg(ctx, actor.OrgID, limit, offset)
}

func (s *Service) resolveTags(ctx context.Context, orgID string, names []string) ([]store.Tag, error) {
	normalized := normalizeTagNames(names)
	for _, name := range normalized {
		if len(name) > maxTagNameLength {
			return nil, fmt.Errorf("%w: tag name must be 1-%d characters", store.ErrInvalidInput, maxTagNameLength)
		}
	}
	if len(normalized) == 0 {
		return []store.Tag{}, nil
	}
	return s.store.Tags().Upsert(ctx, orgID, normalized)
}

func (s *Service) record(ctx context.Context, actor auth.Principal, action, entity, entityID string) {
	if s.recorder != nil {
		s.recorder.Record(ctx, actor, action, entity, entityID)
	}
}

func validateTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if len(title) < minTitleLength || len(title) > maxTitleLength {
		return "", fmt.Errorf("%w: title must be %d-%d characters", store.ErrInvalidInput, minTitleLength, maxTitleLength)
	}
	return title, nil
}

func normalizeTagNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	var out []string
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
