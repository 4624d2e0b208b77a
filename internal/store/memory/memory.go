// Package memory provides a mutex-guarded in-memory Store implementation used
// by tests and by the API when no database DSN is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"portico.dev/internal/ids"
	"portico.dev/internal/store"
)

// Store keeps every entity in process memory. All methods are safe for
// concurrent use; the single mutex stands in for the database's constraint
// enforcement, so uniqueness races resolve to exactly one winner here too.
type Store struct {
	mu       sync.RWMutex
	orgs     map[string]*store.Organization
	users    map[string]*store.User
	projects map[string]*store.Project
	tags     map[string]*store.Tag
	activity []*store.ActivityEntry
}

var _ store.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		orgs:     make(map[string]*store.Organization),
		users:    make(map[string]*store.User),
		projects: make(map[string]*store.Project),
		tags:     make(map[string]*store.Tag),
	}
}

func (s *Store) Organizations() store.OrganizationStore { return (*orgStore)(s) }
func (s *Store) Users() store.UserStore                 { return (*userStore)(s) }
func (s *Store) Projects() store.ProjectStore           { return (*projectStore)(s) }
func (s *Store) Tags() store.TagStore                   { return (*tagStore)(s) }
func (s *Store) Activity() store.ActivityStore          { return (*activityStore)(s) }

// CreateOrganizationWithAdmin inserts the organization and its first admin
// under one lock so no partial state is ever observable.
func (s *Store) CreateOrganizationWithAdmin(_ context.Context, org *store.Organization, admin *store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.orgs {
		if existing.Name == org.Name {
			return fmt.Errorf("%w: organization name already exists", store.ErrConflict)
		}
	}
	for _, existing := range s.users {
		if existing.Email == admin.Email {
			return fmt.Errorf("%w: email already registered", store.ErrConflict)
		}
	}
	if org.ID == "" {
		org.ID = ids.New()
	}
	if admin.ID == "" {
		admin.ID = ids.New()
	}
	now := time.Now().UTC()
	org.CreatedAt = now
	admin.CreatedAt = now
	admin.OrgID = org.ID

	orgCopy := *org
	adminCopy := *admin
	s.orgs[org.ID] = &orgCopy
	s.users[admin.ID] = &adminCopy
	return nil
}

// Organization store -------------------------------------------------------

type orgStore Store

func (s *orgStore) Find(_ context.Context, id string) (*store.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (s *orgStore) FindByName(_ context.Context, name string) (*store.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, org := range s.orgs {
		if org.Name == name {
			cp := *org
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

// User store ---------------------------------------------------------------

type userStore Store

func (s *userStore) Create(_ context.Context, u *store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return fmt.Errorf("%w: email already registered", store.ErrConflict)
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.CreatedAt = time.Now().UTC()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *userStore) Find(_ context.Context, id string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *userStore) FindByEmail(_ context.Context, email string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *userStore) ListByOrg(_ context.Context, orgID string) ([]*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*store.User
	for _, u := range s.users {
		if u.OrgID == orgID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Project store ------------------------------------------------------------

type projectStore Store

func (s *projectStore) Create(_ context.Context, p *store.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = ids.New()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := cloneProject(p)
	s.projects[p.ID] = cp
	return nil
}

func (s *projectStore) Find(_ context.Context, orgID, id string) (*store.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok || p.OrgID != orgID {
		return nil, store.ErrNotFound
	}
	return cloneProject(p), nil
}

func (s *projectStore) List(_ context.Context, orgID string, f store.ProjectFilter) ([]*store.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*store.Project
	for _, p := range s.projects {
		if p.OrgID != orgID {
			continue
		}
		if f.PublicOnly && !p.IsPublic {
			continue
		}
		if f.Query != "" {
			q := strings.ToLower(f.Query)
			if !strings.Contains(strings.ToLower(p.Title), q) &&
				!strings.Contains(strings.ToLower(p.Description), q) {
				continue
			}
		}
		if f.Tag != "" && !hasTag(p, f.Tag) {
			continue
		}
		matched = append(matched, cloneProject(p))
	}

	switch f.Sort {
	case store.SortOldest:
		sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	case store.SortTitleAsc:
		sort.Slice(matched, func(i, j int) bool { return matched[i].Title < matched[j].Title })
	case store.SortTitleDesc:
		sort.Slice(matched, func(i, j int) bool { return matched[i].Title > matched[j].Title })
	default:
		sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	}

	if f.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (s *projectStore) Update(_ context.Context, p *store.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.projects[p.ID]
	if !ok || existing.OrgID != p.OrgID {
		return store.ErrNotFound
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.projects[p.ID] = cloneProject(p)
	return nil
}

func (s *projectStore) Delete(_ context.Context, orgID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.projects[id]
	if !ok || existing.OrgID != orgID {
		return store.ErrNotFound
	}
	delete(s.projects, id)
	return nil
}

func hasTag(p *store.Project, name string) bool {
	for _, t := range p.Tags {
		if t.Name == name {
			return true
		}
	}
	return false
}

func cloneProject(p *store.Project) *store.Project {
	cp := *p
	cp.Tags = make([]store.Tag, len(p.Tags))
	copy(cp.Tags, p.Tags)
	return &cp
}

// Tag store ----------------------------------------------------------------

type tagStore Store

func (s *tagStore) Create(_ context.Context, t *store.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tags {
		if existing.OrgID == t.OrgID && existing.Name == t.Name {
			return fmt.Errorf("%w: tag already exists", store.ErrConflict)
		}
	}
	if t.ID == "" {
		t.ID = ids.New()
	}
	cp := *t
	s.tags[t.ID] = &cp
	return nil
}

func (s *tagStore) ListByOrg(_ context.Context, orgID string) ([]*store.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*store.Tag
	for _, t := range s.tags {
		if t.OrgID == orgID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *tagStore) Upsert(_ context.Context, orgID string, names []string) ([]store.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Tag
	for _, name := range names {
		var found *store.Tag
		for _, t := range s.tags {
			if t.OrgID == orgID && t.Name == name {
				found = t
				break
			}
		}
		if found == nil {
			found = &store.Tag{ID: ids.New(), OrgID: orgID, Name: name}
			s.tags[found.ID] = found
		}
		out = append(out, *found)
	}
	return out, nil
}

// Activity store -----------------------------------------------------------

type activityStore Store

func (s *activityStore) Append(_ context.Context, e *store.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	cp := *e
	s.activity = append(s.activity, &cp)
	return nil
}

func (s *activityStore) ListByOrg(_ context.Context, orgID string, limit, offset int) ([]*store.ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*store.ActivityEntry
	for _, e := range s.activity {
		if e.OrgID == orgID {
			cp := *e
			matched = append(matched, &cp)
		}
	}
	// Newest first.
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}
