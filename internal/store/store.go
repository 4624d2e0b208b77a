package store

import "context"

// Store aggregates the per-entity stores plus the one multi-entity atomic
// operation the registration flow needs.
type Store interface {
	Organizations() OrganizationStore
	Users() UserStore
	Projects() ProjectStore
	Tags() TagStore
	Activity() ActivityStore

	// CreateOrganizationWithAdmin writes the organization and its first admin
	// user atomically: either both rows land or neither does. Uniqueness races
	// surface as ErrConflict.
	CreateOrganizationWithAdmin(ctx context.Context, org *Organization, admin *User) error
}

// OrganizationStore manages tenants.
type OrganizationStore interface {
	Find(ctx context.Context, id string) (*Organization, error)
	FindByName(ctx context.Context, name string) (*Organization, error)
}

// UserStore manages users.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ListByOrg(ctx context.Context, orgID string) ([]*User, error)
}

// ProjectStore manages projects including their tag associations. Every read
// and write is scoped by orgID; rows in other organizations behave as absent.
type ProjectStore interface {
	Create(ctx context.Context, p *Project) error
	Find(ctx context.Context, orgID, id string) (*Project, error)
	List(ctx context.Context, orgID string, f ProjectFilter) ([]*Project, error)
	Update(ctx context.Context, p *Project) error
	Delete(ctx context.Context, orgID, id string) error
}

// TagStore manages org-scoped labels.
type TagStore interface {
	Create(ctx context.Context, t *Tag) error
	ListByOrg(ctx context.Context, orgID string) ([]*Tag, error)
	// Upsert resolves the given normalized names to tags, creating the ones
	// that do not exist yet.
	Upsert(ctx context.Context, orgID string, names []string) ([]Tag, error)
}

// ActivityStore appends and reads the audit trail.
type ActivityStore interface {
	Append(ctx context.Context, e *ActivityEntry) error
	ListByOrg(ctx context.Context, orgID string, limit, offset int) ([]*ActivityEntry, error)
}
