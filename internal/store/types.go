package store

import "time"

// Organization is a tenant. All other entities hang off it via OrgID.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a member of exactly one organization. Email is unique across all
// organizations, not per-org.
type User struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"org_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Project belongs to an organization and is owned by the user who created it.
type Project struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	GithubURL   string    `json:"github_url,omitempty"`
	IsPublic    bool      `json:"is_public"`
	Tags        []Tag     `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Tag is an org-scoped label; Name is unique within the organization.
type Tag struct {
	ID    string `json:"id"`
	OrgID string `json:"org_id"`
	Name  string `json:"name"`
}

// ActivityEntry is one row of the append-only audit trail.
type ActivityEntry struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	ActorUserID string    `json:"actor_user_id"`
	Action      string    `json:"action"`
	Entity      string    `json:"entity"`
	EntityID    string    `json:"entity_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Project list sort orders.
const (
	SortNewest    = "newest"
	SortOldest    = "oldest"
	SortTitleAsc  = "title_asc"
	SortTitleDesc = "title_desc"
)

// ProjectFilter narrows and pages project listings. Zero values mean "no
// filter"; Limit/Offset are validated by the caller.
type ProjectFilter struct {
	Query      string
	Tag        string
	PublicOnly bool
	Limit      int
	Offset     int
	Sort       string
}
