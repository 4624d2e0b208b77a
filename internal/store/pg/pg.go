// Package pg implements the store interfaces on PostgreSQL. The database's
// unique constraints are the final arbiter for every uniqueness invariant:
// violation errors are mapped to store.ErrConflict here so concurrent writers
// race safely.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"portico.dev/internal/ids"
	"portico.dev/internal/store"
)

const uniqueViolation = "23505"

// Store implements store.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to the given DSN with pool defaults tuned for the API.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection pool (used by tests).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying pool for readiness probes and migrations.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Organizations() store.OrganizationStore { return &orgStore{db: s.db} }
func (s *Store) Users() store.UserStore                 { return &userStore{db: s.db} }
func (s *Store) Projects() store.ProjectStore           { return &projectStore{db: s.db} }
func (s *Store) Tags() store.TagStore                   { return &tagStore{db: s.db} }
func (s *Store) Activity() store.ActivityStore          { return &activityStore{db: s.db} }

// CreateOrganizationWithAdmin writes both rows in one transaction; either both
// land or neither does.
func (s *Store) CreateOrganizationWithAdmin(ctx context.Context, org *store.Organization, admin *store.User) error {
	if org.ID == "" {
		org.ID = ids.New()
	}
	if admin.ID == "" {
		admin.ID = ids.New()
	}
	admin.OrgID = org.ID
	now := time.Now().UTC()
	org.CreatedAt = now
	admin.CreatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`insert into organizations(id, name, created_at) values($1,$2,$3)`,
		org.ID, org.Name, org.CreatedAt,
	); err != nil {
		return mapConflict(err, "organization name already exists")
	}
	if _, err := tx.ExecContext(ctx,
		`insert into users(id, org_id, email, password_hash, role, created_at) values($1,$2,$3,$4,$5,$6)`,
		admin.ID, admin.OrgID, admin.Email, admin.PasswordHash, admin.Role, admin.CreatedAt,
	); err != nil {
		return mapConflict(err, "email already registered")
	}
	return tx.Commit()
}

// Organization store -------------------------------------------------------

type orgStore struct{ db *sql.DB }

func (s *orgStore) Find(ctx context.Context, id string) (*store.Organization, error) {
	return scanOrg(s.db.QueryRowContext(ctx,
		`select id, name, created_at from organizations where id=$1`, id))
}

func (s *orgStore) FindByName(ctx context.Context, name string) (*store.Organization, error) {
	return scanOrg(s.db.QueryRowContext(ctx,
		`select id, name, created_at from organizations where name=$1`, name))
}

func scanOrg(row *sql.Row) (*store.Organization, error) {
	var org store.Organization
	if err := row.Scan(&org.ID, &org.Name, &org.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *store.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, org_id, email, password_hash, role, created_at) values($1,$2,$3,$4,$5,$6)`,
		u.ID, u.OrgID, u.Email, u.PasswordHash, u.Role, u.CreatedAt,
	)
	return mapConflict(err, "email already registered")
}

func (s *userStore) Find(ctx context.Context, id string) (*store.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select id, org_id, email, password_hash, role, created_at from users where id=$1`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*store.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select id, org_id, email, password_hash, role, created_at from users where email=$1`, email))
}

func (s *userStore) ListByOrg(ctx context.Context, orgID string) ([]*store.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, org_id, email, password_hash, role, created_at from users where org_id=$1 order by id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		var u store.User
		if err := rows.Scan(&u.ID, &u.OrgID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func scanUser(row *sql.Row) (*store.User, error) {
	var u store.User
	if err := row.Scan(&u.ID, &u.OrgID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Project store ------------------------------------------------------------

type projectStore struct{ db *sql.DB }

func (s *projectStore) Create(ctx context.Context, p *store.Project) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`insert into projects(id, org_id, owner_id, title, description, github_url, is_public, created_at, updated_at)
		 values($1,$2,$3,$4,$5,nullif($6,''),$7,$8,$9)`,
		p.ID, p.OrgID, p.OwnerID, p.Title, p.Description, p.GithubURL, p.IsPublic, p.CreatedAt, p.UpdatedAt,
	); err != nil {
		return err
	}
	if err := insertProjectTags(ctx, tx, p.ID, p.Tags); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *projectStore) Find(ctx context.Context, orgID, id string) (*store.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, org_id, owner_id, title, description, coalesce(github_url,''), is_public, created_at, updated_at
		 from projects where id=$1 and org_id=$2`, id, orgID)
	p, err := scanProject(row)
	if err != nil {
		return nil, err
	}
	if p.Tags, err = s.loadTags(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *projectStore) List(ctx context.Context, orgID string, f store.ProjectFilter) ([]*store.Project, error) {
	var (
		where = []string{"org_id = $1"}
		args  = []any{orgID}
	)
	if f.PublicOnly {
		where = append(where, "is_public")
	}
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(title ilike $%d or description ilike $%d)", n, n))
	}
	if f.Tag != "" {
		args = append(args, f.Tag)
		where = append(where, fmt.Sprintf(
			`exists (select 1 from project_tags pt join tags t on t.id = pt.tag_id
			 where pt.project_id = projects.id and t.name = $%d)`, len(args)))
	}

	order := "id desc"
	switch f.Sort {
	case store.SortOldest:
		order = "id asc"
	case store.SortTitleAsc:
		order = "title asc"
	case store.SortTitleDesc:
		order = "title desc"
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(
		`select id, org_id, owner_id, title, description, coalesce(github_url,''), is_public, created_at, updated_at
		 from projects where %s order by %s limit $%d offset $%d`,
		strings.Join(where, " and "), order, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*store.Project
	for rows.Next() {
		var p store.Project
		if err := rows.Scan(&p.ID, &p.OrgID, &p.OwnerID, &p.Title, &p.Description, &p.GithubURL, &p.IsPublic, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range projects {
		if p.Tags, err = s.loadTags(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return projects, nil
}

func (s *projectStore) Update(ctx context.Context, p *store.Project) error {
	p.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`update projects set title=$1, description=$2, github_url=nullif($3,''), is_public=$4, updated_at=$5
		 where id=$6 and org_id=$7`,
		p.Title, p.Description, p.GithubURL, p.IsPublic, p.UpdatedAt, p.ID, p.OrgID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return store.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `delete from project_tags where project_id=$1`, p.ID); err != nil {
		return err
	}
	if err := insertProjectTags(ctx, tx, p.ID, p.Tags); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *projectStore) Delete(ctx context.Context, orgID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	if err := tx.QueryRowContext(ctx,
		`select 1 from projects where id=$1 and org_id=$2 for update`, id, orgID,
	).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from project_tags where project_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from projects where id=$1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *projectStore) loadTags(ctx context.Context, projectID string) ([]store.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`select t.id, t.org_id, t.name from tags t
		 join project_tags pt on pt.tag_id = t.id
		 where pt.project_id=$1 order by t.name`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []store.Tag{}
	for rows.Next() {
		var t store.Tag
		if err := rows.Scan(&t.ID, &t.OrgID, &t.Name); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func insertProjectTags(ctx context.Context, tx *sql.Tx, projectID string, tags []store.Tag) error {
	for _, t := range tags {
		if _, err := tx.ExecContext(ctx,
			`insert into project_tags(project_id, tag_id) values($1,$2) on conflict do nothing`,
			projectID, t.ID,
		); err != nil {
			return err
		}
	}
	return nil
}

func scanProject(row *sql.Row) (*store.Project, error) {
	var p store.Project
	if err := row.Scan(&p.ID, &p.OrgID, &p.OwnerID, &p.Title, &p.Description, &p.GithubURL, &p.IsPublic, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Tag store ----------------------------------------------------------------

type tagStore struct{ db *sql.DB }

func (s *tagStore) Create(ctx context.Context, t *store.Tag) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into tags(id, org_id, name) values($1,$2,$3)`,
		t.ID, t.OrgID, t.Name,
	)
	return mapConflict(err, "tag already exists")
}

func (s *tagStore) ListByOrg(ctx context.Context, orgID string) ([]*store.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, org_id, name from tags where org_id=$1 order by name`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []*store.Tag
	for rows.Next() {
		var t store.Tag
		if err := rows.Scan(&t.ID, &t.OrgID, &t.Name); err != nil {
			return nil, err
		}
		tags = append(tags, &t)
	}
	return tags, rows.Err()
}

func (s *tagStore) Upsert(ctx context.Context, orgID string, names []string) ([]store.Tag, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var out []store.Tag
	for _, name := range names {
		if _, err := tx.ExecContext(ctx,
			`insert into tags(id, org_id, name) values($1,$2,$3) on conflict (org_id, name) do nothing`,
			ids.New(), orgID, name,
		); err != nil {
			return nil, err
		}
		var t store.Tag
		if err := tx.QueryRowContext(ctx,
			`select id, org_id, name from tags where org_id=$1 and name=$2`, orgID, name,
		).Scan(&t.ID, &t.OrgID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// Activity store -----------------------------------------------------------

type activityStore struct{ db *sql.DB }

func (s *activityStore) Append(ctx context.Context, e *store.ActivityEntry) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into activity_logs(id, org_id, actor_user_id, action, entity, entity_id, created_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.OrgID, e.ActorUserID, e.Action, e.Entity, e.EntityID, e.CreatedAt,
	)
	return err
}

func (s *activityStore) ListByOrg(ctx context.Context, orgID string, limit, offset int) ([]*store.ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, org_id, actor_user_id, action, entity, entity_id, created_at
		 from activity_logs where org_id=$1 order by id desc limit $2 offset $3`,
		orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*store.ActivityEntry
	for rows.Next() {
		var e store.ActivityEntry
		if err := rows.Scan(&e.ID, &e.OrgID, &e.ActorUserID, &e.Action, &e.Entity, &e.EntityID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// --- helpers ---

func mapConflict(err error, msg string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrConflict, msg)
	}
	return err
}
