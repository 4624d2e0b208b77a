package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"portico.dev/internal/store"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestFindUserByEmail(t *testing.T) {
	st, mock := newMock(t)

	created := time.Now().UTC().Truncate(time.Second)
	mock.ExpectQuery("select id, org_id, email, password_hash, role, created_at from users where email").
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "email", "password_hash", "role", "created_at"}).
			AddRow("u1", "o1", "ada@example.com", "$argon2id$hash", "admin", created))

	u, err := st.Users().FindByEmail(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if u.ID != "u1" || u.OrgID != "o1" || u.Role != "admin" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if !u.CreatedAt.Equal(created) {
		t.Fatalf("unexpected created_at: %v", u.CreatedAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindUserByEmailNotFound(t *testing.T) {
	st, mock := newMock(t)

	mock.ExpectQuery("select id, org_id, email, password_hash, role, created_at from users where email").
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "email", "password_hash", "role", "created_at"}))

	if _, err := st.Users().FindByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateUserUniqueViolationMapsToConflict(t *testing.T) {
	st, mock := newMock(t)

	mock.ExpectExec("insert into users").
		WithArgs(sqlmock.AnyArg(), "o1", "ada@example.com", "hash", "editor", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: "users_email_key"})

	err := st.Users().Create(context.Background(), &store.User{
		OrgID:        "o1",
		Email:        "ada@example.com",
		PasswordHash: "hash",
		Role:         "editor",
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateOrganizationWithAdminCommitsBothRows(t *testing.T) {
	st, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into organizations").
		WithArgs(sqlmock.AnyArg(), "Acme", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into users").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "ada@example.com", "hash", "admin", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	org := &store.Organization{Name: "Acme"}
	admin := &store.User{Email: "ada@example.com", PasswordHash: "hash", Role: "admin"}
	if err := st.CreateOrganizationWithAdmin(context.Background(), org, admin); err != nil {
		t.Fatalf("CreateOrganizationWithAdmin: %v", err)
	}
	if org.ID == "" || admin.ID == "" {
		t.Fatalf("expected generated ids")
	}
	if admin.OrgID != org.ID {
		t.Fatalf("admin org mismatch: %s vs %s", admin.OrgID, org.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateOrganizationWithAdminRollsBackOnConflict(t *testing.T) {
	st, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into organizations").
		WithArgs(sqlmock.AnyArg(), "Acme", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: "organizations_name_key"})
	mock.ExpectRollback()

	org := &store.Organization{Name: "Acme"}
	admin := &store.User{Email: "ada@example.com", PasswordHash: "hash", Role: "admin"}
	if err := st.CreateOrganizationWithAdmin(context.Background(), org, admin); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindProjectScopedToOrg(t *testing.T) {
	st, mock := newMock(t)

	// The id exists but belongs to another org; the scoped query matches no row.
	mock.ExpectQuery("from projects where id=\\$1 and org_id=\\$2").
		WithArgs("p1", "other-org").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "owner_id", "title", "description", "github_url", "is_public", "created_at", "updated_at"}))

	if _, err := st.Projects().Find(context.Background(), "other-org", "p1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateProjectNotFound(t *testing.T) {
	st, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("update projects set").
		WithArgs("Title", "Desc", "", false, sqlmock.AnyArg(), "p1", "o1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := st.Projects().Update(context.Background(), &store.Project{
		ID: "p1", OrgID: "o1", Title: "Title", Description: "Desc",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteProjectRemovesTagLinks(t *testing.T) {
	st, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from projects where id=\\$1 and org_id=\\$2 for update").
		WithArgs("p1", "o1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("delete from project_tags").
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("delete from projects").
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := st.Projects().Delete(context.Background(), "o1", "p1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsertTagsReturnsExistingAndNew(t *testing.T) {
	st, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into tags").
		WithArgs(sqlmock.AnyArg(), "o1", "go").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select id, org_id, name from tags where org_id=\\$1 and name=\\$2").
		WithArgs("o1", "go").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "name"}).AddRow("t1", "o1", "go"))
	mock.ExpectExec("insert into tags").
		WithArgs(sqlmock.AnyArg(), "o1", "api").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select id, org_id, name from tags where org_id=\\$1 and name=\\$2").
		WithArgs("o1", "api").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "name"}).AddRow("t2", "o1", "api"))
	mock.ExpectCommit()

	tags, err := st.Tags().Upsert(context.Background(), "o1", []string{"go", "api"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(tags) != 2 || tags[0].ID != "t1" || tags[1].ID != "t2" {
		t.Fatalf("unexpected tags: %+v", tags)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
