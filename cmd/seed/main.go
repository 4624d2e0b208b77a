// Command seed provisions a demo organization with one user per role. Safe to
// run repeatedly: existing rows are left alone.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"portico.dev/internal/auth"
	"portico.dev/internal/store"
	"portico.dev/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		dsn      = flag.String("dsn", os.Getenv("PORTICO_PG_DSN"), "PostgreSQL DSN")
		orgName  = flag.String("org", "Demo Org", "Organization name")
		password = flag.String("password", "changeme-now", "Password for all seeded users")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or PORTICO_PG_DSN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer st.Close()

	if err := seed(ctx, st, *orgName, *password); err != nil {
		log.Fatalf("seed: %v", err)
	}
}

func seed(ctx context.Context, st store.Store, orgName, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	adminEmail := "admin@demo.local"
	admin, err := st.Users().FindByEmail(ctx, adminEmail)
	switch {
	case err == nil:
		log.Printf("admin %s already present, org %s", adminEmail, admin.OrgID)
	case errors.Is(err, store.ErrNotFound):
		org := &store.Organization{Name: orgName}
		admin = &store.User{
			Email:        adminEmail,
			PasswordHash: hash,
			Role:         string(auth.RoleAdmin),
		}
		if err := st.CreateOrganizationWithAdmin(ctx, org, admin); err != nil {
			return err
		}
		log.Printf("created organization %q with admin %s", orgName, adminEmail)
	default:
		return err
	}

	members := []struct {
		email string
		role  auth.Role
	}{
		{"editor@demo.local", auth.RoleEditor},
		{"viewer@demo.local", auth.RoleViewer},
	}
	for _, m := range members {
		if _, err := st.Users().FindByEmail(ctx, m.email); err == nil {
			log.Printf("%s already present", m.email)
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		user := &store.User{
			OrgID:        admin.OrgID,
			Email:        m.email,
			PasswordHash: hash,
			Role:         string(m.role),
		}
		if err := st.Users().Create(ctx, user); err != nil {
			return err
		}
		log.Printf("created %s (%s)", m.email, m.role)
	}
	return nil
}
