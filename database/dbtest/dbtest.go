// Package dbtest starts a throwaway Postgres for store tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/irsalhamdi/storefront-checkout/config"
	"github.com/irsalhamdi/storefront-checkout/database"
	"github.com/jmoiron/sqlx"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

// NewDatabase returns a migrated database living as long as the test. The
// test is skipped when -short is set or Docker is not reachable.
func NewDatabase(t *testing.T) *sqlx.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}

	res, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15-alpine",
		Env: []string{
			"POSTGRES_USER=postgres",
			"POSTGRES_PASSWORD=postgres",
			"POSTGRES_DB=checkout",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("starting postgres: %v", err)
	}
	_ = res.Expire(120)

	t.Cleanup(func() {
		if err := pool.Purge(res); err != nil {
			t.Logf("purging postgres: %v", err)
		}
	})

	cfg := config.DB{
		User:         "postgres",
		Password:     "postgres",
		Host:         res.GetHostPort("5432/tcp"),
		Name:         "checkout",
		MaxIdleConns: 2,
		MaxOpenConns: 5,
		DisableTLS:   true,
	}

	var db *sqlx.DB
	pool.MaxWait = time.Minute
	err = pool.Retry(func() error {
		var err error
		if db, err = database.Open(cfg); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return database.StatusCheck(ctx, db)
	})
	if err != nil {
		t.Fatalf("waiting for postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	return db
}

// Truncate empties the given tables between subtests.
func Truncate(t *testing.T, db *sqlx.DB, tables ...string) {
	t.Helper()
	for _, tbl := range tables {
		if _, err := db.Exec(fmt.Sprintf("TRUNCATE %s", tbl)); err != nil {
			t.Fatalf("truncating %s: %v", tbl, err)
		}
	}
}
