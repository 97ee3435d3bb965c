package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/tinoosan/fintrack/internal/storage/storagetest"
)

func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres store tests")
	}
	return dsn
}

func mustOpen(t *testing.T, dsn string) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func truncateAll(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.pool.Exec(ctx, `truncate table invoices, transactions, goals, cards, accounts cascade`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func TestStore(t *testing.T) {
	dsn := getTestDSN(t)
	s := mustOpen(t, dsn)
	defer s.Close()
	truncateAll(t, s)

	if err := s.Ready(context.Background()); err != nil {
		t.Fatalf("ready: %v", err)
	}
	storagetest.Run(t, s)
}

func TestMigrate_Idempotent(t *testing.T) {
	dsn := getTestDSN(t)
	s := mustOpen(t, dsn)
	defer s.Close()
	if err := s.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
