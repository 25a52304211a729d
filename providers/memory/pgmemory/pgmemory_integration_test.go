//go:build integration

package pgmemory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/leofalp/taxassist/providers/memory"
	"github.com/leofalp/taxassist/providers/memory/memorytest"
)

// testPool is a shared connection pool created once in TestMain
// and reused across all integration test functions.
var testPool *pgxpool.Pool

var tableSeq atomic.Int64

// TestMain spins up a PostgreSQL container via testcontainers-go and tears it
// down after all tests complete.
func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("taxassist_test"),
		postgres.WithUsername("taxassist"),
		postgres.WithPassword("taxassist"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatalf("pgmemory: failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("pgmemory: failed to get connection string: %v", err)
	}

	testPool, err = pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("pgmemory: failed to create pool: %v", err)
	}

	code := m.Run()

	testPool.Close()
	if err := testcontainers.TerminateContainer(pgContainer); err != nil {
		log.Printf("pgmemory: failed to terminate container: %v", err)
	}

	os.Exit(code)
}

// TestStoreSuite runs the shared store suite, giving every subtest its own
// table so they start empty.
func TestStoreSuite(t *testing.T) {
	memorytest.Run(t, func(t *testing.T) memory.Store {
		t.Helper()
		store := New(testPool, WithTableName(fmt.Sprintf("turns_%d", tableSeq.Add(1))))
		if err := store.EnsureSchema(context.Background()); err != nil {
			t.Fatalf("EnsureSchema returned unexpected error: %v", err)
		}
		return store
	})
}
