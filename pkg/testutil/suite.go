package testutil

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/atelier/production-backend/pkg/database"
	"github.com/atelier/production-backend/pkg/logger"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	DB        *database.DB
	Logger    *logger.Logger
	tables    []string
}

// NewIntegrationSuite starts (or reuses) the shared container and applies schema.
// tables are truncated by Reset between tests.
//
// Usage:
//
//	var suite *testutil.IntegrationSuite
//
//	func TestMain(m *testing.M) {
//	    flag.Parse()
//	    if !testing.Short() && testutil.DockerAvailable() {
//	        suite, _ = testutil.NewIntegrationSuite(ctx, repository.Schema, "movement_records", "production_units")
//	    }
//	    os.Exit(m.Run())
//	}
func NewIntegrationSuite(ctx context.Context, schema string, tables ...string) (*IntegrationSuite, error) {
	container, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.Nop()
	db, err := database.NewWithDSN(container.DSN, log)
	if err != nil {
		return nil, err
	}

	if err := db.ApplySchema(ctx, schema); err != nil {
		db.Close()
		return nil, err
	}

	return &IntegrationSuite{
		Container: container,
		DB:        db,
		Logger:    log,
		tables:    tables,
	}, nil
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
	})

	return globalContainer, containerErr
}

// Require skips the test when the suite could not be started.
func (s *IntegrationSuite) Require(t *testing.T) {
	t.Helper()
	if s == nil {
		t.Skip("integration database not available")
	}
}

// Reset truncates the suite's tables so each test starts empty.
func (s *IntegrationSuite) Reset(t *testing.T, ctx context.Context) {
	t.Helper()
	for _, table := range s.tables {
		if _, err := s.DB.ExecContext(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			t.Fatalf("failed to truncate %s: %v", table, err)
		}
	}
}

// Cleanup closes the suite's connection. The shared container keeps running.
func (s *IntegrationSuite) Cleanup() error {
	if s == nil {
		return nil
	}
	return s.DB.Close()
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}

// DockerAvailable reports whether a Docker daemon looks reachable.
func DockerAvailable() bool {
	if os.Getenv("DOCKER_HOST") != "" {
		return true
	}
	_, err := os.Stat("/var/run/docker.sock")
	return err == nil
}
