package infra

import (
	"context"
	"os"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// DSNEnv names a database the integration tests may reuse instead of
// starting a container.
const DSNEnv = "DATABASE_URL"

type PGContainer struct {
	C *postgres.PostgresContainer
}

// StartPostgres16 starts a Postgres 16 container and returns a DSN. A
// non-empty overrideDSN is returned as is and no container is started.
func StartPostgres16(ctx context.Context, overrideDSN string) (*PGContainer, string, error) {
	if overrideDSN != "" {
		return &PGContainer{}, overrideDSN, nil
	}

	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("facility"),
		postgres.WithUsername("facility"),
		postgres.WithPassword("facility"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, "", err
	}

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, "", err
	}
	return &PGContainer{C: pgC}, dsn, nil
}

func (p *PGContainer) Terminate(ctx context.Context) error {
	if p == nil || p.C == nil {
		return nil
	}
	return p.C.Terminate(ctx)
}

// Postgres returns a DSN for integration tests. It prefers DATABASE_URL and
// otherwise starts a container, skipping the test when Docker is unavailable.
// The container is terminated on cleanup.
func Postgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}

	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		testcontainers.SkipIfProviderIsNotHealthy(t)
	}

	ctx := context.Background()
	pg, dsn, err := StartPostgres16(ctx, dsn)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })
	return dsn
}
