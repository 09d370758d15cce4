// Package testutil поднимает PostgreSQL в контейнере для интеграционных тестов репозитория.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// TestDatabase описывает запущенный тестовый контейнер.
type TestDatabase struct {
	Container *postgres.PostgresContainer
	URL       string
}

// SetupTestDatabase запускает контейнер PostgreSQL и регистрирует его остановку через t.Cleanup.
// В режиме -short тест пропускается.
func SetupTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("triclub_test"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		postgres.BasicWaitStrategies(),
		testcontainers.WithLabels(map[string]string{
			"test":      "triclub-repository",
			"test-name": t.Name(),
		}),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate test container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	return &TestDatabase{
		Container: container,
		URL:       connStr,
	}
}
