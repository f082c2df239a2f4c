// Package testutil starts the containers the integration and e2e suites run
// against. Containers are removed when the test that started them ends.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "pgvector/pgvector:0.8.1-pg18"
	rustfsImage   = "rustfs/rustfs:latest"

	// S3AccessKey and S3SecretKey are the credentials the RustFS container accepts
	S3AccessKey = "rustfsadmin"
	S3SecretKey = "rustfsadmin"
	// S3Region is any region; RustFS ignores it
	S3Region = "us-east-1"
)

// StartPostgres runs a pgvector-enabled PostgreSQL container and returns a
// connection URL for the docchat database. Migrations are not applied.
func StartPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()
	host, port := start(ctx, t, testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "docchat",
			"POSTGRES_PASSWORD": "docchat",
			"POSTGRES_DB":       "docchat",
		},
		// postgres logs readiness once for the init server and once for the real one
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	}, "5432")

	return fmt.Sprintf("postgres://docchat:docchat@%s:%s/docchat?sslmode=disable", host, port)
}

// StartS3 runs an S3-compatible RustFS container and returns its endpoint.
// Use S3AccessKey and S3SecretKey with path-style addressing.
func StartS3(ctx context.Context, t *testing.T) string {
	t.Helper()
	host, port := start(ctx, t, testcontainers.ContainerRequest{
		Image:        rustfsImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": S3AccessKey,
			"RUSTFS_SECRET_KEY": S3SecretKey,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}, "9000")

	return fmt.Sprintf("http://%s:%s", host, port)
}

func start(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest, port string) (string, string) {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s: %v", req.Image, err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate %s: %v", req.Image, err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get %s host: %v", req.Image, err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("failed to get %s port: %v", req.Image, err)
	}
	return host, mapped.Port()
}
