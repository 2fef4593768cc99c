package testtool

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SetupContainer 通用函式來啟動測試容器, host and port are those of ExposedPorts[0]
func SetupContainer(ctx context.Context, req testcontainers.ContainerRequest) (testcontainers.Container, string, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", "", err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, "", "", err
	}

	// 轉換 ExposedPorts[0] 為 nat.Port
	natPort, err := nat.NewPort("tcp", strings.TrimSuffix(req.ExposedPorts[0], "/tcp"))
	if err != nil {
		return nil, "", "", err
	}

	port, err := container.MappedPort(ctx, natPort)
	if err != nil {
		return nil, "", "", err
	}

	return container, host, port.Port(), nil
}

// Started a running container and how to reach it
type Started struct {
	Container  testcontainers.Container
	ConnectStr string
}

// Terminate stop the container, safe on nil
func (s *Started) Terminate(ctx context.Context) {
	if s != nil && s.Container != nil {
		_ = s.Container.Terminate(ctx)
	}
}

// StartMongo mongo container, ConnectStr is a mongodb:// uri
func StartMongo(ctx context.Context) (*Started, error) {
	c, host, port, err := SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp"),
	})
	if err != nil {
		return nil, fmt.Errorf("start mongo: %w", err)
	}
	return &Started{Container: c, ConnectStr: fmt.Sprintf("mongodb://%s:%s", host, port)}, nil
}

// StartPostgres postgres container with database db, ConnectStr is a DSN
func StartPostgres(ctx context.Context, db string) (*Started, error) {
	c, host, port, err := SetupContainer(ctx, testcontainers.ContainerRequest{
		Image: "postgres:16",
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       db,
		},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	})
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=%s sslmode=disable", host, port, db)
	return &Started{Container: c, ConnectStr: dsn}, nil
}

// StartRedis redis container, ConnectStr is host:port
func StartRedis(ctx context.Context) (*Started, error) {
	c, host, port, err := SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	})
	if err != nil {
		return nil, fmt.Errorf("start redis: %w", err)
	}
	return &Started{Container: c, ConnectStr: fmt.Sprintf("%s:%s", host, port)}, nil
}
