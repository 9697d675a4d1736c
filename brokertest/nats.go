//go:build integration

package brokertest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tr-sdv-sandbox/vsslink/broker"
)

// NATSServer is a disposable NATS server for integration tests, plus a
// connected broker.Conn.
type NATSServer struct {
	container testcontainers.Container
	Conn      *broker.Conn
	URL       string
}

// StartNATS starts a NATS container and connects to it. Cleanup is
// registered on t.
func StartNATS(t testing.TB) *NATSServer {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "nats:2.11.7-alpine",
		ExposedPorts: []string{"4222/tcp", "8222/tcp"},
		Cmd:          []string{"--port", "4222", "--http_port", "8222"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4222/tcp"),
			wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(30*time.Second),
		),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start NATS container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get mapped port: %v", err)
	}
	url := fmt.Sprintf("nats://%s:%s", host, port.Port())

	conn, err := broker.NewConn(url,
		broker.WithConnectTimeout(5*time.Second),
		broker.WithMaxReconnects(0),
	)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to create broker connection: %v", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Connect(connectCtx); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to NATS: %v", err)
	}
	if err := conn.WaitForConnection(connectCtx); err != nil {
		_ = conn.Close(ctx)
		_ = container.Terminate(ctx)
		t.Fatalf("NATS connection not ready: %v", err)
	}

	s := &NATSServer{container: container, Conn: conn, URL: url}
	t.Cleanup(func() {
		_ = conn.Close(context.Background())
		_ = container.Terminate(context.Background())
	})
	return s
}
