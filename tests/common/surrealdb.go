// Package common provides shared infrastructure for the end-to-end tests:
// a SurrealDB container and a stub of the Polygon REST API.
package common

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	surrealOnce      sync.Once
	surrealContainer *SurrealDBContainer
	surrealError     error
)

// SurrealDBContainer wraps a testcontainers SurrealDB instance.
type SurrealDBContainer struct {
	container testcontainers.Container
	address   string
}

// StartSurrealDB starts a shared SurrealDB container for the test run.
// Skipped under -short since it needs a Docker daemon. ETF_TEST_SURREAL_ADDRESS
// points the tests at an already running instance instead.
func StartSurrealDB(t *testing.T) *SurrealDBContainer {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping SurrealDB container test in short mode")
	}
	if addr := os.Getenv("ETF_TEST_SURREAL_ADDRESS"); addr != "" {
		return &SurrealDBContainer{address: addr}
	}

	surrealOnce.Do(func() {
		surrealContainer, surrealError = startSurrealContainer(context.Background())
	})

	if surrealError != nil {
		t.Fatalf("SurrealDB container failed: %v", surrealError)
	}

	return surrealContainer
}

// surrealImage is the server version the stores are tested against.
const surrealImage = "surrealdb/surrealdb:v3.0.0"

func startSurrealContainer(ctx context.Context) (*SurrealDBContainer, error) {
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        surrealImage,
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--user", "root", "--pass", "root"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("8000/tcp"),
				wait.ForLog("Started web server"),
			).WithDeadline(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", surrealImage, err)
	}

	endpoint, err := ctr.PortEndpoint(ctx, "8000/tcp", "ws")
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("resolve SurrealDB endpoint: %w", err)
	}
	return &SurrealDBContainer{container: ctr, address: endpoint + "/rpc"}, nil
}

// Address returns the WebSocket RPC address for SurrealDB.
func (c *SurrealDBContainer) Address() string {
	return c.address
}

// StorageConfig returns settings for a database private to the calling test.
func (c *SurrealDBContainer) StorageConfig(t *testing.T) common.StorageConfig {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return common.StorageConfig{
		Backend:   "surrealdb",
		Address:   c.address,
		Namespace: "etf_e2e",
		Database:  fmt.Sprintf("%s_%d", name, time.Now().UnixNano()%100000),
		Username:  "root",
		Password:  "root",
	}
}

// Cleanup terminates the container. Call from TestMain if needed.
func (c *SurrealDBContainer) Cleanup() {
	if c != nil && c.container != nil {
		_ = c.container.Terminate(context.Background())
	}
}
