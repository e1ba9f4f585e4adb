// Package db provides integration tests for SurrealDB operations.
package db

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealdb.go"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/reelfacts/internal/config"
)

var testDB *Client

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := container.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = container.Terminate(ctx)

	os.Exit(code)
}

func requireDB(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	require.NoError(t, testDB.DeleteRuns(context.Background()))
}

func strPtr(s string) *string { return &s }

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.Config{
		SurrealDBURL:       "ws://db:8000/rpc",
		SurrealDBNamespace: "ns",
		SurrealDBDatabase:  "ledger",
		SurrealDBUser:      "u",
		SurrealDBPass:      "p",
		SurrealDBAuthLevel: "database",
	})
	assert.Equal(t, Config{URL: "ws://db:8000/rpc", Namespace: "ns", Database: "ledger", Username: "u", Password: "p", AuthLevel: "database"}, cfg)
}

func TestConfigConnectionDetails(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantURL  string
		wantAuth surrealdb.Auth
	}{
		{
			name:     "root",
			cfg:      Config{URL: "ws://db:8000/rpc", Namespace: "ns", Database: "ledger", Username: "root", Password: "pw", AuthLevel: "root"},
			wantURL:  "ws://db:8000",
			wantAuth: surrealdb.Auth{Username: "root", Password: "pw"},
		},
		{
			name:     "database user",
			cfg:      Config{URL: "wss://db.example.com", Namespace: "ns", Database: "ledger", Username: "u", Password: "p", AuthLevel: AuthDatabase},
			wantURL:  "wss://db.example.com",
			wantAuth: surrealdb.Auth{Namespace: "ns", Database: "ledger", Username: "u", Password: "p"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantURL, tt.cfg.baseURL())
			assert.Equal(t, tt.wantAuth, tt.cfg.auth())
		})
	}
}

func TestPing(t *testing.T) {
	requireDB(t)
	assert.NoError(t, testDB.Ping(context.Background()))
}

func TestUpsertAndGetRun(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	rec := RunRecord{
		ID:        "run-1",
		Status:    "running",
		StartedMs: 1000,
		VideoPath: strPtr("/videos/luigis.mp4"),
		Summary:   `{"id":"run-1"}`,
		Document:  `{"id":"run-1","status":"running"}`,
	}
	require.NoError(t, testDB.QueryUpsertRun(ctx, rec))

	doc, err := testDB.QueryGetRunDocument(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Document, doc)

	// Upsert replaces the document in place.
	rec.Status = "completed"
	rec.Rating = strPtr("fair")
	rec.Document = `{"id":"run-1","status":"completed"}`
	require.NoError(t, testDB.QueryUpsertRun(ctx, rec))

	doc, err = testDB.QueryGetRunDocument(ctx, "run-1")
	require.NoError(t, err)
	assert.Contains(t, doc, "completed")

	n, err := testDB.QueryCountRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetRun_NotFound(t *testing.T) {
	requireDB(t)

	_, err := testDB.QueryGetRunDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertRun_RejectsUnknownStatus(t *testing.T) {
	requireDB(t)

	err := testDB.QueryUpsertRun(context.Background(), RunRecord{ID: "bad", Status: "paused", Summary: "{}", Document: "{}"})
	assert.Error(t, err)
}

func TestListRunSummaries_Ordering(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, testDB.QueryUpsertRun(ctx, RunRecord{
			ID:        fmt.Sprintf("run-%d", i),
			Status:    "completed",
			StartedMs: int64(i * 1000),
			Summary:   fmt.Sprintf(`{"id":"run-%d"}`, i),
			Document:  "{}",
		}))
	}

	summaries, err := testDB.QueryListRunSummaries(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"id":"run-5"}`, `{"id":"run-4"}`, `{"id":"run-3"}`}, summaries)
}
