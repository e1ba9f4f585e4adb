package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/reelfacts/internal/ledger"
	"github.com/raphaelgruber/reelfacts/internal/models"
	"github.com/raphaelgruber/reelfacts/internal/server"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRuns struct {
	summaries []models.RunSummary
	runs      map[string]*models.Run
	err       error
}

func (f *fakeRuns) LoadRun(_ context.Context, id string) (*models.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	if run, ok := f.runs[id]; ok {
		return run, nil
	}
	return nil, ledger.ErrRunNotFound
}

func (f *fakeRuns) ListRecentRuns(context.Context) ([]models.RunSummary, error) {
	return f.summaries, f.err
}

func newFakeRuns() *fakeRuns {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	return &fakeRuns{
		summaries: []models.RunSummary{
			{ID: "b", Status: models.StatusFailed, StartedAt: now.Add(time.Minute)},
			{ID: "a", Status: models.StatusCompleted, StartedAt: now},
		},
		runs: map[string]*models.Run{
			"a": {ID: "a", Status: models.StatusCompleted, StartedAt: now, Metadata: map[string]any{}, Steps: []models.Step{}},
		},
	}
}

func TestHTTPHandler(t *testing.T) {
	tests := []struct {
		name       string
		runs       *fakeRuns
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "health", runs: newFakeRuns(), path: "/health", wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "list", runs: newFakeRuns(), path: "/runs", wantStatus: http.StatusOK, wantBody: `"id":"b"`},
		{name: "list limit", runs: newFakeRuns(), path: "/runs?limit=1", wantStatus: http.StatusOK},
		{name: "bad limit", runs: newFakeRuns(), path: "/runs?limit=0", wantStatus: http.StatusBadRequest, wantBody: "limit must be"},
		{name: "get", runs: newFakeRuns(), path: "/runs/a", wantStatus: http.StatusOK, wantBody: `"status":"completed"`},
		{name: "not found", runs: newFakeRuns(), path: "/runs/zzz", wantStatus: http.StatusNotFound},
		{name: "ledger down", runs: &fakeRuns{err: errors.New("io")}, path: "/runs", wantStatus: http.StatusInternalServerError},
		{name: "empty ledger", runs: &fakeRuns{}, path: "/runs", wantStatus: http.StatusOK, wantBody: "[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := server.NewHTTPHandler(tt.runs, testLogger())
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHTTPHandler_ListLimit(t *testing.T) {
	h := server.NewHTTPHandler(newFakeRuns(), testLogger())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs?limit=1", nil))

	var got []models.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestHTTPHandler_MethodNotAllowed(t *testing.T) {
	h := server.NewHTTPHandler(newFakeRuns(), testLogger())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/runs/a", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := server.RequestLogging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/runs/"+strings.Repeat("x", 300), nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, float64(http.StatusBadGateway), entry["status"])
	assert.Len(t, entry["path"], 200)
	assert.True(t, strings.HasSuffix(entry["path"].(string), "..."))
}

func TestServerWithInMemoryTransport(t *testing.T) {
	srv := server.New("0.1.0-test", testLogger())
	require.NotNil(t, srv.MCPServer())
	srv.Setup()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.MCPServer().Run(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err, "client should connect successfully")

	initResult := session.InitializeResult()
	require.NotNil(t, initResult)
	assert.Equal(t, server.Name, initResult.ServerInfo.Name)
	assert.Equal(t, "0.1.0-test", initResult.ServerInfo.Version)

	for i := 0; i < 3; i++ {
		_, err := session.ListTools(ctx, nil)
		require.NoError(t, err, "request %d should succeed", i)
	}

	require.NoError(t, session.Close())
	cancel()

	select {
	case err := <-serverErr:
		if err != nil {
			t.Logf("server stopped with: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("server did not stop within timeout")
	}
}
