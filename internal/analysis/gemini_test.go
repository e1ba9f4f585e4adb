package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/reelfacts/internal/media"
	"github.com/raphaelgruber/reelfacts/internal/metrics"
)

func newTestGemini(t *testing.T, handler http.Handler) (*GeminiClient, *metrics.Collector) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m := metrics.NewCollector()
	c, err := NewGeminiClient(GeminiConfig{
		BaseURL:      srv.URL,
		APIKey:       "test-key",
		PreciseModel: "pro",
		FastModel:    "flash",
		Metrics:      m,
	})
	require.NoError(t, err)
	return c, m
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(GeminiConfig{})
	assert.Error(t, err)
}

func TestGemini_Upload(t *testing.T) {
	video := writeFile(t, "clip.mp4", "fake video bytes")

	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload/v1beta/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Equal(t, "resumable", r.Header.Get("X-Goog-Upload-Protocol"))
		assert.Equal(t, "start", r.Header.Get("X-Goog-Upload-Command"))
		assert.Equal(t, "16", r.Header.Get("X-Goog-Upload-Header-Content-Length"))
		assert.Equal(t, "video/mp4", r.Header.Get("X-Goog-Upload-Header-Content-Type"))
		w.Header().Set("X-Goog-Upload-URL", srvURL+"/resumable/123")
	})
	mux.HandleFunc("POST /resumable/123", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "upload, finalize", r.Header.Get("X-Goog-Upload-Command"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "fake video bytes", string(body))
		_, _ = io.WriteString(w, `{"file":{"name":"files/123","uri":"https://files/123","mimeType":"video/mp4","state":"PROCESSING","sizeBytes":"16"}}`)
	})

	c, _ := newTestGemini(t, mux)
	srvURL = c.baseURL

	h, err := c.Upload(context.Background(), video)
	require.NoError(t, err)
	assert.Equal(t, media.Handle{
		Name:      "files/123",
		URI:       "https://files/123",
		MimeType:  "video/mp4",
		State:     media.StateProcessing,
		SizeBytes: 16,
	}, h)
}

func TestGemini_StatusAndDelete(t *testing.T) {
	var deleted bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1beta/files/123", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"name":"files/123","uri":"u","mimeType":"video/mp4","state":"ACTIVE"}`)
	})
	mux.HandleFunc("DELETE /v1beta/files/123", func(w http.ResponseWriter, r *http.Request) {
		deleted = true
	})

	c, _ := newTestGemini(t, mux)

	h, err := c.Status(context.Background(), media.Handle{Name: "files/123"})
	require.NoError(t, err)
	assert.True(t, h.Ready())

	require.NoError(t, c.Delete(context.Background(), h))
	assert.True(t, deleted)
}

func TestGemini_Analyze(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1beta/models/{call}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pro:generateContent", r.PathValue("call"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		parts := req.Contents[0].Parts
		require.Len(t, parts, 2)
		assert.Equal(t, "https://files/123", parts[0].FileData.FileURI)
		assert.Equal(t, "list the menu", parts[1].Text)
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)

		_, _ = io.WriteString(w, `{
			"candidates":[{"content":{"parts":[{"text":"{\"items\":"},{"text":"[]}"}]}}],
			"usageMetadata":{"promptTokenCount":1000,"candidatesTokenCount":20}
		}`)
	})

	c, m := newTestGemini(t, mux)

	h := media.Handle{Name: "files/123", URI: "https://files/123", MimeType: "video/mp4"}
	text, err := c.Analyze(context.Background(), h, "list the menu", TierPrecise)
	require.NoError(t, err)
	assert.Equal(t, `{"items":[]}`, text)

	op := m.Snapshot().Op(metrics.OpAnalyzePrecise)
	require.NotNil(t, op)
	assert.Equal(t, int64(1000), *op.TotalInputTokens)
	assert.Equal(t, "flash", c.ModelFor(TierFast))
}

func TestGemini_AnalyzeImages(t *testing.T) {
	frame := writeFile(t, "frame.jpg", "jpegdata")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1beta/models/{call}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "flash:generateContent", r.PathValue("call"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		parts := req.Contents[0].Parts
		require.Len(t, parts, 2)
		assert.Equal(t, "image/jpeg", parts[0].InlineData.MimeType)
		assert.Equal(t, "anBlZ2RhdGE=", parts[0].InlineData.Data)

		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"{}"}]}}]}`)
	})

	c, _ := newTestGemini(t, mux)
	text, err := c.AnalyzeImages(context.Background(), []string{frame}, "describe")
	require.NoError(t, err)
	assert.Equal(t, "{}", text)
	assert.Equal(t, "flash", c.ImageModel())
}

func TestGemini_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		fatal  bool
		substr string
	}{
		{"server error", 500, `{"error":{"code":500,"message":"internal","status":"INTERNAL"}}`, false, "INTERNAL: internal"},
		{"bad key", 400, `{"error":{"code":400,"message":"API key not valid.","status":"INVALID_ARGUMENT"}}`, true, "API key not valid"},
		{"forbidden", 403, `denied`, true, "HTTP 403"},
		{"blocked", 200, `{"promptFeedback":{"blockReason":"SAFETY"}}`, false, "SAFETY"},
		{"no candidates", 200, `{"candidates":[]}`, false, "no candidates"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, m := newTestGemini(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))

			_, err := c.Analyze(context.Background(), media.Handle{URI: "u"}, "p", TierFast)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRemoteCall)
			assert.Equal(t, tt.fatal, isFatal(err))
			assert.True(t, strings.Contains(err.Error(), tt.substr), err.Error())

			if tt.status != 200 {
				assert.Equal(t, int64(1), m.Snapshot().Op(metrics.OpAnalyzeFast).Errors)
			}
		})
	}
}

func TestGemini_TransportError(t *testing.T) {
	c, err := NewGeminiClient(GeminiConfig{BaseURL: "http://127.0.0.1:1", APIKey: "k"})
	require.NoError(t, err)

	_, err = c.Status(context.Background(), media.Handle{Name: "files/x"})
	assert.ErrorIs(t, err, ErrRemoteCall)
}

func isFatal(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Is(ErrFatalAPI)
}
