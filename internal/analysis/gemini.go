package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/reelfacts/internal/media"
	"github.com/raphaelgruber/reelfacts/internal/metrics"
)

// DefaultGeminiURL is the public Generative Language API endpoint.
const DefaultGeminiURL = "https://generativelanguage.googleapis.com"

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	BaseURL      string
	APIKey       string
	PreciseModel string
	FastModel    string
	// ImageModel serves AnalyzeImages. Empty uses FastModel.
	ImageModel string
	HTTPClient *http.Client
	Metrics    *metrics.Collector
	Logger     *slog.Logger
}

// GeminiClient implements Analyzer, ImageAnalyzer and media.Remote over the Gemini REST API.
type GeminiClient struct {
	baseURL string
	apiKey  string
	models  map[Tier]string
	image   string
	http    *http.Client
	metrics *metrics.Collector
	logger  *slog.Logger
}

var (
	_ Analyzer      = (*GeminiClient)(nil)
	_ ImageAnalyzer = (*GeminiClient)(nil)
	_ media.Remote  = (*GeminiClient)(nil)
)

// NewGeminiClient creates a client. An API key is required.
func NewGeminiClient(cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiURL
	}
	if cfg.HTTPClient == nil {
		// Generation over long videos can take minutes; the remote enforces its own deadline.
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	image := cfg.ImageModel
	if image == "" {
		image = cfg.FastModel
	}

	return &GeminiClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		models: map[Tier]string{
			TierPrecise: cfg.PreciseModel,
			TierFast:    cfg.FastModel,
		},
		image:   image,
		http:    cfg.HTTPClient,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}, nil
}

// ModelFor returns the model name serving a tier.
func (c *GeminiClient) ModelFor(tier Tier) string {
	return c.models[tier]
}

// ImageModel returns the model serving AnalyzeImages.
func (c *GeminiClient) ImageModel() string {
	return c.image
}

// Wire types

type geminiFile struct {
	Name      string `json:"name"`
	URI       string `json:"uri"`
	MimeType  string `json:"mimeType"`
	State     string `json:"state"`
	SizeBytes string `json:"sizeBytes,omitempty"`
}

func (f geminiFile) handle() media.Handle {
	size, _ := strconv.ParseInt(f.SizeBytes, 10, 64)
	return media.Handle{
		Name:      f.Name,
		URI:       f.URI,
		MimeType:  f.MimeType,
		State:     f.State,
		SizeBytes: size,
	}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	FileData   *geminiFileData   `json:"file_data,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generateRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Upload sends a local video with the resumable upload protocol.
func (c *GeminiClient) Upload(ctx context.Context, path string) (media.Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return media.Handle{}, fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return media.Handle{}, fmt.Errorf("stat media: %w", err)
	}
	mimeType := videoMimeType(path)

	meta, _ := json.Marshal(map[string]any{
		"file": map[string]string{"display_name": filepath.Base(path)},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/v1beta/files", bytes.NewReader(meta))
	if err != nil {
		return media.Handle{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Upload-Protocol", "resumable")
	req.Header.Set("X-Goog-Upload-Command", "start")
	req.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.FormatInt(info.Size(), 10))
	req.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)

	resp, err := c.do(req, "upload")
	if err != nil {
		return media.Handle{}, err
	}
	resp.Body.Close()

	uploadURL := resp.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return media.Handle{}, remoteErr("upload", resp.StatusCode, errors.New("missing upload URL"))
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, f)
	if err != nil {
		return media.Handle{}, fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("X-Goog-Upload-Offset", "0")
	req.Header.Set("X-Goog-Upload-Command", "upload, finalize")

	var out struct {
		File geminiFile `json:"file"`
	}
	if err := c.doJSON(req, "upload", &out); err != nil {
		return media.Handle{}, err
	}

	h := out.File.handle()
	if h.SizeBytes == 0 {
		h.SizeBytes = info.Size()
	}
	return h, nil
}

// Status fetches the current processing state of uploaded media.
func (c *GeminiClient) Status(ctx context.Context, h media.Handle) (media.Handle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1beta/"+h.Name, nil)
	if err != nil {
		return media.Handle{}, fmt.Errorf("build status request: %w", err)
	}

	var f geminiFile
	if err := c.doJSON(req, "status", &f); err != nil {
		return media.Handle{}, err
	}
	return f.handle(), nil
}

// Delete removes uploaded media.
func (c *GeminiClient) Delete(ctx context.Context, h media.Handle) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1beta/"+h.Name, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	resp, err := c.do(req, "delete")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Analyze runs prompt against uploaded media on the model serving tier.
func (c *GeminiClient) Analyze(ctx context.Context, h media.Handle, prompt string, tier Tier) (string, error) {
	parts := []geminiPart{
		{FileData: &geminiFileData{MimeType: h.MimeType, FileURI: h.URI}},
		{Text: prompt},
	}
	return c.generate(ctx, c.models[tier], tier.Op(), parts)
}

// AnalyzeImages sends all images inline with one prompt.
func (c *GeminiClient) AnalyzeImages(ctx context.Context, imagePaths []string, prompt string) (string, error) {
	parts := make([]geminiPart, 0, len(imagePaths)+1)
	for _, p := range imagePaths {
		data, mimeType, err := readImage(p)
		if err != nil {
			return "", err
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(data),
		}})
	}
	parts = append(parts, geminiPart{Text: prompt})
	return c.generate(ctx, c.image, metrics.OpAnalyzeImages, parts)
}

func (c *GeminiClient) generate(ctx context.Context, model, op string, parts []geminiPart) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents:         []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: generationConfig{ResponseMimeType: "application/json"},
	})
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	var out generateResponse
	if err := c.doJSON(req, "generate", &out); err != nil {
		c.metrics.RecordError(op, time.Since(start))
		c.logger.Warn("generate failed", "model", model, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return "", err
	}
	duration := time.Since(start)
	c.metrics.RecordModelUsage(op, duration, out.UsageMetadata.PromptTokenCount, out.UsageMetadata.CandidatesTokenCount)

	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", remoteErr("generate", http.StatusOK, fmt.Errorf("prompt blocked: %s", out.PromptFeedback.BlockReason))
	}
	if len(out.Candidates) == 0 {
		return "", remoteErr("generate", http.StatusOK, errors.New("no candidates returned"))
	}

	var text strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}

	c.logger.Debug("generate complete",
		"model", model,
		"duration_ms", duration.Milliseconds(),
		"input_tokens", out.UsageMetadata.PromptTokenCount,
		"output_tokens", out.UsageMetadata.CandidatesTokenCount,
	)
	return text.String(), nil
}

// do sends req with the API key and converts transport errors and non-2xx
// responses into RemoteError. The caller closes the body on success.
func (c *GeminiClient) do(req *http.Request, op string) (*http.Response, error) {
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, remoteErr(op, 0, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var apiErr apiErrorBody
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Status + ": " + apiErr.Error.Message
	}
	return nil, remoteErr(op, resp.StatusCode, wrapFatalError(errors.New(msg)))
}

func (c *GeminiClient) doJSON(req *http.Request, op string, out any) error {
	resp, err := c.do(req, op)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return remoteErr(op, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func videoMimeType(path string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(t, "video/") {
		return t
	}
	return "video/mp4"
}
