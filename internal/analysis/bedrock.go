package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/raphaelgruber/reelfacts/internal/metrics"
)

// ConverseAPI is the subset of the Bedrock runtime client used here.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockImages implements ImageAnalyzer with the Bedrock Converse API.
type BedrockImages struct {
	client    ConverseAPI
	modelName string
	metrics   *metrics.Collector
	logger    *slog.Logger
}

var _ ImageAnalyzer = (*BedrockImages)(nil)

// NewBedrockImages creates a Bedrock client from the default AWS credential chain.
func NewBedrockImages(ctx context.Context, region, modelName string, m *metrics.Collector, logger *slog.Logger) (*BedrockImages, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewBedrockImagesFromClient(bedrockruntime.NewFromConfig(awsCfg), modelName, m, logger), nil
}

// NewBedrockImagesFromClient wraps an existing Converse client.
func NewBedrockImagesFromClient(client ConverseAPI, modelName string, m *metrics.Collector, logger *slog.Logger) *BedrockImages {
	if logger == nil {
		logger = slog.Default()
	}
	return &BedrockImages{client: client, modelName: modelName, metrics: m, logger: logger}
}

// ImageModel returns the Bedrock model ID.
func (b *BedrockImages) ImageModel() string {
	return b.modelName
}

// AnalyzeImages sends the images and prompt as a single user turn.
func (b *BedrockImages) AnalyzeImages(ctx context.Context, imagePaths []string, prompt string) (string, error) {
	content := make([]types.ContentBlock, 0, len(imagePaths)+1)
	for _, p := range imagePaths {
		data, mimeType, err := readImage(p)
		if err != nil {
			return "", err
		}
		content = append(content, &types.ContentBlockMemberImage{Value: types.ImageBlock{
			Format: imageFormat(mimeType),
			Source: &types.ImageSourceMemberBytes{Value: data},
		}})
	}
	content = append(content, &types.ContentBlockMemberText{Value: prompt})

	start := time.Now()
	out, err := b.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.modelName),
		Messages: []types.Message{{
			Role:    types.ConversationRoleUser,
			Content: content,
		}},
	})
	duration := time.Since(start)
	if err != nil {
		b.metrics.RecordError(metrics.OpAnalyzeImages, duration)
		b.logger.Warn("bedrock converse failed", "model", b.modelName, "duration_ms", duration.Milliseconds(), "error", err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", remoteErr("converse", bedrockStatus(err), wrapFatalError(err))
	}

	if out.Usage != nil {
		b.metrics.RecordModelUsage(metrics.OpAnalyzeImages, duration,
			int64(aws.ToInt32(out.Usage.InputTokens)), int64(aws.ToInt32(out.Usage.OutputTokens)))
	} else {
		b.metrics.RecordTiming(metrics.OpAnalyzeImages, duration)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", remoteErr("converse", 0, errors.New("no message in output"))
	}

	var text strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			text.WriteString(t.Value)
		}
	}
	return text.String(), nil
}

// bedrockStatus maps well-known Bedrock error codes to HTTP statuses.
func bedrockStatus(err error) int {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return 0
	}
	switch apiErr.ErrorCode() {
	case "AccessDeniedException", "UnrecognizedClientException":
		return 403
	case "ThrottlingException", "ServiceQuotaExceededException":
		return 429
	case "ValidationException":
		return 400
	case "ModelNotReadyException", "ServiceUnavailableException":
		return 503
	}
	return 500
}

func imageFormat(mimeType string) types.ImageFormat {
	switch mimeType {
	case "image/png":
		return types.ImageFormatPng
	case "image/gif":
		return types.ImageFormatGif
	case "image/webp":
		return types.ImageFormatWebp
	}
	return types.ImageFormatJpeg
}
