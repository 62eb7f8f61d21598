package embedding // 外部向量服务接入与向量缓存

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"skillmatch-go/internal/config"
	"skillmatch-go/internal/logger"
	"skillmatch-go/internal/ratelimit"
	"skillmatch-go/internal/tracing"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var embedderTracer = otel.Tracer("skillmatch-go/embedding")

// TextEmbedder 文本向量化接口 (符合 cloudwego/eino 规范)。
// 引擎把向量服务当作同步、可失败、自身不做缓存的外部依赖。
type TextEmbedder interface {
	// EmbedStrings 将一批文本转换为向量表示
	EmbedStrings(ctx context.Context, texts []string, opts ...einoembedding.Option) ([][]float64, error)

	// GetDimensions 返回嵌入向量的维度
	GetDimensions() int
}

// HTTPEmbedder 通过OpenAI兼容端点调用向量服务
type HTTPEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.TokenBucket // nil表示不限流
	log        zerolog.Logger
}

// NewHTTPEmbedder 创建向量服务客户端
func NewHTTPEmbedder(cfg config.EmbeddingConfig) (*HTTPEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API密钥不能为空")
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-v3"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/embeddings"
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var limiter *ratelimit.TokenBucket
	if cfg.QPM > 0 {
		limiter = ratelimit.NewTokenBucket(cfg.QPM, cfg.BurstCapacity)
	}

	return &HTTPEmbedder{
		apiKey:     cfg.APIKey,
		model:      model,
		dimensions: cfg.Dimensions,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		log:        logger.Component("embedder"),
	}, nil
}

// GetDimensions 返回配置的向量维度
func (e *HTTPEmbedder) GetDimensions() int {
	return e.dimensions
}

// embeddingRequest OpenAI兼容的请求结构
type embeddingRequest struct {
	Input      interface{} `json:"input"` // string 或 []string
	Model      string      `json:"model"`
	Dimensions int         `json:"dimensions,omitempty"`
}

// embeddingResponse OpenAI兼容的响应结构
type embeddingResponse struct {
	Object string           `json:"object"`
	Data   []embeddingEntry `json:"data"`
	Model  string           `json:"model"`
	Error  *apiError        `json:"error,omitempty"`
}

type embeddingEntry struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

// apiError 部分服务在HTTP 200下也会带业务错误
type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// EmbedStrings 将文本转换为向量, 实现 cloudwego/eino embedding.Embedder 接口
func (e *HTTPEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...einoembedding.Option) ([][]float64, error) {
	options := &einoembedding.Options{}
	einoembedding.GetCommonOptions(options, opts...)

	effectiveModel := e.model
	if options.Model != nil && *options.Model != "" {
		effectiveModel = *options.Model
	}

	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	ctx, span := embedderTracer.Start(ctx, "Embedding.EmbedStrings",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("embedding.model", effectiveModel),
			attribute.Int("embedding.batch_size", len(texts)),
			tracing.TruncatedString("embedding.first_input", texts[0], tracing.MaxMentionLength),
		))
	defer span.End()

	var input interface{}
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	reqBody := embeddingRequest{
		Input: input,
		Model: effectiveModel,
	}
	if e.dimensions > 0 {
		reqBody.Dimensions = e.dimensions
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化embedding请求失败: %w", err)
	}

	// 每次重试都重建请求体，限流与退避由令牌桶负责
	var parsed embeddingResponse
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("创建HTTP请求失败: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.apiKey)

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("调用向量服务失败: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("读取向量服务响应失败: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			var ae apiError
			if json.Unmarshal(body, &ae) == nil && ae.Message != "" {
				return fmt.Errorf("向量服务返回%d: 类型=%s, 错误=%s, code=%s", resp.StatusCode, ae.Type, ae.Message, ae.Code)
			}
			return fmt.Errorf("向量服务返回%d: %s", resp.StatusCode, tracing.Truncate(string(body), tracing.DefaultMaxLength))
		}

		parsed = embeddingResponse{}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("解析向量服务响应失败: %w", err)
		}
		if parsed.Error != nil && parsed.Error.Message != "" {
			return fmt.Errorf("向量服务业务错误: 类型=%s, 消息=%s, code=%s", parsed.Error.Type, parsed.Error.Message, parsed.Error.Code)
		}
		return nil
	}

	if e.limiter != nil {
		err = e.limiter.RetryWithBackoff(ctx, call)
	} else {
		err = call()
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return nil, err
	}

	if len(parsed.Data) != len(texts) {
		err := fmt.Errorf("向量服务返回条数不符: 期望%d, 实际%d", len(texts), len(parsed.Data))
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return nil, err
	}

	// 按响应里的index回填，服务端不保证data与输入同序
	out := make([][]float64, len(texts))
	for _, entry := range parsed.Data {
		if entry.Index < 0 || entry.Index >= len(out) {
			err := fmt.Errorf("向量服务返回非法index: %d (批大小%d)", entry.Index, len(texts))
			tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
			return nil, err
		}
		out[entry.Index] = entry.Embedding
	}

	span.SetStatus(codes.Ok, "")
	e.log.Debug().Int("texts", len(texts)).Str("model", effectiveModel).Msg("embedding调用成功")
	return out, nil
}
