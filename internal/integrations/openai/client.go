package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"weather-chat/internal/llm"
)

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client streams chat completions from an OpenAI-compatible endpoint.
type Client struct {
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	staticKey string
	getter    Getter
	paramName string

	keyMu sync.Mutex
	api   *goopenai.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.staticKey = strings.TrimSpace(key)
	}
}

// WithParamStore resolves the API key from the named SSM parameter instead
// of a static key. The parameter value must be {"token": "..."}.
func WithParamStore(getter Getter, name string) Option {
	return func(c *Client) {
		c.getter = getter
		c.paramName = strings.TrimSpace(name)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewStreamingHTTPClient returns an HTTP client suitable for long-lived
// streams: timeout bounds connection setup and time to first byte, never the
// whole body.
func NewStreamingHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	transport.TLSHandshakeTimeout = timeout
	return &http.Client{Transport: otelhttp.NewTransport(transport)}
}

// NewClient creates a Client for model. The API key is resolved on first
// use, from WithAPIKey or WithParamStore, and reused for the process lifetime.
func NewClient(model string, opts ...Option) (*Client, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("openai: model must not be empty")
	}
	c := &Client{
		model:  model,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = NewStreamingHTTPClient(10 * time.Second)
	}
	if c.getter != nil && c.paramName == "" {
		return nil, errors.New("openai: token parameter name must not be empty")
	}
	return c, nil
}

func (c *Client) Model() string {
	return c.model
}

// resolveAPI resolves the API key and builds the provider client. Only a
// successful resolution is cached; a failed lookup is retried on the next call.
func (c *Client) resolveAPI(ctx context.Context) (*goopenai.Client, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.api != nil {
		return c.api, nil
	}

	key := c.staticKey
	if key == "" && c.getter != nil {
		var err error
		// The cached key outlives this request.
		key, err = fetchAPIKeyFromParamStore(context.WithoutCancel(ctx), c.getter, c.paramName)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", llm.ErrMissingCredential, err)
		}
	}
	if key == "" {
		return nil, llm.ErrMissingCredential
	}
	cfg := goopenai.DefaultConfig(key)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	cfg.HTTPClient = c.httpClient
	c.api = goopenai.NewClientWithConfig(cfg)
	return c.api, nil
}

func (c *Client) CheckCredential(ctx context.Context) error {
	_, err := c.resolveAPI(ctx)
	return err
}

// OpenStream starts a streaming chat completion. Failures to open the stream
// are returned as *llm.ProviderError when the provider classified them.
func (c *Client) OpenStream(ctx context.Context, req llm.CompletionRequest) (llm.Stream, error) {
	api, err := c.resolveAPI(ctx)
	if err != nil {
		return nil, err
	}

	stream, err := api.CreateChatCompletionStream(ctx, c.chatRequest(req))
	if err != nil {
		c.logger.ErrorContext(ctx, "openai stream open failed", "model", c.model, "err", err)
		return nil, classifyError(err)
	}
	return &chatStream{stream: stream}, nil
}

func (c *Client) chatRequest(req llm.CompletionRequest) goopenai.ChatCompletionRequest {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg := goopenai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, goopenai.ToolCall{
				ID:   tc.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		messages = append(messages, msg)
	}

	tools := make([]goopenai.Tool, 0, len(req.Tools))
	for _, def := range req.Tools {
		tools = append(tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}

	out := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		Stream:      true,
	}
	if len(tools) > 0 {
		out.Tools = tools
		if req.ToolChoice != "" {
			out.ToolChoice = string(req.ToolChoice)
		}
	}
	return out
}

// chatStream adapts a go-openai stream to llm.Stream.
type chatStream struct {
	stream *goopenai.ChatCompletionStream
}

func (s *chatStream) Recv() (llm.Chunk, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return llm.Chunk{}, io.EOF
		}
		return llm.Chunk{}, fmt.Errorf("openai: read stream: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.Chunk{}, nil
	}

	choice := resp.Choices[0]
	chunk := llm.Chunk{
		HasChoice:    true,
		Content:      choice.Delta.Content,
		FinishReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Delta.ToolCalls {
		index := 0
		if tc.Index != nil {
			index = *tc.Index
		}
		chunk.ToolCalls = append(chunk.ToolCalls, llm.ToolCallDelta{
			Index:     index,
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return chunk, nil
}

func (s *chatStream) Close() error {
	s.stream.Close()
	return nil
}

// classifyError maps provider failures onto llm.ProviderError. Anything the
// provider did not classify is returned wrapped as-is.
func classifyError(err error) error {
	var (
		apiErr *goopenai.APIError
		reqErr *goopenai.RequestError
		status int
		msg    string
	)
	switch {
	case errors.As(err, &apiErr):
		status, msg = apiErr.HTTPStatusCode, apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
		msg = http.StatusText(status)
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
	}

	switch {
	case status == http.StatusUnauthorized:
		return llm.NewProviderError(llm.ErrorAuthenticationFailed, status, msg, err)
	case status == http.StatusTooManyRequests:
		return llm.NewProviderError(llm.ErrorRateLimited, status, msg, err)
	case status != 0:
		return llm.NewProviderError(llm.ErrorProvider, status, msg, err)
	case isTimeout(err):
		return llm.NewProviderError(llm.ErrorProviderTimeout, 0, "Request timed out.", err)
	case isConnectionError(err):
		return llm.NewProviderError(llm.ErrorProvider, 0, "Connection error.", err)
	}
	return fmt.Errorf("openai: open stream: %w", err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	var dnsErr *net.DNSError
	return errors.As(err, &opErr) || errors.As(err, &dnsErr)
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("openai: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("openai: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("openai: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", fmt.Errorf("openai: API token is empty")
	}
	return tp.Token, nil
}
